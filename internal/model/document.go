package model

// Document is a PDF known to the question-answering service.
type Document struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}
