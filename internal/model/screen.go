package model

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrDocumentNotFound = errors.New("document not found in registry")

// Screen is the view state of one chat screen. All mutations go through
// its methods so a shell only has to load, apply and save.
type Screen struct {
	Documents    []Document `json:"documents"`
	Selected     *Document  `json:"selected,omitempty"`
	DropdownOpen bool       `json:"dropdown_open"`
	Question     string     `json:"question"`
	Awaiting     bool       `json:"awaiting"`
	Messages     []Message  `json:"messages"`
	// Epoch changes on every selection so answers for an older selection can be recognised.
	Epoch uint64 `json:"epoch"`
	// PendingTicket is the ID of the question currently awaiting its answer.
	PendingTicket string `json:"pending_ticket,omitempty"`
	Notice        string `json:"notice,omitempty"`
}

// QuestionTicket identifies one submitted question until its answer settles.
type QuestionTicket struct {
	ID         string `json:"id"`
	DocumentID int    `json:"document_id"`
	Question   string `json:"question"`
	Epoch      uint64 `json:"epoch"`
}

// NewScreen returns an empty screen, optionally preselecting initial.
func NewScreen(initial *Document) *Screen {
	s := &Screen{
		Documents: []Document{},
		Messages:  []Message{},
	}
	if initial != nil {
		doc := *initial
		s.Selected = &doc
	}
	return s
}

// ApplyRegistry replaces the registry and selects the first document when
// nothing is selected yet.
func (s *Screen) ApplyRegistry(docs []Document) {
	s.Documents = append([]Document{}, docs...)
	if s.Selected == nil && len(s.Documents) > 0 {
		first := s.Documents[0]
		s.Selected = &first
	}
}

func (s *Screen) Select(documentID int) error {
	for _, doc := range s.Documents {
		if doc.ID != documentID {
			continue
		}
		selected := doc
		s.Selected = &selected
		s.DropdownOpen = false
		s.Messages = []Message{}
		s.Epoch++
		return nil
	}
	return ErrDocumentNotFound
}

func (s *Screen) ToggleDropdown() {
	s.DropdownOpen = !s.DropdownOpen
}

// SetQuestion keeps text as the draft in the question input.
func (s *Screen) SetQuestion(text string) {
	s.Question = text
}

// CanSubmit reports whether the question form is enabled.
func (s *Screen) CanSubmit() bool {
	return s.Selected != nil && !s.Awaiting
}

func (s *Screen) IsSelected(documentID int) bool {
	return s.Selected != nil && s.Selected.ID == documentID
}

// BeginQuestion records a user question. It reports false and leaves the
// screen untouched when the text is blank, nothing is selected or an answer
// is still pending.
func (s *Screen) BeginQuestion(text string) (QuestionTicket, bool) {
	if strings.TrimSpace(text) == "" || !s.CanSubmit() {
		return QuestionTicket{}, false
	}
	s.Messages = append(s.Messages, Message{Type: MessageTypeUser, Content: text})
	s.Question = ""
	s.Awaiting = true
	s.PendingTicket = uuid.NewString()
	return QuestionTicket{
		ID:         s.PendingTicket,
		DocumentID: s.Selected.ID,
		Question:   text,
		Epoch:      s.Epoch,
	}, true
}

// ResolveAnswer appends the answer when ticket is the outstanding question
// and the selection has not changed since it was issued.
func (s *Screen) ResolveAnswer(ticket QuestionTicket, answer string) bool {
	if ticket.ID != s.PendingTicket || ticket.Epoch != s.Epoch {
		return false
	}
	s.Messages = append(s.Messages, Message{Type: MessageTypeAI, Content: answer})
	return true
}

// Settle clears the awaiting flag if ticket is still the outstanding
// question. A ticket from before a remount settles nothing.
func (s *Screen) Settle(ticket QuestionTicket) bool {
	if ticket.ID != s.PendingTicket {
		return false
	}
	s.Awaiting = false
	s.PendingTicket = ""
	return true
}

func (s *Screen) PushNotice(msg string) {
	s.Notice = msg
}

// PopNotice returns the pending notice and clears it.
func (s *Screen) PopNotice() string {
	msg := s.Notice
	s.Notice = ""
	return msg
}

// Clone returns a deep copy safe to hand to renderers.
func (s *Screen) Clone() *Screen {
	out := *s
	out.Documents = append([]Document{}, s.Documents...)
	out.Messages = append([]Message{}, s.Messages...)
	if s.Selected != nil {
		selected := *s.Selected
		out.Selected = &selected
	}
	return &out
}
