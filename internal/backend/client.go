package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"pdfchat/internal/model"
)

var ErrUnexpectedStatus = errors.New("unexpected backend status")

type Config struct {
	BaseURL string
	// Headers are sent with every request, e.g. the tunnel interstitial bypass.
	Headers map[string]string
	// Timeout of zero leaves requests bounded only by their context.
	Timeout time.Duration
}

// Client talks to the document question-answering service.
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

type askRequest struct {
	DocumentID int    `json:"document_id"`
	Question   string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func NewClient(cfg Config) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewClientWithHTTP(cfg Config, httpClient *http.Client) *Client {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    headers,
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) ListDocuments(ctx context.Context) ([]model.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents/", nil)
	if err != nil {
		return nil, fmt.Errorf("build list documents request failed: %w", err)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}

	var docs []model.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse documents json failed: %w", err)
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

// UploadDocument sends the file as multipart field "file". The response
// payload is opaque and discarded.
func (c *Client) UploadDocument(ctx context.Context, filename string, file io.Reader) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create multipart file failed: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy upload content failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer failed: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/", &body)
	if err != nil {
		return fmt.Errorf("build upload request failed: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("upload document failed: %w", err)
	}
	return nil
}

func (c *Client) Ask(ctx context.Context, documentID int, question string) (string, error) {
	bodyBytes, err := json.Marshal(askRequest{DocumentID: documentID, Question: question})
	if err != nil {
		return "", fmt.Errorf("marshal question request failed: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/question/", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build question request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("ask question failed: %w", err)
	}

	var parsed askResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse answer json failed: %w", err)
	}
	return parsed.Answer, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(raw))
	}
	return raw, nil
}
