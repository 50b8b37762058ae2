package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API is the REST snapshot surface of the chat server.
type API interface {
	CreateEnquiry(ctx context.Context, propertyID *string, text string, contact *Contact) (*SendResult, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetMessages(ctx context.Context, conversationID string) (*Conversation, []Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (*SendResult, error)
	MarkRead(ctx context.Context, conversationID string) (*Conversation, error)
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

// HTTPAPI talks to the /v1 REST routes.
type HTTPAPI struct {
	baseURL string
	client  *http.Client
	token   func() string
}

var _ API = (*HTTPAPI)(nil)

// NewHTTPAPI uses token for the bearer header of every request. client may be nil.
func NewHTTPAPI(baseURL string, client *http.Client, token func() string) *HTTPAPI {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPAPI{baseURL: strings.TrimRight(baseURL, "/"), client: client, token: token}
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != nil {
		req.Header.Set("Authorization", "Bearer "+a.token())
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func conversationPath(id, suffix string) string {
	return "/v1/conversations/" + url.PathEscape(id) + suffix
}

func (a *HTTPAPI) CreateEnquiry(ctx context.Context, propertyID *string, text string, contact *Contact) (*SendResult, error) {
	body := struct {
		PropertyID *string  `json:"property_id"`
		Text       string   `json:"text"`
		Contact    *Contact `json:"contact,omitempty"`
	}{propertyID, text, contact}
	var out SendResult
	if err := a.do(ctx, http.MethodPost, "/v1/enquiries", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := a.do(ctx, http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (a *HTTPAPI) GetMessages(ctx context.Context, conversationID string) (*Conversation, []Message, error) {
	var out struct {
		Conversation *Conversation `json:"conversation"`
		Messages     []Message     `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, conversationPath(conversationID, "/messages"), nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Conversation, out.Messages, nil
}

func (a *HTTPAPI) SendMessage(ctx context.Context, conversationID, text string) (*SendResult, error) {
	var out SendResult
	body := map[string]string{"text": text}
	if err := a.do(ctx, http.MethodPost, conversationPath(conversationID, "/messages"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) MarkRead(ctx context.Context, conversationID string) (*Conversation, error) {
	var out Conversation
	if err := a.do(ctx, http.MethodPost, conversationPath(conversationID, "/read"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
