// Package publisher is the boundary to the external upload-post service.
// One Publish call posts a single entry to a single platform; the dispatcher
// owns batching, retries and result persistence.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/models"
)

// Request is one publish attempt for one platform.
type Request struct {
	RequestID   uuid.UUID         `json:"request_id"`
	EntryID     uuid.UUID         `json:"entry_id"`
	ListingID   uuid.UUID         `json:"listing_id"`
	Platform    models.Platform   `json:"platform"`
	ContentType string            `json:"content_type"`
	Caption     string            `json:"caption"`
	MediaURLs   []string          `json:"media_urls"`
	AspectRatio string            `json:"aspect_ratio"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Result is the service's acknowledgement of a successful publish.
type Result struct {
	RequestID      uuid.UUID `json:"request_id"`
	PlatformPostID string    `json:"platform_post_id"`
	PostURL        string    `json:"post_url"`
}

// Error wraps a publish failure with its retry class. Transient failures
// (timeouts, 5xx, 429) are retried with backoff; permanent ones (bad media,
// revoked platform auth) fail the platform immediately.
type Error struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish failed (status %d, transient %v): %s", e.StatusCode, e.Transient, e.Message)
}

// IsTransient reports whether err represents a retryable publish failure.
// Network-level errors with no response at all count as transient.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}

// Publisher hands a rendered post to the external publishing service.
type Publisher interface {
	Publish(ctx context.Context, req *Request) (*Result, error)
}

// HTTPPublisher talks JSON to the upload-post service.
type HTTPPublisher struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	platforms map[string]*config.PlatformConfig
}

func NewHTTPPublisher(client *http.Client, cfg config.PublisherConfig, platforms map[string]*config.PlatformConfig) *HTTPPublisher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPPublisher{
		client:    client,
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		platforms: platforms,
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, req *Request) (*Result, error) {
	platform, ok := p.platforms[string(req.Platform)]
	if !ok || !platform.Enabled {
		return nil, &Error{StatusCode: 0, Message: fmt.Sprintf("platform %s not configured", req.Platform), Transient: false}
	}
	if req.AspectRatio == "" {
		req.AspectRatio = platform.AspectRatio
	}
	if platform.MaxCaption > 0 && len(req.Caption) > platform.MaxCaption {
		req.Caption = req.Caption[:platform.MaxCaption]
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+platform.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-Request-ID", req.RequestID.String())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// No response at all: network trouble, treat as transient.
		return nil, &Error{StatusCode: 0, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: err.Error(), Transient: true}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, classifyStatus(resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error(), Transient: true}
	}
	if result.RequestID == uuid.Nil {
		result.RequestID = req.RequestID
	}
	return &result, nil
}

func classifyStatus(status int, body string) *Error {
	msg := body
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{StatusCode: status, Message: msg, Transient: true}
	case status >= 500:
		return &Error{StatusCode: status, Message: msg, Transient: true}
	default:
		// 4xx: invalid media, revoked auth, bad payload. Retrying won't help.
		return &Error{StatusCode: status, Message: msg, Transient: false}
	}
}
