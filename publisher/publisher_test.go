package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/models"
)

func testPlatforms() map[string]*config.PlatformConfig {
	return map[string]*config.PlatformConfig{
		"facebook": {
			ID:          "facebook",
			Name:        "Facebook",
			Path:        "/publish/facebook",
			AspectRatio: "1.91:1",
			MaxCaption:  2000,
			Enabled:     true,
		},
		"tiktok": {
			ID:      "tiktok",
			Name:    "TikTok",
			Path:    "/publish/tiktok",
			Enabled: false,
		},
	}
}

func testRequest() *Request {
	return &Request{
		RequestID:   uuid.New(),
		EntryID:     uuid.New(),
		ListingID:   uuid.New(),
		Platform:    models.PlatformFacebook,
		ContentType: "photo_feature",
		Caption:     "Take a look at 12 Harbour View, Galway.",
	}
}

func newTestPublisher(serverURL string) *HTTPPublisher {
	cfg := config.PublisherConfig{BaseURL: serverURL, APIKey: "test-key"}
	return NewHTTPPublisher(http.DefaultClient, cfg, testPlatforms())
}

func TestPublish_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{
			PlatformPostID: "fb_123",
			PostURL:        "https://facebook.com/posts/fb_123",
		})
	}))
	defer srv.Close()

	req := testRequest()
	res, err := newTestPublisher(srv.URL).Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if gotPath != "/publish/facebook" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header %s", gotAuth)
	}
	if gotReq.AspectRatio != "1.91:1" {
		t.Fatalf("expected platform aspect ratio applied, got %q", gotReq.AspectRatio)
	}
	if res.PlatformPostID != "fb_123" {
		t.Fatalf("unexpected platform post id %s", res.PlatformPostID)
	}
	if res.RequestID != req.RequestID {
		t.Fatalf("expected request id echoed back, got %s", res.RequestID)
	}
}

func TestPublish_CaptionTruncated(t *testing.T) {
	var gotCaption string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		gotCaption = req.Caption
		json.NewEncoder(w).Encode(Result{PlatformPostID: "fb_1"})
	}))
	defer srv.Close()

	platforms := testPlatforms()
	platforms["facebook"].MaxCaption = 10
	pub := NewHTTPPublisher(http.DefaultClient, config.PublisherConfig{BaseURL: srv.URL}, platforms)

	req := testRequest()
	req.Caption = "this caption is far longer than ten characters"
	if _, err := pub.Publish(context.Background(), req); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(gotCaption) != 10 {
		t.Fatalf("expected caption truncated to 10 chars, got %d", len(gotCaption))
	}
}

func TestPublish_RateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestPublisher(srv.URL).Publish(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error for 429")
	}
	if !IsTransient(err) {
		t.Fatalf("429 should be transient")
	}
}

func TestPublish_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestPublisher(srv.URL).Publish(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error for 502")
	}
	if !IsTransient(err) {
		t.Fatalf("5xx should be transient")
	}
}

func TestPublish_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid media url", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestPublisher(srv.URL).Publish(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error for 400")
	}
	if IsTransient(err) {
		t.Fatalf("4xx should be permanent")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pe.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", pe.StatusCode)
	}
}

func TestPublish_DisabledPlatformIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("disabled platform should never hit the server")
	}))
	defer srv.Close()

	req := testRequest()
	req.Platform = models.PlatformTikTok
	_, err := newTestPublisher(srv.URL).Publish(context.Background(), req)
	if err == nil {
		t.Fatalf("expected error for disabled platform")
	}
	if IsTransient(err) {
		t.Fatalf("disabled platform should be permanent")
	}
}

func TestPublish_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := newTestPublisher(srv.URL).Publish(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error for unreachable server")
	}
	if !IsTransient(err) {
		t.Fatalf("connection failure should be transient")
	}
}
