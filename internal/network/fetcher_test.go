package network

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestFetchMaterializesResponse(t *testing.T) {
	var gotHeader http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "text/css")
		w.Header().Set("Connection", "keep-alive")
		_, _ = io.WriteString(w, "body{}")
	}))
	defer upstream.Close()

	header := http.Header{}
	header.Set("Accept", "text/css")
	header.Set("If-None-Match", `"v1"`)

	payload, err := NewHTTPFetcher(upstream.Client()).Fetch(context.Background(), mustURL(t, upstream.URL+"/static/a.css"), header)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if payload.Status != http.StatusOK || string(payload.Body) != "body{}" {
		t.Fatalf("unexpected payload: %d %q", payload.Status, payload.Body)
	}
	if payload.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("content type should be kept")
	}
	if payload.Header.Get("Connection") != "" || payload.Header.Get("Content-Length") != "" {
		t.Fatalf("hop-by-hop and length headers should be stripped: %v", payload.Header)
	}
	if gotHeader.Get("If-None-Match") != "" {
		t.Fatalf("conditional headers must not reach upstream on cacheable fetches")
	}
	if gotHeader.Get("User-Agent") == "" {
		t.Fatalf("user agent should be set")
	}
}

func TestFetchReturnsNon2xxAsPayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer upstream.Close()

	payload, err := NewHTTPFetcher(upstream.Client()).Fetch(context.Background(), mustURL(t, upstream.URL+"/missing"), nil)
	if err != nil {
		t.Fatalf("non-2xx must not be a network failure: %v", err)
	}
	if payload.Status != http.StatusNotFound || payload.OK() {
		t.Fatalf("expected non-storable 404 payload, got %d", payload.Status)
	}
}

func TestFetchTransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := mustURL(t, upstream.URL+"/gone")
	upstream.Close()

	_, err := NewHTTPFetcher(&http.Client{Timeout: time.Second}).Fetch(context.Background(), target, nil)
	if err == nil {
		t.Fatalf("expected transport failure")
	}
	if !IsFailure(err) {
		t.Fatalf("expected *network.Error, got %T", err)
	}
	var netErr *Error
	if !errors.As(err, &netErr) || netErr.URL != target.String() {
		t.Fatalf("error should carry the target URL: %v", err)
	}
}

func TestForwardPassesMethodAndBody(t *testing.T) {
	var method, body string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	payload, err := NewHTTPFetcher(upstream.Client()).Forward(context.Background(), http.MethodPost, mustURL(t, upstream.URL+"/api/items"), nil, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("forward error: %v", err)
	}
	if method != http.MethodPost || body != `{"a":1}` || payload.Status != http.StatusCreated {
		t.Fatalf("unexpected forward result: %s %s %d", method, body, payload.Status)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return parsed
}
