package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fastBackoff keeps the retry cycles from slowing the suite down.
func fastBackoff() Option {
	return WithBackoff(time.Millisecond, 2*time.Millisecond, 2.0)
}

func TestSend_DefaultUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors())
	if _, err := c.Send(context.Background(), &Request{Path: "/react"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotUA != "npmjs" {
		t.Errorf("default User-Agent = %q, want %q", gotUA, "npmjs")
	}
}

func TestClient_WithUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors()).WithUserAgent("custom-agent/2.0")
	if _, err := c.Send(context.Background(), &Request{Path: "/react"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotUA != "custom-agent/2.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "custom-agent/2.0")
	}
}

func TestSend_HeadersNotOverwritten(t *testing.T) {
	var gotUA, gotAccept, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(
		WithRegistry(server.URL),
		WithMirrors(),
		WithBasicAuth("user", "secret"),
	)

	header := make(http.Header)
	header.Set("User-Agent", "caller/1.0")
	header.Set("Authorization", "Bearer caller-token")
	if _, err := c.Send(context.Background(), &Request{Path: "/react", Header: header}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotUA != "caller/1.0" {
		t.Errorf("User-Agent = %q, want caller's value", gotUA)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want %q", gotAccept, "application/json")
	}
	if gotAuth != "Bearer caller-token" {
		t.Errorf("Authorization = %q, want caller's value", gotAuth)
	}
}

func TestSend_BasicAuthPrecomputed(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors(), WithBasicAuth("foo", "bar"))
	if _, err := c.Send(context.Background(), &Request{Path: "/react"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// base64("foo:bar")
	if want := "Basic Zm9vOmJhcg=="; gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestSend_FailsOverToMirror(t *testing.T) {
	var primaryHits, mirrorHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mirrorHits, 1)
		_, _ = w.Write([]byte(`{"name":"react"}`))
	}))
	defer mirror.Close()

	c := New(WithRegistry(primary.URL), WithMirrors(mirror.URL), fastBackoff())
	body, err := c.Send(context.Background(), &Request{Path: "/react"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(body) != `{"name":"react"}` {
		t.Errorf("body = %s, want mirror response", body)
	}
	if primaryHits != 1 || mirrorHits != 1 {
		t.Errorf("hits = %d primary, %d mirror; want 1 and 1", primaryHits, mirrorHits)
	}
}

func TestSend_ExhaustsMirrorsThenBacksOff(t *testing.T) {
	var primaryHits, mirrorHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mirrorHits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer mirror.Close()

	c := New(
		WithRegistry(primary.URL),
		WithMirrors(mirror.URL),
		WithMaxRetries(2),
		fastBackoff(),
	)

	_, err := c.Send(context.Background(), &Request{Path: "/react"})
	if err == nil {
		t.Fatal("Send() expected error after exhausting all mirrors")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Send() error = %T, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("ExhaustedError should wrap the last *HTTPError, got %v", exhausted.Err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("last StatusCode = %d, want %d", httpErr.StatusCode, http.StatusServiceUnavailable)
	}

	// One initial rotation plus one per backoff cycle, across both hosts.
	wantPerHost := int32(3)
	if primaryHits != wantPerHost || mirrorHits != wantPerHost {
		t.Errorf("hits = %d primary, %d mirror; want %d each", primaryHits, mirrorHits, wantPerHost)
	}
}

func TestSend_TransportErrorsExhaustBackoff(t *testing.T) {
	// A closed listener refuses connections, so every attempt is a
	// transport error rather than a bad status.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	c := New(
		WithRegistry(dead.URL),
		WithMirrors(),
		WithMaxRetries(2),
		fastBackoff(),
	)

	_, err := c.Send(context.Background(), &Request{Path: "/react"})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Send() error = %T (%v), want *ExhaustedError", err, err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want the full retry budget", exhausted.Attempts)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("transport failure surfaced as *HTTPError %v, want the dial error", httpErr)
	}
}

func TestSend_RotationOrderRepeatsAcrossCycles(t *testing.T) {
	var mu sync.Mutex
	var order []string

	failing := func(tag string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
		}))
	}

	primary := failing("primary")
	defer primary.Close()
	first := failing("first")
	defer first.Close()
	second := failing("second")
	defer second.Close()

	c := New(
		WithRegistry(primary.URL),
		WithMirrors(first.URL, second.URL),
		WithMaxRetries(1),
		fastBackoff(),
	)
	_, err := c.Send(context.Background(), &Request{Path: "/react"})
	if err == nil {
		t.Fatal("Send() expected error")
	}

	want := []string{"primary", "first", "second", "primary", "first", "second"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("requests = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("requests = %v, want %v", order, want)
		}
	}
}

func TestSend_MalformedJSONIsTerminal(t *testing.T) {
	var primaryHits, mirrorHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		_, _ = w.Write([]byte(`{"name": "react"`)) // truncated
	}))
	defer primary.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mirrorHits, 1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer mirror.Close()

	c := New(WithRegistry(primary.URL), WithMirrors(mirror.URL), fastBackoff())
	_, err := c.Send(context.Background(), &Request{Path: "/react"})

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Send() error = %T (%v), want *ParseError", err, err)
	}
	if primaryHits != 1 {
		t.Errorf("primary hits = %d, want exactly 1", primaryHits)
	}
	if mirrorHits != 0 {
		t.Errorf("mirror hits = %d, want 0; parse failures must not rotate", mirrorHits)
	}
}

func TestSend_NotFoundRotatesAndSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found"}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors(), WithMaxRetries(0))
	_, err := c.Send(context.Background(), &Request{Path: "/no-such-package"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Send() error = %T, want wrapped *HTTPError", err)
	}
	if !httpErr.IsNotFound() {
		t.Errorf("IsNotFound() = false for status %d", httpErr.StatusCode)
	}
}

func TestSend_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(WithRegistry(server.URL), WithMirrors(), fastBackoff())
	_, err := c.Send(ctx, &Request{Path: "/react"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestSend_NoMirrorsConfigured(t *testing.T) {
	c := New(WithRegistry(""), WithMirrors())
	if _, err := c.Send(context.Background(), &Request{Path: "/react"}); err == nil {
		t.Error("Send() with no mirrors should fail")
	}
}

func TestSend_ConditionalGetServesCachedBody(t *testing.T) {
	var hits int32
	var gotIfNoneMatch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		if gotIfNoneMatch == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"name":"react"}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors(), WithCache(newTestCache()))

	first, err := c.Send(context.Background(), &Request{Path: "/react"})
	if err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	second, err := c.Send(context.Background(), &Request{Path: "/react"})
	if err != nil {
		t.Fatalf("second Send() error = %v", err)
	}

	if gotIfNoneMatch != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", gotIfNoneMatch, `"v1"`)
	}
	if string(second) != string(first) {
		t.Errorf("cached body = %s, want %s", second, first)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2", hits)
	}
}

// testCache is a minimal in-memory Cache for executor tests.
type testCache struct {
	mu      sync.Mutex
	entries map[string]*CachedResponse
}

func newTestCache() *testCache {
	return &testCache{entries: make(map[string]*CachedResponse)}
}

func (c *testCache) Get(_ context.Context, key string) (*CachedResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *testCache) Set(_ context.Context, key string, res *CachedResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = res
	return nil
}

func TestGet_DecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"name":        "react",
			"description": "A JavaScript library for building user interfaces.",
		})
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors())

	var doc map[string]interface{}
	if err := c.Get(context.Background(), "/react", &doc); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc["name"] != "react" {
		t.Errorf("name = %v, want react", doc["name"])
	}
}

func TestGet_ShapeMismatchIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"just a string"`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors())

	var doc map[string]interface{}
	err := c.Get(context.Background(), "/react", &doc)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("Get() error = %T, want *ParseError", err)
	}
}

func TestPut_SendsJSONBody(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors())

	var res map[string]interface{}
	err := c.Put(context.Background(), "/react/-rev/1-abc", map[string]string{"_rev": "1-abc"}, &res)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if string(gotBody) != `{"_rev":"1-abc"}` {
		t.Errorf("body = %s, want rev document", gotBody)
	}
	if res["ok"] != true {
		t.Errorf("response ok = %v, want true", res["ok"])
	}
}

func TestView_EncodesKeyAsJSON(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}))
	defer server.Close()

	c := New(WithRegistry(server.URL), WithMirrors())

	var res map[string]interface{}
	if err := c.View(context.Background(), "byKeyword", "framework", &res); err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if gotPath != "/-/_view/byKeyword" {
		t.Errorf("path = %q, want /-/_view/byKeyword", gotPath)
	}
	if gotKey != `"framework"` {
		t.Errorf("key = %q, want JSON-quoted %q", gotKey, `"framework"`)
	}
}
