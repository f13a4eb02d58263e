package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"taskdeck-client/internal/session"
)

func newTestClient(t *testing.T, baseURL string, cfg Config) (*Client, *session.Store) {
	t.Helper()
	cfg.BaseURL = baseURL
	store := session.NewStore()
	return New(cfg, store), store
}

func TestClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"roadmap"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	var out struct {
		Name string `json:"name"`
	}
	if err := client.Get(context.Background(), "/api/v1/projects/1", &out); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Name != "roadmap" {
		t.Errorf("expected name='roadmap', got %q", out.Name)
	}
}

func TestClient_Get_OmitsAuthorizationWhenSignedOut(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	if err := client.Get(context.Background(), "/api/v1/projects", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if auth := gotAuth.Load().(string); auth != "" {
		t.Errorf("expected no Authorization header, got %q", auth)
	}
}

func TestClient_Get_AttachesBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, store := newTestClient(t, server.URL, Config{})
	store.Set(session.Credential{Token: "bearer-xyz"})

	if err := client.Get(context.Background(), "/api/v1/projects", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if auth := gotAuth.Load().(string); auth != "Bearer bearer-xyz" {
		t.Errorf("expected 'Bearer bearer-xyz', got %q", auth)
	}
}

func TestClient_Post_AttachesCSRFHeader(t *testing.T) {
	var gotCSRF atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"antiForgeryToken":"csrf-123"}`))
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		gotCSRF.Store(r.Header.Get("X-CSRF-Token"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	var out struct {
		ID int `json:"id"`
	}
	if err := client.Post(context.Background(), "/api/v1/tasks", map[string]string{"title": "ship it"}, &out); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if csrf := gotCSRF.Load().(string); csrf != "csrf-123" {
		t.Errorf("expected csrf header 'csrf-123', got %q", csrf)
	}
	if out.ID != 1 {
		t.Errorf("expected id=1, got %d", out.ID)
	}
}

func TestClient_Get_NeverFetchesCSRF(t *testing.T) {
	var csrfHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		csrfHits.Add(1)
		_, _ = w.Write([]byte(`{"antiForgeryToken":"csrf-123"}`))
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	if err := client.Get(context.Background(), "/api/v1/tasks", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hits := csrfHits.Load(); hits != 0 {
		t.Errorf("read-only call should not fetch a csrf token, got %d fetches", hits)
	}
}

func TestClient_Timeout(t *testing.T) {
	var transportHits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transportHits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	err := client.Call(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/slow",
		Timeout: 50 * time.Millisecond,
	}, nil)

	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if hits := transportHits.Load(); hits != 1 {
		t.Errorf("timed-out call must invoke the transport exactly once, got %d", hits)
	}
}

func TestClient_NetworkError(t *testing.T) {
	// Point at a server that is already closed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	err := client.Get(context.Background(), "/api/v1/projects", nil)

	var networkErr *NetworkError
	if !errors.As(err, &networkErr) {
		t.Fatalf("expected *NetworkError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("network errors should be retryable")
	}
}

func TestClient_HTTPError_WithMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"title is required"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	err := client.Get(context.Background(), "/api/v1/tasks", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusBadRequest {
		t.Errorf("expected status=400, got %d", httpErr.Status)
	}
	if httpErr.Message != "title is required" {
		t.Errorf("expected message='title is required', got %q", httpErr.Message)
	}
	if IsRetryable(err) {
		t.Error("http errors should not be retryable")
	}
}

func TestClient_HTTPError_UnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>gateway exploded</html>`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	err := client.Get(context.Background(), "/api/v1/tasks", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status=500, got %d", httpErr.Status)
	}
	if httpErr.Message != "" {
		t.Errorf("unparseable body should yield empty message, got %q", httpErr.Message)
	}
}

func TestClient_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	var out map[string]interface{}
	if err := client.Get(context.Background(), "/api/v1/tasks/1", &out); err != nil {
		t.Fatalf("204 should not attempt a decode, got %v", err)
	}
	if out != nil {
		t.Errorf("expected untouched out value, got %v", out)
	}
}

func TestClient_RefreshRetry_OnUnauthorized(t *testing.T) {
	var apiHits, refreshHits atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer stale-token" {
			t.Errorf("refresh should carry the stale token, got %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"bearerToken":"fresh-token"}`))
	})
	mux.HandleFunc("/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		apiHits.Add(1)
		if r.Header.Get("Authorization") == "Bearer fresh-token" {
			_, _ = w.Write([]byte(`[{"id":7}]`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, store := newTestClient(t, server.URL, Config{})
	store.Set(session.Credential{Token: "stale-token"})

	var out []struct {
		ID int `json:"id"`
	}
	if err := client.Get(context.Background(), "/api/v1/projects", &out); err != nil {
		t.Fatalf("refresh-and-retry should be invisible on success, got %v", err)
	}

	if hits := refreshHits.Load(); hits != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", hits)
	}
	if hits := apiHits.Load(); hits != 2 {
		t.Errorf("expected original call plus one retry, got %d", hits)
	}
	if store.Token() != "fresh-token" {
		t.Errorf("store should hold the refreshed token, got %q", store.Token())
	}
	if len(out) != 1 || out[0].ID != 7 {
		t.Errorf("expected payload from the retried call, got %v", out)
	}
}

func TestClient_AuthExpired_AfterRetriedUnauthorized(t *testing.T) {
	var apiHits, refreshHits atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshHits.Add(1)
		_, _ = w.Write([]byte(`{"bearerToken":"still-rejected"}`))
	})
	mux.HandleFunc("/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		apiHits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, store := newTestClient(t, server.URL, Config{})
	store.Set(session.Credential{Token: "stale-token"})

	err := client.Get(context.Background(), "/api/v1/projects", nil)

	if !IsAuthExpired(err) {
		t.Fatalf("expected auth expired error, got %v", err)
	}
	if hits := refreshHits.Load(); hits != 1 {
		t.Errorf("expected exactly 1 refresh per original request, got %d", hits)
	}
	if hits := apiHits.Load(); hits != 2 {
		t.Errorf("expected exactly 2 endpoint hits (no retry loop), got %d", hits)
	}
}

func TestClient_AuthExpired_WhenRefreshFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, store := newTestClient(t, server.URL, Config{})
	store.Set(session.Credential{Token: "stale-token"})

	err := client.Get(context.Background(), "/api/v1/projects", nil)
	if !IsAuthExpired(err) {
		t.Fatalf("expected auth expired error, got %v", err)
	}
}

func TestClient_TokenRotation(t *testing.T) {
	var csrfHits atomic.Int64
	var gotCSRF atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		csrfHits.Add(1)
		_, _ = w.Write([]byte(`{"antiForgeryToken":"csrf-v1"}`))
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		gotCSRF.Store(r.Header.Get("X-CSRF-Token"))
		// Proactively rotate the anti-forgery token.
		_, _ = w.Write([]byte(`{"id":1,"antiForgeryToken":"csrf-v2"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	if err := client.Post(context.Background(), "/api/v1/tasks", map[string]string{"title": "a"}, nil); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if got := gotCSRF.Load().(string); got != "csrf-v1" {
		t.Errorf("first call should use the fetched token, got %q", got)
	}

	if err := client.Post(context.Background(), "/api/v1/tasks", map[string]string{"title": "b"}, nil); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if got := gotCSRF.Load().(string); got != "csrf-v2" {
		t.Errorf("second call should use the rotated token, got %q", got)
	}
	if hits := csrfHits.Load(); hits != 1 {
		t.Errorf("rotation should not cause a refetch, got %d fetches", hits)
	}
}

func TestClient_Raw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	var raw []byte
	err := client.Call(context.Background(), Request{Path: "/api/v1/export", Raw: true}, &raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(raw) != "not json at all" {
		t.Errorf("expected raw body, got %q", raw)
	}
}

func TestClient_DecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"not-a-number"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	var out struct {
		ID int `json:"id"`
	}
	err := client.Get(context.Background(), "/api/v1/tasks/1", &out)
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
	var jsonErr *json.UnmarshalTypeError
	if !errors.As(err, &jsonErr) {
		t.Errorf("expected json decode error, got %v", err)
	}
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, _ := newTestClient(t, server.URL, Config{BreakerEnabled: true})

	for i := 0; i < 10; i++ {
		_ = client.Get(context.Background(), "/api/v1/projects", nil)
	}
	if !client.breaker.IsOpen() {
		t.Fatal("breaker should open after repeated transport failures")
	}

	// With the breaker open the call is rejected locally, still as a
	// network error.
	err := client.Get(context.Background(), "/api/v1/projects", nil)
	var networkErr *NetworkError
	if !errors.As(err, &networkErr) {
		t.Errorf("expected *NetworkError while open, got %v", err)
	}
}

func TestClient_PerCallCancellationIsIndependent(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(t, server.URL, Config{})

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- client.Call(context.Background(), Request{
			Path:    "/api/v1/slow",
			Timeout: 100 * time.Millisecond,
		}, nil)
	}()

	// A concurrent call with a comfortable deadline must not be affected
	// by the slow call timing out.
	if err := client.Get(context.Background(), "/api/v1/fast", nil); err != nil {
		t.Fatalf("concurrent call should succeed, got %v", err)
	}

	if err := <-slowDone; !IsTimeout(err) {
		t.Errorf("slow call should time out, got %v", err)
	}
}
