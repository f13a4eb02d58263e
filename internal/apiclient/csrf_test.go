package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnsureCSRF_SingleFlight(t *testing.T) {
	var csrfHits atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		csrfHits.Add(1)
		// Hold the response open so concurrent callers pile up on one flight.
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"antiForgeryToken":"csrf-shared"}`))
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-CSRF-Token"); got != "csrf-shared" {
			t.Errorf("expected shared csrf token, got %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	const concurrency = 16
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Post(context.Background(), "/api/v1/tasks",
				map[string]string{"title": fmt.Sprintf("task-%d", i)}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d failed: %v", i, err)
		}
	}
	if hits := csrfHits.Load(); hits != 1 {
		t.Errorf("concurrent mutating calls must share one token fetch, got %d", hits)
	}
}

func TestEnsureCSRF_FetchFailureSurfacesToCaller(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	err := client.Post(context.Background(), "/api/v1/tasks", map[string]string{"title": "a"}, nil)
	if err == nil {
		t.Fatal("expected csrf fetch failure to surface, got nil")
	}
}

func TestEnsureCSRF_FailureDoesNotPoisonCache(t *testing.T) {
	var csrfHits atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		if csrfHits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"antiForgeryToken":"csrf-recovered"}`))
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	if err := client.Post(context.Background(), "/api/v1/tasks", nil, nil); err == nil {
		t.Fatal("first call should fail while the token endpoint is down")
	}
	if err := client.Post(context.Background(), "/api/v1/tasks", nil, nil); err != nil {
		t.Fatalf("second call should recover with a fresh fetch, got %v", err)
	}
	if hits := csrfHits.Load(); hits != 2 {
		t.Errorf("expected a refetch after the failed attempt, got %d fetches", hits)
	}
}

func TestEnsureCSRF_EmptyTokenRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"antiForgeryToken":""}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Config{})

	err := client.Post(context.Background(), "/api/v1/tasks", nil, nil)
	if err == nil {
		t.Fatal("expected an error for an empty anti-forgery token")
	}
}

func TestCSRFCache_GetSet(t *testing.T) {
	var cache csrfCache
	if tok := cache.get(); tok != "" {
		t.Errorf("fresh cache should be empty, got %q", tok)
	}
	cache.set("csrf-abc")
	if tok := cache.get(); tok != "csrf-abc" {
		t.Errorf("expected cached token, got %q", tok)
	}
}
