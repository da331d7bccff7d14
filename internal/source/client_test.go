package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"follower-archive/internal/logging"
	"follower-archive/internal/models"
)

func testClient(t *testing.T, baseURL string, mutate func(*RESTConfig)) *RESTClient {
	t.Helper()
	cfg := RESTConfig{
		BaseURL:         baseURL,
		Username:        "demo",
		Password:        "secret",
		DisableSession:  true,
		MaxRetries:      2,
		RequestInterval: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRESTClient(logging.New("error"), cfg)
}

func relationshipServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/session", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})

	mux.HandleFunc("GET /v1/accounts/demo/followers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("cursor") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"users":       []models.User{{PK: "1", Username: "alice"}},
				"next_cursor": "p2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"users": []models.User{{PK: "2", Username: "bob"}},
		})
	})

	mux.HandleFunc("GET /v1/accounts/demo/following", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"users": []models.User{{PK: "3", Username: "carol"}},
		})
	})

	return httptest.NewServer(mux)
}

func TestRESTClient_FetchRelationships(t *testing.T) {
	srv := relationshipServer(t)
	defer srv.Close()

	c := testClient(t, srv.URL, nil)

	rels, err := c.FetchRelationships(context.Background(), "demo")
	if err != nil {
		t.Fatalf("FetchRelationships: %v", err)
	}

	if len(rels.Followers) != 2 {
		t.Errorf("followers = %d, want 2 (paged)", len(rels.Followers))
	}
	if len(rels.Following) != 1 {
		t.Errorf("following = %d, want 1", len(rels.Following))
	}
	if rels.Followers[0].PK != "1" || rels.Followers[1].PK != "2" {
		t.Errorf("follower page order wrong: %+v", rels.Followers)
	}
}

func TestRESTClient_BadCredentialsFatal(t *testing.T) {
	srv := relationshipServer(t)
	defer srv.Close()

	c := testClient(t, srv.URL, func(cfg *RESTConfig) {
		cfg.Password = "wrong"
	})

	err := c.Login(context.Background())
	if err == nil {
		t.Fatal("expected login failure")
	}
	if !IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("auth failure must not be retryable")
	}
}

func TestRESTClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, func(cfg *RESTConfig) {
		cfg.MaxRetries = 5
	})

	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRESTClient_RetryableExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, nil)

	err := c.Login(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	if !IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
}

func TestRESTClient_SessionRoundTrip(t *testing.T) {
	srv := relationshipServer(t)
	defer srv.Close()

	mux := srv.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("GET /v1/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	sessionPath := filepath.Join(t.TempDir(), "session.json")
	key := make([]byte, 32)

	first := testClient(t, srv.URL, func(cfg *RESTConfig) {
		cfg.DisableSession = false
		cfg.SessionPath = sessionPath
		cfg.EncryptionKey = key
	})
	if err := first.Login(context.Background()); err != nil {
		t.Fatalf("first login: %v", err)
	}

	// a second client with no credentials must reuse the cached session
	second := testClient(t, srv.URL, func(cfg *RESTConfig) {
		cfg.Username = ""
		cfg.Password = ""
		cfg.DisableSession = false
		cfg.SessionPath = sessionPath
		cfg.EncryptionKey = key
	})
	if err := second.Login(context.Background()); err != nil {
		t.Fatalf("cached session login: %v", err)
	}
}

func TestRESTClient_DisabledSessionNotPersisted(t *testing.T) {
	srv := relationshipServer(t)
	defer srv.Close()

	sessionPath := filepath.Join(t.TempDir(), "session.json")

	c := testClient(t, srv.URL, func(cfg *RESTConfig) {
		cfg.DisableSession = true
		cfg.SessionPath = sessionPath
	})
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := os.Stat(sessionPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("session blob must not be written when caching is disabled, stat err = %v", err)
	}
}

func TestRESTClient_NoCredentials(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:0", func(cfg *RESTConfig) {
		cfg.Username = ""
		cfg.Password = ""
	})

	err := c.Login(context.Background())
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}
