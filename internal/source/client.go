package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"follower-archive/internal/logging"
	"follower-archive/internal/models"
	"follower-archive/internal/security"
)

// RESTConfig configures the relationship-API client.
type RESTConfig struct {
	BaseURL  string
	Username string
	Password string

	// SessionID, when set, is used directly instead of a credential login.
	SessionID string

	// SessionPath is where the session blob is cached between runs; empty
	// or DisableSession skips caching. EncryptionKey (32 bytes) encrypts
	// the blob at rest when present.
	SessionPath    string
	DisableSession bool
	EncryptionKey  []byte

	MaxRetries      uint64
	RequestInterval time.Duration
}

// RESTClient talks to the platform's relationship API. It paces requests,
// trips a circuit breaker on consecutive failures, and retries retryable
// errors with exponential backoff. Safe for sequential use by one capture
// run; fetches for different accounts must not run concurrently on one
// session (upstream rate limits are per session).
type RESTClient struct {
	log     *slog.Logger
	cfg     RESTConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker

	mu       sync.Mutex
	token    string
	loggedIn bool
}

var _ Client = (*RESTClient)(nil)

type sessionBlob struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

func NewRESTClient(log *slog.Logger, cfg RESTConfig) *RESTClient {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 2 * time.Second
	}
	return &RESTClient{
		log:     log,
		cfg:     cfg,
		http:    NewHTTPClient(),
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		breaker: NewCircuitBreaker(),
	}
}

// Login establishes a session: a configured session id wins, then a cached
// session blob, then a credential login. Bad credentials or a rejected
// session are fatal; transient upstream trouble is retryable.
func (c *RESTClient) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return nil
	}

	if c.cfg.SessionID != "" {
		if err := c.verifySession(ctx, c.cfg.SessionID); err != nil {
			return err
		}
		c.token = c.cfg.SessionID
		c.loggedIn = true
		c.saveSession()
		c.log.Info("session_id_login_ok")
		return nil
	}

	if tok, ok := c.loadSession(); ok {
		if err := c.verifySession(ctx, tok); err == nil {
			c.token = tok
			c.loggedIn = true
			c.log.Info("cached_session_reused")
			return nil
		}
		c.log.Info("cached_session_rejected", "path", c.cfg.SessionPath)
	}

	if c.cfg.Username == "" || c.cfg.Password == "" {
		return &FatalError{Op: "login", Err: errors.New("no credentials configured (set username/password or a session id)")}
	}

	var resp struct {
		Token string `json:"token"`
	}
	err := c.doWithRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, "/v1/session", map[string]string{
			"username": c.cfg.Username,
			"password": c.cfg.Password,
		}, "", &resp)
	})
	if err != nil {
		return err
	}
	if resp.Token == "" {
		return &FatalError{Op: "login", Err: errors.New("login response missing token")}
	}

	c.token = resp.Token
	c.loggedIn = true
	c.saveSession()
	c.log.Info("credential_login_ok", "username", c.cfg.Username)
	return nil
}

// FetchRelationships returns the account's full follower and following
// lists. Both lists are paged through to completion.
func (c *RESTClient) FetchRelationships(ctx context.Context, account string) (Relationships, error) {
	if err := c.Login(ctx); err != nil {
		return Relationships{}, err
	}

	followers, err := c.fetchList(ctx, account, "followers")
	if err != nil {
		return Relationships{}, err
	}
	following, err := c.fetchList(ctx, account, "following")
	if err != nil {
		return Relationships{}, err
	}

	c.log.Info("relationships_fetched", "account", account, "followers", len(followers), "following", len(following))
	return Relationships{Followers: followers, Following: following}, nil
}

func (c *RESTClient) fetchList(ctx context.Context, account, relation string) ([]models.User, error) {
	users := make([]models.User, 0)
	cursor := ""

	for {
		var page struct {
			Users      []models.User `json:"users"`
			NextCursor string        `json:"next_cursor"`
		}

		path := fmt.Sprintf("/v1/accounts/%s/%s", url.PathEscape(account), relation)
		query := ""
		if cursor != "" {
			query = "?cursor=" + url.QueryEscape(cursor)
		}

		err := c.doWithRetry(ctx, func() error {
			return c.doJSON(ctx, http.MethodGet, path+query, nil, c.currentToken(), &page)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s for %s: %w", relation, account, err)
		}

		users = append(users, page.Users...)
		if page.NextCursor == "" {
			return users, nil
		}
		cursor = page.NextCursor
	}
}

func (c *RESTClient) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// doWithRetry retries op with exponential backoff while the error is
// retryable; fatal and plain errors abort immediately.
func (c *RESTClient) doWithRetry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	return backoff.Retry(wrapped, bo)
}

func (c *RESTClient) verifySession(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodGet, "/v1/session", nil, token, nil)
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, body any, token string, out any) error {
	if !c.breaker.Allow() {
		return &RetryableError{Op: method + " " + path, Err: fmt.Errorf("circuit breaker %s", c.breaker.StateString())}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return &RetryableError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(method+" "+path, resp); err != nil {
		if IsRetryable(err) {
			c.breaker.RecordFailure()
		}
		return err
	}

	c.breaker.RecordSuccess()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyStatus maps HTTP statuses onto the error taxonomy: auth failures
// are fatal, rate limits and server errors are retryable, anything else
// 4xx is a plain error.
func classifyStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FatalError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &RetryableError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("%s: status %d", op, resp.StatusCode)
	}
}

func (c *RESTClient) sessionEnabled() bool {
	return !c.cfg.DisableSession && c.cfg.SessionPath != ""
}

func (c *RESTClient) loadSession() (string, bool) {
	if !c.sessionEnabled() {
		return "", false
	}

	raw, err := os.ReadFile(c.cfg.SessionPath)
	if err != nil {
		return "", false
	}

	data := raw
	if len(c.cfg.EncryptionKey) == 32 {
		plain, err := security.DecryptSessionBlob(string(raw), c.cfg.EncryptionKey)
		if err != nil {
			c.log.Warn("session_decrypt_failed", "error", err)
			return "", false
		}
		data = []byte(plain)
	}

	var blob sessionBlob
	if err := json.Unmarshal(data, &blob); err != nil || blob.Token == "" {
		return "", false
	}
	return blob.Token, true
}

func (c *RESTClient) saveSession() {
	if !c.sessionEnabled() {
		return
	}

	blob, err := json.Marshal(sessionBlob{Token: c.token, SavedAt: time.Now().UTC()})
	if err != nil {
		return
	}

	data := blob
	if len(c.cfg.EncryptionKey) == 32 {
		enc, err := security.EncryptSessionBlob(string(blob), c.cfg.EncryptionKey)
		if err != nil {
			c.log.Warn("session_encrypt_failed", "error", err)
			return
		}
		data = []byte(enc)
	}

	if err := os.MkdirAll(filepath.Dir(c.cfg.SessionPath), 0o700); err != nil {
		c.log.Warn("session_dir_failed", "error", err)
		return
	}
	if err := os.WriteFile(c.cfg.SessionPath, data, 0o600); err != nil {
		c.log.Warn("session_persist_failed", "error", err)
		return
	}
	c.log.Debug("session_persisted", "path", c.cfg.SessionPath, "token", logging.MaskSecret(c.token))
}
