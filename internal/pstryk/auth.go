package pstryk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	loginPath   = "/auth/token/"
	refreshPath = "/auth/refresh"
	meterPath   = "/api/me"
)

// DefaultTokenValidity is how long an access token is trusted before the
// manager refreshes it. The upstream has been observed handing out both
// 10-minute and 1-hour tokens depending on revision, so it is configurable.
const DefaultTokenValidity = 10 * time.Minute

// Credentials holds the current token pair and its expiry.
type Credentials struct {
	Access    string
	Refresh   string
	ExpiresAt time.Time
}

// TokenManager owns the account credentials: login, refresh and expiry
// tracking. All mutation happens under one mutex so concurrent callers of
// EnsureValid can never corrupt the stored pair.
type TokenManager struct {
	email      string
	password   string
	baseURL    string
	validity   time.Duration
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	creds   Credentials
	meterID string
}

type TokenManagerConfig struct {
	BaseURL       string
	Email         string
	Password      string
	TokenValidity time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	if cfg.TokenValidity <= 0 {
		cfg.TokenValidity = DefaultTokenValidity
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TokenManager{
		email:      cfg.Email,
		password:   cfg.Password,
		baseURL:    cfg.BaseURL,
		validity:   cfg.TokenValidity,
		httpClient: cfg.HTTPClient,
		log:        cfg.Logger.With("component", "tokens"),
		now:        time.Now,
	}
}

// Authenticate performs a full login and replaces the stored token pair.
func (m *TokenManager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticateLocked(ctx)
}

func (m *TokenManager) authenticateLocked(ctx context.Context) error {
	body, err := m.postJSON(ctx, loginPath, map[string]string{
		"email":    m.email,
		"password": m.password,
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return &AuthError{StatusCode: fe.StatusCode, Err: fe.Err}
		}
		return &AuthError{Err: err}
	}

	var pair tokenPairResponse
	if err := json.Unmarshal(body, &pair); err != nil {
		return &AuthError{Err: &ParseError{Err: err}}
	}
	if pair.Access == "" {
		return &AuthError{Err: fmt.Errorf("login response carried no access token")}
	}

	m.creds = Credentials{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		ExpiresAt: m.now().Add(m.validity),
	}
	m.log.Info("authenticated", "expires_at", m.creds.ExpiresAt)
	return nil
}

// Refresh posts the refresh token and, on success, replaces the access
// token and resets its expiry. On failure it returns false and leaves the
// stored credentials untouched.
func (m *TokenManager) Refresh(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *TokenManager) refreshLocked(ctx context.Context) bool {
	if m.creds.Refresh == "" {
		return false
	}

	body, err := m.postJSON(ctx, refreshPath, map[string]string{
		"refresh": m.creds.Refresh,
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			err = &RefreshError{StatusCode: fe.StatusCode, Err: fe.Err}
		}
		m.log.Warn("token refresh failed", "error", err)
		return false
	}

	var resp accessTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		m.log.Warn("token refresh returned unusable body", "error", &RefreshError{Err: err})
		return false
	}
	if resp.Access == "" {
		m.log.Warn("token refresh returned unusable body", "error", &RefreshError{Err: fmt.Errorf("no access token in response")})
		return false
	}

	m.creds.Access = resp.Access
	m.creds.ExpiresAt = m.now().Add(m.validity)
	m.log.Debug("access token refreshed", "expires_at", m.creds.ExpiresAt)
	return true
}

// EnsureValid returns an access token that is good for at least one
// request. With an unexpired token it performs zero network calls; with an
// expired one it tries a refresh first and falls back to a full login.
// Safe to call concurrently.
func (m *TokenManager) EnsureValid(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds.Access != "" && m.now().Before(m.creds.ExpiresAt) {
		return m.creds.Access, nil
	}

	if m.refreshLocked(ctx) {
		return m.creds.Access, nil
	}

	if err := m.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return m.creds.Access, nil
}

// ResolveMeterID fetches the meter identity from the account endpoint once
// and caches it for the lifetime of the session.
func (m *TokenManager) ResolveMeterID(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.meterID != "" {
		id := m.meterID
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	token, err := m.EnsureValid(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+meterPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{Endpoint: meterPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Endpoint: meterPath, StatusCode: resp.StatusCode}
	}

	var meters []meterRecord
	if err := json.NewDecoder(resp.Body).Decode(&meters); err != nil {
		return "", &ParseError{Err: err}
	}
	if len(meters) == 0 || meters[0].ID.String() == "" {
		return "", &FetchError{Endpoint: meterPath, Err: fmt.Errorf("no meter records in response")}
	}

	m.mu.Lock()
	m.meterID = meters[0].ID.String()
	id := m.meterID
	m.mu.Unlock()

	m.log.Info("meter identity resolved", "meter_id", id)
	return id, nil
}

// Credentials returns a copy of the stored credentials.
func (m *TokenManager) Credentials() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

func (m *TokenManager) postJSON(ctx context.Context, path string, payload map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Endpoint: path, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Endpoint: path, StatusCode: resp.StatusCode}
	}
	return body, nil
}
