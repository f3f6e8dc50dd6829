package pstryk

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// MockRoundTripper is a mock implementation of http.RoundTripper.
type MockRoundTripper struct {
	Handler func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestTokenManager(rt http.RoundTripper) *TokenManager {
	return NewTokenManager(TokenManagerConfig{
		BaseURL:       "https://api.test",
		Email:         "user@example.com",
		Password:      "secret",
		TokenValidity: 10 * time.Minute,
		HTTPClient:    &http.Client{Transport: rt},
	})
}

func TestAuthenticateStoresTokensAndExpiry(t *testing.T) {
	var calls int
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			calls++
			require.Equal(t, loginPath, req.URL.Path)
			require.Equal(t, http.MethodPost, req.Method)
			return jsonResponse(200, `{"access":"a1","refresh":"r1"}`), nil
		},
	})
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return t0 }

	require.NoError(t, m.Authenticate(context.Background()))

	creds := m.Credentials()
	require.Equal(t, "a1", creds.Access)
	require.Equal(t, "r1", creds.Refresh)
	require.Equal(t, t0.Add(10*time.Minute), creds.ExpiresAt)
	require.Equal(t, 1, calls)
}

func TestAuthenticateNon200(t *testing.T) {
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(401, `{"detail":"bad credentials"}`), nil
		},
	})

	err := m.Authenticate(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 401, authErr.StatusCode)
	require.Empty(t, m.Credentials().Access)
}

func TestEnsureValidUnexpiredMakesNoNetworkCalls(t *testing.T) {
	var calls int
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(500, `{}`), nil
		},
	})
	t0 := time.Now()
	m.now = func() time.Time { return t0 }
	m.creds = Credentials{Access: "a1", Refresh: "r1", ExpiresAt: t0.Add(5 * time.Minute)}

	token, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a1", token)
	require.Equal(t, 0, calls)
}

func TestEnsureValidExpiredRefreshesNotReauthenticates(t *testing.T) {
	var refreshCalls, loginCalls int
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			switch req.URL.Path {
			case refreshPath:
				refreshCalls++
				body, _ := io.ReadAll(req.Body)
				require.Contains(t, string(body), `"refresh":"r1"`)
				return jsonResponse(200, `{"access":"a2"}`), nil
			case loginPath:
				loginCalls++
				return jsonResponse(200, `{"access":"ax","refresh":"rx"}`), nil
			}
			return jsonResponse(404, `{}`), nil
		},
	})
	t0 := time.Now()
	m.now = func() time.Time { return t0 }
	m.creds = Credentials{Access: "a1", Refresh: "r1", ExpiresAt: t0.Add(-time.Second)}

	token, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a2", token)
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, 0, loginCalls)
	require.Equal(t, t0.Add(10*time.Minute), m.Credentials().ExpiresAt)
}

func TestEnsureValidFallsBackToLoginWhenRefreshFails(t *testing.T) {
	var refreshCalls, loginCalls int
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			switch req.URL.Path {
			case refreshPath:
				refreshCalls++
				return jsonResponse(401, `{}`), nil
			case loginPath:
				loginCalls++
				return jsonResponse(200, `{"access":"a3","refresh":"r3"}`), nil
			}
			return jsonResponse(404, `{}`), nil
		},
	})
	t0 := time.Now()
	m.now = func() time.Time { return t0 }
	m.creds = Credentials{Access: "a1", Refresh: "r1", ExpiresAt: t0.Add(-time.Minute)}

	token, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a3", token)
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, 1, loginCalls)
}

func TestRefreshFailureLeavesCredentialsUntouched(t *testing.T) {
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(503, `{}`), nil
		},
	})
	before := Credentials{Access: "a1", Refresh: "r1", ExpiresAt: time.Now().Add(time.Minute)}
	m.creds = before

	require.False(t, m.Refresh(context.Background()))
	require.Equal(t, before, m.Credentials())
}

func TestResolveMeterIDCachesResult(t *testing.T) {
	var meterCalls int
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			require.Equal(t, meterPath, req.URL.Path)
			require.Equal(t, "Bearer a1", req.Header.Get("Authorization"))
			meterCalls++
			return jsonResponse(200, `[{"id":3019,"name":"home"}]`), nil
		},
	})
	t0 := time.Now()
	m.now = func() time.Time { return t0 }
	m.creds = Credentials{Access: "a1", ExpiresAt: t0.Add(time.Hour)}

	id, err := m.ResolveMeterID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "3019", id)

	id, err = m.ResolveMeterID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "3019", id)
	require.Equal(t, 1, meterCalls)
}

func TestResolveMeterIDEmptyList(t *testing.T) {
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(200, `[]`), nil
		},
	})
	t0 := time.Now()
	m.now = func() time.Time { return t0 }
	m.creds = Credentials{Access: "a1", ExpiresAt: t0.Add(time.Hour)}

	_, err := m.ResolveMeterID(context.Background())
	require.Error(t, err)
}

func TestTokenLifecycleScenario(t *testing.T) {
	var refreshCalls int
	m := newTestTokenManager(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			switch req.URL.Path {
			case loginPath:
				return jsonResponse(200, `{"access":"a1","refresh":"r1"}`), nil
			case refreshPath:
				refreshCalls++
				return jsonResponse(200, `{"access":"a2"}`), nil
			}
			return jsonResponse(404, `{}`), nil
		},
	})
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	now := t0
	m.now = func() time.Time { return now }

	require.NoError(t, m.Authenticate(context.Background()))
	require.Equal(t, t0.Add(10*time.Minute), m.Credentials().ExpiresAt)

	// one second later the stored token is used directly
	now = t0.Add(time.Second)
	token, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a1", token)
	require.Equal(t, 0, refreshCalls)

	// eleven minutes later exactly one refresh happens
	now = t0.Add(11 * time.Minute)
	token, err = m.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a2", token)
	require.Equal(t, 1, refreshCalls)
}
