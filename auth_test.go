package nextcloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer fakes the OAuth2 token endpoint and records the grants it
// saw.
type tokenServer struct {
	*httptest.Server
	grants   []map[string]any
	respond  func(grant map[string]any) map[string]any
	requests atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		respond: func(map[string]any) map[string]any {
			return map[string]any{
				"access_token":  "new-access",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "new-refresh",
				"user_id":       "alice",
			}
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/index.php/apps/oauth2/api/v1/token", func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		var grant map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&grant))
		ts.grants = append(ts.grants, grant)
		json.NewEncoder(w).Encode(ts.respond(grant))
	})
	ts.Server = httptest.NewServer(mux)
	return ts
}

func oauthSettings(serverURL string, saves *int) *Settings {
	return &Settings{
		ServerURI:       serverURL + "/",
		ApplicationName: "nextcloud-go-test",
		ClientID:        "cid",
		ClientSecret:    "csecret",
		RedirectURI:     "http://127.0.0.1:0/",
		SaveFunc: func(*Settings) error {
			if saves != nil {
				*saves++
			}
			return nil
		},
	}
}

func TestEnsureAuthenticatedBasicAuthIsNoop(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	require.NoError(t, c.EnsureAuthenticated(context.Background()))
	assert.Zero(t, ts.requests.Load())
}

func TestEnsureAuthenticatedValidTokenIsNoop(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	settings := oauthSettings(ts.URL, nil)
	settings.AccessToken = "held"
	settings.RefreshToken = "r1"
	settings.TokenExpires = time.Now().Add(2 * time.Hour)
	settings.RefreshIfDueWithin = time.Hour

	c, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, c.EnsureAuthenticated(context.Background()))
	assert.Zero(t, ts.requests.Load())
	assert.Equal(t, "held", settings.AccessToken)
}

func TestLoginFlow(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	saves := 0
	settings := oauthSettings(ts.URL, &saves)

	var authURL string
	var awaitedState string
	c, err := New(settings,
		WithBrowserOpener(func(u string) error {
			authURL = u
			return nil
		}),
		WithRedirectWaiter(func(ctx context.Context, state string) (string, error) {
			awaitedState = state
			return "the-code", nil
		}),
	)
	require.NoError(t, err)

	require.NoError(t, c.EnsureAuthenticated(context.Background()))

	// The authorization URL carries the client registration and the state
	// handed to the listener.
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, settings.RedirectURI, q.Get("redirect_uri"))
	assert.NotEmpty(t, q.Get("state"))
	assert.Equal(t, q.Get("state"), awaitedState)

	// The exchange carried the code.
	require.Len(t, ts.grants, 1)
	assert.Equal(t, "authorization_code", ts.grants[0]["grant_type"])
	assert.Equal(t, "the-code", ts.grants[0]["code"])
	assert.Equal(t, "csecret", ts.grants[0]["client_secret"])

	// Settings were updated and written through.
	assert.Equal(t, "new-access", settings.AccessToken)
	assert.Equal(t, "new-refresh", settings.RefreshToken)
	assert.Equal(t, "alice", settings.User)
	assert.WithinDuration(t, time.Now().Add(time.Hour), settings.TokenExpires, time.Minute)
	assert.Equal(t, 1, saves)
}

func TestRefreshFlow(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	saves := 0
	settings := oauthSettings(ts.URL, &saves)
	settings.AccessToken = "old-access"
	settings.RefreshToken = "old-refresh"
	settings.TokenExpires = time.Now().Add(time.Hour)

	c, err := New(settings)
	require.NoError(t, err)

	// Expiry is inside the default 24h lead window, so this refreshes.
	require.NoError(t, c.EnsureAuthenticated(context.Background()))

	require.Len(t, ts.grants, 1)
	assert.Equal(t, "refresh_token", ts.grants[0]["grant_type"])
	assert.Equal(t, "old-refresh", ts.grants[0]["refresh_token"])
	assert.Equal(t, "new-access", settings.AccessToken)
	assert.Equal(t, 1, saves)
}

func TestRefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()
	ts.respond = func(map[string]any) map[string]any {
		return map[string]any{"access_token": "new-access", "expires_in": 60}
	}

	settings := oauthSettings(ts.URL, nil)
	settings.AccessToken = "old-access"
	settings.RefreshToken = "keep-me"
	settings.TokenExpires = time.Now().Add(time.Hour)

	c, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, c.EnsureAuthenticated(context.Background()))

	assert.Equal(t, "keep-me", settings.RefreshToken)
}

func TestExchangeWithoutAccessTokenFails(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()
	ts.respond = func(map[string]any) map[string]any {
		return map[string]any{"error": "invalid_grant"}
	}

	settings := oauthSettings(ts.URL, nil)
	c, err := New(settings,
		WithBrowserOpener(func(string) error { return nil }),
		WithRedirectWaiter(func(context.Context, string) (string, error) { return "c", nil }),
	)
	require.NoError(t, err)

	err = c.EnsureAuthenticated(context.Background())
	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestExpiryFallbackWhenExpiresInMissing(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()
	ts.respond = func(map[string]any) map[string]any {
		return map[string]any{"access_token": "a"}
	}

	settings := oauthSettings(ts.URL, nil)
	c, err := New(settings,
		WithBrowserOpener(func(string) error { return nil }),
		WithRedirectWaiter(func(context.Context, string) (string, error) { return "c", nil }),
	)
	require.NoError(t, err)
	require.NoError(t, c.EnsureAuthenticated(context.Background()))

	assert.WithinDuration(t, time.Now().Add(24*time.Hour), settings.TokenExpires, time.Minute)
}

func TestRejectedRefreshFallsBackToLogin(t *testing.T) {
	mux := http.NewServeMux()
	var grants []map[string]any
	mux.HandleFunc("/index.php/apps/oauth2/api/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var grant map[string]any
		json.NewDecoder(r.Body).Decode(&grant)
		grants = append(grants, grant)
		if grant["grant_type"] == "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "expires_in": 60})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	settings := oauthSettings(srv.URL, nil)
	settings.AccessToken = "old"
	settings.RefreshToken = "dead"
	settings.TokenExpires = time.Now().Add(time.Hour)

	c, err := New(settings,
		WithBrowserOpener(func(string) error { return nil }),
		WithRedirectWaiter(func(context.Context, string) (string, error) { return "c2", nil }),
	)
	require.NoError(t, err)
	require.NoError(t, c.EnsureAuthenticated(context.Background()))

	require.Len(t, grants, 2)
	assert.Equal(t, "refresh_token", grants[0]["grant_type"])
	assert.Equal(t, "authorization_code", grants[1]["grant_type"])
	assert.Equal(t, "fresh", settings.AccessToken)
}

func TestConcurrentRequestsDuringRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.php/apps/oauth2/api/v1/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "rotated",
			"expires_in":    172800,
			"refresh_token": "r2",
		})
	})
	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	settings := oauthSettings(srv.URL, nil)
	settings.AccessToken = "old"
	settings.RefreshToken = "r1"
	settings.TokenExpires = time.Now().Add(time.Hour)

	c, err := New(settings)
	require.NoError(t, err)

	// Requests racing the token rotation must neither fail nor observe a
	// torn token value. Run under -race.
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				if _, err := c.Get(context.Background(), "x", nil); err != nil {
					errs[i] = err
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, "rotated", settings.bearerToken())
}

func TestExpiredTokenTriggersLogin(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	settings := oauthSettings(ts.URL, nil)
	settings.AccessToken = "stale"
	settings.RefreshToken = "r"
	settings.TokenExpires = time.Now().Add(-time.Minute)

	c, err := New(settings,
		WithBrowserOpener(func(string) error { return nil }),
		WithRedirectWaiter(func(context.Context, string) (string, error) { return "c3", nil }),
	)
	require.NoError(t, err)
	require.NoError(t, c.EnsureAuthenticated(context.Background()))

	require.Len(t, ts.grants, 1)
	assert.Equal(t, "authorization_code", ts.grants[0]["grant_type"])
}
