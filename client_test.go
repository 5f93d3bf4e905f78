package nextcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps the retry tests quick while exercising the same
// schedule shape as the default policy.
func fastRetry() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     8 * time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}
}

func testSettings(serverURL string) *Settings {
	return &Settings{
		ServerURI:       serverURL + "/",
		ApplicationName: "nextcloud-go-test",
		Username:        "alice",
		Password:        "secret",
		SaveFunc:        func(*Settings) error { return nil },
	}
}

func newTestClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(fastRetry())}, opts...)
	c, err := New(testSettings(serverURL), opts...)
	require.NoError(t, err)
	return c
}

func TestGetSendsFixedHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	env, err := c.Get(context.Background(), "ocs/v1.php/cloud/users", nil)
	require.NoError(t, err)

	assert.Equal(t, true, env["ok"])
	assert.Equal(t, "true", got.Get("OCS-APIRequest"))
	assert.Equal(t, "application/json, text/html, */*", got.Get("Accept"))
	assert.Equal(t, "nextcloud-go-test", got.Get("User-Agent"))
	assert.Contains(t, got.Get("Authorization"), "Basic ")
}

func TestBearerAuthWhenTokenHeld(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	settings := testSettings(srv.URL)
	settings.Username = ""
	settings.Password = ""
	settings.AccessToken = "tok-1"
	settings.TokenExpires = time.Now().Add(time.Hour)
	settings.RefreshIfDueWithin = time.Minute
	c, err := New(settings, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", auth)
}

func TestRetryRecoversFromGatewayErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	env, err := c.Get(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, true, env["ok"])
	assert.Equal(t, int32(4), attempts.Load())
}

func TestRetryGivesUpAtBackoffCeiling(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "x", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	// Delays 1, 2, 4, 8ms are slept; the next computed delay exceeds the
	// 8ms ceiling, so exactly five attempts hit the server.
	assert.Equal(t, int32(5), attempts.Load())
}

func TestRetryResendsStreamBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	// A bytes.Buffer cannot seek, so the pipeline must buffer it; the
	// retried attempt has to carry the same bytes, not an empty body.
	resp, err := c.Send(context.Background(), http.MethodPut,
		srv.URL+"/remote.php/dav/files/alice/a.txt",
		bytes.NewBufferString("precious payload"), nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"precious payload", "precious payload"}, bodies)
}

func TestRetryAfterRateLimit(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRedirectFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"moved":true}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	env, err := c.Get(context.Background(), "old", nil)
	require.NoError(t, err)
	assert.Equal(t, true, env["moved"])
}

func TestOcsFailureBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ocs":{"meta":{"status":"failure","message":"group exists"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "x", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "group exists", apiErr.Message)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Request)
	assert.NotEmpty(t, apiErr.Response)
}

func TestHTTPErrorBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"nope"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "x", nil)
	assert.True(t, IsNotFound(err))
}

func TestTransportErrorWrapped(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Get(context.Background(), "x", nil)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestJSONBodyRoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		When Time   `json:"when"`
	}
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.Post(context.Background(), "x", nil, payload{Name: "n", When: NewTime(when)})
	require.NoError(t, err)

	assert.Equal(t, "n", received["name"])
	assert.Equal(t, float64(when.UnixMilli()), received["when"])
}

func TestContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	settings := testSettings(srv.URL)
	c, err := New(settings, WithRetryPolicy(RetryPolicy{
		InitialBackoff: time.Minute,
		Multiplier:     2,
		MaxBackoff:     time.Hour,
		RateLimitDelay: time.Minute,
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "x", nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAddGetParams(t *testing.T) {
	uri, err := AddGetParams("http://x/api?limit=10&keep=1", map[string]any{
		"limit":  50,
		"search": "bob",
		"empty":  "",
	})
	require.NoError(t, err)

	parsed, err := AddGetParams(uri, nil)
	require.NoError(t, err)
	assert.Equal(t, uri, parsed)
	assert.Contains(t, uri, "limit=50")
	assert.Contains(t, uri, "search=bob")
	assert.Contains(t, uri, "keep=1")
	assert.NotContains(t, uri, "empty")
}

func TestAddGetParamsFromStruct(t *testing.T) {
	req := &ListRequest{Search: "ann", Limit: 25, Offset: 50}
	uri, err := AddGetParams("http://x/api", req)
	require.NoError(t, err)

	assert.Contains(t, uri, "search=ann")
	assert.Contains(t, uri, "limit=25")
	assert.Contains(t, uri, "offset=50")
}

func TestCombineEscapesSegments(t *testing.T) {
	assert.Equal(t, "ocs/v1.php/cloud/users/a%20b", Combine("ocs", "v1.php", "cloud", "users", "a b"))
}
