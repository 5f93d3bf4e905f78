package nextcloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/browser"
	"golang.org/x/time/rate"
)

// WebDAV methods the standard library has no constants for.
const (
	MethodPropfind  = "PROPFIND"
	MethodProppatch = "PROPPATCH"
	MethodMkcol     = "MKCOL"
	MethodMove      = "MOVE"
	MethodCopy      = "COPY"
	MethodReport    = "REPORT"
)

// RetryPolicy bounds the pipeline's automatic retries. The zero value is
// not usable; start from DefaultRetryPolicy.
type RetryPolicy struct {
	// InitialBackoff is the first 502/503/504 delay; each further attempt
	// multiplies it by Multiplier until the next computed delay would
	// exceed MaxBackoff, at which point the response is returned as-is.
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration

	// RateLimitDelay is slept before retrying after a 429.
	RateLimitDelay time.Duration
}

// DefaultRetryPolicy returns the stock schedule: 500ms doubling up to 16s
// for gateway errors, 5s for rate limiting.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     16 * time.Second,
		RateLimitDelay: 5 * time.Second,
	}
}

// PreEncoded is a request body that bypasses JSON encoding, for callers
// that build their own multipart or form payloads.
type PreEncoded struct {
	ContentType string
	Body        io.Reader
}

// RawXML is a request body sent verbatim as application/xml.
type RawXML []byte

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the log sink. The default discards everything.
func WithLogger(log hclog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient replaces the underlying HTTP client. Redirect following
// is disabled on it so the pipeline keeps control of 3xx handling.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy replaces the retry schedule.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithRateLimiter installs a proactive limiter waited on before every
// attempt, on top of the reactive 429 handling.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBrowserOpener replaces the action that presents the authorization
// URL to the user. The default opens the system browser.
func WithBrowserOpener(open func(url string) error) Option {
	return func(c *Client) { c.openBrowser = open }
}

// WithRedirectWaiter replaces the redirect listener used during login.
func WithRedirectWaiter(await func(ctx context.Context, state string) (string, error)) Option {
	return func(c *Client) { c.awaitCode = await }
}

// Client is a Nextcloud API client: one request pipeline shared by the
// JSON/OCS surface, the WebDAV surface and the token endpoint.
type Client struct {
	settings    *Settings
	http        *http.Client
	log         hclog.Logger
	retry       RetryPolicy
	limiter     *rate.Limiter
	openBrowser func(string) error
	awaitCode   func(context.Context, string) (string, error)

	authMu sync.Mutex

	lastMu       sync.Mutex
	lastRequest  string
	lastResponse string
}

// New validates the settings and builds a client.
func New(settings *Settings, opts ...Option) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		settings:    settings,
		log:         hclog.NewNullLogger(),
		retry:       DefaultRetryPolicy(),
		openBrowser: browser.OpenURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Jar: jar}
	}
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if c.awaitCode == nil && settings.RedirectURI != "" {
		listener, err := NewRedirectListener(settings, c.log)
		if err != nil {
			return nil, err
		}
		c.awaitCode = listener.Await
	}
	return c, nil
}

// Settings returns the client's settings.
func (c *Client) Settings() *Settings { return c.settings }

// LastRequest returns a text rendering of the most recent request, for
// error reports.
func (c *Client) LastRequest() string {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastRequest
}

// LastResponse returns the most recent response status and body.
func (c *Client) LastResponse() string {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastResponse
}

// Get issues an authenticated GET and normalizes the response.
func (c *Client) Get(ctx context.Context, path string, query any) (Envelope, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, query, body any) (Envelope, error) {
	return c.do(ctx, http.MethodPost, path, query, body)
}

// Put issues an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, query, body any) (Envelope, error) {
	return c.do(ctx, http.MethodPut, path, query, body)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string, query any) (Envelope, error) {
	return c.do(ctx, http.MethodDelete, path, query, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query, body any) (Envelope, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	uri, err := AddGetParams(c.settings.MakeURI(path), query)
	if err != nil {
		return nil, err
	}
	resp, err := c.Send(ctx, method, uri, body, nil)
	if err != nil {
		return nil, err
	}
	return c.parseEnvelope(uri, resp)
}

// DAV issues an authenticated request and parses the XML response body.
// An empty body is tolerated: the headers fallback envelope is converted
// back into a synthetic <headers> document so PUT/MKCOL responses that
// carry their result in headers remain readable.
func (c *Client) DAV(ctx context.Context, method, path string, body any, headers map[string]string) (*XMLNode, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	uri := c.settings.MakeURI(path)
	resp, err := c.Send(ctx, method, uri, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	c.recordResponseBody(resp, data)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp.StatusCode, fmt.Sprintf("%s %s returned %s", method, uri, resp.Status))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = headersDocument(resp)
	}
	return ParseXML(data)
}

// Download issues an authenticated GET and returns the raw body stream.
// The caller owns closing it.
func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	uri := c.settings.MakeURI(path)
	resp, err := c.Send(ctx, http.MethodGet, uri, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		c.recordResponseBody(resp, data)
		return nil, c.apiError(resp.StatusCode, fmt.Sprintf("GET %s returned %s", uri, resp.Status))
	}
	return resp.Body, nil
}

// Send runs one request through the retry pipeline and returns the final
// response without interpreting the body. Callers own the body. 3xx
// responses are followed, 429 waits out the rate limit, and 502/503/504
// back off exponentially until the policy's ceiling; the last response is
// returned once retries are exhausted.
func (c *Client) Send(ctx context.Context, method, uri string, body any, headers map[string]string) (*http.Response, error) {
	var err error
	body, err = rewindableBody(uri, body)
	if err != nil {
		return nil, err
	}

	bk := backoff.NewExponentialBackOff()
	bk.InitialInterval = c.retry.InitialBackoff
	bk.RandomizationFactor = 0
	bk.Multiplier = c.retry.Multiplier
	bk.MaxInterval = 2 * c.retry.MaxBackoff
	bk.MaxElapsedTime = 0
	bk.Reset()

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, desc, err := c.newRequest(ctx, method, uri, body, headers)
		if err != nil {
			return nil, err
		}
		c.recordRequest(req, desc)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &TransportError{URL: uri, Err: err}
		}
		c.recordResponseStatus(resp)

		var delay time.Duration
		switch {
		case resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != "":
			loc, err := req.URL.Parse(resp.Header.Get("Location"))
			if err != nil {
				return resp, nil
			}
			c.log.Debug("following redirect", "status", resp.StatusCode, "location", loc.String())
			uri = loc.String()
		case resp.StatusCode == http.StatusTooManyRequests:
			delay = c.retry.RateLimitDelay
			c.log.Debug("rate limited, waiting", "delay", delay)
		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			delay = bk.NextBackOff()
			if delay == backoff.Stop || delay > c.retry.MaxBackoff {
				return resp, nil
			}
			c.log.Debug("server unavailable, backing off", "status", resp.StatusCode, "delay", delay)
		default:
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// rewindableBody makes retries safe: a plain reader is consumed by the
// first attempt, so it is buffered once and every attempt replays the same
// bytes. Seekable bodies are rewound per attempt instead.
func rewindableBody(uri string, body any) (any, error) {
	switch b := body.(type) {
	case *PreEncoded:
		buffered, err := bufferReader(uri, b.Body)
		if err != nil {
			return nil, err
		}
		return &PreEncoded{ContentType: b.ContentType, Body: buffered}, nil
	case PreEncoded:
		buffered, err := bufferReader(uri, b.Body)
		if err != nil {
			return nil, err
		}
		return PreEncoded{ContentType: b.ContentType, Body: buffered}, nil
	case io.ReadSeeker:
		return body, nil
	case io.Reader:
		return bufferReader(uri, b)
	default:
		return body, nil
	}
}

// bufferReader returns r unchanged when it can seek, otherwise reads it
// fully into memory.
func bufferReader(uri string, r io.Reader) (io.Reader, error) {
	if r == nil {
		return nil, nil
	}
	if _, ok := r.(io.ReadSeeker); ok {
		return r, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	return bytes.NewReader(data), nil
}

// rewind seeks a seekable reader back to the start.
func rewind(uri string, r io.Reader) error {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return &TransportError{URL: uri, Err: err}
	}
	return nil
}

// newRequest encodes the body by kind and stamps the fixed headers.
func (c *Client) newRequest(ctx context.Context, method, uri string, body any, headers map[string]string) (*http.Request, string, error) {
	var (
		reader      io.Reader
		desc        string
		contentType string
		length      int64 = -1
		disposition string
	)
	switch b := body.(type) {
	case nil:
	case *PreEncoded:
		if err := rewind(uri, b.Body); err != nil {
			return nil, "", err
		}
		reader = b.Body
		contentType = b.ContentType
		desc = "pre-encoded " + b.ContentType
	case PreEncoded:
		if err := rewind(uri, b.Body); err != nil {
			return nil, "", err
		}
		reader = b.Body
		contentType = b.ContentType
		desc = "pre-encoded " + b.ContentType
	case RawXML:
		reader = bytes.NewReader(b)
		contentType = "application/xml"
		desc = string(b)
	case *os.File:
		if _, err := b.Seek(0, io.SeekStart); err != nil {
			return nil, "", &TransportError{URL: uri, Err: err}
		}
		info, err := b.Stat()
		if err != nil {
			return nil, "", &TransportError{URL: uri, Err: err}
		}
		length = info.Size()
		name := filepath.Base(b.Name())
		if contentType = mime.TypeByExtension(filepath.Ext(name)); contentType == "" {
			contentType = "application/octet-stream"
		}
		disposition = fmt.Sprintf("attachment; filename=%q", name)
		reader = b
		desc = "file " + name
	case io.ReadSeeker:
		if _, err := b.Seek(0, io.SeekStart); err != nil {
			return nil, "", &TransportError{URL: uri, Err: err}
		}
		reader = b
		contentType = "application/octet-stream"
		desc = "stream"
	case io.Reader:
		reader = b
		contentType = "application/octet-stream"
		desc = "stream"
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
		desc = string(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, "", &TransportError{URL: uri, Err: err}
	}
	if length >= 0 {
		req.ContentLength = length
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if disposition != "" {
		req.Header.Set("Content-Disposition", disposition)
	}

	s := c.settings
	if s.HasBasicAuth() {
		cred := base64.StdEncoding.EncodeToString([]byte(s.Username + ":" + s.Password))
		req.Header.Set("Authorization", "Basic "+cred)
	} else if tok := s.bearerToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("User-Agent", s.ApplicationName)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, desc, nil
}

// parseEnvelope consumes the response body, normalizes it and decides
// success: a 2xx status unless the ocs meta block says "failure".
func (c *Client) parseEnvelope(uri string, resp *http.Response) (Envelope, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	c.recordResponseBody(resp, data)

	env := newEnvelope(uri, resp, data)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	message := resp.Status
	if msg, failed := env.ocsFailure(); failed {
		success = false
		message = msg
	}
	if !success {
		return nil, c.apiError(resp.StatusCode, message)
	}
	return env, nil
}

func (c *Client) apiError(status int, message string) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    message,
		Request:    c.LastRequest(),
		Response:   c.LastResponse(),
	}
}

func (c *Client) recordRequest(req *http.Request, body string) {
	text := req.Method + " " + req.URL.String()
	if body != "" {
		text += "\n" + body
	}
	c.lastMu.Lock()
	c.lastRequest = text
	c.lastResponse = ""
	c.lastMu.Unlock()
	if c.settings.LogRequest > 0 {
		if c.settings.LogRequest > 1 {
			c.log.Debug("request", "method", req.Method, "uri", req.URL.String(), "body", body)
		} else {
			c.log.Debug("request", "method", req.Method, "uri", req.URL.String())
		}
	}
}

func (c *Client) recordResponseStatus(resp *http.Response) {
	c.lastMu.Lock()
	c.lastResponse = resp.Status
	c.lastMu.Unlock()
	if c.settings.LogResult > 0 {
		c.log.Debug("response", "status", resp.Status)
	}
}

func (c *Client) recordResponseBody(resp *http.Response, body []byte) {
	c.lastMu.Lock()
	c.lastResponse = resp.Status + "\n" + string(body)
	c.lastMu.Unlock()
	if c.settings.LogResult > 1 {
		c.log.Debug("response body", "status", resp.Status, "body", string(body))
	}
}

// headersDocument renders response headers as an XML document, the shape
// callers see when a DAV operation answers with an empty body.
func headersDocument(resp *http.Response) []byte {
	var buf bytes.Buffer
	buf.WriteString("<headers>")
	names := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&buf, "<%s>%s</%s>", k, xmlEscape(resp.Header.Get(k)), k)
	}
	buf.WriteString("</headers>")
	return buf.Bytes()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// AddGetParams merges params (a struct or map rendered through JSON tags)
// into the query string of uri, replacing existing keys. Nil and empty
// string values remove the key.
func AddGetParams(uri string, params any) (string, error) {
	if params == nil {
		return uri, nil
	}
	m, err := toMap(params)
	if err != nil {
		return "", err
	}
	if len(m) == 0 {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("bad uri %q: %v", uri, err)}
	}
	q := u.Query()
	for k, v := range m {
		if v == nil || v == "" {
			q.Del(k)
			continue
		}
		q.Set(k, paramString(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func paramString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(v)
	}
}

// toMap renders a value through its JSON representation so query parameter
// names follow the same tags as body fields.
func toMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("nextcloud: query parameters must be an object, got %s", string(data))
	}
	return m, nil
}

// Combine joins path segments with "/", escaping each.
func Combine(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = url.PathEscape(p)
	}
	return strings.Join(out, "/")
}
