package nextcloud

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// RedirectListener waits for the browser to land on the loopback redirect
// URI after the user authorizes the application. It speaks just enough
// HTTP over a raw TCP socket to read the request line and answer with a
// small page, because the interesting part (the code and state query
// parameters) is in the request line alone.
type RedirectListener struct {
	mu       sync.Mutex
	addr     string
	page     string
	sendTo   string
	log      hclog.Logger
	listener net.Listener
}

// NewRedirectListener builds a listener bound to the host and port of the
// settings' redirect URI.
func NewRedirectListener(settings *Settings, log hclog.Logger) (*RedirectListener, error) {
	u, err := url.Parse(settings.RedirectURI)
	if err != nil || u.Host == "" {
		return nil, &ValidationError{Message: fmt.Sprintf("redirect_uri %q is not a valid URI", settings.RedirectURI)}
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "80"
	}
	page := settings.PageToSendAfterLogin
	if page == "" {
		page = defaultLoginPage(settings.ApplicationName)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &RedirectListener{
		addr:   net.JoinHostPort(host, port),
		page:   page,
		sendTo: settings.RedirectAfterLogin,
		log:    log,
	}, nil
}

// Start binds the socket. Await starts automatically when not already
// listening; Start exists so callers can bind before opening the browser
// and report bind failures early.
func (l *RedirectListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return &TransportError{URL: "http://" + l.addr, Err: err}
	}
	l.listener = ln
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (l *RedirectListener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return l.addr
	}
	return l.listener.Addr().String()
}

// Close releases the socket. Await returns ctx.Err-style failure if still
// blocked.
func (l *RedirectListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.listener = nil
	return err
}

// Await blocks until a connection delivers an authorization code, the
// context is cancelled, or a state mismatch is detected. Connections
// without a code parameter (favicon requests, probes) are answered and
// ignored. When expectedState is non-empty the redirect must carry the
// same state or the code is rejected with a SecurityError.
func (l *RedirectListener) Await(ctx context.Context, expectedState string) (string, error) {
	if err := l.Start(); err != nil {
		return "", err
	}
	defer l.Close()

	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-watchDone:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &TransportError{URL: "http://" + l.addr, Err: err}
		}
		code, err := l.handle(conn, expectedState)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
		l.log.Debug("redirect listener ignored connection without code")
	}
}

// handle reads one request up to the blank line, replies, and extracts the
// code from the request line if present.
func (l *RedirectListener) handle(conn net.Conn, expectedState string) (string, error) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var sb strings.Builder
	buf := make([]byte, 1024)
	for !strings.Contains(sb.String(), "\r\n\r\n") && !strings.Contains(sb.String(), "\n\n") {
		n, err := conn.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	request := sb.String()
	l.writeReply(conn)

	// The request line reads "GET /?state=...&code=... HTTP/1.1"; the
	// target is its second field.
	line, _, _ := strings.Cut(request, "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", nil
	}
	target, err := url.Parse(fields[1])
	if err != nil {
		return "", nil
	}
	query := target.Query()
	code := query.Get("code")
	if code == "" {
		return "", nil
	}
	if expectedState != "" && query.Get("state") != expectedState {
		return "", &SecurityError{Expected: expectedState}
	}
	return code, nil
}

func (l *RedirectListener) writeReply(conn net.Conn) {
	var reply string
	if l.sendTo != "" {
		reply = fmt.Sprintf("HTTP/1.1 303 See Other\r\nLocation: %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", l.sendTo)
	} else {
		reply = fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", len(l.page), l.page)
	}
	if _, err := conn.Write([]byte(reply)); err != nil {
		l.log.Debug("redirect listener reply failed", "error", err)
	}
}

func defaultLoginPage(appName string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body>
<h1>Thank you</h1>
<p>%[1]s now has access to your account. You can close this window.</p>
</body>
</html>`, appName)
}
