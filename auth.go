package nextcloud

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	authorizePath = "index.php/apps/oauth2/authorize"
	tokenPath     = "index.php/apps/oauth2/api/v1/token"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

// EnsureAuthenticated makes sure a request can carry valid credentials.
// Basic auth needs no preparation. Otherwise: a missing or expired access
// token triggers the full login flow, and a token due to expire within the
// refresh lead window is refreshed ahead of time. Concurrent callers are
// serialized; only one login or refresh runs at a time.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	s := c.settings
	if s.HasBasicAuth() {
		return nil
	}
	now := time.Now()
	switch {
	case s.AccessToken == "" || !s.TokenExpires.After(now):
		return c.login(ctx)
	case s.RefreshToken != "" && now.Add(s.RefreshLead()).After(s.TokenExpires):
		return c.refresh(ctx)
	}
	return nil
}

// Login runs the OAuth2 authorization-code flow regardless of current
// token state: open the authorization URL in a browser, wait for the
// loopback redirect, exchange the code.
func (c *Client) Login(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	s := c.settings
	if c.awaitCode == nil {
		return &AuthenticationError{Message: "no redirect_uri configured and no basic credentials set"}
	}
	state := uuid.NewString()
	conf := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.MakeURI(authorizePath),
			TokenURL: s.MakeURI(tokenPath),
		},
	}
	authURL := conf.AuthCodeURL(state)
	c.log.Info("opening browser for authorization", "url", authURL)
	if err := c.openBrowser(authURL); err != nil {
		return &AuthenticationError{Message: "cannot open browser: " + err.Error()}
	}

	code, err := c.awaitCode(ctx, state)
	if err != nil {
		return err
	}
	return c.exchange(ctx, map[string]any{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  s.RedirectURI,
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
	})
}

func (c *Client) refresh(ctx context.Context) error {
	s := c.settings
	c.log.Debug("refreshing access token", "expires", s.TokenExpires)
	err := c.exchange(ctx, map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": s.RefreshToken,
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// The server rejected the refresh token; an interactive login
		// can still succeed.
		c.log.Warn("token refresh rejected, falling back to login", "status", apiErr.StatusCode)
		return c.login(ctx)
	}
	return err
}

// exchange POSTs to the token endpoint through the shared pipeline and
// applies the result to the settings.
func (c *Client) exchange(ctx context.Context, params map[string]any) error {
	uri := c.settings.MakeURI(tokenPath)
	resp, err := c.Send(ctx, http.MethodPost, uri, params, nil)
	if err != nil {
		return err
	}
	env, err := c.parseEnvelope(uri, resp)
	if err != nil {
		return err
	}
	tok, err := Decode[tokenResponse](map[string]any(env))
	if err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return &AuthenticationError{Message: "token endpoint returned no access token"}
	}
	return c.updateToken(tok)
}

// updateToken writes the new credential state through to persistence.
// A response without a refresh token keeps the previous one.
func (c *Client) updateToken(tok tokenResponse) error {
	s := c.settings
	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	s.mu.Lock()
	s.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	if tok.UserID != "" {
		s.User = tok.UserID
	}
	s.TokenExpires = time.Now().Add(expiresIn)
	user, expires := s.User, s.TokenExpires
	s.mu.Unlock()
	c.log.Info("token updated", "user", user, "expires", expires)
	return s.Save()
}
