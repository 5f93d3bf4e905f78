package nextcloud

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DefaultRefreshLead is how far ahead of expiry a token refresh is
// attempted when Settings.RefreshIfDueWithin is unset.
const DefaultRefreshLead = 24 * time.Hour

// Settings holds the server coordinates, OAuth2 client registration and the
// persisted credential state. It is both configuration and mutable state:
// the credential manager writes tokens back through Save after every
// successful exchange.
type Settings struct {
	// ServerURI is the base URI of the Nextcloud server, e.g.
	// "https://cloud.example.com/".
	ServerURI string `json:"server_uri"`

	// ApplicationName is sent as the User-Agent on every request.
	ApplicationName string `json:"application_name"`

	// ClientID and ClientSecret identify the OAuth2 client registration.
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// RedirectURI is the registered loopback redirect, e.g.
	// "http://localhost:15678/". The listener binds its host and port.
	RedirectURI string `json:"redirect_uri"`

	// RedirectAfterLogin, when set, makes the listener answer the browser
	// with a 303 to this URI instead of the built-in page.
	RedirectAfterLogin string `json:"redirect_after_login,omitempty"`

	// PageToSendAfterLogin overrides the built-in HTML shown to the user
	// after the redirect lands.
	PageToSendAfterLogin string `json:"page_to_send_after_login,omitempty"`

	// Username and Password select basic auth. When both are set the
	// OAuth2 flow is bypassed entirely.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Credential state, written back on every token update.
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpires time.Time `json:"token_expires,omitzero"`

	// User is the server-side account id reported by the token endpoint.
	User string `json:"user,omitempty"`

	// RefreshIfDueWithin is the lead window before TokenExpires inside
	// which a refresh is attempted. Zero means DefaultRefreshLead.
	RefreshIfDueWithin time.Duration `json:"refresh_if_due_within,omitempty"`

	// LogRequest and LogResult gate request/response debug logging.
	// 0 disables, 1 logs the line, 2 adds the body.
	LogRequest int `json:"log_request,omitempty"`
	LogResult  int `json:"log_result,omitempty"`

	// SaveFunc overrides the write-through persistence. Callers with their
	// own credential store set this; the default writes the JSON file the
	// settings were loaded from.
	SaveFunc func(*Settings) error `json:"-"`

	mu   sync.Mutex
	path string
}

// DefaultSettingsPath returns the conventional settings location under the
// user config directory.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nextcloud-go", "settings.json"), nil
}

// LoadSettings reads settings from a JSON file. A missing file yields empty
// settings bound to the same path, so the first Save creates it.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("nextcloud: settings file %s: %w", path, err)
	}
	return s, nil
}

// Save persists the settings. With a SaveFunc set it delegates; otherwise
// it writes the JSON file with restricted permissions, creating the parent
// directory if needed.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveFunc != nil {
		return s.SaveFunc(s)
	}
	if s.path == "" {
		p, err := DefaultSettingsPath()
		if err != nil {
			return err
		}
		s.path = p
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Path returns the file the settings were loaded from.
func (s *Settings) Path() string { return s.path }

// SetPath binds the settings to a file for subsequent Saves.
func (s *Settings) SetPath(path string) { s.path = path }

// Validate checks the fields every client needs before any request can be
// built.
func (s *Settings) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.ServerURI, validation.Required, is.URL),
		validation.Field(&s.ApplicationName, validation.Required),
	)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

// bearerToken returns the current access token under the settings lock.
// The credential manager rotates the token fields under the same lock, so
// a request built during a concurrent refresh sees a consistent value.
func (s *Settings) bearerToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AccessToken
}

// HasBasicAuth reports whether username/password auth is configured.
func (s *Settings) HasBasicAuth() bool {
	return s.Username != "" && s.Password != ""
}

// RefreshLead returns the configured refresh lead window or its default.
func (s *Settings) RefreshLead() time.Duration {
	if s.RefreshIfDueWithin > 0 {
		return s.RefreshIfDueWithin
	}
	return DefaultRefreshLead
}

// MakeURI resolves a path against ServerURI. Absolute URIs pass through.
func (s *Settings) MakeURI(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(s.ServerURI, "/") + "/" + strings.TrimPrefix(path, "/")
}
