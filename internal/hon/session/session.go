package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for Config fields left empty.
const (
	DefaultAuthURL        = "https://account2.hon-smarthome.com/SmartHome"
	DefaultAPIURL         = "https://api-iot.he.services"
	DefaultAppVersion     = "2.0.10"
	DefaultOS             = "android"
	DefaultOSVersion      = 31
	DefaultDeviceModel    = "exynos9820"
	DefaultSessionTimeout = 6 * time.Hour
	DefaultRefreshMargin  = 5 * time.Minute
	DefaultHTTPTimeout    = 30 * time.Second

	// userAgent is sent on every request; the identity provider serves the
	// login pages only to browser-like clients.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/102.0.0.0 Safari/537.36"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the account and client identity used to log in.
type Config struct {
	Email    string
	Password string

	// Framework is the initial framework-version tag. A tag corrected by
	// the server and saved in the FrameworkStore takes precedence.
	Framework string

	AuthURL     string
	APIURL      string
	AppVersion  string
	OS          string
	OSVersion   int
	DeviceModel string

	SessionTimeout time.Duration
	RefreshMargin  time.Duration
	HTTPTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.AppVersion == "" {
		c.AppVersion = DefaultAppVersion
	}
	if c.OS == "" {
		c.OS = DefaultOS
	}
	if c.OSVersion == 0 {
		c.OSVersion = DefaultOSVersion
	}
	if c.DeviceModel == "" {
		c.DeviceModel = DefaultDeviceModel
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	c.AuthURL = strings.TrimRight(c.AuthURL, "/")
	c.APIURL = strings.TrimRight(c.APIURL, "/")
}

// FrameworkStore persists the framework-version tag across restarts.
type FrameworkStore interface {
	LoadFramework(ctx context.Context) (string, error)
	SaveFramework(ctx context.Context, tag string) error
}

// Manager owns the session and runs the login protocol.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - At most one login runs at a time.
type Manager struct {
	cfg      Config
	client   *http.Client
	mobileID string
	store    FrameworkStore
	logger   Logger
	now      func() time.Time

	// authMu serialises the login protocol.
	authMu sync.Mutex

	// mu protects the fields below.
	mu              sync.RWMutex
	framework       string
	frameworkLoaded bool
	idToken         string
	cognitoToken    string
	started         time.Time
	generation      uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithFrameworkStore persists corrected framework tags.
func WithFrameworkStore(store FrameworkStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithHTTPClient replaces the HTTP client. A cookie jar is added when the
// client has none, and redirect handling is replaced so the OAuth redirect
// to the app scheme is not followed.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

// WithMobileID fixes the mobile instance identifier.
func WithMobileID(id string) Option {
	return func(m *Manager) { m.mobileID = id }
}

// New creates a Manager. No network call is made until the first
// EnsureValid or Authorize.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrNoCredentials
	}
	cfg.applyDefaults()

	m := &Manager{
		cfg:       cfg,
		framework: cfg.Framework,
		logger:    noopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.mobileID == "" {
		m.mobileID = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if m.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		m.client.Jar = jar
	}
	m.client.CheckRedirect = stopAtAppScheme

	return m, nil
}

// stopAtAppScheme follows http(s) redirects and stops at the first redirect
// to another scheme (the hon:// OAuth callback), returning that response.
func stopAtAppScheme(req *http.Request, via []*http.Request) error {
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return http.ErrUseLastResponse
	}
	if len(via) >= 10 {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	return nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// MobileID returns the mobile instance identifier sent with logins and commands.
func (m *Manager) MobileID() string { return m.mobileID }

// HTTPClient returns the client carrying the session cookies.
func (m *Manager) HTTPClient() *http.Client { return m.client }

// Framework returns the framework-version tag currently in use.
func (m *Manager) Framework() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.framework
}

// IsValid reports whether the session can be used without logging in:
// now - start < timeout - margin.
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validLocked()
}

func (m *Manager) validLocked() bool {
	if m.started.IsZero() {
		return false
	}
	return m.now().Sub(m.started) < m.cfg.SessionTimeout-m.cfg.RefreshMargin
}

// ExpiresAt returns when the session stops being valid, or the zero time
// when there is no session.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.started.IsZero() {
		return time.Time{}
	}
	return m.started.Add(m.cfg.SessionTimeout - m.cfg.RefreshMargin)
}

// EnsureValid returns nil when the session is usable, logging in first if
// it has expired.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.IsValid() {
		return nil
	}
	return m.Authorize(ctx)
}

// Authorize logs in unless the session is already valid. A caller that
// waited for another login re-checks validity rather than trusting that
// login's outcome.
func (m *Manager) Authorize(ctx context.Context) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if m.IsValid() {
		return nil
	}
	return m.login(ctx)
}

// ForceReauthorize discards the current session and logs in again. When
// another caller completed a login while this one waited for the lock,
// that login is reused.
func (m *Manager) ForceReauthorize(ctx context.Context) error {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	m.authMu.Lock()
	defer m.authMu.Unlock()

	m.mu.Lock()
	if m.generation != gen && m.validLocked() {
		m.mu.Unlock()
		return nil
	}
	m.started = time.Time{}
	m.mu.Unlock()

	return m.login(ctx)
}

// Invalidate marks the session expired. The tokens are kept until the next
// login replaces them.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.started = time.Time{}
	m.mu.Unlock()
}

// Apply sets the session headers on an API request.
func (m *Manager) Apply(req *http.Request) {
	m.mu.RLock()
	cognito, id := m.cognitoToken, m.idToken
	m.mu.RUnlock()

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("cognito-token", cognito)
	req.Header.Set("id-token", id)
}

// Close releases idle connections.
func (m *Manager) Close() {
	m.client.CloseIdleConnections()
}

// commit replaces the session wholesale after a successful login.
func (m *Manager) commit(framework, idToken, cognitoToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.framework = framework
	m.idToken = idToken
	m.cognitoToken = cognitoToken
	m.started = m.now()
	m.generation++
}
