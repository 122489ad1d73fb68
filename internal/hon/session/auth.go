package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// oauthClientID identifies the hOn mobile app to the identity provider.
	oauthClientID = "3MVG9QDx8IX8nP5T2Ha8ofvlmjLZl5L_gvfbT9.HJvpHGKoAS_dcMN8LYpTSYeVFCraUnV.2Ag1Ki7m4znVO6"

	oauthRedirect = "hon://mobilesdk/detect/oauth/done"

	// loginAppVersion is the loaded-app hash the login form reports.
	loginAppVersion = "YtNc5oyHTOvavSB9Q4rtag"

	// maxBodyBytes bounds every response read during login.
	maxBodyBytes = 4 << 20

	// logSnippet bounds how much of an unexpected response is logged.
	logSnippet = 300
)

// idTokenPattern is the fallback scan for the identity token.
var idTokenPattern = regexp.MustCompile(`id_token=(.+?)&`)

// mismatchError reports the framework-version tag the server expects.
type mismatchError struct {
	expected string
}

func (e *mismatchError) Error() string {
	return fmt.Sprintf("%s: server expects %q", ErrFrameworkMismatch, e.expected)
}

func (e *mismatchError) Unwrap() error { return ErrFrameworkMismatch }

// page is a fetched response, fully read.
type page struct {
	status   int
	body     string
	location string
}

// login runs the full protocol. Tokens are committed only when every step
// succeeds; a failed login leaves the previous (expired) session untouched.
func (m *Manager) login(ctx context.Context) error {
	m.logger.Debug("authenticating with hOn")

	tag := m.currentFramework(ctx)
	frontdoor, tag, err := m.frontdoor(ctx, tag)
	if err != nil {
		return err
	}

	p, err := m.get(ctx, frontdoor)
	if err != nil {
		return fmt.Errorf("%w: following frontdoor: %w", ErrAuthFailed, err)
	}
	if p.status != http.StatusOK {
		m.logger.Error("frontdoor login failed", "status", p.status)
		return fmt.Errorf("%w: frontdoor returned status %d", ErrAuthFailed, p.status)
	}

	progressive := m.cfg.AuthURL + "/apex/ProgressiveLogin?retURL=%2FSmartHome%2Fapex%2FCustomCommunitiesLanding"
	if _, err := m.get(ctx, progressive); err != nil {
		return fmt.Errorf("%w: progressive login: %w", ErrAuthFailed, err)
	}

	idToken, err := m.identityToken(ctx)
	if err != nil {
		return err
	}

	cognito, err := m.exchange(ctx, idToken)
	if err != nil {
		return err
	}

	m.commit(tag, idToken, cognito)
	m.logger.Info("hOn session established", "valid_until", m.ExpiresAt())
	return nil
}

// currentFramework returns the tag to log in with, preferring one saved by
// an earlier run.
func (m *Manager) currentFramework(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.frameworkLoaded && m.store != nil {
		tag, err := m.store.LoadFramework(ctx)
		switch {
		case err != nil:
			m.logger.Warn("loading saved framework version", "error", err)
		case tag != "":
			m.framework = tag
		}
	}
	m.frameworkLoaded = true
	return m.framework
}

// frontdoor requests the frontdoor URL, retrying once with the tag the
// server reports on a framework mismatch. The corrected tag is saved.
func (m *Manager) frontdoor(ctx context.Context, tag string) (string, string, error) {
	u, err := m.requestFrontdoor(ctx, tag)
	var mismatch *mismatchError
	if !errors.As(err, &mismatch) {
		return u, tag, err
	}

	m.logger.Info("framework version updated", "from", tag, "to", mismatch.expected)
	tag = mismatch.expected
	u, err = m.requestFrontdoor(ctx, tag)
	if err != nil {
		if errors.As(err, &mismatch) {
			return "", "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return "", "", err
	}

	m.mu.Lock()
	m.framework = tag
	m.mu.Unlock()
	if m.store != nil {
		if err := m.store.SaveFramework(ctx, tag); err != nil {
			m.logger.Warn("saving framework version", "error", err)
		}
	}
	return u, tag, nil
}

// requestFrontdoor posts the login form. It returns a *mismatchError when
// the server rejects the framework tag.
func (m *Manager) requestFrontdoor(ctx context.Context, tag string) (string, error) {
	form, err := m.loginForm(tag)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	endpoint := m.cfg.AuthURL + "/s/sfsites/aura?r=3&other.LightningLoginCustom.login=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: building login request: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	p, err := m.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login request: %w", ErrAuthFailed, err)
	}
	if p.status != http.StatusOK {
		m.logger.Error("login service unavailable", "status", p.status)
		return "", fmt.Errorf("%w: login service returned status %d", ErrAuthFailed, p.status)
	}

	var resp struct {
		Events []struct {
			Attributes struct {
				Values struct {
					URL string `json:"url"`
				} `json:"values"`
			} `json:"attributes"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(p.body), &resp); err == nil &&
		len(resp.Events) > 0 && resp.Events[0].Attributes.Values.URL != "" {
		return resp.Events[0].Attributes.Values.URL, nil
	}

	if strings.Contains(p.body, "clientOutOfSync") {
		if expected := expectedFramework(p.body); expected != "" {
			return "", &mismatchError{expected: expected}
		}
	}
	m.logger.Error("no frontdoor URL in login response", "response", snippet(p.body))
	return "", fmt.Errorf("%w: no frontdoor URL in login response", ErrAuthFailed)
}

// loginForm builds the aura login form for the configured credentials.
func (m *Manager) loginForm(tag string) (url.Values, error) {
	message, err := json.Marshal(map[string]any{
		"actions": []any{map[string]any{
			"id":                "79;a",
			"descriptor":        "apex://LightningLoginCustomController/ACTION$login",
			"callingDescriptor": "markup://c:loginForm",
			"params": map[string]any{
				"username": m.cfg.Email,
				"password": m.cfg.Password,
				"startUrl": "",
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding login message: %w", err)
	}

	auraContext, err := json.Marshal(map[string]any{
		"mode":    "PROD",
		"fwuid":   tag,
		"app":     "siteforce:loginApp2",
		"loaded":  map[string]string{"APPLICATION@markup://siteforce:loginApp2": loginAppVersion},
		"dn":      []any{},
		"globals": map[string]any{},
		"uad":     false,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding login context: %w", err)
	}

	return url.Values{
		"message":      {string(message)},
		"aura.context": {string(auraContext)},
		"aura.pageURI": {"/SmartHome/s/login/?language=fr"},
		"aura.token":   {"null"},
	}, nil
}

// expectedFramework extracts the tag following "Expected: " up to the next space.
func expectedFramework(text string) string {
	const marker = "Expected: "
	i := strings.Index(text, marker)
	if i < 0 {
		return ""
	}
	rest := text[i+len(marker):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// identityToken runs the OAuth implicit flow and extracts the id token.
func (m *Manager) identityToken(ctx context.Context) (string, error) {
	authorize := fmt.Sprintf(
		"%s/services/oauth2/authorize?response_type=token+id_token&client_id=%s&redirect_uri=%s&display=touch&scope=api%%20openid%%20refresh_token%%20web&nonce=%s",
		m.cfg.AuthURL, oauthClientID, url.QueryEscape(oauthRedirect), uuid.NewString())

	p, err := m.get(ctx, authorize)
	if err != nil {
		return "", fmt.Errorf("%w: oauth authorize: %w", ErrAuthFailed, err)
	}

	if token := extractIDToken(p.body, p.location); token != "" {
		return token, nil
	}
	if strings.Contains(p.body, "ChangePassword") {
		m.logger.Error("hOn requires a password change in the mobile app")
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, ErrPasswordChangeRequired)
	}
	m.logger.Error("no id_token in authorization response", "status", p.status, "response", snippet(p.body))
	return "", fmt.Errorf("%w: no id_token in authorization response", ErrAuthFailed)
}

// extractIDToken tries, in order: the query string inside the first
// single-quoted fragment of the body, a pattern scan of the body, then the
// redirect location.
func extractIDToken(body, location string) string {
	if parts := strings.SplitN(body, "'", 3); len(parts) > 1 {
		values, _ := url.ParseQuery(parts[1]) //nolint:errcheck // partial results are usable
		if token := values.Get("id_token"); token != "" {
			return token
		}
	}

	if match := idTokenPattern.FindStringSubmatch(body); match != nil {
		return match[1]
	}

	if location == "" {
		return ""
	}
	if match := idTokenPattern.FindStringSubmatch(location); match != nil {
		return match[1]
	}
	if u, err := url.Parse(location); err == nil {
		for _, raw := range []string{u.Fragment, u.RawQuery} {
			values, _ := url.ParseQuery(raw) //nolint:errcheck // partial results are usable
			if token := values.Get("id_token"); token != "" {
				return token
			}
		}
	}
	return ""
}

// exchange trades the identity token for a session token.
func (m *Manager) exchange(ctx context.Context, idToken string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"appVersion":  m.cfg.AppVersion,
		"mobileId":    m.mobileID,
		"os":          m.cfg.OS,
		"osVersion":   m.cfg.OSVersion,
		"deviceModel": m.cfg.DeviceModel,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding login: %w", ErrAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL+"/auth/v1/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building login: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("id-token", idToken)

	p, err := m.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %w", ErrAuthFailed, err)
	}

	var resp struct {
		CognitoUser struct {
			Token string `json:"Token"`
		} `json:"cognitoUser"`
	}
	if err := json.Unmarshal([]byte(p.body), &resp); err != nil {
		m.logger.Error("token exchange returned invalid JSON", "status", p.status, "response", snippet(p.body))
		return "", fmt.Errorf("%w: %w: %w", ErrAuthFailed, ErrLoginRejected, err)
	}
	if resp.CognitoUser.Token == "" {
		m.logger.Error("token exchange returned no session token", "status", p.status)
		return "", fmt.Errorf("%w: %w: no cognitoUser.Token", ErrAuthFailed, ErrLoginRejected)
	}
	return resp.CognitoUser.Token, nil
}

func (m *Manager) get(ctx context.Context, rawURL string) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return page{}, err
	}
	return m.do(req)
}

func (m *Manager) do(req *http.Request) (page, error) {
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return page{}, fmt.Errorf("reading response: %w", err)
	}
	return page{
		status:   resp.StatusCode,
		body:     string(body),
		location: resp.Header.Get("Location"),
	}, nil
}

func snippet(s string) string {
	if len(s) > logSnippet {
		return s[:logSnippet] + "..."
	}
	return s
}
