package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hon-bridge/internal/hon/cache"
)

// Default cache lifetimes.
const (
	DefaultContextTTL    = 10 * time.Second
	DefaultStatisticsTTL = 5 * time.Minute
	DefaultCommandsTTL   = 10 * time.Second

	// maxResponseBytes bounds every API response read.
	maxResponseBytes = 8 << 20
)

// ResultOK is the result code of a successful call.
const ResultOK = "0"

// Logger defines the logging interface used by the Client.
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

// Authenticator provides a valid session for API calls.
// It is satisfied by *session.Manager.
type Authenticator interface {
	EnsureValid(ctx context.Context) error
	Apply(req *http.Request)

	// Invalidate marks the session expired so the next EnsureValid logs in.
	Invalidate()
}

// Config configures the Client.
type Config struct {
	APIURL     string
	AppVersion string
	OS         string

	ContextTTL    time.Duration
	StatisticsTTL time.Duration
	CommandsTTL   time.Duration
}

// Client reads from and sends to the appliance API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	cfg    Config
	auth   Authenticator
	cache  *cache.Cache
	http   *http.Client
	logger Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, normally the session's client so
// cookies are shared.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client.
func New(cfg Config, auth Authenticator, store *cache.Cache, opts ...Option) *Client {
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = DefaultContextTTL
	}
	if cfg.StatisticsTTL <= 0 {
		cfg.StatisticsTTL = DefaultStatisticsTTL
	}
	if cfg.CommandsTTL <= 0 {
		cfg.CommandsTTL = DefaultCommandsTTL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	c := &Client{
		cfg:    cfg,
		auth:   auth,
		cache:  store,
		http:   http.DefaultClient,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Cache returns the cache backing the client's reads.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Invalidate drops every cached read of the device with the given MAC.
func (c *Client) Invalidate(mac string) int {
	n := c.cache.Invalidate(mac)
	c.logger.Debug("device cache invalidated", "mac", mac, "entries", n)
	return n
}

// ListAppliances returns the appliance records of the account. Records
// without a MAC address or a type id are dropped.
func (c *Client) ListAppliances(ctx context.Context) ([]map[string]any, error) {
	payload, err := c.get(ctx, "/commands/v1/appliance", nil)
	if err != nil {
		return nil, err
	}

	raw, ok := payload["appliances"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: appliance list has no appliances", ErrProtocol)
	}

	appliances := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := record["macAddress"]; !ok {
			continue
		}
		if _, ok := record["applianceTypeId"]; !ok {
			continue
		}
		appliances = append(appliances, record)
	}
	c.logger.Debug("appliances listed", "total", len(raw), "valid", len(appliances))
	return appliances, nil
}

// SchemaQuery identifies the command schema of one appliance.
type SchemaQuery struct {
	MAC       string
	TypeID    string
	Code      string
	ModelID   string
	EepromID  string
	FWVersion string
	Series    string
}

// RetrieveCommands returns the command schema payload of an appliance.
// The payload must carry result code "0".
func (c *Client) RetrieveCommands(ctx context.Context, q SchemaQuery) (map[string]any, error) {
	key := cache.Key{Kind: cache.KindCommands, DeviceID: q.MAC}
	return cache.Fetch(ctx, c.cache, key, c.cfg.CommandsTTL, func(ctx context.Context) (map[string]any, error) {
		payload, err := c.get(ctx, "/commands/v1/retrieve", url.Values{
			"applianceType":    {q.TypeID},
			"code":             {q.Code},
			"applianceModelId": {q.ModelID},
			"firmwareId":       {q.EepromID},
			"macAddress":       {q.MAC},
			"fwVersion":        {q.FWVersion},
			"os":               {c.cfg.OS},
			"appVersion":       {c.cfg.AppVersion},
			"series":           {q.Series},
		})
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			return nil, fmt.Errorf("%w: empty command schema for %s", ErrProtocol, q.MAC)
		}
		if code := ResultCode(payload); code != ResultOK {
			return nil, fmt.Errorf("%w: command schema for %s: result code %q", ErrRejected, q.MAC, code)
		}
		return payload, nil
	})
}

// Context returns the live context payload of an appliance. typeName is
// the appliance type name, e.g. "WM".
func (c *Client) Context(ctx context.Context, mac, typeName string) (map[string]any, error) {
	key := cache.Key{Kind: cache.KindContext, DeviceID: mac}
	return cache.Fetch(ctx, c.cache, key, c.cfg.ContextTTL, func(ctx context.Context) (map[string]any, error) {
		payload, err := c.get(ctx, "/commands/v1/context", url.Values{
			"macAddress":    {mac},
			"applianceType": {typeName},
			"category":      {"CYCLE"},
		})
		if err != nil {
			return nil, err
		}
		if payload == nil {
			payload = map[string]any{}
		}
		return payload, nil
	})
}

// Statistics returns the statistics payload of an appliance.
func (c *Client) Statistics(ctx context.Context, mac, typeName string) (map[string]any, error) {
	key := cache.Key{Kind: cache.KindStatistics, DeviceID: mac}
	return cache.Fetch(ctx, c.cache, key, c.cfg.StatisticsTTL, func(ctx context.Context) (map[string]any, error) {
		payload, err := c.get(ctx, "/commands/v1/statistics", url.Values{
			"macAddress":    {mac},
			"applianceType": {typeName},
		})
		if err != nil {
			return nil, err
		}
		if payload == nil {
			payload = map[string]any{}
		}
		return payload, nil
	})
}

// Status returns the connection status of an appliance. A response
// without payload reads as {"category": "DISCONNECTED"}.
func (c *Client) Status(ctx context.Context, mac, typeName string) (map[string]any, error) {
	payload, err := c.get(ctx, "/commands/v1/appliance/status", url.Values{
		"macAddress":    {mac},
		"applianceType": {typeName},
	})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{"category": "DISCONNECTED"}
	}
	return payload, nil
}

// Send posts a command body. It returns the response payload on result
// code "0"; ErrRejected (with the payload) for any other code.
func (c *Client) Send(ctx context.Context, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	payload, err := c.do(ctx, http.MethodPost, "/commands/v1/send", nil, raw)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: send response has no payload", ErrProtocol)
	}
	if code := ResultCode(payload); code != ResultOK {
		return payload, fmt.Errorf("%w: result code %q", ErrRejected, code)
	}
	return payload, nil
}

// ResultCode returns payload["resultCode"] as a string, or "" when absent.
func ResultCode(payload map[string]any) string {
	switch v := payload["resultCode"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// do runs one authenticated call and returns the "payload" object of the
// response, or nil when the response has none.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (map[string]any, error) {
	if err := c.auth.EnsureValid(ctx); err != nil {
		return nil, err
	}

	target := c.cfg.APIURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	c.auth.Apply(req)
	req.Header.Set("Content-Type", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrTransport, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.auth.Invalidate()
		c.logger.Warn("api refused session, invalidated", "path", path, "request_id", requestID, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %w: %s returned status %d", ErrTransport, ErrUnauthorized, path, resp.StatusCode)
	}

	var envelope struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.Error("invalid JSON from api", "path", path, "request_id", requestID,
			"status", resp.StatusCode, "request", string(body), "response", truncate(string(data)))
		return nil, fmt.Errorf("%w: %s returned status %d with invalid JSON: %w", ErrProtocol, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest && envelope.Payload == nil {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrProtocol, path, resp.StatusCode)
	}

	c.logger.Debug("api request", "method", method, "path", path, "request_id", requestID, "status", resp.StatusCode)
	return envelope.Payload, nil
}

func truncate(s string) string {
	const limit = 500
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
