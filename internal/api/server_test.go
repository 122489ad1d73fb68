package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/dispatch"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/config"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/logging"
)

const testMAC = "aa-bb-cc-dd-ee-ff"

// fakeAPI serves one washing machine with a two-program startProgram.
type fakeAPI struct {
	mu     sync.Mutex
	status string
}

func (f *fakeAPI) ListAppliances(context.Context) ([]map[string]any, error) {
	return []map[string]any{{
		"macAddress":        testMAC,
		"applianceTypeId":   "1",
		"applianceTypeName": "WM",
		"nickName":          "Laundry",
	}}, nil
}

func (f *fakeAPI) RetrieveCommands(context.Context, cloud.SchemaQuery) (map[string]any, error) {
	program := func(tempDefault string) map[string]any {
		return map[string]any{"parameters": map[string]any{
			"temp": map[string]any{
				"typology": "range", "minimumValue": "0", "maximumValue": "90",
				"incrementValue": "10", "defaultValue": tempDefault,
			},
			"spinSpeed": map[string]any{
				"typology": "enum", "enumValues": []any{"400", "800", "1200"}, "defaultValue": "800",
			},
			"onOffStatus": map[string]any{"typology": "fixed", "fixedValue": "1"},
		}}
	}
	return map[string]any{
		"resultCode":     "0",
		"applianceModel": map[string]any{},
		"startProgram": map[string]any{
			"PROGRAMS.WM.COTTONS":    program("40"),
			"PROGRAMS.WM.DELICATES": program("30"),
		},
		"stopProgram": map[string]any{
			"parameters": map[string]any{"onOffStatus": map[string]any{"fixedValue": "0"}},
		},
	}, nil
}

func (f *fakeAPI) Context(context.Context, string, string) (map[string]any, error) {
	return map[string]any{"parameters": map[string]any{"machMode": "1", "temp": "40"}}, nil
}

func (f *fakeAPI) Statistics(context.Context, string, string) (map[string]any, error) {
	return map[string]any{"totalWashCycle": float64(12)}, nil
}

func (f *fakeAPI) Status(context.Context, string, string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"category": f.status}, nil
}

func (f *fakeAPI) setStatus(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

type sentCommand struct {
	name    string
	program string
	values  map[string]string
}

// fakeDispatcher records sends instead of calling the remote API.
type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentCommand
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, target dispatch.Target, cmd *command.Command) (dispatch.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return dispatch.Result{Attempts: 2}, d.err
	}
	d.sent = append(d.sent, sentCommand{name: cmd.Name(), program: cmd.Program(), values: cmd.Values()})
	return dispatch.Result{TransactionID: target.MAC + "_2026-03-01T12:00:00Z", ResultCode: "0", Attempts: 1}, nil
}

// fakeCommandLog returns canned entries and remembers the requested limit.
type fakeCommandLog struct {
	entries []dispatch.Entry
	limit   int
	err     error
}

func (l *fakeCommandLog) Recent(_ context.Context, mac string, limit int) ([]dispatch.Entry, error) {
	l.limit = limit
	if l.err != nil {
		return nil, l.err
	}
	var out []dispatch.Entry
	for _, e := range l.entries {
		if e.MAC == mac {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeChecker struct{ err error }

func (c fakeChecker) HealthCheck(context.Context) error { return c.err }

type testRig struct {
	server     *Server
	handler    http.Handler
	api        *fakeAPI
	dispatcher *fakeDispatcher
	store      *appliance.Store
}

// testServer creates a Server over a real appliance store with one
// discovered washing machine.
func testServer(t *testing.T, mutate ...func(*Deps)) *testRig {
	t.Helper()

	api := &fakeAPI{status: "CONNECTED"}
	disp := &fakeDispatcher{}
	store := appliance.NewStore(api, disp)
	if _, err := store.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:  log,
		Store:   store,
		Version: "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testRig{server: srv, handler: srv.buildRouter(), api: api, dispatcher: disp, store: store}
}

func (r *testRig) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func devicePath(suffix string) string {
	return "/api/v1/devices/" + testMAC + suffix
}

// ============================================================================
// Server lifecycle
// ============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)

	if _, err := New(Deps{Store: appliance.NewStore(&fakeAPI{}, &fakeDispatcher{})}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without store should fail")
	}
}

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	rig := testServer(t)
	if err := rig.server.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := rig.server.Close(); err != nil {
		t.Errorf("Close() before Start = %v, want nil", err)
	}
}

// ============================================================================
// Health and metrics
// ============================================================================

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]HealthChecker{"mqtt": fakeChecker{}, "database": fakeChecker{}}, http.StatusOK, "ok"},
		{"one failing", map[string]HealthChecker{"mqtt": fakeChecker{err: errors.New("not connected")}}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := testServer(t, func(d *Deps) { d.Checks = tt.checks })
			rec := rig.do(t, http.MethodGet, "/api/v1/health", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body struct {
				Status  string            `json:"status"`
				Version string            `json:"version"`
				Checks  map[string]string `json:"checks"`
			}
			decode(t, rec, &body)
			if body.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantBody)
			}
			if len(body.Checks) != len(tt.checks) {
				t.Errorf("checks = %v, want %d entries", body.Checks, len(tt.checks))
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var m SystemMetrics
	decode(t, rec, &m)
	if m.Appliances.Total != 1 {
		t.Errorf("Appliances.Total = %d, want 1", m.Appliances.Total)
	}
	if m.Appliances.ByType["WM"] != 1 {
		t.Errorf("Appliances.ByType = %v, want WM:1", m.Appliances.ByType)
	}
	if m.Database != nil {
		t.Errorf("Database = %+v, want nil without a DB dependency", m.Database)
	}
}

// ============================================================================
// Devices
// ============================================================================

func TestListDevices(t *testing.T) {
	rig := testServer(t)
	dev, _ := rig.store.Device(testMAC)
	if err := rig.store.Refresh(context.Background(), dev); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 1},
		{"?connection=CONNECTED", 1},
		{"?connection=DISCONNECTED", 0},
	}
	for _, tt := range tests {
		rec := rig.do(t, http.MethodGet, "/api/v1/devices/"+tt.query, "")
		var body struct {
			Devices []appliance.State `json:"devices"`
			Count   int               `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != tt.want || len(body.Devices) != tt.want {
			t.Errorf("GET devices%s count = %d, want %d", tt.query, body.Count, tt.want)
		}
	}
}

func TestDiscover(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodPost, "/api/v1/devices/discover", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Devices []appliance.Info `json:"devices"`
	}
	decode(t, rec, &body)
	if len(body.Devices) != 1 || body.Devices[0].Name != "Laundry" {
		t.Errorf("devices = %+v, want Laundry", body.Devices)
	}
}

func TestGetDevice(t *testing.T) {
	rig := testServer(t)

	rec := rig.do(t, http.MethodGet, devicePath("?refresh=true"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var state appliance.State
	decode(t, rec, &state)
	if state.Info.MAC != testMAC {
		t.Errorf("MAC = %q, want %q", state.Info.MAC, testMAC)
	}
	if state.Connection != "CONNECTED" {
		t.Errorf("Connection = %q, want CONNECTED", state.Connection)
	}
	if state.Parameters["machMode"] != "1" {
		t.Errorf("Parameters = %v, want machMode=1", state.Parameters)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodGet, "/api/v1/devices/00-00-00-00-00-00", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var e Error
	decode(t, rec, &e)
	if e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestGetStateValue(t *testing.T) {
	rig := testServer(t)
	dev, _ := rig.store.Device(testMAC)
	if err := rig.store.Refresh(context.Background(), dev); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	tests := []struct {
		key        string
		wantStatus int
		wantValue  any
	}{
		{"machMode", http.StatusOK, "1"},
		{"statistics.totalWashCycle", http.StatusOK, float64(12)},
		{"missing", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rec := rig.do(t, http.MethodGet, devicePath("/state/"+tt.key), "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Value any `json:"value"`
			}
			decode(t, rec, &body)
			if body.Value != tt.wantValue {
				t.Errorf("value = %v, want %v", body.Value, tt.wantValue)
			}
		})
	}
}

func TestGetSettings(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodGet, devicePath("/settings"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Settings []ParameterView `json:"settings"`
	}
	decode(t, rec, &body)

	keys := make(map[string]ParameterView)
	for _, s := range body.Settings {
		keys[s.Key] = s
	}
	temp, ok := keys["startProgram.temp"]
	if !ok {
		t.Fatalf("settings = %v, want startProgram.temp", body.Settings)
	}
	if temp.Kind != "range" || temp.Max == nil || *temp.Max != 90 {
		t.Errorf("startProgram.temp = %+v, want range up to 90", temp)
	}
	if _, ok := keys["startProgram.onOffStatus"]; ok {
		t.Error("fixed parameters should not be listed as settings")
	}
}

// ============================================================================
// Commands
// ============================================================================

func TestListCommands(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodGet, devicePath("/commands"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Commands []CommandSummary `json:"commands"`
	}
	decode(t, rec, &body)

	byName := make(map[string]CommandSummary)
	for _, c := range body.Commands {
		byName[c.Name] = c
	}
	start, ok := byName["startProgram"]
	if !ok {
		t.Fatalf("commands = %+v, want startProgram", body.Commands)
	}
	if strings.Join(start.Programs, ",") != "cottons,delicates" {
		t.Errorf("startProgram programs = %v, want [cottons delicates]", start.Programs)
	}
	if _, ok := byName["stopProgram"]; !ok {
		t.Error("stopProgram missing")
	}
}

func TestDescribeCommand(t *testing.T) {
	rig := testServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantTemp   string
	}{
		{"program variant", "/commands/startProgram?program=delicates", http.StatusOK, "30"},
		{"unknown program", "/commands/startProgram?program=wool", http.StatusBadRequest, ""},
		{"unknown command", "/commands/selfDestruct", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rig.do(t, http.MethodGet, devicePath(tt.path), "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantTemp == "" {
				return
			}
			var detail CommandDetail
			decode(t, rec, &detail)
			if detail.Program != "delicates" {
				t.Errorf("Program = %q, want delicates", detail.Program)
			}
			for _, p := range detail.Parameters {
				if p.Key == "temp" && p.Default != tt.wantTemp {
					t.Errorf("temp default = %q, want %q", p.Default, tt.wantTemp)
				}
			}
			if !strings.Contains(detail.Help, "temp: [0 - 90]") {
				t.Errorf("Help = %q, want temp range line", detail.Help)
			}
		})
	}
}

func TestSendCommand(t *testing.T) {
	rig := testServer(t)

	rec := rig.do(t, http.MethodPost, devicePath("/commands/startProgram"),
		`{"program":"cottons","parameters":{"temp":60}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	decode(t, rec, &body)
	if body["transaction_id"] != testMAC+"_2026-03-01T12:00:00Z" {
		t.Errorf("transaction_id = %v", body["transaction_id"])
	}
	if body["result_code"] != "0" {
		t.Errorf("result_code = %v, want 0", body["result_code"])
	}

	if len(rig.dispatcher.sent) != 1 {
		t.Fatalf("sent = %d commands, want 1", len(rig.dispatcher.sent))
	}
	sent := rig.dispatcher.sent[0]
	if sent.name != "startProgram" || sent.program != "cottons" {
		t.Errorf("sent %s/%s, want startProgram/cottons", sent.name, sent.program)
	}
	if sent.values["temp"] != "60" {
		t.Errorf("temp = %q, want 60", sent.values["temp"])
	}
}

func TestSendCommand_EmptyBody(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodPost, devicePath("/commands/stopProgram"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if len(rig.dispatcher.sent) != 1 || rig.dispatcher.sent[0].values["onOffStatus"] != "0" {
		t.Errorf("sent = %+v, want stopProgram with onOffStatus=0", rig.dispatcher.sent)
	}
}

func TestSendCommand_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*testRig)
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid json",
			path:       "/commands/startProgram",
			body:       `{"program":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "value out of range",
			path:       "/commands/startProgram",
			body:       `{"program":"cottons","parameters":{"temp":95}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_value",
		},
		{
			name:       "unknown program",
			path:       "/commands/startProgram",
			body:       `{"program":"wool"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "unknown_program",
		},
		{
			name:       "unknown command",
			path:       "/commands/selfDestruct",
			wantStatus: http.StatusConflict,
			wantCode:   "command_unavailable",
		},
		{
			name:       "disconnected",
			setup:      func(r *testRig) { r.api.setStatus("DISCONNECTED") },
			path:       "/commands/startProgram",
			body:       `{"program":"cottons"}`,
			wantStatus: http.StatusConflict,
			wantCode:   "disconnected",
		},
		{
			name:       "transport failure",
			setup:      func(r *testRig) { r.dispatcher.err = cloud.ErrTransport },
			path:       "/commands/stopProgram",
			wantStatus: http.StatusBadGateway,
			wantCode:   "transport",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := testServer(t)
			if tt.setup != nil {
				tt.setup(rig)
			}
			rec := rig.do(t, http.MethodPost, devicePath(tt.path), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var e Error
			decode(t, rec, &e)
			if e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
		})
	}
}

// ============================================================================
// Command log
// ============================================================================

func TestCommandLog(t *testing.T) {
	log := &fakeCommandLog{entries: []dispatch.Entry{
		{ID: 2, MAC: testMAC, Command: "stopProgram", ResultCode: "0", SentAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 1, MAC: "other", Command: "startProgram", ResultCode: "0"},
	}}
	rig := testServer(t, func(d *Deps) { d.CommandLog = log })

	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"", http.StatusOK, defaultLogLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=100000", http.StatusOK, maxLogLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		log.limit = 0
		rec := rig.do(t, http.MethodGet, devicePath("/log"+tt.query), "")
		if rec.Code != tt.wantStatus {
			t.Errorf("GET log%s status = %d, want %d", tt.query, rec.Code, tt.wantStatus)
			continue
		}
		if log.limit != tt.wantLimit {
			t.Errorf("GET log%s limit = %d, want %d", tt.query, log.limit, tt.wantLimit)
		}
		if tt.wantStatus != http.StatusOK {
			continue
		}
		var body struct {
			Entries []dispatch.Entry `json:"entries"`
		}
		decode(t, rec, &body)
		if len(body.Entries) != 1 || body.Entries[0].Command != "stopProgram" {
			t.Errorf("entries = %+v, want the one stopProgram entry", body.Entries)
		}
	}
}

func TestCommandLog_NotConfigured(t *testing.T) {
	rig := testServer(t)
	rec := rig.do(t, http.MethodGet, devicePath("/log"), "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// ============================================================================
// Middleware
// ============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	rig := testServer(t)

	rec := rig.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	rig.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	rig := testServer(t)
	h := rig.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		"device_not_found":    http.StatusNotFound,
		"invalid_value":       http.StatusBadRequest,
		"command_unavailable": http.StatusConflict,
		"authentication":      http.StatusBadGateway,
		"internal":            http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := statusForCode(code); got != want {
			t.Errorf("statusForCode(%q) = %d, want %d", code, got, want)
		}
	}
}
