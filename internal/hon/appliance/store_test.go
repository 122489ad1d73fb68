package appliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/dispatch"
)

// fakeAPI serves fixed payloads and counts calls.
type fakeAPI struct {
	mu         sync.Mutex
	records    []map[string]any
	schema     map[string]any
	context    map[string]any
	statistics map[string]any
	status     string
	contextErr error

	calls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		records:    []map[string]any{washerRecord()},
		schema:     washerSchemaPayload(),
		context:    washerContext(),
		statistics: map[string]any{"totalWashCycle": float64(12)},
		status:     "CONNECTED",
		calls:      make(map[string]int),
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) ListAppliances(context.Context) ([]map[string]any, error) {
	f.hit("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}

func (f *fakeAPI) RetrieveCommands(context.Context, cloud.SchemaQuery) (map[string]any, error) {
	f.hit("commands")
	return f.schema, nil
}

func (f *fakeAPI) Context(context.Context, string, string) (map[string]any, error) {
	f.hit("context")
	if f.contextErr != nil {
		return nil, f.contextErr
	}
	return f.context, nil
}

func (f *fakeAPI) Statistics(context.Context, string, string) (map[string]any, error) {
	f.hit("statistics")
	return f.statistics, nil
}

func (f *fakeAPI) Status(context.Context, string, string) (map[string]any, error) {
	f.hit("status")
	return map[string]any{"category": f.status}, nil
}

// fakeDispatcher records the values of every command it is given.
type fakeDispatcher struct {
	err  error
	sent []sentCommand
}

type sentCommand struct {
	target  dispatch.Target
	name    string
	program string
	values  map[string]string
}

func (f *fakeDispatcher) Send(_ context.Context, target dispatch.Target, cmd *command.Command) (dispatch.Result, error) {
	f.sent = append(f.sent, sentCommand{target: target, name: cmd.Name(), program: cmd.Program(), values: cmd.Values()})
	if f.err != nil {
		return dispatch.Result{Attempts: 1}, f.err
	}
	return dispatch.Result{TransactionID: target.MAC + "_ts", ResultCode: "0", Attempts: 1, Invalidated: 1}, nil
}

func newTestStore(t *testing.T) (*Store, *fakeAPI, *fakeDispatcher, *time.Time) {
	t.Helper()
	api := newFakeAPI()
	disp := &fakeDispatcher{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(api, disp, WithContextTTL(10*time.Second), WithClock(func() time.Time { return now }))
	if _, err := store.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	return store, api, disp, &now
}

func TestDiscover(t *testing.T) {
	store, api, _, _ := newTestStore(t)

	dev, err := store.Device(mac)
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	dev.setStatus(map[string]any{"category": "CONNECTED"})

	second := washerRecord()
	second["macAddress"] = "11:22:33:44:55:66"
	second["applianceTypeId"] = "9"
	api.records = []map[string]any{
		second,
		washerRecord(),
		{"applianceTypeId": "1"}, // no MAC, skipped
	}

	devices, err := store.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Discover() returned %d devices, want 2", len(devices))
	}
	if devices[0].MAC() != "11:22:33:44:55:66" || devices[1].MAC() != mac {
		t.Errorf("Discover() order = %s, %s", devices[0].MAC(), devices[1].MAC())
	}
	if devices[1] != dev || dev.Connection() != "CONNECTED" {
		t.Error("rediscovered device lost its state")
	}

	api.records = []map[string]any{second}
	if _, err := store.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Device(mac); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Device() of dropped appliance error = %v, want ErrDeviceNotFound", err)
	}
	if got := len(store.Devices()); got != 1 {
		t.Errorf("Devices() = %d, want 1", got)
	}
}

func TestAdd(t *testing.T) {
	store := NewStore(newFakeAPI(), &fakeDispatcher{})
	if _, err := store.Add(map[string]any{"macAddress": mac}); !errors.Is(err, ErrIncompleteRecord) {
		t.Errorf("Add() error = %v, want ErrIncompleteRecord", err)
	}
	dev, err := store.Add(washerRecord())
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got, _ := store.Device(mac); got != dev {
		t.Error("Device() did not return the added device")
	}
}

func TestLoadContextIfNeeded(t *testing.T) {
	store, api, _, now := newTestStore(t)
	dev, _ := store.Device(mac)
	ctx := context.Background()

	for range 3 {
		if err := store.LoadContextIfNeeded(ctx, dev); err != nil {
			t.Fatalf("LoadContextIfNeeded() error = %v", err)
		}
	}
	if got := api.count("context"); got != 1 {
		t.Errorf("context fetched %d times within TTL, want 1", got)
	}

	*now = now.Add(11 * time.Second)
	if err := store.LoadContextIfNeeded(ctx, dev); err != nil {
		t.Fatal(err)
	}
	if got := api.count("context"); got != 2 {
		t.Errorf("context fetched %d times after TTL, want 2", got)
	}

	api.contextErr = cloud.ErrTransport
	*now = now.Add(11 * time.Second)
	if err := store.LoadContextIfNeeded(ctx, dev); !errors.Is(err, cloud.ErrTransport) {
		t.Errorf("LoadContextIfNeeded() error = %v, want ErrTransport", err)
	}
}

func TestLoadCommandsIfNeeded(t *testing.T) {
	store, api, _, _ := newTestStore(t)
	dev, _ := store.Device(mac)

	if dev.CommandsLoaded() {
		t.Fatal("commands loaded before LoadCommandsIfNeeded")
	}
	for range 2 {
		if err := store.LoadCommandsIfNeeded(context.Background(), dev); err != nil {
			t.Fatalf("LoadCommandsIfNeeded() error = %v", err)
		}
	}
	if got := api.count("commands"); got != 1 {
		t.Errorf("commands fetched %d times, want 1", got)
	}
	if names := dev.Commands().Names(); len(names) != 3 {
		t.Errorf("Commands().Names() = %v", names)
	}
}

func TestLoadCommandsIfNeeded_NoModel(t *testing.T) {
	store, api, _, _ := newTestStore(t)
	api.schema = map[string]any{"resultCode": "0"}
	dev, _ := store.Device(mac)

	err := store.LoadCommandsIfNeeded(context.Background(), dev)
	if !errors.Is(err, command.ErrMissingApplianceModel) {
		t.Errorf("LoadCommandsIfNeeded() error = %v, want ErrMissingApplianceModel", err)
	}
	if dev.CommandsLoaded() {
		t.Error("a failed load marked commands loaded")
	}
}

func TestRefresh(t *testing.T) {
	store, api, _, _ := newTestStore(t)
	dev, _ := store.Device(mac)

	if err := store.Refresh(context.Background(), dev); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	for _, name := range []string{"commands", "status", "context", "statistics"} {
		if api.count(name) != 1 {
			t.Errorf("%s fetched %d times, want 1", name, api.count(name))
		}
	}
	if dev.Connection() != "CONNECTED" || !dev.Has("statistics.totalWashCycle") {
		t.Errorf("Refresh() left connection %q, stats %v", dev.Connection(), dev.Statistics())
	}

	api.contextErr = errors.New("boom")
	dev.markContextStale()
	if err := store.Refresh(context.Background(), dev); err == nil {
		t.Error("Refresh() error = nil, want the context failure")
	}
	if api.count("statistics") != 2 {
		t.Error("Refresh() stopped at the first failing step")
	}
}

func TestExecute_Start(t *testing.T) {
	store, _, disp, _ := newTestStore(t)

	result, err := store.Execute(context.Background(), mac, CommandStart, "cottons", map[string]any{"prewash": "1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.ResultCode != "0" {
		t.Errorf("ResultCode = %q", result.ResultCode)
	}
	if len(disp.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(disp.sent))
	}

	sent := disp.sent[0]
	if sent.name != CommandStart || sent.program != "cottons" {
		t.Errorf("sent %s/%s", sent.name, sent.program)
	}
	if sent.values["temp"] != "60" || sent.values["prewash"] != "1" || sent.values["spinSpeed"] != "800" {
		t.Errorf("sent values = %v", sent.values)
	}
	if sent.target.Options["energyLabel"] != "A" {
		t.Errorf("target options = %v", sent.target.Options)
	}

	dev, _ := store.Device(mac)
	if v, _ := dev.Get("prewash"); v != "1" {
		t.Errorf("prewash after send = %v, want written back", v)
	}
	if v, _ := dev.Get("attributes.parameters.program"); v != nil {
		t.Errorf("program written back as %v", v)
	}
}

func TestExecute_Stop(t *testing.T) {
	store, _, disp, _ := newTestStore(t)

	if _, err := store.Execute(context.Background(), mac, CommandStop, "", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if disp.sent[0].values["onOffStatus"] != "0" {
		t.Errorf("sent values = %v", disp.sent[0].values)
	}
	dev, _ := store.Device(mac)
	if v, _ := dev.Get("attributes.parameters.onOffStatus"); v != nil {
		t.Errorf("stopProgram values written back: onOffStatus = %v", v)
	}
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mac     string
		command string
		program string
		status  string
		sendErr error
		wantErr error
	}{
		{"unknown device", "00:00:00:00:00:00", CommandStart, "", "CONNECTED", nil, ErrDeviceNotFound},
		{"disconnected", mac, CommandStart, "", "DISCONNECTED", nil, ErrDisconnected},
		{"unknown program", mac, CommandStart, "wool", "CONNECTED", nil, command.ErrUnknownProgram},
		{"unknown command", mac, "startDelay", "", "CONNECTED", nil, ErrCommandUnavailable},
		{"rejected", mac, CommandSettings, "", "CONNECTED", cloud.ErrRejected, cloud.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, api, disp, _ := newTestStore(t)
			api.status = tt.status
			disp.err = tt.sendErr

			_, err := store.Execute(context.Background(), tt.mac, tt.command, tt.program, map[string]any{"lockStatus": "1"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if tt.sendErr == nil && len(disp.sent) != 0 {
				t.Errorf("sent %d commands after a preparation failure", len(disp.sent))
			}

			if dev, err := store.Device(tt.mac); err == nil {
				if v, _ := dev.Get("attributes.parameters.lockStatus"); v != nil {
					t.Errorf("failed command written back: lockStatus = %v", v)
				}
			}
		})
	}
}

func TestExecute_ContextStaleAfterSend(t *testing.T) {
	store, api, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Execute(ctx, mac, CommandSettings, "", map[string]any{"lockStatus": "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Execute(ctx, mac, CommandSettings, "", map[string]any{"lockStatus": "0"}); err != nil {
		t.Fatal(err)
	}
	if got := api.count("context"); got != 2 {
		t.Errorf("context fetched %d times, want a reload after each send", got)
	}
}

// TestExecute_ConcurrentReads runs commands while other goroutines read the
// same device, as the bridge poller and the API do. Run with -race.
func TestExecute_ConcurrentReads(t *testing.T) {
	store, _, disp, _ := newTestStore(t)
	ctx := context.Background()
	dev, err := store.Device(mac)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.LoadCommandsIfNeeded(ctx, dev); err != nil {
		t.Fatal(err)
	}

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range rounds {
			value := "0"
			if i%2 == 1 {
				value = "1"
			}
			if _, err := store.Execute(ctx, mac, CommandSettings, "", map[string]any{"lockStatus": value}); err != nil {
				t.Errorf("Execute() error = %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range rounds {
			state := dev.Snapshot()
			if v := state.Settings["settings.lockStatus"]; v != "0" && v != "1" {
				t.Errorf("Snapshot() lockStatus = %q", v)
			}
			dev.Parameters()
			dev.Get("settings.lockStatus")
			dev.Get("lockStatus")
		}
	}()
	wg.Wait()

	if len(disp.sent) == 0 {
		t.Error("no command sent")
	}
}
