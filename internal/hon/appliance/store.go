package appliance

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/dispatch"
)

// Logger defines the logging interface used by the Store.
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

// API is the subset of the cloud client the store reads through.
// It is satisfied by *cloud.Client.
type API interface {
	ListAppliances(ctx context.Context) ([]map[string]any, error)
	RetrieveCommands(ctx context.Context, q cloud.SchemaQuery) (map[string]any, error)
	Context(ctx context.Context, mac, typeName string) (map[string]any, error)
	Statistics(ctx context.Context, mac, typeName string) (map[string]any, error)
	Status(ctx context.Context, mac, typeName string) (map[string]any, error)
}

// Dispatcher sends prepared commands. It is satisfied by *dispatch.Dispatcher.
type Dispatcher interface {
	Send(ctx context.Context, target dispatch.Target, cmd *command.Command) (dispatch.Result, error)
}

// Store holds the discovered appliances.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Commands to one device are prepared and sent one at a time.
type Store struct {
	api        API
	dispatcher Dispatcher
	contextTTL time.Duration
	logger     Logger
	now        func() time.Time

	mu      sync.RWMutex
	devices map[string]*Device
}

// Option configures a Store.
type Option func(*Store)

// WithContextTTL sets how long a loaded context is reused by
// LoadContextIfNeeded.
func WithContextTTL(ttl time.Duration) Option {
	return func(s *Store) { s.contextTTL = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(api API, dispatcher Dispatcher, opts ...Option) *Store {
	s := &Store{
		api:        api,
		dispatcher: dispatcher,
		contextTTL: cloud.DefaultContextTTL,
		logger:     noopLogger{},
		now:        time.Now,
		devices:    make(map[string]*Device),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Discover lists the account's appliances. Known devices keep their state;
// devices no longer listed are dropped.
func (s *Store) Discover(ctx context.Context) ([]*Device, error) {
	records, err := s.api.ListAppliances(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing appliances: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := make(map[string]*Device, len(records))
	for _, record := range records {
		info, err := NewInfo(record)
		if err != nil {
			s.logger.Warn("skipping appliance", "error", err)
			continue
		}
		if dev, ok := s.devices[info.MAC]; ok {
			found[info.MAC] = dev
			continue
		}
		found[info.MAC] = newDevice(info, record)
		s.logger.Info("appliance discovered", "mac", info.MAC, "name", info.Name, "type", info.TypeName)
	}
	s.devices = found

	return s.sortedLocked(), nil
}

// Add registers a device from a discovery record, replacing any device
// with the same MAC address.
func (s *Store) Add(record map[string]any) (*Device, error) {
	info, err := NewInfo(record)
	if err != nil {
		return nil, err
	}
	dev := newDevice(info, record)

	s.mu.Lock()
	s.devices[info.MAC] = dev
	s.mu.Unlock()
	return dev, nil
}

// Device returns the device with the given MAC address.
func (s *Store) Device(mac string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dev, ok := s.devices[mac]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, mac)
	}
	return dev, nil
}

// Devices returns every device, ordered by MAC address.
func (s *Store) Devices() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []*Device {
	out := make([]*Device, 0, len(s.devices))
	for _, mac := range slices.Sorted(maps.Keys(s.devices)) {
		out = append(out, s.devices[mac])
	}
	return out
}

// LoadContextIfNeeded loads the device context unless it was loaded within
// the context TTL.
func (s *Store) LoadContextIfNeeded(ctx context.Context, dev *Device) error {
	if dev.contextFresh(s.now(), s.contextTTL) {
		return nil
	}
	payload, err := s.api.Context(ctx, dev.MAC(), dev.info.TypeName)
	if err != nil {
		return fmt.Errorf("loading context of %s: %w", dev.MAC(), err)
	}
	dev.setContext(payload, s.now())
	return nil
}

// LoadCommandsIfNeeded loads and parses the command schema once per device.
func (s *Store) LoadCommandsIfNeeded(ctx context.Context, dev *Device) error {
	if dev.CommandsLoaded() {
		return nil
	}

	payload, err := s.api.RetrieveCommands(ctx, dev.info.SchemaQuery())
	if err != nil {
		return fmt.Errorf("loading commands of %s: %w", dev.MAC(), err)
	}
	schema, err := command.Parse(payload)
	if err != nil {
		return fmt.Errorf("parsing commands of %s: %w", dev.MAC(), err)
	}
	for _, skipped := range schema.Skipped {
		s.logger.Debug("schema entry skipped", "mac", dev.MAC(), "reason", skipped)
	}

	dev.setSchema(schema)
	s.logger.Info("commands loaded", "mac", dev.MAC(), "commands", schema.Table.Names())
	return nil
}

// LoadStatistics loads the device statistics. The cloud client caches
// them for the statistics TTL.
func (s *Store) LoadStatistics(ctx context.Context, dev *Device) error {
	stats, err := s.api.Statistics(ctx, dev.MAC(), dev.info.TypeName)
	if err != nil {
		return fmt.Errorf("loading statistics of %s: %w", dev.MAC(), err)
	}
	dev.setStatistics(stats, s.now())
	return nil
}

// Status reads the connection status and returns its category.
func (s *Store) Status(ctx context.Context, dev *Device) (string, error) {
	status, err := s.api.Status(ctx, dev.MAC(), dev.info.TypeName)
	if err != nil {
		return "", fmt.Errorf("reading status of %s: %w", dev.MAC(), err)
	}
	dev.setStatus(status)
	return dev.Connection(), nil
}

// Refresh brings a device up to date: commands (once), status, context
// and statistics. It returns the first error but attempts every step.
func (s *Store) Refresh(ctx context.Context, dev *Device) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	keep(s.LoadCommandsIfNeeded(ctx, dev))
	_, err := s.Status(ctx, dev)
	keep(err)
	keep(s.LoadContextIfNeeded(ctx, dev))
	keep(s.LoadStatistics(ctx, dev))
	return first
}

// Execute prepares and sends a command to the device with the given MAC
// address. Starting a program on a disconnected appliance fails with
// ErrDisconnected.
func (s *Store) Execute(ctx context.Context, mac, name, program string, overrides map[string]any) (dispatch.Result, error) {
	dev, err := s.Device(mac)
	if err != nil {
		return dispatch.Result{}, err
	}
	if err := s.LoadCommandsIfNeeded(ctx, dev); err != nil {
		return dispatch.Result{}, err
	}
	if err := s.LoadContextIfNeeded(ctx, dev); err != nil {
		return dispatch.Result{}, err
	}

	if name == CommandStart {
		connection, err := s.Status(ctx, dev)
		if err != nil {
			return dispatch.Result{}, err
		}
		if connection == "DISCONNECTED" {
			return dispatch.Result{}, fmt.Errorf("%w: %s", ErrDisconnected, mac)
		}
	}

	dev.cmdMu.Lock()
	defer dev.cmdMu.Unlock()

	prepared, err := dev.PrepareCommand(name, program, overrides)
	if err != nil {
		return dispatch.Result{}, err
	}
	return s.send(ctx, dev, prepared)
}

// Send dispatches a prepared command. On success the sent values are
// recorded in the device attributes (except for stopProgram) and the next
// context load fetches fresh values.
func (s *Store) Send(ctx context.Context, dev *Device, prepared Prepared) (dispatch.Result, error) {
	dev.cmdMu.Lock()
	defer dev.cmdMu.Unlock()
	return s.send(ctx, dev, prepared)
}

func (s *Store) send(ctx context.Context, dev *Device, prepared Prepared) (dispatch.Result, error) {
	cmd := prepared.Command
	for _, drift := range prepared.Drift {
		s.logger.Warn("parameter not updated", "mac", dev.MAC(), "command", cmd.Name(),
			"key", drift.Key, "value", drift.Value, "allowed", drift.Allowed)
	}

	var options map[string]any
	if schema := dev.Schema(); schema != nil {
		options = schema.Options
	}
	target := dispatch.Target{MAC: dev.MAC(), TypeName: dev.info.TypeName, Options: options}

	result, err := s.dispatcher.Send(ctx, target, cmd)
	if err != nil {
		return result, err
	}

	if cmd.Name() != CommandStop {
		dev.writeBack(cmd)
	}
	dev.markContextStale()
	return result, nil
}
