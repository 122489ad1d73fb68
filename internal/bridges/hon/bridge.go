package hon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
	"github.com/nerrad567/hon-bridge/internal/hon/dispatch"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/mqtt"
)

const (
	// DefaultInterval is the polling interval when none is configured.
	DefaultInterval = 30 * time.Second

	// commandTimeout bounds one command request, including re-authentication.
	commandTimeout = 30 * time.Second

	// maxConcurrentRefresh limits parallel device refreshes per poll.
	maxConcurrentRefresh = 4
)

// Store is the appliance store the bridge polls and commands.
// It is satisfied by *appliance.Store.
type Store interface {
	Discover(ctx context.Context) ([]*appliance.Device, error)
	Devices() []*appliance.Device
	Device(mac string) (*appliance.Device, error)
	Refresh(ctx context.Context, dev *appliance.Device) error
	Execute(ctx context.Context, mac, name, program string, overrides map[string]any) (dispatch.Result, error)
}

// Publisher is the MQTT surface the bridge needs. It is satisfied by
// *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Telemetry receives numeric appliance data. It is satisfied by
// *influxdb.Client and is optional.
type Telemetry interface {
	WriteStatistics(a influxdb.Appliance, stats map[string]any, at time.Time) int
	WriteParameters(a influxdb.Appliance, params map[string]any, at time.Time) int
	WriteCommand(a influxdb.Appliance, command, program, resultCode string, attempts int, ok bool, at time.Time)
}

// Logger defines the logging interface used by the bridge.
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

// Options configures a Bridge.
type Options struct {
	Store  Store
	MQTT   Publisher
	Topics mqtt.Topics

	// Telemetry is optional.
	Telemetry Telemetry

	// Interval between polls. Default: DefaultInterval.
	Interval time.Duration

	// QoS for every publish and the command subscription.
	QoS byte

	Logger Logger

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Bridge connects the appliance store to MQTT. It polls every appliance on
// a fixed interval and publishes state and availability, and it turns
// command requests into Store.Execute calls.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	store     Store
	mqtt      Publisher
	topics    mqtt.Topics
	telemetry Telemetry
	interval  time.Duration
	qos       byte
	logger    Logger
	now       func() time.Time

	// Last published availability per MAC, for change logging and for
	// retiring devices that disappear from the account.
	known   map[string]string
	knownMu sync.Mutex

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// New creates a bridge. Call Start to begin polling.
func New(opts Options) (*Bridge, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: MQTT client", ErrMissingDependency)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		store:     opts.Store,
		mqtt:      opts.MQTT,
		topics:    opts.Topics,
		telemetry: opts.Telemetry,
		interval:  opts.Interval,
		qos:       opts.QoS,
		logger:    opts.Logger,
		now:       opts.Now,
		known:     make(map[string]string),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}
	if b.interval <= 0 {
		b.interval = DefaultInterval
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Start subscribes to command requests and starts the poll loop. The first
// poll runs immediately.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.mqtt.Subscribe(b.topics.AllCommands(), b.qos, b.HandleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", b.topics.AllCommands())

	b.wg.Add(1)
	go b.pollLoop(ctx)

	b.logger.Info("bridge started", "interval", b.interval)
	return nil
}

// Stop ends the poll loop and cancels in-flight commands. Safe to call
// more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	// Stop aborts an in-flight poll as well.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.ctx, cancel)
	defer stop()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if err := b.Poll(ctx); err != nil {
			b.logger.Error("poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
		}
	}
}

// Poll discovers appliances, refreshes each one and publishes its state,
// availability and telemetry. Appliances that left the account are marked
// offline and their retained state is cleared. A failed refresh is logged
// and the device's last known state is still published.
func (b *Bridge) Poll(ctx context.Context) error {
	devices, err := b.store.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering appliances: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentRefresh)
	for _, dev := range devices {
		g.Go(func() error {
			b.refresh(ctx, dev)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // refresh reports its own errors

	b.retire(devices)
	return nil
}

func (b *Bridge) refresh(ctx context.Context, dev *appliance.Device) {
	if err := b.store.Refresh(ctx, dev); err != nil {
		b.logger.Warn("refresh incomplete", "mac", dev.MAC(), "error", err)
	}

	b.publishState(dev)
	b.publishAvailability(dev.MAC(), availability(dev.Connection()))

	if b.telemetry == nil {
		return
	}
	tags := telemetryTags(dev)
	at := b.now()
	if stats := dev.Statistics(); len(stats) > 0 {
		b.telemetry.WriteStatistics(tags, stats, at)
	}
	b.telemetry.WriteParameters(tags, dev.ContextParameters(), at)
}

// Republish publishes the last known state and availability of every
// appliance without contacting the cloud. It is run on MQTT reconnect so a
// restarted broker gets its retained messages back before the next poll.
func (b *Bridge) Republish() int {
	devices := b.store.Devices()
	for _, dev := range devices {
		b.publishState(dev)
		b.publishAvailability(dev.MAC(), availability(dev.Connection()))
	}
	b.logger.Debug("republished appliance state", "count", len(devices))
	return len(devices)
}

func (b *Bridge) publishState(dev *appliance.Device) {
	payload, err := json.Marshal(dev.Snapshot())
	if err != nil {
		b.logger.Error("encoding state", "mac", dev.MAC(), "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(dev.MAC()), payload, b.qos, true); err != nil {
		b.logger.Warn("publishing state", "mac", dev.MAC(), "error", err)
	}
}

func (b *Bridge) publishAvailability(mac, status string) {
	b.knownMu.Lock()
	previous, seen := b.known[mac]
	b.known[mac] = status
	b.knownMu.Unlock()

	if seen && previous != status {
		b.logger.Info("appliance availability changed", "mac", mac, "from", previous, "to", status)
	}
	if err := b.mqtt.Publish(b.topics.Availability(mac), []byte(status), b.qos, true); err != nil {
		b.logger.Warn("publishing availability", "mac", mac, "error", err)
	}
}

// retire marks appliances no longer listed as offline and clears their
// retained state.
func (b *Bridge) retire(current []*appliance.Device) {
	listed := make(map[string]bool, len(current))
	for _, dev := range current {
		listed[dev.MAC()] = true
	}

	b.knownMu.Lock()
	var gone []string
	for mac := range b.known {
		if !listed[mac] {
			gone = append(gone, mac)
			delete(b.known, mac)
		}
	}
	b.knownMu.Unlock()

	for _, mac := range gone {
		b.logger.Info("appliance removed", "mac", mac)
		//nolint:errcheck // Best effort; the next poll does not retry removed devices
		b.mqtt.Publish(b.topics.Availability(mac), []byte(AvailabilityOffline), b.qos, true)
		//nolint:errcheck // An empty retained payload deletes the retained message
		b.mqtt.Publish(b.topics.State(mac), nil, b.qos, true)
	}
}

// HandleCommand is the MQTT handler for command requests. Every request
// that names a device gets a ResultMessage, including malformed ones.
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	mac, name, ok := b.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	var msg CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			b.publishResult(b.failure(CommandMessage{ID: uuid.NewString()}, mac, name, dispatch.Result{}, err))
			return err
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.logger.Info("received command", "command_id", msg.ID, "mac", mac, "command", name,
		"program", msg.Program, "source", msg.Source)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	result, err := b.store.Execute(ctx, mac, name, msg.Program, msg.Parameters)
	b.recordCommand(mac, name, msg.Program, result, err)
	if err != nil {
		b.publishResult(b.failure(msg, mac, name, result, err))
		return fmt.Errorf("executing %s on %s: %w", name, mac, err)
	}

	b.publishResult(ResultMessage{
		CommandID:     msg.ID,
		MAC:           mac,
		Command:       name,
		Program:       msg.Program,
		Status:        ResultAccepted,
		TransactionID: result.TransactionID,
		ResultCode:    result.ResultCode,
		Attempts:      result.Attempts,
		Timestamp:     b.now().UTC(),
	})

	// Sent values are already written back; publish them without waiting
	// for the next poll.
	if dev, err := b.store.Device(mac); err == nil {
		b.publishState(dev)
	}
	return nil
}

func (b *Bridge) failure(msg CommandMessage, mac, name string, result dispatch.Result, err error) ResultMessage {
	return ResultMessage{
		CommandID:     msg.ID,
		MAC:           mac,
		Command:       name,
		Program:       msg.Program,
		Status:        ResultFailed,
		TransactionID: result.TransactionID,
		ResultCode:    result.ResultCode,
		Attempts:      result.Attempts,
		Error:         &ResultError{Code: ErrorCode(err), Message: err.Error()},
		Timestamp:     b.now().UTC(),
	}
}

func (b *Bridge) publishResult(msg ResultMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encoding command result", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.CommandResult(msg.MAC), payload, b.qos, false); err != nil {
		b.logger.Warn("publishing command result", "mac", msg.MAC, "error", err)
	}
}

func (b *Bridge) recordCommand(mac, name, program string, result dispatch.Result, err error) {
	if b.telemetry == nil || result.Attempts == 0 {
		return
	}
	tags := influxdb.Appliance{MAC: mac}
	if dev, derr := b.store.Device(mac); derr == nil {
		tags = telemetryTags(dev)
	}
	b.telemetry.WriteCommand(tags, name, program, result.ResultCode, result.Attempts, err == nil, b.now())
}

func telemetryTags(dev *appliance.Device) influxdb.Appliance {
	info := dev.Info()
	return influxdb.Appliance{MAC: info.MAC, Type: info.TypeName, Name: info.Name}
}
