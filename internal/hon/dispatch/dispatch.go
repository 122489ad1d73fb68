package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/command"
)

// TimestampLayout is the wire timestamp: UTC, second precision, "Z" suffix.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Logger defines the logging interface used by the Dispatcher.
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

// Sender posts command payloads and drops a device's cached reads.
// It is satisfied by *cloud.Client.
type Sender interface {
	Send(ctx context.Context, body any) (map[string]any, error)
	Invalidate(mac string) int
}

// Reauthorizer forces a fresh login. It is satisfied by *session.Manager.
type Reauthorizer interface {
	ForceReauthorize(ctx context.Context) error
}

// Identity describes the client to the API, as in the login call.
type Identity struct {
	MobileID    string
	OS          string
	OSVersion   int
	AppVersion  string
	DeviceModel string
}

// Target is the appliance a command is sent to.
type Target struct {
	MAC      string
	TypeName string

	// Options is the appliance-model options section of the command schema.
	Options map[string]any
}

// DeviceInfo is the "device" block of the payload.
type DeviceInfo struct {
	MobileID    string `json:"mobileId"`
	MobileOS    string `json:"mobileOs"`
	OSVersion   int    `json:"osVersion"`
	AppVersion  string `json:"appVersion"`
	DeviceModel string `json:"deviceModel"`
}

// Payload is the body of a send call.
type Payload struct {
	MacAddress          string            `json:"macAddress"`
	Timestamp           string            `json:"timestamp"`
	CommandName         string            `json:"commandName"`
	ProgramName         string            `json:"programName,omitempty"`
	TransactionID       string            `json:"transactionId"`
	ApplianceOptions    map[string]any    `json:"applianceOptions"`
	Device              DeviceInfo        `json:"device"`
	Attributes          map[string]string `json:"attributes"`
	AncillaryParameters map[string]string `json:"ancillaryParameters"`
	Parameters          map[string]string `json:"parameters"`
	ApplianceType       string            `json:"applianceType"`
}

// Result describes one Send call.
type Result struct {
	TransactionID string
	ResultCode    string
	Attempts      int
	Invalidated   int
}

// Dispatcher sends commands.
//
// Thread Safety:
//   - Send is safe for concurrent use; the caller owns the command's values.
type Dispatcher struct {
	sender   Sender
	auth     Reauthorizer
	identity Identity
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder records every send.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(sender Sender, auth Reauthorizer, identity Identity, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		auth:     auth,
		identity: identity,
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// BuildPayload serialises the command's current values for target.
// Program variants are sent with their full schema key as programName.
func (d *Dispatcher) BuildPayload(target Target, cmd *command.Command) Payload {
	ts := d.now().UTC().Format(TimestampLayout)
	options := target.Options
	if options == nil {
		options = map[string]any{}
	}

	return Payload{
		MacAddress:       target.MAC,
		Timestamp:        ts,
		CommandName:      cmd.Name(),
		ProgramName:      cmd.ProgramKey(),
		TransactionID:    target.MAC + "_" + ts,
		ApplianceOptions: options,
		Device: DeviceInfo{
			MobileID:    d.identity.MobileID,
			MobileOS:    d.identity.OS,
			OSVersion:   d.identity.OSVersion,
			AppVersion:  d.identity.AppVersion,
			DeviceModel: d.identity.DeviceModel,
		},
		Attributes: map[string]string{
			"channel":     "mobileApp",
			"origin":      "standardProgram",
			"energyLabel": "0",
		},
		AncillaryParameters: cmd.AncillaryValues(),
		Parameters:          cmd.Values(),
		ApplianceType:       target.TypeName,
	}
}

// Send dispatches cmd to target. On success the device's cached reads are
// invalidated. A transport failure is retried exactly once after a forced
// re-authentication; the retry is skipped if that re-authentication fails.
func (d *Dispatcher) Send(ctx context.Context, target Target, cmd *command.Command) (Result, error) {
	if cmd == nil {
		return Result{}, ErrNoCommand
	}
	if target.MAC == "" {
		return Result{}, ErrNoTarget
	}

	payload := d.BuildPayload(target, cmd)
	result := Result{TransactionID: payload.TransactionID, Attempts: 1}
	d.logger.Debug("sending command", "mac", target.MAC, "command", cmd.Name(),
		"program", cmd.Program(), "transaction_id", payload.TransactionID)

	resp, err := d.sender.Send(ctx, payload)
	if errors.Is(err, cloud.ErrTransport) {
		d.logger.Warn("command send failed, re-authenticating", "mac", target.MAC, "error", err)
		if authErr := d.auth.ForceReauthorize(ctx); authErr != nil {
			err = errors.Join(err, fmt.Errorf("re-authenticating: %w", authErr))
		} else {
			result.Attempts = 2
			resp, err = d.sender.Send(ctx, payload)
		}
	}
	result.ResultCode = cloud.ResultCode(resp)

	d.record(ctx, cmd, payload, result, err)

	if err != nil {
		d.logger.Error("command failed", "mac", target.MAC, "command", cmd.Name(),
			"transaction_id", payload.TransactionID, "result_code", result.ResultCode,
			"attempts", result.Attempts, "payload", payload, "error", err)
		return result, fmt.Errorf("sending %s to %s: %w", cmd.Name(), target.MAC, err)
	}

	result.Invalidated = d.sender.Invalidate(target.MAC)
	d.logger.Info("command accepted", "mac", target.MAC, "command", cmd.Name(),
		"program", cmd.Program(), "transaction_id", payload.TransactionID)
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, cmd *command.Command, p Payload, r Result, sendErr error) {
	if d.recorder == nil {
		return
	}
	entry := Entry{
		MAC:           p.MacAddress,
		Command:       cmd.Name(),
		Program:       cmd.Program(),
		TransactionID: p.TransactionID,
		ResultCode:    r.ResultCode,
		Attempts:      r.Attempts,
		SentAt:        d.now().UTC(),
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		d.logger.Warn("recording command", "transaction_id", p.TransactionID, "error", err)
	}
}
