package appliance

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
)

// Root names addressable by the first segment of a dotted path.
const (
	RootAttributes = "attributes"
	RootAppliance  = "appliance"
	RootStatistics = "statistics"
)

// Device is one discovered appliance and its merged state.
//
// Thread Safety:
//   - State reads and loads are safe for concurrent use, including reads of
//     parameter values while a command is being prepared.
//   - Preparing and sending commands is serialised per device by the Store.
type Device struct {
	info   Info
	record map[string]any

	mu              sync.RWMutex
	attributes      map[string]any
	statistics      map[string]any
	status          map[string]any
	schema          *command.Schema
	contextLoadedAt time.Time
	updatedAt       time.Time

	// cmdMu serialises command preparation and dispatch.
	cmdMu sync.Mutex
}

func newDevice(info Info, record map[string]any) *Device {
	return &Device{
		info:       info,
		record:     cloneRecord(record),
		attributes: map[string]any{"parameters": map[string]any{}},
		statistics: map[string]any{},
		status:     map[string]any{},
	}
}

// Info returns the appliance identity.
func (d *Device) Info() Info { return d.info }

// MAC returns the appliance MAC address.
func (d *Device) MAC() string { return d.info.MAC }

// Name returns the nickname or default name.
func (d *Device) Name() string { return d.info.Name }

// Record returns a copy of the discovery record.
func (d *Device) Record() map[string]any {
	return cloneRecord(d.record)
}

// setContext replaces the attributes with a context payload, merging
// shadow.parameters.<name>.parNewVal into attributes.parameters. The
// payload itself is not modified; it is shared with the cache.
func (d *Device) setContext(payload map[string]any, at time.Time) {
	attrs := maps.Clone(payload)
	if attrs == nil {
		attrs = map[string]any{}
	}
	delete(attrs, "shadow")

	params := maps.Clone(asMap(payload["parameters"]))
	if params == nil {
		params = map[string]any{}
	}
	shadow := asMap(asMap(payload["shadow"])["parameters"])
	for name, raw := range shadow {
		if v, ok := asMap(raw)["parNewVal"]; ok {
			params[name] = v
		}
	}
	attrs["parameters"] = params

	d.mu.Lock()
	d.attributes = attrs
	d.contextLoadedAt = at
	d.updatedAt = at
	d.mu.Unlock()
}

// contextFresh reports whether the context was loaded less than ttl ago.
func (d *Device) contextFresh(now time.Time, ttl time.Duration) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.contextLoadedAt.IsZero() && now.Sub(d.contextLoadedAt) < ttl
}

// markContextStale forces the next context load to fetch.
func (d *Device) markContextStale() {
	d.mu.Lock()
	d.contextLoadedAt = time.Time{}
	d.mu.Unlock()
}

func (d *Device) setStatistics(stats map[string]any, at time.Time) {
	d.mu.Lock()
	d.statistics = stats
	d.updatedAt = at
	d.mu.Unlock()
}

func (d *Device) setStatus(status map[string]any) {
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
}

func (d *Device) setSchema(s *command.Schema) {
	d.mu.Lock()
	d.schema = s
	d.mu.Unlock()
}

// Schema returns the parsed command schema, or nil before it is loaded.
func (d *Device) Schema() *command.Schema {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schema
}

// CommandsLoaded reports whether the command schema has been loaded.
func (d *Device) CommandsLoaded() bool {
	return d.Schema() != nil
}

// Commands returns the command table, or an empty table before the schema
// is loaded.
func (d *Device) Commands() *command.Table {
	if s := d.Schema(); s != nil {
		return s.Table
	}
	return command.NewTable()
}

// Command returns the active variant of the named command.
func (d *Device) Command(name string) (*command.Command, bool) {
	return d.Commands().Get(name)
}

// Connection returns the status category (e.g. "CONNECTED", "DISCONNECTED"),
// or "" before the status has been read.
func (d *Device) Connection() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return parameter.Stringify(d.status["category"])
}

// UpdatedAt returns when context or statistics were last loaded.
func (d *Device) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// ContextParameters returns a copy of attributes.parameters.
func (d *Device) ContextParameters() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(asMap(d.attributes["parameters"]))
}

// Statistics returns the last statistics payload. Callers must not modify it.
func (d *Device) Statistics() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.statistics
}

// writeBack records the values of a sent command in attributes.parameters
// so the next command starts from them even before a refresh. The program
// selector is not written back.
func (d *Device) writeBack(cmd *command.Command) {
	values := cmd.Values()
	delete(values, command.ProgramKey)

	// Copy on write: Get reads the maps outside the lock.
	d.mu.Lock()
	defer d.mu.Unlock()
	attrs := maps.Clone(d.attributes)
	params := maps.Clone(asMap(attrs["parameters"]))
	if params == nil {
		params = map[string]any{}
	}
	for k, v := range values {
		params[k] = v
	}
	attrs["parameters"] = params
	d.attributes = attrs
}

// Get resolves key over the merged state. See the package documentation
// for precedence and path syntax.
func (d *Device) Get(key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	d.mu.RLock()
	attributes, statistics, record := d.attributes, d.statistics, d.record
	d.mu.RUnlock()

	if root, rest, dotted := strings.Cut(key, "."); dotted {
		var base any
		switch root {
		case RootAttributes:
			base = attributes
		case RootAppliance:
			base = record
		case RootStatistics:
			base = statistics
		default:
			values, ok := d.commandValues(root)
			if !ok {
				return nil, false
			}
			base = values
		}
		return walk(base, strings.Split(rest, "."))
	}

	switch key {
	case RootAttributes:
		return attributes, true
	case RootAppliance:
		return record, true
	case RootStatistics:
		return statistics, true
	}
	if values, ok := d.commandValues(key); ok {
		return values, true
	}

	if v, ok := asMap(attributes["parameters"])[key]; ok {
		return v, true
	}
	table := d.Commands()
	for _, name := range table.Names() {
		cmd, _ := table.Get(name)
		if p, ok := cmd.Parameter(key); ok {
			return p.Value(), true
		}
	}
	v, ok := record[key]
	return v, ok
}

// commandValues returns the current values of the named command as a map.
func (d *Device) commandValues(name string) (map[string]any, bool) {
	cmd, ok := d.Command(name)
	if !ok {
		return nil, false
	}
	values := cmd.Values()
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, true
}

// walk follows path through nested maps and lists.
func walk(v any, path []string) (any, bool) {
	for _, seg := range path {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}

// Has reports whether key resolves to a non-nil value.
func (d *Device) Has(key string) bool {
	v, ok := d.Get(key)
	return ok && v != nil
}

// GetString returns the value of key in its wire form.
func (d *Device) GetString(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok || v == nil {
		return "", false
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", false
	}
	return parameter.Stringify(v), true
}

// GetFloat returns the value of key as a number.
func (d *Device) GetFloat(key string) (float64, bool) {
	s, ok := d.GetString(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// GetInt returns the value of key as an integer, truncating decimals.
func (d *Device) GetInt(key string) (int, bool) {
	f, ok := d.GetFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ProgramName returns the last program run, from
// attributes.commandHistory.command.programName: "PROGRAMS.WM.COTTONS"
// reads as "cottons".
func (d *Device) ProgramName() (string, bool) {
	name, ok := d.GetString("attributes.commandHistory.command.programName")
	if !ok || name == "" {
		return "", false
	}
	name = strings.ToLower(name)
	if parts := strings.Split(name, "."); len(parts) == 3 {
		name = parts[2]
	}
	return name, true
}

// Settings returns every changeable parameter of every command, keyed
// "<command>.<key>".
func (d *Device) Settings() map[string]parameter.Parameter {
	out := make(map[string]parameter.Parameter)
	table := d.Commands()
	for _, name := range table.Names() {
		cmd, _ := table.Get(name)
		for key, p := range cmd.Settings() {
			out[name+"."+key] = p
		}
	}
	return out
}

// Parameters returns the current values of every command: command -> key -> value.
func (d *Device) Parameters() map[string]map[string]string {
	out := make(map[string]map[string]string)
	table := d.Commands()
	for _, name := range table.Names() {
		cmd, _ := table.Get(name)
		out[name] = cmd.Values()
	}
	return out
}

// State is a serialisable snapshot of a device.
type State struct {
	Info       Info              `json:"info"`
	Connection string            `json:"connection"`
	Program    string            `json:"program,omitempty"`
	Parameters map[string]any    `json:"parameters"`
	Statistics map[string]any    `json:"statistics,omitempty"`
	Commands   []string          `json:"commands,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Snapshot returns the current state of the device.
func (d *Device) Snapshot() State {
	program, _ := d.ProgramName()
	settings := make(map[string]string)
	for key, p := range d.Settings() {
		settings[key] = p.Value()
	}

	return State{
		Info:       d.info,
		Connection: d.Connection(),
		Program:    program,
		Parameters: d.ContextParameters(),
		Statistics: maps.Clone(d.Statistics()),
		Commands:   d.Commands().Names(),
		Settings:   settings,
		UpdatedAt:  d.UpdatedAt(),
	}
}

// SettingKeys returns the "<command>.<key>" names of Settings, sorted.
func (d *Device) SettingKeys() []string {
	return slices.Sorted(maps.Keys(d.Settings()))
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
