package influxdb

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementStatistics = "appliance_statistics"
	MeasurementParameters = "appliance_parameters"
	MeasurementCommands   = "appliance_commands"
)

// Appliance identifies the appliance a point belongs to. Its fields become
// the point's tags.
type Appliance struct {
	MAC  string
	Type string
	Name string
}

func (a Appliance) tags() map[string]string {
	tags := map[string]string{"mac": a.MAC}
	if a.Type != "" {
		tags["type"] = a.Type
	}
	if a.Name != "" {
		tags["name"] = a.Name
	}
	return tags
}

// WriteStatistics writes the numeric values of a statistics payload as one
// appliance_statistics point. Nested objects are flattened with dotted keys
// and non-numeric values are skipped. It returns the number of fields
// written; no point is written when there are none.
//
//	client.WriteStatistics(influxdb.Appliance{MAC: mac, Type: "WM"}, stats, time.Now())
func (c *Client) WriteStatistics(appliance Appliance, stats map[string]any, at time.Time) int {
	return c.writeNumeric(MeasurementStatistics, appliance, stats, at)
}

// WriteParameters writes the numeric context parameters of an appliance
// (temperatures, remaining time, spin speed) as one appliance_parameters
// point. Parameter values arrive as strings and are parsed.
func (c *Client) WriteParameters(appliance Appliance, params map[string]any, at time.Time) int {
	return c.writeNumeric(MeasurementParameters, appliance, params, at)
}

// WriteCommand records one dispatched command. The command and program are
// tags; ok, result code and attempts are fields.
func (c *Client) WriteCommand(appliance Appliance, command, program, resultCode string, attempts int, ok bool, at time.Time) {
	tags := appliance.tags()
	tags["command"] = command
	if program != "" {
		tags["program"] = program
	}
	c.WritePointWithTime(MeasurementCommands, tags, map[string]any{
		"ok":          ok,
		"result_code": resultCode,
		"attempts":    attempts,
	}, at)
}

func (c *Client) writeNumeric(measurement string, appliance Appliance, values map[string]any, at time.Time) int {
	fields := NumericFields(values)
	if len(fields) == 0 {
		return 0
	}
	c.WritePointWithTime(measurement, appliance.tags(), fields, at)
	return len(fields)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp. Writes on a
// closed client are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// NumericFields returns the values that can be stored as float fields.
// Numbers are kept, numeric strings are parsed, and nested maps are
// flattened as "parent.child". Everything else is dropped.
func NumericFields(values map[string]any) map[string]any {
	fields := make(map[string]any)
	collectNumeric(fields, "", values)
	return fields
}

func collectNumeric(dst map[string]any, prefix string, values map[string]any) {
	for key, v := range values {
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case map[string]any:
			collectNumeric(dst, key, val)
		default:
			if f, ok := toFloat(val); ok {
				dst[key] = f
			}
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
