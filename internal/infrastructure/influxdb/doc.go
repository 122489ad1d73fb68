// Package influxdb writes appliance telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. The bridge writes
// three measurements, each tagged with the appliance mac, type and name:
//
//   - appliance_statistics: numeric fields of the statistics payload
//     (cycle counts, water and energy totals)
//   - appliance_parameters: numeric context parameters (temperature,
//     remaining time, spin speed), parsed from their string form
//   - appliance_commands: one point per dispatched command
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStatistics(influxdb.Appliance{MAC: mac, Type: "WM"}, stats, time.Now())
//
// Writes are non-blocking and batched (batch_size, flush_interval); batch
// failures are delivered to the SetOnError callback.
package influxdb
