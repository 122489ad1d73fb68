// Package hon bridges hOn appliances to MQTT.
//
// On every polling interval the bridge lists the account's appliances,
// refreshes each one through the appliance store (status, context,
// statistics and, once, the command schema) and publishes:
//
//	{prefix}/state/{mac}          appliance.State as JSON (retained)
//	{prefix}/availability/{mac}   "online" when the status reads CONNECTED (retained)
//
// Numeric statistics and context parameters go to InfluxDB when telemetry
// is configured.
//
// Command requests arrive on {prefix}/command/{mac}/{command} with an
// optional CommandMessage payload:
//
//	{"id": "7f3c...", "program": "cottons", "parameters": {"temp": 40}}
//
// Each request is executed through Store.Execute and answered with a
// ResultMessage on {prefix}/result/{mac}. Failures carry one of the
// ErrCode* codes.
package hon
