// Package api implements the operator HTTP API of the hOn bridge.
//
// Routes, all under /api/v1:
//
//	GET  /health                          dependency checks (503 when any fails)
//	GET  /metrics                         runtime, appliance and database pool figures
//	GET  /devices                         appliance states (?connection=CONNECTED)
//	POST /devices/discover                list the account's appliances again
//	GET  /devices/{mac}                   one state (?refresh=true reloads it first)
//	GET  /devices/{mac}/state/{key}       one merged-state value, e.g. statistics.totalWashCycle
//	GET  /devices/{mac}/settings          changeable parameters as <command>.<key>
//	GET  /devices/{mac}/commands          declared commands and their programs
//	GET  /devices/{mac}/commands/{cmd}    parameter help (?program=cottons)
//	POST /devices/{mac}/commands/{cmd}    send: {"program": "...", "parameters": {...}}
//	GET  /devices/{mac}/log               recent dispatched commands (?limit=20)
//
// Command failures are classified with the same codes the MQTT bridge
// publishes, so an operator sees "invalid_value" or "disconnected" whichever
// way the command arrived.
//
// POST routes require an operator bearer token (HS256, see IssueToken) when
// api.auth is enabled. Read routes stay open; bind the server to a trusted
// interface.
package api
