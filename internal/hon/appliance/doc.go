// Package appliance holds the discovered appliances of the account and the
// merged view of their state.
//
// A Device combines four sources: the appliance record from discovery, the
// attributes of the last context fetch (with shadow parameter values
// merged into attributes.parameters), statistics, and the parameters of
// its command table. Get resolves a key over them with this precedence:
//
//  1. attributes.parameters
//  2. parameters of the device's commands (active variant, command name order)
//  3. the appliance record
//
// Dotted paths ("attributes.commandHistory.command.programName",
// "statistics.totalWashCycle", "startProgram.temp") address one source
// directly; numeric segments index into lists. Missing keys read as absent,
// never as an error.
//
// Store owns the devices and loads their context, statistics and command
// schema through the cloud client, which caches the reads.
package appliance
