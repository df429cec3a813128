// Package schema compiles CUE trace schemas into ir.Schema.
//
// A schema names the trace fields that play structural parts (location,
// channel, message, buffer, identity), declares the closed enumeration of
// event kinds with their compatibility rows and rule sequences, and
// optionally configures the synchronization barrier and proxy correlation.
//
// The schema for the STS OpenFlow instrumentation is embedded and returned
// by Default.
package schema
