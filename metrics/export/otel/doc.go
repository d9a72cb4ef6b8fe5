// Package otel bridges recovery engine counters to OpenTelemetry
// observable instruments. Counters are read from the engine snapshot at
// collection time, so the engine stays free of any otel dependency.
package otel
