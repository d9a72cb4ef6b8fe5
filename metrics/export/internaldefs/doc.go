// Package internaldefs holds the shared counter definitions used by the
// Prometheus and OpenTelemetry exporters. It is internal to the exporters
// and not a stable API.
package internaldefs
