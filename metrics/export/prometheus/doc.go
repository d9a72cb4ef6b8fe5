// Package prometheus renders recovery engine metrics in Prometheus text
// exposition format without pulling in a client library.
package prometheus
