// Package limiters implements the fixed-window issuance throttle backing
// the recovery engine. It bounds how often codes can be generated for a
// contact address or from a client IP, independent of the per-record
// attempt budget.
package limiters
