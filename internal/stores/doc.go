// Package stores implements the Redis persistence layer for recovery
// records. Every mutation is a single Redis command or WATCH/MULTI
// transaction so the engine stays correct across concurrent requests and
// multiple instances.
package stores
