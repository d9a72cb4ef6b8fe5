// Package secret provides the one-way hashing primitive the recovery
// engine uses for both recovery codes and new credentials: argon2id with
// PHC-string encoding and constant-time verification.
package secret
