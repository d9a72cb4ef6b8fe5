// Package recovery implements a one-time-code password recovery engine:
// issuance, verification, and single-use consumption of short-lived codes
// with a per-account attempt budget and a time-boxed lockout.
//
// The engine keeps exactly one recovery record per account in Redis. Every
// mutation of that record is a single Redis operation or WATCH/MULTI
// transaction, so the attempt budget holds under concurrent requests and
// across horizontally scaled instances without any in-process locking.
//
// Codes are never stored in clear text. The engine hashes them with the
// same argon2id primitive it uses for new credentials (see the secret
// package) and hands the plaintext to a NotificationSender exactly once,
// at issuance.
//
// The engine reports abstract outcomes only (ErrRecoveryNotFound,
// ErrCodeInvalid, ErrCodeExpired, ErrRateLimited, ...). Mapping them to
// transport concerns such as HTTP status codes is the embedding
// application's job, as are authentication, session management, and
// delivery retries.
package recovery
