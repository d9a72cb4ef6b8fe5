package recovery

import (
	"context"
	"time"
)

// RecoveryRecord is the externally visible shape of the per-account record.
// Exactly zero or one record exists per account: issuance upserts it,
// consumption deletes it. Timestamps are Unix seconds; LockedUntil zero
// means no lockout.
type RecoveryRecord struct {
	AccountID      string
	ContactAddress string
	IssueID        string
	CodeHash       string
	IssuedAt       int64
	ExpiresAt      int64
	Attempts       uint16
	LockedUntil    int64
	Verified       bool
}

// SecretHasher is the one-way hash primitive used for both recovery codes
// and new credentials. Verify must compare in constant time.
// [secret.Argon2] is the default implementation.
type SecretHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

// NotificationSender delivers a freshly issued code out-of-band. The engine
// treats delivery as best-effort: a send failure never rolls back the
// stored record. ttl is the code's remaining validity, for display in the
// message.
type NotificationSender interface {
	Send(ctx context.Context, address, code string, ttl time.Duration) error
}

// CredentialUpdater applies the new credential hash to the account once a
// consumption has fully re-validated the code. It is the only account
// mutation this engine ever requests.
type CredentialUpdater interface {
	UpdateCredentialHash(ctx context.Context, accountID, newHash string) error
}

// IssueResult is returned by a successful [Engine.Issue]. It intentionally
// exposes only the caller-facing expiry, not the record itself.
type IssueResult struct {
	ExpiresIn time.Duration
}
