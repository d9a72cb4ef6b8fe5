package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recoveryRecordVersionV1 = 1
	txMaxRetries            = 8
)

var (
	// ErrRecoveryNotFound indicates no record exists for the account.
	ErrRecoveryNotFound = errors.New("recovery record not found")
	// ErrRecoveryUnavailable indicates the Redis round-trip failed.
	ErrRecoveryUnavailable = errors.New("recovery store unavailable")
)

// RecoveryRecord is the stored per-account state. Timestamps are Unix
// seconds; LockedUntil zero means no lockout.
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

// RecoveryStore keeps at most one record per account under
// prefix:accountID.
type RecoveryStore struct {
	redis  *redis.Client
	prefix string
}

func NewRecoveryStore(redisClient *redis.Client, prefix string) *RecoveryStore {
	return &RecoveryStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RecoveryStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Upsert atomically replaces or inserts the account's record. The key TTL
// starts at the code TTL; FailAttempt extends it when a lockout must
// outlive the code.
func (s *RecoveryStore) Upsert(ctx context.Context, accountID string, record *RecoveryRecord, ttl time.Duration) error {
	encoded, err := encodeRecoveryRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}

	return nil
}

// Get returns the current record or ErrRecoveryNotFound. Expiry is NOT
// applied here: the engine owns both expiring conditions (code expiry and
// lockout expiry) and must see the raw timestamps.
func (s *RecoveryStore) Get(ctx context.Context, accountID string) (*RecoveryRecord, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}

	return decodeRecoveryRecord(data)
}

// FailAttempt records one failed verification. The read-increment-maybe-
// lock sequence runs inside a WATCH transaction so concurrent failures can
// never race past the attempt budget. Attempts saturate at maxAttempts;
// the attempt that reaches the budget also sets LockedUntil and extends
// the key TTL to the lockout horizon, all in the same transaction. The
// updated record is returned.
func (s *RecoveryStore) FailAttempt(
	ctx context.Context,
	accountID string,
	maxAttempts int,
	lockout time.Duration,
	now time.Time,
) (*RecoveryRecord, error) {
	key := s.key(accountID)

	for i := 0; i < txMaxRetries; i++ {
		var updated *RecoveryRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecoveryRecord(data)
			if err != nil {
				return err
			}

			if int(record.Attempts) < maxAttempts {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts && record.LockedUntil == 0 {
					record.LockedUntil = now.Add(lockout).Unix()
				}

				encoded, err := encodeRecoveryRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, encoded, recordTTL(record, now))
					return nil
				})
				if err != nil {
					return err
				}
			}

			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrRecoveryNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w: transaction retries exhausted", ErrRecoveryUnavailable)
}

// MarkVerified flips the verified flag through the same WATCH pattern,
// preserving the record's remaining lifetime.
func (s *RecoveryStore) MarkVerified(ctx context.Context, accountID string, now time.Time) (*RecoveryRecord, error) {
	key := s.key(accountID)

	for i := 0; i < txMaxRetries; i++ {
		var updated *RecoveryRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecoveryRecord(data)
			if err != nil {
				return err
			}

			record.Verified = true

			encoded, err := encodeRecoveryRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, recordTTL(record, now))
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrRecoveryNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w: transaction retries exhausted", ErrRecoveryUnavailable)
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *RecoveryStore) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}
	return nil
}

// recordTTL returns the remaining lifetime: the later of code expiry and
// lockout expiry, floored at one second so an in-flight update never
// writes an immediately vanishing key.
func recordTTL(record *RecoveryRecord, now time.Time) time.Duration {
	horizon := record.ExpiresAt
	if record.LockedUntil > horizon {
		horizon = record.LockedUntil
	}

	ttl := time.Unix(horizon, 0).Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func encodeRecoveryRecord(record *RecoveryRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recoveryRecordVersionV1)

	var flags byte
	if record.Verified {
		flags |= 1
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LockedUntil); err != nil {
		return nil, err
	}

	for _, field := range []string{record.AccountID, record.ContactAddress, record.IssueID, record.CodeHash} {
		if len(field) > 65535 {
			return nil, errors.New("recovery record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRecoveryRecord(data []byte) (*RecoveryRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersionV1 {
		return nil, errors.New("invalid recovery record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &RecoveryRecord{
		Verified: flags&1 != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LockedUntil); err != nil {
		return nil, err
	}

	for _, target := range []*string{&record.AccountID, &record.ContactAddress, &record.IssueID, &record.CodeHash} {
		var fieldLen uint16
		if err := binary.Read(reader, binary.BigEndian, &fieldLen); err != nil {
			return nil, err
		}

		field := make([]byte, fieldLen)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*target = string(field)
	}

	return record, nil
}
