package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const passwordRecordVersionV1 = 1

// PasswordStore keeps one PasswordRecord per subject without expiry.
type PasswordStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordStore(redisClient redis.UniversalClient, prefix string) *PasswordStore {
	if prefix == "" {
		prefix = "pwl"
	}
	return &PasswordStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordStore) key(subjectID string) string {
	return s.prefix + ":pw:" + subjectID
}

// Get returns the record for subjectID, or nil when the subject has no
// password.
func (s *PasswordStore) Get(ctx context.Context, subjectID string) (*PasswordRecord, error) {
	data, err := s.redis.Get(ctx, s.key(subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := decodePasswordRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return record, nil
}

// Mutate follows the same contract as CodeStore.Mutate.
func (s *PasswordStore) Mutate(
	ctx context.Context,
	subjectID string,
	fn func(current *PasswordRecord) (*PasswordRecord, error),
) error {
	key := s.key(subjectID)

	for i := 0; i < maxTxRetries; i++ {
		var fnErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var current *PasswordRecord
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if current, err = decodePasswordRecord(data); err != nil {
					return err
				}
			}

			next, err := fn(current.Clone())
			if err != nil {
				fnErr = err
				return err
			}

			var encoded []byte
			if next != nil {
				next.SubjectID = subjectID
				if encoded, err = encodePasswordRecord(next); err != nil {
					return err
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if encoded == nil {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if fnErr != nil {
				return fnErr
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return ErrConflict
}

func encodePasswordRecord(record *PasswordRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(passwordRecordVersionV1)
	if err := writeTime(&buf, record.LastChangedAt); err != nil {
		return nil, err
	}
	if err := writeTime(&buf, record.TempLockUntil); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, clampCounter(record.FailedAttemptCount)); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.SubjectID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Hash); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodePasswordRecord(data []byte) (*PasswordRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != passwordRecordVersionV1 {
		return nil, errors.New("invalid password record version")
	}

	record := &PasswordRecord{}
	if record.LastChangedAt, err = readTime(reader); err != nil {
		return nil, err
	}
	if record.TempLockUntil, err = readTime(reader); err != nil {
		return nil, err
	}

	var failed uint16
	if err := binary.Read(reader, binary.BigEndian, &failed); err != nil {
		return nil, err
	}
	record.FailedAttemptCount = int(failed)

	if record.SubjectID, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Hash, err = readString(reader); err != nil {
		return nil, err
	}

	return record, nil
}
