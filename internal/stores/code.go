package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1
	maxTxRetries        = 4
)

// CodeStore keeps one OneTimeCode per recipient plus a long-code index so a
// link can be resolved without knowing the recipient.
//
// Records live for ExpiresAt + grace so an expired code is still observable as
// expired; consumed records are deleted outright.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string, grace time.Duration, now func() time.Time) *CodeStore {
	if prefix == "" {
		prefix = "pwl"
	}
	if now == nil {
		now = time.Now
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
		grace:  grace,
		now:    now,
	}
}

func (s *CodeStore) codeKey(sentTo string) string {
	return s.prefix + ":otc:" + sentTo
}

func (s *CodeStore) indexKey(longCode string) string {
	sum := sha256.Sum256([]byte(longCode))
	return s.prefix + ":otl:" + hex.EncodeToString(sum[:])
}

// Mutate loads the record for sentTo (nil when absent), passes a copy to fn
// and atomically stores what fn returns. A nil result deletes the record.
// When fn returns an error nothing is written and that error is returned
// unchanged. fn may run more than once under contention.
func (s *CodeStore) Mutate(
	ctx context.Context,
	sentTo string,
	fn func(current *OneTimeCode) (*OneTimeCode, error),
) error {
	key := s.codeKey(sentTo)

	for i := 0; i < maxTxRetries; i++ {
		var fnErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.load(ctx, tx, key)
			if err != nil {
				return err
			}

			next, err := fn(current.Clone())
			if err != nil {
				fnErr = err
				return err
			}

			var encoded []byte
			var ttl time.Duration
			if next != nil {
				next.SentTo = sentTo
				ttl = next.ExpiresAt.Sub(s.now()) + s.grace
				if ttl > 0 {
					if encoded, err = encodeOneTimeCode(next); err != nil {
						return err
					}
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if encoded == nil {
					pipe.Del(ctx, key)
					if current != nil {
						pipe.Del(ctx, s.indexKey(current.LongCode))
					}
					return nil
				}

				pipe.Set(ctx, key, encoded, ttl)
				if current != nil && current.LongCode != next.LongCode {
					pipe.Del(ctx, s.indexKey(current.LongCode))
				}
				pipe.Set(ctx, s.indexKey(next.LongCode), sentTo, ttl)
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

// LookupLongCode returns the recipient a long code was issued to, or "" when
// no live record carries it.
func (s *CodeStore) LookupLongCode(ctx context.Context, longCode string) (string, error) {
	sentTo, err := s.redis.Get(ctx, s.indexKey(longCode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sentTo, nil
}

func (s *CodeStore) load(ctx context.Context, tx *redis.Tx, key string) (*OneTimeCode, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	record, err := decodeOneTimeCode(data)
	if err != nil {
		// Unreadable records are treated as absent and overwritten.
		return nil, nil
	}
	return record, nil
}

func encodeOneTimeCode(record *OneTimeCode) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	if err := writeTime(&buf, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, clampCounter(record.FailedAttemptCount)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, clampCounter(record.SentCount)); err != nil {
		return nil, err
	}

	for _, field := range []string{
		record.SentTo,
		record.ClientNonceHash,
		record.ShortCode,
		record.LongCode,
		record.RedirectURL,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeOneTimeCode(data []byte) (*OneTimeCode, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &OneTimeCode{}
	if record.ExpiresAt, err = readTime(reader); err != nil {
		return nil, err
	}

	var failed, sent uint16
	if err := binary.Read(reader, binary.BigEndian, &failed); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sent); err != nil {
		return nil, err
	}
	record.FailedAttemptCount = int(failed)
	record.SentCount = int(sent)

	for _, field := range []*string{
		&record.SentTo,
		&record.ClientNonceHash,
		&record.ShortCode,
		&record.LongCode,
		&record.RedirectURL,
	} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}

	return record, nil
}
