package mongostore

import (
	"context"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"go.mongodb.org/mongo-driver/mongo"
)

type passwordDoc struct {
	SubjectID          string    `bson:"_id"`
	Version            string    `bson:"version"`
	Hash               string    `bson:"hash"`
	LastChangedAt      time.Time `bson:"lastChangedAt"`
	FailedAttemptCount int       `bson:"failedAttemptCount"`
	TempLockUntil      time.Time `bson:"tempLockUntil,omitempty"`
}

func (d *passwordDoc) record() *goPasswordless.PasswordRecord {
	rec := &goPasswordless.PasswordRecord{
		SubjectID:          d.SubjectID,
		Hash:               d.Hash,
		LastChangedAt:      d.LastChangedAt.UTC(),
		FailedAttemptCount: d.FailedAttemptCount,
	}
	if !d.TempLockUntil.IsZero() {
		rec.TempLockUntil = d.TempLockUntil.UTC()
	}
	return rec
}

// PasswordStore implements goPasswordless.PasswordStore.
type PasswordStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (s *PasswordStore) Get(ctx context.Context, subjectID string) (*goPasswordless.PasswordRecord, error) {
	var doc passwordDoc
	found, err := findOne(ctx, s.coll, subjectID, &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.record(), nil
}

func (s *PasswordStore) Mutate(
	ctx context.Context,
	subjectID string,
	fn func(current *goPasswordless.PasswordRecord) (*goPasswordless.PasswordRecord, error),
) error {
	for i := 0; i < maxTxRetries; i++ {
		var doc passwordDoc
		found, err := findOne(ctx, s.coll, subjectID, &doc)
		if err != nil {
			return err
		}

		var current *goPasswordless.PasswordRecord
		if found {
			current = doc.record()
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var write any
		if next != nil {
			write = &passwordDoc{
				SubjectID:          subjectID,
				Version:            newVersion(),
				Hash:               next.Hash,
				LastChangedAt:      next.LastChangedAt,
				FailedAttemptCount: next.FailedAttemptCount,
				TempLockUntil:      next.TempLockUntil,
			}
		}

		ok, err := commit(ctx, s.coll, subjectID, doc.Version, write)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrConflict
}
