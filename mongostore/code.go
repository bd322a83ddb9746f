package mongostore

import (
	"context"
	"errors"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type codeDoc struct {
	SentTo             string    `bson:"_id"`
	Version            string    `bson:"version"`
	ClientNonceHash    string    `bson:"clientNonceHash"`
	ShortCode          string    `bson:"shortCode"`
	LongCode           string    `bson:"longCode"`
	ExpiresAt          time.Time `bson:"expiresAt"`
	PurgeAt            time.Time `bson:"purgeAt"`
	FailedAttemptCount int       `bson:"failedAttemptCount"`
	SentCount          int       `bson:"sentCount"`
	RedirectURL        string    `bson:"redirectUrl,omitempty"`
}

func (d *codeDoc) record() *goPasswordless.OneTimeCode {
	return &goPasswordless.OneTimeCode{
		SentTo:             d.SentTo,
		ClientNonceHash:    d.ClientNonceHash,
		ShortCode:          d.ShortCode,
		LongCode:           d.LongCode,
		ExpiresAt:          d.ExpiresAt.UTC(),
		FailedAttemptCount: d.FailedAttemptCount,
		SentCount:          d.SentCount,
		RedirectURL:        d.RedirectURL,
	}
}

// CodeStore implements goPasswordless.CodeStore. Documents are keyed by
// recipient.
type CodeStore struct {
	coll  *mongo.Collection
	grace time.Duration
	now   func() time.Time
}

func (s *CodeStore) Mutate(
	ctx context.Context,
	sentTo string,
	fn func(current *goPasswordless.OneTimeCode) (*goPasswordless.OneTimeCode, error),
) error {
	for i := 0; i < maxTxRetries; i++ {
		var doc codeDoc
		found, err := findOne(ctx, s.coll, sentTo, &doc)
		if err != nil {
			return err
		}

		var current *goPasswordless.OneTimeCode
		var version string
		if found {
			version = doc.Version
			if doc.PurgeAt.After(s.now()) {
				current = doc.record()
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var write any
		if next != nil {
			write = &codeDoc{
				SentTo:             sentTo,
				Version:            newVersion(),
				ClientNonceHash:    next.ClientNonceHash,
				ShortCode:          next.ShortCode,
				LongCode:           next.LongCode,
				ExpiresAt:          next.ExpiresAt,
				PurgeAt:            next.ExpiresAt.Add(s.grace),
				FailedAttemptCount: next.FailedAttemptCount,
				SentCount:          next.SentCount,
				RedirectURL:        next.RedirectURL,
			}
		}

		ok, err := commit(ctx, s.coll, sentTo, version, write)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrConflict
}

func (s *CodeStore) LookupLongCode(ctx context.Context, longCode string) (string, error) {
	var doc codeDoc
	err := s.coll.FindOne(ctx,
		bson.M{"longCode": longCode, "purgeAt": bson.M{"$gt": s.now()}},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return doc.SentTo, nil
}
