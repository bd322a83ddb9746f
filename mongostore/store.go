package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxTxRetries = 4

// ErrConflict is returned when a Mutate loses the race more than
// maxTxRetries times.
var ErrConflict = errors.New("mongostore: write conflict")

// Config names the collections. Empty fields take the defaults.
type Config struct {
	CodesCollection     string
	PasswordsCollection string
	DevicesCollection   string
	// CodeGrace keeps an expired code readable (and reported as expired)
	// for this long before it counts as absent.
	CodeGrace time.Duration
	Now       func() time.Time
}

const (
	DefaultCodesCollection     = "one_time_codes"
	DefaultPasswordsCollection = "passwords"
	DefaultDevicesCollection   = "trusted_devices"
	DefaultCodeGrace           = 10 * time.Minute
)

// Stores groups the three stores over one database.
type Stores struct {
	Codes     *CodeStore
	Passwords *PasswordStore
	Devices   *DeviceStore
}

// New creates the stores and their indexes.
func New(ctx context.Context, db *mongo.Database, cfg Config) (*Stores, error) {
	if db == nil {
		return nil, errors.New("mongostore: database required")
	}
	if cfg.CodesCollection == "" {
		cfg.CodesCollection = DefaultCodesCollection
	}
	if cfg.PasswordsCollection == "" {
		cfg.PasswordsCollection = DefaultPasswordsCollection
	}
	if cfg.DevicesCollection == "" {
		cfg.DevicesCollection = DefaultDevicesCollection
	}
	if cfg.CodeGrace <= 0 {
		cfg.CodeGrace = DefaultCodeGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Stores{
		Codes:     &CodeStore{coll: db.Collection(cfg.CodesCollection), grace: cfg.CodeGrace, now: cfg.Now},
		Passwords: &PasswordStore{coll: db.Collection(cfg.PasswordsCollection), now: cfg.Now},
		Devices:   &DeviceStore{coll: db.Collection(cfg.DevicesCollection)},
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stores) ensureIndexes(ctx context.Context) error {
	_, err := s.Codes.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "longCode", Value: 1}}},
		{Keys: bson.D{{Key: "purgeAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return fmt.Errorf("failed to create code indexes: %w", err)
	}

	_, err = s.Devices.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subjectId", Value: 1}, {Key: "deviceIdHash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create device indexes: %w", err)
	}
	return nil
}

// newVersion returns the token stamped on every write. Tokens are never
// reused, so a document deleted and re-inserted between a read and its
// commit cannot match the stale filter.
func newVersion() string {
	return uuid.NewString()
}

// commit writes doc over the version read by the caller; an empty
// readVersion means nothing was read and a nil doc means delete. false
// reports a lost race.
func commit(ctx context.Context, coll *mongo.Collection, id, readVersion string, doc any) (bool, error) {
	switch {
	case doc == nil && readVersion == "":
		return true, nil
	case doc == nil:
		res, err := coll.DeleteOne(ctx, bson.M{"_id": id, "version": readVersion})
		if err != nil {
			return false, err
		}
		return res.DeletedCount == 1, nil
	case readVersion == "":
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	default:
		res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": readVersion}, doc)
		if err != nil {
			return false, err
		}
		return res.MatchedCount == 1, nil
	}
}

func findOne(ctx context.Context, coll *mongo.Collection, id string, out any) (bool, error) {
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var (
	_ goPasswordless.CodeStore     = (*CodeStore)(nil)
	_ goPasswordless.PasswordStore = (*PasswordStore)(nil)
	_ goPasswordless.DeviceStore   = (*DeviceStore)(nil)
)
