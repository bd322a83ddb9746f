package mongostore

import (
	"context"
	"fmt"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type deviceDoc struct {
	SubjectID    string    `bson:"subjectId"`
	DeviceIDHash string    `bson:"deviceIdHash"`
	Description  string    `bson:"description"`
	AddedOn      time.Time `bson:"addedOn"`
}

// DeviceStore implements goPasswordless.DeviceStore with one document per
// (subject, device hash).
type DeviceStore struct {
	coll *mongo.Collection
}

func deviceFilter(subjectID, deviceIDHash string) bson.M {
	return bson.M{"subjectId": subjectID, "deviceIdHash": deviceIDHash}
}

func (s *DeviceStore) HasDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, deviceFilter(subjectID, deviceIDHash), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *DeviceStore) CountDevices(ctx context.Context, subjectID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"subjectId": subjectID})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AddDevice inserts the device unless the hash is already registered; an
// existing entry keeps its description and date.
func (s *DeviceStore) AddDevice(ctx context.Context, device goPasswordless.TrustedDevice) error {
	_, err := s.coll.UpdateOne(ctx,
		deviceFilter(device.SubjectID, device.DeviceIDHash),
		bson.M{"$setOnInsert": deviceDoc{
			SubjectID:    device.SubjectID,
			DeviceIDHash: device.DeviceIDHash,
			Description:  device.Description,
			AddedOn:      device.AddedOn,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to add device: %w", err)
	}
	return nil
}

func (s *DeviceStore) RemoveDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, deviceFilter(subjectID, deviceIDHash))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *DeviceStore) ListDevices(ctx context.Context, subjectID string) ([]goPasswordless.TrustedDevice, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"subjectId": subjectID},
		options.Find().SetSort(bson.D{{Key: "addedOn", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []deviceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]goPasswordless.TrustedDevice, 0, len(docs))
	for _, d := range docs {
		out = append(out, goPasswordless.TrustedDevice{
			SubjectID:    d.SubjectID,
			DeviceIDHash: d.DeviceIDHash,
			Description:  d.Description,
			AddedOn:      d.AddedOn.UTC(),
		})
	}
	return out, nil
}
