package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const deviceRecordVersionV1 = 1

// DeviceStore keeps the trusted devices of a subject in one Redis hash keyed
// by device id hash. Entries are added once and never rewritten.
type DeviceStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewDeviceStore(redisClient redis.UniversalClient, prefix string) *DeviceStore {
	if prefix == "" {
		prefix = "pwl"
	}
	return &DeviceStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *DeviceStore) key(subjectID string) string {
	return s.prefix + ":dev:" + subjectID
}

func (s *DeviceStore) HasDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error) {
	ok, err := s.redis.HExists(ctx, s.key(subjectID), deviceIDHash).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (s *DeviceStore) CountDevices(ctx context.Context, subjectID string) (int, error) {
	n, err := s.redis.HLen(ctx, s.key(subjectID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// AddDevice stores device unless the same hash is already trusted.
func (s *DeviceStore) AddDevice(ctx context.Context, device TrustedDevice) error {
	encoded, err := encodeTrustedDevice(&device)
	if err != nil {
		return err
	}
	if err := s.redis.HSetNX(ctx, s.key(device.SubjectID), device.DeviceIDHash, encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RemoveDevice reports whether an entry was deleted.
func (s *DeviceStore) RemoveDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error) {
	n, err := s.redis.HDel(ctx, s.key(subjectID), deviceIDHash).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// ListDevices returns the trusted devices of subjectID, oldest first.
func (s *DeviceStore) ListDevices(ctx context.Context, subjectID string) ([]TrustedDevice, error) {
	entries, err := s.redis.HGetAll(ctx, s.key(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	devices := make([]TrustedDevice, 0, len(entries))
	for hash, data := range entries {
		device, err := decodeTrustedDevice([]byte(data))
		if err != nil {
			continue
		}
		device.SubjectID = subjectID
		device.DeviceIDHash = hash
		devices = append(devices, *device)
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].AddedOn.Equal(devices[j].AddedOn) {
			return devices[i].DeviceIDHash < devices[j].DeviceIDHash
		}
		return devices[i].AddedOn.Before(devices[j].AddedOn)
	})
	return devices, nil
}

func encodeTrustedDevice(device *TrustedDevice) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(deviceRecordVersionV1)
	if err := writeTime(&buf, device.AddedOn); err != nil {
		return nil, err
	}
	if err := writeString(&buf, device.Description); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeTrustedDevice(data []byte) (*TrustedDevice, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != deviceRecordVersionV1 {
		return nil, errors.New("invalid device record version")
	}

	device := &TrustedDevice{}
	if device.AddedOn, err = readTime(reader); err != nil {
		return nil, err
	}
	if device.Description, err = readString(reader); err != nil {
		return nil, err
	}

	return device, nil
}
