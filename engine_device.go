package goPasswordless

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DeviceIsTrusted reports whether deviceID is a trusted device of subjectID.
// Ids that are not canonical UUIDs are never trusted.
func (e *Engine) DeviceIsTrusted(ctx context.Context, subjectID, deviceID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if !validSubject(subjectID) || !isCanonicalDeviceID(deviceID) {
		return false, nil
	}

	ok, err := e.devices.HasDevice(ctx, subjectID, e.deviceHash(subjectID, deviceID))
	if err != nil {
		return false, e.storeFailure("has_device", err)
	}
	return ok, nil
}

// AuthorizeDevice trusts the presented device for subjectID and returns the
// device id the caller must keep in its long-lived cookie. A presented id
// that is not a canonical UUID is replaced by a new one.
func (e *Engine) AuthorizeDevice(ctx context.Context, subjectID, presentedDeviceID, description string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if !validSubject(subjectID) {
		return "", fmt.Errorf("%w: subject", ErrInvalidInput)
	}

	deviceID := presentedDeviceID
	if !isCanonicalDeviceID(deviceID) {
		deviceID = uuid.NewString()
	}

	err := e.devices.AddDevice(ctx, TrustedDevice{
		SubjectID:    subjectID,
		DeviceIDHash: e.deviceHash(subjectID, deviceID),
		Description:  clampDescription(description),
		AddedOn:      e.now(),
	})
	if err != nil {
		return "", e.storeFailure("add_device", err)
	}

	e.metricInc(MetricDeviceTrusted)
	e.emitAudit(ctx, auditEventDeviceTrusted, true, subjectID, "", "trusted", nil, nil)
	return deviceID, nil
}

// TrustedDevices lists the trusted devices of subjectID, oldest first.
func (e *Engine) TrustedDevices(ctx context.Context, subjectID string) ([]TrustedDevice, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !validSubject(subjectID) {
		return nil, fmt.Errorf("%w: subject", ErrInvalidInput)
	}

	devices, err := e.devices.ListDevices(ctx, subjectID)
	if err != nil {
		return nil, e.storeFailure("list_devices", err)
	}
	return devices, nil
}

// RevokeDevice removes the device identified by deviceIDHash, as listed by
// TrustedDevices. It reports whether a device was removed.
func (e *Engine) RevokeDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if !validSubject(subjectID) || deviceIDHash == "" {
		return false, fmt.Errorf("%w: device", ErrInvalidInput)
	}

	removed, err := e.devices.RemoveDevice(ctx, subjectID, deviceIDHash)
	if err != nil {
		return false, e.storeFailure("remove_device", err)
	}
	if removed {
		e.metricInc(MetricDeviceRevoked)
		e.emitAudit(ctx, auditEventDeviceRevoked, true, subjectID, "", "revoked", nil, nil)
	}
	return removed, nil
}

func isCanonicalDeviceID(id string) bool {
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

func clampDescription(s string) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, ""))
	if utf8.RuneCountInString(s) <= maxDescriptionLength {
		return s
	}
	r := []rune(s)
	return string(r[:maxDescriptionLength])
}
