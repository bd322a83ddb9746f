package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const maxFieldLength = 65535

var errFieldTooLong = errors.New("record field too long")

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > maxFieldLength {
		return errFieldTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

// Times are stored as Unix nanoseconds; zero means unset.
func writeTime(buf *bytes.Buffer, t time.Time) error {
	var v int64
	if !t.IsZero() {
		v = t.UnixNano()
	}
	return binary.Write(buf, binary.BigEndian, v)
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var v int64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return time.Time{}, err
	}
	if v == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, v).UTC(), nil
}

func clampCounter(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 65535:
		return 65535
	default:
		return uint16(n)
	}
}
