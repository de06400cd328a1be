package domain

import (
	"errors"
	"strconv"
	"time"
)

// ErrInvalidVersion is returned when a version token cannot be parsed.
var ErrInvalidVersion = errors.New("invalid version token")

// Version is an opaque optimistic-concurrency token. It is derived from the
// ride's last-modified time at microsecond resolution, which is what Postgres
// TIMESTAMPTZ stores, so a token survives a round trip through the database.
type Version int64

// VersionOf derives the token for a last-modified time.
func VersionOf(t time.Time) Version {
	if t.IsZero() {
		return 0
	}
	return Version(t.UnixMicro())
}

// Next mints a token strictly greater than v, based on now when possible.
func (v Version) Next(now time.Time) Version {
	next := Version(now.UnixMicro())
	if next <= v {
		next = v + 1
	}
	return next
}

// Time converts the token back to the last-modified time it encodes.
func (v Version) Time() time.Time {
	return time.UnixMicro(int64(v)).UTC()
}

// String encodes the token for clients.
func (v Version) String() string {
	return strconv.FormatInt(int64(v), 36)
}

// ParseVersion decodes a token produced by String.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return 0, ErrInvalidVersion
	}
	n, err := strconv.ParseInt(s, 36, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidVersion
	}
	return Version(n), nil
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
