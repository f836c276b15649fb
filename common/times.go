package common

import (
	"time"

	"github.com/pkg/errors"
)

// TimestampFormat is the layout used for timestamps stored in notification records. Timestamps always
// have microsecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp formats a timestamp for inclusion in a notification record.
func FormatTimestamp(timestamp time.Time) string {
	return timestamp.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses a timestamp from a notification record. Any RFC 3339 timestamp is accepted.
func ParseTimestamp(timestamp string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unable to parse timestamp `%s`", timestamp)
	}
	return parsed.UTC(), nil
}
