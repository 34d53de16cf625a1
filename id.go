package omniagent

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortID returns the 8-char prefix of a fresh UUIDv7, used for run, trace,
// task, and asset ids.
func ShortID() string {
	return NewID()[:8]
}

// NowMillis returns current time as Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
