// Package fingerprint derives the stable dedup identity of an alert.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"time"
)

// bucketLayout truncates timestamps to the minute, so the same logical event
// recurring within a minute collapses to one fingerprint.
const bucketLayout = "2006-01-02T15:04"

// New hashes (source, type, description, minute bucket) into a fingerprint.
// The result is a pure function of its inputs and stable across restarts,
// which is what makes deduplication idempotent.
func New(source, alertType, description string, ts time.Time) string {
	h := sha1.New()
	for _, part := range []string{source, alertType, description, Bucket(ts)} {
		io.WriteString(h, part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bucket returns the minute-resolution time bucket for a timestamp.
func Bucket(ts time.Time) string {
	return ts.UTC().Format(bucketLayout)
}
