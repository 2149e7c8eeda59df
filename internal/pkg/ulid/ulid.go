// Package ulid generates lexically sortable session identifiers.
package ulid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// Make returns an ID stamped with t. IDs made within the same millisecond
// still sort in creation order.
func Make(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Now returns an ID stamped with the current time.
func Now() string {
	return Make(time.Now())
}

// Valid reports whether s is a well-formed ID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Timestamp returns the creation time encoded in s.
func Timestamp(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
