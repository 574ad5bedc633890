// Package uuid provides identifier generation for records and queue entries.
package uuid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalPrefix marks a record id assigned on the client before the server
// has acknowledged the record.
const LocalPrefix = "local_"

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

var localIDRegex = regexp.MustCompile(`^local_[0-9]+_[0-9a-z]+$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// randomSuffix returns a short lowercase random token.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
}

// NewLocalID returns a temporary record id of the form local_<millis>_<random>.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", LocalPrefix, now.UnixMilli(), randomSuffix())
}

// NewQueueID returns a time-ordered queue entry id of the form <millis>_<random>.
func NewQueueID(now time.Time) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), randomSuffix())
}

// IsLocalID reports whether id was produced by NewLocalID.
func IsLocalID(id string) bool {
	return localIDRegex.MatchString(id)
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}
