// Package wish holds the wish record shared by the relay and the displays and
// the JSON envelope used on the websocket between them.
package wish

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinNameLength is the minimum number of runes in a trimmed child name.
const MinNameLength = 2

// MaxNameBytes caps the submitted child name before trimming.
const MaxNameBytes = 1024

var (
	ErrNameTooShort = errors.New("child name is too short")
	ErrNameTooLong  = errors.New("child name is too long")
)

// Wish is one submitted item. Creation order is the order of arrival, so it is
// not carried on the record itself.
type Wish struct {
	ID        string `json:"id" yaml:"id"`
	ChildName string `json:"childName" yaml:"childName"`
	PhotoURL  string `json:"photoUrl" yaml:"photoUrl"`
}

// NormalizeName trims the name and checks its length is acceptable for
// submission.
func NormalizeName(name string) (string, error) {
	if len(name) > MaxNameBytes {
		return "", fmt.Errorf("%w: at most %d bytes", ErrNameTooLong, MaxNameBytes)
	}
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < MinNameLength {
		return "", fmt.Errorf("%w: need at least %d characters", ErrNameTooShort, MinNameLength)
	}
	return trimmed, nil
}
