package agent

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrMissingUserID is returned when a request carries no user id.
var ErrMissingUserID = errors.New("user id is required")

const maxSessionKeyLen = 128

// SessionKey identifies the customer a run is for. It personalizes the
// system instruction and labels logs and observer events; nothing is
// stored under it.
type SessionKey struct {
	userID string
}

// NewSessionKey derives a key from a user id. Surrounding whitespace is
// trimmed.
func NewSessionKey(userID string) (SessionKey, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return SessionKey{}, ErrMissingUserID
	}
	if len(id) > maxSessionKeyLen {
		return SessionKey{}, fmt.Errorf("user id longer than %d bytes", maxSessionKeyLen)
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return SessionKey{}, errors.New("user id contains control characters")
	}
	return SessionKey{userID: id}, nil
}

// UserID returns the user id the key was derived from.
func (k SessionKey) UserID() string { return k.userID }

// String implements fmt.Stringer.
func (k SessionKey) String() string { return "user:" + k.userID }

// IsZero reports whether k was never initialized.
func (k SessionKey) IsZero() bool { return k.userID == "" }
