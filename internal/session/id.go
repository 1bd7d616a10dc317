package session

import (
	"strings"

	"github.com/google/uuid"
)

// NewID issues a session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID accepts only ids this package could have issued, keeping arbitrary client
// input out of Redis key names.
func ValidID(id string) bool {
	if len(id) != 36 || strings.TrimSpace(id) != id {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
