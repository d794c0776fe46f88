package crypto

import (
	"github.com/google/uuid"
)

// NewConnID generates a time-ordered UUID v7 used to correlate the log
// lines of a single connection.
func NewConnID() string {
	return uuid.Must(uuid.NewV7()).String()
}
