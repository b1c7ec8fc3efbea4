package crypto

import (
	"github.com/google/uuid"
)

// NewTaskID returns a time-ordered identifier for background tasks so that
// log lines for one update sort together.
func NewTaskID() string {
	return uuid.Must(uuid.NewV7()).String()
}
