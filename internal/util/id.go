package util

import "github.com/google/uuid"

// NewID returns a random identifier usable in URLs and log fields.
func NewID() string {
	return uuid.NewString()
}
