package database

import "github.com/google/uuid"

// NewID returns a new unguessable record identifier.
func NewID() string {
	return uuid.New().String()
}
