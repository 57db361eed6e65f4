package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new random identifier (auction and event ids)
func GenerateID() string {
	return uuid.New().String()
}
