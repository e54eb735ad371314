package utils

import "github.com/google/uuid"

// GenerateID returns a prefixed random identifier, e.g. "auction-3f2a...".
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
