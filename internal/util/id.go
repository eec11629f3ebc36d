// Package util holds small helpers shared by runmesh packages.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed identifier such as "run_3f2a...". The suffix is a
// random UUID rendered as 32 lowercase hex characters without dashes.
func NewID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return hex
	}
	return prefix + "_" + hex
}
