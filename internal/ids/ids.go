// Package ids generates identifiers for swarm entities.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh random id for an entity.
func New() string {
	return uuid.NewString()
}

// Safe converts an arbitrary name into a filesystem-safe lowercase token,
// used to derive skill filenames from free-text skill names.
func Safe(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}
