package descriptor

import (
	"fmt"
	"strings"
)

// Access is the access mode of a resolved property.
type Access string

const (
	AccessStateReport Access = "state-report" // read and reported, never written
	AccessReadWrite   Access = "read-write"
)

var accessAliases = map[string]Access{
	"state-report": AccessStateReport,
	"state":        AccessStateReport,
	"state_get":    AccessStateReport,
	"read-only":    AccessStateReport,
	"read-write":   AccessReadWrite,
	"all":          AccessReadWrite,
	"state_set":    AccessReadWrite,
}

// ParseAccess maps a declared access mode onto one of the two supported
// modes. An empty string yields def.
func ParseAccess(s string, def Access) (Access, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	a, ok := accessAliases[strings.ToLower(s)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccessMode, s)
	}
	return a, nil
}

// Writable reports whether the mode allows writes.
func (a Access) Writable() bool { return a == AccessReadWrite }
