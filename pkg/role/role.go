// Package role defines the participant roles in an annotation session
// and the static capability table that gates every mutating operation.
package role

import "fmt"

// Role identifies what a participant is allowed to do in a session.
type Role string

const (
	// Host runs the session and can moderate everything.
	Host Role = "host"
	// Sharer shares their screen; full annotation control but no
	// participant management.
	Sharer Role = "sharer"
	// Annotator draws strokes and may delete their own.
	Annotator Role = "annotator"
	// Viewer watches only.
	Viewer Role = "viewer"
)

// Capabilities is the per-role permission set. The table is static;
// roles never gain or lose capabilities mid-session.
type Capabilities struct {
	CanAnnotate         bool
	CanDeleteOwnStrokes bool
	CanDeleteAnyStroke  bool
	CanClearAll         bool
	CanShareScreen      bool
	CanManageUsers      bool
}

var capabilityTable = map[Role]Capabilities{
	Host: {
		CanAnnotate:         true,
		CanDeleteOwnStrokes: true,
		CanDeleteAnyStroke:  true,
		CanClearAll:         true,
		CanShareScreen:      true,
		CanManageUsers:      true,
	},
	Sharer: {
		CanAnnotate:         true,
		CanDeleteOwnStrokes: true,
		CanDeleteAnyStroke:  true,
		CanClearAll:         true,
		CanShareScreen:      true,
	},
	Annotator: {
		CanAnnotate:         true,
		CanDeleteOwnStrokes: true,
	},
	Viewer: {},
}

// CapabilitiesFor returns the capability set for a role. Unknown roles
// get viewer capabilities so a malformed role can never grant access.
func CapabilitiesFor(r Role) Capabilities {
	caps, ok := capabilityTable[r]
	if !ok {
		return Capabilities{}
	}
	return caps
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := capabilityTable[r]
	return ok
}

// ParseRole converts a wire string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
