// Package lifecycle holds the shared active/inactive state used by members,
// schools, clubs and club role grants.
package lifecycle

import "fmt"

// State is the lifecycle of a soft-deletable entity
type State string

const (
	Active   State = "ACTIVE"
	Inactive State = "INACTIVE"
)

// Valid reports whether s is a known state
func (s State) Valid() bool {
	return s == Active || s == Inactive
}

// Parse converts a stored or user supplied value
func Parse(v string) (State, error) {
	s := State(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid lifecycle state: %q", v)
	}
	return s, nil
}
