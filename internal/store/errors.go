package store

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidCapacity = errors.New("invalid break capacity")
	ErrTeamNotFound    = errors.New("team not found")
	ErrUserNotFound    = errors.New("user not found")
)

// CapacityFullError is returned when a team already has as many open breaks
// as its quota allows. It carries the numbers the client renders as "X / Y".
type CapacityFullError struct {
	TeamID        uint
	OnBreakNow    int
	BreakCapacity int
}

func (e *CapacityFullError) Error() string {
	return fmt.Sprintf("break capacity full for team %d: %d/%d", e.TeamID, e.OnBreakNow, e.BreakCapacity)
}
