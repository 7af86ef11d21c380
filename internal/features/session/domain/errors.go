package domain

import "errors"

var (
	// ErrSessionConflict is returned when starting a session while another
	// active or paused session exists for the operator.
	ErrSessionConflict = errors.New("an unfinished session already exists for this operator")
	// ErrNoSession is returned for operations that need a session when none
	// exists.
	ErrNoSession = errors.New("no session in progress")
	// ErrInvalidTransition is returned for lifecycle calls that are not
	// valid from the current status (e.g. resume while active).
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrNotActive is returned when shipment events or positions are
	// recorded while the session is not active.
	ErrNotActive = errors.New("session is not active")
)
