package flowline

import "errors"

var (
	// Store errors.
	ErrNoStore      = errors.New("flowline: no store configured")
	ErrStoreClosed  = errors.New("flowline: store closed")
	ErrStateCorrupt = errors.New("flowline: state record corrupt")

	// Not found errors.
	ErrRunNotFound        = errors.New("flowline: run not found")
	ErrDefinitionNotFound = errors.New("flowline: workflow definition not found")
	ErrAgentNotFound      = errors.New("flowline: no agent registered for type")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("flowline: run already exists")

	// Run lifecycle errors.
	ErrRunTerminal  = errors.New("flowline: run already in a terminal state")
	ErrRunTimeout   = errors.New("flowline: run exceeded global timeout")
	ErrRunCancelled = errors.New("flowline: run cancelled")

	// Step errors.
	ErrStepTimeout   = errors.New("flowline: step exceeded timeout")
	ErrStepCancelled = errors.New("flowline: step cancelled")
)
