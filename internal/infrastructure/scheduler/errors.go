package scheduler

import "errors"

var (
	// ErrSchedulerRunning is returned when registering a job on a started scheduler
	ErrSchedulerRunning = errors.New("scheduler is already running")

	// ErrInvalidInterval is returned for a non-positive job interval
	ErrInvalidInterval = errors.New("job interval must be positive")

	// ErrDuplicateJob is returned when two jobs share a name
	ErrDuplicateJob = errors.New("job already registered")
)
