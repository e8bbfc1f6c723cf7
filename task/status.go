package task

// Status represents the lifecycle state of a task
type Status int

const (
	// StatusPending indicates the task is queued and has not started
	StatusPending Status = iota
	// StatusRunning indicates the task body is executing
	StatusRunning
	// StatusCancelled indicates the task was cancelled before or during execution
	StatusCancelled
	// StatusFinished indicates the task completed with a result or an error
	StatusFinished
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCancelled:
		return "cancelled"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusFinished
}
