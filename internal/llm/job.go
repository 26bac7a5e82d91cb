package llm

// JobStatus is the lifecycle state of an asynchronous model run.
type JobStatus string

const (
	StatusQueued    JobStatus = "QUEUED"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
	StatusExpired   JobStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are possible from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s JobStatus) stage() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// Job tracks one asynchronous run.
type Job struct {
	ID           string
	ThreadID     string
	Status       JobStatus
	ResultText   string
	ErrorMessage string
}

// Advance moves the job to next and reports whether it did. Transitions only
// go forward: QUEUED to RUNNING to a terminal state, and a terminal job never
// changes again.
func (j *Job) Advance(next JobStatus) bool {
	if j.Status == "" {
		j.Status = next
		return true
	}
	if j.Status.Terminal() || next.stage() < j.Status.stage() || next == j.Status {
		return false
	}
	j.Status = next
	return true
}

// runStatus maps a backend run status onto a JobStatus. Unknown values are
// treated as still running so polling continues.
func runStatus(s string) JobStatus {
	switch s {
	case "queued":
		return StatusQueued
	case "in_progress", "cancelling":
		return StatusRunning
	case "completed":
		return StatusCompleted
	case "failed", "incomplete", "requires_action":
		return StatusFailed
	case "cancelled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default:
		return StatusRunning
	}
}
