package domain

// TurnStatus is the render state of a single turn.
type TurnStatus string

// Turn status constants
const (
	TurnQueued     TurnStatus = "queued"
	TurnProcessing TurnStatus = "processing"
	TurnReady      TurnStatus = "ready"
	TurnFailed     TurnStatus = "failed"
	TurnUnknown    TurnStatus = "unknown"
)

// IsTerminal reports whether the status will never change through automated resolution.
func (s TurnStatus) IsTerminal() bool {
	return s == TurnReady || s == TurnFailed
}

// Valid reports whether s is one of the known turn states.
func (s TurnStatus) Valid() bool {
	switch s {
	case TurnQueued, TurnProcessing, TurnReady, TurnFailed, TurnUnknown:
		return true
	}
	return false
}

// rank orders statuses along queued -> processing -> ready|failed.
// unknown carries no progress information and ranks with queued.
func (s TurnStatus) rank() int {
	switch s {
	case TurnProcessing:
		return 1
	case TurnReady, TurnFailed:
		return 2
	default:
		return 0
	}
}

// JobStatus is the aggregate state of a job, always derived from its turns.
type JobStatus string

// Job status constants
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobReady      JobStatus = "ready"
	JobFailed     JobStatus = "failed"
)

// DeriveJobStatus computes the job status from its turns:
// failed if any turn failed, ready iff every turn is ready,
// processing if any turn is queued or processing, queued otherwise.
func DeriveJobStatus(turns []Turn) JobStatus {
	if len(turns) == 0 {
		return JobQueued
	}

	allReady := true
	anyActive := false
	for _, t := range turns {
		switch t.Status {
		case TurnFailed:
			return JobFailed
		case TurnQueued, TurnProcessing:
			anyActive = true
		}
		if t.Status != TurnReady {
			allReady = false
		}
	}

	if allReady {
		return JobReady
	}
	if anyActive {
		return JobProcessing
	}
	return JobQueued
}

// FailureReason explains why a turn ended in the failed state.
type FailureReason string

// Failure reasons
const (
	FailureSubmission FailureReason = "submission"
	FailureTimeout    FailureReason = "timeout"
	FailureUpstream   FailureReason = "upstream"
)

// Speaker is one of the two roles in a dialogue.
type Speaker string

// Speaker roles
const (
	SpeakerHost  Speaker = "host"
	SpeakerGuest Speaker = "guest"
)

// Valid reports whether s is host or guest.
func (s Speaker) Valid() bool {
	return s == SpeakerHost || s == SpeakerGuest
}

// StitchStatus is the state of a job's stitching request.
type StitchStatus string

// Stitch status constants
const (
	StitchQueued    StitchStatus = "queued"
	StitchRunning   StitchStatus = "running"
	StitchCompleted StitchStatus = "completed"
	StitchFailed    StitchStatus = "failed"
)

// InProgress reports whether a stitch with this status still has work ahead of it.
func (s StitchStatus) InProgress() bool {
	return s == StitchQueued || s == StitchRunning
}
