package domain

// StitchTask is the queue message asking a worker to run a job's pending stitch.
type StitchTask struct {
	JobID    string `json:"job_id"`
	StitchID string `json:"stitch_id"`
}
