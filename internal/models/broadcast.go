package models

// BroadcastJob is the in-memory state of one broadcast run. It is never
// persisted.
type BroadcastJob struct {
	ID           string
	SenderID     int64
	MessageText  string
	Cursor       string
	SuccessCount int
	FailureCount int
	RemovedCount int
}

// BroadcastResult is what the administrator gets back.
type BroadcastResult struct {
	JobID        string `json:"job_id"`
	SuccessCount int    `json:"success"`
	FailureCount int    `json:"failure"`
	Total        int    `json:"total"`
	Removed      int    `json:"removed"`
}

// Result summarizes the job.
func (j *BroadcastJob) Result() BroadcastResult {
	return BroadcastResult{
		JobID:        j.ID,
		SuccessCount: j.SuccessCount,
		FailureCount: j.FailureCount,
		Total:        j.SuccessCount + j.FailureCount,
		Removed:      j.RemovedCount,
	}
}
