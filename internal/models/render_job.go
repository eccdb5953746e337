package models

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobDone, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// RenderJob is a row of render_jobs.
type RenderJob struct {
	ID         string     `json:"id"`
	VideoID    string     `json:"video_id"`
	SceneName  string     `json:"scene_name"`
	Quality    string     `json:"quality"`
	Script     string     `json:"-"`
	Status     JobStatus  `json:"status"`
	ObjectKey  string     `json:"object_key,omitempty"`
	URL        string     `json:"url,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
