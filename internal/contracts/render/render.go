// Package render holds the wire types shared by the api, the worker and
// the runner.
package render

import (
	"regexp"
	"strings"

	"manimrender/internal/pkg/errors"
)

var (
	videoIDPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)
	sceneNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Request is the body of POST /render and POST /render/jobs.
type Request struct {
	VideoID   string `json:"videoId"`
	Script    string `json:"script"`
	SceneName string `json:"sceneName"`
	Quality   string `json:"quality,omitempty"`
}

// Normalize trims the identifier fields.
func (r *Request) Normalize() {
	r.VideoID = strings.TrimSpace(r.VideoID)
	r.SceneName = strings.TrimSpace(r.SceneName)
	r.Quality = strings.ToLower(strings.TrimSpace(r.Quality))
}

// Validate checks field shapes. A blank VideoID is allowed; the workflow
// generates one.
func (r Request) Validate() error {
	if r.VideoID != "" && !videoIDPattern.MatchString(r.VideoID) {
		return errors.ValidationField("videoId", "videoId must be 1-128 letters, digits, '-' or '_' and start with a letter or digit")
	}
	if strings.TrimSpace(r.Script) == "" {
		return errors.ValidationField("script", "script is required")
	}
	if r.SceneName == "" {
		return errors.ValidationField("sceneName", "sceneName is required")
	}
	if !sceneNamePattern.MatchString(r.SceneName) {
		return errors.ValidationField("sceneName", "sceneName must be a Python identifier")
	}
	return nil
}

// Response is the body returned by POST /render.
type Response struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

// Job is the public view of an async render job.
type Job struct {
	ID         string `json:"id"`
	VideoID    string `json:"videoId"`
	SceneName  string `json:"sceneName"`
	Quality    string `json:"quality"`
	Status     string `json:"status"`
	Filename   string `json:"filename,omitempty"`
	URL        string `json:"url,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"createdAt"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}
