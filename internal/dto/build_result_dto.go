package dto

import "time"

// BuildResultRequest is the notification payload a CI run posts after building a submission.
type BuildResultRequest struct {
	ParticipationID uint                `json:"participation_id" validate:"required,gt=0"`
	CommitHash      string              `json:"commit_hash" validate:"required"`
	BuildCompleted  time.Time           `json:"build_completed" validate:"required"`
	BuildFailed     bool                `json:"build_failed"`
	BuildLogs       []string            `json:"build_logs,omitempty"`
	Tests           []BuildTestResult   `json:"tests" validate:"dive"`
	StaticReports   []StaticIssueReport `json:"static_reports,omitempty" validate:"dive"`
}

// BuildTestResult describes the outcome of a single test in the CI run.
type BuildTestResult struct {
	Name     string   `json:"name" validate:"required"`
	Passed   bool     `json:"passed"`
	Messages []string `json:"messages,omitempty"`
}

// StaticIssueReport describes one finding produced by a static analysis tool.
type StaticIssueReport struct {
	Category string `json:"category" validate:"required"`
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Tool     string `json:"tool"`
}
