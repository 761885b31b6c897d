package dto

import (
	"time"

	"github.com/campusforge/grading-api/internal/models"
)

// FeedbackResponse represents one feedback entry on a result.
type FeedbackResponse struct {
	ID              uint     `json:"id"`
	Type            string   `json:"type"`
	TestName        string   `json:"test_name,omitempty"`
	Text            string   `json:"text,omitempty"`
	DetailText      string   `json:"detail_text,omitempty"`
	HasLongFeedback bool     `json:"has_long_feedback,omitempty"`
	Category        string   `json:"category,omitempty"`
	Positive        *bool    `json:"positive,omitempty"`
	Credits         *float64 `json:"credits,omitempty"`
	Visibility      string   `json:"visibility,omitempty"`
}

// ResultResponse represents a graded result to API consumers.
type ResultResponse struct {
	ID                  uint               `json:"id"`
	SubmissionID        uint               `json:"submission_id"`
	AssessmentType      string             `json:"assessment_type"`
	Score               float64            `json:"score"`
	Successful          *bool              `json:"successful,omitempty"`
	Rated               bool               `json:"rated"`
	CompletionDate      *time.Time         `json:"completion_date,omitempty"`
	AssessorID          *uint              `json:"assessor_id,omitempty"`
	CorrectionRound     *int               `json:"correction_round,omitempty"`
	HasComplaint        bool               `json:"has_complaint"`
	TestCaseCount       int                `json:"test_case_count"`
	PassedTestCaseCount int                `json:"passed_test_case_count"`
	CodeIssueCount      int                `json:"code_issue_count"`
	Feedback            []FeedbackResponse `json:"feedback"`
}

// NewFeedbackResponse builds a response DTO from a model.
func NewFeedbackResponse(feedback models.Feedback) FeedbackResponse {
	return FeedbackResponse{
		ID:              feedback.ID,
		Type:            string(feedback.Type),
		TestName:        feedback.TestName,
		Text:            feedback.Text,
		DetailText:      feedback.DetailText,
		HasLongFeedback: feedback.HasLongFeedback,
		Category:        feedback.StaticCodeAnalysisCategory,
		Positive:        feedback.Positive,
		Credits:         feedback.Credits,
		Visibility:      string(feedback.Visibility),
	}
}

// NewResultResponse builds a response DTO from a model.
func NewResultResponse(result models.Result) ResultResponse {
	feedback := make([]FeedbackResponse, 0, len(result.Feedback))
	for _, entry := range result.Feedback {
		feedback = append(feedback, NewFeedbackResponse(entry))
	}

	return ResultResponse{
		ID:                  result.ID,
		SubmissionID:        result.SubmissionID,
		AssessmentType:      string(result.AssessmentType),
		Score:               result.Score,
		Successful:          result.Successful,
		Rated:               result.Rated,
		CompletionDate:      result.CompletionDate,
		AssessorID:          result.AssessorID,
		CorrectionRound:     result.CorrectionRound,
		HasComplaint:        result.HasComplaint,
		TestCaseCount:       result.TestCaseCount,
		PassedTestCaseCount: result.PassedTestCaseCount,
		CodeIssueCount:      result.CodeIssueCount,
		Feedback:            feedback,
	}
}
