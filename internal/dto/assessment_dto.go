package dto

// ManualFeedbackRequest carries one manual feedback entry from a tutor.
type ManualFeedbackRequest struct {
	TestCaseID *uint    `json:"test_case_id,omitempty" validate:"omitempty,gt=0"`
	Text       string   `json:"text"`
	DetailText string   `json:"detail_text"`
	Credits    *float64 `json:"credits" validate:"required"`
}

// AssessmentLockRequest opens a manual assessment for a submission.
type AssessmentLockRequest struct {
	SubmissionID    uint `json:"submission_id" validate:"required,gt=0"`
	CorrectionRound int  `json:"correction_round" validate:"gte=0"`
}

// AssessmentSubmitRequest finishes a manual assessment with its feedback set.
type AssessmentSubmitRequest struct {
	Feedback []ManualFeedbackRequest `json:"feedback" validate:"required,dive"`
}

// AssessmentOverrideRequest replaces the feedback of a completed assessment.
type AssessmentOverrideRequest struct {
	Feedback []ManualFeedbackRequest `json:"feedback" validate:"required,dive"`
}

// ComplaintDecisionRequest accepts or rejects a complaint about an assessment.
type ComplaintDecisionRequest struct {
	Accept   bool                    `json:"accept"`
	Feedback []ManualFeedbackRequest `json:"feedback" validate:"omitempty,dive"`
}
