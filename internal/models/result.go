package models

import "time"

// AssessmentType values for results.
const (
	AssessmentAutomatic     = "AUTOMATIC"
	AssessmentSemiAutomatic = "SEMI_AUTOMATIC"
)

// Result is one evaluation of a submission. Automatic results come from CI
// builds, semi-automatic ones from tutors. A semi-automatic result with a nil
// completion date is locked: only its assessor (or an overriding instructor)
// may write it. The unique index over (submission_id, correction_round) is the
// compare-and-set that keeps two tutors from locking the same round; automatic
// results leave CorrectionRound nil and stay outside the constraint.
type Result struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	SubmissionID        uint       `gorm:"not null;index;uniqueIndex:idx_result_round" json:"submission_id"`
	Score               float64    `gorm:"default:0" json:"score"`
	Successful          *bool      `json:"successful"`
	Rated               bool       `gorm:"default:false" json:"rated"`
	AssessmentType      string     `gorm:"size:32;not null" json:"assessment_type"`
	CompletionDate      *time.Time `json:"completion_date"`
	AssessorID          *uint      `json:"assessor_id"`
	CorrectionRound     *int       `gorm:"uniqueIndex:idx_result_round" json:"correction_round"`
	HasComplaint        bool       `gorm:"default:false" json:"has_complaint"`
	TestCaseCount       int        `gorm:"default:0" json:"test_case_count"`
	PassedTestCaseCount int        `gorm:"default:0" json:"passed_test_case_count"`
	CodeIssueCount      int        `gorm:"default:0" json:"code_issue_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Feedback []Feedback `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"feedback,omitempty"`
}

// IsManual reports whether the result stems from manual assessment.
func (r Result) IsManual() bool {
	return r.AssessmentType == AssessmentSemiAutomatic
}

// IsLocked reports whether the result is an unfinished manual assessment.
func (r Result) IsLocked() bool {
	return r.IsManual() && r.CompletionDate == nil
}

// LockedBy reports whether the given user holds the assessment lock.
func (r Result) LockedBy(userID uint) bool {
	return r.IsLocked() && r.AssessorID != nil && *r.AssessorID == userID
}
