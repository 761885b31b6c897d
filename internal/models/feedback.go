package models

import (
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

// FeedbackType distinguishes the flavors of feedback attached to a result.
const (
	FeedbackAutomatic          = "AUTOMATIC"
	FeedbackManual             = "MANUAL"
	FeedbackManualUnreferenced = "MANUAL_UNREFERENCED"
)

// DetailTextMaxLength is the longest detail text stored inline on the feedback
// row. Longer bodies are externalized to a LongFeedbackText record.
const DetailTextMaxLength = 5000

// TruncateDetailText shortens a detail text to the inline limit without
// splitting a multi-byte rune. The second return reports whether anything was
// cut off.
func TruncateDetailText(detail string) (string, bool) {
	if len(detail) <= DetailTextMaxLength {
		return detail, false
	}
	cut := DetailTextMaxLength
	for cut > 0 && !utf8.RuneStart(detail[cut]) {
		cut--
	}
	return detail[:cut], true
}

// Feedback is the atomic grading unit: a test outcome, a static code analysis
// finding, or a tutor comment. Exactly one Result owns each feedback entry.
type Feedback struct {
	ID                         uint              `gorm:"primaryKey" json:"id"`
	ResultID                   uint              `gorm:"not null;index" json:"result_id"`
	Type                       string            `gorm:"size:32;not null" json:"type"`
	TestCaseID                 *uint             `gorm:"index" json:"test_case_id"`
	TestName                   string            `gorm:"size:255" json:"test_name"`
	Text                       string            `gorm:"size:512" json:"text"`
	DetailText                 string            `gorm:"size:5000" json:"detail_text"`
	HasLongFeedback            bool              `gorm:"default:false" json:"has_long_feedback"`
	StaticCodeAnalysisCategory string            `gorm:"size:255" json:"static_code_analysis_category"`
	IssueDetail                datatypes.JSONMap `json:"issue_detail"`
	Positive                   *bool             `json:"positive"`
	Credits                    *float64          `json:"credits"`
	Visibility                 string            `gorm:"size:32" json:"visibility"`
	CreatedAt                  time.Time         `json:"created_at"`
	UpdatedAt                  time.Time         `json:"updated_at"`
}

// IsStaticCodeAnalysis reports whether the feedback is a linter finding.
func (f Feedback) IsStaticCodeAnalysis() bool {
	return f.Type == FeedbackAutomatic && f.StaticCodeAnalysisCategory != ""
}

// IsTestFeedback reports whether the feedback belongs to an automated test case.
func (f Feedback) IsTestFeedback() bool {
	return f.Type == FeedbackAutomatic && !f.IsStaticCodeAnalysis() && f.TestName != ""
}

// IsManual reports whether a tutor authored the feedback.
func (f Feedback) IsManual() bool {
	return f.Type == FeedbackManual || f.Type == FeedbackManualUnreferenced
}

// IsPositive treats a nil positive flag as failing.
func (f Feedback) IsPositive() bool {
	return f.Positive != nil && *f.Positive
}

// CreditValue returns the credits, defaulting to zero when unset.
func (f Feedback) CreditValue() float64 {
	if f.Credits == nil {
		return 0
	}
	return *f.Credits
}

// LongFeedbackText stores feedback bodies above the inline threshold. The
// feedback row keeps a truncated detail text plus the HasLongFeedback flag.
type LongFeedbackText struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FeedbackID uint      `gorm:"not null;uniqueIndex" json:"feedback_id"`
	Text       string    `gorm:"type:text" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
