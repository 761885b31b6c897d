package models

import "time"

// IncludedInOverallScore describes how an exercise contributes to the course score.
const (
	IncludedCompletely = "INCLUDED_COMPLETELY"
	IncludedAsBonus    = "INCLUDED_AS_BONUS"
	NotIncluded        = "NOT_INCLUDED"
)

// Exercise holds the grading configuration of a programming exercise.
type Exercise struct {
	ID                           uint       `gorm:"primaryKey" json:"id"`
	Title                        string     `gorm:"size:255;not null" json:"title"`
	MaxPoints                    float64    `gorm:"not null" json:"max_points"`
	BonusPoints                  float64    `gorm:"default:0" json:"bonus_points"`
	IncludedInOverallScore       string     `gorm:"size:32;not null;default:INCLUDED_COMPLETELY" json:"included_in_overall_score"`
	ReleaseDate                  *time.Time `json:"release_date"`
	DueDate                      *time.Time `json:"due_date"`
	AssessmentDueDate            *time.Time `json:"assessment_due_date"`
	StaticCodeAnalysisEnabled    bool       `gorm:"default:false" json:"static_code_analysis_enabled"`
	MaxStaticCodeAnalysisPenalty *int       `json:"max_static_code_analysis_penalty"`
	CreatedAt                    time.Time  `json:"created_at"`
	UpdatedAt                    time.Time  `json:"updated_at"`

	TestCases  []TestCase                   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
	Categories []StaticCodeAnalysisCategory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"categories,omitempty"`
}

// DueDatePassed reports whether the regular due date lies in the past.
func (e Exercise) DueDatePassed(now time.Time) bool {
	return e.DueDate != nil && e.DueDate.Before(now)
}

// AssessmentDueDatePassed reports whether the manual assessment period is over.
func (e Exercise) AssessmentDueDatePassed(now time.Time) bool {
	return e.AssessmentDueDate != nil && e.AssessmentDueDate.Before(now)
}

// ScaPenaltyBudget returns the maximum number of points static code analysis
// findings may deduct. A missing configuration means the full max points.
func (e Exercise) ScaPenaltyBudget() float64 {
	percent := 100
	if e.MaxStaticCodeAnalysisPenalty != nil {
		percent = *e.MaxStaticCodeAnalysisPenalty
	}
	return float64(percent) / 100.0 * e.MaxPoints
}

// MaxScorePercent is the upper bound of the score in percent after capping.
func (e Exercise) MaxScorePercent() float64 {
	if e.IncludedInOverallScore == IncludedCompletely && e.BonusPoints > 0 {
		return 100 + e.BonusPoints/e.MaxPoints*100
	}
	return 100
}
