package models

import "time"

// Visibility values for test cases and their feedback.
const (
	VisibilityAlways       = "ALWAYS"
	VisibilityAfterDueDate = "AFTER_DUE_DATE"
	VisibilityNever        = "NEVER"
)

// TestCase is a named automated check contributing weight and bonus to a score.
// Test cases are deactivated rather than deleted so historic results stay explainable.
type TestCase struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ExerciseID      uint      `gorm:"not null;uniqueIndex:idx_test_case_name" json:"exercise_id"`
	Name            string    `gorm:"size:255;not null;uniqueIndex:idx_test_case_name" json:"name"`
	Weight          float64   `gorm:"default:1" json:"weight"`
	BonusMultiplier float64   `gorm:"default:1" json:"bonus_multiplier"`
	BonusPoints     float64   `gorm:"default:0" json:"bonus_points"`
	Active          bool      `gorm:"default:true" json:"active"`
	Visibility      string    `gorm:"size:32;not null;default:ALWAYS" json:"visibility"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Invisible reports whether the test case may never be shown to students.
func (t TestCase) Invisible() bool {
	return t.Visibility == VisibilityNever
}

// AfterDueDate reports whether the test case only counts once the due date passed.
func (t TestCase) AfterDueDate() bool {
	return t.Visibility == VisibilityAfterDueDate
}
