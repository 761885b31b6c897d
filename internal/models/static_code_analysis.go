package models

import "time"

// CategoryState values for static code analysis categories.
const (
	CategoryActive   = "ACTIVE"
	CategoryInactive = "INACTIVE"
)

// StaticCodeAnalysisCategory groups linter findings under a shared penalty policy.
type StaticCodeAnalysisCategory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExerciseID uint      `gorm:"not null;uniqueIndex:idx_sca_category_name" json:"exercise_id"`
	Name       string    `gorm:"size:255;not null;uniqueIndex:idx_sca_category_name" json:"name"`
	Penalty    float64   `gorm:"default:0" json:"penalty"`
	MaxPenalty *float64  `json:"max_penalty"`
	State      string    `gorm:"size:16;not null;default:INACTIVE" json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Graded reports whether findings in this category deduct points.
func (c StaticCodeAnalysisCategory) Graded() bool {
	return c.State == CategoryActive
}
