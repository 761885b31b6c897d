package models

import "time"

// Participation kinds. Template and solution participations belong to the
// exercise scaffold and are graded without student-facing filtering.
const (
	ParticipationStudent  = "STUDENT"
	ParticipationTemplate = "TEMPLATE"
	ParticipationSolution = "SOLUTION"
)

// Participation links an exercise to one stream of submissions.
type Participation struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ExerciseID        uint       `gorm:"not null;index" json:"exercise_id"`
	Kind              string     `gorm:"size:16;not null;default:STUDENT" json:"kind"`
	StudentID         *uint      `json:"student_id"`
	IndividualDueDate *time.Time `json:"individual_due_date"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Submissions []Submission `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"submissions,omitempty"`
}

// IsStudent reports whether the participation belongs to a student.
func (p Participation) IsStudent() bool {
	return p.Kind == ParticipationStudent
}

// EffectiveDueDate returns the individual due date when one is set, otherwise
// the exercise due date.
func (p Participation) EffectiveDueDate(exercise Exercise) *time.Time {
	if p.IndividualDueDate != nil {
		return p.IndividualDueDate
	}
	return exercise.DueDate
}

// DueDatePassed reports whether the due date relevant for this participation
// lies in the past. A missing due date counts as passed never.
func (p Participation) DueDatePassed(exercise Exercise, now time.Time) bool {
	due := p.EffectiveDueDate(exercise)
	return due != nil && due.Before(now)
}
