package grading

import "github.com/campusforge/grading-api/internal/models"

// Audience describes who is reading a result.
type Audience int

const (
	// AudienceStudent is the owning student.
	AudienceStudent Audience = iota
	// AudienceStaff covers tutors, editors and instructors. They see hidden
	// feedback for grading transparency.
	AudienceStaff
)

// Visible decides whether a single feedback entry may be shown to the given
// audience. Staff see everything. Students never see NEVER feedback and see
// AFTER_DUE_DATE feedback only once the due date passed.
func Visible(f models.Feedback, audience Audience, dueDatePassed bool) bool {
	if audience == AudienceStaff {
		return true
	}
	switch f.Visibility {
	case models.VisibilityNever:
		return false
	case models.VisibilityAfterDueDate:
		return dueDatePassed
	default:
		return true
	}
}

// FilterFeedback returns the subset of feedback visible to the audience.
func FilterFeedback(feedback []models.Feedback, audience Audience, dueDatePassed bool) []models.Feedback {
	visible := make([]models.Feedback, 0, len(feedback))
	for _, f := range feedback {
		if Visible(f, audience, dueDatePassed) {
			visible = append(visible, f)
		}
	}
	return visible
}
