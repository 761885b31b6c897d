package grading

import "github.com/campusforge/grading-api/internal/models"

// PrepareForRecalculation strips feedback entries the calculator derives
// itself: synthesized entries for unexecuted tests and duplicate annotations.
// Stored results contain them, so re-grading from persisted feedback must hand
// the calculator only what the build originally reported.
func PrepareForRecalculation(feedback []models.Feedback) []models.Feedback {
	kept := make([]models.Feedback, 0, len(feedback))
	for _, entry := range feedback {
		if entry.Type == models.FeedbackAutomatic && entry.DetailText == notExecutedDetailText {
			continue
		}
		if entry.DetailText == DuplicateDetailText {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}
