package grading

import (
	"sort"

	"github.com/campusforge/grading-api/internal/models"
)

// DuplicateDetailText is the fixed annotation attached to feedback of
// duplicated test cases.
const DuplicateDetailText = "This is a duplicate test case. Please review all your test cases and verify that your test cases have unique names!"

// detectDuplicates flags automatic test feedback whose reported output is
// byte-identical across nominally distinct test names. For every occurrence of
// a duplicated text beyond the first, a negative annotation feedback entry is
// produced; the original entries stay in place. The returned names are sorted
// for stable notification payloads.
func detectDuplicates(tests []models.Feedback) ([]models.Feedback, []string) {
	firstByText := make(map[string]string)
	nameSet := make(map[string]struct{})
	var annotations []models.Feedback

	for _, f := range tests {
		if f.DetailText == "" || f.DetailText == notExecutedDetailText {
			continue
		}
		first, seen := firstByText[f.DetailText]
		if !seen {
			firstByText[f.DetailText] = f.TestName
			continue
		}
		if first == f.TestName {
			continue
		}

		negative := false
		annotations = append(annotations, models.Feedback{
			Type:       models.FeedbackAutomatic,
			TestName:   f.TestName,
			Text:       f.TestName + " - Duplicate Test Case!",
			DetailText: DuplicateDetailText,
			Positive:   &negative,
			Visibility: f.Visibility,
		})
		nameSet[first] = struct{}{}
		nameSet[f.TestName] = struct{}{}
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	return annotations, names
}
