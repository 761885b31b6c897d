package grading

import "github.com/campusforge/grading-api/internal/models"

// dropUngradedCategoryFindings removes findings whose category is inactive or
// unknown. They vanish from the stored feedback set, not merely from view, so
// no downstream visibility handling is needed for them.
func dropUngradedCategoryFindings(sca []models.Feedback, categories []models.StaticCodeAnalysisCategory) []models.Feedback {
	graded := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		if category.Graded() {
			graded[category.Name] = struct{}{}
		}
	}

	kept := sca[:0]
	for _, f := range sca {
		if _, ok := graded[f.StaticCodeAnalysisCategory]; ok {
			kept = append(kept, f)
		}
	}
	return kept
}

// applyCategoryPenalties computes the total static code analysis deduction and
// distributes it as negative credits over the findings of each category.
//
// Per category the penalty is count*penalty capped at the category maximum.
// Across categories the exercise-wide budget acts as a remaining-budget cap: a
// category can only spend what earlier categories left over.
func applyCategoryPenalties(sca []models.Feedback, exercise models.Exercise, categories []models.StaticCodeAnalysisCategory) float64 {
	budget := exercise.ScaPenaltyBudget()
	overall := 0.0

	for _, category := range categories {
		if !category.Graded() {
			continue
		}

		var indices []int
		for i := range sca {
			if sca[i].StaticCodeAnalysisCategory == category.Name {
				indices = append(indices, i)
			}
		}

		categoryPenalty := float64(len(indices)) * category.Penalty
		if category.MaxPenalty != nil && categoryPenalty > *category.MaxPenalty {
			categoryPenalty = *category.MaxPenalty
		}
		if overall+categoryPenalty > budget {
			categoryPenalty = budget - overall
		}
		overall += categoryPenalty

		if len(indices) > 0 {
			perFinding := -categoryPenalty / float64(len(indices))
			for _, i := range indices {
				credits := perFinding
				sca[i].Credits = &credits
			}
		}
	}

	return overall
}
