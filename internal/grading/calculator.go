package grading

import (
	"fmt"
	"math"

	"github.com/campusforge/grading-api/internal/models"
)

// DefaultRoundingPlaces is the score precision used when the input does not
// configure one. Courses typically grade to a tenth of a percent.
const DefaultRoundingPlaces = 1

const notExecutedDetailText = "Test was not executed."

// ValidationError reports feedback that must not enter score calculation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Input carries everything the calculator needs. The calculator never touches
// storage: callers load the exercise configuration and the raw feedback set.
type Input struct {
	Exercise   models.Exercise
	TestCases  []models.TestCase
	Categories []models.StaticCodeAnalysisCategory
	Feedback   []models.Feedback

	// IncludeAfterDueDate is true once the due date relevant for the graded
	// participation has passed. Template and solution participations always
	// set it: their results are indicators for instructors, not students.
	IncludeAfterDueDate bool

	// StudentParticipation controls whether NEVER test cases are excluded.
	StudentParticipation bool

	RoundingPlaces int
}

// Outcome is the result of one score calculation.
type Outcome struct {
	Score               float64
	Successful          *bool
	Feedback            []models.Feedback
	TestCaseCount       int
	PassedTestCaseCount int
	CodeIssueCount      int

	// DuplicateTestNames is non-empty when distinct test cases reported
	// byte-identical output. The caller notifies staff once per exercise.
	DuplicateTestNames []string
}

// Calculate derives a bounded score from a raw feedback set and the exercise
// grading configuration. It is a pure function: identical inputs yield
// identical outcomes, and it is safe to run concurrently across submissions.
func Calculate(in Input) (Outcome, error) {
	if err := validateFeedback(in.Feedback); err != nil {
		return Outcome{}, err
	}

	places := in.RoundingPlaces
	if places <= 0 {
		places = DefaultRoundingPlaces
	}

	included := includedTestCases(in)
	relevant := relevantTestCases(in, included)

	feedback := partitionFeedback(in.Feedback, included)
	feedback.sca = dropUngradedCategoryFindings(feedback.sca, in.Categories)

	synthesizeMissingTestFeedback(&feedback, relevant)

	annotations, duplicateNames := detectDuplicates(feedback.tests)
	feedback.tests = append(feedback.tests, annotations...)

	passed := passedTestCases(relevant, feedback.tests)

	weightSum := 0.0
	for _, tc := range included {
		weightSum += tc.Weight
	}

	testPoints := 0.0
	creditsByName := make(map[string]float64, len(passed))
	for _, tc := range passed {
		points := pointsForTestCase(tc, in.Exercise, weightSum, len(included))
		creditsByName[tc.Name] = points
		testPoints += points
	}
	testPoints = capPoints(in.Exercise, testPoints)

	penalty := 0.0
	if in.Exercise.StaticCodeAnalysisEnabled && in.Exercise.ScaPenaltyBudget() > 0 {
		penalty = applyCategoryPenalties(feedback.sca, in.Exercise, in.Categories)
	}

	manualPoints := 0.0
	for _, f := range feedback.other {
		manualPoints += f.CreditValue()
	}

	totalPoints := testPoints - penalty + manualPoints
	if totalPoints < 0 {
		totalPoints = 0
	}

	score := totalPoints / in.Exercise.MaxPoints * 100
	if maxPercent := in.Exercise.MaxScorePercent(); score > maxPercent {
		score = maxPercent
	}
	if score < 0 || math.IsNaN(score) {
		score = 0
	}

	// Identical reported output across nominally distinct tests means the test
	// suite itself is broken; no score can be trusted until it is fixed.
	if len(duplicateNames) > 0 {
		score = 0
	}

	score = RoundScore(score, places)

	annotated := assembleFeedback(feedback, creditsByName)

	out := Outcome{
		Score:               score,
		Feedback:            annotated,
		TestCaseCount:       len(relevant),
		PassedTestCaseCount: len(passed),
		CodeIssueCount:      len(feedback.sca),
		DuplicateTestNames:  duplicateNames,
	}
	if len(relevant) > 0 {
		successful := len(duplicateNames) == 0 && score >= 100
		out.Successful = &successful
	}

	return out, nil
}

// RoundScore rounds a score to the given number of decimal places.
func RoundScore(score float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(score*factor) / factor
}

func validateFeedback(feedback []models.Feedback) error {
	for _, f := range feedback {
		if !f.IsManual() {
			continue
		}
		if f.DetailText == "" && !f.HasLongFeedback {
			return &ValidationError{Field: "feedback.detail_text", Reason: "manual feedback requires a detail text"}
		}
		if f.Type == models.FeedbackManual && f.Credits == nil {
			return &ValidationError{Field: "feedback.credits", Reason: "manual referenced feedback requires credits"}
		}
	}
	return nil
}

// includedTestCases are the active test cases that may ever contribute to this
// participation's score. NEVER test cases are excluded for students but kept
// for template/solution participations as indicators.
func includedTestCases(in Input) []models.TestCase {
	result := make([]models.TestCase, 0, len(in.TestCases))
	for _, tc := range in.TestCases {
		if !tc.Active {
			continue
		}
		if in.StudentParticipation && tc.Invisible() {
			continue
		}
		result = append(result, tc)
	}
	return result
}

// relevantTestCases further removes AFTER_DUE_DATE test cases while the due
// date has not passed. These stay out of synthesis and the passed count, but
// their weight still participates in the weight sum.
func relevantTestCases(in Input, included []models.TestCase) []models.TestCase {
	result := make([]models.TestCase, 0, len(included))
	for _, tc := range included {
		if tc.AfterDueDate() && !in.IncludeAfterDueDate {
			continue
		}
		result = append(result, tc)
	}
	return result
}

type partitionedFeedback struct {
	tests []models.Feedback
	sca   []models.Feedback
	other []models.Feedback
}

// partitionFeedback splits the raw set and applies the structural cleanups:
// test feedback without a registered test case is dropped, and feedback
// visibility is stamped from its test case.
func partitionFeedback(raw []models.Feedback, included []models.TestCase) partitionedFeedback {
	byName := make(map[string]models.TestCase, len(included))
	for _, tc := range included {
		byName[tc.Name] = tc
	}

	var p partitionedFeedback
	for _, f := range raw {
		switch {
		case f.IsStaticCodeAnalysis():
			p.sca = append(p.sca, f)
		case f.IsTestFeedback():
			tc, ok := byName[f.TestName]
			if !ok {
				continue
			}
			f.Visibility = tc.Visibility
			if f.TestCaseID == nil {
				id := tc.ID
				f.TestCaseID = &id
			}
			p.tests = append(p.tests, f)
		default:
			p.other = append(p.other, f)
		}
	}
	return p
}

// synthesizeMissingTestFeedback represents every relevant test case in the
// feedback set, so a test that never ran shows up as failed instead of absent.
func synthesizeMissingTestFeedback(p *partitionedFeedback, relevant []models.TestCase) {
	present := make(map[string]struct{}, len(p.tests))
	for _, f := range p.tests {
		present[f.TestName] = struct{}{}
	}

	for _, tc := range relevant {
		if _, ok := present[tc.Name]; ok {
			continue
		}
		negative := false
		id := tc.ID
		p.tests = append(p.tests, models.Feedback{
			Type:       models.FeedbackAutomatic,
			TestCaseID: &id,
			TestName:   tc.Name,
			Text:       tc.Name,
			DetailText: notExecutedDetailText,
			Positive:   &negative,
			Visibility: tc.Visibility,
		})
	}
}

func passedTestCases(relevant []models.TestCase, tests []models.Feedback) []models.TestCase {
	positive := make(map[string]bool, len(tests))
	for _, f := range tests {
		if f.IsPositive() {
			positive[f.TestName] = true
		}
	}

	passed := make([]models.TestCase, 0, len(relevant))
	for _, tc := range relevant {
		if positive[tc.Name] {
			passed = append(passed, tc)
		}
	}
	return passed
}

// pointsForTestCase awards the weight share of the exercise points plus the
// flat bonus. With a weight sum of exactly zero every test case falls back to
// equal weighting, so a fully zero-weight configuration still distinguishes a
// passing solution from a failing one.
func pointsForTestCase(tc models.TestCase, exercise models.Exercise, weightSum float64, includedCount int) float64 {
	var testPoints float64
	if weightSum == 0 {
		testPoints = 1.0 / float64(includedCount) * exercise.MaxPoints
	} else {
		testWeight := tc.Weight * tc.BonusMultiplier
		testPoints = testWeight / weightSum * exercise.MaxPoints
	}
	return testPoints + tc.BonusPoints
}

// capPoints bounds the achievable test points before the penalty is
// subtracted, otherwise a large surplus would swallow the whole penalty.
func capPoints(exercise models.Exercise, points float64) float64 {
	if math.IsNaN(points) {
		return 0
	}
	maxPoints := exercise.MaxPoints + exercise.BonusPoints
	return math.Min(points, maxPoints)
}

func assembleFeedback(p partitionedFeedback, creditsByName map[string]float64) []models.Feedback {
	result := make([]models.Feedback, 0, len(p.tests)+len(p.sca)+len(p.other))

	for _, f := range p.tests {
		if credits, ok := creditsByName[f.TestName]; ok && f.IsPositive() {
			value := credits
			f.Credits = &value
		} else if f.Credits == nil {
			zero := 0.0
			f.Credits = &zero
		}
		result = append(result, f)
	}
	for _, f := range p.sca {
		if f.Credits == nil {
			zero := 0.0
			f.Credits = &zero
		}
		result = append(result, f)
	}
	for _, f := range p.other {
		if f.Credits == nil {
			zero := 0.0
			f.Credits = &zero
		}
		result = append(result, f)
	}
	return result
}
