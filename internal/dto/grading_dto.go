package dto

// ReevaluationResponse summarizes a bulk re-evaluation pass over an exercise.
type ReevaluationResponse struct {
	ExerciseID        uint     `json:"exercise_id"`
	UpdatedResults    int      `json:"updated_results"`
	FailedResults     int      `json:"failed_results"`
	Failures          []string `json:"failures,omitempty"`
	DuplicateTestCase bool     `json:"duplicate_test_case"`
}

// TestCaseStatsEntry aggregates pass counts for one test case across the exercise.
type TestCaseStatsEntry struct {
	Name       string  `json:"name"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	PassedRate float64 `json:"passed_rate"`
}

// CategoryStatsEntry aggregates finding counts for one static code analysis category.
type CategoryStatsEntry struct {
	Name     string  `json:"name"`
	Findings int     `json:"findings"`
	Affected int     `json:"affected"`
	Penalty  float64 `json:"penalty"`
}

// GradingStatisticsResponse reports how the current grading configuration plays out
// over the latest automatic results of an exercise.
type GradingStatisticsResponse struct {
	ExerciseID         uint                 `json:"exercise_id"`
	ParticipationCount int                  `json:"participation_count"`
	AverageScore       float64              `json:"average_score"`
	TestCaseStats      []TestCaseStatsEntry `json:"test_case_stats"`
	CategoryStats      []CategoryStatsEntry `json:"category_stats"`
}
