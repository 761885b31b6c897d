package dto

import "github.com/campusforge/grading-api/internal/models"

// TestCaseUpdateRequest carries grading settings for one test case.
type TestCaseUpdateRequest struct {
	ID              uint    `json:"id" validate:"required,gt=0"`
	Weight          float64 `json:"weight" validate:"gte=0"`
	BonusMultiplier float64 `json:"bonus_multiplier" validate:"gte=0"`
	BonusPoints     float64 `json:"bonus_points" validate:"gte=0"`
	Visibility      string  `json:"visibility" validate:"omitempty,oneof=ALWAYS AFTER_DUE_DATE NEVER"`
}

// TestCaseBulkUpdateRequest updates grading settings for several test cases at once.
type TestCaseBulkUpdateRequest struct {
	TestCases []TestCaseUpdateRequest `json:"test_cases" validate:"required,min=1,dive"`
}

// TestCaseResponse represents a test case to API consumers.
type TestCaseResponse struct {
	ID              uint    `json:"id"`
	ExerciseID      uint    `json:"exercise_id"`
	Name            string  `json:"name"`
	Weight          float64 `json:"weight"`
	BonusMultiplier float64 `json:"bonus_multiplier"`
	BonusPoints     float64 `json:"bonus_points"`
	Active          bool    `json:"active"`
	Visibility      string  `json:"visibility"`
}

// NewTestCaseResponse builds a response DTO from a model.
func NewTestCaseResponse(testCase models.TestCase) TestCaseResponse {
	return TestCaseResponse{
		ID:              testCase.ID,
		ExerciseID:      testCase.ExerciseID,
		Name:            testCase.Name,
		Weight:          testCase.Weight,
		BonusMultiplier: testCase.BonusMultiplier,
		BonusPoints:     testCase.BonusPoints,
		Active:          testCase.Active,
		Visibility:      string(testCase.Visibility),
	}
}

// NewTestCaseResponses converts a slice of models.
func NewTestCaseResponses(testCases []models.TestCase) []TestCaseResponse {
	responses := make([]TestCaseResponse, 0, len(testCases))
	for _, testCase := range testCases {
		responses = append(responses, NewTestCaseResponse(testCase))
	}
	return responses
}
