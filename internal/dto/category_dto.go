package dto

import "github.com/campusforge/grading-api/internal/models"

// CategoryUpdateRequest carries penalty settings for one static code analysis category.
type CategoryUpdateRequest struct {
	ID         uint     `json:"id" validate:"required,gt=0"`
	Penalty    float64  `json:"penalty" validate:"gte=0"`
	MaxPenalty *float64 `json:"max_penalty" validate:"omitempty,gte=0"`
	State      string   `json:"state" validate:"required,oneof=ACTIVE INACTIVE"`
}

// CategoryBulkUpdateRequest updates several categories at once.
type CategoryBulkUpdateRequest struct {
	Categories []CategoryUpdateRequest `json:"categories" validate:"required,min=1,dive"`
}

// CategoryImportRequest copies the category configuration from another exercise.
type CategoryImportRequest struct {
	SourceExerciseID uint `json:"source_exercise_id" validate:"required,gt=0"`
}

// CategoryResponse represents a static code analysis category to API consumers.
type CategoryResponse struct {
	ID         uint     `json:"id"`
	ExerciseID uint     `json:"exercise_id"`
	Name       string   `json:"name"`
	Penalty    float64  `json:"penalty"`
	MaxPenalty *float64 `json:"max_penalty,omitempty"`
	State      string   `json:"state"`
}

// NewCategoryResponse builds a response DTO from a model.
func NewCategoryResponse(category models.StaticCodeAnalysisCategory) CategoryResponse {
	return CategoryResponse{
		ID:         category.ID,
		ExerciseID: category.ExerciseID,
		Name:       category.Name,
		Penalty:    category.Penalty,
		MaxPenalty: category.MaxPenalty,
		State:      string(category.State),
	}
}

// NewCategoryResponses converts a slice of models.
func NewCategoryResponses(categories []models.StaticCodeAnalysisCategory) []CategoryResponse {
	responses := make([]CategoryResponse, 0, len(categories))
	for _, category := range categories {
		responses = append(responses, NewCategoryResponse(category))
	}
	return responses
}
