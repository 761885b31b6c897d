package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/models"
	"github.com/campusforge/grading-api/internal/repository"
)

// ErrCategoryNotInExercise indicates an update referenced a category that
// belongs to a different exercise or does not exist.
var ErrCategoryNotInExercise = errors.New("category does not belong to exercise")

// ErrConfigurationInconsistency indicates the static code analysis settings of
// the exercises involved in an operation do not line up.
var ErrConfigurationInconsistency = errors.New("static code analysis configuration inconsistent")

// CategoryService manages static code analysis categories and their penalties.
type CategoryService interface {
	List(ctx context.Context, exerciseID uint) ([]dto.CategoryResponse, error)
	BulkUpdate(ctx context.Context, exerciseID uint, payload dto.CategoryBulkUpdateRequest, actor Actor) ([]dto.CategoryResponse, error)
	ImportFrom(ctx context.Context, exerciseID uint, payload dto.CategoryImportRequest, actor Actor) ([]dto.CategoryResponse, error)
}

type categoryService struct {
	exercises  repository.ExerciseRepository
	categories repository.CategoryRepository
	validator  *validator.Validate
	notifier   GradingNotifier
	logger     zerolog.Logger
}

// NewCategoryService constructs the category service.
func NewCategoryService(exercises repository.ExerciseRepository, categories repository.CategoryRepository, validator *validator.Validate, notifier GradingNotifier, logger zerolog.Logger) CategoryService {
	return &categoryService{
		exercises:  exercises,
		categories: categories,
		validator:  validator,
		notifier:   notifier,
		logger:     logger.With().Str("component", "category_service").Logger(),
	}
}

func (s *categoryService) List(ctx context.Context, exerciseID uint) ([]dto.CategoryResponse, error) {
	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	categories, err := s.categories.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return dto.NewCategoryResponses(categories), nil
}

func (s *categoryService) BulkUpdate(ctx context.Context, exerciseID uint, payload dto.CategoryBulkUpdateRequest, actor Actor) ([]dto.CategoryResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}
	if !exercise.StaticCodeAnalysisEnabled {
		return nil, ErrConfigurationInconsistency
	}

	existing, err := s.categories.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.StaticCodeAnalysisCategory, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	updated := make([]models.StaticCodeAnalysisCategory, 0, len(payload.Categories))
	for _, update := range payload.Categories {
		category, ok := byID[update.ID]
		if !ok {
			return nil, ErrCategoryNotInExercise
		}
		category.Penalty = update.Penalty
		category.MaxPenalty = update.MaxPenalty
		category.State = update.State
		updated = append(updated, *category)
	}

	if err := s.categories.SaveAll(ctx, updated); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("exercise_id", exerciseID).
		Int("updated", len(updated)).
		Uint("actor_id", actor.ID).
		Msg("static code analysis categories updated")

	if s.notifier != nil {
		s.notifier.NotifyGradingConfigChanged(ctx, exerciseID)
	}

	categories, err := s.categories.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return dto.NewCategoryResponses(categories), nil
}

// ImportFrom copies the category configuration of another exercise. Both
// exercises must have static code analysis enabled, and the source categories
// are matched into the target by name.
func (s *categoryService) ImportFrom(ctx context.Context, exerciseID uint, payload dto.CategoryImportRequest, actor Actor) ([]dto.CategoryResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	target, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}
	source, err := s.exercises.GetByID(ctx, payload.SourceExerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	if !target.StaticCodeAnalysisEnabled || !source.StaticCodeAnalysisEnabled {
		return nil, ErrConfigurationInconsistency
	}

	sourceCategories, err := s.categories.ListByExercise(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	imported := make([]models.StaticCodeAnalysisCategory, 0, len(sourceCategories))
	for _, category := range sourceCategories {
		imported = append(imported, models.StaticCodeAnalysisCategory{
			ExerciseID: target.ID,
			Name:       category.Name,
			Penalty:    category.Penalty,
			MaxPenalty: category.MaxPenalty,
			State:      category.State,
		})
	}

	if err := s.categories.ReplaceForExercise(ctx, target.ID, imported); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("exercise_id", target.ID).
		Uint("source_exercise_id", source.ID).
		Int("imported", len(imported)).
		Uint("actor_id", actor.ID).
		Msg("static code analysis categories imported")

	if s.notifier != nil {
		s.notifier.NotifyGradingConfigChanged(ctx, target.ID)
	}

	categories, err := s.categories.ListByExercise(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewCategoryResponses(categories), nil
}
