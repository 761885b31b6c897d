package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/models"
	"github.com/campusforge/grading-api/internal/repository"
)

// ErrExerciseNotFound indicates the exercise was not located.
var ErrExerciseNotFound = errors.New("exercise not found")

// ErrTestCaseNotInExercise indicates an update referenced a test case that
// belongs to a different exercise or does not exist.
var ErrTestCaseNotInExercise = errors.New("test case does not belong to exercise")

// TestCaseService manages the grading settings of automated test cases.
type TestCaseService interface {
	List(ctx context.Context, exerciseID uint) ([]dto.TestCaseResponse, error)
	BulkUpdate(ctx context.Context, exerciseID uint, payload dto.TestCaseBulkUpdateRequest, actor Actor) ([]dto.TestCaseResponse, error)
	Reset(ctx context.Context, exerciseID uint, actor Actor) ([]dto.TestCaseResponse, error)
}

type testCaseService struct {
	exercises repository.ExerciseRepository
	testCases repository.TestCaseRepository
	validator *validator.Validate
	notifier  GradingNotifier
	logger    zerolog.Logger
}

// NewTestCaseService constructs the test case service.
func NewTestCaseService(exercises repository.ExerciseRepository, testCases repository.TestCaseRepository, validator *validator.Validate, notifier GradingNotifier, logger zerolog.Logger) TestCaseService {
	return &testCaseService{
		exercises: exercises,
		testCases: testCases,
		validator: validator,
		notifier:  notifier,
		logger:    logger.With().Str("component", "test_case_service").Logger(),
	}
}

func (s *testCaseService) List(ctx context.Context, exerciseID uint) ([]dto.TestCaseResponse, error) {
	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	testCases, err := s.testCases.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return dto.NewTestCaseResponses(testCases), nil
}

func (s *testCaseService) BulkUpdate(ctx context.Context, exerciseID uint, payload dto.TestCaseBulkUpdateRequest, actor Actor) ([]dto.TestCaseResponse, error) {
	tracer := otel.Tracer("github.com/campusforge/grading-api/internal/service/test_case")
	ctx, span := tracer.Start(ctx, "test_case.bulk_update")
	span.SetAttributes(
		attribute.Int64("exercise_id", int64(exerciseID)),
		attribute.Int("test_case.count", len(payload.TestCases)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return nil, err
	}

	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	existing, err := s.testCases.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.TestCase, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	// Resolve every update before writing anything: one unknown ID rejects
	// the whole batch.
	updated := make([]models.TestCase, 0, len(payload.TestCases))
	for _, update := range payload.TestCases {
		testCase, ok := byID[update.ID]
		if !ok {
			span.SetStatus(codes.Error, "unknown_test_case")
			return nil, ErrTestCaseNotInExercise
		}
		testCase.Weight = update.Weight
		testCase.BonusMultiplier = update.BonusMultiplier
		testCase.BonusPoints = update.BonusPoints
		if update.Visibility != "" {
			testCase.Visibility = update.Visibility
		}
		updated = append(updated, *testCase)
	}

	if err := s.testCases.SaveAll(ctx, updated); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save_failed")
		return nil, err
	}

	s.logger.Info().
		Uint("exercise_id", exerciseID).
		Int("updated", len(updated)).
		Uint("actor_id", actor.ID).
		Msg("test case grading settings updated")

	if s.notifier != nil {
		s.notifier.NotifyGradingConfigChanged(ctx, exerciseID)
	}

	testCases, err := s.testCases.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return dto.NewTestCaseResponses(testCases), nil
}

func (s *testCaseService) Reset(ctx context.Context, exerciseID uint, actor Actor) ([]dto.TestCaseResponse, error) {
	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	if err := s.testCases.ResetForExercise(ctx, exerciseID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("exercise_id", exerciseID).
		Uint("actor_id", actor.ID).
		Msg("test case grading settings reset to defaults")

	if s.notifier != nil {
		s.notifier.NotifyGradingConfigChanged(ctx, exerciseID)
	}

	testCases, err := s.testCases.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return dto.NewTestCaseResponses(testCases), nil
}
