package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/grading"
	"github.com/campusforge/grading-api/internal/models"
	"github.com/campusforge/grading-api/internal/observability"
	"github.com/campusforge/grading-api/internal/repository"
)

// ReevaluationService re-grades stored results after the grading configuration
// of an exercise changed.
type ReevaluationService interface {
	// ReevaluateExercise re-grades the exercise. Student participations with
	// an individual due date still open are skipped unless includeExtended
	// asks for them.
	ReevaluateExercise(ctx context.Context, exerciseID uint, includeExtended bool, actor Actor) (dto.ReevaluationResponse, error)
}

type reevaluationService struct {
	exercises      repository.ExerciseRepository
	participations repository.ParticipationRepository
	submissions    repository.SubmissionRepository
	results        repository.ResultRepository
	notifier       GradingNotifier
	workers        int
	roundingPlaces int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewReevaluationService constructs the re-evaluation service.
func NewReevaluationService(
	exercises repository.ExerciseRepository,
	participations repository.ParticipationRepository,
	submissions repository.SubmissionRepository,
	results repository.ResultRepository,
	notifier GradingNotifier,
	workers int,
	roundingPlaces int,
	logger zerolog.Logger,
) ReevaluationService {
	if workers <= 0 {
		workers = 4
	}
	return &reevaluationService{
		exercises:      exercises,
		participations: participations,
		submissions:    submissions,
		results:        results,
		notifier:       notifier,
		workers:        workers,
		roundingPlaces: roundingPlaces,
		logger:         logger.With().Str("component", "reevaluation_service").Logger(),
		now:            time.Now,
	}
}

type reevalOutcome struct {
	participationID uint
	updated         bool
	duplicates      []string
	err             error
}

// ReevaluateExercise recalculates the latest automatic result of every
// participation with the current grading configuration. Participations whose
// individual due date has not passed keep their results until their window
// closes, unless includeExtended pulls them into the pass. Each participation
// is re-graded in its own transaction, so one failure never rolls back the
// rest of the pass.
func (s *reevaluationService) ReevaluateExercise(ctx context.Context, exerciseID uint, includeExtended bool, actor Actor) (dto.ReevaluationResponse, error) {
	tracer := otel.Tracer("github.com/campusforge/grading-api/internal/service/reevaluation")
	ctx, span := tracer.Start(ctx, "reevaluation.exercise")
	span.SetAttributes(
		attribute.Int64("exercise_id", int64(exerciseID)),
		attribute.Bool("include_extended", includeExtended),
		attribute.Int64("actor_id", int64(actor.ID)),
	)
	defer span.End()

	exercise, err := s.exercises.GetWithGradingConfig(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "exercise_not_found")
			return dto.ReevaluationResponse{}, ErrExerciseNotFound
		}
		return dto.ReevaluationResponse{}, err
	}

	filter := repository.ParticipationFilter{ExerciseID: exerciseID}
	if !includeExtended {
		now := s.now()
		filter.ExcludeIndividualDueDateAfter = &now
	}
	participations, err := s.participations.List(ctx, filter)
	if err != nil {
		return dto.ReevaluationResponse{}, err
	}

	jobs := make(chan models.Participation)
	outcomes := make(chan reevalOutcome, len(participations))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for participation := range jobs {
				outcomes <- s.reevaluateParticipation(ctx, exercise, participation)
			}
		}()
	}

	scheduled := len(participations)
	for _, participation := range participations {
		jobs <- participation
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	response := dto.ReevaluationResponse{ExerciseID: exerciseID}
	duplicateNames := make(map[string]struct{})
	for outcome := range outcomes {
		if outcome.err != nil {
			response.FailedResults++
			response.Failures = append(response.Failures, fmt.Sprintf("participation %d: %v", outcome.participationID, outcome.err))
			continue
		}
		if outcome.updated {
			response.UpdatedResults++
		}
		for _, name := range outcome.duplicates {
			duplicateNames[name] = struct{}{}
		}
	}
	sort.Strings(response.Failures)

	if len(duplicateNames) > 0 {
		response.DuplicateTestCase = true
		names := make([]string, 0, len(duplicateNames))
		for name := range duplicateNames {
			names = append(names, name)
		}
		sort.Strings(names)
		observability.DuplicateTestDetectionsTotal().Inc()
		if s.notifier != nil {
			s.notifier.NotifyDuplicateTestCase(ctx, exerciseID, names)
		}
	}

	observability.ReevaluatedResultsTotal().Add(float64(response.UpdatedResults))
	span.SetAttributes(
		attribute.Int("reevaluation.scheduled", scheduled),
		attribute.Int("reevaluation.updated", response.UpdatedResults),
		attribute.Int("reevaluation.failed", response.FailedResults),
	)

	s.logger.Info().
		Uint("exercise_id", exerciseID).
		Int("scheduled", scheduled).
		Int("updated", response.UpdatedResults).
		Int("failed", response.FailedResults).
		Uint("actor_id", actor.ID).
		Msg("exercise re-evaluated")

	return response, nil
}

func (s *reevaluationService) reevaluateParticipation(ctx context.Context, exercise models.Exercise, participation models.Participation) reevalOutcome {
	submission, err := s.submissions.LatestByParticipation(ctx, participation.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reevalOutcome{participationID: participation.ID}
		}
		return reevalOutcome{participationID: participation.ID, err: err}
	}

	result := latestAutomaticResult(submission)
	if result == nil || submission.BuildFailed {
		return reevalOutcome{participationID: participation.ID}
	}

	outcome, err := grading.Calculate(grading.Input{
		Exercise:             exercise,
		TestCases:            exercise.TestCases,
		Categories:           exercise.Categories,
		Feedback:             grading.PrepareForRecalculation(result.Feedback),
		IncludeAfterDueDate:  !participation.IsStudent() || participation.DueDatePassed(exercise, s.now()),
		StudentParticipation: participation.IsStudent(),
		RoundingPlaces:       s.roundingPlaces,
	})
	if err != nil {
		return reevalOutcome{participationID: participation.ID, err: err}
	}

	result.Score = outcome.Score
	result.Successful = outcome.Successful
	result.TestCaseCount = outcome.TestCaseCount
	result.PassedTestCaseCount = outcome.PassedTestCaseCount
	result.CodeIssueCount = outcome.CodeIssueCount

	if err := s.results.ReplaceFeedback(ctx, result, outcome.Feedback); err != nil {
		return reevalOutcome{participationID: participation.ID, err: err}
	}

	if s.notifier != nil {
		s.notifier.PublishResult(ctx, exercise.ID, participation.ID, dto.NewResultResponse(*result))
	}

	return reevalOutcome{participationID: participation.ID, updated: true, duplicates: outcome.DuplicateTestNames}
}
