package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
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

// ErrSubmissionNotFound indicates the submission was not located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrResultNotFound indicates the result was not located.
var ErrResultNotFound = errors.New("result not found")

// ErrLockConflict indicates another tutor already holds the assessment lock
// for the correction round.
var ErrLockConflict = errors.New("assessment already locked")

// ErrNotLockOwner indicates the actor tried to write an assessment someone
// else holds open.
var ErrNotLockOwner = errors.New("assessment locked by another assessor")

// ErrAssessmentNotAllowed indicates the actor's role or the assessment state
// does not permit the operation.
var ErrAssessmentNotAllowed = errors.New("assessment operation not allowed")

// ErrComplaintSelfReview indicates the original assessor tried to decide the
// complaint about their own assessment.
var ErrComplaintSelfReview = errors.New("complaint must be reviewed by another assessor")

// AssessmentService manages the manual assessment lifecycle of submissions.
type AssessmentService interface {
	Lock(ctx context.Context, payload dto.AssessmentLockRequest, actor Actor) (dto.ResultResponse, error)
	Submit(ctx context.Context, resultID uint, payload dto.AssessmentSubmitRequest, actor Actor) (dto.ResultResponse, error)
	Override(ctx context.Context, resultID uint, payload dto.AssessmentOverrideRequest, actor Actor) (dto.ResultResponse, error)
	DecideComplaint(ctx context.Context, resultID uint, payload dto.ComplaintDecisionRequest, actor Actor) (dto.ResultResponse, error)
	Delete(ctx context.Context, resultID uint, actor Actor) error
}

type assessmentService struct {
	exercises      repository.ExerciseRepository
	participations repository.ParticipationRepository
	submissions    repository.SubmissionRepository
	results        repository.ResultRepository
	validator      *validator.Validate
	sanitizer      *bluemonday.Policy
	notifier       GradingNotifier
	roundingPlaces int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(
	exercises repository.ExerciseRepository,
	participations repository.ParticipationRepository,
	submissions repository.SubmissionRepository,
	results repository.ResultRepository,
	validator *validator.Validate,
	notifier GradingNotifier,
	roundingPlaces int,
	logger zerolog.Logger,
) AssessmentService {
	return &assessmentService{
		exercises:      exercises,
		participations: participations,
		submissions:    submissions,
		results:        results,
		validator:      validator,
		sanitizer:      bluemonday.UGCPolicy(),
		notifier:       notifier,
		roundingPlaces: roundingPlaces,
		logger:         logger.With().Str("component", "assessment_service").Logger(),
		now:            time.Now,
	}
}

// Lock opens a manual assessment for one correction round of a submission.
// The unique index on results decides races: of two tutors locking the same
// round, exactly one insert succeeds and the other receives ErrLockConflict.
func (s *assessmentService) Lock(ctx context.Context, payload dto.AssessmentLockRequest, actor Actor) (dto.ResultResponse, error) {
	tracer := otel.Tracer("github.com/campusforge/grading-api/internal/service/assessment")
	ctx, span := tracer.Start(ctx, "assessment.lock")
	span.SetAttributes(
		attribute.Int64("submission_id", int64(payload.SubmissionID)),
		attribute.Int("correction_round", payload.CorrectionRound),
		attribute.Int64("actor_id", int64(actor.ID)),
	)
	defer span.End()

	if !actor.HasAtLeast(RoleTutor) {
		return dto.ResultResponse{}, ErrAssessmentNotAllowed
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ResultResponse{}, err
	}

	submission, err := s.submissions.GetWithResults(ctx, payload.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.ResultResponse{}, ErrSubmissionNotFound
		}
		return dto.ResultResponse{}, err
	}

	if existing := submission.ManualResultForRound(payload.CorrectionRound); existing != nil {
		if existing.LockedBy(actor.ID) {
			return dto.NewResultResponse(*existing), nil
		}
		observability.AssessmentLockConflictsTotal().Inc()
		span.SetStatus(codes.Error, "lock_conflict")
		return dto.ResultResponse{}, ErrLockConflict
	}

	// Seed the assessment with the automatic feedback of the newest build.
	var seeded []models.Feedback
	if latest := latestAutomaticResult(submission); latest != nil {
		for _, entry := range latest.Feedback {
			copied := entry
			copied.ID = 0
			seeded = append(seeded, copied)
		}
	}

	assessor := actor.ID
	round := payload.CorrectionRound
	result := models.Result{
		SubmissionID:    submission.ID,
		AssessmentType:  models.AssessmentSemiAutomatic,
		AssessorID:      &assessor,
		CorrectionRound: &round,
		Feedback:        seeded,
	}
	if err := s.results.CreateManualResult(ctx, &result); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.AssessmentLockConflictsTotal().Inc()
			span.SetStatus(codes.Error, "lock_conflict")
			return dto.ResultResponse{}, ErrLockConflict
		}
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("result_id", result.ID).
		Int("correction_round", round).
		Uint("assessor_id", actor.ID).
		Msg("assessment locked")

	return dto.NewResultResponse(result), nil
}

func (s *assessmentService) Submit(ctx context.Context, resultID uint, payload dto.AssessmentSubmitRequest, actor Actor) (dto.ResultResponse, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultResponse{}, ErrResultNotFound
		}
		return dto.ResultResponse{}, err
	}
	if !result.IsManual() || result.CompletionDate != nil {
		return dto.ResultResponse{}, ErrAssessmentNotAllowed
	}
	// Instructors may finish an assessment an absent tutor holds locked.
	if !result.LockedBy(actor.ID) && !actor.HasAtLeast(RoleInstructor) {
		return dto.ResultResponse{}, ErrNotLockOwner
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ResultResponse{}, err
	}

	return s.finishAssessment(ctx, result, payload.Feedback, actor, result.HasComplaint)
}

// Override replaces the manual feedback of a completed assessment. The
// original assessor may do so until the assessment due date has passed, after
// that only instructors.
func (s *assessmentService) Override(ctx context.Context, resultID uint, payload dto.AssessmentOverrideRequest, actor Actor) (dto.ResultResponse, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultResponse{}, ErrResultNotFound
		}
		return dto.ResultResponse{}, err
	}
	if !result.IsManual() || result.CompletionDate == nil {
		return dto.ResultResponse{}, ErrAssessmentNotAllowed
	}

	exercise, err := s.exerciseForResult(ctx, result)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	if !s.mayOverride(result, exercise, actor) {
		return dto.ResultResponse{}, ErrAssessmentNotAllowed
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ResultResponse{}, err
	}

	return s.finishAssessment(ctx, result, payload.Feedback, actor, result.HasComplaint)
}

func (s *assessmentService) DecideComplaint(ctx context.Context, resultID uint, payload dto.ComplaintDecisionRequest, actor Actor) (dto.ResultResponse, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultResponse{}, ErrResultNotFound
		}
		return dto.ResultResponse{}, err
	}
	if !result.IsManual() || result.CompletionDate == nil {
		return dto.ResultResponse{}, ErrAssessmentNotAllowed
	}
	if !actor.HasAtLeast(RoleTutor) {
		return dto.ResultResponse{}, ErrAssessmentNotAllowed
	}
	if result.AssessorID != nil && *result.AssessorID == actor.ID && !actor.HasAtLeast(RoleInstructor) {
		return dto.ResultResponse{}, ErrComplaintSelfReview
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ResultResponse{}, err
	}

	// The complained-about result keeps its flag permanently, whichever way
	// the decision goes.
	if !result.HasComplaint {
		result.HasComplaint = true
		if err := s.results.Update(ctx, &result); err != nil {
			return dto.ResultResponse{}, err
		}
	}

	if !payload.Accept {
		s.logger.Info().Uint("result_id", result.ID).Uint("reviewer_id", actor.ID).Msg("complaint rejected")
		return dto.NewResultResponse(result), nil
	}

	response, err := s.answerComplaint(ctx, result, payload.Feedback, actor)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	s.logger.Info().
		Uint("result_id", result.ID).
		Uint("response_result_id", response.ID).
		Uint("reviewer_id", actor.ID).
		Msg("complaint accepted")
	return response, nil
}

// Delete removes a result. Tutors may only remove automatic results that a
// newer result has already superseded; instructors may remove any result.
func (s *assessmentService) Delete(ctx context.Context, resultID uint, actor Actor) error {
	if !actor.HasAtLeast(RoleTutor) {
		return ErrAssessmentNotAllowed
	}

	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResultNotFound
		}
		return err
	}

	if !actor.HasAtLeast(RoleInstructor) {
		if result.IsManual() {
			return ErrAssessmentNotAllowed
		}
		submission, err := s.submissions.GetWithResults(ctx, result.SubmissionID)
		if err != nil {
			return err
		}
		if latest := submission.LatestResult(); latest != nil && latest.ID == result.ID {
			return ErrAssessmentNotAllowed
		}
	}

	if err := s.results.Delete(ctx, resultID); err != nil {
		return err
	}

	s.logger.Info().Uint("result_id", resultID).Uint("actor_id", actor.ID).Msg("result deleted")
	return nil
}

// finishAssessment replaces the manual feedback of the result, recalculates
// the score from automatic and manual feedback together, and completes the
// assessment. The complaint flag survives every write.
func (s *assessmentService) finishAssessment(ctx context.Context, result models.Result, entries []dto.ManualFeedbackRequest, actor Actor, hasComplaint bool) (dto.ResultResponse, error) {
	submission, err := s.submissions.GetByID(ctx, result.SubmissionID)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	participation, err := s.participations.GetByID(ctx, submission.ParticipationID)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	exercise, err := s.exercises.GetWithGradingConfig(ctx, participation.ExerciseID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	manual, longTexts := s.buildManualFeedback(entries)

	automatic := make([]models.Feedback, 0, len(result.Feedback))
	for _, entry := range result.Feedback {
		if !entry.IsManual() {
			automatic = append(automatic, entry)
		}
	}
	combined := append(grading.PrepareForRecalculation(automatic), manual...)

	outcome, err := grading.Calculate(grading.Input{
		Exercise:             exercise,
		TestCases:            exercise.TestCases,
		Categories:           exercise.Categories,
		Feedback:             combined,
		IncludeAfterDueDate:  true,
		StudentParticipation: participation.IsStudent(),
		RoundingPlaces:       s.roundingPlaces,
	})
	if err != nil {
		return dto.ResultResponse{}, err
	}

	completion := s.now()
	result.Score = outcome.Score
	result.Successful = outcome.Successful
	result.Rated = true
	result.CompletionDate = &completion
	result.HasComplaint = hasComplaint
	result.TestCaseCount = outcome.TestCaseCount
	result.PassedTestCaseCount = outcome.PassedTestCaseCount
	result.CodeIssueCount = outcome.CodeIssueCount

	if err := s.results.ReplaceFeedback(ctx, &result, outcome.Feedback); err != nil {
		return dto.ResultResponse{}, err
	}

	s.externalizeLongFeedback(ctx, result.Feedback, longTexts)

	observability.AssessmentsSubmittedTotal().Inc()

	response := dto.NewResultResponse(result)
	if s.notifier != nil {
		s.notifier.PublishResult(ctx, exercise.ID, participation.ID, response)
	}

	s.logger.Info().
		Uint("result_id", result.ID).
		Float64("score", result.Score).
		Uint("assessor_id", actor.ID).
		Msg("assessment completed")

	return response, nil
}

// answerComplaint writes the assessment-after-complaint as a fresh result in
// the next correction round. The complained-about result stays untouched; the
// response result starts without a complaint of its own.
func (s *assessmentService) answerComplaint(ctx context.Context, original models.Result, entries []dto.ManualFeedbackRequest, actor Actor) (dto.ResultResponse, error) {
	submission, err := s.submissions.GetByID(ctx, original.SubmissionID)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	participation, err := s.participations.GetByID(ctx, submission.ParticipationID)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	exercise, err := s.exercises.GetWithGradingConfig(ctx, participation.ExerciseID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	manual, longTexts := s.buildManualFeedback(entries)

	automatic := make([]models.Feedback, 0, len(original.Feedback))
	for _, entry := range original.Feedback {
		if entry.IsManual() {
			continue
		}
		copied := entry
		copied.ID = 0
		copied.ResultID = 0
		automatic = append(automatic, copied)
	}
	combined := append(grading.PrepareForRecalculation(automatic), manual...)

	outcome, err := grading.Calculate(grading.Input{
		Exercise:             exercise,
		TestCases:            exercise.TestCases,
		Categories:           exercise.Categories,
		Feedback:             combined,
		IncludeAfterDueDate:  true,
		StudentParticipation: participation.IsStudent(),
		RoundingPlaces:       s.roundingPlaces,
	})
	if err != nil {
		return dto.ResultResponse{}, err
	}

	round := 1
	if original.CorrectionRound != nil {
		round = *original.CorrectionRound + 1
	}
	assessor := actor.ID
	completion := s.now()
	answer := models.Result{
		SubmissionID:        original.SubmissionID,
		AssessmentType:      models.AssessmentSemiAutomatic,
		AssessorID:          &assessor,
		CorrectionRound:     &round,
		Score:               outcome.Score,
		Successful:          outcome.Successful,
		Rated:               true,
		CompletionDate:      &completion,
		TestCaseCount:       outcome.TestCaseCount,
		PassedTestCaseCount: outcome.PassedTestCaseCount,
		CodeIssueCount:      outcome.CodeIssueCount,
		Feedback:            outcome.Feedback,
	}
	if err := s.results.CreateManualResult(ctx, &answer); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.AssessmentLockConflictsTotal().Inc()
			return dto.ResultResponse{}, ErrLockConflict
		}
		return dto.ResultResponse{}, err
	}

	s.externalizeLongFeedback(ctx, answer.Feedback, longTexts)

	observability.AssessmentsSubmittedTotal().Inc()

	response := dto.NewResultResponse(answer)
	if s.notifier != nil {
		s.notifier.PublishResult(ctx, exercise.ID, participation.ID, response)
	}

	return response, nil
}

func (s *assessmentService) externalizeLongFeedback(ctx context.Context, feedback []models.Feedback, longTexts map[string]string) {
	for i := range feedback {
		entry := feedback[i]
		full, ok := longTexts[entry.DetailText]
		if !entry.HasLongFeedback || !ok {
			continue
		}
		long := models.LongFeedbackText{FeedbackID: entry.ID, Text: full}
		if err := s.results.SaveLongFeedback(ctx, &long); err != nil {
			s.logger.Warn().Err(err).Uint("feedback_id", entry.ID).Msg("failed to externalize long feedback")
		}
	}
}

// buildManualFeedback sanitizes tutor text and truncates oversized detail
// texts, returning the full bodies keyed by their truncated form for
// externalization after the rows are written.
func (s *assessmentService) buildManualFeedback(entries []dto.ManualFeedbackRequest) ([]models.Feedback, map[string]string) {
	manual := make([]models.Feedback, 0, len(entries))
	longTexts := make(map[string]string)

	for _, entry := range entries {
		kind := models.FeedbackManualUnreferenced
		if entry.TestCaseID != nil {
			kind = models.FeedbackManual
		}

		feedback := models.Feedback{
			Type:       kind,
			TestCaseID: entry.TestCaseID,
			Text:       strings.TrimSpace(s.sanitizer.Sanitize(entry.Text)),
			Credits:    entry.Credits,
			Visibility: models.VisibilityAlways,
		}

		detail := strings.TrimSpace(s.sanitizer.Sanitize(entry.DetailText))
		truncated, cut := models.TruncateDetailText(detail)
		feedback.DetailText = truncated
		if cut {
			longTexts[truncated] = detail
			feedback.HasLongFeedback = true
		}

		manual = append(manual, feedback)
	}

	return manual, longTexts
}

func (s *assessmentService) mayOverride(result models.Result, exercise models.Exercise, actor Actor) bool {
	if actor.HasAtLeast(RoleInstructor) {
		return true
	}
	if !actor.HasAtLeast(RoleTutor) {
		return false
	}
	if result.AssessorID == nil || *result.AssessorID != actor.ID {
		return false
	}
	return !exercise.AssessmentDueDatePassed(s.now())
}

func (s *assessmentService) exerciseForResult(ctx context.Context, result models.Result) (models.Exercise, error) {
	submission, err := s.submissions.GetByID(ctx, result.SubmissionID)
	if err != nil {
		return models.Exercise{}, err
	}
	participation, err := s.participations.GetByID(ctx, submission.ParticipationID)
	if err != nil {
		return models.Exercise{}, err
	}
	return s.exercises.GetByID(ctx, participation.ExerciseID)
}

func latestAutomaticResult(submission models.Submission) *models.Result {
	for i := len(submission.Results) - 1; i >= 0; i-- {
		if submission.Results[i].AssessmentType == models.AssessmentAutomatic {
			return &submission.Results[i]
		}
	}
	return nil
}
