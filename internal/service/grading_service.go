package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/grading"
	"github.com/campusforge/grading-api/internal/models"
	"github.com/campusforge/grading-api/internal/observability"
	"github.com/campusforge/grading-api/internal/repository"
	"github.com/campusforge/grading-api/schemas"
)

// ErrParticipationNotFound indicates the participation was not located.
var ErrParticipationNotFound = errors.New("participation not found")

// ErrInvalidBuildPayload indicates the CI notification did not match the schema.
var ErrInvalidBuildPayload = errors.New("invalid build result payload")

// ErrResultAccessDenied indicates the actor may not read the result.
var ErrResultAccessDenied = errors.New("result access denied")

// ErrResultNotAutomatic indicates a recalculation was requested for a manual
// result, which only the assessment flow may rewrite.
var ErrResultNotAutomatic = errors.New("only automatic results can be recalculated")

// GradingService turns CI build notifications into graded results and reports
// how the grading configuration plays out across an exercise.
type GradingService interface {
	ProcessBuildResult(ctx context.Context, raw []byte) (dto.ResultResponse, error)
	GetResult(ctx context.Context, resultID uint, actor Actor) (dto.ResultResponse, error)
	RecalculateResult(ctx context.Context, resultID uint, actor Actor) (dto.ResultResponse, error)
	CanViewParticipation(ctx context.Context, participationID uint, actor Actor) (bool, error)
	Statistics(ctx context.Context, exerciseID uint) (dto.GradingStatisticsResponse, error)
}

type gradingService struct {
	exercises      repository.ExerciseRepository
	participations repository.ParticipationRepository
	submissions    repository.SubmissionRepository
	results        repository.ResultRepository
	notifier       GradingNotifier
	cache          *redis.Client
	cacheTTL       time.Duration
	schema         *jsonschema.Schema
	roundingPlaces int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(
	exercises repository.ExerciseRepository,
	participations repository.ParticipationRepository,
	submissions repository.SubmissionRepository,
	results repository.ResultRepository,
	notifier GradingNotifier,
	cache *redis.Client,
	cacheTTL time.Duration,
	roundingPlaces int,
	logger zerolog.Logger,
) GradingService {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("build_result.schema.json", strings.NewReader(schemas.BuildResult)); err != nil {
		panic(err)
	}

	return &gradingService{
		exercises:      exercises,
		participations: participations,
		submissions:    submissions,
		results:        results,
		notifier:       notifier,
		cache:          cache,
		cacheTTL:       cacheTTL,
		schema:         compiler.MustCompile("build_result.schema.json"),
		roundingPlaces: roundingPlaces,
		logger:         logger.With().Str("component", "grading_service").Logger(),
		now:            time.Now,
	}
}

func (s *gradingService) ProcessBuildResult(ctx context.Context, raw []byte) (dto.ResultResponse, error) {
	tracer := otel.Tracer("github.com/campusforge/grading-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.process_build_result")
	defer span.End()

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		span.SetStatus(codes.Error, "payload_not_json")
		return dto.ResultResponse{}, fmt.Errorf("%w: %v", ErrInvalidBuildPayload, err)
	}
	if err := s.schema.Validate(decoded); err != nil {
		span.SetStatus(codes.Error, "payload_schema_violation")
		return dto.ResultResponse{}, fmt.Errorf("%w: %v", ErrInvalidBuildPayload, err)
	}

	var payload dto.BuildResultRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		return dto.ResultResponse{}, fmt.Errorf("%w: %v", ErrInvalidBuildPayload, err)
	}

	span.SetAttributes(
		attribute.Int64("participation_id", int64(payload.ParticipationID)),
		attribute.String("commit_hash", payload.CommitHash),
		attribute.Bool("build_failed", payload.BuildFailed),
	)

	participation, err := s.participations.GetByID(ctx, payload.ParticipationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "participation_not_found")
			return dto.ResultResponse{}, ErrParticipationNotFound
		}
		return dto.ResultResponse{}, err
	}

	exercise, err := s.exercises.GetWithGradingConfig(ctx, participation.ExerciseID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	submission, err := s.resolveSubmission(ctx, participation, payload)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	if payload.BuildFailed != submission.BuildFailed {
		submission.BuildFailed = payload.BuildFailed
		if err := s.submissions.Update(ctx, &submission); err != nil {
			return dto.ResultResponse{}, err
		}
	}

	result, duplicates, err := s.buildResult(ctx, exercise, participation, submission, payload)
	if err != nil {
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}

	if err := s.mergeIntoOpenAssessment(ctx, submission, result); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to refresh open assessment with new build feedback")
	}

	observability.BuildResultsProcessedTotal().WithLabelValues(buildOutcomeLabel(payload.BuildFailed)).Inc()

	if len(duplicates) > 0 {
		observability.DuplicateTestDetectionsTotal().Inc()
		if s.notifier != nil {
			s.notifier.NotifyDuplicateTestCase(ctx, exercise.ID, duplicates)
		}
	}

	response := dto.NewResultResponse(result)
	if s.notifier != nil {
		s.notifier.PublishResult(ctx, exercise.ID, participation.ID, response)
	}

	s.logger.Info().
		Uint("participation_id", participation.ID).
		Uint("submission_id", submission.ID).
		Uint("result_id", result.ID).
		Float64("score", result.Score).
		Msg("build result processed")

	return response, nil
}

// resolveSubmission matches the build to the submission of the reported commit
// and records a new one when the build refers to a commit the platform has not
// seen, which happens when CI is triggered outside the submission flow.
func (s *gradingService) resolveSubmission(ctx context.Context, participation models.Participation, payload dto.BuildResultRequest) (models.Submission, error) {
	submission, err := s.submissions.FindByParticipationAndCommit(ctx, participation.ID, payload.CommitHash)
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	submissionDate := payload.BuildCompleted
	submission = models.Submission{
		ParticipationID: participation.ID,
		CommitHash:      payload.CommitHash,
		Type:            models.SubmissionManual,
		SubmissionDate:  &submissionDate,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *gradingService) buildResult(ctx context.Context, exercise models.Exercise, participation models.Participation, submission models.Submission, payload dto.BuildResultRequest) (models.Result, []string, error) {
	completion := payload.BuildCompleted
	rated := isRated(participation, exercise, submission)

	if payload.BuildFailed {
		failed := false
		result := models.Result{
			SubmissionID:   submission.ID,
			AssessmentType: models.AssessmentAutomatic,
			Score:          0,
			Successful:     &failed,
			Rated:          rated,
			CompletionDate: &completion,
		}
		if err := s.results.Create(ctx, &result); err != nil {
			return models.Result{}, nil, err
		}
		return result, nil, nil
	}

	rawFeedback, longTexts := feedbackFromBuild(payload)

	outcome, err := grading.Calculate(grading.Input{
		Exercise:             exercise,
		TestCases:            exercise.TestCases,
		Categories:           exercise.Categories,
		Feedback:             rawFeedback,
		IncludeAfterDueDate:  !participation.IsStudent() || participation.DueDatePassed(exercise, s.now()),
		StudentParticipation: participation.IsStudent(),
		RoundingPlaces:       s.roundingPlaces,
	})
	if err != nil {
		return models.Result{}, nil, err
	}

	result := models.Result{
		SubmissionID:        submission.ID,
		AssessmentType:      models.AssessmentAutomatic,
		Score:               outcome.Score,
		Successful:          outcome.Successful,
		Rated:               rated,
		CompletionDate:      &completion,
		TestCaseCount:       outcome.TestCaseCount,
		PassedTestCaseCount: outcome.PassedTestCaseCount,
		CodeIssueCount:      outcome.CodeIssueCount,
		Feedback:            outcome.Feedback,
	}
	if err := s.results.Create(ctx, &result); err != nil {
		return models.Result{}, nil, err
	}

	for i := range result.Feedback {
		entry := result.Feedback[i]
		full, ok := longTexts[entry.TestName]
		if !entry.HasLongFeedback || !ok {
			continue
		}
		long := models.LongFeedbackText{FeedbackID: entry.ID, Text: full}
		if err := s.results.SaveLongFeedback(ctx, &long); err != nil {
			s.logger.Warn().Err(err).Uint("feedback_id", entry.ID).Msg("failed to externalize long feedback")
		}
	}

	return result, outcome.DuplicateTestNames, nil
}

// mergeIntoOpenAssessment refreshes the automatic feedback inside a manual
// result a tutor currently holds open, so the assessment reflects the newest
// build without discarding the tutor's own feedback.
func (s *gradingService) mergeIntoOpenAssessment(ctx context.Context, submission models.Submission, automatic models.Result) error {
	loaded, err := s.submissions.GetWithResults(ctx, submission.ID)
	if err != nil {
		return err
	}

	var open *models.Result
	for i := range loaded.Results {
		if loaded.Results[i].IsLocked() {
			open = &loaded.Results[i]
			break
		}
	}
	if open == nil {
		return nil
	}

	merged := make([]models.Feedback, 0, len(open.Feedback)+len(automatic.Feedback))
	for _, entry := range open.Feedback {
		if entry.IsManual() {
			merged = append(merged, entry)
		}
	}
	for _, entry := range automatic.Feedback {
		copied := entry
		copied.ID = 0
		merged = append(merged, copied)
	}

	return s.results.ReplaceFeedback(ctx, open, merged)
}

// GetResult returns a result with its feedback filtered for the caller. Staff
// see everything; students only see their own results, with NEVER feedback
// removed and AFTER_DUE_DATE feedback withheld until their due date passed.
func (s *gradingService) GetResult(ctx context.Context, resultID uint, actor Actor) (dto.ResultResponse, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultResponse{}, ErrResultNotFound
		}
		return dto.ResultResponse{}, err
	}

	if actor.HasAtLeast(RoleTutor) {
		return dto.NewResultResponse(result), nil
	}

	submission, err := s.submissions.GetByID(ctx, result.SubmissionID)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	participation, err := s.participations.GetByID(ctx, submission.ParticipationID)
	if err != nil {
		return dto.ResultResponse{}, err
	}
	if participation.StudentID == nil || *participation.StudentID != actor.ID {
		return dto.ResultResponse{}, ErrResultAccessDenied
	}
	if result.IsLocked() {
		return dto.ResultResponse{}, ErrResultAccessDenied
	}

	exercise, err := s.exercises.GetByID(ctx, participation.ExerciseID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	dueDatePassed := participation.DueDatePassed(exercise, s.now())
	result.Feedback = grading.FilterFeedback(result.Feedback, grading.AudienceStudent, dueDatePassed)

	return dto.NewResultResponse(result), nil
}

// RecalculateResult re-grades one stored automatic result with the current
// grading configuration. Manual results stay with the assessment flow.
func (s *gradingService) RecalculateResult(ctx context.Context, resultID uint, actor Actor) (dto.ResultResponse, error) {
	tracer := otel.Tracer("github.com/campusforge/grading-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.recalculate_result")
	span.SetAttributes(
		attribute.Int64("result_id", int64(resultID)),
		attribute.Int64("actor_id", int64(actor.ID)),
	)
	defer span.End()

	if !actor.HasAtLeast(RoleInstructor) {
		return dto.ResultResponse{}, ErrResultAccessDenied
	}

	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "result_not_found")
			return dto.ResultResponse{}, ErrResultNotFound
		}
		return dto.ResultResponse{}, err
	}
	if result.IsManual() {
		return dto.ResultResponse{}, ErrResultNotAutomatic
	}

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
		return dto.ResultResponse{}, err
	}

	result.Score = outcome.Score
	result.Successful = outcome.Successful
	result.TestCaseCount = outcome.TestCaseCount
	result.PassedTestCaseCount = outcome.PassedTestCaseCount
	result.CodeIssueCount = outcome.CodeIssueCount

	if err := s.results.ReplaceFeedback(ctx, &result, outcome.Feedback); err != nil {
		return dto.ResultResponse{}, err
	}

	observability.ReevaluatedResultsTotal().Add(1)
	if len(outcome.DuplicateTestNames) > 0 {
		observability.DuplicateTestDetectionsTotal().Inc()
		if s.notifier != nil {
			s.notifier.NotifyDuplicateTestCase(ctx, exercise.ID, outcome.DuplicateTestNames)
		}
	}

	response := dto.NewResultResponse(result)
	if s.notifier != nil {
		s.notifier.PublishResult(ctx, exercise.ID, participation.ID, response)
	}

	s.logger.Info().
		Uint("result_id", result.ID).
		Float64("score", result.Score).
		Uint("actor_id", actor.ID).
		Msg("result recalculated")

	return response, nil
}

// CanViewParticipation reports whether the actor may watch the result feed of
// the participation. Staff always may, students only for their own.
func (s *gradingService) CanViewParticipation(ctx context.Context, participationID uint, actor Actor) (bool, error) {
	if actor.HasAtLeast(RoleTutor) {
		return true, nil
	}
	participation, err := s.participations.GetByID(ctx, participationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return participation.StudentID != nil && *participation.StudentID == actor.ID, nil
}

func (s *gradingService) Statistics(ctx context.Context, exerciseID uint) (dto.GradingStatisticsResponse, error) {
	cacheKey := fmt.Sprintf("grading:stats:%d", exerciseID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.GradingStatisticsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("exercise_id", exerciseID).Msg("grading statistics cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read grading statistics cache")
		}
	}

	exercise, err := s.exercises.GetWithGradingConfig(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingStatisticsResponse{}, ErrExerciseNotFound
		}
		return dto.GradingStatisticsResponse{}, err
	}

	results, err := s.results.ListLatestAutomaticByExercise(ctx, exerciseID)
	if err != nil {
		return dto.GradingStatisticsResponse{}, err
	}

	response := buildStatistics(exercise, results)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store grading statistics cache")
			}
		}
	}

	return response, nil
}

func buildStatistics(exercise models.Exercise, results []models.Result) dto.GradingStatisticsResponse {
	passed := make(map[string]int)
	failed := make(map[string]int)
	findings := make(map[string]int)
	affected := make(map[string]int)
	penalties := make(map[string]float64)

	totalScore := 0.0
	for _, result := range results {
		totalScore += result.Score
		seenCategories := make(map[string]struct{})
		for _, entry := range result.Feedback {
			switch {
			case entry.IsTestFeedback():
				if entry.IsPositive() {
					passed[entry.TestName]++
				} else {
					failed[entry.TestName]++
				}
			case entry.IsStaticCodeAnalysis():
				name := entry.StaticCodeAnalysisCategory
				findings[name]++
				penalties[name] += -entry.CreditValue()
				if _, seen := seenCategories[name]; !seen {
					seenCategories[name] = struct{}{}
					affected[name]++
				}
			}
		}
	}

	testStats := make([]dto.TestCaseStatsEntry, 0, len(exercise.TestCases))
	for _, testCase := range exercise.TestCases {
		if !testCase.Active {
			continue
		}
		p := passed[testCase.Name]
		f := failed[testCase.Name]
		rate := 0.0
		if p+f > 0 {
			rate = float64(p) / float64(p+f) * 100
		}
		testStats = append(testStats, dto.TestCaseStatsEntry{
			Name:       testCase.Name,
			Passed:     p,
			Failed:     f,
			PassedRate: grading.RoundScore(rate, grading.DefaultRoundingPlaces),
		})
	}
	sort.Slice(testStats, func(i, j int) bool { return testStats[i].Name < testStats[j].Name })

	categoryStats := make([]dto.CategoryStatsEntry, 0, len(exercise.Categories))
	for _, category := range exercise.Categories {
		categoryStats = append(categoryStats, dto.CategoryStatsEntry{
			Name:     category.Name,
			Findings: findings[category.Name],
			Affected: affected[category.Name],
			Penalty:  penalties[category.Name],
		})
	}
	sort.Slice(categoryStats, func(i, j int) bool { return categoryStats[i].Name < categoryStats[j].Name })

	average := 0.0
	if len(results) > 0 {
		average = grading.RoundScore(totalScore/float64(len(results)), grading.DefaultRoundingPlaces)
	}

	return dto.GradingStatisticsResponse{
		ExerciseID:         exercise.ID,
		ParticipationCount: len(results),
		AverageScore:       average,
		TestCaseStats:      testStats,
		CategoryStats:      categoryStats,
	}
}

// feedbackFromBuild converts the CI payload into raw feedback entries. Detail
// texts above the inline threshold are truncated here; the full body is
// returned separately and externalized once the feedback rows have IDs.
func feedbackFromBuild(payload dto.BuildResultRequest) ([]models.Feedback, map[string]string) {
	feedback := make([]models.Feedback, 0, len(payload.Tests)+len(payload.StaticReports))
	longTexts := make(map[string]string)

	for _, test := range payload.Tests {
		passed := test.Passed
		detail := strings.Join(test.Messages, "\n")
		entry := models.Feedback{
			Type:     models.FeedbackAutomatic,
			TestName: test.Name,
			Positive: &passed,
		}
		truncated, cut := models.TruncateDetailText(detail)
		entry.DetailText = truncated
		if cut {
			longTexts[test.Name] = detail
			entry.HasLongFeedback = true
		}
		feedback = append(feedback, entry)
	}

	for _, report := range payload.StaticReports {
		negative := false
		feedback = append(feedback, models.Feedback{
			Type:                       models.FeedbackAutomatic,
			StaticCodeAnalysisCategory: report.Category,
			Text:                       report.Rule,
			DetailText:                 report.Message,
			Positive:                   &negative,
			IssueDetail: datatypes.JSONMap{
				"file_path": report.FilePath,
				"line":      report.Line,
				"rule":      report.Rule,
				"tool":      report.Tool,
			},
		})
	}

	return feedback, longTexts
}

// isRated reports whether the submission counts towards the course score,
// which is the case while the due date relevant for the participation has not
// passed at submission time.
func isRated(participation models.Participation, exercise models.Exercise, submission models.Submission) bool {
	due := participation.EffectiveDueDate(exercise)
	if due == nil {
		return true
	}
	if submission.SubmissionDate == nil {
		return false
	}
	return !submission.SubmissionDate.After(*due)
}

func buildOutcomeLabel(failed bool) string {
	if failed {
		return "build_failed"
	}
	return "graded"
}
