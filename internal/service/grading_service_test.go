package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campusforge/grading-api/internal/models"
)

type gradingFixture struct {
	exercises      *stubExerciseRepo
	participations *stubParticipationRepo
	submissions    *stubSubmissionRepo
	results        *stubResultRepo
	notifier       *recordingNotifier
	service        GradingService
}

func newGradingFixture(t *testing.T) *gradingFixture {
	t.Helper()

	student := uint(100)
	maxPenalty := 3.0
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{
		1: {
			ID:                        1,
			Title:                     "Hash Tables",
			MaxPoints:                 10,
			StaticCodeAnalysisEnabled: true,
			TestCases: []models.TestCase{
				{ID: 1, ExerciseID: 1, Name: "testInsert", Weight: 1, BonusMultiplier: 1, Active: true, Visibility: models.VisibilityAlways},
				{ID: 2, ExerciseID: 1, Name: "testLookup", Weight: 1, BonusMultiplier: 1, Active: true, Visibility: models.VisibilityAlways},
			},
			Categories: []models.StaticCodeAnalysisCategory{
				{ID: 1, ExerciseID: 1, Name: "Style", Penalty: 1, MaxPenalty: &maxPenalty, State: models.CategoryActive},
			},
		},
	}}
	participations := &stubParticipationRepo{participations: map[uint]models.Participation{
		10: {ID: 10, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student},
	}}
	submissions := &stubSubmissionRepo{submissions: map[uint]models.Submission{}}
	results := newStubResultRepo()
	notifier := &recordingNotifier{}

	svc := NewGradingService(exercises, participations, submissions, results, notifier, nil, time.Minute, 1, testLogger())

	return &gradingFixture{
		exercises:      exercises,
		participations: participations,
		submissions:    submissions,
		results:        results,
		notifier:       notifier,
		service:        svc,
	}
}

func TestProcessBuildResultRejectsPayloadsOutsideTheSchema(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.service.ProcessBuildResult(context.Background(), []byte(`{"commit_hash": "abc"}`))
	require.ErrorIs(t, err, ErrInvalidBuildPayload)

	_, err = f.service.ProcessBuildResult(context.Background(), []byte(`not json`))
	require.ErrorIs(t, err, ErrInvalidBuildPayload)
}

func TestProcessBuildResultRejectsUnknownParticipations(t *testing.T) {
	f := newGradingFixture(t)

	payload := []byte(`{"participation_id": 99, "commit_hash": "abc123", "build_completed": "2026-03-01T10:00:00Z"}`)
	_, err := f.service.ProcessBuildResult(context.Background(), payload)
	require.ErrorIs(t, err, ErrParticipationNotFound)
}

func TestProcessBuildFailureRecordsZeroScoreResult(t *testing.T) {
	f := newGradingFixture(t)

	payload := []byte(`{"participation_id": 10, "commit_hash": "abc123", "build_completed": "2026-03-01T10:00:00Z", "build_failed": true}`)
	response, err := f.service.ProcessBuildResult(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, 0.0, response.Score)
	require.NotNil(t, response.Successful)
	require.False(t, *response.Successful)
	require.True(t, response.Rated)
	require.Empty(t, response.Feedback)

	// An unseen commit hash becomes a new submission record.
	submission, err := f.submissions.FindByParticipationAndCommit(context.Background(), 10, "abc123")
	require.NoError(t, err)
	require.True(t, submission.BuildFailed)
	require.Len(t, f.notifier.published, 1)
}

func TestProcessBuildResultGradesTestsAndStaticFindings(t *testing.T) {
	f := newGradingFixture(t)

	payload := []byte(`{
		"participation_id": 10,
		"commit_hash": "def456",
		"build_completed": "2026-03-01T10:00:00Z",
		"tests": [
			{"name": "testInsert", "passed": true, "messages": []},
			{"name": "testLookup", "passed": false, "messages": ["expected 4, got 5"]}
		],
		"static_reports": [
			{"category": "Style", "message": "magic number", "file_path": "table.go", "line": 12, "rule": "MagicNumber", "tool": "lint"}
		]
	}`)

	response, err := f.service.ProcessBuildResult(context.Background(), payload)
	require.NoError(t, err)

	// testInsert earns half the points, the style finding deducts one.
	require.InDelta(t, 40.0, response.Score, 0.01)
	require.Equal(t, 2, response.TestCaseCount)
	require.Equal(t, 1, response.PassedTestCaseCount)
	require.Equal(t, 1, response.CodeIssueCount)
	require.NotNil(t, response.Successful)
	require.False(t, *response.Successful)
	require.Len(t, f.notifier.published, 1)
}

func TestProcessBuildResultRefreshesOpenAssessments(t *testing.T) {
	f := newGradingFixture(t)

	assessor := uint(7)
	round := 0
	credits := 2.0
	f.submissions.submissions[20] = models.Submission{
		ID:              20,
		ParticipationID: 10,
		CommitHash:      "def456",
		Results: []models.Result{
			{
				ID:              40,
				SubmissionID:    20,
				AssessmentType:  models.AssessmentSemiAutomatic,
				AssessorID:      &assessor,
				CorrectionRound: &round,
				Feedback: []models.Feedback{
					{ID: 3, ResultID: 40, Type: models.FeedbackManualUnreferenced, Text: "style bonus", DetailText: "nice structure", Credits: &credits},
					{ID: 4, ResultID: 40, Type: models.FeedbackAutomatic, TestName: "testInsert", DetailText: "stale build output"},
				},
			},
		},
	}
	f.results.results[40] = f.submissions.submissions[20].Results[0]

	payload := []byte(`{
		"participation_id": 10,
		"commit_hash": "def456",
		"build_completed": "2026-03-01T10:00:00Z",
		"tests": [
			{"name": "testInsert", "passed": true, "messages": ["fresh output"]},
			{"name": "testLookup", "passed": true, "messages": []}
		]
	}`)

	_, err := f.service.ProcessBuildResult(context.Background(), payload)
	require.NoError(t, err)

	refreshed := f.results.results[40]
	var manualTexts, testNames []string
	for _, entry := range refreshed.Feedback {
		if entry.IsManual() {
			manualTexts = append(manualTexts, entry.Text)
		} else {
			testNames = append(testNames, entry.TestName)
		}
	}
	require.Equal(t, []string{"style bonus"}, manualTexts)
	require.ElementsMatch(t, []string{"testInsert", "testLookup"}, testNames)
	for _, entry := range refreshed.Feedback {
		require.NotEqual(t, "stale build output", entry.DetailText)
	}
}

func TestGetResultFiltersFeedbackForStudents(t *testing.T) {
	f := newGradingFixture(t)

	future := time.Now().Add(time.Hour)
	exercise := f.exercises.exercises[1]
	exercise.DueDate = &future
	f.exercises.exercises[1] = exercise

	f.submissions.submissions[20] = models.Submission{ID: 20, ParticipationID: 10}
	positive := true
	completion := time.Now().Add(-time.Hour)
	f.results.results[50] = models.Result{
		ID:             50,
		SubmissionID:   20,
		AssessmentType: models.AssessmentAutomatic,
		CompletionDate: &completion,
		Feedback: []models.Feedback{
			{ID: 1, ResultID: 50, Type: models.FeedbackAutomatic, TestName: "testInsert", Positive: &positive, Visibility: models.VisibilityAlways},
			{ID: 2, ResultID: 50, Type: models.FeedbackAutomatic, TestName: "testLookup", Positive: &positive, Visibility: models.VisibilityAfterDueDate},
			{ID: 3, ResultID: 50, Type: models.FeedbackAutomatic, TestName: "testHidden", Positive: &positive, Visibility: models.VisibilityNever},
		},
	}

	owner := Actor{ID: 100, Role: RoleStudent}
	response, err := f.service.GetResult(context.Background(), 50, owner)
	require.NoError(t, err)
	require.Len(t, response.Feedback, 1)
	require.Equal(t, "testInsert", response.Feedback[0].TestName)

	staff, err := f.service.GetResult(context.Background(), 50, Actor{ID: 7, Role: RoleTutor})
	require.NoError(t, err)
	require.Len(t, staff.Feedback, 3)

	_, err = f.service.GetResult(context.Background(), 50, Actor{ID: 101, Role: RoleStudent})
	require.ErrorIs(t, err, ErrResultAccessDenied)
}

func TestGetResultHidesLockedAssessmentsFromStudents(t *testing.T) {
	f := newGradingFixture(t)

	f.submissions.submissions[20] = models.Submission{ID: 20, ParticipationID: 10}
	assessor := uint(7)
	round := 0
	f.results.results[51] = models.Result{
		ID:              51,
		SubmissionID:    20,
		AssessmentType:  models.AssessmentSemiAutomatic,
		AssessorID:      &assessor,
		CorrectionRound: &round,
	}

	_, err := f.service.GetResult(context.Background(), 51, Actor{ID: 100, Role: RoleStudent})
	require.ErrorIs(t, err, ErrResultAccessDenied)
}

func TestCanViewParticipationChecksOwnership(t *testing.T) {
	f := newGradingFixture(t)

	allowed, err := f.service.CanViewParticipation(context.Background(), 10, Actor{ID: 100, Role: RoleStudent})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = f.service.CanViewParticipation(context.Background(), 10, Actor{ID: 101, Role: RoleStudent})
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = f.service.CanViewParticipation(context.Background(), 10, Actor{ID: 7, Role: RoleTutor})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = f.service.CanViewParticipation(context.Background(), 99, Actor{ID: 100, Role: RoleStudent})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestStatisticsAggregatesLatestAutomaticResults(t *testing.T) {
	f := newGradingFixture(t)

	passed := true
	failed := false
	styleCredits := -1.0
	f.results.latestAutomatic = []models.Result{
		{ID: 60, Score: 100, Feedback: []models.Feedback{
			{Type: models.FeedbackAutomatic, TestName: "testInsert", Positive: &passed, DetailText: "ok"},
			{Type: models.FeedbackAutomatic, TestName: "testLookup", Positive: &passed, DetailText: "ok too"},
		}},
		{ID: 61, Score: 40, Feedback: []models.Feedback{
			{Type: models.FeedbackAutomatic, TestName: "testInsert", Positive: &passed, DetailText: "fine"},
			{Type: models.FeedbackAutomatic, TestName: "testLookup", Positive: &failed, DetailText: "broken"},
			{Type: models.FeedbackAutomatic, StaticCodeAnalysisCategory: "Style", Text: "MagicNumber", Credits: &styleCredits, Positive: &failed},
		}},
	}

	stats, err := f.service.Statistics(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint(1), stats.ExerciseID)
	require.Equal(t, 2, stats.ParticipationCount)
	require.InDelta(t, 70.0, stats.AverageScore, 0.01)

	require.Len(t, stats.TestCaseStats, 2)
	require.Equal(t, "testInsert", stats.TestCaseStats[0].Name)
	require.Equal(t, 2, stats.TestCaseStats[0].Passed)
	require.Equal(t, 0, stats.TestCaseStats[0].Failed)
	require.InDelta(t, 100.0, stats.TestCaseStats[0].PassedRate, 0.01)
	require.Equal(t, "testLookup", stats.TestCaseStats[1].Name)
	require.Equal(t, 1, stats.TestCaseStats[1].Passed)
	require.Equal(t, 1, stats.TestCaseStats[1].Failed)

	require.Len(t, stats.CategoryStats, 1)
	require.Equal(t, "Style", stats.CategoryStats[0].Name)
	require.Equal(t, 1, stats.CategoryStats[0].Findings)
	require.Equal(t, 1, stats.CategoryStats[0].Affected)
	require.InDelta(t, 1.0, stats.CategoryStats[0].Penalty, 0.01)
}

func TestStatisticsRejectsUnknownExercises(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.service.Statistics(context.Background(), 42)
	require.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestProcessBuildResultDetectsDuplicateTestOutput(t *testing.T) {
	f := newGradingFixture(t)

	payload := []byte(fmt.Sprintf(`{
		"participation_id": 10,
		"commit_hash": "dup789",
		"build_completed": "2026-03-01T10:00:00Z",
		"tests": [
			{"name": "testInsert", "passed": true, "messages": [%q]},
			{"name": "testLookup", "passed": true, "messages": [%q]}
		]
	}`, "same output", "same output"))

	response, err := f.service.ProcessBuildResult(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, 0.0, response.Score)
	require.Len(t, f.notifier.duplicates, 1)
	require.Equal(t, []string{"testInsert", "testLookup"}, f.notifier.duplicates[0])
}

func TestRecalculateResultAppliesTheCurrentConfiguration(t *testing.T) {
	f := newGradingFixture(t)

	passed := true
	failed := false
	f.submissions.submissions[20] = models.Submission{ID: 20, ParticipationID: 10}
	f.results.results[45] = models.Result{
		ID:             45,
		SubmissionID:   20,
		AssessmentType: models.AssessmentAutomatic,
		Score:          100,
		Feedback: []models.Feedback{
			{ID: 1, ResultID: 45, Type: models.FeedbackAutomatic, TestName: "testInsert", Positive: &passed, DetailText: "ok"},
			{ID: 2, ResultID: 45, Type: models.FeedbackAutomatic, TestName: "testLookup", Positive: &failed, DetailText: "broken"},
		},
	}

	// Reweighting testInsert changes what the stored result is worth.
	exercise := f.exercises.exercises[1]
	exercise.TestCases[0].Weight = 3
	f.exercises.exercises[1] = exercise

	response, err := f.service.RecalculateResult(context.Background(), 45, Actor{ID: 9, Role: RoleInstructor})
	require.NoError(t, err)
	require.InDelta(t, 75.0, response.Score, 0.01)
	require.InDelta(t, 75.0, f.results.results[45].Score, 0.01)
	require.Equal(t, 2, f.results.results[45].TestCaseCount)
	require.Equal(t, 1, f.results.results[45].PassedTestCaseCount)
	require.Len(t, f.notifier.published, 1)
}

func TestRecalculateResultRequiresInstructorRole(t *testing.T) {
	f := newGradingFixture(t)

	_, err := f.service.RecalculateResult(context.Background(), 45, Actor{ID: 7, Role: RoleTutor})
	require.ErrorIs(t, err, ErrResultAccessDenied)
}

func TestRecalculateResultRefusesManualResults(t *testing.T) {
	f := newGradingFixture(t)

	assessor := uint(7)
	round := 0
	f.results.results[46] = models.Result{
		ID:              46,
		SubmissionID:    20,
		AssessmentType:  models.AssessmentSemiAutomatic,
		AssessorID:      &assessor,
		CorrectionRound: &round,
	}

	_, err := f.service.RecalculateResult(context.Background(), 46, Actor{ID: 9, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrResultNotAutomatic)

	_, err = f.service.RecalculateResult(context.Background(), 99, Actor{ID: 9, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrResultNotFound)
}

func TestStatisticsServesRepeatedReadsFromTheCache(t *testing.T) {
	f := newGradingFixture(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cached := NewGradingService(f.exercises, f.participations, f.submissions, f.results, f.notifier, client, time.Minute, 1, testLogger())

	passed := true
	f.results.latestAutomatic = []models.Result{
		{ID: 70, Score: 100, Feedback: []models.Feedback{
			{Type: models.FeedbackAutomatic, TestName: "testInsert", Positive: &passed, DetailText: "ok"},
		}},
	}

	stats, err := cached.Statistics(context.Background(), 1)
	require.NoError(t, err)
	require.InDelta(t, 100.0, stats.AverageScore, 0.01)

	// Later automatic results stay invisible until the cache entry expires.
	f.results.latestAutomatic = append(f.results.latestAutomatic, models.Result{ID: 71, Score: 0})

	stats, err = cached.Statistics(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ParticipationCount)
	require.InDelta(t, 100.0, stats.AverageScore, 0.01)

	mr.FastForward(2 * time.Minute)

	stats, err = cached.Statistics(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ParticipationCount)
	require.InDelta(t, 50.0, stats.AverageScore, 0.01)
}
