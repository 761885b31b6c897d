package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusforge/grading-api/internal/models"
)

func reevalExercise() models.Exercise {
	return models.Exercise{
		ID:        1,
		Title:     "Heaps",
		MaxPoints: 10,
		TestCases: []models.TestCase{
			{ID: 1, ExerciseID: 1, Name: "testPush", Weight: 1, BonusMultiplier: 1, Active: true, Visibility: models.VisibilityAlways},
			{ID: 2, ExerciseID: 1, Name: "testPop", Weight: 1, BonusMultiplier: 1, Active: true, Visibility: models.VisibilityAlways},
		},
	}
}

func passingFeedback(resultID uint) []models.Feedback {
	passed := true
	return []models.Feedback{
		{ID: resultID * 10, ResultID: resultID, Type: models.FeedbackAutomatic, TestName: "testPush", Positive: &passed, DetailText: "push ok"},
		{ID: resultID*10 + 1, ResultID: resultID, Type: models.FeedbackAutomatic, TestName: "testPop", Positive: &passed, DetailText: "pop ok"},
	}
}

func TestReevaluationUpdatesResultsAndCollectsFailures(t *testing.T) {
	student := uint(100)
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{1: reevalExercise()}}
	future := time.Now().Add(time.Hour)
	participations := &stubParticipationRepo{participations: map[uint]models.Participation{
		10: {ID: 10, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student},
		11: {ID: 11, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student, IndividualDueDate: &future},
		12: {ID: 12, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student},
	}}
	submissions := &stubSubmissionRepo{submissions: map[uint]models.Submission{
		20: {ID: 20, ParticipationID: 10, Results: []models.Result{
			{ID: 30, SubmissionID: 20, AssessmentType: models.AssessmentAutomatic, Feedback: passingFeedback(30)},
		}},
		22: {ID: 22, ParticipationID: 12, Results: []models.Result{
			{ID: 32, SubmissionID: 22, AssessmentType: models.AssessmentAutomatic, Feedback: passingFeedback(32)},
		}},
	}}
	results := newStubResultRepo()
	results.replaceErrFor[32] = errors.New("storage unavailable")
	notifier := &recordingNotifier{}

	svc := NewReevaluationService(exercises, participations, submissions, results, notifier, 2, 1, testLogger())

	response, err := svc.ReevaluateExercise(context.Background(), 1, false, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.Equal(t, uint(1), response.ExerciseID)
	require.Equal(t, 1, response.UpdatedResults)
	require.Equal(t, 1, response.FailedResults)
	require.Len(t, response.Failures, 1)
	require.Contains(t, response.Failures[0], "participation 12")
	require.False(t, response.DuplicateTestCase)
	require.Len(t, notifier.published, 1)
	require.InDelta(t, 100.0, notifier.published[0].Score, 0.01)
}

func TestReevaluationSkipsBuildFailedSubmissions(t *testing.T) {
	student := uint(100)
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{1: reevalExercise()}}
	participations := &stubParticipationRepo{participations: map[uint]models.Participation{
		10: {ID: 10, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student},
	}}
	submissions := &stubSubmissionRepo{submissions: map[uint]models.Submission{
		20: {ID: 20, ParticipationID: 10, BuildFailed: true, Results: []models.Result{
			{ID: 30, SubmissionID: 20, AssessmentType: models.AssessmentAutomatic, Feedback: passingFeedback(30)},
		}},
	}}
	results := newStubResultRepo()
	notifier := &recordingNotifier{}

	svc := NewReevaluationService(exercises, participations, submissions, results, notifier, 2, 1, testLogger())

	response, err := svc.ReevaluateExercise(context.Background(), 1, false, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.Equal(t, 0, response.UpdatedResults)
	require.Equal(t, 0, response.FailedResults)
	require.Equal(t, 0, results.replaceCalls)
}

func TestReevaluationFlagsDuplicateTestOutput(t *testing.T) {
	student := uint(100)
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{1: reevalExercise()}}
	participations := &stubParticipationRepo{participations: map[uint]models.Participation{
		10: {ID: 10, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student},
	}}
	passed := true
	duplicated := []models.Feedback{
		{ID: 301, ResultID: 30, Type: models.FeedbackAutomatic, TestName: "testPush", Positive: &passed, DetailText: "identical output"},
		{ID: 302, ResultID: 30, Type: models.FeedbackAutomatic, TestName: "testPop", Positive: &passed, DetailText: "identical output"},
	}
	submissions := &stubSubmissionRepo{submissions: map[uint]models.Submission{
		20: {ID: 20, ParticipationID: 10, Results: []models.Result{
			{ID: 30, SubmissionID: 20, AssessmentType: models.AssessmentAutomatic, Feedback: duplicated},
		}},
	}}
	results := newStubResultRepo()
	notifier := &recordingNotifier{}

	svc := NewReevaluationService(exercises, participations, submissions, results, notifier, 1, 1, testLogger())

	response, err := svc.ReevaluateExercise(context.Background(), 1, false, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.True(t, response.DuplicateTestCase)
	require.Len(t, notifier.duplicates, 1)
	require.Equal(t, []string{"testPop", "testPush"}, notifier.duplicates[0])
	require.Len(t, notifier.published, 1)
	require.InDelta(t, 0.0, notifier.published[0].Score, 0.01)
}

func TestReevaluationRejectsUnknownExercises(t *testing.T) {
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{}}
	participations := &stubParticipationRepo{participations: map[uint]models.Participation{}}
	submissions := &stubSubmissionRepo{submissions: map[uint]models.Submission{}}
	results := newStubResultRepo()

	svc := NewReevaluationService(exercises, participations, submissions, results, &recordingNotifier{}, 2, 1, testLogger())

	_, err := svc.ReevaluateExercise(context.Background(), 77, false, Actor{ID: 5, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestReevaluationCanIncludeOpenIndividualDueDates(t *testing.T) {
	student := uint(100)
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{1: reevalExercise()}}
	future := time.Now().Add(time.Hour)
	participations := &stubParticipationRepo{participations: map[uint]models.Participation{
		11: {ID: 11, ExerciseID: 1, Kind: models.ParticipationStudent, StudentID: &student, IndividualDueDate: &future},
	}}
	submissions := &stubSubmissionRepo{submissions: map[uint]models.Submission{
		21: {ID: 21, ParticipationID: 11, Results: []models.Result{
			{ID: 31, SubmissionID: 21, AssessmentType: models.AssessmentAutomatic, Feedback: passingFeedback(31)},
		}},
	}}
	results := newStubResultRepo()
	notifier := &recordingNotifier{}

	svc := NewReevaluationService(exercises, participations, submissions, results, notifier, 2, 1, testLogger())

	response, err := svc.ReevaluateExercise(context.Background(), 1, false, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.Equal(t, 0, response.UpdatedResults)
	require.Equal(t, 0, results.replaceCalls)

	response, err = svc.ReevaluateExercise(context.Background(), 1, true, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.Equal(t, 1, response.UpdatedResults)
	require.Equal(t, 1, results.replaceCalls)
	require.Len(t, notifier.published, 1)
	require.InDelta(t, 100.0, notifier.published[0].Score, 0.01)
}
