package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Exercise{},
		&models.TestCase{},
		&models.StaticCodeAnalysisCategory{},
		&models.Participation{},
		&models.Submission{},
		&models.Result{},
		&models.Feedback{},
		&models.LongFeedbackText{},
	))
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB) models.Submission {
	t.Helper()
	exercise := models.Exercise{Title: "Graphs", MaxPoints: 10, IncludedInOverallScore: models.IncludedCompletely}
	require.NoError(t, db.Create(&exercise).Error)
	participation := models.Participation{ExerciseID: exercise.ID, Kind: models.ParticipationStudent}
	require.NoError(t, db.Create(&participation).Error)
	submission := models.Submission{ParticipationID: participation.ID, CommitHash: "abc123", Type: models.SubmissionManual}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestCreateManualResultEnforcesSingleLockPerRound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	submission := seedSubmission(t, db)

	round := 0
	assessorA := uint(7)
	first := models.Result{
		SubmissionID:    submission.ID,
		AssessmentType:  models.AssessmentSemiAutomatic,
		AssessorID:      &assessorA,
		CorrectionRound: &round,
	}
	require.NoError(t, repo.CreateManualResult(context.Background(), &first))

	assessorB := uint(8)
	second := models.Result{
		SubmissionID:    submission.ID,
		AssessmentType:  models.AssessmentSemiAutomatic,
		AssessorID:      &assessorB,
		CorrectionRound: &round,
	}
	err := repo.CreateManualResult(context.Background(), &second)
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "expected the unique index to reject the second lock")

	// A second correction round is a different lock.
	nextRound := 1
	third := models.Result{
		SubmissionID:    submission.ID,
		AssessmentType:  models.AssessmentSemiAutomatic,
		AssessorID:      &assessorB,
		CorrectionRound: &nextRound,
	}
	require.NoError(t, repo.CreateManualResult(context.Background(), &third))
}

func TestAutomaticResultsStayOutsideTheLockConstraint(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	submission := seedSubmission(t, db)

	now := time.Now()
	for i := 0; i < 3; i++ {
		result := models.Result{
			SubmissionID:   submission.ID,
			AssessmentType: models.AssessmentAutomatic,
			CompletionDate: &now,
		}
		require.NoError(t, repo.Create(context.Background(), &result))
	}
}

func TestResultsLoadInInsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	resultRepo := NewResultRepository(db)
	submissionRepo := NewSubmissionRepository(db)
	submission := seedSubmission(t, db)

	now := time.Now()
	automatic := models.Result{SubmissionID: submission.ID, AssessmentType: models.AssessmentAutomatic, CompletionDate: &now, Score: 40}
	require.NoError(t, resultRepo.Create(context.Background(), &automatic))

	round := 0
	assessor := uint(3)
	manual := models.Result{SubmissionID: submission.ID, AssessmentType: models.AssessmentSemiAutomatic, AssessorID: &assessor, CorrectionRound: &round, Score: 60}
	require.NoError(t, resultRepo.CreateManualResult(context.Background(), &manual))

	loaded, err := submissionRepo.GetWithResults(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 2)
	require.Equal(t, automatic.ID, loaded.Results[0].ID)
	require.Equal(t, manual.ID, loaded.Results[1].ID)
	require.Equal(t, manual.ID, loaded.LatestResult().ID)
	require.Equal(t, manual.ID, loaded.FirstManualResult().ID)
}

func TestDeleteResultPreservesRemainingOrder(t *testing.T) {
	db := setupTestDB(t)
	resultRepo := NewResultRepository(db)
	submissionRepo := NewSubmissionRepository(db)
	submission := seedSubmission(t, db)

	now := time.Now()
	var ids []uint
	for i := 0; i < 3; i++ {
		result := models.Result{SubmissionID: submission.ID, AssessmentType: models.AssessmentAutomatic, CompletionDate: &now}
		require.NoError(t, resultRepo.Create(context.Background(), &result))
		ids = append(ids, result.ID)
	}

	require.NoError(t, resultRepo.Delete(context.Background(), ids[1]))

	loaded, err := submissionRepo.GetWithResults(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 2)
	require.Equal(t, ids[0], loaded.Results[0].ID)
	require.Equal(t, ids[2], loaded.Results[1].ID)
}

func TestReplaceFeedbackSwapsTheSet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	submission := seedSubmission(t, db)

	now := time.Now()
	result := models.Result{SubmissionID: submission.ID, AssessmentType: models.AssessmentAutomatic, CompletionDate: &now}
	require.NoError(t, repo.Create(context.Background(), &result))

	positive := true
	initial := []models.Feedback{
		{Type: models.FeedbackAutomatic, TestName: "test1", Positive: &positive},
	}
	require.NoError(t, repo.ReplaceFeedback(context.Background(), &result, initial))

	replacement := []models.Feedback{
		{Type: models.FeedbackAutomatic, TestName: "test1", Positive: &positive},
		{Type: models.FeedbackAutomatic, TestName: "test2"},
	}
	require.NoError(t, repo.ReplaceFeedback(context.Background(), &result, replacement))

	loaded, err := repo.GetByID(context.Background(), result.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Feedback, 2)
}

func TestLongFeedbackRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	submission := seedSubmission(t, db)

	now := time.Now()
	result := models.Result{SubmissionID: submission.ID, AssessmentType: models.AssessmentAutomatic, CompletionDate: &now}
	require.NoError(t, repo.Create(context.Background(), &result))

	feedback := models.Feedback{ResultID: result.ID, Type: models.FeedbackAutomatic, TestName: "test1", HasLongFeedback: true}
	require.NoError(t, db.Create(&feedback).Error)

	long := models.LongFeedbackText{FeedbackID: feedback.ID, Text: "very long build output"}
	require.NoError(t, repo.SaveLongFeedback(context.Background(), &long))

	loaded, err := repo.GetLongFeedback(context.Background(), feedback.ID)
	require.NoError(t, err)
	require.Equal(t, "very long build output", loaded.Text)
}
