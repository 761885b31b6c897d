package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/models"
)

func newCategoryFixture() (*stubCategoryRepo, *recordingNotifier, CategoryService) {
	exercises := &stubExerciseRepo{exercises: map[uint]models.Exercise{
		1: {ID: 1, Title: "Graphs", MaxPoints: 20, StaticCodeAnalysisEnabled: true},
		2: {ID: 2, Title: "Trees", MaxPoints: 15, StaticCodeAnalysisEnabled: true},
		3: {ID: 3, Title: "Essays", MaxPoints: 10, StaticCodeAnalysisEnabled: false},
	}}
	categories := &stubCategoryRepo{categories: []models.StaticCodeAnalysisCategory{
		{ID: 1, ExerciseID: 1, Name: "Bad Practice", Penalty: 1, State: models.CategoryActive},
		{ID: 2, ExerciseID: 2, Name: "Style", Penalty: 0.5, State: models.CategoryActive},
		{ID: 3, ExerciseID: 2, Name: "Security", Penalty: 2, State: models.CategoryInactive},
	}}
	notifier := &recordingNotifier{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewCategoryService(exercises, categories, validate, notifier, testLogger())
	return categories, notifier, svc
}

func TestCategoryBulkUpdateRequiresStaticCodeAnalysis(t *testing.T) {
	repo, _, svc := newCategoryFixture()

	payload := dto.CategoryBulkUpdateRequest{Categories: []dto.CategoryUpdateRequest{
		{ID: 1, Penalty: 2, State: models.CategoryActive},
	}}
	_, err := svc.BulkUpdate(context.Background(), 3, payload, Actor{ID: 5, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrConfigurationInconsistency)
	require.Equal(t, 0, repo.saveCalls)
}

func TestCategoryBulkUpdateRejectsForeignCategories(t *testing.T) {
	repo, _, svc := newCategoryFixture()

	payload := dto.CategoryBulkUpdateRequest{Categories: []dto.CategoryUpdateRequest{
		{ID: 2, Penalty: 2, State: models.CategoryActive},
	}}
	_, err := svc.BulkUpdate(context.Background(), 1, payload, Actor{ID: 5, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrCategoryNotInExercise)
	require.Equal(t, 0, repo.saveCalls)
}

func TestCategoryBulkUpdateAppliesPenalties(t *testing.T) {
	repo, notifier, svc := newCategoryFixture()

	maxPenalty := 5.0
	payload := dto.CategoryBulkUpdateRequest{Categories: []dto.CategoryUpdateRequest{
		{ID: 1, Penalty: 2, MaxPenalty: &maxPenalty, State: models.CategoryInactive},
	}}
	updated, err := svc.BulkUpdate(context.Background(), 1, payload, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, 2.0, updated[0].Penalty)
	require.Equal(t, maxPenalty, *updated[0].MaxPenalty)
	require.Equal(t, models.CategoryInactive, updated[0].State)
	require.Equal(t, 1, repo.saveCalls)
	require.Equal(t, []uint{1}, notifier.configChanged)
}

func TestCategoryImportRequiresMatchingConfiguration(t *testing.T) {
	_, _, svc := newCategoryFixture()

	_, err := svc.ImportFrom(context.Background(), 1, dto.CategoryImportRequest{SourceExerciseID: 3}, Actor{ID: 5, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrConfigurationInconsistency)

	_, err = svc.ImportFrom(context.Background(), 3, dto.CategoryImportRequest{SourceExerciseID: 1}, Actor{ID: 5, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrConfigurationInconsistency)
}

func TestCategoryImportReplacesTheTargetConfiguration(t *testing.T) {
	repo, notifier, svc := newCategoryFixture()

	imported, err := svc.ImportFrom(context.Background(), 1, dto.CategoryImportRequest{SourceExerciseID: 2}, Actor{ID: 5, Role: RoleInstructor})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	require.Len(t, repo.replaced, 2)
	for _, category := range repo.replaced {
		require.Equal(t, uint(1), category.ExerciseID)
	}
	names := []string{imported[0].Name, imported[1].Name}
	require.ElementsMatch(t, []string{"Style", "Security"}, names)
	require.Equal(t, []uint{1}, notifier.configChanged)
}
