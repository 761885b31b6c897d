package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/models"
)

// TestCaseRepository defines data operations for test cases.
type TestCaseRepository interface {
	ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error)
	SaveAll(ctx context.Context, testCases []models.TestCase) error
	ResetForExercise(ctx context.Context, exerciseID uint) error
}

type testCaseRepository struct {
	db *gorm.DB
}

// NewTestCaseRepository instantiates the repository.
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepository{db: db}
}

func (r *testCaseRepository) ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	var testCases []models.TestCase
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("name ASC").
		Find(&testCases).Error; err != nil {
		return nil, err
	}
	return testCases, nil
}

// SaveAll persists the given test cases in one transaction so a rejected
// update leaves nothing partially written.
func (r *testCaseRepository) SaveAll(ctx context.Context, testCases []models.TestCase) error {
	if len(testCases) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range testCases {
			if err := tx.Save(&testCases[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *testCaseRepository) ResetForExercise(ctx context.Context, exerciseID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.TestCase{}).
		Where("exercise_id = ?", exerciseID).
		Updates(map[string]interface{}{
			"weight":           1,
			"bonus_multiplier": 1,
			"bonus_points":     0,
		}).Error
}
