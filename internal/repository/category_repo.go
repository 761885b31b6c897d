package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/models"
)

// CategoryRepository defines data operations for static code analysis categories.
type CategoryRepository interface {
	ListByExercise(ctx context.Context, exerciseID uint) ([]models.StaticCodeAnalysisCategory, error)
	SaveAll(ctx context.Context, categories []models.StaticCodeAnalysisCategory) error
	ReplaceForExercise(ctx context.Context, exerciseID uint, categories []models.StaticCodeAnalysisCategory) error
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository instantiates the repository.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) ListByExercise(ctx context.Context, exerciseID uint) ([]models.StaticCodeAnalysisCategory, error) {
	var categories []models.StaticCodeAnalysisCategory
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("name ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) SaveAll(ctx context.Context, categories []models.StaticCodeAnalysisCategory) error {
	if len(categories) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range categories {
			if err := tx.Save(&categories[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceForExercise swaps the category configuration of an exercise in one
// transaction, used when importing the configuration from another exercise.
func (r *categoryRepository) ReplaceForExercise(ctx context.Context, exerciseID uint, categories []models.StaticCodeAnalysisCategory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exercise_id = ?", exerciseID).Delete(&models.StaticCodeAnalysisCategory{}).Error; err != nil {
			return err
		}
		for i := range categories {
			categories[i].ID = 0
			categories[i].ExerciseID = exerciseID
			if err := tx.Create(&categories[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
