package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/models"
)

// ResultRepository defines data operations for results and their feedback.
type ResultRepository interface {
	GetByID(ctx context.Context, id uint) (models.Result, error)
	Create(ctx context.Context, result *models.Result) error
	// CreateManualResult inserts the manual result for one correction round.
	// The unique index over (submission_id, correction_round) makes this an
	// atomic compare-and-set: the second concurrent insert for the same round
	// fails with gorm.ErrDuplicatedKey.
	CreateManualResult(ctx context.Context, result *models.Result) error
	Update(ctx context.Context, result *models.Result) error
	// ReplaceFeedback swaps the feedback set of a result in one transaction.
	ReplaceFeedback(ctx context.Context, result *models.Result, feedback []models.Feedback) error
	Delete(ctx context.Context, id uint) error
	ListLatestAutomaticByExercise(ctx context.Context, exerciseID uint) ([]models.Result, error)
	SaveLongFeedback(ctx context.Context, text *models.LongFeedbackText) error
	GetLongFeedback(ctx context.Context, feedbackID uint) (models.LongFeedbackText, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository instantiates the repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) GetByID(ctx context.Context, id uint) (models.Result, error) {
	var result models.Result
	if err := r.db.WithContext(ctx).
		Preload("Feedback").
		First(&result, id).Error; err != nil {
		return models.Result{}, err
	}
	return result, nil
}

func (r *resultRepository) Create(ctx context.Context, result *models.Result) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *resultRepository) CreateManualResult(ctx context.Context, result *models.Result) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(result).Error
	})
}

func (r *resultRepository) Update(ctx context.Context, result *models.Result) error {
	return r.db.WithContext(ctx).Save(result).Error
}

func (r *resultRepository) ReplaceFeedback(ctx context.Context, result *models.Result, feedback []models.Feedback) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("result_id = ?", result.ID).Delete(&models.Feedback{}).Error; err != nil {
			return err
		}
		for i := range feedback {
			feedback[i].ID = 0
			feedback[i].ResultID = result.ID
			if err := tx.Create(&feedback[i]).Error; err != nil {
				return err
			}
		}
		result.Feedback = feedback
		return tx.Save(result).Error
	})
}

func (r *resultRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("result_id = ?", id).Delete(&models.Feedback{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Result{}, id).Error
	})
}

// ListLatestAutomaticByExercise returns the newest automatic result of every
// submission of the exercise, used for the grading statistics page.
func (r *resultRepository) ListLatestAutomaticByExercise(ctx context.Context, exerciseID uint) ([]models.Result, error) {
	var results []models.Result
	err := r.db.WithContext(ctx).
		Preload("Feedback").
		Joins("JOIN submissions ON submissions.id = results.submission_id").
		Joins("JOIN participations ON participations.id = submissions.participation_id").
		Where("participations.exercise_id = ? AND results.assessment_type = ?", exerciseID, models.AssessmentAutomatic).
		Where(`results.id IN (
			SELECT MAX(r2.id) FROM results r2
			JOIN submissions s2 ON s2.id = r2.submission_id
			JOIN participations p2 ON p2.id = s2.participation_id
			WHERE p2.exercise_id = ? AND r2.assessment_type = ?
			GROUP BY r2.submission_id
		)`, exerciseID, models.AssessmentAutomatic).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *resultRepository) SaveLongFeedback(ctx context.Context, text *models.LongFeedbackText) error {
	return r.db.WithContext(ctx).Save(text).Error
}

func (r *resultRepository) GetLongFeedback(ctx context.Context, feedbackID uint) (models.LongFeedbackText, error) {
	var text models.LongFeedbackText
	if err := r.db.WithContext(ctx).
		Where("feedback_id = ?", feedbackID).
		First(&text).Error; err != nil {
		return models.LongFeedbackText{}, err
	}
	return text, nil
}
