package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/models"
)

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetWithResults(ctx context.Context, id uint) (models.Submission, error)
	FindByParticipationAndCommit(ctx context.Context, participationID uint, commitHash string) (models.Submission, error)
	LatestByParticipation(ctx context.Context, participationID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// resultOrder keeps the chronological result chain intact: insertion order is
// the contract every "latest result" lookup relies on.
func resultOrder(db *gorm.DB) *gorm.DB {
	return db.Order("results.id ASC")
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetWithResults(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Results", resultOrder).
		Preload("Results.Feedback").
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) FindByParticipationAndCommit(ctx context.Context, participationID uint, commitHash string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Results", resultOrder).
		Preload("Results.Feedback").
		Where("participation_id = ? AND commit_hash = ?", participationID, commitHash).
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) LatestByParticipation(ctx context.Context, participationID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Results", resultOrder).
		Preload("Results.Feedback").
		Where("participation_id = ?", participationID).
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}
