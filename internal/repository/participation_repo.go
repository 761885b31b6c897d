package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/models"
)

// ParticipationFilter narrows participation queries for re-evaluation runs.
type ParticipationFilter struct {
	ExerciseID uint
	Kinds      []string
	// ExcludeIndividualDueDateAfter drops student participations whose
	// individual due date is still open at the given time, so extended-time
	// students are not re-graded before their window closes.
	ExcludeIndividualDueDateAfter *time.Time
}

// ParticipationRepository defines data operations for participations.
type ParticipationRepository interface {
	GetByID(ctx context.Context, id uint) (models.Participation, error)
	List(ctx context.Context, filter ParticipationFilter) ([]models.Participation, error)
	Create(ctx context.Context, participation *models.Participation) error
}

type participationRepository struct {
	db *gorm.DB
}

// NewParticipationRepository instantiates the repository.
func NewParticipationRepository(db *gorm.DB) ParticipationRepository {
	return &participationRepository{db: db}
}

func (r *participationRepository) GetByID(ctx context.Context, id uint) (models.Participation, error) {
	var participation models.Participation
	if err := r.db.WithContext(ctx).First(&participation, id).Error; err != nil {
		return models.Participation{}, err
	}
	return participation, nil
}

func (r *participationRepository) List(ctx context.Context, filter ParticipationFilter) ([]models.Participation, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Participation{}).
		Where("exercise_id = ?", filter.ExerciseID)

	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}
	if t := filter.ExcludeIndividualDueDateAfter; t != nil {
		query = query.Where("kind <> ? OR individual_due_date IS NULL OR individual_due_date <= ?", models.ParticipationStudent, *t)
	}

	var participations []models.Participation
	if err := query.Order("id ASC").Find(&participations).Error; err != nil {
		return nil, err
	}
	return participations, nil
}

func (r *participationRepository) Create(ctx context.Context, participation *models.Participation) error {
	return r.db.WithContext(ctx).Create(participation).Error
}
