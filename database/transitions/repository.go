package transitions

import (
	"context"
	"time"

	"pattern-ledger/database"
	"pattern-ledger/database/models"

	"gorm.io/gorm"
)

// Repository handles database operations for the regime transition log and
// the learning log. Both relations are append-only: rows are never mutated
// after insert.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new transitions repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordTransition appends one regime boundary record.
func (r *Repository) RecordTransition(ctx context.Context, t *models.RegimeTransition) error {
	if t.FromRegime == t.ToRegime {
		return database.NewValidationErrorWithValue("to_regime", "transition must change the regime", t.ToRegime)
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return database.WrapDBError("RecordTransition", err)
	}
	return nil
}

// ListTransitions returns transitions newest first.
func (r *Repository) ListTransitions(ctx context.Context, limit int) ([]models.RegimeTransition, error) {
	var ts []models.RegimeTransition
	query := r.db.WithContext(ctx).Order("transition_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&ts).Error; err != nil {
		return nil, database.WrapDBError("ListTransitions", err)
	}
	return ts, nil
}

// RecordLesson appends one learning event.
func (r *Repository) RecordLesson(ctx context.Context, e *models.LearningEvent) error {
	if e.LearningDate.IsZero() {
		e.LearningDate = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return database.WrapDBError("RecordLesson", err)
	}
	return nil
}

// RecentLessons returns learning events from the last n days, newest first.
func (r *Repository) RecentLessons(ctx context.Context, days int) ([]models.LearningEvent, error) {
	since := time.Now().AddDate(0, 0, -days)
	var events []models.LearningEvent
	err := r.db.WithContext(ctx).
		Where("learning_date >= ?", since).
		Order("learning_date DESC").
		Find(&events).Error
	if err != nil {
		return nil, database.WrapDBError("RecentLessons", err)
	}
	return events, nil
}
