package correlations

import (
	"context"
	"errors"

	"pattern-ledger/database"
	"pattern-ledger/database/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for pairwise pattern correlations.
// (A,B) and (B,A) describe the same relationship, so the pair is forced into
// canonical order before it ever reaches a row.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new correlations repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CanonicalPair orders two pattern ids so the lexicographically smaller one
// comes first. Both lookup and storage go through this, preventing mirrored
// duplicate rows.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Upsert writes the pair's running statistics, keyed on the canonical order.
func (r *Repository) Upsert(ctx context.Context, entry *models.PatternCorrelation) error {
	if entry.PatternA == entry.PatternB {
		return database.NewValidationError("pattern_pair", "a pattern cannot correlate with itself")
	}
	entry.PatternA, entry.PatternB = CanonicalPair(entry.PatternA, entry.PatternB)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pattern_a"}, {Name: "pattern_b"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"correlation_coefficient",
			"trades_together",
			"win_rate_together",
			"relationship_type",
			"last_calculated",
		}),
	}).Create(entry).Error
	if err != nil {
		return database.WrapDBError("Upsert", err)
	}
	return nil
}

// GetPair fetches the correlation row for two patterns in either order.
// An unknown pair returns (nil, nil).
func (r *Repository) GetPair(ctx context.Context, a, b string) (*models.PatternCorrelation, error) {
	a, b = CanonicalPair(a, b)
	var entry models.PatternCorrelation
	err := r.db.WithContext(ctx).
		Where("pattern_a = ? AND pattern_b = ?", a, b).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetPair", err)
	}
	return &entry, nil
}

// ForPattern lists every correlation row involving the given pattern.
func (r *Repository) ForPattern(ctx context.Context, patternID string) ([]models.PatternCorrelation, error) {
	var entries []models.PatternCorrelation
	err := r.db.WithContext(ctx).
		Where("pattern_a = ? OR pattern_b = ?", patternID, patternID).
		Order("trades_together DESC").
		Find(&entries).Error
	if err != nil {
		return nil, database.WrapDBError("ForPattern", err)
	}
	return entries, nil
}

// List returns correlation rows with a computed coefficient, strongest
// absolute correlation first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.PatternCorrelation, error) {
	var entries []models.PatternCorrelation
	query := r.db.WithContext(ctx).
		Where("correlation_coefficient IS NOT NULL").
		Order("ABS(correlation_coefficient) DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, database.WrapDBError("List", err)
	}
	return entries, nil
}
