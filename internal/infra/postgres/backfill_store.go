package postgres

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) GetMarker(ctx context.Context, name string) (*domain.BackfillMarker, error) {
	var m domain.BackfillMarker
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if err != nil {
		return nil, notFound(err, "backfill marker", name)
	}
	return &m, nil
}

func (s *Store) PutMarker(ctx context.Context, m *domain.BackfillMarker) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"completed_at"}),
		}).
		Create(m).Error
}
