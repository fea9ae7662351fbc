package postgres

import (
	"context"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) GetOrgSettings(ctx context.Context, orgID string) (*domain.OrgSettings, error) {
	var settings domain.OrgSettings
	err := s.db.WithContext(ctx).Where("org_id = ?", orgID).First(&settings).Error
	if err != nil {
		return nil, notFound(err, "org settings", orgID)
	}
	return &settings, nil
}

func (s *Store) OrgIDsWithSchedules(ctx context.Context) ([]string, error) {
	var orgIDs []string
	err := s.db.WithContext(ctx).
		Model(&domain.RecurringSchedule{}).
		Distinct("org_id").
		Where("status = ?", domain.ScheduleActive).
		Order("org_id").
		Pluck("org_id", &orgIDs).Error
	return orgIDs, err
}
