package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) CreateSchedule(ctx context.Context, sched *domain.RecurringSchedule) error {
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(sched).Error
}

func (s *Store) GetSchedule(ctx context.Context, orgID, id string) (*domain.RecurringSchedule, error) {
	var sched domain.RecurringSchedule
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&sched).Error
	if err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return &sched, nil
}

func (s *Store) UpdateScheduleStatus(ctx context.Context, orgID, id string, status domain.ScheduleState) error {
	updates := map[string]any{"status": status}
	if status == domain.ScheduleEnded {
		updates["ended_at"] = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&domain.RecurringSchedule{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "schedule", ID: id}
	}
	return nil
}

// DueSchedules pages active schedules by ID so a retried batch revisits an
// idempotent chunk rather than re-reading the whole table.
func (s *Store) DueSchedules(ctx context.Context, limit int, afterID string) ([]domain.RecurringSchedule, error) {
	var scheds []domain.RecurringSchedule
	err := s.db.WithContext(ctx).
		Where("status = ? AND id > ?", domain.ScheduleActive, afterID).
		Order("id").
		Limit(limit).
		Find(&scheds).Error
	return scheds, err
}

func (s *Store) MarkScheduleRun(ctx context.Context, id string, generatedAt time.Time, nextRunDate *time.Time) error {
	return s.db.WithContext(ctx).
		Model(&domain.RecurringSchedule{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_generated_at": generatedAt,
			"next_run_date":     nextRunDate,
		}).Error
}
