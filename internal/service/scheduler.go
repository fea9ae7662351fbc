package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rentfolio/ledger-core/internal/billing"
	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/port"
)

var schedulerTracer = otel.Tracer("service/scheduler")

// scheduleChunkSize bounds one page of due schedules, so an interrupted run
// only ever re-processes an idempotent chunk.
const scheduleChunkSize = 100

// RunSummary aggregates one scheduler invocation's outcomes. Duplicates are
// expected under concurrent cron triggers, never errors.
type RunSummary struct {
	Generated  int `json:"generated"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`

	mu sync.Mutex
}

func (r *RunSummary) add(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case "generated":
		r.Generated++
	case "duplicate":
		r.Duplicates++
	case "skipped":
		r.Skipped++
	default:
		r.Errors++
	}
}

// SchedulerService fires recurring charge/payment schedules. The only
// defense against duplicate postings from concurrent or repeated triggers is
// the idempotency-key uniqueness constraint; the scheduler treats the
// resulting violation as "already posted".
type SchedulerService struct {
	store    port.Store
	ledger   *LedgerService
	settings port.Cache[*domain.OrgSettings]
	audit    port.AuditTrail
	metrics  *observability.Metrics
	logger   *zap.Logger
	workers  int
	now      func() time.Time
}

// NewSchedulerService creates a new scheduler service. workers bounds the
// per-chunk fan-out.
func NewSchedulerService(store port.Store, ledger *LedgerService, settings port.Cache[*domain.OrgSettings], audit port.AuditTrail, metrics *observability.Metrics, logger *zap.Logger, workers int) *SchedulerService {
	if workers < 1 {
		workers = 1
	}
	return &SchedulerService{
		store:    store,
		ledger:   ledger,
		settings: settings,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		workers:  workers,
		now:      time.Now,
	}
}

// CreateSchedule registers a recurring template and caches its first run
// date.
func (s *SchedulerService) CreateSchedule(ctx context.Context, orgID string, req *domain.CreateScheduleRequest) (*domain.RecurringSchedule, error) {
	ctx, span := schedulerTracer.Start(ctx, "SchedulerService.CreateSchedule")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	schedule, err := buildSchedule(orgID, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetTransaction(ctx, orgID, schedule.TemplateTransactionID); err != nil {
		return nil, err
	}

	settings := s.orgSettings(ctx, orgID)
	if next, fire, err := billing.ComputeNextRunDate(*schedule, settings.Timezone, s.now()); err == nil && fire {
		schedule.NextRunDate = &next
	}

	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "schedule.created",
		EntityType: "schedule",
		EntityID:   schedule.ID,
		Detail:     string(schedule.Frequency),
	})
	return schedule, nil
}

// GetSchedule returns a schedule.
func (s *SchedulerService) GetSchedule(ctx context.Context, orgID, id string) (*domain.RecurringSchedule, error) {
	ctx, span := schedulerTracer.Start(ctx, "SchedulerService.GetSchedule")
	defer span.End()

	return s.store.GetSchedule(ctx, orgID, id)
}

// SetScheduleStatus applies a lifecycle transition. Ended is terminal.
func (s *SchedulerService) SetScheduleStatus(ctx context.Context, orgID, id string, status domain.ScheduleState) error {
	ctx, span := schedulerTracer.Start(ctx, "SchedulerService.SetScheduleStatus")
	defer span.End()

	switch status {
	case domain.ScheduleActive, domain.SchedulePaused, domain.ScheduleEnded:
	default:
		return &domain.ErrValidation{Field: "status", Message: "must be active, paused or ended"}
	}

	schedule, err := s.store.GetSchedule(ctx, orgID, id)
	if err != nil {
		return err
	}
	if schedule.Status == domain.ScheduleEnded {
		return &domain.ErrConflict{Message: "schedule is ended"}
	}
	if schedule.Status == status {
		return nil
	}
	return s.store.UpdateScheduleStatus(ctx, orgID, id, status)
}

// FireDueSchedules evaluates every active schedule against today (derived
// from now in each org's timezone) and posts an instance for each one due.
// Safe to invoke repeatedly and concurrently.
func (s *SchedulerService) FireDueSchedules(ctx context.Context, now time.Time) (*RunSummary, error) {
	ctx, span := schedulerTracer.Start(ctx, "SchedulerService.FireDueSchedules")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("fire_due_schedules", time.Since(start)) }()

	summary := &RunSummary{}
	afterID := ""

	for {
		chunk, err := s.store.DueSchedules(ctx, scheduleChunkSize, afterID)
		if err != nil {
			return summary, err
		}
		if len(chunk) == 0 {
			break
		}
		afterID = chunk[len(chunk)-1].ID

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, schedule := range chunk {
			schedule := schedule
			g.Go(func() error {
				outcome := s.fireOne(gctx, schedule, now)
				summary.add(outcome)
				s.metrics.IncrSchedulerInstance(outcome)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return summary, err
		}

		if len(chunk) < scheduleChunkSize {
			break
		}
	}

	s.logger.Info("scheduler run complete",
		zap.Int("generated", summary.Generated),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// fireOne evaluates and, when due, posts a single schedule instance.
func (s *SchedulerService) fireOne(ctx context.Context, schedule domain.RecurringSchedule, now time.Time) string {
	settings := s.orgSettings(ctx, schedule.OrgID)

	today, err := billing.TodayInTimezone(now, settings.Timezone)
	if err != nil {
		s.logger.Error("invalid org timezone",
			zap.String("org_id", schedule.OrgID),
			zap.String("timezone", settings.Timezone),
			zap.Error(err),
		)
		return "error"
	}

	if schedule.Ended(today) {
		if err := s.store.UpdateScheduleStatus(ctx, schedule.OrgID, schedule.ID, domain.ScheduleEnded); err != nil {
			s.logger.Error("failed to end expired schedule",
				zap.String("schedule_id", schedule.ID), zap.Error(err))
			return "error"
		}
		return "skipped"
	}

	next, fire, err := billing.ComputeNextRunDate(schedule, settings.Timezone, now)
	if err != nil {
		s.logger.Error("next run computation failed",
			zap.String("schedule_id", schedule.ID), zap.Error(err))
		return "error"
	}
	if !fire || next.After(today) {
		return "skipped"
	}

	if err := s.postInstance(ctx, schedule, next); err != nil {
		var dup *domain.ErrDuplicateKey
		if errors.As(err, &dup) {
			return "duplicate"
		}
		s.logger.Error("failed to post schedule instance",
			zap.String("schedule_id", schedule.ID),
			zap.String("run_date", next.Format(billing.DateLayout)),
			zap.Error(err),
		)
		return "error"
	}

	following := followingRunDate(schedule, next)
	if err := s.store.MarkScheduleRun(ctx, schedule.ID, now, following); err != nil {
		s.logger.Error("failed to record schedule run",
			zap.String("schedule_id", schedule.ID), zap.Error(err))
	}
	return "generated"
}

// postInstance copies the template transaction's lines into a new posting
// keyed recur:<schedule>:<date>.
func (s *SchedulerService) postInstance(ctx context.Context, schedule domain.RecurringSchedule, runDate time.Time) error {
	template, err := s.store.GetTransaction(ctx, schedule.OrgID, schedule.TemplateTransactionID)
	if err != nil {
		return err
	}

	req := &domain.PostTransactionRequest{
		TransactionType: template.TransactionType,
		Date:            runDate.Format(billing.DateLayout),
		Memo:            template.Memo,
		IdempotencyKey:  fmt.Sprintf("recur:%s:%s", schedule.ID, runDate.Format(billing.DateLayout)),
	}
	for _, l := range template.Lines {
		req.Lines = append(req.Lines, domain.PostLineInput{
			GLAccountID: l.GLAccountID,
			Amount:      l.Amount,
			PostingType: l.PostingType,
			Memo:        l.Memo,
		})
	}

	if _, err := s.ledger.PostTransaction(ctx, schedule.OrgID, req); err != nil {
		return err
	}

	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      schedule.OrgID,
		Action:     "schedule.fired",
		EntityType: "schedule",
		EntityID:   schedule.ID,
		Detail:     runDate.Format(billing.DateLayout),
	})
	return nil
}

// followingRunDate recomputes the cached next run as of the day after a
// fire. The fired date is already an org-local calendar date, so UTC keeps
// it unshifted. Nil when the schedule will not fire again.
func followingRunDate(schedule domain.RecurringSchedule, fired time.Time) *time.Time {
	after := fired.AddDate(0, 0, 1)
	next, fire, err := billing.ComputeNextRunDate(schedule, "UTC", after)
	if err != nil || !fire {
		return nil
	}
	return &next
}

// orgSettings resolves per-org configuration through the TTL cache so a run
// over many schedules does not hit the settings table per schedule. Orgs
// without a settings row fall back to UTC and no fee policy.
func (s *SchedulerService) orgSettings(ctx context.Context, orgID string) *domain.OrgSettings {
	if cached, ok := s.settings.Get(orgID); ok {
		s.metrics.IncrCacheHit("org_settings")
		return cached
	}
	s.metrics.IncrCacheMiss("org_settings")

	settings, err := s.store.GetOrgSettings(ctx, orgID)
	if err != nil {
		settings = &domain.OrgSettings{OrgID: orgID, Timezone: "UTC"}
	}
	s.settings.Set(orgID, settings)
	return settings
}

// buildSchedule validates a schedule request.
func buildSchedule(orgID string, req *domain.CreateScheduleRequest) (*domain.RecurringSchedule, error) {
	switch req.Frequency {
	case domain.FrequencyWeekly, domain.FrequencyMonthly, domain.FrequencyQuarterly, domain.FrequencyAnnually:
	default:
		return nil, &domain.ErrValidation{Field: "frequency", Message: "must be Weekly, Monthly, Quarterly or Annually"}
	}
	if req.TemplateTransactionID == "" {
		return nil, &domain.ErrValidation{Field: "template_transaction_id", Message: "required"}
	}
	if req.Frequency == domain.FrequencyMonthly && (req.DayOfMonth < 1 || req.DayOfMonth > 31) {
		return nil, &domain.ErrValidation{Field: "day_of_month", Message: "must be 1-31"}
	}
	if req.Frequency == domain.FrequencyWeekly && (req.DayOfWeek < 1 || req.DayOfWeek > 7) {
		return nil, &domain.ErrValidation{Field: "day_of_week", Message: "must be 1 (Monday) to 7 (Sunday)"}
	}

	startDate, err := time.Parse(billing.DateLayout, req.StartDate)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "start_date", Message: "must be YYYY-MM-DD"}
	}

	policy := req.RolloverPolicy
	if policy == "" {
		policy = domain.RolloverLastDay
	}
	switch policy {
	case domain.RolloverLastDay, domain.RolloverSkip, domain.RolloverNextBusinessDay:
	default:
		return nil, &domain.ErrValidation{Field: "rollover_policy", Message: "unknown rollover policy"}
	}

	schedule := &domain.RecurringSchedule{
		ID:                    uuid.New().String(),
		OrgID:                 orgID,
		TemplateTransactionID: req.TemplateTransactionID,
		Frequency:             req.Frequency,
		DayOfMonth:            req.DayOfMonth,
		DayOfWeek:             req.DayOfWeek,
		RolloverPolicy:        policy,
		StartDate:             startDate,
		Status:                domain.ScheduleActive,
	}
	if req.EndDate != nil {
		endDate, err := time.Parse(billing.DateLayout, *req.EndDate)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "end_date", Message: "must be YYYY-MM-DD"}
		}
		if endDate.Before(startDate) {
			return nil, &domain.ErrValidation{Field: "end_date", Message: "must not precede start_date"}
		}
		schedule.EndDate = &endDate
	}
	return schedule, nil
}
