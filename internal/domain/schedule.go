package domain

import "time"

// Frequency of a recurring schedule.
type Frequency string

const (
	FrequencyWeekly    Frequency = "Weekly"
	FrequencyMonthly   Frequency = "Monthly"
	FrequencyQuarterly Frequency = "Quarterly"
	FrequencyAnnually  Frequency = "Annually"
)

// RolloverPolicy resolves a monthly anchor day that does not exist in the
// target month (day 31 in February). Only the last-day clamp is contractually
// verified; skip and next-business-day are named hooks that currently also
// clamp.
type RolloverPolicy string

const (
	RolloverLastDay         RolloverPolicy = "last_day"
	RolloverSkip            RolloverPolicy = "skip"
	RolloverNextBusinessDay RolloverPolicy = "next_business_day"
)

// ScheduleState is the lifecycle of a recurring schedule.
type ScheduleState string

const (
	ScheduleActive ScheduleState = "active"
	SchedulePaused ScheduleState = "paused"
	ScheduleEnded  ScheduleState = "ended"
)

// CanFire reports whether a schedule in this state may generate instances.
func (s ScheduleState) CanFire() bool {
	return s == ScheduleActive
}

// RecurringSchedule is a charge or payment template. The scheduler copies the
// template transaction's lines into a new instance each time it fires, keyed
// by an idempotency key so duplicate cron triggers cannot double-post.
//
// NextRunDate is a cache owned by the scheduler; clients never set it.
type RecurringSchedule struct {
	ID                    string         `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID                 string         `gorm:"type:uuid;index;not null" json:"org_id"`
	TemplateTransactionID string         `gorm:"type:uuid;not null" json:"template_transaction_id"`
	Frequency             Frequency      `gorm:"size:20;not null" json:"frequency"`
	DayOfMonth            int            `gorm:"default:1" json:"day_of_month"`
	DayOfWeek             int            `gorm:"default:1" json:"day_of_week"` // ISO: Monday=1..Sunday=7
	RolloverPolicy        RolloverPolicy `gorm:"size:30;not null;default:last_day" json:"rollover_policy"`
	StartDate             time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate               *time.Time     `gorm:"type:date" json:"end_date,omitempty"`
	Status                ScheduleState  `gorm:"size:20;index;not null;default:active" json:"status"`
	NextRunDate           *time.Time     `gorm:"type:date;index" json:"next_run_date,omitempty"`
	LastGeneratedAt       *time.Time     `json:"last_generated_at,omitempty"`
	EndedAt               *time.Time     `json:"ended_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Ended reports whether the schedule's end date has passed relative to the
// given org-local calendar date.
func (s RecurringSchedule) Ended(today time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(today)
}

// OrgSettings carries the per-org configuration the core depends on: the
// IANA timezone the scheduler evaluates calendar dates in, default GL
// accounts for fee postings, and the returned-payment (NSF) policy.
type OrgSettings struct {
	OrgID                  string    `gorm:"type:uuid;primaryKey" json:"org_id"`
	Timezone               string    `gorm:"size:64;not null;default:America/New_York" json:"timezone"`
	ARLeaseGLAccountID     string    `gorm:"type:uuid" json:"ar_lease_gl_account_id"`
	LateFeeIncomeAccountID string    `gorm:"type:uuid" json:"late_fee_income_gl_account_id"`
	AutoCreateNSFFee       bool      `gorm:"not null;default:false" json:"auto_create_nsf_fee"`
	NSFFeeAmount           float64   `json:"nsf_fee_amount"`
	NSFFeeGLAccountID      string    `gorm:"type:uuid" json:"nsf_fee_gl_account_id"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}
