// Package postgres implements every repository port on a relational store
// via gorm. One Store serves all ports; Atomic binds a derived Store to a
// single database transaction so the ledger's posting unit (header + lines +
// invariant checks) commits or rolls back as a whole.
package postgres

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rentfolio/ledger-core/internal/domain"
)

// Open connects to Postgres and migrates the core schema. TranslateError is
// required: the idempotency-key uniqueness constraint surfaces as
// gorm.ErrDuplicatedKey, which the store maps to the domain conflict type.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&domain.GLAccount{},
		&domain.Transaction{},
		&domain.TransactionLine{},
		&domain.Charge{},
		&domain.PaymentAllocation{},
		&domain.ReversalRecord{},
		&domain.RecurringSchedule{},
		&domain.Reconciliation{},
		&domain.Deposit{},
		&domain.DepositItem{},
		&domain.BackfillMarker{},
		&domain.OrgSettings{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
