package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/port"
)

// Store implements port.Store on a gorm database handle. It is safe for
// concurrent use; per-request state lives only in the transaction handles
// created by Atomic.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore wraps a connected database handle.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

var _ port.Store = (*Store)(nil)

// Atomic runs fn against a Store bound to one database transaction. Any
// error from fn rolls back everything fn wrote, including ledger headers
// whose lines failed the balance checks.
func (s *Store) Atomic(ctx context.Context, fn func(port.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

// notFound converts gorm's sentinel into the typed domain error.
func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return err
}
