package postgres

import (
	"context"
	"database/sql"

	"github.com/newrelic/go-agent/v3/newrelic"

	"carpool/internal/repository"
)

// TxManager implements repository.Transactor on a *sql.DB.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new TxManager.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx runs fn with transaction-scoped repositories. The transaction
// is rolled back when fn fails or panics.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	defer newrelic.FromContext(ctx).StartSegment("postgres.WithinTx").End()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	repos := repository.Repositories{
		Trips:        NewTripRepositoryWithTx(tx),
		Reservations: NewReservationRepositoryWithTx(tx),
		Payments:     NewPaymentRepositoryWithTx(tx),
	}

	if err = fn(ctx, repos); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

var _ repository.Transactor = (*TxManager)(nil)
