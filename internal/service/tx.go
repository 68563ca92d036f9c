package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repos bundles every repository the stock engine writes through.
type Repos struct {
	Products   repository.ProductRepository
	Ledger     repository.LedgerRepository
	Presence   repository.PresenceRepository
	Sequences  repository.SequenceRepository
	Aggregates repository.AggregateRepository
	Loans      repository.LoanRepository
	Sales      repository.SaleRepository
	Breakages  repository.BreakageRepository
	Orders     repository.OrderRepository
}

// Clock returns the current time in the configured zone.
type Clock func() time.Time

// NewClock renders time.Now in loc. A nil loc means UTC.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// runTx executes fn inside a serializable GORM transaction when db is
// available, or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	err := db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return translateStoreErr(err)
}

// readDB returns a context-bound handle for reads outside a transaction.
func readDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if db == nil {
		return nil
	}
	return db.WithContext(ctx)
}

// Postgres codes that mean "another transaction won; retry the request".
var retryableCodes = map[string]string{
	"40001": "serialization failure",
	"40P01": "deadlock detected",
	"55P03": "lock not available",
	"23505": "unique violation",
}

// translateStoreErr turns storage-level write conflicts into ConcurrencyConflict.
// Domain errors pass through untouched.
func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierror.As(err); ok {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := retryableCodes[pgErr.Code]; ok {
			return apierror.Wrap(apierror.KindConcurrencyConflict, err, "concurrent update detected (%s); retry the request", reason)
		}
	}
	return err
}

// track records one engine call on the metrics registry. Use it deferred
// with the caller's named error: defer track(m, "add", time.Now(), &err).
func track(m *metrics.Metrics, op string, start time.Time, errp *error) {
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = string(apierror.KindOf(*errp))
	}
	m.RecordOperation(op, outcome, time.Since(start))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int { return &n }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalize(s string) string { return strings.TrimSpace(s) }

// joinNotes concatenates non-empty notes with "; ".
func joinNotes(parts ...string) *string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strPtr(strings.Join(kept, "; "))
}
