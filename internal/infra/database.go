package infra

import (
	"fmt"

	"github.com/PnGunchai/MAinventory-sub000/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the GORM connection (pgx driver), sizes the pool and
// migrates the schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates / updates every table, then applies the patches
// AutoMigrate cannot express. Safe to run repeatedly.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Product{},
		&model.LedgerEntry{},
		&model.ItemState{},
		&model.Presence{},
		&model.SequenceAssignment{},
		&model.AggregateStock{},
		&model.Loan{},
		&model.Sale{},
		&model.Breakage{},
		&model.LoanOrder{},
		&model.SaleOrder{},
		&model.BreakageOrder{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL: check constraints backing the
// engine invariants and the partial index used by open-loan lookups.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"products serial_count range", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_serial_count') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_serial_count CHECK (serial_count IN (0, 1, 2));
  END IF;
END $$`},
		{"aggregate_stock non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_aggregate_stock_quantity') THEN
    ALTER TABLE aggregate_stock ADD CONSTRAINT chk_aggregate_stock_quantity CHECK (quantity >= 0);
  END IF;
END $$`},
		{"ledger quantity non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_ledger_entries_quantity') THEN
    ALTER TABLE ledger_entries ADD CONSTRAINT chk_ledger_entries_quantity CHECK (quantity >= 0);
  END IF;
END $$`},
		{"open loans partial index",
			`CREATE INDEX IF NOT EXISTS idx_loans_open ON loans (box_barcode, order_id) WHERE status = 'lent'`},
		{"one open loan per item",
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_loans_open_item ON loans (item_barcode) WHERE status = 'lent' AND item_barcode IS NOT NULL`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
