package repository

import (
	"context"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerFilter defines filters for listing ledger entries.
type LedgerFilter struct {
	BoxBarcode  string
	ItemBarcode string
	Operation   string
	OrderID     string
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}

// LedgerRepository appends to and reads the barcode ledger. It never
// updates or deletes entries.
type LedgerRepository interface {
	AppendTx(tx *gorm.DB, e *model.LedgerEntry) error

	// LatestForItemTx returns the most recent entry for the item, ordered by
	// occurred_at and then id. gorm.ErrRecordNotFound when there is none.
	LatestForItemTx(tx *gorm.DB, item string) (*model.LedgerEntry, error)

	History(ctx context.Context, item string) ([]model.LedgerEntry, error)
	List(ctx context.Context, filter LedgerFilter) ([]model.LedgerEntry, int64, error)

	// SumByOperationTx totals quantity per operation for a box.
	SumByOperationTx(tx *gorm.DB, box string) (map[model.Operation]int, error)

	// Current state, maintained next to the ledger.
	UpsertStateTx(tx *gorm.DB, s *model.ItemState) error
	FindStateTx(tx *gorm.DB, item string) (*model.ItemState, error)
}

type ledgerRepo struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) LedgerRepository { return &ledgerRepo{db: db} }

func (r *ledgerRepo) AppendTx(tx *gorm.DB, e *model.LedgerEntry) error {
	return pick(r.db, tx).Create(e).Error
}

func (r *ledgerRepo) LatestForItemTx(tx *gorm.DB, item string) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := pick(r.db, tx).
		Where("item_barcode = ?", item).
		Order("occurred_at DESC, id DESC").
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ledgerRepo) History(ctx context.Context, item string) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("item_barcode = ?", item).
		Order("occurred_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}

func (r *ledgerRepo) List(ctx context.Context, filter LedgerFilter) ([]model.LedgerEntry, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.LedgerEntry{})
	if filter.BoxBarcode != "" {
		q = q.Where("box_barcode = ?", filter.BoxBarcode)
	}
	if filter.ItemBarcode != "" {
		q = q.Where("item_barcode = ?", filter.ItemBarcode)
	}
	if filter.Operation != "" {
		q = q.Where("operation = ?", filter.Operation)
	}
	if filter.OrderID != "" {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	if filter.From != nil {
		q = q.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("occurred_at < ?", *filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := Page(filter.Page, filter.Limit)
	var entries []model.LedgerEntry
	err := q.Order("occurred_at DESC, id DESC").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}

func (r *ledgerRepo) SumByOperationTx(tx *gorm.DB, box string) (map[model.Operation]int, error) {
	var rows []struct {
		Operation model.Operation
		Total     int
	}
	err := pick(r.db, tx).Model(&model.LedgerEntry{}).
		Select("operation, COALESCE(SUM(quantity), 0) AS total").
		Where("box_barcode = ?", box).
		Group("operation").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sums := make(map[model.Operation]int, len(rows))
	for _, row := range rows {
		sums[row.Operation] = row.Total
	}
	return sums, nil
}

func (r *ledgerRepo) UpsertStateTx(tx *gorm.DB, s *model.ItemState) error {
	return pick(r.db, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_barcode"}},
		UpdateAll: true,
	}).Create(s).Error
}

func (r *ledgerRepo) FindStateTx(tx *gorm.DB, item string) (*model.ItemState, error) {
	var s model.ItemState
	if err := pick(r.db, tx).Where("item_barcode = ?", item).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
