package repository

import (
	"context"

	"github.com/PnGunchai/MAinventory-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ── Presence ──────────────────────────────────────────────────────────────────

// PresenceRepository manages the set of items physically on the shelf.
type PresenceRepository interface {
	FindTx(tx *gorm.DB, item string) (*model.Presence, error)
	// UpsertTx creates the record or overwrites a stale one for the same item.
	UpsertTx(tx *gorm.DB, p *model.Presence) error
	DeleteTx(tx *gorm.DB, item string) error
	CountByBoxTx(tx *gorm.DB, box string) (int64, error)
	ListByBox(ctx context.Context, box string) ([]model.Presence, error)
}

type presenceRepo struct{ db *gorm.DB }

func NewPresenceRepository(db *gorm.DB) PresenceRepository { return &presenceRepo{db: db} }

func (r *presenceRepo) FindTx(tx *gorm.DB, item string) (*model.Presence, error) {
	var p model.Presence
	if err := pick(r.db, tx).Where("item_barcode = ?", item).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *presenceRepo) UpsertTx(tx *gorm.DB, p *model.Presence) error {
	return pick(r.db, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_barcode"}},
		UpdateAll: true,
	}).Create(p).Error
}

func (r *presenceRepo) DeleteTx(tx *gorm.DB, item string) error {
	return pick(r.db, tx).Where("item_barcode = ?", item).Delete(&model.Presence{}).Error
}

func (r *presenceRepo) CountByBoxTx(tx *gorm.DB, box string) (int64, error) {
	var n int64
	err := pick(r.db, tx).Model(&model.Presence{}).
		Where("box_barcode = ?", box).
		Count(&n).Error
	return n, err
}

func (r *presenceRepo) ListByBox(ctx context.Context, box string) ([]model.Presence, error) {
	var items []model.Presence
	err := r.db.WithContext(ctx).
		Where("box_barcode = ?", box).
		Order("sequence_number ASC NULLS LAST, item_barcode ASC").
		Find(&items).Error
	return items, err
}

// ── Sequence assignments ──────────────────────────────────────────────────────

// SequenceRepository stores per-box sequence numbers. A box holds exactly one
// product, so queries key on the box alone and survive product renames.
type SequenceRepository interface {
	CreateTx(tx *gorm.DB, a *model.SequenceAssignment) error
	// HighestTx returns 0 when nothing has been assigned yet.
	HighestTx(tx *gorm.DB, box string) (int, error)
	FindByItemTx(tx *gorm.DB, item string) (*model.SequenceAssignment, error)
	ListByNumberTx(tx *gorm.DB, box string, n int) ([]model.SequenceAssignment, error)
	ListByBoxTx(tx *gorm.DB, box string) ([]model.SequenceAssignment, error)
	DeleteByItemTx(tx *gorm.DB, item string) error
}

type sequenceRepo struct{ db *gorm.DB }

func NewSequenceRepository(db *gorm.DB) SequenceRepository { return &sequenceRepo{db: db} }

func (r *sequenceRepo) CreateTx(tx *gorm.DB, a *model.SequenceAssignment) error {
	return pick(r.db, tx).Create(a).Error
}

func (r *sequenceRepo) HighestTx(tx *gorm.DB, box string) (int, error) {
	var highest int
	err := pick(r.db, tx).Model(&model.SequenceAssignment{}).
		Select("COALESCE(MAX(sequence_number), 0)").
		Where("box_barcode = ?", box).
		Scan(&highest).Error
	return highest, err
}

func (r *sequenceRepo) FindByItemTx(tx *gorm.DB, item string) (*model.SequenceAssignment, error) {
	var a model.SequenceAssignment
	err := pick(r.db, tx).
		Where("item_barcode = ?", item).
		Order("id DESC").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *sequenceRepo) ListByNumberTx(tx *gorm.DB, box string, n int) ([]model.SequenceAssignment, error) {
	var rows []model.SequenceAssignment
	err := pick(r.db, tx).
		Where("box_barcode = ? AND sequence_number = ?", box, n).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *sequenceRepo) ListByBoxTx(tx *gorm.DB, box string) ([]model.SequenceAssignment, error) {
	var rows []model.SequenceAssignment
	err := pick(r.db, tx).Where("box_barcode = ?", box).Order("sequence_number ASC, id ASC").Find(&rows).Error
	return rows, err
}

func (r *sequenceRepo) DeleteByItemTx(tx *gorm.DB, item string) error {
	return pick(r.db, tx).Where("item_barcode = ?", item).Delete(&model.SequenceAssignment{}).Error
}

// ── Aggregate stock ───────────────────────────────────────────────────────────

// AggregateRepository stores the denormalized quantity per box and product.
type AggregateRepository interface {
	FindTx(tx *gorm.DB, box, productName string) (*model.AggregateStock, error)
	SaveTx(tx *gorm.DB, a *model.AggregateStock) error
	RenameTx(tx *gorm.DB, box, oldName, newName string) error
	FindByBox(ctx context.Context, box string) ([]model.AggregateStock, error)
	List(ctx context.Context) ([]model.AggregateStock, error)
}

type aggregateRepo struct{ db *gorm.DB }

func NewAggregateRepository(db *gorm.DB) AggregateRepository { return &aggregateRepo{db: db} }

func (r *aggregateRepo) FindTx(tx *gorm.DB, box, productName string) (*model.AggregateStock, error) {
	var a model.AggregateStock
	err := pick(r.db, tx).
		Where("box_barcode = ? AND product_name = ?", box, productName).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *aggregateRepo) SaveTx(tx *gorm.DB, a *model.AggregateStock) error {
	return pick(r.db, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "box_barcode"}, {Name: "product_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "sequence_number", "last_updated"}),
	}).Create(a).Error
}

func (r *aggregateRepo) RenameTx(tx *gorm.DB, box, oldName, newName string) error {
	return pick(r.db, tx).Model(&model.AggregateStock{}).
		Where("box_barcode = ? AND product_name = ?", box, oldName).
		Update("product_name", newName).Error
}

func (r *aggregateRepo) FindByBox(ctx context.Context, box string) ([]model.AggregateStock, error) {
	var rows []model.AggregateStock
	err := r.db.WithContext(ctx).Where("box_barcode = ?", box).Find(&rows).Error
	return rows, err
}

func (r *aggregateRepo) List(ctx context.Context) ([]model.AggregateStock, error) {
	var rows []model.AggregateStock
	err := r.db.WithContext(ctx).Order("box_barcode ASC").Find(&rows).Error
	return rows, err
}
