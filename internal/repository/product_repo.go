package repository

import (
	"context"

	"github.com/PnGunchai/MAinventory-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Name        string
	SerialCount *int
	Page        int
	Limit       int
}

// ProductRepository is the catalog data access contract. Services depend on
// this interface so unit tests can run against in-memory stubs.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	FindByBox(ctx context.Context, box string) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error)
	ListAll(ctx context.Context) ([]model.Product, error)
	UpdateTx(tx *gorm.DB, p *model.Product) error

	// LockTx takes a row-level write lock on the catalog row. Every stock
	// mutation for the box is serialized behind it.
	LockTx(tx *gorm.DB, box string) (*model.Product, error)

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) DB() *gorm.DB { return r.db }

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepo) FindByBox(ctx context.Context, box string) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("box_barcode = ?", box).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{})
	if filter.Name != "" {
		q = q.Where("name ILIKE ?", "%"+filter.Name+"%")
	}
	if filter.SerialCount != nil {
		q = q.Where("serial_count = ?", *filter.SerialCount)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := Page(filter.Page, filter.Limit)
	var products []model.Product
	err := q.Order("box_barcode ASC").Offset(offset).Limit(limit).Find(&products).Error
	return products, total, err
}

func (r *productRepo) ListAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Order("box_barcode ASC").Find(&products).Error
	return products, err
}

func (r *productRepo) UpdateTx(tx *gorm.DB, p *model.Product) error {
	return pick(r.db, tx).Save(p).Error
}

func (r *productRepo) LockTx(tx *gorm.DB, box string) (*model.Product, error) {
	var p model.Product
	err := pick(r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("box_barcode = ?", box).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
