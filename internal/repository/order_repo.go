package repository

import (
	"github.com/PnGunchai/MAinventory-sub000/internal/model"

	"gorm.io/gorm"
)

// ── Destination records ───────────────────────────────────────────────────────

// LoanRepository stores loan lines.
type LoanRepository interface {
	CreateTx(tx *gorm.DB, l *model.Loan) error
	UpdateTx(tx *gorm.DB, l *model.Loan) error
	// FindOpenByItemTx returns the item's line with status lent.
	FindOpenByItemTx(tx *gorm.DB, item string) (*model.Loan, error)
	// FindOpenBulkTx returns the open bulk line for box under orderID.
	FindOpenBulkTx(tx *gorm.DB, box, orderID string) (*model.Loan, error)
	ListByOrderTx(tx *gorm.DB, orderID string) ([]model.Loan, error)
}

type loanRepo struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) LoanRepository { return &loanRepo{db: db} }

func (r *loanRepo) CreateTx(tx *gorm.DB, l *model.Loan) error {
	return pick(r.db, tx).Create(l).Error
}

func (r *loanRepo) UpdateTx(tx *gorm.DB, l *model.Loan) error {
	return pick(r.db, tx).Save(l).Error
}

func (r *loanRepo) FindOpenByItemTx(tx *gorm.DB, item string) (*model.Loan, error) {
	var l model.Loan
	err := pick(r.db, tx).
		Where("item_barcode = ? AND status = ?", item, model.LoanLent).
		Order("id DESC").
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *loanRepo) FindOpenBulkTx(tx *gorm.DB, box, orderID string) (*model.Loan, error) {
	var l model.Loan
	err := pick(r.db, tx).
		Where("box_barcode = ? AND order_id = ? AND item_barcode IS NULL AND status = ?", box, orderID, model.LoanLent).
		Order("id ASC").
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *loanRepo) ListByOrderTx(tx *gorm.DB, orderID string) ([]model.Loan, error) {
	var rows []model.Loan
	err := pick(r.db, tx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// SaleRepository stores sale records.
type SaleRepository interface {
	CreateTx(tx *gorm.DB, s *model.Sale) error
	UpdateTx(tx *gorm.DB, s *model.Sale) error
	DeleteTx(tx *gorm.DB, id int64) error
	FindByOrderItemTx(tx *gorm.DB, orderID, item string) (*model.Sale, error)
	FindByOrderBoxTx(tx *gorm.DB, orderID, box string) (*model.Sale, error)
	ListByOrderTx(tx *gorm.DB, orderID string) ([]model.Sale, error)
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) CreateTx(tx *gorm.DB, s *model.Sale) error {
	return pick(r.db, tx).Create(s).Error
}

func (r *saleRepo) UpdateTx(tx *gorm.DB, s *model.Sale) error {
	return pick(r.db, tx).Save(s).Error
}

func (r *saleRepo) DeleteTx(tx *gorm.DB, id int64) error {
	return pick(r.db, tx).Delete(&model.Sale{}, id).Error
}

func (r *saleRepo) FindByOrderItemTx(tx *gorm.DB, orderID, item string) (*model.Sale, error) {
	var s model.Sale
	err := pick(r.db, tx).Where("order_id = ? AND item_barcode = ?", orderID, item).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) FindByOrderBoxTx(tx *gorm.DB, orderID, box string) (*model.Sale, error) {
	var s model.Sale
	err := pick(r.db, tx).
		Where("order_id = ? AND box_barcode = ? AND item_barcode IS NULL", orderID, box).
		Order("id DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) ListByOrderTx(tx *gorm.DB, orderID string) ([]model.Sale, error) {
	var rows []model.Sale
	err := pick(r.db, tx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// BreakageRepository stores breakage records.
type BreakageRepository interface {
	CreateTx(tx *gorm.DB, b *model.Breakage) error
	ListByOrderTx(tx *gorm.DB, orderID string) ([]model.Breakage, error)
}

type breakageRepo struct{ db *gorm.DB }

func NewBreakageRepository(db *gorm.DB) BreakageRepository { return &breakageRepo{db: db} }

func (r *breakageRepo) CreateTx(tx *gorm.DB, b *model.Breakage) error {
	return pick(r.db, tx).Create(b).Error
}

func (r *breakageRepo) ListByOrderTx(tx *gorm.DB, orderID string) ([]model.Breakage, error) {
	var rows []model.Breakage
	err := pick(r.db, tx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// ── Order headers ─────────────────────────────────────────────────────────────

// OrderRepository stores the three order header flavors.
type OrderRepository interface {
	CreateLoanOrderTx(tx *gorm.DB, o *model.LoanOrder) error
	FindLoanOrderTx(tx *gorm.DB, orderID string) (*model.LoanOrder, error)
	UpdateLoanOrderTx(tx *gorm.DB, o *model.LoanOrder) error

	CreateSaleOrderTx(tx *gorm.DB, o *model.SaleOrder) error
	FindSaleOrderTx(tx *gorm.DB, orderID string) (*model.SaleOrder, error)
	UpdateSaleOrderTx(tx *gorm.DB, o *model.SaleOrder) error

	CreateBreakageOrderTx(tx *gorm.DB, o *model.BreakageOrder) error
	FindBreakageOrderTx(tx *gorm.DB, orderID string) (*model.BreakageOrder, error)
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepo{db: db} }

func (r *orderRepo) CreateLoanOrderTx(tx *gorm.DB, o *model.LoanOrder) error {
	return pick(r.db, tx).Create(o).Error
}

func (r *orderRepo) FindLoanOrderTx(tx *gorm.DB, orderID string) (*model.LoanOrder, error) {
	var o model.LoanOrder
	if err := pick(r.db, tx).Where("order_id = ?", orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) UpdateLoanOrderTx(tx *gorm.DB, o *model.LoanOrder) error {
	return pick(r.db, tx).Save(o).Error
}

func (r *orderRepo) CreateSaleOrderTx(tx *gorm.DB, o *model.SaleOrder) error {
	return pick(r.db, tx).Create(o).Error
}

func (r *orderRepo) FindSaleOrderTx(tx *gorm.DB, orderID string) (*model.SaleOrder, error) {
	var o model.SaleOrder
	if err := pick(r.db, tx).Where("order_id = ?", orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) UpdateSaleOrderTx(tx *gorm.DB, o *model.SaleOrder) error {
	return pick(r.db, tx).Save(o).Error
}

func (r *orderRepo) CreateBreakageOrderTx(tx *gorm.DB, o *model.BreakageOrder) error {
	return pick(r.db, tx).Create(o).Error
}

func (r *orderRepo) FindBreakageOrderTx(tx *gorm.DB, orderID string) (*model.BreakageOrder, error) {
	var o model.BreakageOrder
	if err := pick(r.db, tx).Where("order_id = ?", orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}
