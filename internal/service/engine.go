package service

import (
	"fmt"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Engine owns the transactional building blocks shared by the stock service
// and the order orchestrators. Every *Tx method expects the product row to be
// locked by the caller's transaction.
type Engine struct {
	repos   Repos
	db      *gorm.DB
	guard   *ClaimGuard
	avail   *Availability
	seq     *SequenceRegistry
	now     Clock
	metrics *metrics.Metrics
}

// NewEngine wires the engine. db nil runs without transactions (unit tests).
func NewEngine(repos Repos, guard *ClaimGuard, now Clock, m *metrics.Metrics) *Engine {
	if now == nil {
		now = NewClock(nil)
	}
	avail := NewAvailability(repos.Ledger, repos.Presence, repos.Sequences)
	return &Engine{
		repos:   repos,
		db:      repos.Products.DB(),
		guard:   guard,
		avail:   avail,
		seq:     NewSequenceRegistry(repos.Sequences, avail, now),
		now:     now,
		metrics: m,
	}
}

// lockProductTx takes the catalog row lock for box.
func (e *Engine) lockProductTx(tx *gorm.DB, box string) (*model.Product, error) {
	p, err := e.repos.Products.LockTx(tx, box)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("product %s not found", box).WithBox(box)
	}
	return p, err
}

// ── Ledger + current state ────────────────────────────────────────────────────

type entry struct {
	item    string
	op      model.Operation
	qty     int
	orderID string
	seq     *int
	note    *string
}

// recordTx appends a ledger entry and, for items, moves the explicit
// current state in the same transaction.
func (e *Engine) recordTx(tx *gorm.DB, p *model.Product, en entry) (*model.LedgerEntry, error) {
	le := &model.LedgerEntry{
		BoxBarcode:     p.BoxBarcode,
		ProductName:    p.Name,
		ItemBarcode:    strPtr(en.item),
		Operation:      en.op,
		Quantity:       en.qty,
		OccurredAt:     e.now(),
		OrderID:        strPtr(en.orderID),
		SequenceNumber: en.seq,
		Note:           en.note,
	}
	if err := e.repos.Ledger.AppendTx(tx, le); err != nil {
		return nil, err
	}
	if en.item != "" {
		st := &model.ItemState{
			ItemBarcode:   en.item,
			BoxBarcode:    p.BoxBarcode,
			State:         model.StateAfter(en.op),
			LastOperation: en.op,
			LastEntryID:   le.ID,
			UpdatedAt:     le.OccurredAt,
		}
		if err := e.repos.Ledger.UpsertStateTx(tx, st); err != nil {
			return nil, err
		}
	}
	return le, nil
}

// ── Presence ──────────────────────────────────────────────────────────────────

func (e *Engine) putOnShelfTx(tx *gorm.DB, p *model.Product, item string, seq *int) error {
	return e.repos.Presence.UpsertTx(tx, &model.Presence{
		ItemBarcode:    item,
		BoxBarcode:     p.BoxBarcode,
		ProductName:    p.Name,
		SequenceNumber: seq,
		AddedAt:        e.now(),
	})
}

// findOnShelfTx returns the presence row or ResourceNotFound.
func (e *Engine) findOnShelfTx(tx *gorm.DB, p *model.Product, item string) (*model.Presence, error) {
	pres, err := e.repos.Presence.FindTx(tx, item)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("item %s is not in stock", item).WithBarcode(item).WithBox(p.BoxBarcode)
	}
	if err != nil {
		return nil, err
	}
	if pres.BoxBarcode != p.BoxBarcode {
		return nil, apierror.InvalidInput("item %s belongs to box %s, not %s", item, pres.BoxBarcode, p.BoxBarcode).
			WithBarcode(item).WithBox(p.BoxBarcode)
	}
	return pres, nil
}

func (e *Engine) isOnShelfTx(tx *gorm.DB, item string) (bool, error) {
	return e.avail.isPresentTx(tx, item)
}

// ── Aggregate stock ───────────────────────────────────────────────────────────

func (e *Engine) loadAggregateTx(tx *gorm.DB, p *model.Product) (*model.AggregateStock, error) {
	agg, err := e.repos.Aggregates.FindTx(tx, p.BoxBarcode, p.Name)
	if repository.IsNotFound(err) {
		return &model.AggregateStock{BoxBarcode: p.BoxBarcode, ProductName: p.Name}, nil
	}
	return agg, err
}

// syncTx recomputes the aggregate row. Serialized products count presence
// (pairs count once, rounding up); bulk rows keep their quantity.
func (e *Engine) syncTx(tx *gorm.DB, p *model.Product) (*model.AggregateStock, error) {
	agg, err := e.loadAggregateTx(tx, p)
	if err != nil {
		return nil, err
	}
	if p.IsSerialized() {
		n, err := e.repos.Presence.CountByBoxTx(tx, p.BoxBarcode)
		if err != nil {
			return nil, err
		}
		if p.IsPaired() {
			n = (n + 1) / 2
		}
		agg.Quantity = int(n)
	}
	highest, err := e.repos.Sequences.HighestTx(tx, p.BoxBarcode)
	if err != nil {
		return nil, err
	}
	agg.SequenceNumber = highest
	agg.LastUpdated = e.now()
	if err := e.repos.Aggregates.SaveTx(tx, agg); err != nil {
		return nil, err
	}
	return agg, nil
}

// adjustBulkTx applies delta to a bulk aggregate row. It never lets the
// quantity go negative.
func (e *Engine) adjustBulkTx(tx *gorm.DB, p *model.Product, delta int) (*model.AggregateStock, error) {
	agg, err := e.loadAggregateTx(tx, p)
	if err != nil {
		return nil, err
	}
	if agg.Quantity+delta < 0 {
		return nil, apierror.InvalidInput("not enough stock for box %s: have %d, need %d",
			p.BoxBarcode, agg.Quantity, -delta).WithBox(p.BoxBarcode)
	}
	agg.Quantity += delta
	agg.LastUpdated = e.now()
	if err := e.repos.Aggregates.SaveTx(tx, agg); err != nil {
		return nil, err
	}
	return agg, nil
}

func snapshot(a *model.AggregateStock) *dto.StockSnapshot {
	if a == nil {
		return nil
	}
	return &dto.StockSnapshot{
		BoxBarcode:     a.BoxBarcode,
		ProductName:    a.ProductName,
		Quantity:       a.Quantity,
		SequenceNumber: a.SequenceNumber,
		LastUpdated:    a.LastUpdated,
	}
}

// ── Order headers ─────────────────────────────────────────────────────────────

// actor is who performed a movement and for whom.
type actor struct {
	employeeID   string
	counterparty string
}

func (e *Engine) ensureSaleOrderTx(tx *gorm.DB, orderID string, a actor, note *string) (*model.SaleOrder, error) {
	o, err := e.repos.Orders.FindSaleOrderTx(tx, orderID)
	if err == nil {
		return o, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	o = &model.SaleOrder{
		OrderID:      orderID,
		EmployeeID:   a.employeeID,
		Counterparty: a.counterparty,
		Note:         note,
		CreatedAt:    e.now(),
	}
	return o, e.repos.Orders.CreateSaleOrderTx(tx, o)
}

func (e *Engine) ensureLoanOrderTx(tx *gorm.DB, orderID string, a actor, note *string, splitPair bool) (*model.LoanOrder, error) {
	o, err := e.repos.Orders.FindLoanOrderTx(tx, orderID)
	if err == nil {
		return o, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	now := e.now()
	o = &model.LoanOrder{
		OrderID:      orderID,
		EmployeeID:   a.employeeID,
		Counterparty: a.counterparty,
		Note:         note,
		Status:       model.OrderActive,
		SplitPair:    splitPair,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return o, e.repos.Orders.CreateLoanOrderTx(tx, o)
}

func (e *Engine) ensureBreakageOrderTx(tx *gorm.DB, orderID string, a actor, note *string) (*model.BreakageOrder, error) {
	o, err := e.repos.Orders.FindBreakageOrderTx(tx, orderID)
	if err == nil {
		return o, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	o = &model.BreakageOrder{OrderID: orderID, EmployeeID: a.employeeID, Note: note, CreatedAt: e.now()}
	return o, e.repos.Orders.CreateBreakageOrderTx(tx, o)
}

// recomputeOrderTx derives a loan order's status from its lines: completed
// iff no line is still lent and terminal quantities cover the total.
func (e *Engine) recomputeOrderTx(tx *gorm.DB, orderID string) (*model.LoanOrder, error) {
	o, err := e.repos.Orders.FindLoanOrderTx(tx, orderID)
	if repository.IsNotFound(err) {
		log.Error().Str("order_id", orderID).Msg("loan lines reference a missing order header")
		return nil, apierror.Inconsistent("loan order %s has lines but no header", orderID).WithOrder(orderID)
	}
	if err != nil {
		return nil, err
	}
	lines, err := e.repos.Loans.ListByOrderTx(tx, orderID)
	if err != nil {
		return nil, err
	}

	total, terminal, open := 0, 0, false
	for _, l := range lines {
		total += l.Quantity
		if l.Status.Terminal() {
			terminal += l.Quantity
		} else {
			open = true
		}
	}
	status := model.OrderActive
	if len(lines) > 0 && !open && terminal >= total {
		status = model.OrderCompleted
	}
	if o.Status != status {
		log.Info().Str("order_id", orderID).Str("from", string(o.Status)).Str("to", string(status)).Msg("loan order status changed")
		o.Status = status
		o.UpdatedAt = e.now()
		if err := e.repos.Orders.UpdateLoanOrderTx(tx, o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func describeLoan(l *model.Loan) string {
	if l.ItemBarcode != nil {
		return fmt.Sprintf("item %s", *l.ItemBarcode)
	}
	return fmt.Sprintf("box %s x%d", l.BoxBarcode, l.Quantity)
}
