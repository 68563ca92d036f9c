package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"gorm.io/gorm"
)

// ── In-memory repositories ────────────────────────────────────────────────────
// memStore implements every repository the engine needs. DB() returns nil so
// runTx calls straight through; rows are copied in and out like a real store.

type memStore struct {
	mu sync.Mutex

	products   map[string]model.Product
	ledger     []model.LedgerEntry
	states     map[string]model.ItemState
	presence   map[string]model.Presence
	sequences  []model.SequenceAssignment
	aggregates map[[2]string]model.AggregateStock
	loans      []model.Loan
	sales      []model.Sale
	breakages  []model.Breakage
	loanOrders map[string]model.LoanOrder
	saleOrders map[string]model.SaleOrder
	brkOrders  map[string]model.BreakageOrder

	nextID int64
}

var (
	_ repository.ProductRepository   = (*memProducts)(nil)
	_ repository.LedgerRepository    = (*memLedger)(nil)
	_ repository.PresenceRepository  = (*memPresence)(nil)
	_ repository.SequenceRepository  = (*memSequences)(nil)
	_ repository.AggregateRepository = (*memAggregates)(nil)
	_ repository.LoanRepository      = (*memLoans)(nil)
	_ repository.SaleRepository      = (*memSales)(nil)
	_ repository.BreakageRepository  = (*memBreakages)(nil)
	_ repository.OrderRepository     = (*memOrders)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[string]model.Product),
		states:     make(map[string]model.ItemState),
		presence:   make(map[string]model.Presence),
		aggregates: make(map[[2]string]model.AggregateStock),
		loanOrders: make(map[string]model.LoanOrder),
		saleOrders: make(map[string]model.SaleOrder),
		brkOrders:  make(map[string]model.BreakageOrder),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) repos() Repos {
	return Repos{
		Products:   (*memProducts)(s),
		Ledger:     (*memLedger)(s),
		Presence:   (*memPresence)(s),
		Sequences:  (*memSequences)(s),
		Aggregates: (*memAggregates)(s),
		Loans:      (*memLoans)(s),
		Sales:      (*memSales)(s),
		Breakages:  (*memBreakages)(s),
		Orders:     (*memOrders)(s),
	}
}

func notFound() error { return gorm.ErrRecordNotFound }

func eq(p *string, v string) bool { return p != nil && *p == v }

// ── Products ──────────────────────────────────────────────────────────────────

type memProducts memStore

func (r *memProducts) DB() *gorm.DB { return nil }

func (r *memProducts) Create(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.BoxBarcode] = *p
	return nil
}

func (r *memProducts) FindByBox(_ context.Context, box string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[box]
	if !ok {
		return nil, notFound()
	}
	return &p, nil
}

func (r *memProducts) List(ctx context.Context, filter repository.ProductFilter) ([]model.Product, int64, error) {
	all, _ := r.ListAll(ctx)
	var out []model.Product
	for _, p := range all {
		if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.SerialCount != nil && p.SerialCount != *filter.SerialCount {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (r *memProducts) ListAll(_ context.Context) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoxBarcode < out[j].BoxBarcode })
	return out, nil
}

func (r *memProducts) UpdateTx(_ *gorm.DB, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.BoxBarcode] = *p
	return nil
}

func (r *memProducts) LockTx(_ *gorm.DB, box string) (*model.Product, error) {
	return r.FindByBox(context.Background(), box)
}

// ── Ledger ────────────────────────────────────────────────────────────────────

type memLedger memStore

func (r *memLedger) AppendTx(_ *gorm.DB, e *model.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = (*memStore)(r).id()
	r.ledger = append(r.ledger, *e)
	return nil
}

func (r *memLedger) LatestForItemTx(_ *gorm.DB, item string) (*model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.LedgerEntry
	for i := range r.ledger {
		e := r.ledger[i]
		if !eq(e.ItemBarcode, item) {
			continue
		}
		if best == nil || e.OccurredAt.After(best.OccurredAt) ||
			(e.OccurredAt.Equal(best.OccurredAt) && e.ID > best.ID) {
			best = &e
		}
	}
	if best == nil {
		return nil, notFound()
	}
	return best, nil
}

func (r *memLedger) History(_ context.Context, item string) ([]model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range r.ledger {
		if eq(e.ItemBarcode, item) {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *memLedger) List(_ context.Context, f repository.LedgerFilter) ([]model.LedgerEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range r.ledger {
		switch {
		case f.BoxBarcode != "" && e.BoxBarcode != f.BoxBarcode,
			f.ItemBarcode != "" && !eq(e.ItemBarcode, f.ItemBarcode),
			f.Operation != "" && string(e.Operation) != f.Operation,
			f.OrderID != "" && !eq(e.OrderID, f.OrderID),
			f.From != nil && e.OccurredAt.Before(*f.From),
			f.To != nil && !e.OccurredAt.Before(*f.To):
			continue
		}
		out = append(out, e)
	}
	sortNewestFirst(out)
	total := int64(len(out))
	offset, limit := repository.Page(f.Page, f.Limit)
	if offset >= len(out) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func sortNewestFirst(es []model.LedgerEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].OccurredAt.Equal(es[j].OccurredAt) {
			return es[i].OccurredAt.After(es[j].OccurredAt)
		}
		return es[i].ID > es[j].ID
	})
}

func (r *memLedger) SumByOperationTx(_ *gorm.DB, box string) (map[model.Operation]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := make(map[model.Operation]int)
	for _, e := range r.ledger {
		if e.BoxBarcode == box {
			sums[e.Operation] += e.Quantity
		}
	}
	return sums, nil
}

func (r *memLedger) UpsertStateTx(_ *gorm.DB, s *model.ItemState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[s.ItemBarcode] = *s
	return nil
}

func (r *memLedger) FindStateTx(_ *gorm.DB, item string) (*model.ItemState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[item]
	if !ok {
		return nil, notFound()
	}
	return &s, nil
}

// ── Presence ──────────────────────────────────────────────────────────────────

type memPresence memStore

func (r *memPresence) FindTx(_ *gorm.DB, item string) (*model.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presence[item]
	if !ok {
		return nil, notFound()
	}
	return &p, nil
}

func (r *memPresence) UpsertTx(_ *gorm.DB, p *model.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence[p.ItemBarcode] = *p
	return nil
}

func (r *memPresence) DeleteTx(_ *gorm.DB, item string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presence, item)
	return nil
}

func (r *memPresence) CountByBoxTx(_ *gorm.DB, box string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.presence {
		if p.BoxBarcode == box {
			n++
		}
	}
	return n, nil
}

func (r *memPresence) ListByBox(_ context.Context, box string) ([]model.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Presence
	for _, p := range r.presence {
		if p.BoxBarcode == box {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemBarcode < out[j].ItemBarcode })
	return out, nil
}

// ── Sequences ─────────────────────────────────────────────────────────────────

type memSequences memStore

func (r *memSequences) CreateTx(_ *gorm.DB, a *model.SequenceAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = (*memStore)(r).id()
	r.sequences = append(r.sequences, *a)
	return nil
}

func (r *memSequences) HighestTx(_ *gorm.DB, box string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	highest := 0
	for _, a := range r.sequences {
		if a.BoxBarcode == box && a.SequenceNumber > highest {
			highest = a.SequenceNumber
		}
	}
	return highest, nil
}

func (r *memSequences) FindByItemTx(_ *gorm.DB, item string) (*model.SequenceAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sequences) - 1; i >= 0; i-- {
		if eq(r.sequences[i].ItemBarcode, item) {
			a := r.sequences[i]
			return &a, nil
		}
	}
	return nil, notFound()
}

func (r *memSequences) ListByNumberTx(_ *gorm.DB, box string, n int) ([]model.SequenceAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SequenceAssignment
	for _, a := range r.sequences {
		if a.BoxBarcode == box && a.SequenceNumber == n {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memSequences) ListByBoxTx(_ *gorm.DB, box string) ([]model.SequenceAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SequenceAssignment
	for _, a := range r.sequences {
		if a.BoxBarcode == box {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (r *memSequences) DeleteByItemTx(_ *gorm.DB, item string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.sequences[:0]
	for _, a := range r.sequences {
		if !eq(a.ItemBarcode, item) {
			kept = append(kept, a)
		}
	}
	r.sequences = kept
	return nil
}

// ── Aggregates ────────────────────────────────────────────────────────────────

type memAggregates memStore

func (r *memAggregates) FindTx(_ *gorm.DB, box, productName string) (*model.AggregateStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.aggregates[[2]string{box, productName}]
	if !ok {
		return nil, notFound()
	}
	return &a, nil
}

func (r *memAggregates) SaveTx(_ *gorm.DB, a *model.AggregateStock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregates[[2]string{a.BoxBarcode, a.ProductName}] = *a
	return nil
}

func (r *memAggregates) RenameTx(_ *gorm.DB, box, oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{box, oldName}
	if a, ok := r.aggregates[key]; ok {
		delete(r.aggregates, key)
		a.ProductName = newName
		r.aggregates[[2]string{box, newName}] = a
	}
	return nil
}

func (r *memAggregates) FindByBox(_ context.Context, box string) ([]model.AggregateStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AggregateStock
	for k, a := range r.aggregates {
		if k[0] == box {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAggregates) List(_ context.Context) ([]model.AggregateStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AggregateStock, 0, len(r.aggregates))
	for _, a := range r.aggregates {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoxBarcode < out[j].BoxBarcode })
	return out, nil
}

// ── Loans, sales, breakages ───────────────────────────────────────────────────

type memLoans memStore

func (r *memLoans) CreateTx(_ *gorm.DB, l *model.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = (*memStore)(r).id()
	r.loans = append(r.loans, *l)
	return nil
}

func (r *memLoans) UpdateTx(_ *gorm.DB, l *model.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.loans {
		if r.loans[i].ID == l.ID {
			r.loans[i] = *l
			return nil
		}
	}
	return notFound()
}

func (r *memLoans) FindOpenByItemTx(_ *gorm.DB, item string) (*model.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.loans) - 1; i >= 0; i-- {
		l := r.loans[i]
		if eq(l.ItemBarcode, item) && l.Status == model.LoanLent {
			return &l, nil
		}
	}
	return nil, notFound()
}

func (r *memLoans) FindOpenBulkTx(_ *gorm.DB, box, orderID string) (*model.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loans {
		if l.BoxBarcode == box && l.OrderID == orderID && l.ItemBarcode == nil && l.Status == model.LoanLent {
			return &l, nil
		}
	}
	return nil, notFound()
}

func (r *memLoans) ListByOrderTx(_ *gorm.DB, orderID string) ([]model.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Loan
	for _, l := range r.loans {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

type memSales memStore

func (r *memSales) CreateTx(_ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = (*memStore)(r).id()
	r.sales = append(r.sales, *s)
	return nil
}

func (r *memSales) UpdateTx(_ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sales {
		if r.sales[i].ID == s.ID {
			r.sales[i] = *s
			return nil
		}
	}
	return notFound()
}

func (r *memSales) DeleteTx(_ *gorm.DB, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sales {
		if r.sales[i].ID == id {
			r.sales = append(r.sales[:i], r.sales[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memSales) FindByOrderItemTx(_ *gorm.DB, orderID, item string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sales {
		if s.OrderID == orderID && eq(s.ItemBarcode, item) {
			return &s, nil
		}
	}
	return nil, notFound()
}

func (r *memSales) FindByOrderBoxTx(_ *gorm.DB, orderID, box string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sales) - 1; i >= 0; i-- {
		s := r.sales[i]
		if s.OrderID == orderID && s.BoxBarcode == box && s.ItemBarcode == nil {
			return &s, nil
		}
	}
	return nil, notFound()
}

func (r *memSales) ListByOrderTx(_ *gorm.DB, orderID string) ([]model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Sale
	for _, s := range r.sales {
		if s.OrderID == orderID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memBreakages memStore

func (r *memBreakages) CreateTx(_ *gorm.DB, b *model.Breakage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = (*memStore)(r).id()
	r.breakages = append(r.breakages, *b)
	return nil
}

func (r *memBreakages) ListByOrderTx(_ *gorm.DB, orderID string) ([]model.Breakage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Breakage
	for _, b := range r.breakages {
		if b.OrderID == orderID {
			out = append(out, b)
		}
	}
	return out, nil
}

// ── Order headers ─────────────────────────────────────────────────────────────

type memOrders memStore

func (r *memOrders) CreateLoanOrderTx(_ *gorm.DB, o *model.LoanOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loanOrders[o.OrderID] = *o
	return nil
}

func (r *memOrders) FindLoanOrderTx(_ *gorm.DB, orderID string) (*model.LoanOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.loanOrders[orderID]
	if !ok {
		return nil, notFound()
	}
	return &o, nil
}

func (r *memOrders) UpdateLoanOrderTx(_ *gorm.DB, o *model.LoanOrder) error {
	return r.CreateLoanOrderTx(nil, o)
}

func (r *memOrders) CreateSaleOrderTx(_ *gorm.DB, o *model.SaleOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saleOrders[o.OrderID] = *o
	return nil
}

func (r *memOrders) FindSaleOrderTx(_ *gorm.DB, orderID string) (*model.SaleOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.saleOrders[orderID]
	if !ok {
		return nil, notFound()
	}
	o.EditHistory = append([]model.EditEntry(nil), o.EditHistory...)
	return &o, nil
}

func (r *memOrders) UpdateSaleOrderTx(_ *gorm.DB, o *model.SaleOrder) error {
	return r.CreateSaleOrderTx(nil, o)
}

func (r *memOrders) CreateBreakageOrderTx(_ *gorm.DB, o *model.BreakageOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brkOrders[o.OrderID] = *o
	return nil
}

func (r *memOrders) FindBreakageOrderTx(_ *gorm.DB, orderID string) (*model.BreakageOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.brkOrders[orderID]
	if !ok {
		return nil, notFound()
	}
	return &o, nil
}

// ── Fixture ───────────────────────────────────────────────────────────────────

// tickingClock advances one second per call so ledger order is deterministic.
func tickingClock() Clock {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	store    *memStore
	engine   *Engine
	catalog  CatalogService
	stock    StockService
	ledger   LedgerService
	loans    LoanOrderService
	sales    SaleOrderService
	breakage BreakageOrderService
}

func newFixture() *fixture {
	st := newMemStore()
	e := NewEngine(st.repos(), NewClaimGuard(nil, 0, nil), tickingClock(), nil)
	return &fixture{
		store:    st,
		engine:   e,
		catalog:  NewCatalogService(e, nil),
		stock:    NewStockService(e),
		ledger:   NewLedgerService(e),
		loans:    NewLoanOrderService(e),
		sales:    NewSaleOrderService(e),
		breakage: NewBreakageOrderService(e),
	}
}
