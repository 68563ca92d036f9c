package service

import (
	"context"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// StockService exposes every movement of the stock engine.
type StockService interface {
	AddStock(ctx context.Context, req dto.AddStockRequest) (*dto.StockSnapshot, error)
	AddStockBulk(ctx context.Context, req dto.BulkAddRequest) (*dto.StockSnapshot, error)
	RemoveStock(ctx context.Context, req dto.RemoveStockRequest) (*dto.StockSnapshot, error)
	RemoveStockBulk(ctx context.Context, req dto.BulkRemoveRequest) (*dto.StockSnapshot, error)
	MoveStock(ctx context.Context, req dto.MoveStockRequest) (*dto.StockSnapshot, error)
	ReturnLentItem(ctx context.Context, req dto.ReturnLentRequest) (*dto.StockSnapshot, error)
	ReturnSoldItem(ctx context.Context, req dto.ReturnSoldRequest) (*dto.StockSnapshot, error)
	Recombine(ctx context.Context, req dto.RecombineRequest) (*dto.StockSnapshot, error)

	SyncAggregate(ctx context.Context, box string) (*dto.StockSnapshot, error)
	ReconcileAll(ctx context.Context) (*dto.ReconcileReport, error)

	GetStock(ctx context.Context, box string) (*dto.StockSnapshot, error)
	ListPresence(ctx context.Context, box string) ([]dto.PresenceResponse, error)
	IsAvailable(ctx context.Context, item string) (bool, error)
}

type stockService struct {
	e *Engine
}

func NewStockService(e *Engine) StockService {
	return &stockService{e: e}
}

// ── Add ───────────────────────────────────────────────────────────────────────

func (s *stockService) AddStock(ctx context.Context, req dto.AddStockRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "add", time.Now(), &err)
	box, item := normalize(req.BoxBarcode), normalize(req.ItemBarcode)
	qty := req.Quantity
	if item != "" && qty == 0 {
		qty = 1
	}
	if qty <= 0 {
		return nil, apierror.InvalidInput("quantity must be positive").WithBox(box)
	}
	if item != "" && qty != 1 {
		return nil, apierror.InvalidInput("serialized items are added one at a time").WithBarcode(item)
	}

	release := func() {}
	if item != "" {
		release, err = s.e.guard.ClaimAvailable(ctx, []string{item}, s.addableCheck(ctx, box))
		if err != nil {
			return nil, err
		}
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		if item == "" {
			agg, err = s.e.addQuantityTx(tx, p, qty, strPtr(req.Note), req.OrderID)
			return err
		}
		if _, err := s.e.addItemTx(tx, p, item, addOptions{}, strPtr(req.Note), req.OrderID); err != nil {
			return err
		}
		agg, err = s.e.syncTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("box", box).Str("item", item).Int("qty", qty).Msg("stock added")
	return snapshot(agg), nil
}

// AddStockBulk checks every barcode first, claims them all, then applies the
// whole batch in one transaction so any failure leaves nothing behind.
func (s *stockService) AddStockBulk(ctx context.Context, req dto.BulkAddRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "add_bulk", time.Now(), &err)
	box := normalize(req.BoxBarcode)
	if len(req.ItemBarcodes) == 0 {
		return s.AddStock(ctx, dto.AddStockRequest{BoxBarcode: box, Quantity: req.Quantity, Note: req.Note})
	}

	items := make([]string, 0, len(req.ItemBarcodes))
	seen := make(map[string]struct{}, len(req.ItemBarcodes))
	for _, raw := range req.ItemBarcodes {
		b := normalize(raw)
		if b == "" {
			return nil, apierror.InvalidInput("item barcodes must not be empty").WithBox(box)
		}
		if _, dup := seen[b]; dup {
			return nil, apierror.InvalidInput("barcode %s appears more than once", b).WithBarcode(b)
		}
		seen[b] = struct{}{}
		items = append(items, b)
	}

	release, err := s.e.guard.ClaimAvailable(ctx, items, s.addableCheck(ctx, box))
	if err != nil {
		return nil, err
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		if !p.IsSerialized() {
			return apierror.InvalidInput("product %s is not serialized; add a quantity instead", box).WithBox(box)
		}
		if p.IsPaired() {
			if err := s.e.addPairsTx(tx, p, items, strPtr(req.Note)); err != nil {
				return err
			}
		} else {
			for _, item := range items {
				if _, err := s.e.addItemTx(tx, p, item, addOptions{}, strPtr(req.Note), ""); err != nil {
					return err
				}
			}
		}
		agg, err = s.e.syncTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("box", box).Int("items", len(items)).Msg("bulk stock added")
	return snapshot(agg), nil
}

func (s *stockService) addableCheck(ctx context.Context, box string) CheckFunc {
	return func(b string) (bool, error) {
		return s.e.avail.addableTx(readDB(ctx, s.e.db), box, b)
	}
}

// ── Remove ────────────────────────────────────────────────────────────────────

func (s *stockService) RemoveStock(ctx context.Context, req dto.RemoveStockRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "remove", time.Now(), &err)
	box, item := normalize(req.BoxBarcode), normalize(req.ItemBarcode)
	if item != "" {
		return s.RemoveStockBulk(ctx, dto.BulkRemoveRequest{BoxBarcode: box, ItemBarcodes: []string{item}, Note: req.Note})
	}

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		if p.IsSerialized() {
			return apierror.InvalidInput("item barcode is required for serialized product %s", box).WithBox(box)
		}
		agg, err = s.e.removeQuantityTx(tx, p, req.Quantity, strPtr(req.Note))
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot(agg), nil
}

func (s *stockService) RemoveStockBulk(ctx context.Context, req dto.BulkRemoveRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "remove_bulk", time.Now(), &err)
	box := normalize(req.BoxBarcode)
	items := dedupe(req.ItemBarcodes)
	if len(items) == 0 {
		return nil, apierror.InvalidInput("at least one item barcode is required").WithBox(box)
	}
	release, err := s.e.guard.Claim(ctx, items...)
	if err != nil {
		return nil, err
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		if !p.IsSerialized() {
			return apierror.InvalidInput("product %s is not serialized; remove a quantity instead", box).WithBox(box)
		}
		for _, item := range items {
			if err := s.e.removeItemTx(tx, p, item, strPtr(req.Note)); err != nil {
				return err
			}
		}
		agg, err = s.e.syncTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot(agg), nil
}

// ── Move ──────────────────────────────────────────────────────────────────────

func (s *stockService) MoveStock(ctx context.Context, req dto.MoveStockRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "move_"+req.Destination.String(), time.Now(), &err)
	if !req.Destination.Valid() {
		return nil, apierror.InvalidInput("destination must be one of sales, lent, broken")
	}
	req.BoxBarcode, req.ItemBarcode = normalize(req.BoxBarcode), normalize(req.ItemBarcode)
	req.OrderID = normalize(req.OrderID)

	p, err := s.findProduct(ctx, req.BoxBarcode)
	if err != nil {
		return nil, err
	}
	release := func() {}
	if req.ItemBarcode != "" {
		if release, err = s.e.claimWithSiblings(ctx, p, []string{req.ItemBarcode}, req.SplitPair); err != nil {
			return nil, err
		}
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, req.BoxBarcode)
		if err != nil {
			return err
		}
		if err := s.e.moveTx(tx, p, req); err != nil {
			return err
		}
		agg, err = s.e.loadAggregateTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("box", req.BoxBarcode).Str("item", req.ItemBarcode).
		Str("destination", req.Destination.String()).Str("order_id", req.OrderID).Msg("stock moved")
	return snapshot(agg), nil
}

// ── Returns ───────────────────────────────────────────────────────────────────

func (s *stockService) ReturnLentItem(ctx context.Context, req dto.ReturnLentRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "return_lent", time.Now(), &err)
	req.BoxBarcode, req.ItemBarcode = normalize(req.BoxBarcode), normalize(req.ItemBarcode)

	p, err := s.findProduct(ctx, req.BoxBarcode)
	if err != nil {
		return nil, err
	}
	release := func() {}
	if req.ItemBarcode != "" {
		if release, err = s.e.claimWithSiblings(ctx, p, []string{req.ItemBarcode}, req.SplitPair); err != nil {
			return nil, err
		}
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, req.BoxBarcode)
		if err != nil {
			return err
		}
		if err := s.e.returnLoanTx(tx, p, req, false); err != nil {
			return err
		}
		agg, err = s.e.loadAggregateTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot(agg), nil
}

func (s *stockService) ReturnSoldItem(ctx context.Context, req dto.ReturnSoldRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "return_sold", time.Now(), &err)
	req.BoxBarcode, req.ItemBarcode = normalize(req.BoxBarcode), normalize(req.ItemBarcode)
	release, err := s.e.guard.Claim(ctx, req.ItemBarcode)
	if err != nil {
		return nil, err
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, req.BoxBarcode)
		if err != nil {
			return err
		}
		if _, err := s.e.returnSoldTx(tx, p, req); err != nil {
			return err
		}
		agg, err = s.e.loadAggregateTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot(agg), nil
}

// ── Recombine ─────────────────────────────────────────────────────────────────

// Recombine merges two surviving halves into a new pair under targetBox.
// Halves still on a shelf are taken off it first; both then share one fresh
// sequence number.
func (s *stockService) Recombine(ctx context.Context, req dto.RecombineRequest) (snap *dto.StockSnapshot, err error) {
	defer track(s.e.metrics, "recombine", time.Now(), &err)
	box := normalize(req.TargetBox)
	items := []string{normalize(req.Item1), normalize(req.Item2)}
	if items[0] == "" || items[1] == "" || items[0] == items[1] {
		return nil, apierror.InvalidInput("two distinct item barcodes are required").WithBox(box)
	}
	release, err := s.e.guard.Claim(ctx, items...)
	if err != nil {
		return nil, err
	}
	defer release()

	var agg *model.AggregateStock
	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		if !p.IsPaired() {
			return apierror.InvalidInput("recombine needs a paired product; %s has serial count %d", box, p.SerialCount).WithBox(box)
		}
		for _, item := range items {
			if err := s.releaseForRecombineTx(tx, p, item); err != nil {
				return err
			}
		}
		n, err := s.e.addItemTx(tx, p, items[0], addOptions{skipPairCheck: true}, strPtr(req.Note), "")
		if err != nil {
			return err
		}
		if _, err := s.e.addItemTx(tx, p, items[1], addOptions{forcedSeq: intPtr(n)}, strPtr(req.Note), ""); err != nil {
			return err
		}
		agg, err = s.e.syncTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("box", box).Strs("items", items).Msg("pair recombined")
	return snapshot(agg), nil
}

// releaseForRecombineTx takes a present half off its shelf (any box) and
// drops its old sequence assignment. A half that is neither present nor
// available for reuse is rejected.
func (s *stockService) releaseForRecombineTx(tx *gorm.DB, target *model.Product, item string) error {
	pres, err := s.e.repos.Presence.FindTx(tx, item)
	switch {
	case err == nil:
		src := target
		if pres.BoxBarcode != target.BoxBarcode {
			if src, err = s.e.lockProductTx(tx, pres.BoxBarcode); err != nil {
				return err
			}
		}
		if err := s.e.removeItemTx(tx, src, item, strPtr("recombined into "+target.BoxBarcode)); err != nil {
			return err
		}
		if src != target {
			if _, err := s.e.syncTx(tx, src); err != nil {
				return err
			}
		}
	case repository.IsNotFound(err):
		ok, err := s.e.avail.addableTx(tx, target.BoxBarcode, item)
		if err != nil {
			return err
		}
		if !ok {
			return apierror.InvalidInput("barcode %s is neither in stock nor available for reuse", item).WithBarcode(item)
		}
	default:
		return err
	}
	return s.e.repos.Sequences.DeleteByItemTx(tx, item)
}

// ── Aggregate maintenance ─────────────────────────────────────────────────────

func (s *stockService) SyncAggregate(ctx context.Context, box string) (*dto.StockSnapshot, error) {
	var agg *model.AggregateStock
	err := runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		agg, err = s.e.syncTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot(agg), nil
}

// ReconcileAll syncs every catalog entry. Bulk rows that disagree with the
// ledger are reported, never repaired.
func (s *stockService) ReconcileAll(ctx context.Context) (*dto.ReconcileReport, error) {
	products, err := s.e.repos.Products.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	report := &dto.ReconcileReport{}
	for i := range products {
		box := products[i].BoxBarcode
		report.Checked++
		err := runTx(ctx, s.e.db, func(tx *gorm.DB) error {
			p, err := s.e.lockProductTx(tx, box)
			if err != nil {
				return err
			}
			agg, err := s.e.syncTx(tx, p)
			if err != nil {
				return err
			}
			if p.IsSerialized() {
				return nil
			}
			sums, err := s.e.repos.Ledger.SumByOperationTx(tx, box)
			if err != nil {
				return err
			}
			if want := LedgerBalance(sums); want != agg.Quantity {
				report.Drift = append(report.Drift, box)
				s.e.metrics.RecordAggregateDrift()
				log.Error().Str("box", box).Int("aggregate", agg.Quantity).Int("ledger", want).
					Msg("aggregate stock disagrees with ledger")
			}
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("box", box).Msg("reconcile: sync failed")
			continue
		}
		report.Synced++
	}
	return report, nil
}

// LedgerBalance folds per-operation sums into the bulk on-hand quantity.
// Loan-to-sale conversions are neutral: the stock already left on the loan.
func LedgerBalance(sums map[model.Operation]int) int {
	total := 0
	for op, q := range sums {
		switch {
		case op.Inbound():
			total += q
		case op.Outbound():
			total -= q
		}
	}
	return total
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *stockService) findProduct(ctx context.Context, box string) (*model.Product, error) {
	p, err := s.e.repos.Products.FindByBox(ctx, box)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("product %s not found", box).WithBox(box)
	}
	return p, err
}

func (s *stockService) GetStock(ctx context.Context, box string) (*dto.StockSnapshot, error) {
	p, err := s.findProduct(ctx, box)
	if err != nil {
		return nil, err
	}
	agg, err := s.e.loadAggregateTx(readDB(ctx, s.e.db), p)
	if err != nil {
		return nil, err
	}
	return snapshot(agg), nil
}

func (s *stockService) ListPresence(ctx context.Context, box string) ([]dto.PresenceResponse, error) {
	if _, err := s.findProduct(ctx, box); err != nil {
		return nil, err
	}
	rows, err := s.e.repos.Presence.ListByBox(ctx, box)
	if err != nil {
		return nil, err
	}
	out := make([]dto.PresenceResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.PresenceResponse{
			ItemBarcode:    r.ItemBarcode,
			BoxBarcode:     r.BoxBarcode,
			ProductName:    r.ProductName,
			SequenceNumber: r.SequenceNumber,
			AddedAt:        r.AddedAt,
		})
	}
	return out, nil
}

func (s *stockService) IsAvailable(ctx context.Context, item string) (bool, error) {
	return s.e.avail.IsAvailableTx(readDB(ctx, s.e.db), normalize(item))
}
