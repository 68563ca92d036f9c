package service

import (
	"context"
	"strings"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/pairing"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ── Inbound ───────────────────────────────────────────────────────────────────

// addItemTx puts one serialized item on the shelf and returns its sequence number.
func (e *Engine) addItemTx(tx *gorm.DB, p *model.Product, item string, opts addOptions, note *string, orderID string) (int, error) {
	if !p.IsSerialized() {
		return 0, apierror.InvalidInput("product %s is not serialized; add a quantity instead", p.BoxBarcode).WithBox(p.BoxBarcode)
	}
	if item == "" {
		return 0, apierror.InvalidInput("item barcode is required for serialized product %s", p.BoxBarcode).WithBox(p.BoxBarcode)
	}
	present, err := e.isOnShelfTx(tx, item)
	if err != nil {
		return 0, err
	}
	if present {
		return 0, apierror.InvalidInput("item %s is already in stock", item).WithBarcode(item).WithBox(p.BoxBarcode)
	}
	// re-check inside the serializable transaction
	ok, err := e.avail.addableTx(tx, p.BoxBarcode, item)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apierror.InvalidInput("barcode %s is not available", item).WithBarcode(item).WithBox(p.BoxBarcode)
	}

	n, err := e.seq.resolveForAddTx(tx, p, item, opts)
	if err != nil {
		return 0, err
	}
	if err := e.putOnShelfTx(tx, p, item, intPtr(n)); err != nil {
		return 0, err
	}
	if _, err := e.recordTx(tx, p, entry{item: item, op: model.OpAdd, qty: 1, orderID: orderID, seq: intPtr(n), note: note}); err != nil {
		return 0, err
	}
	return n, nil
}

// addQuantityTx adds bulk quantity.
func (e *Engine) addQuantityTx(tx *gorm.DB, p *model.Product, qty int, note *string, orderID string) (*model.AggregateStock, error) {
	if p.IsSerialized() {
		return nil, apierror.InvalidInput("product %s is serialized; an item barcode is required", p.BoxBarcode).WithBox(p.BoxBarcode)
	}
	if qty <= 0 {
		return nil, apierror.InvalidInput("quantity must be positive").WithBox(p.BoxBarcode)
	}
	if _, err := e.recordTx(tx, p, entry{op: model.OpAdd, qty: qty, orderID: orderID, note: note}); err != nil {
		return nil, err
	}
	return e.adjustBulkTx(tx, p, qty)
}

// addPairsTx groups barcodes into pairs and adds each pair under one
// sequence number. A partner missing from the input is reserved.
func (e *Engine) addPairsTx(tx *gorm.DB, p *model.Product, items []string, note *string) error {
	groups, unpaired := pairing.GroupPairs(items)
	if len(unpaired) > 0 {
		return apierror.InvalidInput("cannot derive the pair partner of %s", unpaired[0]).WithBarcode(unpaired[0]).WithBox(p.BoxBarcode)
	}
	for _, g := range groups {
		n, err := e.groupNumberTx(tx, p, g.First, g.Second)
		if err != nil {
			return err
		}
		for _, b := range []string{g.First, g.Second} {
			if b == g.Computed {
				if err := e.seq.reserveTx(tx, p, b, n); err != nil {
					return err
				}
				continue
			}
			if _, err := e.addItemTx(tx, p, b, addOptions{forcedSeq: intPtr(n)}, note, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// groupNumberTx reuses a reserved number held by either half, else allocates.
func (e *Engine) groupNumberTx(tx *gorm.DB, p *model.Product, halves ...string) (int, error) {
	for _, h := range halves {
		reserved, err := e.avail.reservedInBoxTx(tx, p.BoxBarcode, h)
		if err != nil {
			return 0, err
		}
		if reserved != nil {
			return reserved.SequenceNumber, nil
		}
	}
	return e.seq.NextTx(tx, p.BoxBarcode)
}

// ── Removal ───────────────────────────────────────────────────────────────────

func (e *Engine) removeItemTx(tx *gorm.DB, p *model.Product, item string, note *string) error {
	pres, err := e.findOnShelfTx(tx, p, item)
	if err != nil {
		return err
	}
	if err := e.repos.Presence.DeleteTx(tx, item); err != nil {
		return err
	}
	_, err = e.recordTx(tx, p, entry{item: item, op: model.OpRemove, qty: 1, seq: pres.SequenceNumber, note: note})
	return err
}

func (e *Engine) removeQuantityTx(tx *gorm.DB, p *model.Product, qty int, note *string) (*model.AggregateStock, error) {
	if qty <= 0 {
		return nil, apierror.InvalidInput("quantity must be positive").WithBox(p.BoxBarcode)
	}
	agg, err := e.adjustBulkTx(tx, p, -qty)
	if err != nil {
		return nil, err
	}
	if _, err := e.recordTx(tx, p, entry{op: model.OpRemove, qty: qty, note: note}); err != nil {
		return nil, err
	}
	return agg, nil
}

// ── Outbound ──────────────────────────────────────────────────────────────────

// movementQuantity resolves the quantity of a move: 1 per serialized item,
// a positive amount for bulk.
func movementQuantity(p *model.Product, item string, qty int) (int, error) {
	if p.IsSerialized() {
		if item == "" {
			return 0, apierror.InvalidInput("item barcode is required for serialized product %s", p.BoxBarcode).WithBox(p.BoxBarcode)
		}
		if qty > 1 {
			return 0, apierror.InvalidInput("serialized items move one at a time").WithBarcode(item)
		}
		return 1, nil
	}
	if item != "" {
		return 0, apierror.InvalidInput("product %s is not serialized; item barcodes are not accepted", p.BoxBarcode).WithBox(p.BoxBarcode)
	}
	if qty <= 0 {
		return 0, apierror.InvalidInput("quantity must be positive").WithBox(p.BoxBarcode)
	}
	return qty, nil
}

// validateMove checks destination and actor fields before any write.
func validateMove(req *dto.MoveStockRequest, fromLoan bool) error {
	if !req.Destination.Valid() {
		return apierror.InvalidInput("destination must be one of sales, lent, broken")
	}
	if normalize(req.EmployeeID) == "" {
		return apierror.InvalidInput("employee id is required")
	}
	switch req.Destination {
	case model.DestinationSales:
		if normalize(req.OrderID) == "" {
			return apierror.InvalidInput("order id is required for sales")
		}
	case model.DestinationLent:
		if fromLoan {
			return nil
		}
		if normalize(req.OrderID) == "" {
			return apierror.InvalidInput("order id is required to lend stock")
		}
		if normalize(req.Counterparty) == "" {
			return apierror.InvalidInput("counterparty is required to lend stock").WithOrder(req.OrderID)
		}
	case model.DestinationBroken:
	}
	return nil
}

// moveTx performs one outbound movement. An item that is currently on loan
// is converted from its loan; anything else leaves the shelf directly.
func (e *Engine) moveTx(tx *gorm.DB, p *model.Product, req dto.MoveStockRequest) error {
	item := normalize(req.ItemBarcode)
	qty, err := movementQuantity(p, item, req.Quantity)
	if err != nil {
		return err
	}

	var loans []*model.Loan
	if p.IsSerialized() {
		loan, err := e.repos.Loans.FindOpenByItemTx(tx, item)
		switch {
		case err == nil:
			if loan.BoxBarcode != p.BoxBarcode {
				return apierror.InvalidInput("item %s is on loan under box %s, not %s", item, loan.BoxBarcode, p.BoxBarcode).WithBarcode(item)
			}
			loans = append(loans, loan)
			if p.IsPaired() && !req.SplitPair {
				sibs, err := e.siblingLoansTx(tx, p, loan)
				if err != nil {
					return err
				}
				loans = append(loans, sibs...)
			}
		case !repository.IsNotFound(err):
			return err
		}
	} else if req.LoanOrderID != "" {
		loan, err := e.repos.Loans.FindOpenBulkTx(tx, p.BoxBarcode, req.LoanOrderID)
		if repository.IsNotFound(err) {
			return apierror.NotFound("no open loan for box %s under order %s", p.BoxBarcode, req.LoanOrderID).
				WithBox(p.BoxBarcode).WithOrder(req.LoanOrderID)
		}
		if err != nil {
			return err
		}
		loans = append(loans, loan)
	}

	if err := validateMove(&req, len(loans) > 0); err != nil {
		return err
	}
	if len(loans) > 0 {
		return e.fromLoanTx(tx, p, loans, qty, req, false)
	}
	return e.directMoveTx(tx, p, item, qty, req)
}

// directMoveTx moves stock that is on the shelf to its destination.
func (e *Engine) directMoveTx(tx *gorm.DB, p *model.Product, item string, qty int, req dto.MoveStockRequest) error {
	op := req.Destination.Operation()
	if req.Destination == model.DestinationBroken && normalize(req.OrderID) == "" {
		req.OrderID = "BRK-" + strings.ToUpper(uuid.NewString()[:8])
	}

	if p.IsSerialized() {
		pres, err := e.findOnShelfTx(tx, p, item)
		if err != nil {
			return err
		}
		moving := []*model.Presence{pres}
		if p.IsPaired() && !req.SplitPair {
			sibs, err := e.seq.SiblingsTx(tx, p.BoxBarcode, item)
			if err != nil {
				return err
			}
			for _, sib := range sibs {
				sp, err := e.repos.Presence.FindTx(tx, sib)
				if repository.IsNotFound(err) {
					continue
				}
				if err != nil {
					return err
				}
				moving = append(moving, sp)
			}
		}
		for _, m := range moving {
			if err := e.repos.Presence.DeleteTx(tx, m.ItemBarcode); err != nil {
				return err
			}
			if _, err := e.recordTx(tx, p, entry{item: m.ItemBarcode, op: op, qty: 1, orderID: req.OrderID, seq: m.SequenceNumber, note: strPtr(req.Note)}); err != nil {
				return err
			}
			if err := e.writeDestinationTx(tx, p, m.ItemBarcode, 1, m.SequenceNumber, req); err != nil {
				return err
			}
		}
		if _, err := e.syncTx(tx, p); err != nil {
			return err
		}
	} else {
		if _, err := e.adjustBulkTx(tx, p, -qty); err != nil {
			return err
		}
		if _, err := e.recordTx(tx, p, entry{op: op, qty: qty, orderID: req.OrderID, note: strPtr(req.Note)}); err != nil {
			return err
		}
		if err := e.writeDestinationTx(tx, p, "", qty, nil, req); err != nil {
			return err
		}
	}

	if req.Destination == model.DestinationLent {
		if _, err := e.recomputeOrderTx(tx, req.OrderID); err != nil {
			return err
		}
	}
	return nil
}

// writeDestinationTx creates the sale, loan or breakage record (and its
// order header when missing).
func (e *Engine) writeDestinationTx(tx *gorm.DB, p *model.Product, item string, qty int, seq *int, req dto.MoveStockRequest) error {
	a := actor{employeeID: req.EmployeeID, counterparty: req.Counterparty}
	now := e.now()
	switch req.Destination {
	case model.DestinationSales:
		if _, err := e.ensureSaleOrderTx(tx, req.OrderID, a, nil); err != nil {
			return err
		}
		direct := true
		if req.IsDirectSale != nil {
			direct = *req.IsDirectSale
		}
		return e.repos.Sales.CreateTx(tx, &model.Sale{
			OrderID: req.OrderID, BoxBarcode: p.BoxBarcode, ProductName: p.Name,
			ItemBarcode: strPtr(item), Quantity: qty, SequenceNumber: seq, IsDirectSale: direct,
			EmployeeID: a.employeeID, Counterparty: a.counterparty, Note: strPtr(req.Note), CreatedAt: now,
		})
	case model.DestinationLent:
		if _, err := e.ensureLoanOrderTx(tx, req.OrderID, a, nil, req.SplitPair); err != nil {
			return err
		}
		if item == "" {
			// one open bulk line per box and order: top it up
			open, err := e.repos.Loans.FindOpenBulkTx(tx, p.BoxBarcode, req.OrderID)
			if err == nil {
				open.Quantity += qty
				open.UpdatedAt = now
				return e.repos.Loans.UpdateTx(tx, open)
			}
			if !repository.IsNotFound(err) {
				return err
			}
		}
		return e.repos.Loans.CreateTx(tx, &model.Loan{
			OrderID: req.OrderID, BoxBarcode: p.BoxBarcode, ProductName: p.Name,
			ItemBarcode: strPtr(item), Quantity: qty, Status: model.LoanLent, SequenceNumber: seq,
			EmployeeID: a.employeeID, Counterparty: a.counterparty, Note: strPtr(req.Note),
			SplitPair: req.SplitPair, CreatedAt: now, UpdatedAt: now,
		})
	case model.DestinationBroken:
		if _, err := e.ensureBreakageOrderTx(tx, req.OrderID, a, nil); err != nil {
			return err
		}
		return e.repos.Breakages.CreateTx(tx, &model.Breakage{
			OrderID: req.OrderID, BoxBarcode: p.BoxBarcode, ProductName: p.Name,
			ItemBarcode: strPtr(item), Quantity: qty, Condition: req.Condition, SequenceNumber: seq,
			EmployeeID: a.employeeID, Note: strPtr(req.Note), CreatedAt: now,
		})
	}
	return apierror.InvalidInput("destination must be one of sales, lent, broken")
}

// ── Loans ─────────────────────────────────────────────────────────────────────

// siblingLoansTx returns the open loans of loan's pair siblings under the same order.
func (e *Engine) siblingLoansTx(tx *gorm.DB, p *model.Product, loan *model.Loan) ([]*model.Loan, error) {
	if loan.ItemBarcode == nil {
		return nil, nil
	}
	sibs, err := e.seq.SiblingsTx(tx, p.BoxBarcode, *loan.ItemBarcode)
	if err != nil {
		return nil, err
	}
	var out []*model.Loan
	for _, sib := range sibs {
		l, err := e.repos.Loans.FindOpenByItemTx(tx, sib)
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if l.OrderID == loan.OrderID {
			out = append(out, l)
		}
	}
	return out, nil
}

// takeFromLoanTx moves qty of an open loan line into status. Item lines and
// whole bulk lines change status in place; partial bulk quantities split off
// a derived line. With derive set every portion is split off and a drained
// line is closed as processed.
func (e *Engine) takeFromLoanTx(tx *gorm.DB, loan *model.Loan, qty int, status model.LoanStatus, derive bool) error {
	if loan.Status != model.LoanLent {
		return apierror.InvalidInput("loan line %d is already %s", loan.ID, loan.Status).WithOrder(loan.OrderID)
	}
	if qty <= 0 || qty > loan.Quantity {
		return apierror.InvalidInput("cannot process %d from %s: %d on loan", qty, describeLoan(loan), loan.Quantity).
			WithOrder(loan.OrderID).WithBox(loan.BoxBarcode)
	}
	now := e.now()
	if loan.ItemBarcode != nil || (qty == loan.Quantity && !derive) {
		loan.Status = status
		loan.UpdatedAt = now
		return e.repos.Loans.UpdateTx(tx, loan)
	}

	derived := *loan
	derived.ID = 0
	derived.Quantity = qty
	derived.Status = status
	derived.CreatedAt = now
	derived.UpdatedAt = now
	if err := e.repos.Loans.CreateTx(tx, &derived); err != nil {
		return err
	}
	loan.Quantity -= qty
	if loan.Quantity == 0 {
		loan.Status = model.LoanProcessed
	}
	loan.UpdatedAt = now
	return e.repos.Loans.UpdateTx(tx, loan)
}

// fromLoanTx converts stock that is out on loan: to a sale, or to breakage
// (recorded as a return immediately followed by a write-off).
func (e *Engine) fromLoanTx(tx *gorm.DB, p *model.Product, loans []*model.Loan, qty int, req dto.MoveStockRequest, derive bool) error {
	a := actor{employeeID: req.EmployeeID, counterparty: req.Counterparty}
	orders := map[string]struct{}{}

	switch req.Destination {
	case model.DestinationLent:
		return apierror.InvalidInput("%s is already on loan under order %s", describeLoan(loans[0]), loans[0].OrderID).
			WithOrder(loans[0].OrderID).WithBox(p.BoxBarcode)

	case model.DestinationSales:
		for _, loan := range loans {
			take := qty
			if loan.ItemBarcode != nil {
				take = 1
			}
			if a.counterparty == "" {
				a.counterparty = loan.Counterparty
			}
			if _, err := e.ensureSaleOrderTx(tx, req.OrderID, a, nil); err != nil {
				return err
			}
			if err := e.takeFromLoanTx(tx, loan, take, model.LoanLentToSales, derive); err != nil {
				return err
			}
			note := joinNotes("moved from loan order "+loan.OrderID, req.Note)
			if _, err := e.recordTx(tx, p, entry{item: deref(loan.ItemBarcode), op: model.OpMovedFromLentToSales, qty: take,
				orderID: req.OrderID, seq: loan.SequenceNumber, note: note}); err != nil {
				return err
			}
			direct := false
			if req.IsDirectSale != nil {
				direct = *req.IsDirectSale
			}
			if err := e.repos.Sales.CreateTx(tx, &model.Sale{
				OrderID: req.OrderID, BoxBarcode: p.BoxBarcode, ProductName: p.Name,
				ItemBarcode: loan.ItemBarcode, Quantity: take, SequenceNumber: loan.SequenceNumber,
				IsDirectSale: direct, EmployeeID: a.employeeID, Counterparty: a.counterparty,
				Note: note, CreatedAt: e.now(),
			}); err != nil {
				return err
			}
			orders[loan.OrderID] = struct{}{}
		}

	case model.DestinationBroken:
		for _, loan := range loans {
			take := qty
			if loan.ItemBarcode != nil {
				take = 1
			}
			orderID := normalize(req.OrderID)
			if orderID == "" {
				orderID = "BROKEN-FROM-LENT-" + loan.OrderID
			}
			if _, err := e.ensureBreakageOrderTx(tx, orderID, a, nil); err != nil {
				return err
			}
			if err := e.takeFromLoanTx(tx, loan, take, model.LoanBroken, derive); err != nil {
				return err
			}
			item := deref(loan.ItemBarcode)
			if _, err := e.recordTx(tx, p, entry{item: item, op: model.OpReturned, qty: take, orderID: loan.OrderID,
				seq: loan.SequenceNumber, note: joinNotes("returned broken", req.Note)}); err != nil {
				return err
			}
			if _, err := e.recordTx(tx, p, entry{item: item, op: model.OpBroken, qty: take, orderID: orderID,
				seq: loan.SequenceNumber, note: strPtr(req.Note)}); err != nil {
				return err
			}
			if err := e.repos.Breakages.CreateTx(tx, &model.Breakage{
				OrderID: orderID, BoxBarcode: p.BoxBarcode, ProductName: p.Name,
				ItemBarcode: loan.ItemBarcode, Quantity: take, Condition: req.Condition,
				SequenceNumber: loan.SequenceNumber, EmployeeID: a.employeeID,
				Note: joinNotes("from loan order "+loan.OrderID, req.Note), CreatedAt: e.now(),
			}); err != nil {
				return err
			}
			orders[loan.OrderID] = struct{}{}
		}
	}

	for orderID := range orders {
		if _, err := e.recomputeOrderTx(tx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// returnLoanTx brings lent stock back to the shelf.
func (e *Engine) returnLoanTx(tx *gorm.DB, p *model.Product, req dto.ReturnLentRequest, derive bool) error {
	item := normalize(req.ItemBarcode)
	orders := map[string]struct{}{}

	if p.IsSerialized() {
		if item == "" {
			return apierror.InvalidInput("item barcode is required for serialized product %s", p.BoxBarcode).WithBox(p.BoxBarcode)
		}
		loan, err := e.repos.Loans.FindOpenByItemTx(tx, item)
		if repository.IsNotFound(err) {
			return apierror.NotFound("item %s has no open loan", item).WithBarcode(item).WithBox(p.BoxBarcode)
		}
		if err != nil {
			return err
		}
		if loan.BoxBarcode != p.BoxBarcode {
			return apierror.InvalidInput("item %s is on loan under box %s, not %s", item, loan.BoxBarcode, p.BoxBarcode).WithBarcode(item)
		}
		if req.LoanOrderID != "" && loan.OrderID != req.LoanOrderID {
			return apierror.NotFound("item %s is not on loan under order %s", item, req.LoanOrderID).
				WithBarcode(item).WithOrder(req.LoanOrderID)
		}
		loans := []*model.Loan{loan}
		if p.IsPaired() && !req.SplitPair {
			sibs, err := e.siblingLoansTx(tx, p, loan)
			if err != nil {
				return err
			}
			loans = append(loans, sibs...)
		}
		for _, l := range loans {
			if err := e.takeFromLoanTx(tx, l, 1, model.LoanReturned, false); err != nil {
				return err
			}
			if err := e.putOnShelfTx(tx, p, *l.ItemBarcode, l.SequenceNumber); err != nil {
				return err
			}
			if _, err := e.recordTx(tx, p, entry{item: *l.ItemBarcode, op: model.OpReturned, qty: 1,
				orderID: l.OrderID, seq: l.SequenceNumber, note: strPtr(req.Note)}); err != nil {
				return err
			}
			orders[l.OrderID] = struct{}{}
		}
		if _, err := e.syncTx(tx, p); err != nil {
			return err
		}
	} else {
		if item != "" {
			return apierror.InvalidInput("product %s is not serialized; item barcodes are not accepted", p.BoxBarcode).WithBox(p.BoxBarcode)
		}
		if req.LoanOrderID == "" {
			return apierror.InvalidInput("loan order id is required to return bulk stock").WithBox(p.BoxBarcode)
		}
		loan, err := e.repos.Loans.FindOpenBulkTx(tx, p.BoxBarcode, req.LoanOrderID)
		if repository.IsNotFound(err) {
			return apierror.NotFound("no open loan for box %s under order %s", p.BoxBarcode, req.LoanOrderID).
				WithBox(p.BoxBarcode).WithOrder(req.LoanOrderID)
		}
		if err != nil {
			return err
		}
		qty := req.Quantity
		if qty == 0 {
			qty = loan.Quantity
		}
		if err := e.takeFromLoanTx(tx, loan, qty, model.LoanReturned, derive); err != nil {
			return err
		}
		if _, err := e.recordTx(tx, p, entry{op: model.OpReturned, qty: qty, orderID: loan.OrderID, note: strPtr(req.Note)}); err != nil {
			return err
		}
		if _, err := e.adjustBulkTx(tx, p, qty); err != nil {
			return err
		}
		orders[loan.OrderID] = struct{}{}
	}

	for orderID := range orders {
		if _, err := e.recomputeOrderTx(tx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// ── Sales returns ─────────────────────────────────────────────────────────────

// returnSoldTx puts sold stock back on the shelf and drops the sale record
// (partial bulk returns shrink it instead).
func (e *Engine) returnSoldTx(tx *gorm.DB, p *model.Product, req dto.ReturnSoldRequest) (int, error) {
	item := normalize(req.ItemBarcode)
	if p.IsSerialized() {
		if item == "" {
			return 0, apierror.InvalidInput("item barcode is required for serialized product %s", p.BoxBarcode).WithBox(p.BoxBarcode)
		}
		sale, err := e.repos.Sales.FindByOrderItemTx(tx, req.SaleOrderID, item)
		if repository.IsNotFound(err) {
			return 0, apierror.NotFound("item %s is not part of sale order %s", item, req.SaleOrderID).
				WithBarcode(item).WithOrder(req.SaleOrderID)
		}
		if err != nil {
			return 0, err
		}
		present, err := e.isOnShelfTx(tx, item)
		if err != nil {
			return 0, err
		}
		if present {
			return 0, apierror.InvalidInput("item %s is already in stock", item).WithBarcode(item)
		}
		if err := e.putOnShelfTx(tx, p, item, sale.SequenceNumber); err != nil {
			return 0, err
		}
		if _, err := e.recordTx(tx, p, entry{item: item, op: model.OpReturnFromSales, qty: 1,
			orderID: req.SaleOrderID, seq: sale.SequenceNumber, note: strPtr(req.Note)}); err != nil {
			return 0, err
		}
		if err := e.repos.Sales.DeleteTx(tx, sale.ID); err != nil {
			return 0, err
		}
		_, err = e.syncTx(tx, p)
		return 1, err
	}

	sale, err := e.repos.Sales.FindByOrderBoxTx(tx, req.SaleOrderID, p.BoxBarcode)
	if repository.IsNotFound(err) {
		return 0, apierror.NotFound("box %s is not part of sale order %s", p.BoxBarcode, req.SaleOrderID).
			WithBox(p.BoxBarcode).WithOrder(req.SaleOrderID)
	}
	if err != nil {
		return 0, err
	}
	qty := req.Quantity
	if qty == 0 {
		qty = sale.Quantity
	}
	if qty > sale.Quantity {
		return 0, apierror.InvalidInput("cannot return %d of box %s: only %d sold under order %s",
			qty, p.BoxBarcode, sale.Quantity, req.SaleOrderID).WithBox(p.BoxBarcode).WithOrder(req.SaleOrderID)
	}
	if _, err := e.recordTx(tx, p, entry{op: model.OpReturnFromSales, qty: qty, orderID: req.SaleOrderID, note: strPtr(req.Note)}); err != nil {
		return 0, err
	}
	if _, err := e.adjustBulkTx(tx, p, qty); err != nil {
		return 0, err
	}
	if qty == sale.Quantity {
		return qty, e.repos.Sales.DeleteTx(tx, sale.ID)
	}
	sale.Quantity -= qty
	return qty, e.repos.Sales.UpdateTx(tx, sale)
}

// ── Claims ────────────────────────────────────────────────────────────────────

// claimWithSiblings claims items plus, for paired products, their
// registered siblings, so a pair is never half-claimed by two requests.
func (e *Engine) claimWithSiblings(ctx context.Context, p *model.Product, items []string, splitPair bool) (func(), error) {
	keys, err := e.withSiblings(ctx, p, items, splitPair)
	if err != nil {
		return nil, err
	}
	return e.guard.Claim(ctx, keys...)
}

// withSiblings returns items followed by their registered pair siblings.
// Unpaired products and split moves get items back unchanged.
func (e *Engine) withSiblings(ctx context.Context, p *model.Product, items []string, splitPair bool) ([]string, error) {
	keys := append([]string(nil), items...)
	if !p.IsPaired() || splitPair {
		return keys, nil
	}
	tx := readDB(ctx, e.db)
	for _, item := range items {
		sibs, err := e.seq.SiblingsTx(tx, p.BoxBarcode, item)
		if err != nil {
			return nil, err
		}
		keys = append(keys, sibs...)
	}
	return keys, nil
}
