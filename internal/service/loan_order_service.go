package service

import (
	"context"
	"sort"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// LoanOrderService creates loan orders and processes their follow-up batches.
type LoanOrderService interface {
	CreateLoanOrder(ctx context.Context, req dto.CreateLoanOrderRequest) (*dto.LoanOrderResponse, error)
	ProcessBatch(ctx context.Context, orderID string, req dto.BatchRequest) (*dto.BatchResult, error)
	RecomputeStatus(ctx context.Context, orderID string) (string, error)
	Get(ctx context.Context, orderID string) (*dto.LoanOrderResponse, error)
}

type loanOrderService struct {
	e *Engine
}

func NewLoanOrderService(e *Engine) LoanOrderService {
	return &loanOrderService{e: e}
}

const (
	lineLent   = "lent"
	lineSales  = "sales"
	lineReturn = "return"
	lineBroken = "broken"
)

// CreateLoanOrder lends every line under a new order in one transaction.
// Lines with destination sales are lent and converted; return lines are lent
// and brought straight back.
func (s *loanOrderService) CreateLoanOrder(ctx context.Context, req dto.CreateLoanOrderRequest) (resp *dto.LoanOrderResponse, err error) {
	defer track(s.e.metrics, "create_loan_order", time.Now(), &err)
	orderID := normalize(req.OrderID)
	a := actor{employeeID: normalize(req.EmployeeID), counterparty: normalize(req.Counterparty)}
	switch {
	case orderID == "":
		return nil, apierror.InvalidInput("order id is required")
	case a.employeeID == "":
		return nil, apierror.InvalidInput("employee id is required").WithOrder(orderID)
	case a.counterparty == "":
		return nil, apierror.InvalidInput("counterparty is required").WithOrder(orderID)
	case len(req.Lines) == 0:
		return nil, apierror.InvalidInput("an order needs at least one line").WithOrder(orderID)
	}

	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		ids[i] = l.Identifier
	}
	release, err := s.e.guard.Claim(ctx, itemIdentifiers(ids)...)
	if err != nil {
		return nil, err
	}
	defer release()

	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		if _, err := s.e.repos.Orders.FindLoanOrderTx(tx, orderID); err == nil {
			return apierror.InvalidInput("loan order %s already exists", orderID).WithOrder(orderID)
		} else if !repository.IsNotFound(err) {
			return err
		}
		if _, err := s.e.ensureLoanOrderTx(tx, orderID, a, strPtr(req.Note), req.SplitPair); err != nil {
			return err
		}

		handled := map[string]bool{}
		for _, line := range req.Lines {
			ref, err := s.e.resolveLineTx(tx, line.Identifier)
			if err != nil {
				return err
			}
			if ref.item != "" && handled[ref.item] {
				continue
			}
			split := req.SplitPair
			if line.SplitPair != nil {
				split = *line.SplitPair
			}
			if err := s.lendLineTx(tx, orderID, a, req.Note, ref, line.Destination, split); err != nil {
				return err
			}
			if ref.item != "" {
				handled[ref.item] = true
				if !split {
					sibs, err := s.e.seq.SiblingsTx(tx, ref.box(), ref.item)
					if err != nil {
						return err
					}
					for _, sib := range sibs {
						handled[sib] = true
					}
				}
			}
		}
		_, err := s.e.recomputeOrderTx(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("order_id", orderID).Int("lines", len(req.Lines)).Msg("loan order created")
	return s.Get(ctx, orderID)
}

func (s *loanOrderService) lendLineTx(tx *gorm.DB, orderID string, a actor, note string, ref lineRef, dest string, split bool) error {
	if dest == "" {
		dest = lineLent
	}
	if ref.item == "" && ref.qty == 0 {
		return apierror.InvalidInput("bulk line for box %s needs a quantity (BOX:qty)", ref.box()).WithBox(ref.box())
	}
	if ref.item == "" && dest == lineReturn {
		return apierror.InvalidInput("bulk line for box %s cannot be returned in the same order", ref.box()).WithBox(ref.box()).WithOrder(orderID)
	}

	lend := dto.MoveStockRequest{
		BoxBarcode: ref.box(), ItemBarcode: ref.item, Quantity: ref.qty,
		Destination: model.DestinationLent, EmployeeID: a.employeeID, Counterparty: a.counterparty,
		Note: note, OrderID: orderID, SplitPair: split,
	}
	if err := s.e.moveTx(tx, ref.product, lend); err != nil {
		return err
	}

	switch dest {
	case lineSales:
		loans, err := s.openLoansTx(tx, ref, orderID, split)
		if err != nil {
			return err
		}
		conv := lend
		conv.Destination = model.DestinationSales
		conv.OrderID = "SALES-FROM-LENT-" + orderID
		return s.e.fromLoanTx(tx, ref.product, loans, ref.qty, conv, false)
	case lineReturn:
		return s.e.returnLoanTx(tx, ref.product, dto.ReturnLentRequest{
			BoxBarcode: ref.box(), ItemBarcode: ref.item, LoanOrderID: orderID, Note: note, SplitPair: split,
		}, false)
	}
	return nil
}

// openLoansTx returns the open loan line(s) behind ref under orderID,
// including pair siblings unless split.
func (s *loanOrderService) openLoansTx(tx *gorm.DB, ref lineRef, orderID string, split bool) ([]*model.Loan, error) {
	if ref.item == "" {
		loan, err := s.e.repos.Loans.FindOpenBulkTx(tx, ref.box(), orderID)
		if repository.IsNotFound(err) {
			return nil, apierror.NotFound("no open loan for box %s under order %s", ref.box(), orderID).
				WithBox(ref.box()).WithOrder(orderID)
		}
		if err != nil {
			return nil, err
		}
		return []*model.Loan{loan}, nil
	}
	loan, err := s.e.repos.Loans.FindOpenByItemTx(tx, ref.item)
	if repository.IsNotFound(err) || (err == nil && loan.OrderID != orderID) {
		return nil, apierror.NotFound("item %s is not on loan under order %s", ref.item, orderID).
			WithBarcode(ref.item).WithOrder(orderID)
	}
	if err != nil {
		return nil, err
	}
	loans := []*model.Loan{loan}
	if ref.product.IsPaired() && !split {
		sibs, err := s.e.siblingLoansTx(tx, ref.product, loan)
		if err != nil {
			return nil, err
		}
		loans = append(loans, sibs...)
	}
	return loans, nil
}

// ── Batch ─────────────────────────────────────────────────────────────────────

// ProcessBatch applies each line in its own transaction. A failing line is
// reported and does not stop the others.
func (s *loanOrderService) ProcessBatch(ctx context.Context, orderID string, req dto.BatchRequest) (*dto.BatchResult, error) {
	start := time.Now()
	orderID = normalize(orderID)
	order, err := s.e.repos.Orders.FindLoanOrderTx(readDB(ctx, s.e.db), orderID)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("loan order %s not found", orderID).WithOrder(orderID)
	}
	if err != nil {
		return nil, err
	}

	a := actor{employeeID: normalize(req.EmployeeID), counterparty: normalize(req.Counterparty)}
	if a.employeeID == "" {
		a.employeeID = order.EmployeeID
	}
	if a.counterparty == "" {
		a.counterparty = order.Counterparty
	}

	result := &dto.BatchResult{OrderID: orderID, Processed: []dto.LineOutcome{}, Failed: []dto.LineOutcome{}}
	// items already moved by an earlier line, pair halves included
	handled := map[string]bool{}
	for _, line := range req.Lines {
		if id := normalize(line.Identifier); handled[id] {
			result.Processed = append(result.Processed, dto.LineOutcome{Identifier: line.Identifier, Destination: line.Destination})
			s.e.metrics.RecordBatchLine(line.Destination, "ok")
			log.Debug().Str("order_id", orderID).Str("identifier", id).Msg("batch line already handled with its pair")
			continue
		}
		outcome, touched, err := s.processLine(ctx, order, a, req, line)
		if err != nil {
			outcome.Kind = string(apierror.KindOf(err))
			outcome.Detail = err.Error()
			if e, ok := apierror.As(err); ok {
				outcome.Detail = e.Message
			}
			result.Failed = append(result.Failed, outcome)
			s.e.metrics.RecordBatchLine(outcome.Destination, outcome.Kind)
			log.Warn().Err(err).Str("order_id", orderID).Str("identifier", line.Identifier).
				Str("destination", outcome.Destination).Msg("batch line failed")
			continue
		}
		for _, item := range touched {
			handled[item] = true
		}
		result.Processed = append(result.Processed, outcome)
		s.e.metrics.RecordBatchLine(outcome.Destination, "ok")
	}

	status, err := s.RecomputeStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Status = status
	s.e.metrics.RecordOperation("process_batch", "ok", time.Since(start))
	log.Info().Str("order_id", orderID).Int("processed", len(result.Processed)).
		Int("failed", len(result.Failed)).Str("status", status).Msg("batch processed")
	return result, nil
}

type portion struct {
	dest string
	qty  int
}

// portionsOf expands a batch line into (destination, quantity) steps in a
// fixed order. qty 0 means "whatever is open".
func portionsOf(line dto.BatchLine, qty int) ([]portion, error) {
	if len(line.Split) == 0 {
		dest := line.Destination
		if dest == "" {
			return nil, apierror.InvalidInput("line %s needs a destination or a split", line.Identifier)
		}
		return []portion{{dest: dest, qty: qty}}, nil
	}
	var out []portion
	for dest, q := range line.Split {
		switch dest {
		case lineReturn, lineSales, lineBroken:
		default:
			return nil, apierror.InvalidInput("split destination %q must be one of return, sales, broken", dest)
		}
		if q < 0 {
			return nil, apierror.InvalidInput("split quantity for %s must not be negative", dest)
		}
		if q > 0 {
			out = append(out, portion{dest: dest, qty: q})
		}
	}
	rank := map[string]int{lineReturn: 0, lineSales: 1, lineBroken: 2}
	sort.Slice(out, func(i, j int) bool { return rank[out[i].dest] < rank[out[j].dest] })
	return out, nil
}

// processLine applies one batch line and returns the item barcodes it moved.
func (s *loanOrderService) processLine(ctx context.Context, order *model.LoanOrder, a actor, req dto.BatchRequest, line dto.BatchLine) (dto.LineOutcome, []string, error) {
	outcome := dto.LineOutcome{Identifier: line.Identifier, Destination: line.Destination, Quantity: line.Quantity}
	if len(line.Split) > 0 {
		outcome.Destination = "split"
	}
	if line.Destination == lineLent && len(line.Split) == 0 {
		return outcome, nil, nil
	}
	split := order.SplitPair
	if line.SplitPair != nil {
		split = *line.SplitPair
	}

	ref, err := s.e.resolveLineTx(readDB(ctx, s.e.db), line.Identifier)
	if err != nil {
		return outcome, nil, err
	}
	var touched []string
	if ref.item != "" {
		if touched, err = s.e.withSiblings(ctx, ref.product, []string{ref.item}, split); err != nil {
			return outcome, nil, err
		}
	}
	release, err := s.e.guard.Claim(ctx, touched...)
	if err != nil {
		return outcome, nil, err
	}
	defer release()

	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		ref, err := s.e.resolveLineTx(tx, line.Identifier)
		if err != nil {
			return err
		}
		qty := line.Quantity
		if qty == 0 {
			qty = ref.qty
		}
		if ref.item != "" {
			if len(line.Split) > 0 {
				return apierror.InvalidInput("split applies to bulk lines only").WithBarcode(ref.item)
			}
			qty = 1
		}

		open, err := s.openLoansTx(tx, ref, order.OrderID, split)
		if err != nil {
			return err
		}
		if ref.item == "" && qty == 0 {
			qty = open[0].Quantity
		}
		portions, err := portionsOf(line, qty)
		if err != nil {
			return err
		}
		total := 0
		for _, p := range portions {
			total += p.qty
		}
		if ref.item == "" && total > open[0].Quantity {
			return apierror.InvalidInput("line %s asks for %d but only %d is on loan", line.Identifier, total, open[0].Quantity).
				WithBox(ref.box()).WithOrder(order.OrderID)
		}
		outcome.Quantity = total

		derive := len(line.Split) > 0
		for _, p := range portions {
			if err := s.applyPortionTx(tx, order, a, req, line, ref, p, split, derive); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return outcome, nil, err
	}
	return outcome, touched, nil
}

func (s *loanOrderService) applyPortionTx(tx *gorm.DB, order *model.LoanOrder, a actor, req dto.BatchRequest, line dto.BatchLine, ref lineRef, p portion, split, derive bool) error {
	switch p.dest {
	case lineReturn:
		return s.e.returnLoanTx(tx, ref.product, dto.ReturnLentRequest{
			BoxBarcode: ref.box(), ItemBarcode: ref.item, LoanOrderID: order.OrderID,
			Quantity: p.qty, Note: req.Note, SplitPair: split,
		}, derive)
	case lineSales, lineBroken:
		// reload: a previous portion may have changed the open line
		loans, err := s.openLoansTx(tx, ref, order.OrderID, split)
		if err != nil {
			return err
		}
		mv := dto.MoveStockRequest{
			BoxBarcode: ref.box(), ItemBarcode: ref.item, Quantity: p.qty,
			EmployeeID: a.employeeID, Counterparty: a.counterparty, Note: req.Note,
			Condition: line.Condition, SplitPair: split,
		}
		if p.dest == lineSales {
			mv.Destination = model.DestinationSales
			mv.OrderID = normalize(req.SalesOrderID)
			if mv.OrderID == "" {
				mv.OrderID = "SALES-FROM-LENT-" + order.OrderID
			}
		} else {
			mv.Destination = model.DestinationBroken
			mv.OrderID = "BROKEN-FROM-LENT-" + order.OrderID
		}
		return s.e.fromLoanTx(tx, ref.product, loans, p.qty, mv, derive)
	}
	return apierror.InvalidInput("destination %q must be one of return, sales, broken, lent", p.dest)
}

// ── Status & reads ────────────────────────────────────────────────────────────

func (s *loanOrderService) RecomputeStatus(ctx context.Context, orderID string) (string, error) {
	var status model.OrderStatus
	err := runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		o, err := s.e.recomputeOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		status = o.Status
		return nil
	})
	return string(status), err
}

func (s *loanOrderService) Get(ctx context.Context, orderID string) (*dto.LoanOrderResponse, error) {
	tx := readDB(ctx, s.e.db)
	o, err := s.e.repos.Orders.FindLoanOrderTx(tx, orderID)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("loan order %s not found", orderID).WithOrder(orderID)
	}
	if err != nil {
		return nil, err
	}
	lines, err := s.e.repos.Loans.ListByOrderTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	resp := &dto.LoanOrderResponse{
		OrderID:      o.OrderID,
		EmployeeID:   o.EmployeeID,
		Counterparty: o.Counterparty,
		Note:         o.Note,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
		Lines:        make([]dto.LoanLineResponse, 0, len(lines)),
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, dto.LoanLineResponse{
			ID:             l.ID,
			BoxBarcode:     l.BoxBarcode,
			ProductName:    l.ProductName,
			ItemBarcode:    l.ItemBarcode,
			Quantity:       l.Quantity,
			Status:         string(l.Status),
			SequenceNumber: l.SequenceNumber,
			UpdatedAt:      l.UpdatedAt,
		})
	}
	return resp, nil
}
