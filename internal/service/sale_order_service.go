package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SaleOrderService handles direct sales. Orders are fixed after creation
// except through AddItems, RemoveItem and UpdateNote, each of which is
// recorded in the edit history.
type SaleOrderService interface {
	CreateSaleOrder(ctx context.Context, req dto.CreateSaleOrderRequest) (*dto.SaleOrderResponse, error)
	AddItems(ctx context.Context, orderID string, req dto.AddSaleItemsRequest) (*dto.SaleOrderResponse, error)
	RemoveItem(ctx context.Context, orderID, identifier string, req dto.RemoveSaleItemRequest) (*dto.SaleOrderResponse, error)
	UpdateNote(ctx context.Context, orderID string, req dto.UpdateNoteRequest) (*dto.SaleOrderResponse, error)
	Get(ctx context.Context, orderID string) (*dto.SaleOrderResponse, error)
}

type saleOrderService struct {
	e *Engine
}

func NewSaleOrderService(e *Engine) SaleOrderService {
	return &saleOrderService{e: e}
}

func (s *saleOrderService) CreateSaleOrder(ctx context.Context, req dto.CreateSaleOrderRequest) (resp *dto.SaleOrderResponse, err error) {
	defer track(s.e.metrics, "create_sale_order", time.Now(), &err)
	orderID := normalize(req.OrderID)
	a := actor{employeeID: normalize(req.EmployeeID), counterparty: normalize(req.Counterparty)}
	if orderID == "" {
		return nil, apierror.InvalidInput("order id is required")
	}
	if a.employeeID == "" {
		return nil, apierror.InvalidInput("employee id is required").WithOrder(orderID)
	}

	release, err := s.e.guard.Claim(ctx, saleIdentifiers(req.Lines)...)
	if err != nil {
		return nil, err
	}
	defer release()

	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		if _, err := s.e.repos.Orders.FindSaleOrderTx(tx, orderID); err == nil {
			return apierror.InvalidInput("sale order %s already exists", orderID).WithOrder(orderID)
		} else if !repository.IsNotFound(err) {
			return err
		}
		if _, err := s.e.ensureSaleOrderTx(tx, orderID, a, strPtr(req.Note)); err != nil {
			return err
		}
		return s.sellLinesTx(tx, orderID, a, req.Note, req.Lines, req.SplitPair)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("order_id", orderID).Int("lines", len(req.Lines)).Msg("sale order created")
	return s.Get(ctx, orderID)
}

func (s *saleOrderService) AddItems(ctx context.Context, orderID string, req dto.AddSaleItemsRequest) (resp *dto.SaleOrderResponse, err error) {
	defer track(s.e.metrics, "sale_order_add_items", time.Now(), &err)
	orderID = normalize(orderID)
	release, err := s.e.guard.Claim(ctx, saleIdentifiers(req.Lines)...)
	if err != nil {
		return nil, err
	}
	defer release()

	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		o, err := s.findTx(tx, orderID)
		if err != nil {
			return err
		}
		a := actor{employeeID: firstNonEmpty(req.EmployeeID, o.EmployeeID), counterparty: o.Counterparty}
		if err := s.sellLinesTx(tx, orderID, a, req.Note, req.Lines, req.SplitPair); err != nil {
			return err
		}
		ids := make([]string, len(req.Lines))
		for i, l := range req.Lines {
			ids[i] = normalize(l.Identifier)
		}
		return s.recordEditTx(tx, o, model.EditAddItems, a.employeeID, "added "+strings.Join(ids, ", "))
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// RemoveItem returns one sold item (or a bulk quantity) to stock and drops
// it from the order.
func (s *saleOrderService) RemoveItem(ctx context.Context, orderID, identifier string, req dto.RemoveSaleItemRequest) (resp *dto.SaleOrderResponse, err error) {
	defer track(s.e.metrics, "sale_order_remove_item", time.Now(), &err)
	orderID, identifier = normalize(orderID), normalize(identifier)
	release, err := s.e.guard.Claim(ctx, identifier)
	if err != nil {
		return nil, err
	}
	defer release()

	err = runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		o, err := s.findTx(tx, orderID)
		if err != nil {
			return err
		}
		ref, err := s.e.resolveLineTx(tx, identifier)
		if err != nil {
			return err
		}
		qty := req.Quantity
		if qty == 0 {
			qty = ref.qty
		}
		returned, err := s.e.returnSoldTx(tx, ref.product, dto.ReturnSoldRequest{
			BoxBarcode: ref.box(), ItemBarcode: ref.item, SaleOrderID: orderID,
			Quantity: qty, Note: joinNotesValue("removed from sale order", req.Note),
		})
		if err != nil {
			return err
		}
		employee := firstNonEmpty(req.EmployeeID, o.EmployeeID)
		return s.recordEditTx(tx, o, model.EditRemoveItem, employee, fmt.Sprintf("removed %s x%d", identifier, returned))
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// UpdateNote appends a timestamped line to the order note.
func (s *saleOrderService) UpdateNote(ctx context.Context, orderID string, req dto.UpdateNoteRequest) (*dto.SaleOrderResponse, error) {
	orderID = normalize(orderID)
	note := normalize(req.Note)
	if note == "" {
		return nil, apierror.InvalidInput("note must not be empty").WithOrder(orderID)
	}
	err := runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		o, err := s.findTx(tx, orderID)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("[%s] %s", s.e.now().Format("2006-01-02 15:04:05"), note)
		if o.Note != nil && *o.Note != "" {
			line = *o.Note + "\n" + line
		}
		o.Note = &line
		return s.recordEditTx(tx, o, model.EditUpdateNotes, firstNonEmpty(req.EmployeeID, o.EmployeeID), note)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

func (s *saleOrderService) Get(ctx context.Context, orderID string) (*dto.SaleOrderResponse, error) {
	tx := readDB(ctx, s.e.db)
	o, err := s.findTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.e.repos.Sales.ListByOrderTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	resp := &dto.SaleOrderResponse{
		OrderID:      o.OrderID,
		EmployeeID:   o.EmployeeID,
		Counterparty: o.Counterparty,
		Note:         o.Note,
		EditCount:    o.EditCount,
		LastModified: o.LastModified,
		CreatedAt:    o.CreatedAt,
		EditHistory:  make([]dto.EditEntryResponse, 0, len(o.EditHistory)),
		Lines:        make([]dto.SaleLineResponse, 0, len(lines)),
	}
	for _, h := range o.EditHistory {
		resp.EditHistory = append(resp.EditHistory, dto.EditEntryResponse{
			Action: h.Action, At: h.At, EmployeeID: h.EmployeeID, Detail: h.Detail,
		})
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, dto.SaleLineResponse{
			ID:             l.ID,
			BoxBarcode:     l.BoxBarcode,
			ProductName:    l.ProductName,
			ItemBarcode:    l.ItemBarcode,
			Quantity:       l.Quantity,
			SequenceNumber: l.SequenceNumber,
			IsDirectSale:   l.IsDirectSale,
			CreatedAt:      l.CreatedAt,
		})
	}
	return resp, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (s *saleOrderService) findTx(tx *gorm.DB, orderID string) (*model.SaleOrder, error) {
	o, err := s.e.repos.Orders.FindSaleOrderTx(tx, orderID)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("sale order %s not found", orderID).WithOrder(orderID)
	}
	return o, err
}

// sellLinesTx moves every line to sales. Items on loan are converted from
// their loan; both halves of a pair go together unless split.
func (s *saleOrderService) sellLinesTx(tx *gorm.DB, orderID string, a actor, note string, lines []dto.SaleLine, splitPair bool) error {
	handled := map[string]bool{}
	for _, line := range lines {
		ref, err := s.e.resolveLineTx(tx, line.Identifier)
		if err != nil {
			return err
		}
		if ref.item != "" && handled[ref.item] {
			continue
		}
		split := splitPair
		if line.SplitPair != nil {
			split = *line.SplitPair
		}
		if ref.item == "" && ref.qty == 0 {
			return apierror.InvalidInput("bulk line for box %s needs a quantity (BOX:qty)", ref.box()).WithBox(ref.box())
		}
		if err := s.e.moveTx(tx, ref.product, dto.MoveStockRequest{
			BoxBarcode: ref.box(), ItemBarcode: ref.item, Quantity: ref.qty,
			Destination: model.DestinationSales, EmployeeID: a.employeeID, Counterparty: a.counterparty,
			Note: note, OrderID: orderID, SplitPair: split,
		}); err != nil {
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
	return nil
}

func (s *saleOrderService) recordEditTx(tx *gorm.DB, o *model.SaleOrder, action, employeeID, detail string) error {
	now := s.e.now()
	o.EditHistory = append(o.EditHistory, model.EditEntry{Action: action, At: now, EmployeeID: employeeID, Detail: detail})
	o.EditCount++
	o.LastModified = &now
	return s.e.repos.Orders.UpdateSaleOrderTx(tx, o)
}

func saleIdentifiers(lines []dto.SaleLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.Identifier
	}
	return itemIdentifiers(ids)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = normalize(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNotesValue(parts ...string) string { return deref(joinNotes(parts...)) }
