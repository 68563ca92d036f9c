package service

import (
	"context"
	"strings"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// BreakageOrderService writes off damaged stock.
type BreakageOrderService interface {
	CreateBreakageOrder(ctx context.Context, req dto.CreateBreakageOrderRequest) (*dto.BreakageOrderResponse, error)
	Get(ctx context.Context, orderID string) (*dto.BreakageOrderResponse, error)
}

type breakageOrderService struct {
	e *Engine
}

func NewBreakageOrderService(e *Engine) BreakageOrderService {
	return &breakageOrderService{e: e}
}

// CreateBreakageOrder moves every line to broken in one transaction. Items
// out on loan are returned and written off. Only the listed halves of a pair
// are broken.
func (s *breakageOrderService) CreateBreakageOrder(ctx context.Context, req dto.CreateBreakageOrderRequest) (resp *dto.BreakageOrderResponse, err error) {
	defer track(s.e.metrics, "create_breakage_order", time.Now(), &err)
	orderID := normalize(req.OrderID)
	if orderID == "" {
		orderID = "BRK-" + strings.ToUpper(uuid.NewString()[:8])
	}
	a := actor{employeeID: normalize(req.EmployeeID)}
	if a.employeeID == "" {
		return nil, apierror.InvalidInput("employee id is required").WithOrder(orderID)
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
		if _, err := s.e.repos.Orders.FindBreakageOrderTx(tx, orderID); err == nil {
			return apierror.InvalidInput("breakage order %s already exists", orderID).WithOrder(orderID)
		} else if !repository.IsNotFound(err) {
			return err
		}
		if _, err := s.e.ensureBreakageOrderTx(tx, orderID, a, strPtr(req.Note)); err != nil {
			return err
		}
		handled := map[string]bool{}
		for _, line := range req.Lines {
			ref, err := s.e.resolveLineTx(tx, line.Identifier)
			if err != nil {
				return err
			}
			if ref.item == "" && ref.qty == 0 {
				return apierror.InvalidInput("bulk line for box %s needs a quantity (BOX:qty)", ref.box()).WithBox(ref.box())
			}
			if ref.item != "" {
				if handled[ref.item] {
					return apierror.InvalidInput("item %s is listed twice", ref.item).WithBarcode(ref.item).WithOrder(orderID)
				}
				handled[ref.item] = true
			}
			if err := s.e.moveTx(tx, ref.product, dto.MoveStockRequest{
				BoxBarcode: ref.box(), ItemBarcode: ref.item, Quantity: ref.qty,
				Destination: model.DestinationBroken, EmployeeID: a.employeeID,
				Condition: firstNonEmpty(line.Condition, req.Condition), Note: req.Note,
				OrderID: orderID, SplitPair: true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("order_id", orderID).Int("lines", len(req.Lines)).Msg("breakage order created")
	return s.Get(ctx, orderID)
}

func (s *breakageOrderService) Get(ctx context.Context, orderID string) (*dto.BreakageOrderResponse, error) {
	tx := readDB(ctx, s.e.db)
	o, err := s.e.repos.Orders.FindBreakageOrderTx(tx, orderID)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("breakage order %s not found", orderID).WithOrder(orderID)
	}
	if err != nil {
		return nil, err
	}
	lines, err := s.e.repos.Breakages.ListByOrderTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	resp := &dto.BreakageOrderResponse{
		OrderID:    o.OrderID,
		EmployeeID: o.EmployeeID,
		Note:       o.Note,
		CreatedAt:  o.CreatedAt,
		Lines:      make([]dto.BreakageLineResponse, 0, len(lines)),
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, dto.BreakageLineResponse{
			ID:             l.ID,
			BoxBarcode:     l.BoxBarcode,
			ProductName:    l.ProductName,
			ItemBarcode:    l.ItemBarcode,
			Quantity:       l.Quantity,
			Condition:      l.Condition,
			SequenceNumber: l.SequenceNumber,
			CreatedAt:      l.CreatedAt,
		})
	}
	return resp, nil
}
