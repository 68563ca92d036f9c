package service

import (
	"context"
	"strings"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"
)

// LedgerService answers read-only questions about barcodes: history,
// availability and sequence numbers.
type LedgerService interface {
	History(ctx context.Context, item string) ([]dto.LedgerEntryResponse, error)
	List(ctx context.Context, filter dto.LedgerFilter) (*dto.LedgerListResponse, error)
	Availability(ctx context.Context, item string) (*dto.AvailabilityResponse, error)
	Sequence(ctx context.Context, box string, n int) (*dto.SequenceResponse, error)
}

type ledgerService struct {
	e *Engine
}

func NewLedgerService(e *Engine) LedgerService {
	return &ledgerService{e: e}
}

func (s *ledgerService) History(ctx context.Context, item string) ([]dto.LedgerEntryResponse, error) {
	item = normalize(item)
	rows, err := s.e.repos.Ledger.History(ctx, item)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierror.NotFound("barcode %s has no history", item).WithBarcode(item)
	}
	return toLedgerResponses(rows), nil
}

func (s *ledgerService) List(ctx context.Context, filter dto.LedgerFilter) (*dto.LedgerListResponse, error) {
	if filter.Operation != "" && !knownOperation(model.Operation(filter.Operation)) {
		return nil, apierror.InvalidInput("unknown operation %q", filter.Operation)
	}
	rows, total, err := s.e.repos.Ledger.List(ctx, repository.LedgerFilter{
		BoxBarcode:  normalize(filter.BoxBarcode),
		ItemBarcode: normalize(filter.ItemBarcode),
		Operation:   strings.ToLower(filter.Operation),
		OrderID:     normalize(filter.OrderID),
		From:        filter.From,
		To:          filter.To,
		Page:        filter.Page,
		Limit:       filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	_, limit := repository.Page(filter.Page, filter.Limit)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return &dto.LedgerListResponse{Data: toLedgerResponses(rows), Total: total, Page: page, Limit: limit}, nil
}

// Availability combines the stored decision inputs with this instance's
// in-flight claims.
func (s *ledgerService) Availability(ctx context.Context, item string) (*dto.AvailabilityResponse, error) {
	item = normalize(item)
	if item == "" {
		return nil, apierror.InvalidInput("barcode is required")
	}
	resp, err := s.e.avail.Describe(ctx, s.e.db, item)
	if err != nil {
		return nil, err
	}
	resp.InFlight = s.e.guard.InFlight(item)
	return resp, nil
}

func (s *ledgerService) Sequence(ctx context.Context, box string, n int) (*dto.SequenceResponse, error) {
	box = normalize(box)
	if _, err := s.e.repos.Products.FindByBox(ctx, box); repository.IsNotFound(err) {
		return nil, apierror.NotFound("product %s not found", box).WithBox(box)
	} else if err != nil {
		return nil, err
	}
	return s.e.seq.Describe(ctx, s.e.db, box, n)
}

func knownOperation(op model.Operation) bool {
	switch op {
	case model.OpAdd, model.OpRemove, model.OpSold, model.OpLent, model.OpReturned,
		model.OpBroken, model.OpMovedFromLentToSales, model.OpReturnFromSales:
		return true
	}
	return false
}

func toLedgerResponses(rows []model.LedgerEntry) []dto.LedgerEntryResponse {
	out := make([]dto.LedgerEntryResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.LedgerEntryResponse{
			ID:             r.ID,
			BoxBarcode:     r.BoxBarcode,
			ProductName:    r.ProductName,
			ItemBarcode:    r.ItemBarcode,
			Operation:      r.Operation,
			Quantity:       r.Quantity,
			OccurredAt:     r.OccurredAt,
			OrderID:        r.OrderID,
			SequenceNumber: r.SequenceNumber,
			Note:           r.Note,
		})
	}
	return out
}
