package service

import (
	"context"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/infra"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CatalogService defines the business logic contract for catalog entries.
type CatalogService interface {
	Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	Get(ctx context.Context, box string) (*dto.ProductResponse, error)
	List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error)
	Update(ctx context.Context, box string, req dto.UpdateProductRequest) (*dto.ProductResponse, error)
}

type catalogService struct {
	e     *Engine
	cache *infra.JSONCache
}

// NewCatalogService builds the catalog service. cache may be nil.
func NewCatalogService(e *Engine, cache *infra.JSONCache) CatalogService {
	return &catalogService{e: e, cache: cache}
}

func (s *catalogService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	box := normalize(req.BoxBarcode)
	if _, err := s.e.repos.Products.FindByBox(ctx, box); err == nil {
		return nil, apierror.InvalidInput("product %s already exists", box).WithBox(box)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}
	if req.SerialCount < 0 || req.SerialCount > 2 {
		return nil, apierror.InvalidInput("serial count must be 0, 1 or 2").WithBox(box)
	}

	now := s.e.now()
	p := &model.Product{
		BoxBarcode:  box,
		Name:        normalize(req.Name),
		SerialCount: req.SerialCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.e.repos.Products.Create(ctx, p); err != nil {
		return nil, translateStoreErr(err)
	}
	// open the aggregate row at zero
	err := runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		locked, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		_, err = s.e.syncTx(tx, locked)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("box", box).Int("serial_count", p.SerialCount).Msg("catalog entry created")
	return toProductResponse(p), nil
}

func (s *catalogService) Get(ctx context.Context, box string) (*dto.ProductResponse, error) {
	box = normalize(box)
	var cached dto.ProductResponse
	if s.cache.Get(ctx, box, &cached) {
		return &cached, nil
	}
	p, err := s.e.repos.Products.FindByBox(ctx, box)
	if repository.IsNotFound(err) {
		return nil, apierror.NotFound("product %s not found", box).WithBox(box)
	}
	if err != nil {
		return nil, err
	}
	resp := toProductResponse(p)
	if err := s.cache.Set(ctx, box, resp); err != nil {
		log.Debug().Err(err).Str("box", box).Msg("catalog cache write failed")
	}
	return resp, nil
}

func (s *catalogService) List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error) {
	rows, total, err := s.e.repos.Products.List(ctx, repository.ProductFilter{
		Name:        normalize(filter.Name),
		SerialCount: filter.SerialCount,
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
	resp := &dto.ProductListResponse{Data: make([]dto.ProductResponse, 0, len(rows)), Total: total, Page: page, Limit: limit}
	for i := range rows {
		resp.Data = append(resp.Data, *toProductResponse(&rows[i]))
	}
	return resp, nil
}

// Update renames a product or changes its serial count. The serial count is
// fixed once the box has stock or sequence history.
func (s *catalogService) Update(ctx context.Context, box string, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	box = normalize(box)
	var out *model.Product
	err := runTx(ctx, s.e.db, func(tx *gorm.DB) error {
		p, err := s.e.lockProductTx(tx, box)
		if err != nil {
			return err
		}
		if req.SerialCount != nil && *req.SerialCount != p.SerialCount {
			used, err := s.inUseTx(tx, p)
			if err != nil {
				return err
			}
			if used {
				return apierror.InvalidInput("serial count of %s cannot change once it has stock history", box).WithBox(box)
			}
			p.SerialCount = *req.SerialCount
		}
		if req.Name != nil && normalize(*req.Name) != p.Name {
			newName := normalize(*req.Name)
			if err := s.e.repos.Aggregates.RenameTx(tx, box, p.Name, newName); err != nil {
				return err
			}
			p.Name = newName
		}
		p.UpdatedAt = s.e.now()
		if err := s.e.repos.Products.UpdateTx(tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, box); err != nil {
		log.Warn().Err(err).Str("box", box).Msg("catalog cache invalidation failed")
	}
	return toProductResponse(out), nil
}

func (s *catalogService) inUseTx(tx *gorm.DB, p *model.Product) (bool, error) {
	highest, err := s.e.repos.Sequences.HighestTx(tx, p.BoxBarcode)
	if err != nil || highest > 0 {
		return highest > 0, err
	}
	agg, err := s.e.loadAggregateTx(tx, p)
	if err != nil {
		return false, err
	}
	return agg.Quantity > 0, nil
}

func toProductResponse(p *model.Product) *dto.ProductResponse {
	return &dto.ProductResponse{
		BoxBarcode:  p.BoxBarcode,
		Name:        p.Name,
		SerialCount: p.SerialCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

