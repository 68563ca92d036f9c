package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/infra"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ClaimGuard keeps the set of barcodes currently being processed by this
// instance and, when a lease backend is configured, mirrors every claim as a
// short-TTL distributed lease so other instances see it too.
//
// The mutex is held only while the set is checked and mutated. Membership
// itself lasts until the release func runs, which callers defer.
type ClaimGuard struct {
	mu         sync.Mutex
	processing map[string]struct{}

	leases  infra.LeaseBackend
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewClaimGuard builds a guard. leases may be nil for single-instance deployments.
func NewClaimGuard(leases infra.LeaseBackend, ttl time.Duration, m *metrics.Metrics) *ClaimGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ClaimGuard{
		processing: make(map[string]struct{}),
		leases:     leases,
		ttl:        ttl,
		metrics:    m,
	}
}

// CheckFunc reports whether a barcode may be claimed.
type CheckFunc func(barcode string) (bool, error)

// ClaimAvailable runs the batch claim protocol: every barcode is checked with
// check before anything is locked, and one unavailable barcode fails the
// whole batch. Survivors are then claimed together.
func (g *ClaimGuard) ClaimAvailable(ctx context.Context, barcodes []string, check CheckFunc) (func(), error) {
	for _, b := range barcodes {
		ok, err := check(b)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apierror.InvalidInput("barcode %s is not available", b).WithBarcode(b)
		}
	}
	return g.Claim(ctx, barcodes...)
}

// Claim marks every barcode as in flight, atomically: either all of them are
// claimed or none is. The returned func releases them and is safe to call
// more than once.
func (g *ClaimGuard) Claim(ctx context.Context, barcodes ...string) (func(), error) {
	keys := dedupe(barcodes)
	if len(keys) == 0 {
		return func() {}, nil
	}

	g.mu.Lock()
	for _, k := range keys {
		if _, busy := g.processing[k]; busy {
			g.mu.Unlock()
			g.metrics.RecordClaimConflict()
			log.Warn().Str("barcode", k).Msg("claim: barcode already in flight")
			return nil, apierror.Conflict("barcode %s is being processed by another request", k).WithBarcode(k)
		}
	}
	for _, k := range keys {
		g.processing[k] = struct{}{}
	}
	g.mu.Unlock()

	held, err := g.acquireLeases(ctx, keys)
	if err != nil {
		g.forget(keys)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.releaseLeases(held)
			g.forget(keys)
		})
	}, nil
}

// InFlight reports whether barcode is currently claimed on this instance.
func (g *ClaimGuard) InFlight(barcode string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.processing[barcode]
	return ok
}

func (g *ClaimGuard) forget(keys []string) {
	g.mu.Lock()
	for _, k := range keys {
		delete(g.processing, k)
	}
	g.mu.Unlock()
}

func (g *ClaimGuard) acquireLeases(ctx context.Context, keys []string) ([]infra.Lease, error) {
	if g.leases == nil {
		return nil, nil
	}
	held := make([]infra.Lease, 0, len(keys))
	for _, k := range keys {
		lease, err := g.leases.Acquire(ctx, k, g.ttl)
		switch {
		case err == nil:
			held = append(held, lease)
		case errors.Is(err, infra.ErrLeaseHeld):
			g.releaseLeases(held)
			g.metrics.RecordClaimConflict()
			log.Warn().Str("barcode", k).Msg("claim: lease held by another instance")
			return nil, apierror.Conflict("barcode %s is being processed by another instance", k).WithBarcode(k)
		default:
			// backend down: the serializable transaction still guards correctness
			g.metrics.RecordLeaseFallback()
			log.Warn().Err(err).Str("barcode", k).Msg("claim: lease backend unavailable, continuing with local claim")
		}
	}
	return held, nil
}

func (g *ClaimGuard) releaseLeases(held []infra.Lease) {
	if len(held) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, l := range held {
		if err := l.Release(ctx); err != nil {
			log.Debug().Err(err).Msg("claim: lease release failed, TTL will expire it")
		}
	}
}

// dedupe drops empties and duplicates and sorts so multi-barcode claims
// always acquire leases in the same order.
func dedupe(barcodes []string) []string {
	seen := make(map[string]struct{}, len(barcodes))
	out := make([]string, 0, len(barcodes))
	for _, b := range barcodes {
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
