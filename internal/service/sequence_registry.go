package service

import (
	"context"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/pairing"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"gorm.io/gorm"
)

// SequenceRegistry hands out per-box sequence numbers and answers sibling
// lookups. Items added together (both halves of a pair) share one number.
type SequenceRegistry struct {
	sequences repository.SequenceRepository
	avail     *Availability
	now       Clock
}

func NewSequenceRegistry(sequences repository.SequenceRepository, avail *Availability, now Clock) *SequenceRegistry {
	return &SequenceRegistry{sequences: sequences, avail: avail, now: now}
}

// NextTx returns highest assigned + 1, starting at 1.
func (r *SequenceRegistry) NextTx(tx *gorm.DB, box string) (int, error) {
	highest, err := r.sequences.HighestTx(tx, box)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// AssignTx persists a new row with number n. item may be empty.
func (r *SequenceRegistry) AssignTx(tx *gorm.DB, p *model.Product, item string, n int) (*model.SequenceAssignment, error) {
	a := &model.SequenceAssignment{
		BoxBarcode:     p.BoxBarcode,
		ProductName:    p.Name,
		ItemBarcode:    strPtr(item),
		SequenceNumber: n,
		UpdatedAt:      r.now(),
	}
	if err := r.sequences.CreateTx(tx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SequenceOfTx returns nil when the item was never assigned a number.
func (r *SequenceRegistry) SequenceOfTx(tx *gorm.DB, item string) (*int, error) {
	a, err := r.sequences.FindByItemTx(tx, item)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return intPtr(a.SequenceNumber), nil
}

// ItemsWithSequenceTx lists the item barcodes sharing number n under box.
func (r *SequenceRegistry) ItemsWithSequenceTx(tx *gorm.DB, box string, n int) ([]string, error) {
	rows, err := r.sequences.ListByNumberTx(tx, box, n)
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ItemBarcode != nil {
			items = append(items, *row.ItemBarcode)
		}
	}
	return items, nil
}

// SiblingsTx returns the other items sharing item's sequence number in box.
func (r *SequenceRegistry) SiblingsTx(tx *gorm.DB, box, item string) ([]string, error) {
	a, err := r.sequences.FindByItemTx(tx, item)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.BoxBarcode != box {
		return nil, nil
	}
	all, err := r.ItemsWithSequenceTx(tx, box, a.SequenceNumber)
	if err != nil {
		return nil, err
	}
	siblings := all[:0]
	for _, b := range all {
		if b != item {
			siblings = append(siblings, b)
		}
	}
	return siblings, nil
}

// addOptions tune how resolveForAddTx picks a number.
type addOptions struct {
	forcedSeq     *int // share this number (second half of a pair, recombine)
	skipPairCheck bool
}

// resolveForAddTx returns the sequence number item is added under, creating
// the assignment when needed:
//   - a partner reserved under the same box is adopted with its number
//   - a recycled barcode must be available; its stale assignment is dropped
//   - for paired products, a barcode that looks paired with one already
//     claimed in the box is rejected (catches duplicate or mistyped entries)
func (r *SequenceRegistry) resolveForAddTx(tx *gorm.DB, p *model.Product, item string, opts addOptions) (int, error) {
	reserved, err := r.avail.reservedInBoxTx(tx, p.BoxBarcode, item)
	if err != nil {
		return 0, err
	}
	if reserved != nil && (opts.forcedSeq == nil || *opts.forcedSeq == reserved.SequenceNumber) {
		return reserved.SequenceNumber, nil
	}

	existing, err := r.sequences.FindByItemTx(tx, item)
	switch {
	case err == nil:
		if reserved == nil {
			ok, err := r.avail.LedgerAvailableTx(tx, item)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, apierror.InvalidInput("barcode %s is not available (sequence %d under box %s)",
					item, existing.SequenceNumber, existing.BoxBarcode).WithBarcode(item).WithBox(p.BoxBarcode)
			}
		}
		if err := r.sequences.DeleteByItemTx(tx, item); err != nil {
			return 0, err
		}
	case !repository.IsNotFound(err):
		return 0, err
	}

	if p.IsPaired() && opts.forcedSeq == nil && !opts.skipPairCheck {
		if err := r.checkPairConflictTx(tx, p, item); err != nil {
			return 0, err
		}
	}

	n := 0
	if opts.forcedSeq != nil {
		n = *opts.forcedSeq
	} else if n, err = r.NextTx(tx, p.BoxBarcode); err != nil {
		return 0, err
	}
	if _, err := r.AssignTx(tx, p, item, n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *SequenceRegistry) checkPairConflictTx(tx *gorm.DB, p *model.Product, item string) error {
	rows, err := r.sequences.ListByBoxTx(tx, p.BoxBarcode)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ItemBarcode == nil || *row.ItemBarcode == item || !pairing.IsPair(item, *row.ItemBarcode) {
			continue
		}
		free, err := r.avail.LedgerAvailableTx(tx, *row.ItemBarcode)
		if err != nil {
			return err
		}
		if !free {
			return apierror.InvalidInput("barcode %s looks paired with %s already registered under box %s; add both halves together",
				item, *row.ItemBarcode, p.BoxBarcode).WithBarcode(item).WithBox(p.BoxBarcode)
		}
	}
	return nil
}

// reserveTx records a computed half-pair partner: an assignment with no
// presence and no ledger history, adoptable by a later add.
func (r *SequenceRegistry) reserveTx(tx *gorm.DB, p *model.Product, item string, n int) error {
	_, err := r.sequences.FindByItemTx(tx, item)
	if err == nil {
		return nil
	}
	if !repository.IsNotFound(err) {
		return err
	}
	_, err = r.AssignTx(tx, p, item, n)
	return err
}

// ── Read API ──────────────────────────────────────────────────────────────────

// Describe reports highest/next for box and, when n > 0, the items under n.
func (r *SequenceRegistry) Describe(ctx context.Context, db *gorm.DB, box string, n int) (*dto.SequenceResponse, error) {
	tx := readDB(ctx, db)
	highest, err := r.sequences.HighestTx(tx, box)
	if err != nil {
		return nil, err
	}
	resp := &dto.SequenceResponse{BoxBarcode: box, Highest: highest, Next: highest + 1}
	if n > 0 {
		if resp.Items, err = r.ItemsWithSequenceTx(tx, box, n); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
