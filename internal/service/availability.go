package service

import (
	"context"

	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"gorm.io/gorm"
)

// Availability decides whether a barcode may be claimed by a new add.
type Availability struct {
	ledger    repository.LedgerRepository
	presence  repository.PresenceRepository
	sequences repository.SequenceRepository
}

func NewAvailability(ledger repository.LedgerRepository, presence repository.PresenceRepository, sequences repository.SequenceRepository) *Availability {
	return &Availability{ledger: ledger, presence: presence, sequences: sequences}
}

// lastOperationTx reads the item's current state row, falling back to the
// ledger when no state has been recorded for it.
func (a *Availability) lastOperationTx(tx *gorm.DB, item string) (model.Operation, bool, error) {
	st, err := a.ledger.FindStateTx(tx, item)
	if err == nil {
		return st.LastOperation, true, nil
	}
	if !repository.IsNotFound(err) {
		return "", false, err
	}
	last, err := a.ledger.LatestForItemTx(tx, item)
	if repository.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return last.Operation, true, nil
}

// LedgerAvailableTx evaluates the history rules, in order:
//  1. a sequence assignment without any ledger entry is not available
//  2. no ledger entry at all is available
//  3. latest add is not available
//  4. latest remove, sold, moved_from_lent_to_sales, returned, broken is available
//  5. anything else is not available
func (a *Availability) LedgerAvailableTx(tx *gorm.DB, item string) (bool, error) {
	op, found, err := a.lastOperationTx(tx, item)
	if err != nil {
		return false, err
	}
	if !found {
		_, err := a.sequences.FindByItemTx(tx, item)
		if err == nil {
			return false, nil
		}
		if !repository.IsNotFound(err) {
			return false, err
		}
		return true, nil
	}
	if op == model.OpAdd {
		return false, nil
	}
	return op.Reusable(), nil
}

// IsAvailableTx short-circuits on presence: an item on the shelf is never
// claimable by a new add, whatever its history says.
func (a *Availability) IsAvailableTx(tx *gorm.DB, item string) (bool, error) {
	present, err := a.isPresentTx(tx, item)
	if err != nil || present {
		return false, err
	}
	return a.LedgerAvailableTx(tx, item)
}

// addableTx is IsAvailableTx plus one exception: a partner reserved by a
// half-pair bulk add under the same box may be added to complete the pair.
func (a *Availability) addableTx(tx *gorm.DB, box, item string) (bool, error) {
	present, err := a.isPresentTx(tx, item)
	if err != nil || present {
		return false, err
	}
	reserved, err := a.reservedInBoxTx(tx, box, item)
	if err != nil {
		return false, err
	}
	if reserved != nil {
		return true, nil
	}
	return a.LedgerAvailableTx(tx, item)
}

// reservedInBoxTx returns the item's assignment when it was reserved under
// box and never added (no ledger history).
func (a *Availability) reservedInBoxTx(tx *gorm.DB, box, item string) (*model.SequenceAssignment, error) {
	seq, err := a.sequences.FindByItemTx(tx, item)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if seq.BoxBarcode != box {
		return nil, nil
	}
	_, found, err := a.lastOperationTx(tx, item)
	if err != nil || found {
		return nil, err
	}
	return seq, nil
}

func (a *Availability) isPresentTx(tx *gorm.DB, item string) (bool, error) {
	_, err := a.presence.FindTx(tx, item)
	if err == nil {
		return true, nil
	}
	if repository.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Describe reports every input of the decision for one barcode.
func (a *Availability) Describe(ctx context.Context, db *gorm.DB, item string) (*dto.AvailabilityResponse, error) {
	tx := readDB(ctx, db)
	resp := &dto.AvailabilityResponse{ItemBarcode: item}

	present, err := a.isPresentTx(tx, item)
	if err != nil {
		return nil, err
	}
	ledgerOK, err := a.LedgerAvailableTx(tx, item)
	if err != nil {
		return nil, err
	}
	op, _, err := a.lastOperationTx(tx, item)
	if err != nil {
		return nil, err
	}
	if seq, err := a.sequences.FindByItemTx(tx, item); err == nil {
		resp.SequenceNumber = intPtr(seq.SequenceNumber)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	resp.InStock = present
	resp.LedgerAvailable = ledgerOK
	resp.Available = !present && ledgerOK
	resp.LastOperation = op
	return resp, nil
}
