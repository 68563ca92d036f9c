package service

import (
	"strconv"
	"strings"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"

	"gorm.io/gorm"
)

// lineRef is a resolved order-line identifier: either one serialized item
// or a bulk box with an optional quantity.
type lineRef struct {
	product *model.Product
	item    string
	qty     int
}

func (r lineRef) box() string { return r.product.BoxBarcode }

// splitIdentifier parses "BOX:qty". ok is false for plain barcodes.
func splitIdentifier(id string) (box string, qty int, ok bool, err error) {
	i := strings.LastIndex(id, ":")
	if i < 0 {
		return "", 0, false, nil
	}
	box = strings.TrimSpace(id[:i])
	qty, convErr := strconv.Atoi(strings.TrimSpace(id[i+1:]))
	if box == "" || convErr != nil || qty <= 0 {
		return "", 0, true, apierror.InvalidInput("identifier %q must be BOX:quantity with a positive quantity", id)
	}
	return box, qty, true, nil
}

// resolveLineTx locks the product behind identifier. Item barcodes find their
// box through presence, then an open loan, then the sequence registry; a bare
// bulk box barcode is accepted too.
func (e *Engine) resolveLineTx(tx *gorm.DB, identifier string) (lineRef, error) {
	id := normalize(identifier)
	box, qty, isBulk, err := splitIdentifier(id)
	if err != nil {
		return lineRef{}, err
	}
	if isBulk {
		p, err := e.lockProductTx(tx, box)
		if err != nil {
			return lineRef{}, err
		}
		if p.IsSerialized() {
			return lineRef{}, apierror.InvalidInput("product %s is serialized; list item barcodes instead of a quantity", box).WithBox(box)
		}
		return lineRef{product: p, qty: qty}, nil
	}

	box, err = e.boxOfItemTx(tx, id)
	if err != nil {
		return lineRef{}, err
	}
	if box == "" {
		p, err := e.repos.Products.LockTx(tx, id)
		if err == nil && !p.IsSerialized() {
			return lineRef{product: p}, nil
		}
		if err != nil && !repository.IsNotFound(err) {
			return lineRef{}, err
		}
		return lineRef{}, apierror.NotFound("barcode %s is not known", id).WithBarcode(id)
	}
	p, err := e.lockProductTx(tx, box)
	if err != nil {
		return lineRef{}, err
	}
	return lineRef{product: p, item: id, qty: 1}, nil
}

func (e *Engine) boxOfItemTx(tx *gorm.DB, item string) (string, error) {
	pres, err := e.repos.Presence.FindTx(tx, item)
	if err == nil {
		return pres.BoxBarcode, nil
	}
	if !repository.IsNotFound(err) {
		return "", err
	}
	loan, err := e.repos.Loans.FindOpenByItemTx(tx, item)
	if err == nil {
		return loan.BoxBarcode, nil
	}
	if !repository.IsNotFound(err) {
		return "", err
	}
	seq, err := e.repos.Sequences.FindByItemTx(tx, item)
	if err == nil {
		return seq.BoxBarcode, nil
	}
	if !repository.IsNotFound(err) {
		return "", err
	}
	return "", nil
}

// itemIdentifiers returns the identifiers that name single items, for claiming.
func itemIdentifiers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = normalize(id)
		if !strings.Contains(id, ":") {
			out = append(out, id)
		}
	}
	return out
}
