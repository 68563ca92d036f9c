package model

// Operation is the kind of event recorded in the ledger.
type Operation string

const (
	OpAdd                  Operation = "add"
	OpRemove               Operation = "remove"
	OpSold                 Operation = "sold"
	OpLent                 Operation = "lent"
	OpReturned             Operation = "returned"
	OpBroken               Operation = "broken"
	OpMovedFromLentToSales Operation = "moved_from_lent_to_sales"
	OpReturnFromSales      Operation = "return_from_sales"
)

// Reusable reports whether a barcode whose latest entry is op may be claimed
// again by a new add.
func (op Operation) Reusable() bool {
	switch op {
	case OpRemove, OpSold, OpMovedFromLentToSales, OpReturned, OpBroken:
		return true
	}
	return false
}

// Inbound reports whether op adds quantity to aggregate stock.
func (op Operation) Inbound() bool {
	switch op {
	case OpAdd, OpReturned, OpReturnFromSales:
		return true
	}
	return false
}

// Outbound reports whether op removes quantity from aggregate stock.
// Loan-to-sale conversions are neither: the quantity already left on loan.
func (op Operation) Outbound() bool {
	switch op {
	case OpRemove, OpSold, OpLent, OpBroken:
		return true
	}
	return false
}

// ItemLifecycle is the explicit current state of one serialized item.
type ItemLifecycle string

const (
	StateInStock ItemLifecycle = "in_stock"
	StateLent    ItemLifecycle = "lent"
	StateSold    ItemLifecycle = "sold"
	StateBroken  ItemLifecycle = "broken"
	StateRemoved ItemLifecycle = "removed"
)

// StateAfter returns the lifecycle state an item is in right after op.
func StateAfter(op Operation) ItemLifecycle {
	switch op {
	case OpAdd, OpReturned, OpReturnFromSales:
		return StateInStock
	case OpLent:
		return StateLent
	case OpSold, OpMovedFromLentToSales:
		return StateSold
	case OpBroken:
		return StateBroken
	default:
		return StateRemoved
	}
}
