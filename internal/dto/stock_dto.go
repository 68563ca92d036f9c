package dto

import (
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/model"
)

// AddStockRequest adds one serialized item or a bulk quantity. Quantity
// defaults to 1 when omitted for serialized products.
type AddStockRequest struct {
	BoxBarcode  string `json:"box_barcode" validate:"required"`
	ItemBarcode string `json:"item_barcode"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	Note        string `json:"note" validate:"max=500"`
	OrderID     string `json:"order_id"`
}

// BulkAddRequest adds many serialized items in one all-or-nothing batch.
// For bulk products ItemBarcodes is empty and Quantity is used.
type BulkAddRequest struct {
	BoxBarcode   string   `json:"box_barcode" validate:"required"`
	ItemBarcodes []string `json:"item_barcodes" validate:"dive,required"`
	Quantity     int      `json:"quantity" validate:"min=0"`
	Note         string   `json:"note" validate:"max=500"`
}

type RemoveStockRequest struct {
	BoxBarcode  string `json:"box_barcode" validate:"required"`
	ItemBarcode string `json:"item_barcode"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	Note        string `json:"note" validate:"max=500"`
}

type BulkRemoveRequest struct {
	BoxBarcode   string   `json:"box_barcode" validate:"required"`
	ItemBarcodes []string `json:"item_barcodes" validate:"required,min=1,dive,required"`
	Note         string   `json:"note" validate:"max=500"`
}

// MoveStockRequest is the single options structure for every outbound
// movement. Zero values are the documented defaults:
//   - Quantity: 1 for serialized products, required for bulk.
//   - SplitPair false: both halves of a pair move together.
//   - IsDirectSale nil: true for direct sales, false for loan conversions.
//   - LoanOrderID: selects the open bulk loan line to convert.
type MoveStockRequest struct {
	BoxBarcode   string            `json:"box_barcode" validate:"required"`
	ItemBarcode  string            `json:"item_barcode"`
	Quantity     int               `json:"quantity" validate:"min=0"`
	Destination  model.Destination `json:"destination" validate:"required"`
	EmployeeID   string            `json:"employee_id"`
	Counterparty string            `json:"counterparty"`
	Condition    string            `json:"condition"`
	Note         string            `json:"note" validate:"max=500"`
	OrderID      string            `json:"order_id"`
	LoanOrderID  string            `json:"loan_order_id"`
	SplitPair    bool              `json:"split_pair"`
	IsDirectSale *bool             `json:"is_direct_sale"`
}

type ReturnLentRequest struct {
	BoxBarcode  string `json:"box_barcode" validate:"required"`
	ItemBarcode string `json:"item_barcode"`
	Note        string `json:"note" validate:"max=500"`
	LoanOrderID string `json:"loan_order_id"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	SplitPair   bool   `json:"split_pair"`
}

type ReturnSoldRequest struct {
	BoxBarcode  string `json:"box_barcode" validate:"required"`
	ItemBarcode string `json:"item_barcode"`
	SaleOrderID string `json:"sale_order_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	Note        string `json:"note" validate:"max=500"`
}

type RecombineRequest struct {
	TargetBox string `json:"target_box" validate:"required"`
	Item1     string `json:"item1" validate:"required"`
	Item2     string `json:"item2" validate:"required,nefield=Item1"`
	Note      string `json:"note" validate:"max=500"`
}

// StockSnapshot is the aggregate row after an operation.
type StockSnapshot struct {
	BoxBarcode     string    `json:"box_barcode"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	SequenceNumber int       `json:"sequence_number"`
	LastUpdated    time.Time `json:"last_updated"`
}

type PresenceResponse struct {
	ItemBarcode    string    `json:"item_barcode"`
	BoxBarcode     string    `json:"box_barcode"`
	ProductName    string    `json:"product_name"`
	SequenceNumber *int      `json:"sequence_number,omitempty"`
	AddedAt        time.Time `json:"added_at"`
}

type AvailabilityResponse struct {
	ItemBarcode     string          `json:"item_barcode"`
	Available       bool            `json:"available"`
	InStock         bool            `json:"in_stock"`
	LedgerAvailable bool            `json:"ledger_available"`
	InFlight        bool            `json:"in_flight"`
	LastOperation   model.Operation `json:"last_operation,omitempty"`
	SequenceNumber  *int            `json:"sequence_number,omitempty"`
}

type LedgerFilter struct {
	BoxBarcode  string     `form:"box_barcode"`
	ItemBarcode string     `form:"item_barcode"`
	Operation   string     `form:"operation"`
	OrderID     string     `form:"order_id"`
	From        *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To          *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page        int        `form:"page"`
	Limit       int        `form:"limit"`
}

type LedgerEntryResponse struct {
	ID             int64           `json:"id"`
	BoxBarcode     string          `json:"box_barcode"`
	ProductName    string          `json:"product_name"`
	ItemBarcode    *string         `json:"item_barcode,omitempty"`
	Operation      model.Operation `json:"operation"`
	Quantity       int             `json:"quantity"`
	OccurredAt     time.Time       `json:"occurred_at"`
	OrderID        *string         `json:"order_id,omitempty"`
	SequenceNumber *int            `json:"sequence_number,omitempty"`
	Note           *string         `json:"note,omitempty"`
}

type LedgerListResponse struct {
	Data  []LedgerEntryResponse `json:"data"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

type SequenceResponse struct {
	BoxBarcode string   `json:"box_barcode"`
	Highest    int      `json:"highest"`
	Next       int      `json:"next"`
	Items      []string `json:"items,omitempty"`
}

// ReconcileReport summarizes one aggregate reconcile pass.
type ReconcileReport struct {
	Checked int      `json:"checked"`
	Synced  int      `json:"synced"`
	Drift   []string `json:"drift,omitempty"`
}
