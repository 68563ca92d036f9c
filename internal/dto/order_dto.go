package dto

import "time"

// Line identifiers are either an item barcode (serialized) or "BOX:qty"
// (bulk). Batch lines also accept a bare "BOX" when a split map is given.

// OrderLine is one line of a new loan order. Destination is "lent"
// (default), "sales" or "return".
type OrderLine struct {
	Identifier  string `json:"identifier" validate:"required"`
	Destination string `json:"destination" validate:"omitempty,oneof=lent sales return"`
	SplitPair   *bool  `json:"split_pair"`
}

type CreateLoanOrderRequest struct {
	OrderID      string      `json:"order_id" validate:"required,max=64"`
	EmployeeID   string      `json:"employee_id"`
	Counterparty string      `json:"counterparty" validate:"required"`
	Note         string      `json:"note" validate:"max=500"`
	SplitPair    bool        `json:"split_pair"`
	Lines        []OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// BatchLine is one line of a batch over an existing loan order. Destination
// is "return", "sales", "broken" or "lent" (leave as is). Split spreads a
// bulk line across several destinations, e.g. {"return":2,"sales":3}.
type BatchLine struct {
	Identifier  string         `json:"identifier" validate:"required"`
	Destination string         `json:"destination" validate:"omitempty,oneof=lent return sales broken"`
	Quantity    int            `json:"quantity" validate:"min=0"`
	Split       map[string]int `json:"split" validate:"omitempty,dive,keys,oneof=return sales broken,endkeys,min=0"`
	SplitPair   *bool          `json:"split_pair"`
	Condition   string         `json:"condition"`
}

type BatchRequest struct {
	EmployeeID   string      `json:"employee_id"`
	Counterparty string      `json:"counterparty"`
	Note         string      `json:"note" validate:"max=500"`
	SalesOrderID string      `json:"sales_order_id"`
	Lines        []BatchLine `json:"lines" validate:"required,min=1,dive"`
}

// LineOutcome reports what happened to one batch line.
type LineOutcome struct {
	Identifier  string `json:"identifier"`
	Destination string `json:"destination"`
	Quantity    int    `json:"quantity"`
	Kind        string `json:"kind,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type BatchResult struct {
	OrderID   string        `json:"order_id"`
	Status    string        `json:"status"`
	Processed []LineOutcome `json:"processed"`
	Failed    []LineOutcome `json:"failed"`
}

type LoanLineResponse struct {
	ID             int64     `json:"id"`
	BoxBarcode     string    `json:"box_barcode"`
	ProductName    string    `json:"product_name"`
	ItemBarcode    *string   `json:"item_barcode,omitempty"`
	Quantity       int       `json:"quantity"`
	Status         string    `json:"status"`
	SequenceNumber *int      `json:"sequence_number,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type LoanOrderResponse struct {
	OrderID      string             `json:"order_id"`
	EmployeeID   string             `json:"employee_id"`
	Counterparty string             `json:"counterparty"`
	Note         *string            `json:"note,omitempty"`
	Status       string             `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	Lines        []LoanLineResponse `json:"lines"`
}

// SaleLine is one line of a sale order: an item barcode or "BOX:qty".
type SaleLine struct {
	Identifier string `json:"identifier" validate:"required"`
	SplitPair  *bool  `json:"split_pair"`
}

type CreateSaleOrderRequest struct {
	OrderID      string     `json:"order_id" validate:"required,max=64"`
	EmployeeID   string     `json:"employee_id"`
	Counterparty string     `json:"counterparty"`
	Note         string     `json:"note" validate:"max=500"`
	SplitPair    bool       `json:"split_pair"`
	Lines        []SaleLine `json:"lines" validate:"required,min=1,dive"`
}

type AddSaleItemsRequest struct {
	EmployeeID string     `json:"employee_id"`
	Note       string     `json:"note" validate:"max=500"`
	SplitPair  bool       `json:"split_pair"`
	Lines      []SaleLine `json:"lines" validate:"required,min=1,dive"`
}

// RemoveSaleItemRequest may come as a JSON body or as query parameters.
type RemoveSaleItemRequest struct {
	EmployeeID string `json:"employee_id" form:"employee_id"`
	Quantity   int    `json:"quantity" form:"quantity" validate:"min=0"`
	Note       string `json:"note" form:"note" validate:"max=500"`
}

type UpdateNoteRequest struct {
	EmployeeID string `json:"employee_id"`
	Note       string `json:"note" validate:"required,max=500"`
}

type SaleLineResponse struct {
	ID             int64     `json:"id"`
	BoxBarcode     string    `json:"box_barcode"`
	ProductName    string    `json:"product_name"`
	ItemBarcode    *string   `json:"item_barcode,omitempty"`
	Quantity       int       `json:"quantity"`
	SequenceNumber *int      `json:"sequence_number,omitempty"`
	IsDirectSale   bool      `json:"is_direct_sale"`
	CreatedAt      time.Time `json:"created_at"`
}

type EditEntryResponse struct {
	Action     string    `json:"action"`
	At         time.Time `json:"at"`
	EmployeeID string    `json:"employee_id"`
	Detail     string    `json:"detail"`
}

type SaleOrderResponse struct {
	OrderID      string              `json:"order_id"`
	EmployeeID   string              `json:"employee_id"`
	Counterparty string              `json:"counterparty"`
	Note         *string             `json:"note,omitempty"`
	EditCount    int                 `json:"edit_count"`
	LastModified *time.Time          `json:"last_modified,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	EditHistory  []EditEntryResponse `json:"edit_history"`
	Lines        []SaleLineResponse  `json:"lines"`
}

type BreakageLine struct {
	Identifier string `json:"identifier" validate:"required"`
	Condition  string `json:"condition"`
}

type CreateBreakageOrderRequest struct {
	OrderID    string         `json:"order_id" validate:"omitempty,max=64"`
	EmployeeID string         `json:"employee_id"`
	Note       string         `json:"note" validate:"max=500"`
	Condition  string         `json:"condition"`
	Lines      []BreakageLine `json:"lines" validate:"required,min=1,dive"`
}

type BreakageLineResponse struct {
	ID             int64     `json:"id"`
	BoxBarcode     string    `json:"box_barcode"`
	ProductName    string    `json:"product_name"`
	ItemBarcode    *string   `json:"item_barcode,omitempty"`
	Quantity       int       `json:"quantity"`
	Condition      string    `json:"condition"`
	SequenceNumber *int      `json:"sequence_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type BreakageOrderResponse struct {
	OrderID    string                 `json:"order_id"`
	EmployeeID string                 `json:"employee_id"`
	Note       *string                `json:"note,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	Lines      []BreakageLineResponse `json:"lines"`
}
