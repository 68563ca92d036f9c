package model

import "time"

// OrderStatus applies to loan orders only.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderCompleted OrderStatus = "completed"
)

type LoanOrder struct {
	OrderID      string `gorm:"primaryKey"`
	EmployeeID   string `gorm:"not null"`
	Counterparty string `gorm:"not null"`
	Note         *string
	Status       OrderStatus `gorm:"type:varchar(16);not null;default:'active'"`
	SplitPair    bool        `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (LoanOrder) TableName() string { return "loan_orders" }

// Edit actions recorded in a sale order's history.
const (
	EditAddItems    = "ADD_ITEMS"
	EditRemoveItem  = "REMOVE_ITEM"
	EditUpdateNotes = "UPDATE_NOTES"
)

// EditEntry is one post-creation change to a sale order.
type EditEntry struct {
	Action     string    `json:"action"`
	At         time.Time `json:"at"`
	EmployeeID string    `json:"employee_id"`
	Detail     string    `json:"detail"`
}

// SaleOrder is immutable after creation except for note and edit history.
type SaleOrder struct {
	OrderID      string `gorm:"primaryKey"`
	EmployeeID   string `gorm:"not null"`
	Counterparty string
	Note         *string
	EditHistory  []EditEntry `gorm:"type:jsonb;serializer:json"`
	EditCount    int         `gorm:"not null;default:0"`
	LastModified *time.Time
	CreatedAt    time.Time
}

func (SaleOrder) TableName() string { return "sale_orders" }

type BreakageOrder struct {
	OrderID    string `gorm:"primaryKey"`
	EmployeeID string
	Note       *string
	CreatedAt  time.Time
}

func (BreakageOrder) TableName() string { return "breakage_orders" }
