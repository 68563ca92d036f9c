package model

import "time"

// LoanStatus is the lifecycle of one loan line.
type LoanStatus string

const (
	LoanLent        LoanStatus = "lent"
	LoanReturned    LoanStatus = "returned"
	LoanLentToSales LoanStatus = "lent to sales"
	LoanBroken      LoanStatus = "broken"
	LoanProcessed   LoanStatus = "processed"
)

// Terminal reports whether the line no longer holds stock out on loan.
func (s LoanStatus) Terminal() bool { return s != LoanLent }

// Loan is one line of stock handed out under a loan order. Bulk lines may be
// split: the open line keeps the remainder and derived lines carry the
// processed portions.
type Loan struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	OrderID        string     `gorm:"not null;index"`
	BoxBarcode     string     `gorm:"not null;index"`
	ProductName    string     `gorm:"not null"`
	ItemBarcode    *string    `gorm:"index"`
	Quantity       int        `gorm:"not null"`
	Status         LoanStatus `gorm:"type:varchar(16);not null;index"`
	SequenceNumber *int
	EmployeeID     string `gorm:"not null"`
	Counterparty   string
	Note           *string
	SplitPair      bool `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Loan) TableName() string { return "loans" }

// Sale is a terminal record of stock sold under a sale order.
type Sale struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	OrderID        string  `gorm:"not null;index"`
	BoxBarcode     string  `gorm:"not null;index"`
	ProductName    string  `gorm:"not null"`
	ItemBarcode    *string `gorm:"index"`
	Quantity       int     `gorm:"not null"`
	SequenceNumber *int
	IsDirectSale   bool   `gorm:"not null;default:true"`
	EmployeeID     string `gorm:"not null"`
	Counterparty   string
	Note           *string
	CreatedAt      time.Time
}

func (Sale) TableName() string { return "sales" }

// Breakage is a terminal record of stock written off as broken.
type Breakage struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	OrderID        string  `gorm:"not null;index"`
	BoxBarcode     string  `gorm:"not null;index"`
	ProductName    string  `gorm:"not null"`
	ItemBarcode    *string `gorm:"index"`
	Quantity       int     `gorm:"not null"`
	Condition      string
	SequenceNumber *int
	EmployeeID     string
	Note           *string
	CreatedAt      time.Time
}

func (Breakage) TableName() string { return "breakages" }
