package model

import "time"

// LedgerEntry is one append-only record of something that happened to a box
// or item. Rows are never updated or deleted.
type LedgerEntry struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	BoxBarcode     string    `gorm:"not null;index"`
	ProductName    string    `gorm:"not null"`
	ItemBarcode    *string   `gorm:"index:idx_ledger_item_time,priority:1"`
	Operation      Operation `gorm:"type:varchar(32);not null;index"`
	Quantity       int       `gorm:"not null"`
	OccurredAt     time.Time `gorm:"not null;index:idx_ledger_item_time,priority:2,sort:desc"`
	OrderID        *string   `gorm:"index"`
	SequenceNumber *int
	Note           *string
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// ItemState is the current lifecycle state of a serialized item, written in
// the same transaction as the ledger entry that caused it.
type ItemState struct {
	ItemBarcode   string        `gorm:"primaryKey"`
	BoxBarcode    string        `gorm:"not null;index"`
	State         ItemLifecycle `gorm:"type:varchar(16);not null"`
	LastOperation Operation     `gorm:"type:varchar(32);not null"`
	LastEntryID   int64
	UpdatedAt     time.Time
}

func (ItemState) TableName() string { return "item_states" }
