package model

import "time"

// Presence marks an item that is physically on the shelf right now.
type Presence struct {
	ItemBarcode    string `gorm:"primaryKey"`
	BoxBarcode     string `gorm:"not null;index"`
	ProductName    string `gorm:"not null"`
	SequenceNumber *int
	AddedAt        time.Time `gorm:"not null"`
}

func (Presence) TableName() string { return "presence" }

// SequenceAssignment ties an item to the per-box sequence number it was added
// under. Both halves of a pair share one number.
type SequenceAssignment struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	BoxBarcode     string  `gorm:"not null;index:idx_seq_box_number,priority:1"`
	ProductName    string  `gorm:"not null;index:idx_seq_box_number,priority:2"`
	ItemBarcode    *string `gorm:"index"`
	SequenceNumber int     `gorm:"not null;index:idx_seq_box_number,priority:3"`
	UpdatedAt      time.Time
}

func (SequenceAssignment) TableName() string { return "sequence_assignments" }

// AggregateStock is the denormalized quantity per box and product.
type AggregateStock struct {
	BoxBarcode     string `gorm:"primaryKey"`
	ProductName    string `gorm:"primaryKey"`
	Quantity       int    `gorm:"not null;default:0"`
	SequenceNumber int    `gorm:"not null;default:0"`
	LastUpdated    time.Time
}

func (AggregateStock) TableName() string { return "aggregate_stock" }
