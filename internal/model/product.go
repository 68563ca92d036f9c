package model

import "time"

// Product is the catalog entry for one box barcode (SKU-level container).
// SerialCount 0 is tracked by quantity only, 1 carries one barcode per unit,
// 2 is issued as a matched pair of barcodes.
type Product struct {
	BoxBarcode  string `gorm:"primaryKey"`
	Name        string `gorm:"index;not null"`
	SerialCount int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Product) TableName() string { return "products" }

// IsSerialized reports whether units carry their own item barcode.
func (p *Product) IsSerialized() bool { return p.SerialCount > 0 }

// IsPaired reports whether units are issued in pairs.
func (p *Product) IsPaired() bool { return p.SerialCount == 2 }
