package dto

import "time"

type CreateProductRequest struct {
	BoxBarcode  string `json:"box_barcode" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=200"`
	SerialCount int    `json:"serial_count" validate:"min=0,max=2"`
}

type UpdateProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	SerialCount *int    `json:"serial_count" validate:"omitempty,min=0,max=2"`
}

type ProductFilter struct {
	Name        string `form:"name"`
	SerialCount *int   `form:"serial_count"`
	Page        int    `form:"page"`
	Limit       int    `form:"limit"`
}

type ProductResponse struct {
	BoxBarcode  string    `json:"box_barcode"`
	Name        string    `json:"name"`
	SerialCount int       `json:"serial_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductListResponse struct {
	Data  []ProductResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}
