package model

import "time"

type Product struct {
	ID                int64      `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	BaseName          string     `db:"base_name" json:"baseName"`
	Variant           *string    `db:"variant" json:"variant"`
	NumericValue      *float64   `db:"numeric_value" json:"numericValue"`
	Unit              *string    `db:"unit" json:"unit"`
	LowStockThreshold int64      `db:"low_stock_threshold" json:"lowStockThreshold"` // Combined across locations, 0 disables
	DeletedAt         *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}

type Location struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
