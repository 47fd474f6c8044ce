package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products; categories may nest one level.
type Category struct {
	ID       string  `gorm:"primaryKey;column:id" json:"id"`
	Name     string  `gorm:"column:name" json:"name"`
	Slug     string  `gorm:"column:slug;uniqueIndex" json:"slug"`
	ParentID *string `gorm:"column:parent_id" json:"parentId,omitempty"`
}

func (Category) TableName() string { return "categories" }

// Product is the storefront read model of a perfume.
type Product struct {
	ID          string           `gorm:"primaryKey;column:id" json:"id"`
	Name        string           `gorm:"column:name" json:"name"`
	Slug        string           `gorm:"column:slug;uniqueIndex" json:"slug"`
	Brand       string           `gorm:"column:brand" json:"brand"`
	Description string           `gorm:"column:description" json:"description"`
	Price       decimal.Decimal  `gorm:"column:price;type:numeric(12,2)" json:"price"`
	SalePrice   *decimal.Decimal `gorm:"column:sale_price;type:numeric(12,2)" json:"salePrice,omitempty"`
	VolumeMl    int              `gorm:"column:volume_ml" json:"volumeMl"`
	Rating      float64          `gorm:"column:rating" json:"rating"`
	Stock       int              `gorm:"column:stock" json:"stock"`
	CategoryID  string           `gorm:"column:category_id" json:"categoryId"`
	ImageURL    string           `gorm:"column:image_url" json:"imageUrl"`
	IsActive    bool             `gorm:"column:is_active" json:"isActive"`
	CreatedAt   time.Time        `gorm:"column:created_at" json:"createdAt"`
}

func (Product) TableName() string { return "products" }

// EffectivePrice returns the sale price when one is set.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return *p.SalePrice
	}
	return p.Price
}

// ProductSort selects listing order.
type ProductSort string

const (
	SortNewest    ProductSort = "newest"
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortRating    ProductSort = "rating"
	SortName      ProductSort = "name"
)

// ProductFilter is the storefront listing query.
type ProductFilter struct {
	CategorySlug string
	Brands       []string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Volumes      []int
	MinRating    float64
	Search       string
	Sort         ProductSort
	Page         int
	Limit        int
}

// ProductPage is one page of listing results.
type ProductPage struct {
	Products   []Product `json:"products"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}
