package product

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidProduct = errors.New("invalid product")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidProduct, fmt.Sprintf(format, args...))
}

func checkMoney(field string, d *decimal.Decimal) error {
	if d != nil && d.IsNegative() {
		return invalid("%s cannot be negative", field)
	}
	return nil
}

func checkYear(y *int) error {
	if y != nil && *y > time.Now().Year()+1 {
		return invalid("year cannot be in the future")
	}
	return nil
}

// CreateProductRequest payload of creation.
// swagger:model CreateProductRequest
type CreateProductRequest struct {
	Name             string           `json:"name"             binding:"required,min=2,max=100" example:"Trail Blazer 29"`
	Description      string           `json:"description"      binding:"required,min=10,max=1000" example:"Full suspension trail bike with 29in wheels"`
	ShortDescription string           `json:"shortDescription" binding:"omitempty,max=200"`
	Price            *decimal.Decimal `json:"price"            binding:"required" swaggertype:"number" example:"1299.99"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice"    swaggertype:"number"`
	SalePrice        *decimal.Decimal `json:"salePrice"        swaggertype:"number"`
	CostPrice        *decimal.Decimal `json:"costPrice"        swaggertype:"number"`
	Category         Category         `json:"category"         binding:"required,oneof=mountain road electric bmx hybrid cruiser folding kids accessories parts" example:"mountain"`
	Subcategory      string           `json:"subcategory"`
	Brand            string           `json:"brand"            binding:"required" example:"Trek"`
	Model            string           `json:"model"`
	Year             *int             `json:"year"             binding:"omitempty,gte=1900"`
	Condition        Condition        `json:"condition"        binding:"omitempty,oneof=new like-new excellent good fair poor"`
	Attributes       Attributes       `json:"attributes"`
	Images           []Image          `json:"images"           binding:"omitempty,dive"`
	Tags             []string         `json:"tags"`
	Stock            *StockInput      `json:"stock"`
	Availability     Availability     `json:"availability"     binding:"omitempty,oneof=in-stock out-of-stock pre-order discontinued"`
	Shipping         Shipping         `json:"shipping"`
	Slug             string           `json:"slug"`
	Status           Status           `json:"status"           binding:"omitempty,oneof=active inactive draft archived"`
	IsFeatured       bool             `json:"isFeatured"`
	IsTrending       bool             `json:"isTrending"`
	IsBestSeller     bool             `json:"isBestSeller"`
}

type StockInput struct {
	Quantity          int   `json:"quantity"          binding:"gte=0"`
	LowStockThreshold *int  `json:"lowStockThreshold" binding:"omitempty,gte=0"`
	TrackInventory    *bool `json:"trackInventory"`
}

func (s *StockInput) toStock() Stock {
	out := Stock{LowStockThreshold: 5, TrackInventory: true}
	if s == nil {
		return out
	}
	out.Quantity = s.Quantity
	if s.LowStockThreshold != nil {
		out.LowStockThreshold = *s.LowStockThreshold
	}
	if s.TrackInventory != nil {
		out.TrackInventory = *s.TrackInventory
	}
	return out
}

// Validate checks the rules the binding tags cannot express.
func (r CreateProductRequest) Validate() error {
	for field, d := range map[string]*decimal.Decimal{
		"price": r.Price, "originalPrice": r.OriginalPrice, "salePrice": r.SalePrice, "costPrice": r.CostPrice,
	} {
		if err := checkMoney(field, d); err != nil {
			return err
		}
	}
	return checkYear(r.Year)
}

// ToProduct builds a new listing owned by sellerID.
func (r CreateProductRequest) ToProduct(id, sellerID string) *Product {
	return &Product{
		ID:               id,
		SellerID:         sellerID,
		Name:             r.Name,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		Price:            *r.Price,
		OriginalPrice:    r.OriginalPrice,
		SalePrice:        r.SalePrice,
		CostPrice:        r.CostPrice,
		Category:         r.Category,
		Subcategory:      r.Subcategory,
		Brand:            r.Brand,
		Model:            r.Model,
		Year:             r.Year,
		Condition:        r.Condition,
		Attributes:       r.Attributes,
		Images:           r.Images,
		Tags:             r.Tags,
		Stock:            r.Stock.toStock(),
		Availability:     r.Availability,
		Shipping:         r.Shipping,
		Slug:             r.Slug,
		Status:           r.Status,
		IsFeatured:       r.IsFeatured,
		IsTrending:       r.IsTrending,
		IsBestSeller:     r.IsBestSeller,
	}
}

// UpdateProductRequest payload of partial update; nil fields are left unchanged.
// swagger:model UpdateProductRequest
type UpdateProductRequest struct {
	Name             *string          `json:"name"             binding:"omitempty,min=2,max=100"`
	Description      *string          `json:"description"      binding:"omitempty,min=10,max=1000"`
	ShortDescription *string          `json:"shortDescription" binding:"omitempty,max=200"`
	Price            *decimal.Decimal `json:"price"            swaggertype:"number"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice"    swaggertype:"number"`
	SalePrice        *decimal.Decimal `json:"salePrice"        swaggertype:"number"`
	CostPrice        *decimal.Decimal `json:"costPrice"        swaggertype:"number"`
	Category         *Category        `json:"category"         binding:"omitempty,oneof=mountain road electric bmx hybrid cruiser folding kids accessories parts"`
	Subcategory      *string          `json:"subcategory"`
	Brand            *string          `json:"brand"            binding:"omitempty,min=1"`
	Model            *string          `json:"model"`
	Year             *int             `json:"year"             binding:"omitempty,gte=1900"`
	Condition        *Condition       `json:"condition"        binding:"omitempty,oneof=new like-new excellent good fair poor"`
	Attributes       *Attributes      `json:"attributes"`
	Images           []Image          `json:"images"           binding:"omitempty,dive"`
	Tags             []string         `json:"tags"`
	Stock            *StockInput      `json:"stock"`
	Availability     *Availability    `json:"availability"     binding:"omitempty,oneof=in-stock out-of-stock pre-order discontinued"`
	Shipping         *Shipping        `json:"shipping"`
	Status           *Status          `json:"status"           binding:"omitempty,oneof=active inactive draft archived"`
	IsFeatured       *bool            `json:"isFeatured"`
	IsTrending       *bool            `json:"isTrending"`
	IsBestSeller     *bool            `json:"isBestSeller"`
}

func (r UpdateProductRequest) Validate() error {
	for field, d := range map[string]*decimal.Decimal{
		"price": r.Price, "originalPrice": r.OriginalPrice, "salePrice": r.SalePrice, "costPrice": r.CostPrice,
	} {
		if err := checkMoney(field, d); err != nil {
			return err
		}
	}
	return checkYear(r.Year)
}

// Apply copies the set fields onto p.
func (r UpdateProductRequest) Apply(p *Product) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.ShortDescription != nil {
		p.ShortDescription = *r.ShortDescription
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.OriginalPrice != nil {
		p.OriginalPrice = r.OriginalPrice
	}
	if r.SalePrice != nil {
		p.SalePrice = r.SalePrice
	}
	if r.CostPrice != nil {
		p.CostPrice = r.CostPrice
	}
	if r.Category != nil {
		p.Category = *r.Category
	}
	if r.Subcategory != nil {
		p.Subcategory = *r.Subcategory
	}
	if r.Brand != nil {
		p.Brand = *r.Brand
	}
	if r.Model != nil {
		p.Model = *r.Model
	}
	if r.Year != nil {
		p.Year = r.Year
	}
	if r.Condition != nil {
		p.Condition = *r.Condition
	}
	if r.Attributes != nil {
		p.Attributes = *r.Attributes
	}
	if r.Images != nil {
		p.Images = r.Images
	}
	if r.Tags != nil {
		p.Tags = r.Tags
	}
	if r.Stock != nil {
		p.Stock.Quantity = r.Stock.Quantity
		if r.Stock.LowStockThreshold != nil {
			p.Stock.LowStockThreshold = *r.Stock.LowStockThreshold
		}
		if r.Stock.TrackInventory != nil {
			p.Stock.TrackInventory = *r.Stock.TrackInventory
		}
	}
	if r.Availability != nil {
		p.Availability = *r.Availability
	}
	if r.Shipping != nil {
		p.Shipping = *r.Shipping
	}
	if r.Status != nil {
		p.Status = *r.Status
	}
	if r.IsFeatured != nil {
		p.IsFeatured = *r.IsFeatured
	}
	if r.IsTrending != nil {
		p.IsTrending = *r.IsTrending
	}
	if r.IsBestSeller != nil {
		p.IsBestSeller = *r.IsBestSeller
	}
}

// StockUpdateRequest payload of PATCH /products/{id}/stock.
// swagger:model StockUpdateRequest
type StockUpdateRequest struct {
	Quantity  int            `json:"quantity"  binding:"gte=0" example:"3"`
	Operation StockOperation `json:"operation" binding:"omitempty,oneof=increase decrease" example:"decrease"`
}
