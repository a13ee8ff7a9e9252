package product

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryMountain    Category = "mountain"
	CategoryRoad        Category = "road"
	CategoryElectric    Category = "electric"
	CategoryBMX         Category = "bmx"
	CategoryHybrid      Category = "hybrid"
	CategoryCruiser     Category = "cruiser"
	CategoryFolding     Category = "folding"
	CategoryKids        Category = "kids"
	CategoryAccessories Category = "accessories"
	CategoryParts       Category = "parts"
)

type Condition string

const (
	ConditionNew       Condition = "new"
	ConditionLikeNew   Condition = "like-new"
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

type Availability string

const (
	AvailabilityInStock      Availability = "in-stock"
	AvailabilityOutOfStock   Availability = "out-of-stock"
	AvailabilityPreOrder     Availability = "pre-order"
	AvailabilityDiscontinued Availability = "discontinued"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
	StatusArchived Status = "archived"
)

type Dimensions struct {
	Length float64 `json:"length,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Attributes holds the descriptive, non-searchable product details (stored as JSONB).
type Attributes struct {
	Size           string            `json:"size,omitempty"`
	FrameSize      string            `json:"frameSize,omitempty"`
	WheelSize      string            `json:"wheelSize,omitempty"`
	Color          string            `json:"color,omitempty"`
	Colors         []string          `json:"colors,omitempty"`
	Material       string            `json:"material,omitempty"`
	Weight         float64           `json:"weight,omitempty"`
	Dimensions     *Dimensions       `json:"dimensions,omitempty"`
	Features       []string          `json:"features,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
	Warranty       string            `json:"warranty,omitempty"`
	ReturnPolicy   string            `json:"returnPolicy,omitempty"`
}

type Image struct {
	URL       string `json:"url" binding:"required"`
	Alt       string `json:"alt,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
	Order     int    `json:"order"`
}

type Stock struct {
	Quantity          int  `json:"quantity"`
	LowStockThreshold int  `json:"lowStockThreshold"`
	TrackInventory    bool `json:"trackInventory"`
}

type DeliveryWindow struct {
	Min int `json:"min,omitempty"`
	Max int `json:"max,omitempty"`
}

type Shipping struct {
	Weight            float64         `json:"weight,omitempty"`
	Dimensions        *Dimensions     `json:"dimensions,omitempty"`
	FreeShipping      bool            `json:"freeShipping"`
	ShippingCost      decimal.Decimal `json:"shippingCost"`
	EstimatedDelivery *DeliveryWindow `json:"estimatedDelivery,omitempty"`
}

type Ratings struct {
	Average decimal.Decimal `json:"average"`
	Count   int             `json:"count"`
}

// Seller is the public summary of the listing's owner.
type Seller struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type Product struct {
	ID               string           `json:"id"`
	SellerID         string           `json:"sellerId,omitempty"`
	Seller           *Seller          `json:"seller,omitempty"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	ShortDescription string           `json:"shortDescription,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice,omitempty"`
	SalePrice        *decimal.Decimal `json:"salePrice,omitempty"`
	CostPrice        *decimal.Decimal `json:"costPrice,omitempty"`
	Category         Category         `json:"category"`
	Subcategory      string           `json:"subcategory,omitempty"`
	Brand            string           `json:"brand"`
	Model            string           `json:"model,omitempty"`
	Year             *int             `json:"year,omitempty"`
	Condition        Condition        `json:"condition"`
	Attributes       Attributes       `json:"attributes"`
	Images           []Image          `json:"images"`
	Tags             []string         `json:"tags"`
	Stock            Stock            `json:"stock"`
	Availability     Availability     `json:"availability"`
	Shipping         Shipping         `json:"shipping"`
	Ratings          Ratings          `json:"ratings"`
	Slug             string           `json:"slug"`
	Status           Status           `json:"status"`
	IsFeatured       bool             `json:"isFeatured"`
	IsTrending       bool             `json:"isTrending"`
	IsBestSeller     bool             `json:"isBestSeller"`
	ViewCount        int              `json:"viewCount"`
	FavoriteCount    int              `json:"favoriteCount"`
	SoldCount        int              `json:"soldCount"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func hasPrice(d *decimal.Decimal) bool { return d != nil && !d.IsZero() }

func (p *Product) IsOnSale() bool {
	return hasPrice(p.SalePrice) && p.SalePrice.LessThan(p.Price)
}

func (p *Product) DiscountPercentage() int {
	if !hasPrice(p.SalePrice) || !p.Price.IsPositive() {
		return 0
	}
	pct := p.Price.Sub(*p.SalePrice).Div(p.Price).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}

func (p *Product) CurrentPrice() decimal.Decimal {
	if hasPrice(p.SalePrice) {
		return *p.SalePrice
	}
	return p.Price
}

func (p *Product) IsLowStock() bool { return p.Stock.Quantity <= p.Stock.LowStockThreshold }

func (p *Product) IsOutOfStock() bool { return p.Stock.Quantity == 0 }

func (p *Product) PrimaryImage() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// MarshalJSON adds the derived fields to the stored ones.
func (p Product) MarshalJSON() ([]byte, error) {
	type stored Product
	return json.Marshal(struct {
		stored
		IsOnSale           bool            `json:"isOnSale"`
		DiscountPercentage int             `json:"discountPercentage"`
		CurrentPrice       decimal.Decimal `json:"currentPrice"`
		IsLowStock         bool            `json:"isLowStock"`
		IsOutOfStock       bool            `json:"isOutOfStock"`
		PrimaryImage       string          `json:"primaryImage,omitempty"`
	}{
		stored:             stored(p),
		IsOnSale:           p.IsOnSale(),
		DiscountPercentage: p.DiscountPercentage(),
		CurrentPrice:       p.CurrentPrice(),
		IsLowStock:         p.IsLowStock(),
		IsOutOfStock:       p.IsOutOfStock(),
		PrimaryImage:       p.PrimaryImage(),
	})
}

// BeforeSave fills defaults, the slug and the stock driven availability.
func (p *Product) BeforeSave() {
	p.Name = strings.TrimSpace(p.Name)
	p.Brand = strings.TrimSpace(p.Brand)
	if p.Condition == "" {
		p.Condition = ConditionNew
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Availability == "" {
		p.Availability = AvailabilityInStock
	}
	if p.Images == nil {
		p.Images = []Image{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	} else {
		p.Slug = strings.ToLower(p.Slug)
	}
	p.syncAvailability()
}

func (p *Product) syncAvailability() {
	switch {
	case p.Stock.Quantity == 0:
		p.Availability = AvailabilityOutOfStock
	case p.Stock.Quantity <= p.Stock.LowStockThreshold:
		p.Availability = AvailabilityInStock
	case p.Availability == AvailabilityOutOfStock:
		p.Availability = AvailabilityInStock
	}
}

type StockOperation string

const (
	StockIncrease StockOperation = "increase"
	StockDecrease StockOperation = "decrease"
)

// ApplyStock changes the quantity; decreases are clamped at zero.
func (p *Product) ApplyStock(qty int, op StockOperation) {
	switch op {
	case StockIncrease:
		p.Stock.Quantity += qty
	default:
		p.Stock.Quantity -= qty
		if p.Stock.Quantity < 0 {
			p.Stock.Quantity = 0
		}
	}
	p.syncAvailability()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// UniqueSlug returns base, or base with the lowest free numeric suffix.
func UniqueSlug(base string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, s := range taken {
		used[s] = true
	}
	if !used[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
}

// Query is the catalog search filter.
type Query struct {
	Q            string
	Category     string
	Brand        string
	Condition    string
	Availability string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	SellerID     string
	SortBy       string
	SortOrder    string
	Page         int
	Limit        int
}

func (q *Query) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
}

func (q Query) Offset() int { return (q.Page - 1) * q.Limit }

var sortColumns = map[string]string{
	"createdAt":    "p.created_at",
	"price":        "COALESCE(NULLIF(p.sale_price, 0), p.price)",
	"name":         "p.name",
	"rating":       "p.rating_average",
	"viewCount":    "p.view_count",
	"soldCount":    "p.sold_count",
	"updatedAt":    "p.updated_at",
	"currentPrice": "COALESCE(NULLIF(p.sale_price, 0), p.price)",
}

// orderClause only ever returns whitelisted SQL.
func (q Query) orderClause() string {
	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = sortColumns["createdAt"]
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir + ", p.id"
}

// Highlight selects one of the curated listings.
type Highlight string

const (
	HighlightFeatured    Highlight = "featured"
	HighlightTrending    Highlight = "trending"
	HighlightBestSellers Highlight = "best-sellers"
)
