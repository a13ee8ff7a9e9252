// Package product provides the catalog model and its PostgreSQL repository.
package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("product not found")
)

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	List(ctx context.Context, q Query) ([]Product, int64, error)
	Highlighted(ctx context.Context, h Highlight, limit int) ([]Product, error)
	LowStock(ctx context.Context, limit int) ([]Product, error)
	Update(ctx context.Context, p *Product) error
	UpdateStock(ctx context.Context, id string, qty int, op StockOperation) (*Product, error)
	IncrementViews(ctx context.Context, id string) error
	AdjustFavorites(ctx context.Context, id string, delta int) error
	Delete(ctx context.Context, id string) (bool, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const productColumns = `p.id, COALESCE(p.seller_id::text, ''), COALESCE(u.username, ''),
	COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
	p.name, p.description, p.short_description,
	p.price::text, p.original_price::text, p.sale_price::text, p.cost_price::text,
	p.category, p.subcategory, p.brand, p.model, p.year, p.condition,
	p.attributes, p.images, p.tags,
	p.stock_quantity, p.low_stock_threshold, p.track_inventory, p.availability,
	p.shipping, p.rating_average::text, p.rating_count, p.slug, p.status,
	p.is_featured, p.is_trending, p.is_best_seller,
	p.view_count, p.favorite_count, p.sold_count, p.created_at, p.updated_at`

const productFrom = ` FROM products p LEFT JOIN users u ON u.id = p.seller_id`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p                       Product
		sellerName, first, last string
		original, sale, cost    decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.SellerID, &sellerName, &first, &last,
		&p.Name, &p.Description, &p.ShortDescription,
		&p.Price, &original, &sale, &cost,
		&p.Category, &p.Subcategory, &p.Brand, &p.Model, &p.Year, &p.Condition,
		&p.Attributes, &p.Images, &p.Tags,
		&p.Stock.Quantity, &p.Stock.LowStockThreshold, &p.Stock.TrackInventory, &p.Availability,
		&p.Shipping, &p.Ratings.Average, &p.Ratings.Count, &p.Slug, &p.Status,
		&p.IsFeatured, &p.IsTrending, &p.IsBestSeller,
		&p.ViewCount, &p.FavoriteCount, &p.SoldCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.OriginalPrice = fromNull(original)
	p.SalePrice = fromNull(sale)
	p.CostPrice = fromNull(cost)
	if p.SellerID != "" {
		p.Seller = &Seller{ID: p.SellerID, Username: sellerName, FirstName: first, LastName: last}
	}
	return &p, nil
}

func fromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func collect(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.BeforeSave()
	slug, err := r.freeSlug(ctx, p.Slug)
	if err != nil {
		return err
	}
	p.Slug = slug

	err = r.db.QueryRow(ctx, `
		INSERT INTO products (id, seller_id, name, description, short_description,
			price, original_price, sale_price, cost_price,
			category, subcategory, brand, model, year, condition,
			attributes, images, tags,
			stock_quantity, low_stock_threshold, track_inventory, availability,
			shipping, slug, status, is_featured, is_trending, is_best_seller,
			created_at, updated_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, NOW(), NOW())
		RETURNING created_at, updated_at
	`, p.ID, p.SellerID, p.Name, p.Description, p.ShortDescription,
		p.Price, p.OriginalPrice, p.SalePrice, p.CostPrice,
		p.Category, p.Subcategory, p.Brand, p.Model, p.Year, p.Condition,
		p.Attributes, p.Images, p.Tags,
		p.Stock.Quantity, p.Stock.LowStockThreshold, p.Stock.TrackInventory, p.Availability,
		p.Shipping, p.Slug, p.Status, p.IsFeatured, p.IsTrending, p.IsBestSeller,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *PGRepo) freeSlug(ctx context.Context, base string) (string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT slug FROM products WHERE slug = $1 OR slug LIKE $1 || '-%'`, base)
	if err != nil {
		return "", err
	}
	taken, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", err
	}
	return UniqueSlug(base, taken), nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = $1`, id))
}

func (r *PGRepo) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+productFrom+` WHERE p.slug = $1`, slug))
}

const searchWhere = `
	WHERE p.status = 'active'
	  AND ($1 = '' OR p.name ILIKE '%'||$1||'%' OR p.description ILIKE '%'||$1||'%' OR p.brand ILIKE '%'||$1||'%')
	  AND ($2 = '' OR p.category = $2)
	  AND ($3 = '' OR p.brand ILIKE $3)
	  AND ($4 = '' OR p.condition = $4)
	  AND ($5 = '' OR p.availability = $5)
	  AND ($6::numeric IS NULL OR COALESCE(NULLIF(p.sale_price, 0), p.price) >= $6::numeric)
	  AND ($7::numeric IS NULL OR COALESCE(NULLIF(p.sale_price, 0), p.price) <= $7::numeric)
	  AND ($8 = '' OR p.seller_id::text = $8)`

func (r *PGRepo) List(ctx context.Context, q Query) ([]Product, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	q.normalize()

	args := []interface{}{q.Q, q.Category, q.Brand, q.Condition, q.Availability, q.MinPrice, q.MaxPrice, q.SellerID}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products p`+searchWhere, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+productColumns+productFrom+searchWhere+`
		ORDER BY `+q.orderClause()+` LIMIT $9 OFFSET $10`,
		append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *PGRepo) Highlighted(ctx context.Context, h Highlight, limit int) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var flag, order string
	switch h {
	case HighlightTrending:
		flag, order = "p.is_trending", "p.view_count DESC"
	case HighlightBestSellers:
		flag, order = "p.is_best_seller", "p.sold_count DESC"
	default:
		flag, order = "p.is_featured", "p.created_at DESC"
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+productFrom+`
		WHERE `+flag+` AND p.status = 'active' AND p.stock_quantity > 0
		ORDER BY `+order+` LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PGRepo) LowStock(ctx context.Context, limit int) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+productFrom+`
		WHERE p.status = 'active' AND p.track_inventory AND p.stock_quantity <= p.low_stock_threshold
		ORDER BY p.stock_quantity ASC, p.name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PGRepo) Update(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.BeforeSave()
	err := r.db.QueryRow(ctx, `
		UPDATE products
		SET name = $2, description = $3, short_description = $4,
		    price = $5, original_price = $6, sale_price = $7, cost_price = $8,
		    category = $9, subcategory = $10, brand = $11, model = $12, year = $13, condition = $14,
		    attributes = $15, images = $16, tags = $17,
		    stock_quantity = $18, low_stock_threshold = $19, track_inventory = $20, availability = $21,
		    shipping = $22, status = $23, is_featured = $24, is_trending = $25, is_best_seller = $26,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.Name, p.Description, p.ShortDescription,
		p.Price, p.OriginalPrice, p.SalePrice, p.CostPrice,
		p.Category, p.Subcategory, p.Brand, p.Model, p.Year, p.Condition,
		p.Attributes, p.Images, p.Tags,
		p.Stock.Quantity, p.Stock.LowStockThreshold, p.Stock.TrackInventory, p.Availability,
		p.Shipping, p.Status, p.IsFeatured, p.IsTrending, p.IsBestSeller,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *PGRepo) UpdateStock(ctx context.Context, id string, qty int, op StockOperation) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanProduct(tx.QueryRow(ctx,
		`SELECT `+productColumns+productFrom+` WHERE p.id = $1 FOR UPDATE OF p`, id))
	if err != nil {
		return nil, err
	}
	p.ApplyStock(qty, op)
	if err := tx.QueryRow(ctx, `
		UPDATE products SET stock_quantity = $2, availability = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at
	`, id, p.Stock.Quantity, p.Availability).Scan(&p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, tx.Commit(ctx)
}

func (r *PGRepo) IncrementViews(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `UPDATE products SET view_count = view_count + 1 WHERE id = $1`, id)
	return err
}

// AdjustFavorites adds delta to the favorite counter, never going below zero.
func (r *PGRepo) AdjustFavorites(ctx context.Context, id string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`UPDATE products SET favorite_count = GREATEST(favorite_count + $2, 0) WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
