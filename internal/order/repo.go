package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/bikerhub/internal/product"
)

var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product unavailable")
)

type Repository interface {
	// Create numbers the order, snapshots and reserves the products, then
	// calls finalize (totals) before inserting, all in one transaction.
	Create(ctx context.Context, o *Order, finalize func(*Order) error) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int64, error)
	Update(ctx context.Context, o *Order) error
	CancelAndRestock(ctx context.Context, o *Order) error
	Statistics(ctx context.Context, customerID string) (Stats, error)
	StalePending(ctx context.Context, before time.Time, limit int) ([]Order, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `o.id, o.order_number, o.customer_id::text, o.status, o.status_history,
	o.subtotal::text, o.tax::text, o.shipping, o.discount, o.total::text, o.payment,
	o.billing_address, o.shipping_address, o.notes, o.estimated_delivery, o.actual_delivery,
	o.cancellation, o.refund, o.is_gift, o.gift_message, o.tags, o.metadata,
	o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.StatusHistory,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.Total, &o.Payment,
		&o.BillingAddress, &o.ShippingAddress, &o.Notes, &o.EstimatedDelivery, &o.ActualDelivery,
		&o.Cancellation, &o.Refund, &o.IsGift, &o.GiftMessage, &o.Tags, &o.Metadata,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.MarkLoaded()
	return &o, nil
}

// the slice of a product row needed to reserve stock
const stockColumns = `id::text, name, price::text, sale_price::text, COALESCE(seller_id::text, ''),
	status, stock_quantity, low_stock_threshold, track_inventory, availability`

func lockProducts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]*product.Product, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rows, err := tx.Query(ctx, `SELECT `+stockColumns+` FROM products
		WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*product.Product, len(ids))
	for rows.Next() {
		var (
			p    product.Product
			sale decimal.NullDecimal
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &sale, &p.SellerID, &p.Status,
			&p.Stock.Quantity, &p.Stock.LowStockThreshold, &p.Stock.TrackInventory, &p.Availability); err != nil {
			return nil, err
		}
		if sale.Valid {
			v := sale.Decimal
			p.SalePrice = &v
		}
		out[p.ID] = &p
	}
	return out, rows.Err()
}

func saveStock(ctx context.Context, tx pgx.Tx, p *product.Product, soldDelta int) error {
	_, err := tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = $2, availability = $3, sold_count = GREATEST(sold_count + $4, 0), updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Stock.Quantity, p.Availability, soldDelta)
	return err
}

func nextSequence(ctx context.Context, tx pgx.Tx, day time.Time) (int, error) {
	var seq int
	err := tx.QueryRow(ctx, `
		INSERT INTO order_sequences (day, seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = order_sequences.seq + 1
		RETURNING seq
	`, day).Scan(&seq)
	return seq, err
}

func (r *PGRepo) Create(ctx context.Context, o *Order, finalize func(*Order) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.ProductID
	}
	products, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		p, ok := products[it.ProductID]
		if !ok || p.Status != product.StatusActive {
			return fmt.Errorf("%w: %s", ErrProductUnavailable, it.ProductID)
		}
		if p.Stock.TrackInventory && p.Stock.Quantity < it.Quantity {
			return fmt.Errorf("%w for %s: %d available", ErrInsufficientStock, p.Name, p.Stock.Quantity)
		}
		it.Name = p.Name
		it.SellerID = p.SellerID
		it.Price = p.CurrentPrice()
		if p.Stock.TrackInventory {
			p.ApplyStock(it.Quantity, product.StockDecrease)
		}
		if err := saveStock(ctx, tx, p, it.Quantity); err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
	}

	day := o.CreatedAt.UTC().Truncate(24 * time.Hour)
	seq, err := nextSequence(ctx, tx, day)
	if err != nil {
		return fmt.Errorf("order sequence: %w", err)
	}
	o.OrderNumber = FormatNumber(day, seq)

	if finalize != nil {
		if err := finalize(o); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, customer_id, status, status_history,
			subtotal, tax, shipping, discount, total, payment,
			billing_address, shipping_address, notes, estimated_delivery,
			is_gift, gift_message, tags, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
	`, o.ID, o.OrderNumber, o.CustomerID, o.Status, o.StatusHistory,
		o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total, o.Payment,
		o.BillingAddress, o.ShippingAddress, o.Notes, o.EstimatedDelivery,
		o.IsGift, o.GiftMessage, o.Tags, o.Metadata, o.CreatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, line_no, product_id, seller_id, name, quantity, price, total)
			VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9)
		`, it.ID, o.ID, i, it.ProductID, it.SellerID, it.Name, it.Quantity, it.Price, it.Total); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		o.Items[i].OrderID = o.ID
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.UpdatedAt = o.CreatedAt
	o.MarkLoaded()
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	pos := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		pos[orders[i].ID] = i
		orders[i].Items = []Item{}
	}
	rows, err := q.Query(ctx, `
		SELECT id, order_id::text, COALESCE(product_id::text, ''), COALESCE(seller_id::text, ''),
		       name, quantity, price::text, total::text
		FROM order_items WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SellerID,
			&it.Name, &it.Quantity, &it.Price, &it.Total); err != nil {
			return err
		}
		i := pos[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return rows.Err()
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id))
	if err != nil {
		return nil, err
	}
	one := []Order{*o}
	if err := loadItems(ctx, r.db, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

const listWhere = `
	WHERE ($1 = '' OR o.customer_id::text = $1)
	  AND ($2 = '' OR EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.seller_id::text = $2))
	  AND ($3 = '' OR o.status = $3)`

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]Order, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.normalize()

	args := []interface{}{f.CustomerID, f.SellerID, string(f.Status)}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders o`+listWhere, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders o`+listWhere+`
		ORDER BY `+f.orderClause()+` LIMIT $4 OFFSET $5`, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, loadItems(ctx, r.db, out)
}

func collect(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const updateOrder = `
	UPDATE orders
	SET status = $2, status_history = $3, shipping = $4, payment = $5, notes = $6,
	    actual_delivery = $7, cancellation = $8, refund = $9, updated_at = $10
	WHERE id = $1 AND status = $11`

func (r *PGRepo) Update(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, updateOrder, o.ID, o.Status, o.StatusHistory, o.Shipping, o.Payment, o.Notes,
		o.ActualDelivery, o.Cancellation, o.Refund, o.UpdatedAt, o.loadedStatus)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, o.ID)
	}
	o.MarkLoaded()
	return nil
}

func (r *PGRepo) missingOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConcurrentUpdate
}

// CancelAndRestock persists a cancelled order and puts its items back in stock.
func (r *PGRepo) CancelAndRestock(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updateOrder, o.ID, o.Status, o.StatusHistory, o.Shipping, o.Payment, o.Notes,
		o.ActualDelivery, o.Cancellation, o.Refund, o.UpdatedAt, o.loadedStatus)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, o.ID)
	}

	var ids []string
	qty := map[string]int{}
	for _, it := range o.Items {
		if it.ProductID == "" {
			continue
		}
		if _, seen := qty[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	if len(ids) > 0 {
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		for id, p := range products {
			if p.Stock.TrackInventory {
				p.ApplyStock(qty[id], product.StockIncrease)
			}
			if err := saveStock(ctx, tx, p, -qty[id]); err != nil {
				return fmt.Errorf("restock: %w", err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.MarkLoaded()
	return nil
}

func (r *PGRepo) Statistics(ctx context.Context, customerID string) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s Stats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total), 0)::text,
		       ROUND(COALESCE(AVG(total), 0), 2)::text,
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'confirmed'),
		       COUNT(*) FILTER (WHERE status = 'delivered'),
		       COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM orders
		WHERE ($1 = '' OR customer_id::text = $1)
	`, customerID).Scan(&s.TotalOrders, &s.TotalRevenue, &s.AverageOrderValue,
		&s.PendingOrders, &s.ConfirmedOrders, &s.DeliveredOrders, &s.CancelledOrders)
	return s, err
}

// StalePending lists pending orders whose payment is still pending and that
// were created before the cutoff.
func (r *PGRepo) StalePending(ctx context.Context, before time.Time, limit int) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders o
		WHERE o.status = 'pending' AND COALESCE(o.payment->>'status', 'pending') = 'pending'
		  AND o.created_at < $1
		ORDER BY o.created_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	out, err := collect(rows)
	if err != nil {
		return nil, err
	}
	return out, loadItems(ctx, r.db, out)
}
