package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	CompletedForOrder(ctx context.Context, orderID string) (*Payment, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const paymentColumns = `id, COALESCE(order_id::text, ''), customer_id::text, amount::text, currency,
	payment_method, gateway, status, transaction_id, failure_reason, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.Amount, &p.Currency,
		&p.PaymentMethod, &p.Gateway, &p.Status, &p.TransactionID, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGRepo) Create(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, customer_id, amount, currency, payment_method, gateway,
			status, transaction_id, failure_reason, created_at, updated_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`, p.ID, p.OrderID, p.CustomerID, p.Amount, p.Currency, p.PaymentMethod, p.Gateway,
		p.Status, p.TransactionID, p.FailureReason).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *PGRepo) Update(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		UPDATE payments SET status = $2, transaction_id = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at
	`, p.ID, p.Status, p.TransactionID, p.FailureReason).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PGRepo) CompletedForOrder(ctx context.Context, orderID string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1 AND status = 'completed' ORDER BY created_at DESC LIMIT 1`, orderID))
}
