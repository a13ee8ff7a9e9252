package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, f *File) error
	Get(ctx context.Context, key string) (*File, error)
	List(ctx context.Context, ownerID string, page, limit int) ([]File, int64, error)
	Delete(ctx context.Context, key string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const fileColumns = `key, original_name, content_type, size, url, owner_id::text, created_at`

func (r *PGRepo) Create(ctx context.Context, f *File) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO uploads (key, original_name, content_type, size, url, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`, f.Key, f.OriginalName, f.ContentType, f.Size, f.URL, f.OwnerID).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

func (r *PGRepo) Get(ctx context.Context, key string) (*File, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var f File
	err := r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM uploads WHERE key = $1`, key).
		Scan(&f.Key, &f.OriginalName, &f.ContentType, &f.Size, &f.URL, &f.OwnerID, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// List returns ownerID's uploads, or everyone's when ownerID is empty.
func (r *PGRepo) List(ctx context.Context, ownerID string, page, limit int) ([]File, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM uploads WHERE ($1 = '' OR owner_id::text = $1)`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+fileColumns+` FROM uploads
		WHERE ($1 = '' OR owner_id::text = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	files, err := pgx.CollectRows(rows, pgx.RowToStructByPos[File])
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

func (r *PGRepo) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM uploads WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
