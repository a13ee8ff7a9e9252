package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/bikerhub/internal/auth"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrAlreadyExist = errors.New("user already exists")
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	Update(ctx context.Context, u *User) error
	SetRole(ctx context.Context, id string, role auth.Role) error
	SetStatus(ctx context.Context, id string, status Status) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, f ListFilter) ([]User, int64, error)
	FindAdmin(ctx context.Context) (*User, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const userColumns = `id, username, email, password_hash, first_name, last_name, phone,
	role, status, is_verified, department, last_login, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&u.Role, &u.Status, &u.IsVerified, &u.Department, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PGRepo) Create(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, phone,
		                   role, status, is_verified, department, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
		RETURNING created_at, updated_at
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone,
		u.Role, u.Status, u.IsVerified, u.Department).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (r *PGRepo) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email=$1 OR username=$2)`, email, username).Scan(&exists)
	return exists, err
}

func (r *PGRepo) Update(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET first_name = $2,
		    last_name  = $3,
		    email      = COALESCE(NULLIF($4, ''), email),
		    phone      = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, u.ID, u.FirstName, u.LastName, u.Email, u.Phone)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) SetRole(ctx context.Context, id string, role auth.Role) error {
	return r.setColumn(ctx, "role", id, string(role))
}

func (r *PGRepo) SetStatus(ctx context.Context, id string, status Status) error {
	return r.setColumn(ctx, "status", id, string(status))
}

// setColumn updates one of the fixed text columns above; column is never user input.
func (r *PGRepo) setColumn(ctx context.Context, column, id, value string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	return err
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]User, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.normalize()

	const where = `
		WHERE ($1 = '' OR role = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR username ILIKE '%'||$3||'%' OR email ILIKE '%'||$3||'%'
		       OR first_name ILIKE '%'||$3||'%' OR last_name ILIKE '%'||$3||'%')`

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where,
		string(f.Role), string(f.Status), f.Search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users`+where+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		string(f.Role), string(f.Status), f.Search, f.Limit, f.offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]User, 0, f.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

func (r *PGRepo) FindAdmin(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = 'admin' ORDER BY created_at LIMIT 1`))
}

func (r *PGRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
