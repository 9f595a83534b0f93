package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/followup/ticket-service/internal/domain"
)

const userColumns = `id, email, name, role, active, created_at, updated_at`

type pgUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns the Postgres directory.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepository{pool: pool}
}

func (r *pgUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", id, err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user %s: %w", id, err)
	}
	return &user, nil
}

// Upsert inserts or replaces the directory entry, keeping created_at.
func (r *pgUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, email, name, role, active)
        VALUES (@id, @email, @name, @role, @active)
        ON CONFLICT (id) DO UPDATE
        SET email = EXCLUDED.email,
            name = EXCLUDED.name,
            role = EXCLUDED.role,
            active = EXCLUDED.active,
            updated_at = NOW()
        RETURNING ` + userColumns

	rows, err := r.pool.Query(ctx, query, pgx.NamedArgs{
		"id":     user.ID,
		"email":  user.Email,
		"name":   user.Name,
		"role":   string(user.Role),
		"active": user.Active,
	})
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	stored, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	*user = stored
	return nil
}

func scanUser(row pgx.CollectableRow) (domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	user.Role = domain.Role(role)
	return user, err
}
