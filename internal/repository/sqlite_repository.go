package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/followup/ticket-service/internal/domain"
)

// InitSQLiteSchema creates the tables the SQLite stores rely on.
func InitSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tickets (
  id TEXT PRIMARY KEY,
  doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(json_extract(doc, '$.status'));
CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(json_extract(doc, '$.createdAt'));

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`)
	return err
}

type sqliteTicketRepository struct {
	db *sql.DB
}

// NewSQLiteTicketRepository stores ticket documents as JSON text. Merges run
// inside a transaction so concurrent writers never interleave a single patch.
func NewSQLiteTicketRepository(db *sql.DB) TicketRepository {
	return &sqliteTicketRepository{db: db}
}

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (string, error) {
	doc, err := encodeDocument(ticket)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, `INSERT INTO tickets (id, doc) VALUES (?, ?)`, id, string(doc)); err != nil {
		return "", err
	}
	ticket.ID = id
	return id, nil
}

func (r *sqliteTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM tickets WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(id, []byte(raw))
}

var sqliteSortExpressions = map[string]string{
	SortCreatedAt:       `julianday(json_extract(doc, '$.createdAt'))`,
	SortUpdatedAt:       `julianday(json_extract(doc, '$.updatedAt'))`,
	SortEscalationLevel: `CAST(json_extract(doc, '$.escalationLevel') AS INTEGER)`,
}

func (r *sqliteTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		clauses = append(clauses, `json_extract(doc, '$.status') = ?`)
		args = append(args, string(*filter.Status))
	} else if !filter.IncludeDeleted {
		clauses = append(clauses, `json_extract(doc, '$.status') <> ?`)
		args = append(args, string(domain.TicketStatusDeleted))
	}
	if filter.Priority != nil {
		clauses = append(clauses, `json_extract(doc, '$.priority') = ?`)
		args = append(args, string(*filter.Priority))
	}
	if filter.AssignedTo != nil {
		clauses = append(clauses, `json_extract(doc, '$.assignedTo.userId') = ?`)
		args = append(args, *filter.AssignedTo)
	}
	if filter.CreatedBy != nil {
		clauses = append(clauses, `json_extract(doc, '$.createdBy.userId') = ?`)
		args = append(args, *filter.CreatedBy)
	}
	if filter.EscalationLevel != nil {
		clauses = append(clauses, `CAST(json_extract(doc, '$.escalationLevel') AS INTEGER) = ?`)
		args = append(args, *filter.EscalationLevel)
	}

	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}
	limit, offset := normalizePage(filter)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT id, doc FROM tickets WHERE %s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`,
		strings.Join(clauses, " AND "), sqliteSortExpressions[sortField(filter)], direction)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		ticket, err := decodeDocument(id, []byte(raw))
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *sqliteTicketRepository) MergeUpdate(ctx context.Context, id string, patch Patch) error {
	return r.merge(ctx, id, nil, patch)
}

func (r *sqliteTicketRepository) MergeUpdateIfVersion(ctx context.Context, id string, version int64, patch Patch) error {
	return r.merge(ctx, id, &version, patch)
}

func (r *sqliteTicketRepository) merge(ctx context.Context, id string, expected *int64, patch Patch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM tickets WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if expected != nil {
		current, err := documentVersion([]byte(raw))
		if err != nil {
			return err
		}
		if current != *expected {
			return ErrVersionConflict
		}
	}

	merged, err := mergeDocument([]byte(raw), patch)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET doc = ? WHERE id = ?`, string(merged), id); err != nil {
		return err
	}
	return tx.Commit()
}

type sqliteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository returns a SQLite-backed user directory.
func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var (
		user               domain.User
		role               string
		active             int
		createdAt, updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, active, created_at, updated_at FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Email, &user.Name, &role, &active, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	user.Active = active != 0
	user.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	user.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &user, nil
}

func (r *sqliteUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	active := 0
	if user.Active {
		active = 1
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, role, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name,
  role = excluded.role, active = excluded.active, updated_at = excluded.updated_at`,
		user.ID, user.Email, user.Name, string(user.Role), active,
		user.CreatedAt.Format(time.RFC3339Nano), user.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}
