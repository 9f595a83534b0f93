package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/followup/ticket-service/internal/domain"
)

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository returns a Postgres-backed document store. Each ticket is
// one JSONB document; merges use the jsonb concatenation operator.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) (string, error) {
	doc, err := encodeDocument(ticket)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	const query = `INSERT INTO tickets (id, doc) VALUES ($1, $2::jsonb)`
	if _, err := r.pool.Exec(ctx, query, id, string(doc)); err != nil {
		return "", err
	}
	ticket.ID = id
	return id, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT doc FROM tickets WHERE id=$1`
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeDocument(id, raw)
}

var pgSortExpressions = map[string]string{
	SortCreatedAt:       `(doc->>'createdAt')::timestamptz`,
	SortUpdatedAt:       `(doc->>'updatedAt')::timestamptz`,
	SortEscalationLevel: `(doc->>'escalationLevel')::int`,
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("doc->>'status'=$%d", len(args)))
	} else if !filter.IncludeDeleted {
		args = append(args, string(domain.TicketStatusDeleted))
		clauses = append(clauses, fmt.Sprintf("doc->>'status'<>$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("doc->>'priority'=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("doc->'assignedTo'->>'userId'=$%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("doc->'createdBy'->>'userId'=$%d", len(args)))
	}
	if filter.EscalationLevel != nil {
		args = append(args, *filter.EscalationLevel)
		clauses = append(clauses, fmt.Sprintf("(doc->>'escalationLevel')::int=$%d", len(args)))
	}

	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}
	limit, offset := normalizePage(filter)

	query := fmt.Sprintf(`SELECT id, doc FROM tickets WHERE %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`,
		strings.Join(clauses, " AND "), pgSortExpressions[sortField(filter)], direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		ticket, err := decodeDocument(id, raw)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) MergeUpdate(ctx context.Context, id string, patch Patch) error {
	doc, err := mergeDocument([]byte("{}"), patch)
	if err != nil {
		return err
	}
	const query = `UPDATE tickets SET doc = doc || $2::jsonb WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, string(doc))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) MergeUpdateIfVersion(ctx context.Context, id string, version int64, patch Patch) error {
	doc, err := mergeDocument([]byte("{}"), patch)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET doc = doc || $2::jsonb
        WHERE id=$1 AND COALESCE((doc->>'version')::bigint, 0)=$3`
	cmd, err := r.pool.Exec(ctx, query, id, string(doc), version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}
