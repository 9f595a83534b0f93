package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/followup/ticket-service/internal/domain"
)

var (
	// ErrNotFound is returned when a ticket or user id does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict is returned by MergeUpdateIfVersion when the stored
	// document moved past the expected version.
	ErrVersionConflict = errors.New("repository: version conflict")
)

// Patch is a set of top-level document fields merged into a stored ticket.
// Fields not present in the patch are left untouched.
type Patch map[string]any

// Sort fields accepted by TicketFilter.
const (
	SortCreatedAt       = domain.FieldCreatedAt
	SortUpdatedAt       = domain.FieldUpdatedAt
	SortEscalationLevel = domain.FieldEscalationLevel
)

// TicketFilter captures equality filters and ordering for ticket queries.
type TicketFilter struct {
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	AssignedTo      *string
	CreatedBy       *string
	EscalationLevel *int
	// IncludeDeleted returns soft deleted tickets when no status filter is set.
	IncludeDeleted bool
	SortField      string
	Ascending      bool
	Limit          int
	Offset         int
}

// TicketRepository is the document store contract for tickets. Writes are
// shallow field merges; the last writer wins per field.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	MergeUpdate(ctx context.Context, id string, patch Patch) error
	MergeUpdateIfVersion(ctx context.Context, id string, version int64, patch Patch) error
}

// UserRepository resolves directory users that tickets can be assigned to.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Upsert(ctx context.Context, user *domain.User) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func normalizePage(filter TicketFilter) (limit, offset int) {
	limit = filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset = filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func sortField(filter TicketFilter) string {
	switch filter.SortField {
	case SortUpdatedAt, SortEscalationLevel:
		return filter.SortField
	default:
		return SortCreatedAt
	}
}

// encodeDocument renders a ticket as its stored JSON document. The id lives
// outside the document.
func encodeDocument(ticket *domain.Ticket) ([]byte, error) {
	doc := *ticket
	doc.ID = ""
	return json.Marshal(&doc)
}

func decodeDocument(id string, raw []byte) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	ticket.ID = id
	return &ticket, nil
}

// mergeDocument applies patch to raw at the top level.
func mergeDocument(raw []byte, patch Patch) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	for key, value := range patch {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %s: %w", key, err)
		}
		fields[key] = encoded
	}
	return json.Marshal(fields)
}

func documentVersion(raw []byte) (int64, error) {
	var probe struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, fmt.Errorf("decode stored version: %w", err)
	}
	return probe.Version, nil
}
