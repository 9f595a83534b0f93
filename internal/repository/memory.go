package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/followup/ticket-service/internal/domain"
)

type memoryTicketRepository struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryTicketRepository returns a process-local document store.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{docs: make(map[string][]byte)}
}

func (r *memoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := encodeDocument(ticket)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	r.mu.Lock()
	r.docs[id] = raw
	r.mu.Unlock()
	ticket.ID = id
	return id, nil
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	raw, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDocument(id, raw)
}

func (r *memoryTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	tickets := make([]domain.Ticket, 0, len(r.docs))
	for id, raw := range r.docs {
		ticket, err := decodeDocument(id, raw)
		if err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		if matches(ticket, filter) {
			tickets = append(tickets, *ticket)
		}
	}
	r.mu.RUnlock()

	field := sortField(filter)
	sort.SliceStable(tickets, func(i, j int) bool {
		less, equal := compareTickets(&tickets[i], &tickets[j], field)
		if equal {
			return tickets[i].ID < tickets[j].ID
		}
		if filter.Ascending {
			return less
		}
		return !less
	})

	limit, offset := normalizePage(filter)
	if offset >= len(tickets) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(tickets) {
		end = len(tickets)
	}
	return tickets[offset:end], nil
}

func (r *memoryTicketRepository) MergeUpdate(ctx context.Context, id string, patch Patch) error {
	return r.merge(ctx, id, nil, patch)
}

func (r *memoryTicketRepository) MergeUpdateIfVersion(ctx context.Context, id string, version int64, patch Patch) error {
	return r.merge(ctx, id, &version, patch)
}

func (r *memoryTicketRepository) merge(ctx context.Context, id string, expected *int64, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	if expected != nil {
		current, err := documentVersion(raw)
		if err != nil {
			return err
		}
		if current != *expected {
			return ErrVersionConflict
		}
	}
	merged, err := mergeDocument(raw, patch)
	if err != nil {
		return err
	}
	r.docs[id] = merged
	return nil
}

func matches(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.Status != nil {
		if ticket.Status != *filter.Status {
			return false
		}
	} else if !filter.IncludeDeleted && ticket.IsDeleted() {
		return false
	}
	if filter.Priority != nil && ticket.Priority != *filter.Priority {
		return false
	}
	if filter.AssignedTo != nil && (ticket.AssignedTo == nil || ticket.AssignedTo.UserID != *filter.AssignedTo) {
		return false
	}
	if filter.CreatedBy != nil && ticket.CreatedBy.UserID != *filter.CreatedBy {
		return false
	}
	if filter.EscalationLevel != nil && ticket.EscalationLevel != *filter.EscalationLevel {
		return false
	}
	return true
}

func compareTickets(a, b *domain.Ticket, field string) (less, equal bool) {
	switch field {
	case SortUpdatedAt:
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	case SortEscalationLevel:
		return a.EscalationLevel < b.EscalationLevel, a.EscalationLevel == b.EscalationLevel
	default:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
}

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryUserRepository returns a process-local user directory.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[string]domain.User)}
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}
