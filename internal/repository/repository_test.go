package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/followup/ticket-service/internal/domain"
)

func newSQLiteStore(t *testing.T) TicketRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := InitSQLiteSchema(context.Background(), db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return NewSQLiteTicketRepository(db)
}

var ticketStores = []struct {
	name string
	open func(t *testing.T) TicketRepository
}{
	{name: "memory", open: func(*testing.T) TicketRepository { return NewMemoryTicketRepository() }},
	{name: "sqlite", open: newSQLiteStore},
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleTicket(offset time.Duration) *domain.Ticket {
	created := baseTime.Add(offset)
	return &domain.Ticket{
		IncNumber:       "123456789",
		MSISDN:          "15551234567",
		SubmittedBy:     "Dana Agent",
		Description:     "Line drops after a minute",
		Priority:        domain.TicketPriorityNormal,
		Status:          domain.TicketStatusOpen,
		EscalationLevel: domain.MinEscalationLevel,
		Comments:        []domain.Comment{},
		History:         []domain.HistoryEntry{},
		CreatedAt:       created,
		UpdatedAt:       created,
		CreatedBy:       domain.ActorSnapshot{UserID: "u-1", Role: domain.RoleAgent},
	}
}

func TestTicketStoreCreateAndGet(t *testing.T) {
	for _, store := range ticketStores {
		t.Run(store.name, func(t *testing.T) {
			repo := store.open(t)
			ctx := context.Background()

			ticket := sampleTicket(0)
			id, err := repo.Create(ctx, ticket)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if id == "" || ticket.ID != id {
				t.Fatalf("id: got %q, ticket.ID %q", id, ticket.ID)
			}

			got, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.ID != id || got.IncNumber != "123456789" || got.Status != domain.TicketStatusOpen {
				t.Errorf("stored ticket mismatch: %+v", got)
			}
			if !got.CreatedAt.Equal(ticket.CreatedAt) {
				t.Errorf("createdAt: got %v, want %v", got.CreatedAt, ticket.CreatedAt)
			}

			if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing id: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestTicketStoreMergeUpdateIsShallow(t *testing.T) {
	for _, store := range ticketStores {
		t.Run(store.name, func(t *testing.T) {
			repo := store.open(t)
			ctx := context.Background()
			id, err := repo.Create(ctx, sampleTicket(0))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			err = repo.MergeUpdate(ctx, id, Patch{
				domain.FieldEscalationLevel: 2,
				domain.FieldAssignedTo:      &domain.Assignment{UserID: "u-9", Email: "nine@example.com"},
			})
			if err != nil {
				t.Fatalf("MergeUpdate: %v", err)
			}

			got, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.EscalationLevel != 2 {
				t.Errorf("escalationLevel: got %d, want 2", got.EscalationLevel)
			}
			if got.AssignedTo == nil || got.AssignedTo.UserID != "u-9" {
				t.Errorf("assignedTo: got %+v", got.AssignedTo)
			}
			if got.Description != "Line drops after a minute" {
				t.Errorf("untouched field changed: %q", got.Description)
			}

			if err := repo.MergeUpdate(ctx, "missing", Patch{domain.FieldStatus: "closed"}); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing id: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestTicketStoreMergeUpdateIfVersion(t *testing.T) {
	for _, store := range ticketStores {
		t.Run(store.name, func(t *testing.T) {
			repo := store.open(t)
			ctx := context.Background()
			id, err := repo.Create(ctx, sampleTicket(0))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			if err := repo.MergeUpdateIfVersion(ctx, id, 0, Patch{domain.FieldVersion: 1, domain.FieldEscalationLevel: 2}); err != nil {
				t.Fatalf("first CAS: %v", err)
			}
			err = repo.MergeUpdateIfVersion(ctx, id, 0, Patch{domain.FieldVersion: 1, domain.FieldEscalationLevel: 3})
			if !errors.Is(err, ErrVersionConflict) {
				t.Fatalf("stale CAS: got %v, want ErrVersionConflict", err)
			}
			if err := repo.MergeUpdateIfVersion(ctx, "missing", 0, Patch{}); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing id: got %v, want ErrNotFound", err)
			}

			got, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Version != 1 || got.EscalationLevel != 2 {
				t.Errorf("got version %d level %d, want 1 and 2", got.Version, got.EscalationLevel)
			}
		})
	}
}

func TestTicketStoreList(t *testing.T) {
	for _, store := range ticketStores {
		t.Run(store.name, func(t *testing.T) {
			repo := store.open(t)
			ctx := context.Background()

			var ids []string
			for i := 0; i < 3; i++ {
				id, err := repo.Create(ctx, sampleTicket(time.Duration(i)*time.Hour))
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				ids = append(ids, id)
			}
			if err := repo.MergeUpdate(ctx, ids[1], Patch{domain.FieldStatus: domain.TicketStatusDeleted}); err != nil {
				t.Fatalf("MergeUpdate: %v", err)
			}
			if err := repo.MergeUpdate(ctx, ids[2], Patch{domain.FieldPriority: domain.TicketPriorityHigh}); err != nil {
				t.Fatalf("MergeUpdate: %v", err)
			}

			got, err := repo.List(ctx, TicketFilter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[0] {
				t.Fatalf("default list: got %v, want newest first without deleted", ticketIDs(got))
			}

			got, err = repo.List(ctx, TicketFilter{IncludeDeleted: true, Ascending: true})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 3 || got[0].ID != ids[0] {
				t.Errorf("ascending with deleted: got %v", ticketIDs(got))
			}

			high := domain.TicketPriorityHigh
			got, err = repo.List(ctx, TicketFilter{Priority: &high})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 1 || got[0].ID != ids[2] {
				t.Errorf("priority filter: got %v", ticketIDs(got))
			}

			deleted := domain.TicketStatusDeleted
			got, err = repo.List(ctx, TicketFilter{Status: &deleted})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 1 || got[0].ID != ids[1] {
				t.Errorf("status filter: got %v", ticketIDs(got))
			}

			got, err = repo.List(ctx, TicketFilter{Limit: 1, Offset: 1})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 1 || got[0].ID != ids[0] {
				t.Errorf("paging: got %v", ticketIDs(got))
			}
		})
	}
}

func TestMemoryStoreConcurrentMergesDoNotCorruptDocument(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	id, err := repo.Create(ctx, sampleTicket(0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			if err := repo.MergeUpdate(ctx, id, Patch{domain.FieldEscalationLevel: level}); err != nil {
				t.Errorf("MergeUpdate: %v", err)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.EscalationLevel < 1 || got.EscalationLevel > 5 {
		t.Errorf("escalationLevel out of range: %d", got.EscalationLevel)
	}
}

func TestUserStores(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()
	if err := InitSQLiteSchema(context.Background(), db); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	stores := map[string]UserRepository{
		"memory": NewMemoryUserRepository(),
		"sqlite": NewSQLiteUserRepository(db),
	}
	for name, repo := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := &domain.User{ID: "u-7", Email: "seven@example.com", Name: "Seven", Role: domain.RolePod, Active: true}
			if err := repo.Upsert(ctx, user); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			user.Active = false
			if err := repo.Upsert(ctx, user); err != nil {
				t.Fatalf("second Upsert: %v", err)
			}

			got, err := repo.GetByID(ctx, "u-7")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Email != "seven@example.com" || got.Role != domain.RolePod || got.Active {
				t.Errorf("got %+v", got)
			}
			if _, err := repo.GetByID(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing user: got %v, want ErrNotFound", err)
			}
		})
	}
}

func ticketIDs(tickets []domain.Ticket) []string {
	ids := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
	}
	return ids
}
