package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/domain"
)

const (
	ticketCachePrefix      = "followup:ticket:"
	ticketGenerationPrefix = "followup:ticket-gen:"
)

var errStaleRead = errors.New("ticket changed during cache fill")

type cachedTicketRepository struct {
	inner  TicketRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTicketRepository wraps inner with a Redis read-through cache for
// GetByID. Writes go to inner first, then drop the cached snapshot and bump a
// per-ticket generation counter. A read only fills the cache when the
// generation is unchanged since before it hit inner, so a snapshot read
// before a concurrent write is never cached after that write's invalidation.
// Cache failures are logged and never fail the call.
func NewCachedTicketRepository(inner TicketRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) TicketRepository {
	if client == nil || ttl <= 0 {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedTicketRepository{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (r *cachedTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (string, error) {
	return r.inner.Create(ctx, ticket)
}

func (r *cachedTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	key := ticketCachePrefix + id
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if ticket, decodeErr := decodeDocument(id, raw); decodeErr == nil {
			return ticket, nil
		}
		r.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("ticket cache read failed", zap.String("ticket_id", id), zap.Error(err))
	}

	generation, err := ticketGeneration(ctx, r.client, id)
	if err != nil {
		r.logger.Warn("ticket cache generation read failed", zap.String("ticket_id", id), zap.Error(err))
	}

	ticket, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if generation >= 0 {
		r.fill(ctx, id, generation, ticket)
	}
	return ticket, nil
}

// fill caches ticket unless the generation moved since the read started.
func (r *cachedTicketRepository) fill(ctx context.Context, id string, generation int64, ticket *domain.Ticket) {
	doc, err := encodeDocument(ticket)
	if err != nil {
		return
	}
	genKey := ticketGenerationPrefix + id
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := ticketGeneration(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != generation {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ticketCachePrefix+id, doc, r.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("ticket cache fill skipped", zap.String("ticket_id", id))
	default:
		r.logger.Warn("ticket cache write failed", zap.String("ticket_id", id), zap.Error(err))
	}
}

// ticketGeneration returns the write counter for id, 0 when none was recorded and
// -1 when it cannot be read.
func ticketGeneration(ctx context.Context, cmd redis.Cmdable, id string) (int64, error) {
	n, err := cmd.Get(ctx, ticketGenerationPrefix+id).Int64()
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, redis.Nil):
		return 0, nil
	default:
		return -1, err
	}
}

func (r *cachedTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	return r.inner.List(ctx, filter)
}

func (r *cachedTicketRepository) MergeUpdate(ctx context.Context, id string, patch Patch) error {
	err := r.inner.MergeUpdate(ctx, id, patch)
	if err == nil {
		r.invalidate(ctx, id)
	}
	return err
}

func (r *cachedTicketRepository) MergeUpdateIfVersion(ctx context.Context, id string, version int64, patch Patch) error {
	err := r.inner.MergeUpdateIfVersion(ctx, id, version, patch)
	if err == nil || errors.Is(err, ErrVersionConflict) {
		// a conflict means the cached snapshot is stale; the retry must re-read
		r.invalidate(ctx, id)
	}
	return err
}

func (r *cachedTicketRepository) invalidate(ctx context.Context, id string) {
	genKey := ticketGenerationPrefix + id
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, 2*r.ttl)
		pipe.Del(ctx, ticketCachePrefix+id)
		return nil
	})
	if err != nil {
		r.logger.Warn("ticket cache invalidation failed", zap.String("ticket_id", id), zap.Error(err))
	}
}
