package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JoaoGuiPan/bank-account/internal/domain"
	sharedredis "github.com/JoaoGuiPan/bank-account/internal/redis"
)

const accountViewKeyPrefix = "account:view:"

// AccountReadRepository serves account reads. Redis holds the read model; any
// miss falls back to PostgreSQL transparently and warms the cache on the way
// out.
type AccountReadRepository struct {
	db    *sql.DB
	redis *goredis.Client
	cache *sharedredis.ViewCache[domain.Account]
}

func NewAccountReadRepository(db *sql.DB, redisClient *goredis.Client) *AccountReadRepository {
	return &AccountReadRepository{
		db:    db,
		redis: redisClient,
		cache: sharedredis.NewViewCache[domain.Account](redisClient, 0),
	}
}

// GetByID returns an account view, trying Redis first then PostgreSQL.
func (r *AccountReadRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	cacheKey := accountViewKeyPrefix + id

	if account, ok := r.cache.Get(ctx, cacheKey); ok {
		return account, nil
	}

	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	r.cache.Set(ctx, cacheKey, account)
	return account, nil
}

// RefreshAccountView re-reads an account from PostgreSQL and replaces its
// cached view. Called by the balance projector after every account event. A
// vanished account (admin reset) drops the stale view instead.
func (r *AccountReadRepository) RefreshAccountView(ctx context.Context, id string) error {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, domain.ErrAccountNotFound) {
		r.cache.Delete(ctx, accountViewKeyPrefix+id)
		return nil
	}
	if err != nil {
		return err
	}
	r.cache.Set(ctx, accountViewKeyPrefix+id, account)
	return nil
}

const processedEventKeyPrefix = "processed:event:"

// IsEventProcessed reports whether an event has already been applied to the
// read model. Guards against duplicate delivery under at-least-once stream
// semantics.
func (r *AccountReadRepository) IsEventProcessed(ctx context.Context, key string) bool {
	val, err := r.redis.Exists(ctx, processedEventKeyPrefix+key).Result()
	return err == nil && val > 0
}

// MarkEventProcessed records that an event has been applied. The marker
// expires after 72 hours, long enough to cover any realistic redelivery
// window from a consumer group.
func (r *AccountReadRepository) MarkEventProcessed(ctx context.Context, key string) {
	if err := r.redis.Set(ctx, processedEventKeyPrefix+key, "1", 72*time.Hour).Err(); err != nil {
		log.Printf("Failed to mark event %s as processed: %v", key, err)
	}
}
