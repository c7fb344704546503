package session

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"

	"github.com/orderpilot-ai/orderpilot/chatmodel"
)

var logger = xlog.NewPackageLogger("github.com/orderpilot-ai/orderpilot", "session")

// DefaultTTL bounds how long an idle conversation's context survives.
const DefaultTTL = 24 * time.Hour

// The redis store persists conversation context for multi-instance
// deployments. Keys are namespaced as
// `<prefix>/convstate/<tenantID>/<chatID>` and refreshed with the TTL on
// every save, so abandoned conversations age out on their own.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a Store backed by the given Redis client. A
// non-positive ttl falls back to DefaultTTL.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (m *redisStore) key(tenantID, chatID string) string {
	return path.Join(m.prefix, "convstate", tenantID, chatID)
}

func (m *redisStore) Load(ctx context.Context) (*Context, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	data, err := m.client.Get(ctx, m.key(tenantID, chatID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Context{}, nil
		}
		return nil, errors.Wrap(err, "failed to load conversation context")
	}

	var sc Context
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		// a corrupt snapshot is dropped rather than wedging the chat
		logger.ContextKV(ctx, xlog.WARNING,
			"chat", chatID,
			"status", "corrupt_context_dropped",
			"err", err.Error())
		return &Context{}, nil
	}
	return &sc, nil
}

func (m *redisStore) Save(ctx context.Context, sc *Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversation context")
	}
	if err := m.client.Set(ctx, m.key(tenantID, chatID), data, m.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to store conversation context")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	if err := m.client.Del(ctx, m.key(tenantID, chatID)).Err(); err != nil {
		return errors.Wrap(err, "failed to reset conversation context")
	}
	return nil
}
