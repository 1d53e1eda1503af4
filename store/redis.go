package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// existsField marks a document hash so that documents with no fields still exist.
const existsField = "__doc"

// RedisStore keeps each document in a hash with one field per leaf path. Values are
// JSON encoded. Every write publishes on "<collection>:<id>:changes".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func changesChannel(k string) string {
	return k + ":changes"
}

func (s *RedisStore) Create(ctx context.Context, collection, id string, doc Document) error {
	norm, err := normalizeDocument(doc)
	if err != nil {
		return fmt.Errorf("create %s: %w", key(collection, id), err)
	}
	leaves := map[string]string{}
	for k, v := range norm {
		if err := flatten(k, v, leaves); err != nil {
			return fmt.Errorf("create %s: %w", key(collection, id), err)
		}
	}

	k := key(collection, id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, hashArgs(leaves)...)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		pipe.Publish(ctx, changesChannel(k), "create")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store %s in Redis: %w", k, err)
	}
	return nil
}

func (s *RedisStore) ReadOnce(ctx context.Context, collection, id string) (Document, error) {
	k := key(collection, id)
	fields, err := s.client.HGetAll(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error reading %s: %w", k, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	delete(fields, existsField)
	return unflatten(fields)
}

func (s *RedisStore) WritePartial(ctx context.Context, collection, id string, fields Fields) error {
	k := key(collection, id)
	leaves := map[string]string{}
	for path, v := range fields {
		if _, err := splitPath(path); err != nil {
			return err
		}
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("write %s.%s: %w", k, path, err)
		}
		if err := flatten(path, nv, leaves); err != nil {
			return fmt.Errorf("write %s.%s: %w", k, path, err)
		}
	}

	// There is no compare-and-swap: the existence check and the stale-leaf scan
	// race other writers, which is accepted.
	existing, err := s.client.HKeys(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("redis error reading %s: %w", k, err)
	}
	if len(existing) == 0 {
		return ErrNotFound
	}
	var stale []string
	for _, field := range existing {
		if _, rewritten := leaves[field]; rewritten || field == existsField {
			continue
		}
		for path := range fields {
			if field == path || strings.HasPrefix(field, path+".") {
				stale = append(stale, field)
				break
			}
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.HDel(ctx, k, stale...)
		}
		pipe.HSet(ctx, k, hashArgs(leaves)...)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		pipe.Publish(ctx, changesChannel(k), "write")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s in Redis: %w", k, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, collection, id string, onChange func(Document), onError func(error)) (Unsubscribe, error) {
	k := key(collection, id)
	ps := s.client.Subscribe(ctx, changesChannel(k))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", k, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			if err := ps.Close(); err != nil {
				log.Debug().Err(err).Str("key", k).Msg("closing pubsub")
			}
		})
	}

	deliver := func() bool {
		doc, err := s.ReadOnce(subCtx, collection, id)
		if subCtx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrNotFound) {
			return true
		}
		if err != nil {
			onError(err)
			return false
		}
		onChange(doc)
		return true
	}

	go func() {
		if !deliver() {
			unsubscribe()
			return
		}
		for {
			if _, err := ps.ReceiveMessage(subCtx); err != nil {
				if subCtx.Err() == nil {
					onError(fmt.Errorf("subscription %s: %w", k, err))
				}
				unsubscribe()
				return
			}
			if !deliver() {
				unsubscribe()
				return
			}
		}
	}()

	return unsubscribe, nil
}

func hashArgs(leaves map[string]string) []any {
	args := make([]any, 0, 2+len(leaves)*2)
	args = append(args, existsField, "1")
	for f, v := range leaves {
		args = append(args, f, v)
	}
	return args
}
