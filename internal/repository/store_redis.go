package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rps_arena/internal/store"
)

const redisTxRetries = 8

// RedisStore keeps each record as a hash of JSON-encoded fields, an index set
// per collection and a pub/sub channel per record for change notification.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func NewRedisStore(client *redis.Client, prefix string, log *zap.SugaredLogger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log,
	}
}

func (r *RedisStore) recordKey(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisStore) indexKey(collection string) string {
	return r.prefix + ":idx:" + collection
}

func (r *RedisStore) channel(key string) string {
	return r.prefix + ":chg:" + key
}

func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if _, _, err := store.Split(key); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.recordKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return encodeHash(fields)
}

func (r *RedisStore) Update(ctx context.Context, key string, fields store.Fields) error {
	_, id, err := store.Split(key)
	if err != nil {
		return err
	}
	set, unset, err := store.EncodeFields(fields)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.queueWrite(ctx, pipe, key, id, set, unset)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis update %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) UpdateIf(ctx context.Context, key string, cond store.Fields, fields store.Fields) (bool, error) {
	_, id, err := store.Split(key)
	if err != nil {
		return false, err
	}
	set, unset, err := store.EncodeFields(fields)
	if err != nil {
		return false, err
	}

	return r.guarded(ctx, key, cond, func(ctx context.Context, pipe redis.Pipeliner) {
		r.queueWrite(ctx, pipe, key, id, set, unset)
	})
}

func (r *RedisStore) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	id, err := store.NewID()
	if err != nil {
		return "", err
	}
	set, _, err := store.EncodeFields(fields)
	if err != nil {
		return "", err
	}
	key := store.Key(collection, id)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.queueWrite(ctx, pipe, key, id, set, nil)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis create in %s: %w", collection, err)
	}
	return id, nil
}

func (r *RedisStore) CreateIfAbsent(ctx context.Context, key string, fields store.Fields) (bool, error) {
	_, id, err := store.Split(key)
	if err != nil {
		return false, err
	}
	set, _, err := store.EncodeFields(fields)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	created := false
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, r.recordKey(key)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.queueWrite(ctx, pipe, key, id, set, nil)
			return nil
		})
		if err == nil {
			created = true
		}
		return err
	}, r.recordKey(key))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis create %s: %w", key, err)
	}
	return created, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	collection, id, err := store.Split(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordKey(key))
		pipe.SRem(ctx, r.indexKey(collection), id)
		pipe.Publish(ctx, r.channel(key), "deleted")
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) DeleteIf(ctx context.Context, key string, cond store.Fields) (bool, error) {
	collection, id, err := store.Split(key)
	if err != nil {
		return false, err
	}
	return r.guarded(ctx, key, cond, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, r.recordKey(key))
		pipe.SRem(ctx, r.indexKey(collection), id)
		pipe.Publish(ctx, r.channel(key), "deleted")
	})
}

// guarded runs write inside MULTI only if the record exists and matches cond
// under WATCH. A transaction aborted by a concurrent writer is re-evaluated.
func (r *RedisStore) guarded(
	ctx context.Context,
	key string,
	cond store.Fields,
	write func(ctx context.Context, pipe redis.Pipeliner),
) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(cond))
	for name := range cond {
		names = append(names, name)
	}
	rk := r.recordKey(key)

	for attempt := 0; attempt < redisTxRetries; attempt++ {
		applied := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, rk).Result()
			if err != nil || n == 0 {
				return err
			}
			if len(names) > 0 {
				values, err := tx.HMGet(ctx, rk, names...).Result()
				if err != nil {
					return err
				}
				for i, name := range names {
					var stored json.RawMessage
					if s, ok := values[i].(string); ok {
						stored = json.RawMessage(s)
					}
					match, err := store.Matches(stored, cond[name])
					if err != nil || !match {
						return err
					}
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				write(ctx, pipe)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, rk)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("redis conditional write %s: %w", key, err)
		}
		return applied, nil
	}
	r.log.Warnf("redis conditional write on %s kept conflicting, giving up", key)
	return false, nil
}

func (r *RedisStore) queueWrite(ctx context.Context, pipe redis.Pipeliner, key, id string, set map[string]json.RawMessage, unset []string) {
	collection, _, _ := store.Split(key)
	rk := r.recordKey(key)
	if len(set) > 0 {
		values := make(map[string]any, len(set))
		for name, raw := range set {
			values[name] = string(raw)
		}
		pipe.HSet(ctx, rk, values)
	}
	if len(unset) > 0 {
		pipe.HDel(ctx, rk, unset...)
	}
	pipe.SAdd(ctx, r.indexKey(collection), id)
	pipe.Publish(ctx, r.channel(key), "updated")
}

func (r *RedisStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (func(), error) {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	var pubsub *redis.PubSub
	if id != "" {
		pubsub = r.client.Subscribe(ctx, r.channel(path))
	} else {
		pubsub = r.client.PSubscribe(ctx, r.channel(collection+"/*"))
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", path, err)
	}

	feed := store.NewFeed(ctx, fn)

	if id != "" {
		feed.Push(r.snapshot(ctx, path))
	} else {
		snaps, err := r.List(ctx, collection)
		if err != nil {
			feed.Close()
			_ = pubsub.Close()
			return nil, err
		}
		for _, snap := range snaps {
			feed.Push(snap)
		}
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		channelPrefix := r.channel("")
		for {
			select {
			case <-feed.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					feed.Close()
					return
				}
				key := strings.TrimPrefix(msg.Channel, channelPrefix)
				feed.Push(r.snapshot(ctx, key))
			}
		}
	}()

	return feed.Close, nil
}

func (r *RedisStore) snapshot(ctx context.Context, key string) store.Snapshot {
	_, id, _ := store.Split(key)
	snap := store.Snapshot{Key: key, ID: id}
	value, err := r.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Errorf("redis snapshot %s: %v", key, err)
		}
		return snap
	}
	snap.Value = value
	snap.Exists = true
	return snap
}

func (r *RedisStore) Query(ctx context.Context, collection, field string, equals any, limit int) ([]store.Snapshot, error) {
	all, err := r.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []store.Snapshot
	for _, snap := range all {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(snap.Value, &fields); err != nil {
			return nil, err
		}
		match, err := store.Matches(fields[field], equals)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		out = append(out, snap)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *RedisStore) List(ctx context.Context, collection string) ([]store.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", collection, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.recordKey(store.Key(collection, id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", collection, err)
	}

	out := make([]store.Snapshot, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		value, err := encodeHash(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{
			Key:    store.Key(collection, id),
			ID:     id,
			Value:  value,
			Exists: true,
		})
	}
	return out, nil
}

func encodeHash(fields map[string]string) ([]byte, error) {
	rec := make(map[string]json.RawMessage, len(fields))
	for name, value := range fields {
		rec[name] = json.RawMessage(value)
	}
	return json.Marshal(rec)
}
