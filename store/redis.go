package store

import (
	"context"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	keyHandle   = "qxy:handle:"
	keyHandles  = "qxy:handles"
	keyDataset  = "qxy:dataset:"
	keyDatasets = "qxy:datasets"
)

// Redis is a store in a Redis server.
// Records are JSON values, indexed by a set of handle IDs and a sorted set of datasets scored by theta.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server at a URL such as redis://localhost:6379/0.
func OpenRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, opts.Addr)
	}
	return &Redis{client: client}, nil
}

// WithPrefix namespaces all keys of the store, so that several stores can share one server.
func (s *Redis) WithPrefix(prefix string) *Redis {
	return &Redis{client: s.client, prefix: prefix}
}

func (s *Redis) key(parts ...string) string {
	return s.prefix + strings.Join(parts, "")
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) PutHandle(ctx context.Context, r HandleRecord) error {
	if r.ID == "" {
		return errors.Errorf("empty id")
	}
	b, err := sonic.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(keyHandle, r.ID), b, 0)
		pipe.SAdd(ctx, s.key(keyHandles), r.ID)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, r.ID)
	}
	return nil
}

func (s *Redis) GetHandle(ctx context.Context, id string) (HandleRecord, error) {
	var r HandleRecord
	if err := s.get(ctx, s.key(keyHandle, id), &r); err != nil {
		return HandleRecord{}, errors.Wrap(err, id)
	}
	return r, nil
}

func (s *Redis) get(ctx context.Context, key string, v any) error {
	b, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		return ErrNotFound
	case err != nil:
		return errors.Wrap(err, "")
	}
	if err := sonic.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, string(b))
	}
	return nil
}

func (s *Redis) ListHandles(ctx context.Context) ([]HandleRecord, error) {
	ids, err := s.client.SMembers(ctx, s.key(keyHandles)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	slices.Sort(ids)
	records := make([]HandleRecord, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetHandle(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Redis) PutDataset(ctx context.Context, d Dataset) error {
	if err := d.validate(); err != nil {
		return errors.Wrap(err, "")
	}
	b, err := sonic.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(keyDataset, d.ID()), b, 0)
		pipe.ZAdd(ctx, s.key(keyDatasets), redis.Z{Score: d.Theta, Member: d.ID()})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, d.ID())
	}
	return nil
}

func (s *Redis) GetDataset(ctx context.Context, theta float64) (Dataset, error) {
	id := DatasetID(theta)
	var d Dataset
	if err := s.get(ctx, s.key(keyDataset, id), &d); err != nil {
		return Dataset{}, errors.Wrap(err, id)
	}
	return d, nil
}

func (s *Redis) ListDatasets(ctx context.Context) ([]Dataset, error) {
	ids, err := s.client.ZRange(ctx, s.key(keyDatasets), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ds := make([]Dataset, 0, len(ids))
	for _, id := range ids {
		var d Dataset
		if err := s.get(ctx, s.key(keyDataset, id), &d); err != nil {
			return nil, errors.Wrap(err, id)
		}
		ds = append(ds, d)
	}
	return ds, nil
}

// clear deletes all keys of the store.
func (s *Redis) clear(ctx context.Context) error {
	handles, err := s.client.SMembers(ctx, s.key(keyHandles)).Result()
	if err != nil {
		return errors.Wrap(err, "")
	}
	datasets, err := s.client.ZRange(ctx, s.key(keyDatasets), 0, -1).Result()
	if err != nil {
		return errors.Wrap(err, "")
	}
	keys := []string{s.key(keyHandles), s.key(keyDatasets)}
	for _, id := range handles {
		keys = append(keys, s.key(keyHandle, id))
	}
	for _, id := range datasets {
		keys = append(keys, s.key(keyDataset, id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
