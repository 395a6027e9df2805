package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/adsync/internal/domain"
)

const (
	redisPrefix  = "adsync:status:"
	redisJobsKey = "adsync:status-jobs"
)

type redisStore struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisStore constructs a Redis backed Store and checks connectivity.
func NewRedisStore(addr, password string, db int, logger *slog.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisStore{client: client, logger: logger, timeout: time.Second}, nil
}

func (rs *redisStore) Save(ctx context.Context, record domain.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, redisPrefix+record.Job, payload, 0)
	pipe.SAdd(ctx, redisJobsKey, record.Job)
	if _, err := pipe.Exec(ctx); err != nil {
		rs.logger.Error("redis status store error", "op", "save", "error", err)
		return err
	}
	return nil
}

func (rs *redisStore) Get(ctx context.Context, job string) (domain.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	raw, err := rs.client.Get(ctx, redisPrefix+job).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RunRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.RunRecord{}, err
	}
	var record domain.RunRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	return record, nil
}

func (rs *redisStore) List(ctx context.Context) ([]domain.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	jobs, err := rs.client.SMembers(ctx, redisJobsKey).Result()
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return []domain.RunRecord{}, nil
	}
	keys := make([]string, len(jobs))
	for i, job := range jobs {
		keys[i] = redisPrefix + job
	}
	values, err := rs.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RunRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var record domain.RunRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			rs.logger.Warn("skipping malformed run record", "error", err)
			continue
		}
		out = append(out, record)
	}
	sortByJob(out)
	return out, nil
}

func (rs *redisStore) Close() {
	if rs.client != nil {
		_ = rs.client.Close()
	}
}
