package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 存储
// =============================================================================

// RedisConfig Redis 存储配置
type RedisConfig struct {
	// Redis 地址
	Addr string
	// 密码
	Password string
	// 数据库编号
	DB int
	// 键前缀
	KeyPrefix string
	// 最大重试次数
	MaxRetries int
	// 连接池大小
	PoolSize int
}

// Redis 将记录保存为 JSON 字符串，任务按更新时间索引在有序集合中
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// OpenRedis 连接 Redis 并返回存储
func OpenRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "aimodal"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
		PoolSize:   cfg.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Debug("redis session store opened", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.KeyPrefix))
	return &Redis{client: client, prefix: cfg.KeyPrefix, logger: logger}, nil
}

func (r *Redis) videoKey() string         { return r.prefix + ":video:last" }
func (r *Redis) taskKey(id string) string { return r.prefix + ":task:" + id }
func (r *Redis) taskIndexKey() string     { return r.prefix + ":tasks" }
func (r *Redis) keyPattern() string       { return r.prefix + ":*" }

func (r *Redis) check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (r *Redis) SaveVideo(ctx context.Context, rec VideoRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal video record: %w", err)
	}
	if err := r.client.Set(ctx, r.videoKey(), data, 0).Err(); err != nil {
		r.logger.Error("redis save video failed", zap.Error(err))
		return fmt.Errorf("save video: %w", err)
	}
	return nil
}

func (r *Redis) LastVideo(ctx context.Context) (*VideoRecord, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var rec VideoRecord
	if err := r.getJSON(ctx, r.videoKey(), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) SaveTask(ctx context.Context, rec TaskRecord) error {
	if err := r.check(); err != nil {
		return err
	}

	var prev TaskRecord
	switch err := r.getJSON(ctx, r.taskKey(rec.TaskID), &prev); {
	case err == nil:
		if !prev.CreatedAt.IsZero() {
			rec.CreatedAt = prev.CreatedAt
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}
	stamp(&rec, time.Now())

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task record: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.taskKey(rec.TaskID), data, 0)
		pipe.ZAdd(ctx, r.taskIndexKey(), redis.Z{
			Score:  float64(rec.UpdatedAt.UnixMilli()),
			Member: rec.TaskID,
		})
		return nil
	})
	if err != nil {
		r.logger.Error("redis save task failed", zap.String("task_id", rec.TaskID), zap.Error(err))
		return fmt.Errorf("save task %s: %w", rec.TaskID, err)
	}
	return nil
}

func (r *Redis) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var rec TaskRecord
	if err := r.getJSON(ctx, r.taskKey(taskID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	ids, err := r.client.ZRange(ctx, r.taskIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if len(ids) == 0 {
		return []TaskRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.taskKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := make([]TaskRecord, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec TaskRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.logger.Warn("skipping corrupt task record", zap.String("task_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}

	sortTasks(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Redis) Reset(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, r.keyPattern(), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

func (r *Redis) getJSON(ctx context.Context, key string, dest any) error {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		r.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}
