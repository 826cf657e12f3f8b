package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/config"
	"github.com/BaSui01/aimodal/internal/metrics"
)

// =============================================================================
// 🗄️ 会话存储
// =============================================================================

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("store: record not found")

// IsNotFound 判断是否为记录不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// 视频来源
const (
	SourceUpload    = "upload"
	SourceGenerated = "generated"
)

// VideoRecord 是一次上传或生成得到的视频引用
type VideoRecord struct {
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	Source      string    `json:"source"`
	SavedAt     time.Time `json:"saved_at"`
}

// TaskRecord 是一个生成任务的最后已知状态
type TaskRecord struct {
	TaskID    string             `json:"task_id"`
	Prompt    string             `json:"prompt,omitempty"`
	Provider  string             `json:"provider,omitempty"`
	Settings  map[string]float64 `json:"settings,omitempty"`
	Status    string             `json:"status"`
	Progress  float64            `json:"progress"`
	VideoID   string             `json:"video_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store 保存跨进程的会话状态：最近的视频引用与生成任务
type Store interface {
	// SaveVideo 记录最近的视频引用
	SaveVideo(ctx context.Context, rec VideoRecord) error
	// LastVideo 返回最近保存的视频引用，没有时返回 ErrNotFound
	LastVideo(ctx context.Context) (*VideoRecord, error)
	// SaveTask 按 TaskID 插入或更新任务，更新时保留 CreatedAt
	SaveTask(ctx context.Context, rec TaskRecord) error
	// GetTask 按 ID 读取任务
	GetTask(ctx context.Context, taskID string) (*TaskRecord, error)
	// ListTasks 按 UpdatedAt 倒序返回最多 limit 个任务，limit <= 0 表示不限制
	ListTasks(ctx context.Context, limit int) ([]TaskRecord, error)
	// Reset 丢弃全部会话状态
	Reset(ctx context.Context) error
	// Close 释放连接
	Close() error
}

// Open 按配置创建存储，并在启用指标时记录每次操作耗时
func Open(cfg config.StoreConfig, logger *zap.Logger, m *metrics.Collector) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "store"), zap.String("driver", cfg.Driver))

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			if path, err = DefaultPath(); err != nil {
				return nil, err
			}
		}
		s, err = OpenSQLite(path, logger)
	case "postgres", "mysql":
		s, err = OpenSQL(cfg.Driver, cfg.DSN, logger)
	case "redis":
		s, err = OpenRedis(RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		}, logger)
	case "memory":
		s = NewMemory()
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	return instrument(s, driver, m), nil
}

// DefaultPath 返回默认的 sqlite 文件路径
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	dir = filepath.Join(dir, "aimodal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return filepath.Join(dir, "session.db"), nil
}

// stamp 填充缺失的时间戳
func stamp(rec *TaskRecord, now time.Time) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
}

// =============================================================================
// 📊 指标装饰
// =============================================================================

type instrumented struct {
	Store
	driver  string
	metrics *metrics.Collector
}

func instrument(s Store, driver string, m *metrics.Collector) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, driver: driver, metrics: m}
}

func (i *instrumented) observe(op string, start time.Time) {
	i.metrics.RecordStoreOp(i.driver, op, time.Since(start))
}

func (i *instrumented) SaveVideo(ctx context.Context, rec VideoRecord) error {
	defer i.observe("save_video", time.Now())
	return i.Store.SaveVideo(ctx, rec)
}

func (i *instrumented) LastVideo(ctx context.Context) (*VideoRecord, error) {
	defer i.observe("last_video", time.Now())
	return i.Store.LastVideo(ctx)
}

func (i *instrumented) SaveTask(ctx context.Context, rec TaskRecord) error {
	defer i.observe("save_task", time.Now())
	return i.Store.SaveTask(ctx, rec)
}

func (i *instrumented) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	defer i.observe("get_task", time.Now())
	return i.Store.GetTask(ctx, taskID)
}

func (i *instrumented) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	defer i.observe("list_tasks", time.Now())
	return i.Store.ListTasks(ctx, limit)
}

func (i *instrumented) Reset(ctx context.Context) error {
	defer i.observe("reset", time.Now())
	return i.Store.Reset(ctx)
}
