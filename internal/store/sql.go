package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🗃️ GORM 存储（sqlite / postgres / mysql）
// =============================================================================

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

type videoRow struct {
	ID          uint   `gorm:"primaryKey"`
	FileID      string `gorm:"size:128;not null;index"`
	Filename    string `gorm:"size:255"`
	ContentType string `gorm:"size:100"`
	SizeBytes   int64
	Source      string    `gorm:"size:20"`
	SavedAt     time.Time `gorm:"not null"`
}

func (videoRow) TableName() string { return "aimodal_videos" }

type taskRow struct {
	TaskID    string             `gorm:"primaryKey;size:128"`
	Prompt    string             `gorm:"type:text"`
	Provider  string             `gorm:"size:50"`
	Settings  map[string]float64 `gorm:"serializer:json"`
	Status    string             `gorm:"size:20;index"`
	Progress  float64
	VideoID   string    `gorm:"size:128"`
	Error     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (taskRow) TableName() string { return "aimodal_tasks" }

// SQL 是基于 GORM 的存储实现
type SQL struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// OpenSQLite 打开 sqlite 文件存储
func OpenSQLite(path string, logger *zap.Logger) (*SQL, error) {
	pool := DefaultPoolConfig()
	// sqlite 单写者
	pool.MaxOpenConns = 1
	pool.MaxIdleConns = 1
	return openGorm(sqlite.Open(path), "sqlite", pool, logger)
}

// OpenSQL 打开 postgres 或 mysql 存储
func OpenSQL(driver, dsn string, logger *zap.Logger) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s store requires a dsn", driver)
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s (supported: postgres, mysql)", driver)
	}
	return openGorm(dialector, driver, DefaultPoolConfig(), logger)
}

// NewSQL 使用已打开的 GORM 连接创建存储，表结构由 Migrate 创建
func NewSQL(db *gorm.DB, pool PoolConfig, logger *zap.Logger) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	return &SQL{db: db, sqlDB: sqlDB, logger: logger}, nil
}

// Migrate 创建或更新会话表
func (s *SQL) Migrate(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&videoRow{}, &taskRow{}); err != nil {
		return fmt.Errorf("failed to migrate session tables: %w", err)
	}
	return nil
}

func openGorm(dialector gorm.Dialector, driver string, pool PoolConfig, logger *zap.Logger) (*SQL, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	s, err := NewSQL(db, pool, logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.logger.Debug("session store opened", zap.String("dialect", driver))
	return s, nil
}

// =============================================================================
// 🎯 Store 实现
// =============================================================================

func (s *SQL) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	return s.db.WithContext(ctx), nil
}

func (s *SQL) SaveVideo(ctx context.Context, rec VideoRecord) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	row := videoRow{
		FileID:      rec.FileID,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		Source:      rec.Source,
		SavedAt:     rec.SavedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("save video: %w", err)
	}
	return nil
}

func (s *SQL) LastVideo(ctx context.Context) (*VideoRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row videoRow
	if err := db.Order("id DESC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load last video: %w", err)
	}
	return &VideoRecord{
		FileID:      row.FileID,
		Filename:    row.Filename,
		ContentType: row.ContentType,
		SizeBytes:   row.SizeBytes,
		Source:      row.Source,
		SavedAt:     row.SavedAt,
	}, nil
}

func (s *SQL) SaveTask(ctx context.Context, rec TaskRecord) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	stamp(&rec, time.Now())
	row := taskRow{
		TaskID:    rec.TaskID,
		Prompt:    rec.Prompt,
		Provider:  rec.Provider,
		Settings:  rec.Settings,
		Status:    rec.Status,
		Progress:  rec.Progress,
		VideoID:   rec.VideoID,
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"prompt", "provider", "settings", "status", "progress", "video_id", "error", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save task %s: %w", rec.TaskID, err)
	}
	return nil
}

func (s *SQL) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row taskRow
	if err := db.Where("task_id = ?", taskID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	rec := row.record()
	return &rec, nil
}

func (s *SQL) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Order("updated_at DESC").Order("task_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []taskRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]TaskRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

func (s *SQL) Reset(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&videoRow{}).Error; err != nil {
			return fmt.Errorf("reset videos: %w", err)
		}
		if err := all.Delete(&taskRow{}).Error; err != nil {
			return fmt.Errorf("reset tasks: %w", err)
		}
		return nil
	})
}

// Ping 检查数据库连接
func (s *SQL) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("closing session store")
	return s.sqlDB.Close()
}

func (r taskRow) record() TaskRecord {
	return TaskRecord{
		TaskID:    r.TaskID,
		Prompt:    r.Prompt,
		Provider:  r.Provider,
		Settings:  r.Settings,
		Status:    r.Status,
		Progress:  r.Progress,
		VideoID:   r.VideoID,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
