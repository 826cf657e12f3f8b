package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/config"
	"github.com/BaSui01/aimodal/internal/metrics"
)

// =============================================================================
// 🧪 驱动通用行为测试
// =============================================================================

func drivers(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "session.db"), zap.NewNop())
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := OpenRedis(RedisConfig{Addr: mr.Addr(), KeyPrefix: "test"}, zap.NewNop())
			require.NoError(t, err)
			return s
		},
	}
}

func forEachDriver(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestStore_LastVideo(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.LastVideo(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SaveVideo(ctx, VideoRecord{FileID: "v1", Filename: "a.mp4", Source: SourceUpload}))
		require.NoError(t, s.SaveVideo(ctx, VideoRecord{
			FileID:      "v2",
			Filename:    "b.mp4",
			ContentType: "video/mp4",
			SizeBytes:   42,
			Source:      SourceGenerated,
		}))

		got, err := s.LastVideo(ctx)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.FileID)
		assert.Equal(t, "b.mp4", got.Filename)
		assert.Equal(t, "video/mp4", got.ContentType)
		assert.Equal(t, int64(42), got.SizeBytes)
		assert.Equal(t, SourceGenerated, got.Source)
		assert.False(t, got.SavedAt.IsZero())
	})
}

func TestStore_SaveTaskUpserts(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		require.NoError(t, s.SaveTask(ctx, TaskRecord{
			TaskID:    "t1",
			Prompt:    "un chat",
			Provider:  "replicate",
			Settings:  map[string]float64{"fps": 8, "num_frames": 24},
			Status:    "pending",
			CreatedAt: created,
			UpdatedAt: created,
		}))

		later := created.Add(time.Minute)
		require.NoError(t, s.SaveTask(ctx, TaskRecord{
			TaskID:    "t1",
			Prompt:    "un chat",
			Provider:  "replicate",
			Settings:  map[string]float64{"fps": 8, "num_frames": 24},
			Status:    "completed",
			Progress:  1,
			VideoID:   "t1",
			UpdatedAt: later,
		}))

		got, err := s.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, 1.0, got.Progress)
		assert.Equal(t, "t1", got.VideoID)
		assert.Equal(t, map[string]float64{"fps": 8, "num_frames": 24}, got.Settings)
		assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
		assert.WithinDuration(t, later, got.UpdatedAt, time.Millisecond)

		tasks, err := s.ListTasks(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})
}

func TestStore_GetTaskNotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		_, err := s.GetTask(context.Background(), "missing")
		assert.True(t, IsNotFound(err))
	})
}

func TestStore_ListTasksNewestFirst(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i, id := range []string{"a", "b", "c", "d"} {
			require.NoError(t, s.SaveTask(ctx, TaskRecord{
				TaskID:    id,
				Status:    "running",
				UpdatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}
		// 更新 a 后它变为最新
		require.NoError(t, s.SaveTask(ctx, TaskRecord{TaskID: "a", Status: "failed", Error: "boom", UpdatedAt: base.Add(time.Hour)}))

		tasks, err := s.ListTasks(ctx, 3)
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		assert.Equal(t, []string{"a", "d", "c"}, []string{tasks[0].TaskID, tasks[1].TaskID, tasks[2].TaskID})
		assert.Equal(t, "boom", tasks[0].Error)

		all, err := s.ListTasks(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestStore_Reset(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveVideo(ctx, VideoRecord{FileID: "v1", Source: SourceUpload}))
		require.NoError(t, s.SaveTask(ctx, TaskRecord{TaskID: "t1", Status: "pending"}))

		require.NoError(t, s.Reset(ctx))

		_, err := s.LastVideo(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
		tasks, err := s.ListTasks(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, tasks)

		// 重置后可以继续写入
		require.NoError(t, s.SaveTask(ctx, TaskRecord{TaskID: "t2", Status: "pending"}))
		_, err = s.GetTask(ctx, "t2")
		assert.NoError(t, err)
	})
}

// =============================================================================
// 🔌 Open 测试
// =============================================================================

func TestOpen_Drivers(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.StoreConfig
	}{
		{"memory", config.StoreConfig{Driver: "memory"}},
		{"sqlite", config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")}},
		{"redis", config.StoreConfig{Driver: "redis", RedisAddr: mr.Addr(), KeyPrefix: "open"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg, zap.NewNop(), nil)
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.SaveTask(context.Background(), TaskRecord{TaskID: "x", Status: "pending"}))
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(config.StoreConfig{Driver: "mongo"}, nil, nil)
	assert.ErrorContains(t, err, "unsupported store driver")

	_, err = Open(config.StoreConfig{Driver: "postgres"}, nil, nil)
	assert.ErrorContains(t, err, "requires a dsn")

	_, err = OpenRedis(RedisConfig{Addr: "127.0.0.1:1"}, nil)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestOpen_RecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector("store_test", zap.NewNop())
	s, err := Open(config.StoreConfig{Driver: "memory"}, zap.NewNop(), collector)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveTask(ctx, TaskRecord{TaskID: "x"}))
	_, err = s.GetTask(ctx, "x")
	require.NoError(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)

	var samples uint64
	for _, mf := range families {
		if mf.GetName() != "store_test_store_operation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			samples += m.GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), samples)
}

func TestSQL_ClosedStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.SaveTask(context.Background(), TaskRecord{TaskID: "x"}))
	assert.Error(t, s.Ping(context.Background()))
}
