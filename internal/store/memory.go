package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// Memory 是进程内存储，用于测试与临时会话
type Memory struct {
	mu    sync.RWMutex
	video *VideoRecord
	tasks map[string]TaskRecord
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]TaskRecord)}
}

func (m *Memory) SaveVideo(ctx context.Context, rec VideoRecord) error {
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.video = &rec
	return nil
}

func (m *Memory) LastVideo(ctx context.Context) (*VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.video == nil {
		return nil, ErrNotFound
	}
	rec := *m.video
	return &rec, nil
}

func (m *Memory) SaveTask(ctx context.Context, rec TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.tasks[rec.TaskID]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	stamp(&rec, time.Now())
	rec.Settings = maps.Clone(rec.Settings)
	m.tasks[rec.TaskID] = rec
	return nil
}

func (m *Memory) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Settings = maps.Clone(rec.Settings)
	return &rec, nil
}

func (m *Memory) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	m.mu.RLock()
	out := make([]TaskRecord, 0, len(m.tasks))
	for _, rec := range m.tasks {
		rec.Settings = maps.Clone(rec.Settings)
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sortTasks(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.video = nil
	m.tasks = make(map[string]TaskRecord)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// sortTasks 按 UpdatedAt 倒序排列，时间相同时按 TaskID 排序
func sortTasks(tasks []TaskRecord) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].UpdatedAt.Equal(tasks[j].UpdatedAt) {
			return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
		}
		return tasks[i].TaskID < tasks[j].TaskID
	})
}
