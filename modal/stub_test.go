package modal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/internal/metrics"
)

// stubGenClient 是内存中的 GenerationClient，按脚本返回状态并统计并发
type stubGenClient struct {
	mu       sync.Mutex
	script   []api.GenerationStatus
	next     int
	delay    time.Duration
	calls    int
	inFlight int32
	maxIn    int32
	genErr   error
	tasks    int
}

func newStubGenClient(script ...api.GenerationStatus) *stubGenClient {
	return &stubGenClient{script: script}
}

func (s *stubGenClient) GenerateVideo(ctx context.Context, req *api.GenerateVideoRequest) (*api.GenerationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.genErr != nil {
		return nil, s.genErr
	}
	s.tasks++
	s.next = 0
	zero := 0.0
	return &api.GenerationStatus{TaskID: fmt.Sprintf("task-%d", s.tasks), Status: api.TaskPending, Progress: &zero}, nil
}

func (s *stubGenClient) GenerationStatus(ctx context.Context, taskID string) (*api.GenerationStatus, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&s.maxIn)
		if n <= cur || atomic.CompareAndSwapInt32(&s.maxIn, cur, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls++
	delay := s.delay
	idx := s.next
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	} else {
		s.next++
	}
	st := s.script[idx]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	st.TaskID = taskID
	return &st, nil
}

func (s *stubGenClient) GenerateVideoSync(ctx context.Context, req *api.GenerateVideoRequest) (*api.VideoInfo, error) {
	return nil, fmt.Errorf("not scripted")
}

func (s *stubGenClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubGenClient) MaxInFlight() int32 {
	return atomic.LoadInt32(&s.maxIn)
}

// blockingTextClient 在 release 关闭前阻塞所有请求
type blockingTextClient struct {
	release chan struct{}
	calls   int32
}

func (b *blockingTextClient) Process(ctx context.Context, req *api.ProcessRequest) (*api.AIResponse, error) {
	atomic.AddInt32(&b.calls, 1)
	<-b.release
	return &api.AIResponse{Result: "done", Provider: req.Provider}, nil
}

func (b *blockingTextClient) AnalyzeVideo(ctx context.Context, req *api.AnalyzeVideoRequest) (*api.AIResponse, error) {
	atomic.AddInt32(&b.calls, 1)
	<-b.release
	return &api.AIResponse{Result: "done", Provider: req.Provider}, nil
}

// counterValue 返回带有指定标签值的计数器读数
func counterValue(t *testing.T, c *metrics.Collector, name, labelValue string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
