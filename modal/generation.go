package modal

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/internal/ctxkeys"
	"github.com/BaSui01/aimodal/types"
)

// GenerationClient 是生成视图依赖的后端能力
type GenerationClient interface {
	GenerateVideo(ctx context.Context, req *api.GenerateVideoRequest) (*api.GenerationStatus, error)
	GenerationStatus(ctx context.Context, taskID string) (*api.GenerationStatus, error)
	GenerateVideoSync(ctx context.Context, req *api.GenerateVideoRequest) (*api.VideoInfo, error)
}

// Phase 是生成视图所处的阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	// PhaseError 表示提交或轮询请求本身失败，任务保留最后已知状态
	PhaseError Phase = "error"
)

// IsTerminal 判断阶段是否不再变化
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseError
}

// GenerationState 是生成视图的状态快照
type GenerationState struct {
	Prompt   string
	Provider string
	Settings Settings

	Phase    Phase
	TaskID   string
	Status   api.TaskStatus
	Progress float64
	Video    *api.VideoInfo
	Error    string
	Polls    int
}

// GenerationView 提交异步生成任务并按固定间隔轮询状态。
// 每个视图最多只有一个轮询循环；状态请求在循环 goroutine 内串行发出。
type GenerationView struct {
	mu     sync.Mutex
	client GenerationClient
	opts   options
	state  GenerationState

	// epoch 在每次提交与关闭时递增，旧循环的结果据此丢弃
	epoch     uint64
	loop      *pollHandle
	startedAt time.Time
	closed    bool
	onChange  func(GenerationState)
}

// NewGenerationView 创建生成视图，默认 Provider 为 replicate
func NewGenerationView(client GenerationClient, opts ...Option) *GenerationView {
	template, _ := ProviderTemplate(DefaultVideoProvider)
	return &GenerationView{
		client: client,
		opts:   buildOptions("generation_view", opts),
		state: GenerationState{
			Provider: DefaultVideoProvider,
			Settings: template,
			Phase:    PhaseIdle,
		},
	}
}

// OnChange 注册状态变化回调，回调在锁外调用。
// 回调内可以调用 Close 或 Submit；不要在回调内调用 Wait。
func (v *GenerationView) OnChange(fn func(GenerationState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// SetPrompt 设置提示词
func (v *GenerationView) SetPrompt(prompt string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Prompt = prompt
}

// SelectProvider 切换 Provider，参数整体重置为该 Provider 的模板
func (v *GenerationView) SelectProvider(name string) error {
	template, err := ProviderTemplate(name)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Provider = name
	v.state.Settings = template
	return nil
}

// SetSetting 在当前 Provider 的边界内修改一个参数
func (v *GenerationView) SetSetting(name string, value float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := LookupVideoProvider(v.state.Provider)
	if !ok {
		return types.NewError(types.ErrValidation, "no provider selected")
	}
	return p.Set(v.state.Settings, name, value)
}

// Submit 提交生成任务并启动轮询。
// 新提交会先停止旧循环并清除之前的任务、状态、结果与错误。
func (v *GenerationView) Submit(ctx context.Context) error {
	req, epoch, err := v.begin()
	if err != nil {
		return err
	}

	task, err := v.client.GenerateVideo(ctx, req)

	v.mu.Lock()
	if epoch != v.epoch {
		v.mu.Unlock()
		if err != nil {
			return err
		}
		return types.NewError(types.ErrValidation, "generation view closed")
	}

	if err != nil {
		v.state.Phase = PhaseError
		v.state.Error = types.UserMessage(err, MsgGenerateFailed)
		v.mu.Unlock()
		v.opts.logger.Error("generation request failed", zap.String("provider", req.Provider), zap.Error(err))
		v.notify()
		return err
	}

	v.state.TaskID = task.TaskID
	v.state.Status = task.Status
	v.state.Progress = clampProgress(task.ProgressValue())
	v.startedAt = time.Now()

	if task.Status.IsTerminal() {
		v.applyTerminalLocked(task)
		v.mu.Unlock()
		v.notify()
		return nil
	}

	v.state.Phase = PhasePolling
	loopCtx, cancel := context.WithCancel(ctxkeys.WithTaskID(context.WithoutCancel(ctx), task.TaskID))
	h := &pollHandle{cancel: cancel, done: make(chan struct{})}
	v.loop = h
	v.mu.Unlock()

	v.opts.logger.Info("generation submitted",
		zap.String("task_id", task.TaskID),
		zap.String("provider", req.Provider),
		zap.Duration("poll_interval", v.opts.pollInterval),
	)
	v.notify()

	go v.pollLoop(loopCtx, epoch, task.TaskID, h)
	return nil
}

// SubmitSync 使用同步端点生成视频，阻塞直到后端返回
func (v *GenerationView) SubmitSync(ctx context.Context) error {
	req, epoch, err := v.begin()
	if err != nil {
		return err
	}
	start := time.Now()

	info, err := v.client.GenerateVideoSync(ctx, req)

	v.mu.Lock()
	if epoch != v.epoch {
		v.mu.Unlock()
		return err
	}
	if err != nil {
		v.state.Phase = PhaseError
		v.state.Error = types.UserMessage(err, MsgGenerateFailed)
		v.mu.Unlock()
		v.opts.logger.Error("sync generation failed", zap.String("provider", req.Provider), zap.Error(err))
		v.recordGeneration(req.Provider, "error", time.Since(start))
		v.notify()
		return err
	}

	v.state.Phase = PhaseCompleted
	v.state.Status = api.TaskCompleted
	v.state.Progress = 1
	v.state.Video = info
	v.mu.Unlock()

	v.recordGeneration(req.Provider, string(api.TaskCompleted), time.Since(start))
	v.notify()
	return nil
}

// begin 校验输入、停止旧循环并清空任务状态
func (v *GenerationView) begin() (*api.GenerateVideoRequest, uint64, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, 0, types.NewError(types.ErrValidation, "generation view closed")
	}
	if v.state.Phase == PhaseSubmitting {
		v.mu.Unlock()
		return nil, 0, types.NewError(types.ErrBusy, MsgBusy)
	}

	prompt := strings.TrimSpace(v.state.Prompt)
	if prompt == "" {
		v.state.Error = MsgEmptyPrompt
		v.mu.Unlock()
		return nil, 0, types.NewError(types.ErrValidation, MsgEmptyPrompt)
	}

	if p, ok := LookupVideoProvider(v.state.Provider); ok {
		if err := p.Validate(v.state.Settings); err != nil {
			v.state.Error = types.UserMessage(err, MsgGenerateFailed)
			v.mu.Unlock()
			return nil, 0, err
		}
	}

	h := v.detachLoopLocked()
	v.epoch++
	epoch := v.epoch

	v.state.Phase = PhaseSubmitting
	v.state.TaskID = ""
	v.state.Status = ""
	v.state.Progress = 0
	v.state.Video = nil
	v.state.Error = ""
	v.state.Polls = 0

	req := &api.GenerateVideoRequest{
		Prompt:   prompt,
		Provider: v.state.Provider,
		Settings: map[string]float64(v.state.Settings.Clone()),
	}
	v.mu.Unlock()

	h.stop()
	v.notify()
	return req, epoch, nil
}

// pollLoop 每个 tick 串行发出一次状态请求，直到终态、请求失败或取消
func (v *GenerationView) pollLoop(ctx context.Context, epoch uint64, taskID string, h *pollHandle) {
	defer close(h.done)

	ticker := time.NewTicker(v.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		st, err := v.client.GenerationStatus(ctx, taskID)
		if ctx.Err() != nil {
			return
		}
		if !v.applyPoll(h, epoch, st, err) {
			return
		}
	}
}

// applyPoll 应用一次轮询结果，返回是否继续轮询
func (v *GenerationView) applyPoll(h *pollHandle, epoch uint64, st *api.GenerationStatus, err error) bool {
	v.mu.Lock()
	if epoch != v.epoch {
		v.mu.Unlock()
		return false
	}
	v.state.Polls++

	if err != nil {
		v.state.Phase = PhaseError
		v.state.Error = types.UserMessage(err, MsgStatusFailed)
		taskID := v.state.TaskID
		v.mu.Unlock()

		v.recordPoll("error")
		v.opts.logger.Error("status poll failed", zap.String("task_id", taskID), zap.Error(err))
		v.notifyFromLoop(h)
		return false
	}

	v.state.Status = st.Status
	if st.Progress != nil {
		v.state.Progress = clampProgress(*st.Progress)
	}

	cont := !st.Status.IsTerminal()
	if !cont {
		v.applyTerminalLocked(st)
	}
	v.mu.Unlock()

	v.recordPoll(string(st.Status))
	v.notifyFromLoop(h)
	return cont
}

// applyTerminalLocked 处理终态，调用方持有锁
func (v *GenerationView) applyTerminalLocked(st *api.GenerationStatus) {
	duration := time.Since(v.startedAt)
	switch st.Status {
	case api.TaskCompleted:
		v.state.Phase = PhaseCompleted
		if st.VideoInfo != nil {
			info := *st.VideoInfo
			v.state.Video = &info
		}
		v.opts.logger.Info("generation completed",
			zap.String("task_id", v.state.TaskID),
			zap.Duration("duration", duration),
		)
	case api.TaskFailed:
		v.state.Phase = PhaseFailed
		v.state.Error = st.Error
		if v.state.Error == "" {
			v.state.Error = MsgGenerationFailed
		}
		v.opts.logger.Warn("generation failed",
			zap.String("task_id", v.state.TaskID),
			zap.String("error", st.Error),
		)
	}
	v.recordGeneration(v.state.Provider, string(st.Status), duration)
}

// Wait 阻塞直到当前轮询循环结束或 ctx 取消，返回最终快照
func (v *GenerationView) Wait(ctx context.Context) (GenerationState, error) {
	v.mu.Lock()
	h := v.loop
	v.mu.Unlock()

	if h != nil {
		select {
		case <-h.done:
		case <-ctx.Done():
			return v.Snapshot(), ctx.Err()
		}
	}
	return v.Snapshot(), nil
}

// Close 停止轮询，之后的提交会被拒绝。可重复调用。
func (v *GenerationView) Close() {
	v.mu.Lock()
	v.closed = true
	v.epoch++
	h := v.detachLoopLocked()
	v.mu.Unlock()

	h.stop()
}

// Snapshot 返回当前状态副本
func (v *GenerationView) Snapshot() GenerationState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Polling 报告是否有活跃的轮询循环
func (v *GenerationView) Polling() bool {
	v.mu.Lock()
	h := v.loop
	v.mu.Unlock()
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (v *GenerationView) snapshotLocked() GenerationState {
	s := v.state
	s.Settings = v.state.Settings.Clone()
	if s.Video != nil {
		info := *s.Video
		s.Video = &info
	}
	return s
}

func (v *GenerationView) detachLoopLocked() *pollHandle {
	h := v.loop
	v.loop = nil
	return h
}

// pollHandle 标识一个轮询循环
type pollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	// notifying 在循环 goroutine 执行回调期间为 true
	notifying atomic.Bool
}

// stop 取消循环并等待其退出；由回调内调用时只取消，循环在回调返回后退出
func (h *pollHandle) stop() {
	if h == nil {
		return
	}
	h.cancel()
	if h.notifying.Load() {
		return
	}
	<-h.done
}

// notifyFromLoop 在轮询 goroutine 内调用回调
func (v *GenerationView) notifyFromLoop(h *pollHandle) {
	h.notifying.Store(true)
	defer h.notifying.Store(false)
	v.notify()
}

func clampProgress(p float64) float64 {
	return max(0, min(1, p))
}

func (v *GenerationView) notify() {
	v.mu.Lock()
	fn := v.onChange
	s := v.snapshotLocked()
	v.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (v *GenerationView) recordPoll(status string) {
	if v.opts.metrics != nil {
		v.opts.metrics.RecordPoll(status)
	}
}

func (v *GenerationView) recordGeneration(provider, result string, duration time.Duration) {
	if v.opts.metrics != nil {
		v.opts.metrics.RecordGeneration(provider, result, duration)
	}
}
