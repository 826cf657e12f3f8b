package modal

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/types"
)

// TextClient 是提示视图依赖的后端能力
type TextClient interface {
	Process(ctx context.Context, req *api.ProcessRequest) (*api.AIResponse, error)
	AnalyzeVideo(ctx context.Context, req *api.AnalyzeVideoRequest) (*api.AIResponse, error)
}

// PromptState 是提示视图的状态快照
type PromptState struct {
	Prompt    string
	Provider  string
	Model     string
	MaxTokens int
	Video     *api.VideoRef

	Loading        bool
	Result         string
	ResultProvider string
	Error          string
}

// PromptView 收集提示词与可选视频引用，并发起一次同步请求
type PromptView struct {
	mu     sync.Mutex
	client TextClient
	opts   options
	state  PromptState
}

// NewPromptView 创建提示视图
func NewPromptView(client TextClient, opts ...Option) *PromptView {
	return &PromptView{
		client: client,
		opts:   buildOptions("prompt_view", opts),
		state: PromptState{
			Provider:  DefaultTextProvider,
			Model:     DefaultTextModel,
			MaxTokens: DefaultMaxTokens,
		},
	}
}

// SetPrompt 设置提示词
func (v *PromptView) SetPrompt(prompt string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Prompt = prompt
}

// SetProvider 选择文本 Provider
func (v *PromptView) SetProvider(name string) error {
	if err := ValidateTextProvider(name); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Provider = name
	return nil
}

// SetModel 设置模型名称，仅 openai 生效
func (v *PromptView) SetModel(model string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Model = model
}

// SetMaxTokens 设置最大 token 数，非正值表示由后端决定
func (v *PromptView) SetMaxTokens(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n < 0 {
		n = 0
	}
	v.state.MaxTokens = n
}

// AttachVideo 关联已上传的视频，nil 表示解除关联
func (v *PromptView) AttachVideo(ref *api.VideoRef) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ref == nil {
		v.state.Video = nil
		return
	}
	r := *ref
	v.state.Video = &r
}

// Submit 提交当前提示词。
// 空提示词与加载中的重复提交不会发起网络请求。
func (v *PromptView) Submit(ctx context.Context) error {
	v.mu.Lock()
	if v.state.Loading {
		v.mu.Unlock()
		return types.NewError(types.ErrBusy, MsgBusy)
	}

	prompt := strings.TrimSpace(v.state.Prompt)
	if prompt == "" {
		v.state.Error = MsgEmptyPrompt
		v.mu.Unlock()
		return types.NewError(types.ErrValidation, MsgEmptyPrompt)
	}

	v.state.Loading = true
	v.state.Error = ""
	v.state.Result = ""
	v.state.ResultProvider = ""
	provider := v.state.Provider
	model := v.state.Model
	maxTokens := v.state.MaxTokens
	video := v.state.Video
	v.mu.Unlock()

	var (
		resp *api.AIResponse
		err  error
	)
	if video != nil {
		resp, err = v.client.AnalyzeVideo(ctx, &api.AnalyzeVideoRequest{
			VideoID:  video.FileID,
			Prompt:   prompt,
			Provider: provider,
		})
	} else {
		req := &api.ProcessRequest{
			Prompt:    prompt,
			Provider:  provider,
			MaxTokens: maxTokens,
		}
		if provider == "" || provider == "openai" {
			req.Model = model
		}
		resp, err = v.client.Process(ctx, req)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Loading = false

	if err != nil {
		v.state.Error = types.UserMessage(err, MsgProcessFailed)
		v.opts.logger.Error("prompt submission failed",
			zap.String("provider", provider),
			zap.Bool("with_video", video != nil),
			zap.Error(err),
		)
		return err
	}

	v.state.Result = resp.Result
	v.state.ResultProvider = resp.Provider
	return nil
}

// Snapshot 返回当前状态副本
func (v *PromptView) Snapshot() PromptState {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	if s.Video != nil {
		ref := *s.Video
		s.Video = &ref
	}
	return s
}

// Reset 清除结果、错误与视频关联，保留 Provider 选择
func (v *PromptView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Prompt = ""
	v.state.Video = nil
	v.state.Result = ""
	v.state.ResultProvider = ""
	v.state.Error = ""
}
