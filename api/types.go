package api

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// 路由
// =============================================================================

// 后端路由，与 FastAPI 服务保持一致
const (
	PathRoot              = "/"
	PathProcess           = "/api/process"
	PathAnalyzeVideo      = "/api/analyze-video"
	PathUploadVideo       = "/api/upload-video"
	PathVideos            = "/api/videos/"
	PathGenerateVideo     = "/api/generate-video"
	PathGenerateVideoSync = "/api/generate-video-sync"
	PathGenerationStatus  = "/api/video-generation-status/"
)

// UploadField 是 multipart 上传使用的表单字段名
const UploadField = "file"

// =============================================================================
// 文本处理类型
// =============================================================================

// ProcessRequest 表示文本处理请求。
// @Description 文本处理请求结构
type ProcessRequest struct {
	// 用户提示词
	Prompt string `json:"prompt" example:"Résume ce texte"`
	// 提供者（openai、anthropic、deepseek），为空时由后端决定
	Provider string `json:"provider,omitempty" example:"openai"`
	// 型号名称，仅 openai 生效
	Model string `json:"model,omitempty" example:"gpt-3.5-turbo"`
	// 生成的最大 token 数量
	MaxTokens int `json:"max_tokens,omitempty" example:"150"`
}

// AnalyzeVideoRequest 表示视频分析请求。
type AnalyzeVideoRequest struct {
	VideoID  string `json:"video_id"`
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
}

// AIResponse 表示文本处理与视频分析的响应。
type AIResponse struct {
	// 生成结果
	Result string `json:"result"`
	// 实际处理请求的提供者
	Provider string `json:"provider"`
}

// =============================================================================
// 视频类型
// =============================================================================

// VideoRef 标识一个已上传或已生成的视频。
type VideoRef struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// VideoInfo 是后端返回的视频元数据。
type VideoInfo struct {
	Filename    string `json:"filename"`
	FileID      string `json:"file_id"`
	FilePath    string `json:"file_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Ref 返回视频引用
func (v VideoInfo) Ref() VideoRef {
	return VideoRef{FileID: v.FileID, Filename: v.Filename}
}

// =============================================================================
// 视频生成类型
// =============================================================================

// TaskStatus 表示生成任务状态。
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal 判断状态是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// GenerateVideoRequest 表示视频生成请求。
type GenerateVideoRequest struct {
	Prompt   string             `json:"prompt"`
	Provider string             `json:"provider,omitempty"`
	Settings map[string]float64 `json:"settings"`
}

// GenerationStatus 表示生成任务的当前状态。
// progress 在失败时可能为 null。
type GenerationStatus struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Progress  *float64   `json:"progress,omitempty"`
	VideoInfo *VideoInfo `json:"video_info,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ProgressValue 返回进度，缺失时为 0
func (s *GenerationStatus) ProgressValue() float64 {
	if s == nil || s.Progress == nil {
		return 0
	}
	return *s.Progress
}

// WelcomeResponse 是根路由的响应
type WelcomeResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// 错误响应
// =============================================================================

// ErrorResponse 是后端错误响应体。
// detail 可能是字符串，也可能是 422 校验错误列表。
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Message 提取可读的错误信息
func (e ErrorResponse) Message() string {
	if len(e.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(e.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(e.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
