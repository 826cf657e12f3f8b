package modal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/types"
)

// sniffLen 是内容嗅探读取的字节数
const sniffLen = 262

// UploadClient 是上传处理器依赖的后端能力
type UploadClient interface {
	UploadVideo(ctx context.Context, filename, contentType string, r io.Reader) (*api.VideoInfo, error)
}

// UploadState 是上传处理器的状态快照
type UploadState struct {
	Uploading bool
	Video     *api.VideoInfo
	Error     string
}

// Uploader 在客户端校验文件类型后以 multipart 上传视频
type Uploader struct {
	mu     sync.Mutex
	client UploadClient
	opts   options
	state  UploadState
}

// NewUploader 创建上传处理器
func NewUploader(client UploadClient, opts ...Option) *Uploader {
	return &Uploader{
		client: client,
		opts:   buildOptions("uploader", opts),
	}
}

// DetectContentType 确定文件的声明类型。
// 优先使用显式类型，其次是扩展名，最后是内容嗅探；无法确定时返回空字符串。
func DetectContentType(filename, declared string, head []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
		return strings.ToLower(declared)
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if parsed, _, err := mime.ParseMediaType(mt); err == nil {
				return parsed
			}
		}
		if kind := filetype.GetType(strings.TrimPrefix(ext, ".")); kind != filetype.Unknown {
			return kind.MIME.Value
		}
	}

	if len(head) > 0 {
		if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
			return kind.MIME.Value
		}
	}

	return ""
}

// IsVideoType 判断类型是否为 video/*
func IsVideoType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "video/")
}

// Upload 校验并上传视频。
// 非视频类型在客户端拒绝，不发起请求；失败时保留之前的视频引用。
func (u *Uploader) Upload(ctx context.Context, filename, declaredType string, r io.Reader) (*api.VideoInfo, error) {
	u.mu.Lock()
	if u.state.Uploading {
		u.mu.Unlock()
		return nil, types.NewError(types.ErrBusy, MsgBusy)
	}
	u.mu.Unlock()

	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)

	contentType := DetectContentType(filename, declaredType, head)
	if !IsVideoType(contentType) {
		u.mu.Lock()
		u.state.Error = MsgInvalidVideo
		u.mu.Unlock()
		u.record("rejected", 0)
		u.opts.logger.Warn("rejected non-video file",
			zap.String("filename", filename),
			zap.String("content_type", contentType),
		)
		return nil, types.NewError(types.ErrValidation, MsgInvalidVideo)
	}

	u.mu.Lock()
	if u.state.Uploading {
		u.mu.Unlock()
		return nil, types.NewError(types.ErrBusy, MsgBusy)
	}
	u.state.Uploading = true
	u.state.Error = ""
	u.mu.Unlock()

	info, err := u.client.UploadVideo(ctx, filepath.Base(filename), contentType, br)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.Uploading = false

	if err != nil {
		u.state.Error = types.UserMessage(err, MsgUploadFailed)
		u.record("error", 0)
		u.opts.logger.Error("video upload failed", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	u.state.Video = info
	u.record("ok", info.SizeBytes)
	u.opts.logger.Info("video uploaded",
		zap.String("file_id", info.FileID),
		zap.String("content_type", contentType),
		zap.Int64("size_bytes", info.SizeBytes),
	)
	return info, nil
}

// UploadFile 打开本地文件并上传
func (u *Uploader) UploadFile(ctx context.Context, path, declaredType string) (*api.VideoInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		msg := fmt.Sprintf("Cannot open %s.", filepath.Base(path))
		u.mu.Lock()
		u.state.Error = msg
		u.mu.Unlock()
		return nil, types.NewError(types.ErrValidation, msg).WithCause(err)
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil && st.IsDir() {
		u.mu.Lock()
		u.state.Error = MsgInvalidVideo
		u.mu.Unlock()
		return nil, types.NewError(types.ErrValidation, MsgInvalidVideo)
	}

	return u.Upload(ctx, path, declaredType, f)
}

// Video 返回当前视频引用
func (u *Uploader) Video() *api.VideoRef {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state.Video == nil {
		return nil
	}
	ref := u.state.Video.Ref()
	return &ref
}

// Snapshot 返回当前状态副本
func (u *Uploader) Snapshot() UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.state
	if s.Video != nil {
		info := *s.Video
		s.Video = &info
	}
	return s
}

// Reset 丢弃视频引用与错误
func (u *Uploader) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.Video = nil
	u.state.Error = ""
}

func (u *Uploader) record(result string, size int64) {
	if u.opts.metrics != nil {
		u.opts.metrics.RecordUpload(result, size)
	}
}
