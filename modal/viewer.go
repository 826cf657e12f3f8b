package modal

import (
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/client"
	"github.com/BaSui01/aimodal/types"
)

// VideoSource 是播放器依赖的后端能力
type VideoSource interface {
	OpenVideo(ctx context.Context, videoID string) (*client.VideoStream, error)
}

// ViewerStatus 是播放器的加载状态
type ViewerStatus string

const (
	ViewerLoading ViewerStatus = "loading"
	ViewerReady   ViewerStatus = "ready"
	ViewerError   ViewerStatus = "error"
)

// ViewerState 是播放器的状态快照
type ViewerState struct {
	VideoID     string
	Status      ViewerStatus
	ContentType string
	Bytes       int64
	Error       string
}

// Viewer 按视频 ID 拉取视频流。除 ID 外只维护加载/错误状态。
type Viewer struct {
	mu     sync.Mutex
	source VideoSource
	opts   options
	state  ViewerState
	epoch  uint64
}

// NewViewer 创建播放器
func NewViewer(source VideoSource, videoID string, opts ...Option) *Viewer {
	return &Viewer{
		source: source,
		opts:   buildOptions("viewer", opts),
		state:  ViewerState{VideoID: videoID, Status: ViewerLoading},
	}
}

// SetVideo 切换视频 ID，ID 变化时重置为 loading
func (v *Viewer) SetVideo(videoID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if videoID == v.state.VideoID {
		return
	}
	v.epoch++
	v.state = ViewerState{VideoID: videoID, Status: ViewerLoading}
}

// Load 将视频完整写入 dst，完成后状态变为 ready，失败时变为 error。
// 加载期间 ID 发生变化时，结果被丢弃。
func (v *Viewer) Load(ctx context.Context, dst io.Writer) error {
	v.mu.Lock()
	videoID := v.state.VideoID
	epoch := v.epoch
	v.mu.Unlock()

	if strings.TrimSpace(videoID) == "" {
		err := types.NewError(types.ErrValidation, "video id is required")
		v.fail(epoch, err)
		return err
	}

	stream, err := v.source.OpenVideo(ctx, videoID)
	if err != nil {
		v.fail(epoch, err)
		return err
	}
	defer stream.Body.Close()

	v.mu.Lock()
	if epoch == v.epoch {
		v.state.ContentType = stream.ContentType
	}
	v.mu.Unlock()

	n, err := io.Copy(dst, stream.Body)
	if err != nil {
		v.fail(epoch, err)
		return err
	}
	if stream.ContentLength > 0 && n != stream.ContentLength {
		err := types.NewError(types.ErrTransport, "video stream truncated").WithCause(io.ErrUnexpectedEOF)
		v.fail(epoch, err)
		return err
	}

	v.mu.Lock()
	if epoch == v.epoch {
		v.state.Status = ViewerReady
		v.state.Bytes = n
	}
	v.mu.Unlock()

	v.opts.logger.Debug("video loaded", zap.String("video_id", videoID), zap.Int64("bytes", n))
	return nil
}

// Snapshot 返回当前状态
func (v *Viewer) Snapshot() ViewerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Viewer) fail(epoch uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch != v.epoch {
		return
	}
	v.state.Status = ViewerError
	v.state.Error = types.UserMessage(err, MsgVideoLoadFailed)
	v.opts.logger.Error("video load failed", zap.String("video_id", v.state.VideoID), zap.Error(err))
}
