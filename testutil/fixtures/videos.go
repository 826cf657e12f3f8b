// =============================================================================
// 📦 测试数据工厂 - 视频与生成任务测试数据
// =============================================================================
// 提供预定义的视频字节、视频元数据与状态序列，用于测试
// =============================================================================
package fixtures

import (
	"bytes"

	"github.com/BaSui01/aimodal/api"
)

// =============================================================================
// 🎞️ 文件内容
// =============================================================================

// MP4Bytes 返回以 ISO BMFF ftyp 盒开头的最小 MP4 内容
func MP4Bytes() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x20})
	buf.WriteString("ftypisom")
	buf.Write([]byte{0x00, 0x00, 0x02, 0x00})
	buf.WriteString("isomiso2avc1mp41")
	buf.Write(bytes.Repeat([]byte{0x00}, 64))
	return buf.Bytes()
}

// PNGBytes 返回 PNG 签名开头的内容
func PNGBytes() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x00}, 64)...)
}

// TextBytes 返回无法识别类型的纯文本内容
func TextBytes() []byte {
	return []byte("just some notes, not a video at all\n")
}

// =============================================================================
// 🎬 视频元数据
// =============================================================================

// SampleVideo 返回一个示例视频元数据
func SampleVideo() api.VideoInfo {
	return api.VideoInfo{
		Filename:    "clip.mp4",
		FileID:      "7f1d2c3b-0000-4000-8000-000000000001",
		FilePath:    "uploads/7f1d2c3b-0000-4000-8000-000000000001_clip.mp4",
		SizeBytes:   2048,
		ContentType: "video/mp4",
	}
}

// =============================================================================
// ⏳ 状态序列
// =============================================================================

func progress(v float64) *float64 { return &v }

// CompletedSequence 返回 pending → running(0.3) → running(0.7) → completed
func CompletedSequence() []api.GenerationStatus {
	return []api.GenerationStatus{
		{Status: api.TaskPending, Progress: progress(0)},
		{Status: api.TaskRunning, Progress: progress(0.3)},
		{Status: api.TaskRunning, Progress: progress(0.7)},
		{Status: api.TaskCompleted, Progress: progress(1)},
	}
}

// FailedSequence 返回 pending → running(0.5) → failed(reason)，失败时 progress 为 null
func FailedSequence(reason string) []api.GenerationStatus {
	return []api.GenerationStatus{
		{Status: api.TaskPending, Progress: progress(0)},
		{Status: api.TaskRunning, Progress: progress(0.5)},
		{Status: api.TaskFailed, Error: reason},
	}
}

// EndlessRunning 返回一个永远停留在 running 的序列
func EndlessRunning() []api.GenerationStatus {
	return []api.GenerationStatus{
		{Status: api.TaskRunning, Progress: progress(0.1)},
	}
}
