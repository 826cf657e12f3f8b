package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/internal/store"
	"github.com/BaSui01/aimodal/modal"
)

// =============================================================================
// 🖨️ 输出渲染
// =============================================================================

func renderResult(w io.Writer, s modal.PromptState) {
	fmt.Fprintln(w, s.Result)
	if s.ResultProvider != "" {
		fmt.Fprintf(w, "\n(provider: %s)\n", s.ResultProvider)
	}
}

func renderVideo(w io.Writer, info *api.VideoInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "file_id:\t%s\n", info.FileID)
	fmt.Fprintf(tw, "filename:\t%s\n", info.Filename)
	if info.ContentType != "" {
		fmt.Fprintf(tw, "content_type:\t%s\n", info.ContentType)
	}
	if info.SizeBytes > 0 {
		fmt.Fprintf(tw, "size:\t%s\n", formatBytes(info.SizeBytes))
	}
	_ = tw.Flush()
}

func renderGeneration(w io.Writer, s modal.GenerationState) {
	if s.TaskID != "" {
		fmt.Fprintf(w, "task_id: %s\n", s.TaskID)
	}
	fmt.Fprintf(w, "status: %s\n", s.Phase)
	if s.Video != nil {
		renderVideo(w, s.Video)
	}
}

func renderStatus(w io.Writer, st *api.GenerationStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "task_id:\t%s\n", st.TaskID)
	fmt.Fprintf(tw, "status:\t%s\n", st.Status)
	if st.Progress != nil {
		fmt.Fprintf(tw, "progress:\t%s\n", formatPercent(*st.Progress))
	}
	if st.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", st.Error)
	}
	if st.VideoInfo != nil {
		fmt.Fprintf(tw, "video:\t%s\n", st.VideoInfo.FileID)
	}
	_ = tw.Flush()
}

func renderFetched(w io.Writer, path string, s modal.ViewerState) {
	fmt.Fprintf(w, "Saved %s to %s (%s, %s)\n", s.VideoID, path, formatBytes(s.Bytes), s.ContentType)
}

func renderProviders(w io.Writer) {
	fmt.Fprintln(w, "Text providers:")
	for _, name := range modal.TextProviders() {
		marker := ""
		if name == modal.DefaultTextProvider {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  %s%s\n", name, marker)
	}

	fmt.Fprintln(w, "\nVideo providers:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range modal.VideoProviders() {
		marker := ""
		if p.Name == modal.DefaultVideoProvider {
			marker = " (default)"
		}
		fmt.Fprintf(tw, "  %s%s\n", p.Name, marker)
		for _, param := range p.Params {
			kind := "number"
			if param.Integer {
				kind = "integer"
			}
			fmt.Fprintf(tw, "    %s\t%g\t[%g, %g]\t%s\n", param.Name, param.Default, param.Min, param.Max, kind)
		}
	}
	_ = tw.Flush()
}

func renderHistory(w io.Writer, video *store.VideoRecord, tasks []store.TaskRecord) {
	if video != nil {
		fmt.Fprintf(w, "Last video: %s (%s, %s)\n", video.FileID, video.Filename, video.Source)
	} else {
		fmt.Fprintln(w, "Last video: none")
	}

	if len(tasks) == 0 {
		fmt.Fprintln(w, "No generation tasks.")
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPROVIDER\tSTATUS\tPROGRESS\tUPDATED\tPROMPT")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.TaskID,
			orDash(t.Provider),
			orDash(t.Status),
			formatPercent(t.Progress),
			t.UpdatedAt.Local().Format(time.DateTime),
			truncate(t.Prompt, 40),
		)
	}
	_ = tw.Flush()
}

// =============================================================================
// ⏳ 进度输出
// =============================================================================

// progressPrinter 在状态或进度变化时输出一行
type progressPrinter struct {
	w        io.Writer
	status   api.TaskStatus
	progress float64
	printed  bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) Print(s modal.GenerationState) {
	if p.printed && s.Status == p.status && s.Progress == p.progress {
		return
	}
	p.printed = true
	p.status = s.Status
	p.progress = s.Progress

	status := string(s.Status)
	if status == "" {
		status = string(s.Phase)
	}
	fmt.Fprintf(p.w, "[%s] %-9s %s\n", progressBar(s.Progress, 20), status, formatPercent(s.Progress))
}

func progressBar(v float64, width int) string {
	v = max(0, min(1, v))
	filled := int(v * float64(width))
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

// =============================================================================
// 🔧 格式化
// =============================================================================

func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
