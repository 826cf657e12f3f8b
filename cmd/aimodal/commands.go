package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/internal/ctxkeys"
	"github.com/BaSui01/aimodal/internal/store"
	"github.com/BaSui01/aimodal/modal"
	"github.com/BaSui01/aimodal/types"
)

const (
	msgNoLastVideo  = "No video in this session. Upload or generate one first."
	msgHealthFailed = "Backend is unreachable."
	msgInterrupted  = "Interrupted."
)

// =============================================================================
// 💬 process
// =============================================================================

func runProcess(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("process", stderr)
	provider := fs.String("provider", "", "Text provider (openai, anthropic, deepseek)")
	model := fs.String("model", "", "Model name (openai only)")
	maxTokens := fs.Int("max-tokens", 0, "Maximum tokens")
	video := fs.String("video", "", "Video id to analyze, or 'last'")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	app, err := openApp(ctx, *configPath, "process", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx = ctxkeys.WithCommand(ctx, "process")

	view := modal.NewPromptView(app.client, app.modalOptions()...)
	if err := view.SetProvider(firstNonEmpty(*provider, app.cfg.Text.DefaultProvider)); err != nil {
		return errors.New(types.UserMessage(err, err.Error()))
	}
	view.SetModel(firstNonEmpty(*model, app.cfg.Text.Model))
	if *maxTokens > 0 {
		view.SetMaxTokens(*maxTokens)
	} else {
		view.SetMaxTokens(app.cfg.Text.MaxTokens)
	}

	if *video != "" {
		id, err := app.resolveVideo(ctx, *video)
		if err != nil {
			return err
		}
		view.AttachVideo(&api.VideoRef{FileID: id})
	}

	view.SetPrompt(strings.Join(fs.Args(), " "))
	if err := view.Submit(ctx); err != nil {
		return errors.New(view.Snapshot().Error)
	}

	renderResult(stdout, view.Snapshot())
	return nil
}

// =============================================================================
// 📤 upload
// =============================================================================

func runUpload(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("upload", stderr)
	contentType := fs.String("content-type", "", "Declared content type")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: aimodal upload [--content-type T] FILE")
		return errUsage
	}

	app, err := openApp(ctx, *configPath, "upload", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx = ctxkeys.WithCommand(ctx, "upload")

	up := modal.NewUploader(app.client, app.modalOptions()...)
	info, err := up.UploadFile(ctx, fs.Arg(0), *contentType)
	if err != nil {
		return errors.New(up.Snapshot().Error)
	}

	app.remember(func(ctx context.Context, s store.Store) error {
		return s.SaveVideo(ctx, videoRecord(info, store.SourceUpload))
	})

	renderVideo(stdout, info)
	return nil
}

// =============================================================================
// 🎬 generate
// =============================================================================

// settingsFlag 收集重复的 --set key=value
type settingsFlag []settingPair

type settingPair struct {
	key   string
	value float64
}

func (s *settingsFlag) String() string {
	parts := make([]string, len(*s))
	for i, p := range *s {
		parts[i] = fmt.Sprintf("%s=%g", p.key, p.value)
	}
	return strings.Join(parts, ",")
}

func (s *settingsFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("%s must be a number", key)
	}
	*s = append(*s, settingPair{key: key, value: v})
	return nil
}

func runGenerate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("generate", stderr)
	provider := fs.String("provider", "", "Video provider (replicate, stability, runway)")
	syncMode := fs.Bool("sync", false, "Use the synchronous endpoint")
	noWait := fs.Bool("no-wait", false, "Print the task id and exit")
	var settings settingsFlag
	fs.Var(&settings, "set", "Provider setting key=value (repeatable)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	app, err := openApp(ctx, *configPath, "generate", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx = ctxkeys.WithCommand(ctx, "generate")

	view := modal.NewGenerationView(app.client, app.modalOptions()...)
	defer view.Close()

	if err := view.SelectProvider(firstNonEmpty(*provider, app.cfg.Generation.DefaultProvider)); err != nil {
		return errors.New(types.UserMessage(err, err.Error()))
	}
	for _, p := range settings {
		if err := view.SetSetting(p.key, p.value); err != nil {
			return errors.New(types.UserMessage(err, err.Error()))
		}
	}
	view.SetPrompt(strings.Join(fs.Args(), " "))

	if *syncMode {
		if err := view.SubmitSync(ctx); err != nil {
			return errors.New(view.Snapshot().Error)
		}
		state := view.Snapshot()
		app.remember(func(ctx context.Context, s store.Store) error {
			return s.SaveVideo(ctx, videoRecord(state.Video, store.SourceGenerated))
		})
		renderGeneration(stdout, state)
		return nil
	}

	updates := make(chan modal.GenerationState, 16)
	view.OnChange(func(s modal.GenerationState) {
		if s.Phase == modal.PhasePolling || s.Phase.IsTerminal() {
			updates <- s
		}
	})

	if err := view.Submit(ctx); err != nil {
		return errors.New(view.Snapshot().Error)
	}

	submitted := view.Snapshot()
	app.remember(func(ctx context.Context, s store.Store) error {
		return s.SaveTask(ctx, taskRecord(submitted))
	})

	if *noWait {
		view.Close()
		fmt.Fprintln(stdout, submitted.TaskID)
		return nil
	}

	// 一个 goroutine 等待轮询结束，另一个打印进度
	g, gctx := errgroup.WithContext(ctx)
	var final modal.GenerationState
	g.Go(func() error {
		defer close(updates)
		state, err := view.Wait(gctx)
		view.Close()
		final = state
		return err
	})
	g.Go(func() error {
		printer := newProgressPrinter(stderr)
		for s := range updates {
			printer.Print(s)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		app.logger.Warn("generation wait interrupted", zap.Error(err))
		app.remember(func(ctx context.Context, s store.Store) error {
			return s.SaveTask(ctx, taskRecord(view.Snapshot()))
		})
		return errors.New(msgInterrupted)
	}

	app.remember(func(ctx context.Context, s store.Store) error {
		if err := s.SaveTask(ctx, taskRecord(final)); err != nil {
			return err
		}
		if final.Video != nil {
			return s.SaveVideo(ctx, videoRecord(final.Video, store.SourceGenerated))
		}
		return nil
	})

	if final.Phase != modal.PhaseCompleted {
		return errors.New(final.Error)
	}
	renderGeneration(stdout, final)
	return nil
}

// =============================================================================
// ⏳ status
// =============================================================================

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("status", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: aimodal status TASK_ID")
		return errUsage
	}
	taskID := fs.Arg(0)

	app, err := openApp(ctx, *configPath, "status", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx = ctxkeys.WithCommand(ctx, "status")

	st, err := app.client.GenerationStatus(ctx, taskID)
	if err != nil {
		return errors.New(types.UserMessage(err, modal.MsgStatusFailed))
	}

	app.remember(func(ctx context.Context, s store.Store) error {
		rec, err := s.GetTask(ctx, taskID)
		if store.IsNotFound(err) {
			rec = &store.TaskRecord{TaskID: taskID}
		} else if err != nil {
			return err
		}
		rec.Status = string(st.Status)
		if st.Progress != nil {
			rec.Progress = *st.Progress
		}
		rec.Error = st.Error
		rec.UpdatedAt = time.Now()
		if st.VideoInfo != nil {
			rec.VideoID = st.VideoInfo.FileID
			if err := s.SaveVideo(ctx, videoRecord(st.VideoInfo, store.SourceGenerated)); err != nil {
				return err
			}
		}
		return s.SaveTask(ctx, *rec)
	})

	renderStatus(stdout, st)
	return nil
}

// =============================================================================
// 📥 fetch
// =============================================================================

func runFetch(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	fs, configPath := newFlagSet("fetch", stderr)
	out := fs.String("out", "", "Output file (default: stdout)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: aimodal fetch [--out FILE] VIDEO_ID|last")
		return errUsage
	}

	app, err := openApp(ctx, *configPath, "fetch", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx = ctxkeys.WithCommand(ctx, "fetch")

	id, err := app.resolveVideo(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	toStdout := *out == "" || *out == "-"

	var f *os.File
	if toStdout {
		// 先写入临时文件，完整下载后才输出到 stdout
		f, err = os.CreateTemp("", "aimodal-fetch-*")
		if err != nil {
			return fmt.Errorf("cannot create temp file: %w", err)
		}
		defer func() {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}()
	} else {
		f, err = os.Create(*out)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", *out, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(*out)
			}
		}()
	}

	viewer := modal.NewViewer(app.client, id, app.modalOptions()...)
	if err := viewer.Load(ctx, f); err != nil {
		return errors.New(viewer.Snapshot().Error)
	}

	if !toStdout {
		renderFetched(stderr, *out, viewer.Snapshot())
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind temp file: %w", err)
	}
	if _, err := io.Copy(stdout, f); err != nil {
		return fmt.Errorf("write video to stdout: %w", err)
	}
	return nil
}

// =============================================================================
// 📚 providers / history / reset / health
// =============================================================================

func runProviders(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, _ := newFlagSet("providers", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	renderProviders(stdout)
	return nil
}

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("history", stderr)
	limit := fs.Int("limit", 10, "Number of tasks to show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	app, err := openApp(ctx, *configPath, "history", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.Store()
	if err != nil {
		return err
	}

	video, err := s.LastVideo(ctx)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	tasks, err := s.ListTasks(ctx, *limit)
	if err != nil {
		return err
	}

	renderHistory(stdout, video, tasks)
	return nil
}

func runReset(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("reset", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	app, err := openApp(ctx, *configPath, "reset", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.Store()
	if err != nil {
		return err
	}
	if err := s.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Session cleared.")
	return nil
}

func runHealth(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("health", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	app, err := openApp(ctx, *configPath, "health", stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	welcome, err := app.client.Ping(ctx)
	if err != nil {
		app.logger.Debug("health check failed", zap.Error(err))
		return errors.New(types.UserMessage(err, msgHealthFailed))
	}

	fmt.Fprintf(stdout, "OK %s (%s)\n", app.client.BaseURL(), welcome.Message)
	return nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func videoRecord(info *api.VideoInfo, source string) store.VideoRecord {
	return store.VideoRecord{
		FileID:      info.FileID,
		Filename:    info.Filename,
		ContentType: info.ContentType,
		SizeBytes:   info.SizeBytes,
		Source:      source,
	}
}

func taskRecord(s modal.GenerationState) store.TaskRecord {
	rec := store.TaskRecord{
		TaskID:   s.TaskID,
		Prompt:   s.Prompt,
		Provider: s.Provider,
		Settings: map[string]float64(s.Settings),
		Status:   string(s.Status),
		Progress: s.Progress,
		Error:    s.Error,
	}
	if s.Video != nil {
		rec.VideoID = s.Video.FileID
	}
	return rec
}
