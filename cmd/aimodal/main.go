// =============================================================================
// aimodal 命令行入口
// =============================================================================
// 通过命令行驱动 AI Modal 后端：文本处理、视频上传、视频生成与下载
//
// 使用方法:
//
//	aimodal process "Résume ce texte"            # 文本处理
//	aimodal process --video last "Décris"         # 分析最近上传的视频
//	aimodal upload clip.mp4                       # 上传视频
//	aimodal generate --set fps=12 "un chat"       # 生成视频并等待完成
//	aimodal status <task-id>                      # 查询生成状态
//	aimodal fetch --out out.mp4 last              # 下载视频
//	aimodal history                               # 查看会话记录
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/aimodal/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// commandFunc 执行一个子命令
type commandFunc func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]commandFunc{
	"process":   runProcess,
	"upload":    runUpload,
	"generate":  runGenerate,
	"status":    runStatus,
	"fetch":     runFetch,
	"providers": runProviders,
	"history":   runHistory,
	"reset":     runReset,
	"health":    runHealth,
}

// run 分发子命令并返回退出码
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err := cmd(ctx, args[1:], stdout, stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Error: %s\n", err)
		}
		return 1
	}
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "aimodal %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `aimodal - AI Modal command line client

Usage:
  aimodal <command> [options] [arguments]

Commands:
  process    Send a prompt (optionally about an uploaded video)
  upload     Upload a video file
  generate   Generate a video and wait for the result
  status     Check a generation task once
  fetch      Download a video
  providers  List providers and their settings
  history    Show the session history
  reset      Discard the session history
  health     Check that the backend is reachable
  version    Show version information
  help       Show this help message

Common options:
  --config <path>       Path to configuration file (YAML)

Options for 'process':
  --provider <name>     openai, anthropic or deepseek
  --model <name>        Model name (openai only)
  --max-tokens <n>      Maximum tokens in the answer
  --video <id|last>     Analyze an uploaded video instead of plain text

Options for 'upload':
  --content-type <t>    Declared content type (default: detected)

Options for 'generate':
  --provider <name>     replicate, stability or runway
  --set key=value       Override a provider setting (repeatable)
  --sync                Use the synchronous endpoint
  --no-wait             Print the task id and exit without polling

Options for 'fetch':
  --out <file>          Write the video to a file instead of stdout
                        (stdout output is written only after a complete download)

Options for 'history':
  --limit <n>           Number of tasks to show (default 10)

Examples:
  aimodal process "Explique la photosynthèse"
  aimodal upload ./clip.mp4
  aimodal process --video last "Que se passe-t-il dans cette vidéo ?"
  aimodal generate --provider stability --set cfg_scale=9 "un phare sous la pluie"
  aimodal fetch --out result.mp4 last`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.WarnLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
