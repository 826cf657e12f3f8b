package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/client"
	"github.com/BaSui01/aimodal/config"
	"github.com/BaSui01/aimodal/internal/metrics"
	"github.com/BaSui01/aimodal/internal/server"
	"github.com/BaSui01/aimodal/internal/store"
	"github.com/BaSui01/aimodal/internal/telemetry"
	"github.com/BaSui01/aimodal/modal"
)

// errUsage 表示参数错误，用法已经打印
var errUsage = errors.New("usage")

// =============================================================================
// 🧩 应用装配
// =============================================================================

// App 持有一次命令执行所需的全部组件
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	server    *server.Manager
	client    *client.Client
	store     store.Store
	stdout    io.Writer
	stderr    io.Writer
}

// newFlagSet 创建带 --config 的子命令参数集
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	return fs, configPath
}

// parseFlags 解析参数，错误时转换为 errUsage
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// openApp 加载配置并初始化日志、遥测、指标与后端客户端
func openApp(ctx context.Context, configPath, command string, stdout, stderr io.Writer) (*App, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log).With(zap.String("command", command))

	app := &App{
		cfg:    cfg,
		logger: logger,
		stdout: stdout,
		stderr: stderr,
	}

	// Initialize OpenTelemetry
	app.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	clientOpts := []client.Option{client.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		app.metrics = metrics.NewCollector(cfg.Metrics.Namespace, logger)
		clientOpts = append(clientOpts, client.WithMetrics(app.metrics))

		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Metrics.Addr
		app.server = server.NewManager(server.NewMux(app.metrics.Handler()), srvCfg, logger)
		if err := app.server.Start(); err != nil {
			logger.Warn("metrics server not started", zap.Error(err))
			app.server = nil
		}
	}

	app.client, err = client.New(cfg.Backend, clientOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}

	logger.Debug("aimodal started",
		zap.String("version", Version),
		zap.String("backend", app.client.BaseURL()),
	)
	return app, nil
}

// Store 按需打开会话存储
func (a *App) Store() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(a.cfg.Store, a.logger, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	a.store = s
	return s, nil
}

// modalOptions 返回视图共享的选项
func (a *App) modalOptions() []modal.Option {
	opts := []modal.Option{
		modal.WithLogger(a.logger),
		modal.WithPollInterval(a.cfg.Generation.PollInterval),
	}
	if a.metrics != nil {
		opts = append(opts, modal.WithMetrics(a.metrics))
	}
	return opts
}

// Close 依次关闭存储、指标服务器与遥测
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close session store", zap.Error(err))
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// resolveVideo 将 "last" 解析为会话中最近的视频
func (a *App) resolveVideo(ctx context.Context, id string) (string, error) {
	if id != "last" {
		return id, nil
	}
	s, err := a.Store()
	if err != nil {
		return "", err
	}
	rec, err := s.LastVideo(ctx)
	if store.IsNotFound(err) {
		return "", errors.New(msgNoLastVideo)
	}
	if err != nil {
		return "", err
	}
	return rec.FileID, nil
}

// remember 保存会话记录，失败只记录日志
func (a *App) remember(fn func(ctx context.Context, s store.Store) error) {
	s, err := a.Store()
	if err != nil {
		a.logger.Warn("session store unavailable", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx, s); err != nil {
		a.logger.Warn("failed to update session store", zap.Error(err))
	}
}
