package modal

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/internal/metrics"
)

// DefaultPollInterval 是生成状态的默认轮询间隔
const DefaultPollInterval = 2 * time.Second

type options struct {
	logger       *zap.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration
}

// Option 配置视图
type Option func(*options)

// WithLogger 设置诊断日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPollInterval 设置轮询间隔，非正值被忽略
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(zap.String("component", component))
	return o
}
