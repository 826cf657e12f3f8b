// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	registry *prometheus.Registry

	// 后端请求指标
	backendRequestsTotal   *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	// 上传指标
	uploadsTotal *prometheus.CounterVec
	uploadBytes  prometheus.Histogram

	// 生成指标
	generationPolls    *prometheus.CounterVec
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// 存储指标
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，所有指标注册在独立的 Registry 上
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 后端请求指标
	c.backendRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of backend API requests",
		},
		[]string{"method", "route", "status"},
	)

	c.backendRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	// 上传指标
	c.uploadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_uploads_total",
			Help:      "Total number of video upload attempts",
		},
		[]string{"result"}, // result: ok, rejected, error
	)

	c.uploadBytes = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "video_upload_size_bytes",
			Help:      "Size of uploaded videos in bytes",
			Buckets:   prometheus.ExponentialBuckets(1<<16, 4, 8),
		},
	)

	// 生成指标
	c.generationPolls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_polls_total",
			Help:      "Total number of generation status polls",
		},
		[]string{"status"},
	)

	c.generationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of finished generation jobs",
		},
		[]string{"provider", "result"},
	)

	c.generationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time from submission to terminal status in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)

	// 存储指标
	c.storeOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Session store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 Prometheus 抓取端点
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// =============================================================================
// 🌐 后端请求指标记录
// =============================================================================

// RecordBackendRequest 记录后端请求，status 为 0 表示传输失败
func (c *Collector) RecordBackendRequest(method, route string, status int, duration time.Duration) {
	c.backendRequestsTotal.WithLabelValues(method, route, statusCode(status)).Inc()
	c.backendRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// =============================================================================
// 📤 上传指标记录
// =============================================================================

// RecordUpload 记录上传结果
func (c *Collector) RecordUpload(result string, size int64) {
	c.uploadsTotal.WithLabelValues(result).Inc()
	if result == "ok" && size > 0 {
		c.uploadBytes.Observe(float64(size))
	}
}

// =============================================================================
// 🎬 生成指标记录
// =============================================================================

// RecordPoll 记录一次状态轮询
func (c *Collector) RecordPoll(status string) {
	c.generationPolls.WithLabelValues(status).Inc()
}

// RecordGeneration 记录一个到达终态的生成任务
func (c *Collector) RecordGeneration(provider, result string, duration time.Duration) {
	c.generationsTotal.WithLabelValues(provider, result).Inc()
	c.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOp 记录存储操作耗时
func (c *Collector) RecordStoreOp(driver, operation string, duration time.Duration) {
	c.storeOpDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code == 0:
		return "error"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
