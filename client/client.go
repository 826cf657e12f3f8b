package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/config"
	"github.com/BaSui01/aimodal/internal/ctxkeys"
	"github.com/BaSui01/aimodal/internal/metrics"
	"github.com/BaSui01/aimodal/internal/telemetry"
	"github.com/BaSui01/aimodal/internal/tlsutil"
	"github.com/BaSui01/aimodal/types"
)

// 指标与追踪使用的路由模板
const (
	routeRoot             = api.PathRoot
	routeProcess          = api.PathProcess
	routeAnalyzeVideo     = api.PathAnalyzeVideo
	routeUploadVideo      = api.PathUploadVideo
	routeVideo            = api.PathVideos + "{video_id}"
	routeGenerateVideo    = api.PathGenerateVideo
	routeGenerateSync     = api.PathGenerateVideoSync
	routeGenerationStatus = api.PathGenerationStatus + "{task_id}"
)

// HeaderRequestID 是每个后端请求携带的请求 ID 头
const HeaderRequestID = "X-Request-ID"

// Client 是 aimodal 后端 API 的 HTTP 客户端。
// 客户端本身不做任何重试。
type Client struct {
	baseURL         string
	http            *http.Client
	timeout         time.Duration
	transferTimeout time.Duration
	userAgent       string

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New 根据后端配置创建客户端
func New(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            tlsutil.BackendHTTPClient(cfg),
		timeout:         cfg.Timeout,
		transferTimeout: cfg.TransferTimeout,
		userAgent:       cfg.UserAgent,
		logger:          zap.NewNop(),
		tracer:          telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "backend_client"))

	return c, nil
}

// BaseURL 返回后端基础 URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// 文本
// =============================================================================

// Ping 调用根路由，用作健康检查
func (c *Client) Ping(ctx context.Context) (*api.WelcomeResponse, error) {
	var out api.WelcomeResponse
	if err := c.doJSON(ctx, http.MethodGet, routeRoot, api.PathRoot, nil, c.timeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Process 发送文本处理请求
func (c *Client) Process(ctx context.Context, req *api.ProcessRequest) (*api.AIResponse, error) {
	var out api.AIResponse
	if err := c.doJSON(ctx, http.MethodPost, routeProcess, api.PathProcess, req, c.timeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeVideo 发送视频分析请求
func (c *Client) AnalyzeVideo(ctx context.Context, req *api.AnalyzeVideoRequest) (*api.AIResponse, error) {
	var out api.AIResponse
	if err := c.doJSON(ctx, http.MethodPost, routeAnalyzeVideo, api.PathAnalyzeVideo, req, c.transferTimeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// 视频
// =============================================================================

// UploadVideo 以 multipart 方式上传视频。
// contentType 写入文件分段的 Content-Type 头。
func (c *Client) UploadVideo(ctx context.Context, filename, contentType string, r io.Reader) (*api.VideoInfo, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, api.UploadField, filename))
		h.Set("Content-Type", contentType)

		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	var out api.VideoInfo
	err := c.do(ctx, http.MethodPost, routeUploadVideo, api.PathUploadVideo, pr, mw.FormDataContentType(), c.transferTimeout, func(resp *http.Response) error {
		return decodeJSON(resp.Body, &out)
	})
	if err != nil {
		// 解除写端阻塞
		pr.CloseWithError(err)
		return nil, err
	}
	return &out, nil
}

// VideoStream 是一个打开的视频流，调用方负责关闭
type VideoStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// OpenVideo 打开视频流
func (c *Client) OpenVideo(ctx context.Context, videoID string) (*VideoStream, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, types.NewError(types.ErrValidation, "video id is required")
	}

	ctx, cancel := withTimeout(ctx, c.transferTimeout)
	resp, err := c.send(ctx, http.MethodGet, routeVideo, api.PathVideos+url.PathEscape(videoID), nil, "")
	if err != nil {
		cancel()
		return nil, err
	}

	return &VideoStream{
		Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// =============================================================================
// 视频生成
// =============================================================================

// GenerateVideo 提交异步生成任务
func (c *Client) GenerateVideo(ctx context.Context, req *api.GenerateVideoRequest) (*api.GenerationStatus, error) {
	var out api.GenerationStatus
	if err := c.doJSON(ctx, http.MethodPost, routeGenerateVideo, api.PathGenerateVideo, req, c.timeout, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, decodeError(fmt.Errorf("response has no task_id"))
	}
	return &out, nil
}

// GenerationStatus 查询生成任务状态
func (c *Client) GenerationStatus(ctx context.Context, taskID string) (*api.GenerationStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, types.NewError(types.ErrValidation, "task id is required")
	}

	ctx = ctxkeys.WithTaskID(ctx, taskID)
	var out api.GenerationStatus
	path := api.PathGenerationStatus + url.PathEscape(taskID)
	if err := c.doJSON(ctx, http.MethodGet, routeGenerationStatus, path, nil, c.timeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateVideoSync 同步生成视频，阻塞直到后端返回结果
func (c *Client) GenerateVideoSync(ctx context.Context, req *api.GenerateVideoRequest) (*api.VideoInfo, error) {
	var out api.VideoInfo
	if err := c.doJSON(ctx, http.MethodPost, routeGenerateSync, api.PathGenerateVideoSync, req, c.transferTimeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// 请求发送
// =============================================================================

func (c *Client) doJSON(ctx context.Context, method, route, path string, in any, timeout time.Duration, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return types.NewError(types.ErrValidation, "failed to encode request").WithCause(err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	return c.do(ctx, method, route, path, body, contentType, timeout, func(resp *http.Response) error {
		return decodeJSON(resp.Body, out)
	})
}

func (c *Client) do(ctx context.Context, method, route, path string, body io.Reader, contentType string, timeout time.Duration, handle func(*http.Response) error) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.send(ctx, method, route, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := handle(resp); err != nil {
		if ctx.Err() != nil {
			return transportError(ctx, err)
		}
		return err
	}
	return nil
}

// send 发送请求并检查状态码。返回的响应状态码一定是 2xx。
func (c *Client) send(ctx context.Context, method, route, path string, body io.Reader, contentType string) (*http.Response, error) {
	requestID, ok := ctxkeys.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = ctxkeys.WithRequestID(ctx, requestID)
	}

	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.String("aimodal.request_id", requestID),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, types.NewError(types.ErrValidation, "failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("route", route),
		zap.String("request_id", requestID),
	}
	if taskID, ok := ctxkeys.TaskID(ctx); ok {
		fields = append(fields, zap.String("task_id", taskID))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.record(method, route, 0, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Warn("backend request failed", append(fields, zap.Duration("duration", duration), zap.Error(err))...)
		return nil, transportError(ctx, err)
	}

	c.record(method, route, resp.StatusCode, duration)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	fields = append(fields, zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		resp.Body.Close()
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		c.logger.Warn("backend returned error", append(fields, zap.String("detail", detail))...)
		return nil, mapHTTPError(resp.StatusCode, detail)
	}

	c.logger.Debug("backend request", fields...)
	return resp, nil
}

func (c *Client) record(method, route string, status int, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(method, route, status, duration)
	}
}

// =============================================================================
// 辅助函数
// =============================================================================

func decodeJSON(r io.Reader, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, r)
		return nil
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return decodeError(err)
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cancelOnClose 在关闭响应体时释放请求上下文
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
