// FakeBackend 是 aimodal 后端 API 的内存模拟实现。
//
// 支持脚本化的生成状态序列、按路由的错误注入与请求计数。
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/aimodal/api"
)

// --- FakeBackend 结构 ---

// FakeBackend 是基于 httptest 的后端模拟
type FakeBackend struct {
	mu     sync.Mutex
	server *httptest.Server

	// 响应配置
	processResult string
	provider      string
	script        []api.GenerationStatus
	statusDelay   time.Duration
	failures      map[string]injectedFailure

	// 状态
	videos map[string]storedVideo
	tasks  map[string]*taskCursor

	// 调用记录
	requests      map[string]int
	lastProcess   *api.ProcessRequest
	lastAnalyze   *api.AnalyzeVideoRequest
	lastGenerate  *api.GenerateVideoRequest
	lastUpload    *UploadRecord
	lastRequestID string
}

// UploadRecord 记录一次上传
type UploadRecord struct {
	Filename    string
	ContentType string
	Size        int64
}

type injectedFailure struct {
	status int
	body   string
}

type storedVideo struct {
	info api.VideoInfo
	data []byte
	// declared 非零时作为 Content-Length 发送
	declared int
}

type taskCursor struct {
	script []api.GenerationStatus
	next   int
}

// --- 构造函数和 Builder 方法 ---

// NewFakeBackend 创建并启动模拟后端
func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{
		processResult: "Mock result",
		provider:      "openai",
		failures:      make(map[string]injectedFailure),
		videos:        make(map[string]storedVideo),
		tasks:         make(map[string]*taskCursor),
		requests:      make(map[string]int),
		script: []api.GenerationStatus{
			{Status: api.TaskPending, Progress: Progress(0)},
			{Status: api.TaskCompleted, Progress: Progress(1)},
		},
	}
	f.server = httptest.NewServer(f.routes())
	return f
}

// WithProcessResult 设置文本处理与视频分析的固定结果
func (f *FakeBackend) WithProcessResult(result string) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processResult = result
	return f
}

// WithStatusScript 设置每个新任务的状态序列，序列耗尽后重复最后一项
func (f *FakeBackend) WithStatusScript(script ...api.GenerationStatus) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = script
	return f
}

// WithStatusDelay 设置状态查询的响应延迟
func (f *FakeBackend) WithStatusDelay(d time.Duration) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusDelay = d
	return f
}

// WithFailure 让指定路由返回固定状态码与响应体。
// path 使用 api.Path* 常量。
func (f *FakeBackend) WithFailure(path string, status int, body string) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = injectedFailure{status: status, body: body}
	return f
}

// WithDetailFailure 让指定路由返回 FastAPI 风格的 detail 错误
func (f *FakeBackend) WithDetailFailure(path string, status int, detail string) *FakeBackend {
	body, _ := json.Marshal(map[string]string{"detail": detail})
	return f.WithFailure(path, status, string(body))
}

// ClearFailure 移除路由上的错误注入
func (f *FakeBackend) ClearFailure(path string) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, path)
	return f
}

// AddVideo 预置一个可下载的视频
func (f *FakeBackend) AddVideo(id, filename, contentType string, data []byte) api.VideoInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := api.VideoInfo{
		Filename:    filename,
		FileID:      id,
		FilePath:    "uploads/" + id + "_" + filename,
		SizeBytes:   int64(len(data)),
		ContentType: contentType,
	}
	f.videos[id] = storedVideo{info: info, data: data}
	return info
}

// AddTruncatedVideo 预置一个声明长度大于实际内容的视频，下载会中途断开
func (f *FakeBackend) AddTruncatedVideo(id, filename string, data []byte, declared int) {
	info := f.AddVideo(id, filename, "video/mp4", data)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[id] = storedVideo{info: info, data: data, declared: declared}
}

// --- 访问器 ---

// URL 返回模拟后端地址
func (f *FakeBackend) URL() string {
	return f.server.URL
}

// Close 关闭模拟后端
func (f *FakeBackend) Close() {
	f.server.Close()
}

// Requests 返回指定路由收到的请求数
func (f *FakeBackend) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

// TotalRequests 返回收到的请求总数
func (f *FakeBackend) TotalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.requests {
		total += n
	}
	return total
}

// LastProcess 返回最近一次文本处理请求
func (f *FakeBackend) LastProcess() *api.ProcessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastProcess
}

// LastAnalyze 返回最近一次视频分析请求
func (f *FakeBackend) LastAnalyze() *api.AnalyzeVideoRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAnalyze
}

// LastGenerate 返回最近一次生成请求
func (f *FakeBackend) LastGenerate() *api.GenerateVideoRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGenerate
}

// LastUpload 返回最近一次上传记录
func (f *FakeBackend) LastUpload() *UploadRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUpload
}

// LastRequestID 返回最近一次请求携带的 X-Request-ID
func (f *FakeBackend) LastRequestID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequestID
}

// Progress 返回进度指针，便于构造状态脚本
func Progress(v float64) *float64 {
	return &v
}

// --- 路由 ---

func (f *FakeBackend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", f.track(api.PathRoot, f.handleRoot))
	mux.HandleFunc("POST "+api.PathProcess, f.track(api.PathProcess, f.handleProcess))
	mux.HandleFunc("POST "+api.PathAnalyzeVideo, f.track(api.PathAnalyzeVideo, f.handleAnalyze))
	mux.HandleFunc("POST "+api.PathUploadVideo, f.track(api.PathUploadVideo, f.handleUpload))
	mux.HandleFunc("GET "+api.PathVideos+"{id}", f.track(api.PathVideos, f.handleVideo))
	mux.HandleFunc("POST "+api.PathGenerateVideo, f.track(api.PathGenerateVideo, f.handleGenerate))
	mux.HandleFunc("POST "+api.PathGenerateVideoSync, f.track(api.PathGenerateVideoSync, f.handleGenerateSync))
	mux.HandleFunc("GET "+api.PathGenerationStatus+"{id}", f.track(api.PathGenerationStatus, f.handleStatus))
	return mux
}

func (f *FakeBackend) track(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[path]++
		f.lastRequestID = r.Header.Get("X-Request-ID")
		failure, failing := f.failures[path]
		f.mu.Unlock()

		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failure.status)
			_, _ = io.WriteString(w, failure.body)
			return
		}
		next(w, r)
	}
}

func (f *FakeBackend) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.WelcomeResponse{Message: "Bienvenue sur l'API AI Modal"})
}

func (f *FakeBackend) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "field required")
		return
	}

	f.mu.Lock()
	f.lastProcess = &req
	result := f.processResult
	provider := req.Provider
	if provider == "" {
		provider = f.provider
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, api.AIResponse{Result: result, Provider: provider})
}

func (f *FakeBackend) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req api.AnalyzeVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	f.mu.Lock()
	f.lastAnalyze = &req
	_, known := f.videos[req.VideoID]
	result := f.processResult
	f.mu.Unlock()

	if !known {
		writeDetail(w, http.StatusNotFound, "Vidéo non trouvée")
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = f.provider
	}
	writeJSON(w, http.StatusOK, api.AIResponse{Result: result, Provider: provider})
}

func (f *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(api.UploadField)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Erreur lors de l'upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		writeDetail(w, http.StatusBadRequest, "Le fichier doit être une vidéo")
		return
	}

	id := uuid.NewString()
	info := f.AddVideo(id, header.Filename, contentType, data)

	f.mu.Lock()
	f.lastUpload = &UploadRecord{Filename: header.Filename, ContentType: contentType, Size: int64(len(data))}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, info)
}

func (f *FakeBackend) handleVideo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	video, ok := f.videos[r.PathValue("id")]
	f.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Vidéo non trouvée")
		return
	}

	w.Header().Set("Content-Type", video.info.ContentType)
	length := len(video.data)
	if video.declared > 0 {
		length = video.declared
	}
	w.Header().Set("Content-Length", fmt.Sprint(length))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(video.data)
}

func (f *FakeBackend) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "field required")
		return
	}

	id := uuid.NewString()

	f.mu.Lock()
	f.lastGenerate = &req
	script := make([]api.GenerationStatus, len(f.script))
	copy(script, f.script)
	f.tasks[id] = &taskCursor{script: script}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, api.GenerationStatus{
		TaskID:   id,
		Status:   api.TaskPending,
		Progress: Progress(0),
	})
}

func (f *FakeBackend) handleGenerateSync(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "field required")
		return
	}

	f.mu.Lock()
	f.lastGenerate = &req
	f.mu.Unlock()

	id := uuid.NewString()
	info := f.AddVideo(id, "generated_"+id+".mp4", "video/mp4", []byte("generated"))
	writeJSON(w, http.StatusOK, info)
}

func (f *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	delay := f.statusDelay
	cursor, ok := f.tasks[id]
	var st api.GenerationStatus
	if ok && len(cursor.script) > 0 {
		idx := cursor.next
		if idx >= len(cursor.script) {
			idx = len(cursor.script) - 1
		} else {
			cursor.next++
		}
		st = cursor.script[idx]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		writeDetail(w, http.StatusNotFound, "Tâche non trouvée")
		return
	}

	st.TaskID = id
	if st.Status == api.TaskCompleted && st.VideoInfo == nil {
		info := f.AddVideo(id, "generated_"+id+".mp4", "video/mp4", []byte("generated"))
		st.VideoInfo = &info
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
