package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/config"
	"github.com/BaSui01/aimodal/internal/ctxkeys"
	"github.com/BaSui01/aimodal/internal/metrics"
	"github.com/BaSui01/aimodal/testutil"
	"github.com/BaSui01/aimodal/testutil/fixtures"
	"github.com/BaSui01/aimodal/testutil/mocks"
	"github.com/BaSui01/aimodal/types"
)

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	cfg := config.DefaultBackendConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	cfg := config.DefaultBackendConfig()
	cfg.BaseURL = "localhost"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL()+"/")
	resp, err := c.Ping(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Bienvenue")
	assert.Equal(t, backend.URL(), c.BaseURL())
}

func TestClient_Process(t *testing.T) {
	backend := mocks.NewFakeBackend().WithProcessResult("Bonjour")
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	resp, err := c.Process(testutil.TestContext(t), &api.ProcessRequest{
		Prompt:    "Dis bonjour",
		Provider:  "anthropic",
		MaxTokens: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bonjour", resp.Result)
	assert.Equal(t, "anthropic", resp.Provider)
	require.NotNil(t, backend.LastProcess())
	assert.Equal(t, 50, backend.LastProcess().MaxTokens)
	assert.NotEmpty(t, backend.LastRequestID())
}

func TestClient_RequestIDFromContext(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	ctx := ctxkeys.WithRequestID(testutil.TestContext(t), "req-fixed")
	_, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-fixed", backend.LastRequestID())
}

func TestClient_ServerDetailIsVerbatim(t *testing.T) {
	backend := mocks.NewFakeBackend().
		WithDetailFailure(api.PathProcess, http.StatusInternalServerError, "Erreur OpenAI: quota exceeded")
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.Process(testutil.TestContext(t), &api.ProcessRequest{Prompt: "x"})
	require.Error(t, err)

	assert.Equal(t, types.ErrServer, types.GetErrorCode(err))
	assert.Equal(t, "Erreur OpenAI: quota exceeded", types.UserMessage(err, "fallback"))
	assert.True(t, types.IsRetryable(err))
}

func TestClient_ValidationListDetail(t *testing.T) {
	backend := mocks.NewFakeBackend().
		WithFailure(api.PathGenerateVideo, http.StatusUnprocessableEntity,
			`{"detail":[{"loc":["body","prompt"],"msg":"field required","type":"value_error.missing"}]}`)
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.GenerateVideo(testutil.TestContext(t), &api.GenerateVideoRequest{Prompt: "x"})
	require.Error(t, err)

	assert.Equal(t, types.ErrServer, types.GetErrorCode(err))
	assert.Equal(t, "field required", types.UserMessage(err, "fallback"))
}

func TestClient_StatusWithoutDetailUsesFallback(t *testing.T) {
	backend := mocks.NewFakeBackend().
		WithFailure(api.PathProcess, http.StatusBadGateway, "<html>bad gateway</html>")
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.Process(testutil.TestContext(t), &api.ProcessRequest{Prompt: "x"})
	require.Error(t, err)

	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, types.ErrHTTP, typed.Code)
	assert.Equal(t, http.StatusBadGateway, typed.HTTPStatus)
	assert.Equal(t, "fallback", types.UserMessage(err, "fallback"))
}

func TestClient_NotFound(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.GenerationStatus(testutil.TestContext(t), "missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	assert.Equal(t, "Tâche non trouvée", types.UserMessage(err, "fallback"))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.Ping(testutil.TestContext(t))
	require.Error(t, err)
	assert.Equal(t, types.ErrTransport, types.GetErrorCode(err))
	assert.Equal(t, "fallback", types.UserMessage(err, "fallback"))
}

func TestClient_Timeout(t *testing.T) {
	backend := mocks.NewFakeBackend().WithStatusDelay(2 * time.Second)
	defer backend.Close()

	cfg := config.DefaultBackendConfig()
	cfg.BaseURL = backend.URL()
	cfg.Timeout = 50 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.GenerationStatus(testutil.TestContext(t), "any")
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Process(testutil.TestContext(t), &api.ProcessRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrDecode, types.GetErrorCode(err))
}

func TestClient_UploadAndOpenVideo(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	collector := metrics.NewCollector("client_upload_test", zap.NewNop())
	c := newTestClient(t, backend.URL(), WithMetrics(collector), WithLogger(zap.NewNop()))
	ctx := testutil.TestContext(t)
	data := fixtures.MP4Bytes()

	info, err := c.UploadVideo(ctx, "clip.mp4", "video/mp4", bytes.NewReader(data))
	require.NoError(t, err)
	assert.NotEmpty(t, info.FileID)
	assert.Equal(t, "clip.mp4", info.Filename)
	assert.Equal(t, int64(len(data)), info.SizeBytes)

	upload := backend.LastUpload()
	require.NotNil(t, upload)
	assert.Equal(t, "video/mp4", upload.ContentType)

	stream, err := c.OpenVideo(ctx, info.FileID)
	require.NoError(t, err)
	got, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	require.NoError(t, stream.Body.Close())

	assert.Equal(t, data, got)
	assert.Equal(t, "video/mp4", stream.ContentType)
	assert.Equal(t, int64(len(data)), stream.ContentLength)
}

func TestClient_UploadRejectedByServer(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.UploadVideo(testutil.TestContext(t), "notes.txt", "text/plain", bytes.NewReader(fixtures.TextBytes()))
	require.Error(t, err)
	assert.Equal(t, "Le fichier doit être une vidéo", types.UserMessage(err, "fallback"))
}

func TestClient_UploadReaderFailure(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.UploadVideo(testutil.TestContext(t), "clip.mp4", "video/mp4", failingReader{})
	require.Error(t, err)
	assert.Equal(t, "fallback", types.UserMessage(err, "fallback"))
}

func TestClient_OpenVideoNotFound(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.OpenVideo(testutil.TestContext(t), "nope")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))

	_, err = c.OpenVideo(testutil.TestContext(t), "  ")
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestClient_GenerateAndPollStatus(t *testing.T) {
	backend := mocks.NewFakeBackend().WithStatusScript(fixtures.CompletedSequence()...)
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	ctx := testutil.TestContext(t)

	task, err := c.GenerateVideo(ctx, &api.GenerateVideoRequest{
		Prompt:   "a cat surfing",
		Provider: "replicate",
		Settings: map[string]float64{"num_frames": 24},
	})
	require.NoError(t, err)
	require.NotEmpty(t, task.TaskID)
	assert.Equal(t, api.TaskPending, task.Status)
	assert.Equal(t, 24.0, backend.LastGenerate().Settings["num_frames"])

	var seen []api.TaskStatus
	for i := 0; i < 4; i++ {
		st, err := c.GenerationStatus(ctx, task.TaskID)
		require.NoError(t, err)
		seen = append(seen, st.Status)
		if st.Status.IsTerminal() {
			require.NotNil(t, st.VideoInfo)
			assert.Equal(t, task.TaskID, st.TaskID)
		}
	}
	assert.Equal(t, []api.TaskStatus{api.TaskPending, api.TaskRunning, api.TaskRunning, api.TaskCompleted}, seen)
	assert.Equal(t, 4, backend.Requests(api.PathGenerationStatus))
}

func TestClient_GenerateVideoSync(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	info, err := c.GenerateVideoSync(testutil.TestContext(t), &api.GenerateVideoRequest{Prompt: "sunset"})
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", info.ContentType)
	assert.Equal(t, 1, backend.Requests(api.PathGenerateVideoSync))
}

func TestClient_CancelledContext(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newTestClient(t, backend.URL())
	_, err := c.Ping(testutil.CancelledContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, backend.TotalRequests())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
