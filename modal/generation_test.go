package modal

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/internal/metrics"
	"github.com/BaSui01/aimodal/testutil"
	"github.com/BaSui01/aimodal/testutil/fixtures"
	"github.com/BaSui01/aimodal/testutil/mocks"
	"github.com/BaSui01/aimodal/types"
)

const testPollInterval = 10 * time.Millisecond

func TestGenerationView_CompletesAndStopsPolling(t *testing.T) {
	backend := mocks.NewFakeBackend().WithStatusScript(fixtures.CompletedSequence()...)
	defer backend.Close()

	view := NewGenerationView(newBackendClient(t, backend), WithPollInterval(testPollInterval))
	defer view.Close()

	view.SetPrompt("un coucher de soleil")
	require.NoError(t, view.Submit(testutil.TestContext(t)))

	state, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, PhaseCompleted, state.Phase)
	assert.Equal(t, api.TaskCompleted, state.Status)
	assert.Equal(t, 1.0, state.Progress)
	assert.Equal(t, 4, state.Polls)
	assert.Empty(t, state.Error)
	require.NotNil(t, state.Video)
	assert.Equal(t, state.TaskID, state.Video.FileID)

	req := backend.LastGenerate()
	require.NotNil(t, req)
	assert.Equal(t, "un coucher de soleil", req.Prompt)
	assert.Equal(t, "replicate", req.Provider)
	template, _ := ProviderTemplate("replicate")
	assert.Equal(t, map[string]float64(template), req.Settings)

	assert.False(t, view.Polling())
	testutil.AssertStable(t, func() any { return backend.Requests(api.PathGenerationStatus) }, 10*testPollInterval)
	assert.Equal(t, 4, backend.Requests(api.PathGenerationStatus))
}

func TestGenerationView_FailedTask(t *testing.T) {
	backend := mocks.NewFakeBackend().WithStatusScript(fixtures.FailedSequence("Replicate API error: out of credits")...)
	defer backend.Close()

	view := NewGenerationView(newBackendClient(t, backend), WithPollInterval(testPollInterval))
	defer view.Close()

	view.SetPrompt("un chat")
	require.NoError(t, view.Submit(testutil.TestContext(t)))

	state, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Equal(t, "Replicate API error: out of credits", state.Error)
	assert.Equal(t, 0.5, state.Progress, "null progress keeps the last known value")
	assert.Nil(t, state.Video)
	assert.Equal(t, 3, state.Polls)
}

func TestGenerationView_FailedWithoutReason(t *testing.T) {
	stub := newStubGenClient(api.GenerationStatus{Status: api.TaskFailed})
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	defer view.Close()

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	state, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, MsgGenerationFailed, state.Error)
}

func TestGenerationView_EmptyPrompt(t *testing.T) {
	stub := newStubGenClient(fixtures.CompletedSequence()...)
	view := NewGenerationView(stub)
	defer view.Close()

	view.SetPrompt("   ")
	err := view.Submit(testutil.TestContext(t))
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))

	state := view.Snapshot()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Equal(t, MsgEmptyPrompt, state.Error)
	assert.Zero(t, stub.Calls())
	assert.False(t, view.Polling())
}

func TestGenerationView_SubmitErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server detail", types.NewError(types.ErrServer, "Erreur lors de la génération: quota"), "Erreur lors de la génération: quota"},
		{"transport", types.NewError(types.ErrTransport, "backend unreachable"), MsgGenerateFailed},
		{"status", types.NewError(types.ErrHTTP, "backend returned status 502"), MsgGenerateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubGenClient(fixtures.CompletedSequence()...)
			stub.genErr = tt.err
			view := NewGenerationView(stub)
			defer view.Close()

			view.SetPrompt("x")
			require.Error(t, view.Submit(testutil.TestContext(t)))

			state := view.Snapshot()
			assert.Equal(t, PhaseError, state.Phase)
			assert.Equal(t, tt.want, state.Error)
			assert.Empty(t, state.TaskID)
			assert.False(t, view.Polling())
			assert.Zero(t, stub.Calls())
		})
	}
}

func TestGenerationView_InvalidSettingsRejected(t *testing.T) {
	stub := newStubGenClient(fixtures.CompletedSequence()...)
	view := NewGenerationView(stub)
	defer view.Close()

	require.Error(t, view.SetSetting("fps", 500))
	require.Error(t, view.SetSetting("cfg_scale", 7))
	require.NoError(t, view.SetSetting("fps", 12))
	assert.Equal(t, 12.0, view.Snapshot().Settings["fps"])
}

func TestGenerationView_PollErrorStopsPolling(t *testing.T) {
	backend := mocks.NewFakeBackend().WithStatusScript(fixtures.EndlessRunning()...)
	defer backend.Close()

	view := NewGenerationView(newBackendClient(t, backend), WithPollInterval(testPollInterval))
	defer view.Close()

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	testutil.AssertEventuallyTrue(t, func() bool { return view.Snapshot().Polls >= 2 }, 5*time.Second)

	backend.WithFailure(api.PathGenerationStatus, http.StatusBadGateway, "")
	state, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, MsgStatusFailed, state.Error)
	assert.Equal(t, api.TaskRunning, state.Status, "last known status is kept")
	assert.Equal(t, 0.1, state.Progress)
	assert.False(t, view.Polling())

	testutil.AssertStable(t, func() any { return backend.Requests(api.PathGenerationStatus) }, 10*testPollInterval)
}

func TestGenerationStatus_UnknownTaskDetailShown(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	c := newBackendClient(t, backend)
	_, err := c.GenerationStatus(testutil.TestContext(t), "missing")
	require.Error(t, err)
	assert.Equal(t, "Tâche non trouvée", types.UserMessage(err, MsgStatusFailed))
}

func TestGenerationView_ResubmitClearsPreviousTask(t *testing.T) {
	stub := newStubGenClient(fixtures.EndlessRunning()...)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	defer view.Close()

	view.SetPrompt("first")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	testutil.AssertEventuallyTrue(t, func() bool { return view.Snapshot().Polls >= 2 }, 5*time.Second)
	first := view.Snapshot()
	assert.Equal(t, "task-1", first.TaskID)

	view.SetPrompt("second")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	state := view.Snapshot()
	assert.Equal(t, "task-2", state.TaskID)
	assert.Empty(t, state.Error)
	assert.Nil(t, state.Video)
	assert.True(t, view.Polling())

	view.Close()
	assert.False(t, view.Polling())
}

func TestGenerationView_CloseStopsPolling(t *testing.T) {
	backend := mocks.NewFakeBackend().WithStatusScript(fixtures.EndlessRunning()...)
	defer backend.Close()

	view := NewGenerationView(newBackendClient(t, backend), WithPollInterval(testPollInterval))
	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	testutil.AssertEventuallyTrue(t, func() bool { return backend.Requests(api.PathGenerationStatus) >= 2 }, 5*time.Second)

	view.Close()
	view.Close()
	assert.False(t, view.Polling())
	testutil.AssertStable(t, func() any { return backend.Requests(api.PathGenerationStatus) }, 10*testPollInterval)

	err := view.Submit(testutil.TestContext(t))
	require.Error(t, err)
}

func TestGenerationView_SingleFlightPolling(t *testing.T) {
	stub := newStubGenClient(fixtures.EndlessRunning()...)
	stub.delay = 30 * time.Millisecond
	view := NewGenerationView(stub, WithPollInterval(2*time.Millisecond))

	view.SetPrompt("slow backend")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	testutil.AssertEventuallyTrue(t, func() bool { return stub.Calls() >= 4 }, 5*time.Second)
	view.Close()

	assert.Equal(t, int32(1), stub.MaxInFlight())
}

func TestGenerationView_OnChange(t *testing.T) {
	stub := newStubGenClient(fixtures.CompletedSequence()...)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	defer view.Close()

	var (
		mu     sync.Mutex
		phases []Phase
	)
	view.OnChange(func(s GenerationState) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	})

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	_, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseSubmitting, PhasePolling, PhaseCompleted}, phases)
}

func TestGenerationView_SubmitSync(t *testing.T) {
	backend := mocks.NewFakeBackend()
	defer backend.Close()

	view := NewGenerationView(newBackendClient(t, backend))
	defer view.Close()

	require.NoError(t, view.SelectProvider("runway"))
	view.SetPrompt("une forêt")
	require.NoError(t, view.SubmitSync(testutil.TestContext(t)))

	state := view.Snapshot()
	assert.Equal(t, PhaseCompleted, state.Phase)
	require.NotNil(t, state.Video)
	assert.Equal(t, "video/mp4", state.Video.ContentType)
	assert.Equal(t, "runway", backend.LastGenerate().Provider)
	assert.Equal(t, 1, backend.Requests(api.PathGenerateVideoSync))
	assert.Zero(t, backend.Requests(api.PathGenerationStatus))
}

func TestGenerationView_Metrics(t *testing.T) {
	collector := metrics.NewCollector("gen_metrics_test", zap.NewNop())
	stub := newStubGenClient(fixtures.CompletedSequence()...)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond), WithMetrics(collector))
	defer view.Close()

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	_, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, collector, "gen_metrics_test_generation_polls_total", "running"))
	assert.Equal(t, 1.0, counterValue(t, collector, "gen_metrics_test_generation_polls_total", "completed"))
	assert.Equal(t, 1.0, counterValue(t, collector, "gen_metrics_test_generations_total", "completed"))
}

func TestGenerationView_NoPollsAfterTerminal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("polling stops at the first terminal status", prop.ForAll(
		func(running int, fail bool) bool {
			script := make([]api.GenerationStatus, 0, running+1)
			for i := 0; i < running; i++ {
				script = append(script, api.GenerationStatus{Status: api.TaskRunning, Progress: mocks.Progress(float64(i) / 10)})
			}
			if fail {
				script = append(script, api.GenerationStatus{Status: api.TaskFailed, Error: "boom"})
			} else {
				script = append(script, api.GenerationStatus{Status: api.TaskCompleted, Progress: mocks.Progress(1)})
			}

			stub := newStubGenClient(script...)
			view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
			defer view.Close()

			view.SetPrompt("property")
			if err := view.Submit(testutil.TestContext(t)); err != nil {
				return false
			}
			state, err := view.Wait(testutil.TestContextWithTimeout(t, 5*time.Second))
			if err != nil || !state.Phase.IsTerminal() {
				return false
			}

			time.Sleep(10 * time.Millisecond)
			return stub.Calls() == running+1 && view.Snapshot().Polls == running+1
		},
		gen.IntRange(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestGenerationView_ListenerClosesOnCompleted(t *testing.T) {
	stub := newStubGenClient(fixtures.CompletedSequence()...)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	view.OnChange(func(s GenerationState) {
		if s.Phase == PhaseCompleted {
			view.Close()
		}
	})

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))

	state, err := view.Wait(testutil.TestContextWithTimeout(t, 2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, state.Phase)
	assert.False(t, view.Polling())
	assert.Error(t, view.Submit(testutil.TestContext(t)))
}

func TestGenerationView_ListenerClosesWhilePolling(t *testing.T) {
	stub := newStubGenClient(fixtures.EndlessRunning()...)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	view.OnChange(func(s GenerationState) {
		if s.Phase == PhasePolling && s.Polls >= 2 {
			view.Close()
		}
	})

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))

	testutil.AssertEventuallyTrue(t, func() bool { return !view.Polling() }, 2*time.Second)
	testutil.AssertStable(t, func() any { return stub.Calls() }, 20*time.Millisecond)
	assert.Equal(t, 2, stub.Calls())
}

func TestGenerationView_ListenerResubmitsAfterFailure(t *testing.T) {
	stub := newStubGenClient(fixtures.FailedSequence("boom")...)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	defer view.Close()

	var retried atomic.Bool
	view.OnChange(func(s GenerationState) {
		if s.Phase == PhaseFailed && retried.CompareAndSwap(false, true) {
			assert.NoError(t, view.Submit(context.Background()))
		}
	})

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))

	testutil.AssertEventuallyTrue(t, func() bool {
		s := view.Snapshot()
		return s.TaskID == "task-2" && s.Phase == PhaseFailed
	}, 2*time.Second)
	assert.True(t, retried.Load())
}

func TestGenerationView_ProgressClamped(t *testing.T) {
	over, under := 1.7, -0.2
	stub := newStubGenClient(
		api.GenerationStatus{Status: api.TaskRunning, Progress: &over},
		api.GenerationStatus{Status: api.TaskRunning, Progress: &under},
	)
	view := NewGenerationView(stub, WithPollInterval(time.Millisecond))
	defer view.Close()

	var (
		mu   sync.Mutex
		seen []float64
	)
	view.OnChange(func(s GenerationState) {
		mu.Lock()
		defer mu.Unlock()
		if s.Polls > 0 && len(seen) < 2 {
			seen = append(seen, s.Progress)
		}
	})

	view.SetPrompt("x")
	require.NoError(t, view.Submit(testutil.TestContext(t)))
	testutil.AssertEventuallyTrue(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second)
	view.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{1, 0}, seen)
}
