package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"github.com/xkilldash9x/deskpilot/internal/desktop/memdesk"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
	"go.uber.org/zap/zaptest"
)

const (
	finishDone    = `{"action": "finish", "args": {"reason": "done"}}`
	listWindows   = `{"action": "list_open_windows", "args": {}}`
	openNotepad   = `{"action": "search_and_open_app", "args": {"app_name": "Notepad"}}`
	clickStrike   = `{"action": "interact_with_element", "args": {"window_title": "Editor", "action": "click", "element_title": "Strike"}}`
	testObjective = "Open Notepad and finish."
)

type loopHarness struct {
	desk  *memdesk.Desktop
	sleep *sleepLog
	loop  *Loop
}

func newLoop(t *testing.T, o oracle.Oracle, cfg config.AgentConfig, opts ...Option) *loopHarness {
	t.Helper()
	d := newTestDesk(t, deskFixture)
	env := newTestEnv(t, d)
	sl := &sleepLog{}
	logger := zaptest.NewLogger(t)
	opts = append([]Option{WithSleep(sl.sleep)}, opts...)
	return &loopHarness{
		desk:  d,
		sleep: sl,
		loop:  NewLoop(o, env.Toolkit(cfg.Variant, nil, logger), cfg, logger, opts...),
	}
}

func TestLoop_OpensAppThenFinishes(t *testing.T) {
	script := oracle.Replies(openNotepad, finishDone)
	h := newLoop(t, script, testAgentConfig())

	out, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "done", out.Summary)
	assert.Equal(t, 2, out.Steps)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "search_and_open_app", out.Records[0].Action)
	assert.Equal(t, map[string]any{"app_name": "Notepad"}, out.Records[0].Args)
	assert.Contains(t, out.Records[0].Observation, "Successfully launched 'Notepad'")
	assert.Equal(t, 0, out.Records[0].StepIndex)
	assert.Equal(t, 1, out.Records[1].StepIndex)
	assert.Equal(t, out.RunID, out.Records[1].RunID)
	assert.Equal(t, []string{"Notepad"}, h.desk.Launched())
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleep.all())
	assert.Zero(t, script.Remaining())
}

func TestLoop_HistoryGrowsEachStep(t *testing.T) {
	script := oracle.Replies(openNotepad, finishDone)
	h := newLoop(t, script, testAgentConfig())

	out, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)

	reqs := script.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"OBJECTIVE: Open Notepad and finish.\n"}, reqs[0].History)
	assert.Equal(t, testObjective, reqs[0].Objective)
	assert.Contains(t, reqs[0].Toolkit, "`FINISH(reason: str)`")
	assert.Len(t, reqs[0].Rules, 2)

	require.Len(t, reqs[1].History, 2)
	assert.Equal(t, out.Records[0].String(), reqs[1].History[1])
	assert.Contains(t, reqs[1].History[1], "Action: SEARCH_AND_OPEN_APP with args")
	assert.Equal(t, reqs[1].History, out.History())
}

func TestLoop_ExhaustsBudget(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantKind RecordKind
		wantCool time.Duration
	}{
		{"repeating action", listWindows, RecordAction, 2 * time.Second},
		{"unparseable replies", "I am thinking about it.", RecordOracleFailure, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAgentConfig()
			cfg.MaxSteps = 5
			calls := 0
			o := oracle.Func(func(context.Context, oracle.DecisionRequest) (string, error) {
				calls++
				return tt.reply, nil
			})
			h := newLoop(t, o, cfg)

			out, err := h.loop.Run(t.Context(), "Keep going forever.")
			require.NoError(t, err)

			assert.Equal(t, StatusExhausted, out.Status)
			assert.Equal(t, "Task failed: reached maximum number of steps.", out.Summary)
			assert.Equal(t, 5, calls)
			require.Len(t, out.Records, 5)
			for _, r := range out.Records {
				assert.Equal(t, tt.wantKind, r.Kind)
			}
			// No cooldown follows the last step.
			assert.Len(t, h.sleep.all(), 4)
			assert.Equal(t, tt.wantCool, h.sleep.all()[0])
		})
	}
}

func TestLoop_VisionBudget(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Variant = config.VariantVision
	cfg.MaxSteps = 20
	cfg.VisionMaxSteps = 3
	h := newLoop(t, oracle.Func(func(context.Context, oracle.DecisionRequest) (string, error) {
		return listWindows, nil
	}), cfg)

	out, err := h.loop.Run(t.Context(), "Look around.")
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, out.Status)
	assert.Len(t, out.Records, 3)
	assert.Equal(t, "vision", out.Variant)
}

func TestLoop_RecoversFromMalformedReply(t *testing.T) {
	h := newLoop(t, oracle.Replies("Sure! I will open Notepad.", finishDone), testAgentConfig())

	out, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Records, 2)
	assert.Equal(t, RecordOracleFailure, out.Records[0].Kind)
	assert.Contains(t, out.Records[0].Observation, "no JSON object found")
	assert.True(t, strings.HasPrefix(out.Records[0].String(), "Observation: AI reasoning failed with error: "))
	assert.Equal(t, []time.Duration{3 * time.Second}, h.sleep.all())
}

func TestLoop_OracleErrorBecomesObservation(t *testing.T) {
	script := oracle.NewScript(oracle.Step{Error: "quota exceeded"}, oracle.Step{Reply: finishDone})
	h := newLoop(t, script, testAgentConfig())

	out, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "oracle script: quota exceeded", out.Records[0].Observation)

	// The failure is visible to the oracle on the next turn.
	assert.Contains(t, script.Requests()[1].History[1], "AI reasoning failed with error: oracle script: quota exceeded")
}

func TestLoop_Cooldowns(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  time.Duration
	}{
		{"success", listWindows, 2 * time.Second},
		{"unknown action", `{"action": "fly_to_the_moon"}`, 2 * time.Second},
		{"action error", clickStrike, 3 * time.Second},
		{"success mentioning Error", `{"action": "open_url", "args": {"url": "Error-Reports.example.com"}}`, 2 * time.Second},
		{"missing argument", `{"action": "press_key", "args": {"window_title": "Editor"}}`, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLoop(t, oracle.Replies(tt.reply, finishDone), testAgentConfig())
			out, err := h.loop.Run(t.Context(), "Try one thing.")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, out.Status)
			assert.Equal(t, []time.Duration{tt.want}, h.sleep.all())
		})
	}
}

func TestLoop_OracleTimeout(t *testing.T) {
	cfg := testAgentConfig()
	cfg.OracleTimeout = 20 * time.Millisecond
	calls := 0
	o := oracle.Func(func(ctx context.Context, _ oracle.DecisionRequest) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return finishDone, nil
	})
	h := newLoop(t, o, cfg)

	out, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Records, 2)
	assert.Equal(t, RecordOracleFailure, out.Records[0].Kind)
	assert.Equal(t, context.DeadlineExceeded.Error(), out.Records[0].Observation)
}

func TestLoop_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	o := oracle.Func(func(ctx context.Context, _ oracle.DecisionRequest) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	h := newLoop(t, o, testAgentConfig())

	out, err := h.loop.Run(ctx, testObjective)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.True(t, strings.HasPrefix(out.Summary, "Task cancelled"))
	assert.Empty(t, out.Records)
	assert.False(t, out.FinishedAt.IsZero())
}

func TestLoop_CancelledDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	o := oracle.Replies(listWindows, finishDone)
	sl := &sleepLog{}
	h := newLoop(t, o, testAgentConfig(), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sl.sleep(ctx, d)
	}))

	out, err := h.loop.Run(ctx, testObjective)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Len(t, out.Records, 1)
}

func TestLoop_NoCooldownAfterLastStep(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxSteps = 1
	h := newLoop(t, oracle.Replies(clickStrike), cfg)

	out, err := h.loop.Run(t.Context(), "Try once.")
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, out.Status)
	assert.Empty(t, h.sleep.all())
}

func TestLoop_RunsDoNotShareGrids(t *testing.T) {
	const (
		capture = `{"action": "capture_grid", "args": {"window_title": "WhatsApp"}}`
		click   = `{"action": "click_cell", "args": {"window_title": "WhatsApp", "cell": "A1"}}`
	)
	cfg := testAgentConfig()
	cfg.Variant = config.VariantVision
	h := newLoop(t, oracle.Replies(capture, finishDone, click, finishDone), cfg)

	first, err := h.loop.Run(t.Context(), "Capture the chat window.")
	require.NoError(t, err)
	assert.Contains(t, first.Records[0].Observation, "Grid for window 'Chats - WhatsApp'")

	second, err := h.loop.Run(t.Context(), "Click the first cell.")
	require.NoError(t, err)
	assert.Contains(t, second.Records[0].Observation, "use CAPTURE_GRID first")
	assert.Empty(t, h.desk.Window("WhatsApp").PointerClicks())
}

func TestLoop_RejectsEmptyObjective(t *testing.T) {
	h := newLoop(t, oracle.Replies(finishDone), testAgentConfig())
	out, err := h.loop.Run(t.Context(), "   ")
	assert.Nil(t, out)
	var argErr *desktop.InvalidArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "objective", argErr.Arg)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) StartRun(ctx context.Context, out *Outcome) error {
	return m.Called(ctx, out).Error(0)
}

func (m *mockRecorder) AppendRecord(ctx context.Context, rec ActionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockRecorder) FinishRun(ctx context.Context, out *Outcome) error {
	return m.Called(ctx, out).Error(0)
}

func TestLoop_RecordsRun(t *testing.T) {
	rec := new(mockRecorder)
	rec.On("StartRun", mock.Anything, mock.AnythingOfType("*agent.Outcome")).Return(nil).Once()
	rec.On("AppendRecord", mock.Anything, mock.MatchedBy(func(r ActionRecord) bool {
		return r.Action == "search_and_open_app" && r.StepIndex == 0
	})).Return(nil).Once()
	rec.On("AppendRecord", mock.Anything, mock.MatchedBy(func(r ActionRecord) bool {
		return r.Action == "finish" && r.StepIndex == 1
	})).Return(nil).Once()
	rec.On("FinishRun", mock.Anything, mock.MatchedBy(func(o *Outcome) bool {
		return o.Status == StatusCompleted && o.Steps == 2
	})).Return(nil).Once()

	h := newLoop(t, oracle.Replies(openNotepad, finishDone), testAgentConfig(), WithRecorder(rec))
	_, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)
	rec.AssertExpectations(t)
}

func TestLoop_RecorderFailuresDoNotStopRun(t *testing.T) {
	rec := new(mockRecorder)
	boom := errors.New("database unavailable")
	rec.On("StartRun", mock.Anything, mock.Anything).Return(boom)
	rec.On("AppendRecord", mock.Anything, mock.Anything).Return(boom)
	rec.On("FinishRun", mock.Anything, mock.Anything).Return(boom)

	h := newLoop(t, oracle.Replies(openNotepad, finishDone), testAgentConfig(), WithRecorder(rec))
	out, err := h.loop.Run(t.Context(), testObjective)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	rec.AssertNumberOfCalls(t, "AppendRecord", 2)
}

