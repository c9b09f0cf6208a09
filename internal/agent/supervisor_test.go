package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// gauge tracks the peak number of concurrent oracle calls.
type gauge struct {
	mu       sync.Mutex
	inflight int
	peak     int
}

func (g *gauge) oracle() oracle.Oracle {
	return oracle.Func(func(ctx context.Context, req oracle.DecisionRequest) (string, error) {
		g.mu.Lock()
		g.inflight++
		if g.inflight > g.peak {
			g.peak = g.inflight
		}
		g.mu.Unlock()

		defer func() {
			g.mu.Lock()
			g.inflight--
			g.mu.Unlock()
		}()

		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return fmt.Sprintf(`{"action": "finish", "reason": "finished %s"}`, req.Objective), nil
	})
}

func TestSupervisor_RunAllKeepsOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := &gauge{}
	h := newLoop(t, g.oracle(), testAgentConfig())
	sup := NewSupervisor(h.loop, 2, zaptest.NewLogger(t))

	objectives := []string{"first", "second", "third", "fourth", "fifth"}
	outcomes, err := sup.RunAll(t.Context(), objectives)
	require.NoError(t, err)
	require.Len(t, outcomes, len(objectives))

	for i, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, objectives[i], out.Objective)
		assert.Equal(t, StatusCompleted, out.Status)
		assert.Equal(t, "finished "+objectives[i], out.Summary)
	}
	assert.LessOrEqual(t, g.peak, 2)
	assert.GreaterOrEqual(t, g.peak, 1)
}

func TestSupervisor_ConcurrencyFloor(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := &gauge{}
	h := newLoop(t, g.oracle(), testAgentConfig())
	sup := NewSupervisor(h.loop, 0, zaptest.NewLogger(t))

	outcomes, err := sup.RunAll(t.Context(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
	assert.Equal(t, 1, g.peak)
}

func TestSupervisor_RejectsEmptyObjective(t *testing.T) {
	h := newLoop(t, oracle.Replies(finishDone), testAgentConfig())
	sup := NewSupervisor(h.loop, 2, zaptest.NewLogger(t))

	outcomes, err := sup.RunAll(t.Context(), []string{"fine", " "})
	require.EqualError(t, err, "objective 2 is empty")
	assert.Nil(t, outcomes)
}

func TestSupervisor_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	h := newLoop(t, oracle.Replies(finishDone), testAgentConfig())
	sup := NewSupervisor(h.loop, 2, zaptest.NewLogger(t))

	outcomes, err := sup.RunAll(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		if out != nil {
			assert.Equal(t, StatusCancelled, out.Status)
		}
	}
}
