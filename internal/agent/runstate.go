package agent

import (
	"context"
	"sync"

	"github.com/xkilldash9x/deskpilot/internal/desktop"
)

// runState is what one run remembers between toolkit calls. It travels in
// the run's context so loops sharing a toolkit never see each other's state.
type runState struct {
	mu    sync.Mutex
	grids map[string]desktop.Grid // last captured grid per window title
}

type runStateKey struct{}

// WithRunState returns a context carrying fresh per-run toolkit state. Loop.Run
// calls it for every run; callers dispatching decisions directly use it to
// scope a sequence of calls.
func WithRunState(ctx context.Context) context.Context {
	return context.WithValue(ctx, runStateKey{}, &runState{grids: make(map[string]desktop.Grid)})
}

func runStateFrom(ctx context.Context) (*runState, bool) {
	s, ok := ctx.Value(runStateKey{}).(*runState)
	return s, ok
}

func (s *runState) grid(title string) (desktop.Grid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grids[title]
	return g, ok
}

func (s *runState) setGrid(title string, g desktop.Grid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[title] = g
}
