package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs several objectives over one Loop with bounded concurrency.
// The loop's toolkit lock keeps UI access serialized while oracle calls
// overlap.
type Supervisor struct {
	loop        *Loop
	concurrency int
	log         *zap.Logger
}

// NewSupervisor creates a Supervisor. Concurrency below one is treated as one.
func NewSupervisor(loop *Loop, concurrency int, logger *zap.Logger) *Supervisor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Supervisor{loop: loop, concurrency: concurrency, log: logger.Named("supervisor")}
}

// RunAll returns one outcome per objective, in input order. It stops at the
// first cancellation and returns the outcomes gathered so far; objectives that
// never started have a nil outcome.
func (s *Supervisor) RunAll(ctx context.Context, objectives []string) ([]*Outcome, error) {
	for i, o := range objectives {
		if strings.TrimSpace(o) == "" {
			return nil, fmt.Errorf("objective %d is empty", i+1)
		}
	}

	outcomes := make([]*Outcome, len(objectives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	s.log.Info("Starting batch.", zap.Int("objectives", len(objectives)), zap.Int("concurrency", s.concurrency))
	for i, objective := range objectives {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := s.loop.Run(gctx, objective)
			outcomes[i] = out
			return err
		})
	}

	err := g.Wait()
	return outcomes, err
}
