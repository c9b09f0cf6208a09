package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// session holds the components a single command invocation drives.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	platform desktop.Platform
	env      *agent.Env
	loop     *agent.Loop
	cleanups []func()
}

// openDesktop creates the platform and the tool environment over it.
func openDesktop(ctx context.Context, d *deps, cfg *config.Config, logger *zap.Logger) (*session, error) {
	s := &session{cfg: cfg, logger: logger}

	platform, cleanup, err := d.platforms.Create(ctx, cfg.Desktop(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize desktop: %w", err)
	}
	s.platform = platform
	s.addCleanup(cleanup)

	s.env, err = agent.NewEnv(platform, cfg.Desktop(), cfg.Redaction(), logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}
	return s, nil
}

// openAgent extends openDesktop with the oracle, the optional run store and
// the loop.
func openAgent(ctx context.Context, d *deps, cfg *config.Config, logger *zap.Logger) (*session, error) {
	s, err := openDesktop(ctx, d, cfg, logger)
	if err != nil {
		return nil, err
	}

	o, err := d.oracles(ctx, cfg.Oracle(), logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}

	opts := []agent.Option{}
	if cfg.Store().Enabled {
		st, cleanup, err := d.stores.Create(ctx, cfg.Store(), logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		s.addCleanup(cleanup)
		opts = append(opts, agent.WithRecorder(st))
	}

	agentCfg := cfg.Agent()
	toolkit := s.env.Toolkit(agentCfg.Variant, nil, logger)
	s.loop = agent.NewLoop(o, toolkit, agentCfg, logger, opts...)
	return s, nil
}

func (s *session) addCleanup(f func()) {
	if f != nil {
		s.cleanups = append(s.cleanups, f)
	}
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}

// printOutcome writes a one-line summary of out.
func printOutcome(w io.Writer, out *agent.Outcome) {
	fmt.Fprintf(w, "[%s] %s after %d step(s): %s\n", out.Status, out.Objective, out.Steps, out.Summary)
}

func writeTranscript(path string, outcomes ...*agent.Outcome) error {
	var doc any = outcomes
	if len(outcomes) == 1 {
		doc = outcomes[0]
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

func readTranscript(path string) (*agent.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	var out agent.Outcome
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}
	if out.Objective == "" {
		return nil, fmt.Errorf("transcript %s has no objective", path)
	}
	return &out, nil
}
