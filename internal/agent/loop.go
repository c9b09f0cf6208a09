// Package agent runs the plan-act-observe loop: it asks an oracle for the next
// toolkit action, dispatches it against the desktop and feeds the observation
// back through an append-only history until the oracle finishes or the step
// budget runs out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
	"go.uber.org/zap"
)

// Loop drives one objective at a time. A Loop holds no per-run state, so one
// value may run several objectives concurrently.
type Loop struct {
	oracle   oracle.Oracle
	toolkit  *Toolkit
	cfg      config.AgentConfig
	recorder Recorder
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option customizes a Loop.
type Option func(*Loop)

// WithRecorder persists every run through r.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithSleep replaces the cooldown timer.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) { l.sleep = sleep }
}

// NewLoop creates a Loop.
func NewLoop(o oracle.Oracle, tk *Toolkit, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		oracle:   o,
		toolkit:  tk,
		cfg:      cfg,
		recorder: NopRecorder{},
		log:      logger.Named("agent"),
		sleep:    desktop.Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run pursues objective until the oracle finishes or the step budget is
// spent. Failures inside the run become observations; an error is returned
// only for an empty objective or when ctx ends, together with the partial
// outcome.
func (l *Loop) Run(ctx context.Context, objective string) (*Outcome, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, &desktop.InvalidArgumentError{Arg: "objective", Reason: "must not be empty"}
	}

	out := &Outcome{
		RunID:     uuid.New(),
		Objective: objective,
		Variant:   string(l.cfg.Variant),
		StartedAt: l.now(),
	}
	log := l.log.With(zap.String("run_id", out.RunID.String()))
	if err := l.recorder.StartRun(context.WithoutCancel(ctx), out); err != nil {
		log.Warn("Failed to record run start.", zap.Error(err))
	}

	budget := l.cfg.StepBudget()
	log.Info("Starting run.", zap.String("objective", objective), zap.Int("budget", budget))
	ctx = WithRunState(ctx)

	for step := 0; step < budget; step++ {
		if err := ctx.Err(); err != nil {
			return l.cancel(ctx, out, err)
		}
		stepLog := log.With(zap.Int("step", step+1))
		stepLog.Debug("State transition.", zap.String("state", string(StatePlanning)))

		d, err := l.decide(ctx, out)
		if err != nil {
			if ctx.Err() != nil {
				return l.cancel(ctx, out, ctx.Err())
			}
			stepLog.Warn("Could not get a decision from the oracle.", zap.Error(err))
			l.append(ctx, out, ActionRecord{Kind: RecordOracleFailure, Observation: err.Error()})
			if err := l.cooldown(ctx, step, budget, l.cfg.OracleFailureCooldown); err != nil {
				return l.cancel(ctx, out, err)
			}
			continue
		}

		stepLog.Debug("State transition.", zap.String("state", string(StateDispatching)), zap.String("action", d.Action))
		res := l.toolkit.Dispatch(ctx, d)

		stepLog.Debug("State transition.", zap.String("state", string(StateObserving)))
		l.append(ctx, out, ActionRecord{Kind: RecordAction, Action: d.Action, Args: d.Args, Observation: res.Observation})
		stepLog.Info("Action observed.", zap.String("action", strings.ToUpper(d.Action)), zap.String("observation", res.Observation))

		if res.Terminal {
			stepLog.Debug("State transition.", zap.String("state", string(StateTerminated)))
			return l.finish(ctx, out, StatusCompleted, res.Observation), nil
		}

		cooldown := l.cfg.SuccessCooldown
		if res.Failed {
			cooldown = l.cfg.ErrorCooldown
		}
		if err := l.cooldown(ctx, step, budget, cooldown); err != nil {
			return l.cancel(ctx, out, err)
		}
	}

	log.Debug("State transition.", zap.String("state", string(StateFailed)))
	return l.finish(ctx, out, StatusExhausted, budgetExceeded), nil
}

// cooldown lets the UI settle before the next step. No step follows the last
// one, so there is nothing to wait for.
func (l *Loop) cooldown(ctx context.Context, step, budget int, d time.Duration) error {
	if step+1 >= budget {
		return ctx.Err()
	}
	return l.sleep(ctx, d)
}

// decide asks the oracle for one decision, bounded by the oracle timeout.
func (l *Loop) decide(ctx context.Context, out *Outcome) (Decision, error) {
	if l.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.OracleTimeout)
		defer cancel()
	}

	raw, err := l.oracle.Decide(ctx, oracle.DecisionRequest{
		Objective: out.Objective,
		History:   out.History(),
		Toolkit:   l.toolkit.Spec(),
		Rules:     l.toolkit.Rules(),
	})
	if err != nil {
		return Decision{}, err
	}
	return ParseDecision(raw)
}

func (l *Loop) append(ctx context.Context, out *Outcome, rec ActionRecord) {
	rec.ID = uuid.New()
	rec.RunID = out.RunID
	rec.StepIndex = len(out.Records)
	rec.Timestamp = l.now()
	out.Records = append(out.Records, rec)
	out.Steps = len(out.Records)

	if err := l.recorder.AppendRecord(context.WithoutCancel(ctx), rec); err != nil {
		l.log.Warn("Failed to record action.", zap.String("run_id", out.RunID.String()), zap.Error(err))
	}
}

func (l *Loop) finish(ctx context.Context, out *Outcome, status Status, summary string) *Outcome {
	out.Status = status
	out.Summary = summary
	out.FinishedAt = l.now()
	if err := l.recorder.FinishRun(context.WithoutCancel(ctx), out); err != nil {
		l.log.Warn("Failed to record run result.", zap.String("run_id", out.RunID.String()), zap.Error(err))
	}
	l.log.Info("Run finished.",
		zap.String("run_id", out.RunID.String()),
		zap.String("status", string(status)),
		zap.Int("steps", out.Steps),
	)
	return out
}

func (l *Loop) cancel(ctx context.Context, out *Outcome, err error) (*Outcome, error) {
	return l.finish(ctx, out, StatusCancelled, fmt.Sprintf("Task cancelled: %v", err)), err
}
