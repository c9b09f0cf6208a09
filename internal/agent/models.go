package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is the loop's phase within one iteration.
type State string

const (
	StatePlanning    State = "PLANNING"    // asking the oracle for a decision
	StateDispatching State = "DISPATCHING" // running the chosen toolkit operation
	StateObserving   State = "OBSERVING"   // recording the observation
	StateTerminated  State = "TERMINATED"  // finish was dispatched
	StateFailed      State = "FAILED"      // budget exhausted or cancelled
)

// RecordKind distinguishes dispatched actions from failed planning steps.
type RecordKind string

const (
	RecordAction        RecordKind = "action"
	RecordOracleFailure RecordKind = "oracle_failure"
)

// ActionRecord is one entry of a run's append-only history.
type ActionRecord struct {
	ID        uuid.UUID      `json:"id" yaml:"id"`
	RunID     uuid.UUID      `json:"run_id" yaml:"run_id"`
	StepIndex int            `json:"step_index" yaml:"step_index"`
	Kind      RecordKind     `json:"kind" yaml:"kind"`
	Action    string         `json:"action,omitempty" yaml:"action,omitempty"`
	Args      map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	// Observation is the toolkit result, or the oracle error for failures.
	Observation string    `json:"observation" yaml:"observation"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// String renders the record as it appears in the oracle's history.
func (r ActionRecord) String() string {
	if r.Kind == RecordOracleFailure {
		return fmt.Sprintf("Observation: AI reasoning failed with error: %s\n", r.Observation)
	}
	return fmt.Sprintf("Action: %s with args %s. Result:\n---\n%s\n---\n",
		strings.ToUpper(r.Action), renderArgs(r.Args), r.Observation)
}

// renderArgs encodes args as JSON with sorted keys.
func renderArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// Decision is a parsed oracle reply.
type Decision struct {
	Action string
	Args   map[string]any
}

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed" // finish dispatched
	StatusExhausted Status = "exhausted" // step budget reached
	StatusCancelled Status = "cancelled"
)

// Outcome summarizes a finished run.
type Outcome struct {
	RunID     uuid.UUID      `yaml:"run_id"`
	Objective string         `yaml:"objective"`
	Variant   string         `yaml:"variant"`
	Status    Status         `yaml:"status"`
	Summary   string         `yaml:"summary"`
	Steps     int            `yaml:"steps"`
	Records   []ActionRecord `yaml:"records"`

	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at,omitempty"`
}

// History renders the records with the objective line first.
func (o *Outcome) History() []string {
	return history(o.Objective, o.Records)
}

func history(objective string, records []ActionRecord) []string {
	out := make([]string, 0, len(records)+1)
	out = append(out, objectiveLine(objective))
	for _, r := range records {
		out = append(out, r.String())
	}
	return out
}

func objectiveLine(objective string) string {
	return fmt.Sprintf("OBJECTIVE: %s\n", objective)
}

const (
	finishDefault  = "Objective complete."
	budgetExceeded = "Task failed: reached maximum number of steps."
)
