package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/sous/pkg/engine"
)

// DefaultRecordTimeout bounds persisting one run.
const DefaultRecordTimeout = 10 * time.Second

// Recorder implements engine.Reporter. It buffers the events of a run and writes
// them with the run when the summary arrives. Persisting never fails the run; errors
// are logged.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	keep   int

	mu     sync.Mutex
	events []*Event
}

var _ engine.Reporter = (*Recorder)(nil)

// NewRecorder creates a recorder. When keep is positive older runs are pruned after
// each recorded run.
func NewRecorder(store Store, keep int, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		keep:   keep,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

func (r *Recorder) add(kind EventKind, subject, operation, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &Event{
		Seq:       len(r.events),
		Kind:      kind,
		Subject:   subject,
		Operation: operation,
		CreatedAt: time.Now(),
	}
	if detail != "" {
		e.Detail = &detail
	}
	r.events = append(r.events, e)
}

// PhaseStart implements engine.Reporter.
func (r *Recorder) PhaseStart(string) {}

// PhaseEnd implements engine.Reporter.
func (r *Recorder) PhaseEnd(phase string, err error) {
	if err != nil {
		r.add(EventKindPhase, phase, "error", err.Error())
		return
	}
	r.add(EventKindPhase, phase, "ok", "")
}

// FeatureStart implements engine.Reporter.
func (r *Recorder) FeatureStart(string) {}

// FeatureEnd implements engine.Reporter.
func (r *Recorder) FeatureEnd(feature string, stats engine.FeatureStats) {
	data, _ := json.Marshal(stats)
	r.add(EventKindFeature, feature, "collected", string(data))
}

// FileOperation implements engine.Reporter.
func (r *Recorder) FileOperation(op engine.FileOperation) {
	detail := op.Error
	if detail == "" && len(op.Features) > 0 {
		detail = strings.Join(op.Features, ",")
	}
	r.add(EventKindFile, op.Path, string(op.Op), detail)
}

// DependencyOperation implements engine.Reporter.
func (r *Recorder) DependencyOperation(op engine.DependencyOperation) {
	detail := op.Error
	if detail == "" && (op.From != "" || op.To != "") {
		detail = fmt.Sprintf("%s -> %s", op.From, op.To)
	}
	r.add(EventKindDependency, op.Package+":"+op.Name, string(op.Op), detail)
}

// Summary implements engine.Reporter and persists the run.
func (r *Recorder) Summary(s *engine.Summary) {
	if s == nil {
		return
	}
	r.mu.Lock()
	events := r.events
	r.events = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRecordTimeout)
	defer cancel()

	if err := r.Record(ctx, s, events); err != nil {
		r.logger.Error().Err(err).Str("run_id", s.RunID).Msg("Failed to record run history")
	}
}

// Record persists a summary with its events and prunes old runs.
func (r *Recorder) Record(ctx context.Context, s *engine.Summary, events []*Event) error {
	run, err := RunFromSummary(s)
	if err != nil {
		return err
	}
	if err := r.store.RecordRun(ctx, run, events); err != nil {
		return err
	}
	r.logger.Debug().
		Str("run_id", run.ID).
		Int("events", len(events)).
		Msg("Run recorded")

	if r.keep > 0 {
		pruned, err := r.store.PruneRuns(ctx, r.keep)
		if err != nil {
			return err
		}
		if pruned > 0 {
			r.logger.Debug().Int64("pruned", pruned).Msg("Old runs pruned")
		}
	}
	return nil
}

// RunFromSummary converts a summary into a run row.
func RunFromSummary(s *engine.Summary) (*Run, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	finished := s.FinishedAt
	run := &Run{
		ID:          s.RunID,
		StartedAt:   s.StartedAt,
		FinishedAt:  &finished,
		Status:      RunStatusClean,
		Dirty:       s.Dirty,
		SummaryJSON: string(data),
	}
	switch {
	case len(s.Errors) > 0:
		run.Status = RunStatusFailed
		msg := strings.Join(s.Errors, "; ")
		run.Error = &msg
	case s.Dirty:
		run.Status = RunStatusDirty
	}
	return run, nil
}

// Summary decodes the stored summary of a run.
func (r *Run) Summary() (*engine.Summary, error) {
	var s engine.Summary
	if err := json.Unmarshal([]byte(r.SummaryJSON), &s); err != nil {
		return nil, fmt.Errorf("failed to decode summary of run %s: %w", r.ID, err)
	}
	return &s, nil
}
