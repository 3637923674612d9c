package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRangePrefix is prepended to versions resolved from dist-tags.
const DefaultRangePrefix = "^"

// Run phases reported to the Reporter.
const (
	PhaseValidate  = "validate"
	PhaseContext   = "context"
	PhaseRecipes   = "recipes"
	PhaseGarnish   = "garnish"
	PhasePolicy    = "policy"
	PhaseFiles     = "files"
	PhaseManifests = "manifests"
)

// Options configures an Engine.
type Options struct {
	// Interactive resolves conflicts with the Prompter instead of leaving the run dirty.
	Interactive bool

	// ThrowOnManualChanges aborts the run on the first conflict.
	ThrowOnManualChanges bool

	// RangePrefix is prepended to tag-resolved versions. Defaults to "^".
	RangePrefix string

	// MaxParallel caps concurrent file reconciles.
	MaxParallel int

	// NameConvention is a regular expression package names are expected to match.
	NameConvention string

	// GlobalContext is the initial value of the global peer context.
	GlobalContext any

	Logger   zerolog.Logger
	FS       FS
	Registry Registry
	Prompter Prompter
	Reporter Reporter
	Gate     Gate
}

// Engine drives features to convergence. One Engine may run many times; every run
// gets its own CollectedState.
type Engine struct {
	opts     Options
	logger   zerolog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.FS == nil {
		opts.FS = OSFS{}
	}
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	if opts.RangePrefix == "" {
		opts.RangePrefix = DefaultRangePrefix
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	return &Engine{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "engine").Logger(),
		validate: validator.New(),
		tracer:   otel.Tracer("github.com/openfroyo/sous/pkg/engine"),
	}
}

// Plan is the sealed intent of a run that wrote nothing.
type Plan struct {
	RunID    string
	State    *StateView
	Peers    PeerContext
	Features map[string]FeatureStats
}

// run is the per-run bookkeeping shared by the phases.
type run struct {
	id       string
	logger   zerolog.Logger
	state    *CollectedState
	peers    PeerContext
	features map[string]FeatureStats
}

// Plan runs validation, recipes, garnish and the gate without touching the disk.
func (e *Engine) Plan(ctx context.Context, ws *Workspace, features []Feature) (*Plan, error) {
	ctx, span := e.tracer.Start(ctx, "sous.plan")
	defer span.End()

	r, err := e.collect(ctx, ws, features)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &Plan{RunID: r.id, State: r.state.View(), Peers: r.peers, Features: r.features}, nil
}

// Run converges the workspace. Configuration errors abort before any I/O and return
// no summary. Every other outcome returns a summary; the error joins what went wrong.
func (e *Engine) Run(ctx context.Context, ws *Workspace, features []Feature) (*Summary, error) {
	ctx, span := e.tracer.Start(ctx, "sous.run")
	defer span.End()

	started := time.Now()
	r, err := e.collect(ctx, ws, features)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsConfiguration(err) || r == nil {
			return nil, err
		}
		summary := e.newSummary(r, started)
		summary.Errors = []string{err.Error()}
		summary.Dirty = true
		return e.finish(summary), err
	}

	summary := e.newSummary(r, started)
	span.SetAttributes(attribute.String("sous.run_id", r.id))

	touched := map[string]bool{}
	var errs []error

	applied, err := e.applyFiles(ctx, r, summary, touched)
	if applied != nil {
		errs = append(errs, applied.Errors...)
	}
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		e.fillPackages(summary, touched)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return e.finish(summary), err
	}

	errs = append(errs, e.converge(ctx, ws, r, summary, touched)...)

	for _, err := range errs {
		summary.Errors = append(summary.Errors, err.Error())
	}
	if len(errs) > 0 {
		summary.Dirty = true
	}
	e.fillPackages(summary, touched)

	joined := errors.Join(errs...)
	if joined != nil {
		span.RecordError(joined)
		span.SetStatus(codes.Error, joined.Error())
	}
	return e.finish(summary), joined
}

func (e *Engine) newSummary(r *run, started time.Time) *Summary {
	return &Summary{
		RunID:     r.id,
		StartedAt: started,
		Features:  r.features,
	}
}

func (e *Engine) finish(s *Summary) *Summary {
	s.FinishedAt = time.Now()
	sort.Strings(s.NeedsReview)
	e.opts.Reporter.Summary(s)
	e.logger.Info().
		Str("run_id", s.RunID).
		Int("files_changed", s.FilesChanged).
		Int("dependencies_changed", s.DependenciesChanged).
		Int("dependencies_removed", s.DependenciesRemoved).
		Bool("dirty", s.Dirty).
		Dur("duration", s.Duration()).
		Msg("Run finished")
	return s
}

func (e *Engine) fillPackages(s *Summary, touched map[string]bool) {
	s.PackagesTouched = s.PackagesTouched[:0]
	for rel := range touched {
		s.PackagesTouched = append(s.PackagesTouched, rel)
	}
	sort.Strings(s.PackagesTouched)
}

// phase wraps one run phase in a span and reporter events.
func (e *Engine) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "sous."+name)
	defer span.End()

	e.opts.Reporter.PhaseStart(name)
	err := fn(ctx)
	e.opts.Reporter.PhaseEnd(name, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// collect runs every phase that only builds intent. A nil run means nothing started.
func (e *Engine) collect(ctx context.Context, ws *Workspace, features []Feature) (*run, error) {
	r := &run{
		id:       uuid.New().String(),
		features: make(map[string]FeatureStats, len(features)),
	}
	r.logger = e.logger.With().Str("run_id", r.id).Logger()

	if err := e.phase(ctx, PhaseValidate, func(context.Context) error {
		return e.validateRun(ws, features, r.logger)
	}); err != nil {
		return nil, err
	}

	if err := e.phase(ctx, PhaseContext, func(context.Context) error {
		peers, err := MergePeerContexts(features, e.opts.GlobalContext)
		if err != nil {
			if IsConfiguration(err) {
				return err
			}
			return NewConfigurationError("failed to merge peer contexts", err)
		}
		r.peers = peers
		return nil
	}); err != nil {
		return nil, err
	}

	r.state = NewCollectedState(ws)
	if err := r.state.files.LoadCache(e.opts.FS, r.logger); err != nil {
		r.logger.Debug().Err(err).Msg("Starting from an empty cache")
	}

	if err := e.phase(ctx, PhaseRecipes, func(ctx context.Context) error {
		return e.runFeatures(ctx, ws, features, r, false)
	}); err != nil {
		return r, err
	}
	if err := r.state.Advance(StageRecipesDefined); err != nil {
		return r, err
	}

	if err := e.phase(ctx, PhaseGarnish, func(ctx context.Context) error {
		return e.runFeatures(ctx, ws, features, r, true)
	}); err != nil {
		return r, err
	}
	if err := r.state.Advance(StageGarnishDefined); err != nil {
		return r, err
	}

	for _, p := range ws.Packages {
		p.mu.Lock()
		p.publishModifiers = nil
		p.mu.Unlock()
	}
	for _, m := range r.state.publishModifiers {
		m.pkg.AddPublishModifier(m.feature, m.fn)
	}

	if e.opts.Gate != nil {
		if err := e.phase(ctx, PhasePolicy, func(ctx context.Context) error {
			if err := e.opts.Gate.Check(ctx, r.state.View()); err != nil {
				if IsConfiguration(err) {
					return err
				}
				return NewConfigurationError("policy check failed", err).WithCode(ErrCodePolicyDenied)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// validateRun rejects invalid feature sets. It performs no I/O.
func (e *Engine) validateRun(ws *Workspace, features []Feature, logger zerolog.Logger) error {
	if ws == nil || ws.Root() == nil {
		return NewConfigurationError("workspace has no root package", nil).WithCode(ErrCodeValidation)
	}

	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if f.Name == "" {
			return NewConfigurationError("feature has no name", nil).WithCode(ErrCodeValidation)
		}
		if f.Name == GlobalContextKey {
			return NewConfigurationError("feature name is reserved", nil).
				WithCode(ErrCodeReservedName).
				WithFeature(f.Name)
		}
		if seen[f.Name] {
			return NewConfigurationError("duplicate feature name", nil).
				WithCode(ErrCodeDuplicateFeature).
				WithFeature(f.Name)
		}
		seen[f.Name] = true
	}

	if err := newFeatureGraph(features, logger).validate(); err != nil {
		return err
	}

	if e.opts.NameConvention != "" {
		re, err := regexp.Compile(e.opts.NameConvention)
		if err != nil {
			return NewConfigurationError("malformed nameConvention", err).
				WithCode(ErrCodeNameConvention).
				WithDetail("pattern", e.opts.NameConvention)
		}
		for _, p := range ws.Packages {
			if p.Kind == PackageKindPackage && !re.MatchString(p.Name) {
				logger.Warn().
					Str("package", p.Name).
					Str("convention", e.opts.NameConvention).
					Msg("Package name does not follow the naming convention")
			}
		}
	}
	return nil
}

// runFeatures runs every recipe, or every garnish pass, in declaration order.
func (e *Engine) runFeatures(ctx context.Context, ws *Workspace, features []Feature, r *run, garnish bool) error {
	for _, f := range features {
		fn := f.DefineRecipe
		if garnish {
			fn = f.DefineGarnish
		}
		if fn == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var packages []*PackageEntry
		for _, p := range ws.Packages {
			if f.Scope.matches(p) {
				packages = append(packages, p)
			}
		}

		stats := &FeatureStats{}
		recipe := &Recipe{
			feature:   f.Name,
			state:     r.state,
			workspace: ws,
			packages:  packages,
			peers:     r.peers,
			stats:     stats,
			validate:  e.validate,
			logger:    r.logger.With().Str("feature", f.Name).Logger(),
		}

		e.opts.Reporter.FeatureStart(f.Name)
		err := fn(ctx, recipe)
		total := r.features[f.Name]
		total.add(*stats)
		r.features[f.Name] = total
		e.opts.Reporter.FeatureEnd(f.Name, *stats)

		if err != nil {
			var ee *EngineError
			if errors.As(err, &ee) {
				if ee.Feature == "" {
					ee.Feature = f.Name
				}
				return err
			}
			stage := "recipe"
			if garnish {
				stage = "garnish"
			}
			return NewConfigurationError(fmt.Sprintf("%s failed", stage), err).WithFeature(f.Name)
		}
	}
	return nil
}

// applyFiles hands the sealed state to the File Store.
func (e *Engine) applyFiles(ctx context.Context, r *run, s *Summary, touched map[string]bool) (*ApplyResult, error) {
	var result *ApplyResult
	err := e.phase(ctx, PhaseFiles, func(ctx context.Context) error {
		var err error
		result, err = r.state.files.Apply(ctx, ApplyOptions{
			FS:                   e.opts.FS,
			Interactive:          e.opts.Interactive,
			ThrowOnManualChanges: e.opts.ThrowOnManualChanges,
			Prompter:             e.opts.Prompter,
			MaxParallel:          e.opts.MaxParallel,
			Logger:               r.logger,
			Reporter:             e.opts.Reporter,
		})
		return err
	})

	if result != nil {
		for _, op := range result.Operations {
			s.FilesEvaluated++
			switch op.Op {
			case FileOpCreate, FileOpUpdate, FileOpSymlink:
				s.FilesChanged++
				touched[op.Package] = true
			case FileOpDelete:
				s.FilesChanged++
				s.FilesDeleted++
				touched[op.Package] = true
			case FileOpSkip, FileOpConflict, FileOpError:
				s.FilesSkipped++
			}
		}
		s.NeedsReview = append(s.NeedsReview, result.NeedsReview...)
		if result.Dirty {
			s.Dirty = true
		}
	}
	if cerr := r.state.files.cacheErr; cerr != nil {
		s.CacheError = cerr.Error()
	}
	return result, err
}

// converge runs each package's modifier chain: dependencies first, then feature
// modifiers in submission order. Packages converge concurrently.
func (e *Engine) converge(ctx context.Context, ws *Workspace, r *run, s *Summary, touched map[string]bool) []error {
	var (
		mu   sync.Mutex
		errs []error
	)

	record := func(op DependencyOperation) {
		mu.Lock()
		defer mu.Unlock()
		switch op.Op {
		case DependencyOpRemove:
			s.DependenciesRemoved++
		case DependencyOpAdd, DependencyOpUpdate:
			s.DependenciesEvaluated++
			s.DependenciesChanged++
		default:
			s.DependenciesEvaluated++
		}
		e.opts.Reporter.DependencyOperation(op)
	}

	_ = e.phase(ctx, PhaseManifests, func(ctx context.Context) error {
		view := r.state.View()
		byPackage := map[string][]DependencyRequest{}
		for _, req := range view.Dependencies() {
			byPackage[req.Package] = append(byPackage[req.Package], req)
		}
		resolutions := view.Resolutions()

		for _, p := range ws.Packages {
			c := &dependencyConverger{
				pkg:         p,
				requests:    byPackage[p.Paths.Rel],
				registry:    e.opts.Registry,
				rangePrefix: e.opts.RangePrefix,
				record:      record,
			}
			if p.Kind == PackageKindWorkspace {
				c.resolutions = resolutions
			}
			p.AddModifier("dependencies", c.modifier())
		}
		for _, m := range r.state.modifiers {
			m.pkg.AddModifier(m.feature, m.fn)
		}

		var wg sync.WaitGroup
		for _, p := range ws.Packages {
			wg.Add(1)
			go func(p *PackageEntry) {
				defer wg.Done()
				changed, err := p.ApplyAndCommit(ctx, e.opts.FS)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					r.logger.Error().Err(err).Str("package", p.Paths.Rel).Msg("Package failed to converge")
					errs = append(errs, err)
					return
				}
				if changed {
					touched[p.Paths.Rel] = true
				}
			}(p)
		}
		wg.Wait()
		return errors.Join(errs...)
	})

	return errs
}
