package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/openfroyo/sous/pkg/config"
	"github.com/openfroyo/sous/pkg/engine"
	"github.com/openfroyo/sous/pkg/features"
	"github.com/openfroyo/sous/pkg/policy"
	"github.com/openfroyo/sous/pkg/registry"
	"github.com/openfroyo/sous/pkg/reporter"
	"github.com/openfroyo/sous/pkg/stores"
	"github.com/openfroyo/sous/pkg/telemetry"
	"github.com/openfroyo/sous/pkg/workspace"
)

// shutdownGrace is added to the span export timeout when telemetry shuts down.
const shutdownGrace = 5 * time.Second

// session is the process-wide state of one command: configuration, telemetry and
// the registry client shared by every run the command performs.
type session struct {
	flags    *globalFlags
	version  string
	dir      string
	cfg      *config.Config
	tel      *telemetry.Telemetry
	log      *telemetry.Logger
	logger   zerolog.Logger
	registry *registry.Client
}

// applyOptions are the conflict handling flags of apply and watch.
type applyOptions struct {
	interactive          bool
	throwOnManualChanges bool
}

func openSession(flags *globalFlags, version string) (*session, error) {
	dir, err := filepath.Abs(flags.cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	cfg, err := config.Load(dir, flags.configPath)
	if err != nil {
		return nil, err
	}

	telCfg := cfg.Telemetry(version)
	if flags.logFormat != "" {
		telCfg.Logging.Format = flags.logFormat
	}
	if flags.verbose {
		telCfg.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	log := tel.Logger.WithWorkspace(dir)
	logger := log.Zerolog()

	return &session{
		flags:   flags,
		version: version,
		dir:     dir,
		cfg:     cfg,
		tel:     tel,
		log:     log,
		logger:  logger,
		registry: registry.NewClient(registry.Options{
			BaseURL: cfg.Registry,
			Token:   os.Getenv("NPM_TOKEN"),
			Logger:  logger,
		}),
	}, nil
}

// reload rereads the configuration file. Telemetry keeps its original settings.
func (s *session) reload() error {
	cfg, err := config.Load(s.dir, s.flags.configPath)
	if err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Tracing.ExportTimeout+shutdownGrace)
	defer cancel()
	if err := s.tel.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// load discovers the workspace and builds the features and the policy gate.
func (s *session) load(ctx context.Context) (*engine.Workspace, []engine.Feature, *policy.Engine, error) {
	ws, err := workspace.Discover(s.dir, s.logger)
	if err != nil {
		return nil, nil, nil, err
	}

	feats, err := features.Builtins().Build(s.cfg.Features)
	if err != nil {
		return nil, nil, nil, err
	}
	scripts, err := s.cfg.ScriptFiles()
	if err != nil {
		return nil, nil, nil, engine.NewConfigurationError("invalid scripts", err)
	}
	for _, path := range scripts {
		f, err := config.LoadScriptFeature(path, s.logger)
		if err != nil {
			return nil, nil, nil, err
		}
		feats = append(feats, f)
	}

	gate, err := policy.NewEngine(s.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if paths := s.cfg.PolicyPaths(); len(paths) > 0 {
		if err := gate.LoadPolicies(ctx, paths); err != nil {
			return nil, nil, nil, engine.NewConfigurationError("invalid policies", err)
		}
	}

	s.logger.Debug().
		Int("packages", len(ws.Packages)).
		Int("features", len(feats)).
		Int("scripts", len(scripts)).
		Msg("Workspace loaded")
	return ws, feats, gate, nil
}

// newEngine fills the configuration-derived options.
func (s *session) newEngine(opts engine.Options) *engine.Engine {
	opts.RangePrefix = s.cfg.RangePrefix
	opts.MaxParallel = s.cfg.MaxParallel
	opts.NameConvention = s.cfg.NameConvention
	if s.cfg.Global != nil {
		opts.GlobalContext = s.cfg.Global
	}
	opts.Logger = s.logger
	opts.Registry = s.registry
	return engine.New(opts)
}

func (s *session) console(out io.Writer) *reporter.Console {
	return reporter.NewConsole(out, reporter.ConsoleOptions{
		JSON:    s.flags.jsonOutput,
		Verbose: s.flags.verbose,
		NoColor: color.NoColor,
	})
}

// openHistory opens the run history, or returns nil when it is disabled.
func (s *session) openHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	if !s.cfg.History.Enabled {
		return nil, nil
	}
	store, err := stores.Open(ctx, s.cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// apply performs one converging run.
func (s *session) apply(ctx context.Context, in io.Reader, out io.Writer, opts applyOptions) (*engine.Summary, error) {
	ctx, span := s.tel.Tracer.StartCommandSpan(ctx, "apply", s.dir)
	defer span.End()

	summary, err := s.applyTraced(ctx, in, out, opts)
	telemetry.RecordError(span, err)
	return summary, err
}

func (s *session) applyTraced(ctx context.Context, in io.Reader, out io.Writer, opts applyOptions) (*engine.Summary, error) {
	ws, feats, gate, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	reporters := []engine.Reporter{s.console(out), s.tel.Reporter()}
	history, err := s.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	if history != nil {
		defer history.Close()
		reporters = append(reporters, stores.NewRecorder(history, s.cfg.History.Keep, s.logger))
	}

	var prompter engine.Prompter
	if opts.interactive {
		prompter = reporter.NewTerminalPrompter(in, out, color.NoColor)
	}

	s.registry.Reset()
	e := s.newEngine(engine.Options{
		Interactive:          opts.interactive,
		ThrowOnManualChanges: opts.throwOnManualChanges || s.cfg.ThrowOnManualChanges,
		Prompter:             prompter,
		Reporter:             reporter.NewMulti(reporters...),
		Gate:                 gate,
	})

	summary, err := e.Run(ctx, ws, feats)
	if flushErr := s.tel.Flush(); flushErr != nil {
		s.logger.Warn().Err(flushErr).Msg("Failed to write metrics textfile")
	}
	return summary, err
}

// defaultInteractive is true when stdin is a terminal outside CI.
func defaultInteractive() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
