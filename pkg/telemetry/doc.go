// Package telemetry provides logging, tracing and metrics for sous.
//
// Structured logging is zerolog, tracing is OpenTelemetry and metrics are Prometheus.
// Telemetry bundles the three for the CLI:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// The engine takes a zerolog.Logger. Component loggers carry a component field:
//
//	logger := tel.Logger.NewComponentLogger("engine").WithRunID(runID)
//	opts.Logger = logger.Zerolog()
//
// Log levels: trace, debug, info, warn, error
//
// # Tracing
//
// NewTracer installs the global tracer provider, so the engine's phase spans
// (sous.run, sous.recipes, sous.files and so on) are exported without the engine
// knowing about the exporter. Supported exporters: otlp, stdout, none.
//
// # Metrics
//
// MetricsReporter implements engine.Reporter and counts file and dependency operations,
// phase durations and run outcomes:
//
//	reporter := tel.Reporter()
//	opts.Reporter = reporter
//
// After a run the registry can be written as a node_exporter textfile
// (metrics.textfile) or served over HTTP while sous watch runs (metrics.listenAddress).
package telemetry
