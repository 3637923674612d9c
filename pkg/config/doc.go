// Package config loads the sous workspace configuration and the Starlark
// features it names.
//
// # Configuration Files
//
// The first of sous.yaml, sous.yml and sous.cue found in the workspace root is
// read. YAML is decoded with unknown fields rejected. CUE files are unified with a
// closed #Config schema first, so a typo or an out of range value is reported with
// its file position:
//
//	features: ["gitignore", "task-scripts"]
//	scripts: ["tools/sous/*.star"]
//	policies: ["tools/policies"]
//	rangePrefix: "~"
//	nameConvention: "^@acme/"
//	maxParallel: 8
//	global: {license: "MIT"}
//	history: {enabled: true, path: ".sous/history.db"}
//	logging: {level: "debug", format: "json"}
//
// Every loaded configuration is then checked with validator struct tags and the
// telemetry rules. Problems are collected into a single *LoadError.
//
// # Scripted Features
//
// LoadScriptFeature executes a .star file and turns its globals into an
// engine.Feature. The recipe and garnish functions receive a ctx struct whose
// builtins map onto engine.Recipe:
//
//	name = "license"
//	after = ["gitignore"]
//
//	def recipe(ctx):
//	    ctx.generate_file("LICENSE", ["MIT License", "", "Copyright " + ctx.global_context()["owner"]])
//	    ctx.add_dependency("prettier", version = "^3.0.0")
//	    ctx.set_manifest("license", "MIT")
//
// Content functions passed to generate_file, modify_file and edit_file run
// lazily while files are reconciled, each on its own thread with a timeout.
//
// # Watching
//
// Watcher reports settled changes of the configuration file, the script files
// and the policy directories. sous watch re-runs the engine on each change.
package config
