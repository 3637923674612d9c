package config

import (
	"fmt"

	"cuelang.org/go/cue"
)

const schemaFile = "schema.cue"

// configSchema closes the configuration: unknown fields and out of range values
// fail in the CUE file itself with a position.
const configSchema = `
#Logging: {
	level?:        "trace" | "debug" | "info" | "warn" | "error"
	format?:       "console" | "json"
	output?:       string
	enableCaller?: bool
	timeFormat?:   "unix" | "unixms" | "rfc3339"
}

#Tracing: {
	enabled?:       bool
	exporter?:      "otlp" | "stdout" | "none"
	endpoint?:      string
	samplingRate?:  number & >=0 & <=1
	exportTimeout?: int & >=0
	headers?: [string]: string
	insecure?: bool
}

#Metrics: {
	enabled?:       bool
	textfile?:      string
	listenAddress?: string
	path?:          =~"^/"
	namespace?:     =~"^[a-zA-Z_][a-zA-Z0-9_]*$"
	buckets?: [...number & >0]
}

#Config: {
	features?: [...string & !=""]
	scripts?: [...string & !=""]
	policies?: [...string & !=""]
	rangePrefix?:          "^" | "~"
	nameConvention?:       string
	registry?:             =~"^https?://"
	maxParallel?:          int & >=0 & <=256
	throwOnManualChanges?: bool
	global?: {...}
	history?: {
		enabled?: bool
		path?:    string
		keep?:    int & >=0
	}
	logging?: #Logging
	tracing?: #Tracing
	metrics?: #Metrics
}
`

// compileSchema compiles the #Config definition in ctx.
func compileSchema(ctx *cue.Context) (cue.Value, error) {
	val := ctx.CompileString(configSchema, cue.Filename(schemaFile))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile schema: %w", err)
	}
	def := val.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return cue.Value{}, fmt.Errorf("schema has no #Config definition")
	}
	return def, nil
}
