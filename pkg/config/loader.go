package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileNames are the configuration files looked up in the workspace root, in order.
var FileNames = []string{"sous.yaml", "sous.yml", "sous.cue"}

// Find returns the configuration file in dir, or "" when there is none.
func Find(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads the configuration of the workspace in dir. An explicit path wins over
// the lookup; without either, defaults are returned.
func Load(dir, path string) (*Config, error) {
	if path == "" {
		path = Find(dir)
	}
	cfg := DefaultConfig()
	cfg.Dir = dir
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(path, data, cfg)
	case ".cue":
		err = decodeCUE(path, data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	cfg.Source = path
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML decodes onto the defaults already in cfg. Unknown fields are errors.
func decodeYAML(path string, data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			errs := make([]ValidationError, len(typeErr.Errors))
			for i, msg := range typeErr.Errors {
				errs[i] = ValidationError{File: path, Message: msg}
			}
			return &LoadError{File: path, Errors: errs}
		}
		return &LoadError{File: path, Errors: []ValidationError{{File: path, Message: err.Error()}}}
	}
	return nil
}

// decodeCUE unifies the file with the schema and decodes the concrete result.
func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return err
	}

	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return &LoadError{File: path, Errors: convertCUEErrors(err)}
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &LoadError{File: path, Errors: convertCUEErrors(err)}
	}

	if err := unified.Decode(cfg); err != nil {
		return &LoadError{File: path, Errors: convertCUEErrors(err)}
	}
	return nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		v := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		// Prefer a position in the user's file over one in the schema.
		for i, pos := range cueerrors.Positions(e) {
			if i > 0 && pos.Filename() == schemaFile {
				continue
			}
			v.File = pos.Filename()
			v.Line = pos.Line()
			v.Column = pos.Column()
			if pos.Filename() != schemaFile {
				break
			}
		}
		out = append(out, v)
	}
	return out
}

var validate = validator.New()

// Validate checks struct constraints, the name convention pattern and the
// telemetry settings.
func Validate(cfg *Config) error {
	var errs []ValidationError

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				File:    cfg.Source,
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on %q", fe.Tag()),
			})
		}
	}

	if cfg.NameConvention != "" {
		if _, err := regexp.Compile(cfg.NameConvention); err != nil {
			errs = append(errs, ValidationError{File: cfg.Source, Path: "nameConvention", Message: err.Error()})
		}
	}

	if err := cfg.Telemetry("").Validate(); err != nil {
		errs = append(errs, ValidationError{File: cfg.Source, Message: err.Error()})
	}

	if len(errs) > 0 {
		return &LoadError{File: cfg.Source, Errors: errs}
	}
	return nil
}
