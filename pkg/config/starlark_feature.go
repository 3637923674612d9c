package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/sous/pkg/engine"
)

// DefaultScriptTimeout bounds a single call into a script.
const DefaultScriptTimeout = 30 * time.Second

// script is an executed Starlark feature file.
type script struct {
	path    string
	name    string
	timeout time.Duration
	logger  zerolog.Logger
	globals starlark.StringDict
}

// LoadScriptFeature executes a Starlark feature file and builds the feature its
// globals describe:
//
//	name = "license"                       # required
//	after = ["typescript"]                 # optional
//	root_only = True                       # optional
//	peer_context = {"year": 2024}          # optional initial peer context
//	reducers = {"global": fn}              # optional, fn(current, peers) -> value
//	def recipe(ctx): ...                   # optional
//	def garnish(ctx): ...                  # optional
func LoadScriptFeature(path string, logger zerolog.Logger) (engine.Feature, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return engine.Feature{}, fmt.Errorf("failed to read script: %w", err)
	}
	return LoadScriptSource(path, string(src), logger)
}

// LoadScriptSource is LoadScriptFeature for in-memory source.
func LoadScriptSource(filename, src string, logger zerolog.Logger) (engine.Feature, error) {
	s := &script{
		path:    filename,
		timeout: DefaultScriptTimeout,
		logger:  logger.With().Str("component", "script").Str("script", filepath.Base(filename)).Logger(),
	}

	thread := s.thread("load")
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	globals, err := starlark.ExecFile(thread, filename, src, predeclared)
	if err != nil {
		return engine.Feature{}, fmt.Errorf("starlark execution failed: %w", err)
	}
	s.globals = globals

	name, ok := starlark.AsString(globals["name"])
	if !ok || name == "" {
		return engine.Feature{}, fmt.Errorf("%s: script must set a non-empty name", filename)
	}
	s.name = name
	s.logger = s.logger.With().Str("feature", name).Logger()

	f := engine.Feature{Name: name}

	if v, ok := globals["after"]; ok {
		after, err := stringList(v)
		if err != nil {
			return engine.Feature{}, fmt.Errorf("%s: after: %w", filename, err)
		}
		f.After = after
	}

	if v, ok := globals["root_only"]; ok {
		f.Scope.RootOnly = bool(v.Truth())
	}

	if v, ok := globals["peer_context"]; ok {
		initial, err := fromStarlarkValue(v)
		if err != nil {
			return engine.Feature{}, fmt.Errorf("%s: peer_context: %w", filename, err)
		}
		f.InitialPeerContext = func() any { return initial }
	}

	if v, ok := globals["reducers"]; ok {
		reducers, err := s.reducers(v)
		if err != nil {
			return engine.Feature{}, err
		}
		f.ModifyPeerContexts = func() map[string]engine.Reducer { return reducers }
	}

	if fn, err := s.callable("recipe"); err != nil {
		return engine.Feature{}, err
	} else if fn != nil {
		f.DefineRecipe = func(ctx context.Context, r *engine.Recipe) error {
			_, err := s.call(ctx, "recipe", fn, s.recipeContext(r))
			return err
		}
	}

	if fn, err := s.callable("garnish"); err != nil {
		return engine.Feature{}, err
	} else if fn != nil {
		f.DefineGarnish = func(ctx context.Context, r *engine.Recipe) error {
			_, err := s.call(ctx, "garnish", fn, s.recipeContext(r))
			return err
		}
	}

	return f, nil
}

func (s *script) thread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: s.name + "." + name,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Msg(msg)
		},
	}
}

func (s *script) callable(name string) (starlark.Callable, error) {
	v, ok := s.globals[name]
	if !ok {
		return nil, nil
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a function, got %s", s.path, name, v.Type())
	}
	return fn, nil
}

// call runs fn on a fresh thread, cancelled when ctx ends or the timeout elapses.
func (s *script) call(ctx context.Context, name string, fn starlark.Callable, args ...starlark.Value) (starlark.Value, error) {
	thread := s.thread(name)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-callCtx.Done():
			thread.Cancel(callCtx.Err().Error())
		case <-done:
		}
	}()

	v, err := starlark.Call(thread, fn, starlark.Tuple(args), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", s.path, name, err)
	}
	return v, nil
}

func (s *script) reducers(v starlark.Value) (map[string]engine.Reducer, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: reducers must be a dict, got %s", s.path, v.Type())
	}
	out := make(map[string]engine.Reducer, dict.Len())
	for _, item := range dict.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%s: reducer keys must be strings", s.path)
		}
		fn, ok := item[1].(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("%s: reducer %s must be a function", s.path, key)
		}
		out[key] = func(current any, peers engine.PeerContext) (any, error) {
			cur, err := toStarlarkValue(current)
			if err != nil {
				return nil, err
			}
			snapshot := make(map[string]interface{}, len(peers))
			for k, p := range peers {
				snapshot[k] = p
			}
			all, err := toStarlarkValue(snapshot)
			if err != nil {
				return nil, err
			}
			res, err := s.call(context.Background(), "reducer "+key, fn, cur, all)
			if err != nil {
				return nil, err
			}
			return fromStarlarkValue(res)
		}
	}
	return out, nil
}

// recipeContext builds the ctx struct passed to recipe and garnish.
func (s *script) recipeContext(r *engine.Recipe) starlark.Value {
	b := &recipeBuiltins{s: s, r: r}
	members := starlark.StringDict{
		"feature":          starlark.String(r.Feature()),
		"packages":         starlark.NewBuiltin("packages", b.packages),
		"peer":             starlark.NewBuiltin("peer", b.peer),
		"global_context":   starlark.NewBuiltin("global_context", b.global),
		"files":            starlark.NewBuiltin("files", b.files),
		"tasks":            starlark.NewBuiltin("tasks", b.tasks),
		"dependencies":     starlark.NewBuiltin("dependencies", b.dependencies),
		"generate_file":    starlark.NewBuiltin("generate_file", b.generateFile),
		"modify_file":      starlark.NewBuiltin("modify_file", b.modifyFile),
		"edit_file":        starlark.NewBuiltin("edit_file", b.editFile),
		"ignore_file":      starlark.NewBuiltin("ignore_file", b.ignoreFile),
		"symlink":          starlark.NewBuiltin("symlink", b.symlink),
		"add_dependency":   starlark.NewBuiltin("add_dependency", b.addDependency),
		"add_resolution":   starlark.NewBuiltin("add_resolution", b.addResolution),
		"add_task":         starlark.NewBuiltin("add_task", b.addTask),
		"set_manifest":     starlark.NewBuiltin("set_manifest", b.setManifest),
		"publish_manifest": starlark.NewBuiltin("publish_manifest", b.publishManifest),
	}
	return starlarkstruct.FromStringDict(starlark.String("ctx"), members)
}

type recipeBuiltins struct {
	s *script
	r *engine.Recipe
}

// pkg resolves a package argument. None means the workspace root.
func (b *recipeBuiltins) pkg(v starlark.Value) (*engine.PackageEntry, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	ref, ok := starlark.AsString(v)
	if !ok {
		return nil, fmt.Errorf("package must be a string, got %s", v.Type())
	}
	if root := b.r.Root(); root != nil && (root.Name == ref || root.Paths.Rel == ref) {
		return root, nil
	}
	for _, p := range b.r.Packages() {
		if p.Name == ref || p.Paths.Rel == ref {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown package %q", ref)
}

type fileFlags struct {
	alwaysOverwrite, ignoreVCS, ignorePublish, neverCache, executable bool
}

func (f fileFlags) attributes() engine.Attributes {
	return engine.Attributes{
		AlwaysOverwrite: f.alwaysOverwrite,
		IgnoreVCS:       f.ignoreVCS,
		IgnorePublish:   f.ignorePublish,
		NeverCache:      f.neverCache,
		Executable:      f.executable,
	}
}

func (f *fileFlags) pairs() []interface{} {
	return []interface{}{
		"always_overwrite?", &f.alwaysOverwrite,
		"ignore_vcs?", &f.ignoreVCS,
		"ignore_publish?", &f.ignorePublish,
		"never_cache?", &f.neverCache,
		"executable?", &f.executable,
	}
}

func (b *recipeBuiltins) packages(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	var list []starlark.Value
	for _, p := range b.r.Packages() {
		list = append(list, starlarkstruct.FromStringDict(starlark.String("package"), starlark.StringDict{
			"name": starlark.String(p.Name),
			"rel":  starlark.String(p.Paths.Rel),
			"root": starlark.Bool(p.Kind == engine.PackageKindWorkspace),
		}))
	}
	return starlark.NewList(list), nil
}

func (b *recipeBuiltins) peer(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	v, ok := b.r.Peer(name)
	if !ok {
		return starlark.None, nil
	}
	return toStarlarkValue(v)
}

func (b *recipeBuiltins) global(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return toStarlarkValue(b.r.Global())
}

func (b *recipeBuiltins) files(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return viaJSON(b.r.View().Files(nil))
}

func (b *recipeBuiltins) tasks(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return viaJSON(b.r.View().Tasks())
}

func (b *recipeBuiltins) dependencies(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return viaJSON(b.r.View().Dependencies())
}

func (b *recipeBuiltins) generateFile(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path    string
		content starlark.Value
		pkgArg  starlark.Value = starlark.None
		flags   fileFlags
	)
	pairs := append([]interface{}{"path", &path, "content", &content, "package?", &pkgArg}, flags.pairs()...)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
		return nil, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, err
	}

	spec := engine.FileSpec{Attributes: flags.attributes()}
	if producer, ok := content.(starlark.Callable); ok {
		spec.Producer = func(ctx context.Context, _ any) (any, error) {
			v, err := b.s.call(ctx, "content of "+path, producer)
			if err != nil {
				return nil, err
			}
			return contentValue(v)
		}
	} else {
		v, err := contentValue(content)
		if err != nil {
			return nil, err
		}
		spec.Content = v
	}
	return starlark.None, b.r.GenerateFile(pkg, path, spec)
}

// layer unpacks the shared arguments of modify_file and edit_file.
func (b *recipeBuiltins) layer(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*engine.PackageEntry, string, engine.Layer, error) {
	var (
		path      string
		modifier  starlark.Callable
		pkgArg    starlark.Value = starlark.None
		canCreate bool
		flags     fileFlags
	)
	pairs := append([]interface{}{"path", &path, "fn", &modifier, "package?", &pkgArg, "can_create?", &canCreate}, flags.pairs()...)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
		return nil, "", engine.Layer{}, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, "", engine.Layer{}, err
	}
	layer := engine.Layer{
		CanCreate:  canCreate,
		Attributes: flags.attributes(),
		Fn: func(ctx context.Context, current any) (any, error) {
			cur, err := toStarlarkValue(current)
			if err != nil {
				return nil, err
			}
			v, err := b.s.call(ctx, fn.Name()+" "+path, modifier, cur)
			if err != nil {
				return nil, err
			}
			return contentValue(v)
		},
	}
	return pkg, path, layer, nil
}

func (b *recipeBuiltins) modifyFile(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pkg, path, layer, err := b.layer(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.r.ModifyGeneratedFile(pkg, path, layer)
}

func (b *recipeBuiltins) editFile(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pkg, path, layer, err := b.layer(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.r.EditFile(pkg, path, layer)
}

func (b *recipeBuiltins) ignoreFile(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path   string
		pkgArg starlark.Value = starlark.None
		flags  fileFlags
	)
	pairs := append([]interface{}{"path", &path, "package?", &pkgArg}, flags.pairs()...)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
		return nil, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.r.IgnoreFile(pkg, path, flags.attributes())
}

func (b *recipeBuiltins) symlink(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path, target string
		pkgArg       starlark.Value = starlark.None
		flags        fileFlags
	)
	pairs := append([]interface{}{"path", &path, "target", &target, "package?", &pkgArg}, flags.pairs()...)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
		return nil, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.r.Symlink(pkg, path, target, flags.attributes())
}

func (b *recipeBuiltins) addDependency(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		req          engine.DependencyRequest
		managed      string
		pkgArg       starlark.Value = starlark.None
		skipIfExists bool
	)
	list := string(engine.DevDependencies)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &req.Name,
		"list?", &list,
		"version?", &req.Version,
		"tag?", &req.Tag,
		"alias?", &req.InstallAsAlias,
		"managed?", &managed,
		"skip_if_exists?", &skipIfExists,
		"package?", &pkgArg,
	); err != nil {
		return nil, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, err
	}
	req.List = engine.DependencyList(list)
	req.Managed = engine.ManagedMode(managed)
	req.SkipIfExists = skipIfExists
	return starlark.None, b.r.AddDependency(pkg, req)
}

func (b *recipeBuiltins) addResolution(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, version string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "version", &version); err != nil {
		return nil, err
	}
	return starlark.None, b.r.AddResolution(name, version)
}

func (b *recipeBuiltins) addTask(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		task      engine.Task
		pkgArg    starlark.Value = starlark.None
		dependsOn *starlark.List
		inputs    *starlark.List
		outputs   *starlark.List
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &task.Name,
		"command", &task.Command,
		"depends_on?", &dependsOn,
		"inputs?", &inputs,
		"outputs?", &outputs,
		"cache?", &task.Cache,
		"package?", &pkgArg,
	); err != nil {
		return nil, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, err
	}
	for dst, src := range map[*[]string]*starlark.List{&task.DependsOn: dependsOn, &task.Inputs: inputs, &task.Outputs: outputs} {
		if src == nil {
			continue
		}
		if *dst, err = stringList(src); err != nil {
			return nil, err
		}
	}
	return starlark.None, b.r.AddTask(pkg, task)
}

func (b *recipeBuiltins) setManifest(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pkg, modifier, err := b.manifestModifier(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.r.ModifyManifest(pkg, modifier)
}

func (b *recipeBuiltins) publishManifest(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pkg, modifier, err := b.manifestModifier(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.None, b.r.ModifyPublishManifest(pkg, modifier)
}

// manifestModifier sets key to value, or deletes it when value is None.
func (b *recipeBuiltins) manifestModifier(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*engine.PackageEntry, engine.ManifestModifier, error) {
	var (
		key    string
		value  starlark.Value
		pkgArg starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "key", &key, "value", &value, "package?", &pkgArg); err != nil {
		return nil, nil, err
	}
	pkg, err := b.pkg(pkgArg)
	if err != nil {
		return nil, nil, err
	}
	v, err := fromStarlarkValue(value)
	if err != nil {
		return nil, nil, err
	}
	return pkg, func(ctx context.Context, m *engine.Manifest) error {
		if v == nil {
			m.Delete(key)
			return nil
		}
		m.Set(key, v)
		return nil
	}, nil
}

// contentValue converts script content for a codec. A list of strings becomes
// []string so the text codec writes it as lines.
func contentValue(v starlark.Value) (any, error) {
	out, err := fromStarlarkValue(v)
	if err != nil {
		return nil, err
	}
	list, ok := out.([]interface{})
	if !ok {
		return out, nil
	}
	lines := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return out, nil
		}
		lines = append(lines, s)
	}
	return lines, nil
}

func stringList(v starlark.Value) ([]string, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %s", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []string
	var x starlark.Value
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", x.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

// viaJSON converts engine values through their JSON form so scripts see the same
// field names policies do.
func viaJSON(v any) (starlark.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported type %T: %w", v, err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return toStarlarkValue(generic)
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		if val == float64(int64(val)) {
			return starlark.MakeInt64(int64(val)), nil
		}
		return starlark.Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]string:
		dict := starlark.NewDict(len(val))
		for k, s := range val {
			if err := dict.SetKey(starlark.String(k), starlark.String(s)); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			starlarkVal, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		// Go values of other features are seen through their JSON form.
		return viaJSON(v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromIterable(val, val.Len())
	case starlark.Tuple:
		return fromIterable(val, val.Len())
	case *starlark.Dict:
		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromIterable(it starlark.Indexable, n int) ([]interface{}, error) {
	list := make([]interface{}, n)
	for i := 0; i < n; i++ {
		item, err := fromStarlarkValue(it.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}
