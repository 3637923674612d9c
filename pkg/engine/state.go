package engine

import (
	"sort"
	"sync"
)

type modifierIntent struct {
	pkg     *PackageEntry
	feature string
	fn      ManifestModifier
}

// CollectedState buffers the intents of one run. Each mutation asserts the stage it
// is allowed in, so nothing is appended after a later phase started reading.
type CollectedState struct {
	mu sync.RWMutex

	stage            Stage
	files            *FileStore
	dependencies     []DependencyRequest
	resolutions      map[string]string
	resolutionOwners map[string]string
	modifiers        []modifierIntent
	publishModifiers []modifierIntent
	tasks            []Task
}

// NewCollectedState creates a fresh state for a workspace.
func NewCollectedState(ws *Workspace) *CollectedState {
	return &CollectedState{
		stage:            StageFresh,
		files:            NewFileStore(ws),
		resolutions:      make(map[string]string),
		resolutionOwners: make(map[string]string),
	}
}

// Stage returns the current stage.
func (s *CollectedState) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Files returns the File Store.
func (s *CollectedState) Files() *FileStore {
	return s.files
}

// Advance moves to the next stage. Stages cannot be skipped or revisited.
func (s *CollectedState) Advance(to Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to != s.stage+1 {
		return NewStageError("engine", "advance to "+to.String(), s.stage)
	}
	s.stage = to
	return nil
}

// assert must be called with mu held.
func (s *CollectedState) assert(feature, operation string, allowed ...Stage) error {
	for _, st := range allowed {
		if s.stage == st {
			return nil
		}
	}
	return NewStageError(feature, operation, s.stage)
}

func (s *CollectedState) mutateFile(feature, operation, path string, attrs Attributes, fn func(f *ManagedFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.assert(feature, operation, StageFresh); err != nil {
		return err
	}

	rel, err := cleanRelPath(path)
	if err != nil {
		return NewConfigurationError("invalid file path", err).
			WithFeature(feature).
			WithOperation(operation).
			WithPath(path)
	}

	f := s.files.ensure(rel)
	f.claim(feature, attrs)
	if fn == nil {
		return nil
	}
	return fn(f)
}

func (s *CollectedState) addDependency(feature string, req DependencyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.assert(feature, "add dependency", StageFresh); err != nil {
		return err
	}
	req.Feature = feature
	s.dependencies = append(s.dependencies, req)
	return nil
}

func (s *CollectedState) addResolution(feature, name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.assert(feature, "add resolution", StageFresh); err != nil {
		return err
	}
	if prev, ok := s.resolutions[name]; ok && prev != version {
		return NewConfigurationError("conflicting resolutions", nil).
			WithCode(ErrCodeValidation).
			WithFeature(feature).
			WithDetail("name", name).
			WithDetail("version", version).
			WithDetail("declared_by", s.resolutionOwners[name]).
			WithDetail("declared_version", prev)
	}
	s.resolutions[name] = version
	s.resolutionOwners[name] = feature
	return nil
}

func (s *CollectedState) addModifier(feature string, pkg *PackageEntry, fn ManifestModifier, publish bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "modify manifest"
	if publish {
		op = "modify publish manifest"
	}
	if err := s.assert(feature, op, StageFresh, StageRecipesDefined); err != nil {
		return err
	}
	intent := modifierIntent{pkg: pkg, feature: feature, fn: fn}
	if publish {
		s.publishModifiers = append(s.publishModifiers, intent)
	} else {
		s.modifiers = append(s.modifiers, intent)
	}
	return nil
}

func (s *CollectedState) addTask(feature string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.assert(feature, "add task", StageFresh); err != nil {
		return err
	}
	task.Feature = feature
	s.tasks = append(s.tasks, task.clone())
	return nil
}

// View returns the read-only view of the state.
func (s *CollectedState) View() *StateView {
	return &StateView{state: s}
}

// StateView observes a CollectedState. Everything it returns is a copy.
type StateView struct {
	state *CollectedState
}

// Stage returns the stage of the underlying state.
func (v *StateView) Stage() Stage {
	return v.state.Stage()
}

// Files returns snapshots of the managed files accepted by filter, sorted by path.
// A nil filter accepts every file.
func (v *StateView) Files(filter func(FileInfo) bool) []FileInfo {
	files := v.state.files.Files()

	v.state.mu.RLock()
	defer v.state.mu.RUnlock()

	var out []FileInfo
	for _, f := range files {
		if !f.Managed() {
			continue
		}
		info := f.info()
		if filter == nil || filter(info) {
			out = append(out, info)
		}
	}
	return out
}

// File returns the snapshot of one managed file.
func (v *StateView) File(path string) (FileInfo, bool) {
	rel, err := cleanRelPath(path)
	if err != nil {
		return FileInfo{}, false
	}
	f := v.state.files.Get(rel)
	if f == nil {
		return FileInfo{}, false
	}

	v.state.mu.RLock()
	defer v.state.mu.RUnlock()
	if !f.Managed() {
		return FileInfo{}, false
	}
	return f.info(), true
}

// Tasks returns every declared task in declaration order.
func (v *StateView) Tasks() []Task {
	v.state.mu.RLock()
	defer v.state.mu.RUnlock()
	out := make([]Task, len(v.state.tasks))
	for i, t := range v.state.tasks {
		out[i] = t.clone()
	}
	return out
}

// Dependencies returns every dependency request in declaration order.
func (v *StateView) Dependencies() []DependencyRequest {
	v.state.mu.RLock()
	defer v.state.mu.RUnlock()
	return append([]DependencyRequest(nil), v.state.dependencies...)
}

// Resolutions returns the resolutions map.
func (v *StateView) Resolutions() map[string]string {
	v.state.mu.RLock()
	defer v.state.mu.RUnlock()
	out := make(map[string]string, len(v.state.resolutions))
	for k, val := range v.state.resolutions {
		out[k] = val
	}
	return out
}

// TaskNames returns the distinct task names, sorted.
func (v *StateView) TaskNames() []string {
	seen := map[string]bool{}
	for _, t := range v.Tasks() {
		seen[t.Name] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
