package engine

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxParallel caps in-flight file reconciles.
const DefaultMaxParallel = 16

// FileStore owns every managed file of a run, keyed by workspace-relative path.
type FileStore struct {
	mu        sync.Mutex
	workspace *Workspace
	files     map[string]*ManagedFile
	cacheErr  error
}

// NewFileStore creates an empty store for a workspace.
func NewFileStore(ws *Workspace) *FileStore {
	return &FileStore{
		workspace: ws,
		files:     make(map[string]*ManagedFile),
	}
}

// Get returns the managed file at rel, or nil.
func (s *FileStore) Get(rel string) *ManagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[rel]
}

// Files returns every file sorted by path, including cached files nobody claimed.
func (s *FileStore) Files() []*ManagedFile {
	s.mu.Lock()
	out := make([]*ManagedFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	s.mu.Unlock()
	sortFiles(out)
	return out
}

// ensure returns the file at rel, creating it under its longest-prefix owner.
func (s *FileStore) ensure(rel string) *ManagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[rel]; ok {
		return f
	}
	pkg := "."
	if s.workspace != nil {
		if owner := s.workspace.owner(rel); owner != nil {
			pkg = owner.Paths.Rel
		}
	}
	f := newManagedFile(rel, pkg)
	s.files[rel] = f
	return f
}

// LoadCache seeds last-applied records from the persisted cache. The first record seen
// for a path wins. A cache error means the cache was ignored; it is never fatal.
func (s *FileStore) LoadCache(fsys FS, logger zerolog.Logger) error {
	records, err := readCache(fsys, s.cachePath())
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring unusable cache")
		s.cacheErr = err
		return err
	}

	for i := range records {
		rec := records[i]
		rel, err := cleanRelPath(rec.Path)
		if err != nil {
			logger.Warn().Str("path", rec.Path).Msg("Skipping cache entry outside the workspace")
			continue
		}
		rec.Path = rel
		f := s.ensure(rel)
		if f.lastApplied == nil {
			f.lastApplied = &rec
		}
	}
	logger.Debug().Int("entries", len(records)).Msg("Loaded cache")
	return nil
}

func (s *FileStore) cachePath() string {
	root := "."
	if s.workspace != nil {
		root = s.workspace.Dir
	}
	return filepath.Join(root, filepath.FromSlash(CacheFile))
}

// ApplyOptions configures a File Store apply.
type ApplyOptions struct {
	FS                   FS
	Interactive          bool
	ThrowOnManualChanges bool
	Prompter             Prompter
	MaxParallel          int
	Logger               zerolog.Logger
	Reporter             Reporter
}

// ApplyResult is the outcome of a File Store apply.
type ApplyResult struct {
	Operations  []FileOperation
	NeedsReview []string
	Errors      []error
	Dirty       bool
}

type fileOutcome struct {
	file *ManagedFile
	op   FileOperation
	err  error
}

// Apply reconciles every file concurrently, then resolves conflicts one at a time,
// then rewrites the cache. With ThrowOnManualChanges the first conflict aborts the
// apply before any prompt or cache write.
func (s *FileStore) Apply(ctx context.Context, opts ApplyOptions) (*ApplyResult, error) {
	if opts.FS == nil {
		opts.FS = OSFS{}
	}
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	workers := opts.MaxParallel
	if workers <= 0 {
		workers = DefaultMaxParallel
	}

	root := "."
	if s.workspace != nil {
		root = s.workspace.Dir
	}
	r := &reconciler{fs: opts.FS, root: root, logger: opts.Logger}

	files := s.Files()
	result := &ApplyResult{}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan *ManagedFile)
	outcomes := make(chan fileOutcome, len(files))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range work {
				op, err := f.reconcile(runCtx, r)
				if opts.ThrowOnManualChanges && f.status == FileStatusNeedsUserInput {
					cancel()
				}
				outcomes <- fileOutcome{file: f, op: op, err: err}
			}
		}()
	}

feed:
	for _, f := range files {
		select {
		case work <- f:
		case <-runCtx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	close(outcomes)

	done := make([]fileOutcome, 0, len(files))
	for o := range outcomes {
		done = append(done, o)
	}
	sort.Slice(done, func(i, j int) bool { return done[i].file.Path < done[j].file.Path })

	var pending []*ManagedFile
	for _, o := range done {
		if o.err != nil {
			result.Errors = append(result.Errors, o.err)
			result.Dirty = true
		}
		if o.file.status == FileStatusNeedsUserInput {
			pending = append(pending, o.file)
			continue
		}
		result.Operations = append(result.Operations, o.op)
		opts.Reporter.FileOperation(o.op)
	}

	if opts.ThrowOnManualChanges && len(pending) > 0 {
		paths := make([]string, len(pending))
		for i, f := range pending {
			paths[i] = f.Path
			op := f.op(FileOpConflict)
			result.Operations = append(result.Operations, op)
			opts.Reporter.FileOperation(op)
		}
		result.NeedsReview = paths
		result.Dirty = true
		return result, NewConflictError("files were changed outside of sous", nil).
			WithCode(ErrCodeManualChanges).
			WithDetail("paths", paths)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	for _, f := range pending {
		op := s.resolve(ctx, f, opts, result)
		result.Operations = append(result.Operations, op)
		opts.Reporter.FileOperation(op)
	}

	var records []CacheRecord
	for _, f := range files {
		if rec := f.cacheRecord(); rec != nil {
			records = append(records, *rec)
		}
	}
	if err := writeCache(opts.FS, s.cachePath(), records); err != nil {
		result.Errors = append(result.Errors, NewPermanentError("failed to persist cache", err))
		result.Dirty = true
	}

	return result, nil
}

// resolve drains the deferred reconcile of one conflicting file.
func (s *FileStore) resolve(ctx context.Context, f *ManagedFile, opts ApplyOptions, result *ApplyResult) FileOperation {
	review := func() FileOperation {
		result.NeedsReview = append(result.NeedsReview, f.Path)
		result.Dirty = true
		return f.op(FileOpConflict)
	}

	if !opts.Interactive || opts.Prompter == nil {
		opts.Logger.Warn().Str("path", f.Path).Msg("File was edited by hand, leaving it untouched")
		return review()
	}

	ok, err := opts.Prompter.Confirm(ctx, f.Path, f.diff)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return review()
	}
	if !ok {
		opts.Logger.Info().Str("path", f.Path).Msg("Overwrite declined")
		return review()
	}

	op, err := f.deferred(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		result.Dirty = true
		out := f.op(FileOpError)
		out.Error = err.Error()
		return out
	}
	return f.op(op)
}
