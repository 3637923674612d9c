package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/sous/pkg/formats"
)

// Attributes are flags features attach to a managed file. Declarations from several
// features are merged additively.
type Attributes struct {
	// AlwaysOverwrite writes the file even when it was edited by hand.
	AlwaysOverwrite bool `json:"alwaysOverwrite,omitempty"`

	// IgnoreVCS marks the file as excluded from version control.
	IgnoreVCS bool `json:"ignoreVCS,omitempty"`

	// IgnorePublish marks the file as excluded from published artifacts.
	IgnorePublish bool `json:"ignorePublish,omitempty"`

	// NeverCache keeps the file out of the persisted cache.
	NeverCache bool `json:"neverCache,omitempty"`

	// Executable writes the file with mode 0755.
	Executable bool `json:"executable,omitempty"`

	// Labels carry free-form values. On the same key the later feature wins.
	Labels map[string]string `json:"labels,omitempty"`
}

// Merge returns the union of a and o.
func (a Attributes) Merge(o Attributes) Attributes {
	out := a.clone()
	out.AlwaysOverwrite = a.AlwaysOverwrite || o.AlwaysOverwrite
	out.IgnoreVCS = a.IgnoreVCS || o.IgnoreVCS
	out.IgnorePublish = a.IgnorePublish || o.IgnorePublish
	out.NeverCache = a.NeverCache || o.NeverCache
	out.Executable = a.Executable || o.Executable
	for k, v := range o.Labels {
		if out.Labels == nil {
			out.Labels = map[string]string{}
		}
		out.Labels[k] = v
	}
	return out
}

func (a Attributes) clone() Attributes {
	out := a
	if a.Labels != nil {
		out.Labels = make(map[string]string, len(a.Labels))
		for k, v := range a.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// ContentFunc produces or transforms file content. current is nil for the first
// producer of a file.
type ContentFunc func(ctx context.Context, current any) (any, error)

type contentLayer struct {
	feature   string
	canCreate bool
	fn        ContentFunc
}

// ManagedFile is one workspace path under engine control.
type ManagedFile struct {
	// Path is the workspace-relative slash path.
	Path string

	// Package is the relative directory of the owning package.
	Package string

	attrs     Attributes
	features  []string
	codec     formats.Codec
	initial   *contentLayer
	generated []contentLayer
	editable  []contentLayer

	symlinkTarget  string
	symlinkFeature string

	status        FileStatus
	lastApplyKind ApplyKind
	lastApplied   *CacheRecord
	applied       *CacheRecord

	// deferred completes a needs-user-input reconcile once the user agreed.
	deferred func(ctx context.Context) (FileOp, error)
	diff     string
}

func newManagedFile(path, pkg string) *ManagedFile {
	return &ManagedFile{
		Path:    path,
		Package: pkg,
		codec:   formats.ForPath(path),
		status:  FileStatusPending,
	}
}

// Status returns the reconcile status.
func (f *ManagedFile) Status() FileStatus { return f.status }

// LastApplyKind returns what the last reconcile did.
func (f *ManagedFile) LastApplyKind() ApplyKind { return f.lastApplyKind }

// Attributes returns a copy of the merged attributes.
func (f *ManagedFile) Attributes() Attributes { return f.attrs.clone() }

// Features returns the names of the features managing the file.
func (f *ManagedFile) Features() []string { return append([]string(nil), f.features...) }

// Managed reports whether any feature claimed the file this run.
func (f *ManagedFile) Managed() bool { return len(f.features) > 0 }

func (f *ManagedFile) hasContent() bool {
	return f.initial != nil || len(f.generated) > 0 || len(f.editable) > 0
}

func (f *ManagedFile) claim(feature string, attrs Attributes) {
	found := false
	for _, name := range f.features {
		if name == feature {
			found = true
			break
		}
	}
	if !found {
		f.features = append(f.features, feature)
	}
	f.attrs = f.attrs.Merge(attrs)
}

func (f *ManagedFile) symlinkConflict(feature string) error {
	return NewConfigurationError("symlinked files cannot have content layers", nil).
		WithCode(ErrCodeSymlinkExclusive).
		WithFeature(feature).
		WithPath(f.Path).
		WithDetail("symlink_feature", f.symlinkFeature)
}

func (f *ManagedFile) setInitial(feature string, fn ContentFunc) error {
	if f.symlinkTarget != "" {
		return f.symlinkConflict(feature)
	}
	if f.initial != nil {
		return NewConfigurationError("initial content already declared", nil).
			WithCode(ErrCodeInitialContent).
			WithFeature(feature).
			WithPath(f.Path).
			WithDetail("declared_by", f.initial.feature)
	}
	f.initial = &contentLayer{feature: feature, canCreate: true, fn: fn}
	return nil
}

func (f *ManagedFile) addGenerated(feature string, canCreate bool, fn ContentFunc) error {
	if f.symlinkTarget != "" {
		return f.symlinkConflict(feature)
	}
	f.generated = append(f.generated, contentLayer{feature: feature, canCreate: canCreate, fn: fn})
	return nil
}

func (f *ManagedFile) addEditable(feature string, canCreate bool, fn ContentFunc) error {
	if f.symlinkTarget != "" {
		return f.symlinkConflict(feature)
	}
	f.editable = append(f.editable, contentLayer{feature: feature, canCreate: canCreate, fn: fn})
	return nil
}

func (f *ManagedFile) setSymlink(feature, target string) error {
	if f.hasContent() {
		return f.symlinkConflict(feature)
	}
	if f.symlinkTarget != "" && f.symlinkTarget != target {
		return NewConfigurationError("symlink target declared twice", nil).
			WithCode(ErrCodeSymlinkExclusive).
			WithFeature(feature).
			WithPath(f.Path).
			WithDetail("target", f.symlinkTarget).
			WithDetail("declared_by", f.symlinkFeature)
	}
	f.symlinkTarget = target
	f.symlinkFeature = feature
	return nil
}

// reduce folds the content layers. produced is false when no layer yielded content.
func (f *ManagedFile) reduce(ctx context.Context, current string, exists bool) (value any, produced bool, kind ApplyKind, err error) {
	run := func(l contentLayer) error {
		if !produced && !l.canCreate {
			return nil
		}
		v, err := l.fn(ctx, value)
		if err != nil {
			return NewPermanentError("content producer failed", err).
				WithCode(ErrCodeProducerFailed).
				WithFeature(l.feature).
				WithPath(f.Path)
		}
		value, produced = v, true
		return nil
	}

	if f.initial != nil {
		if err := run(*f.initial); err != nil {
			return nil, false, ApplyKindNone, err
		}
	}
	for _, l := range f.generated {
		if err := run(l); err != nil {
			return nil, false, ApplyKindNone, err
		}
	}

	kind = ApplyKindGenerated
	if !produced {
		kind = ApplyKindUserEditable
		if exists && len(f.editable) > 0 {
			seed, err := f.codec.Parse(current)
			if err != nil {
				return nil, false, ApplyKindNone, NewPermanentError("failed to parse file on disk", err).
					WithPath(f.Path)
			}
			value, produced = seed, true
		}
	}
	for _, l := range f.editable {
		if err := run(l); err != nil {
			return nil, false, ApplyKindNone, err
		}
	}
	return value, produced, kind, nil
}

// reconciler carries what a reconcile needs from its File Store.
type reconciler struct {
	fs     FS
	root   string
	logger zerolog.Logger
}

func (r *reconciler) abs(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// onDisk describes what currently sits at a path.
type onDisk struct {
	exists  bool
	symlink bool
	target  string
	content string
	info    os.FileInfo
}

func (r *reconciler) inspect(rel string) (onDisk, error) {
	abs := r.abs(rel)
	info, err := r.fs.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return onDisk{}, nil
	}
	if err != nil {
		return onDisk{}, err
	}

	d := onDisk{exists: true, info: info}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		d.symlink = true
		d.target, err = r.fs.Readlink(abs)
		if err != nil {
			return onDisk{}, err
		}
	case info.IsDir():
		return onDisk{}, fmt.Errorf("%s is a directory", rel)
	default:
		data, err := r.fs.ReadFile(abs)
		if err != nil {
			return onDisk{}, err
		}
		d.content = string(data)
	}
	return d, nil
}

// ownedBy reports whether the bytes on disk are the engine's last write.
func (d onDisk) ownedBy(rec *CacheRecord) bool {
	if rec == nil || !d.exists {
		return false
	}
	if rec.IsSymlink() {
		return d.symlink && d.target == rec.SymlinkTarget
	}
	return !d.symlink && rec.Content == d.content
}

func (f *ManagedFile) op(op FileOp) FileOperation {
	return FileOperation{
		Path:     f.Path,
		Package:  f.Package,
		Op:       op,
		Kind:     f.lastApplyKind,
		Status:   f.status,
		Features: f.Features(),
	}
}

func (f *ManagedFile) fail(err error) (FileOperation, error) {
	f.status = FileStatusSkipped
	op := f.op(FileOpError)
	op.Error = err.Error()
	return op, err
}

// reconcile brings the disk in line with the file's declarations. Conflicts leave
// the file in needs-user-input with a deferred completion.
func (f *ManagedFile) reconcile(ctx context.Context, r *reconciler) (FileOperation, error) {
	if !f.Managed() {
		if f.lastApplied == nil {
			f.lastApplyKind = ApplyKindInvalid
			f.status = FileStatusSkipped
			r.logger.Warn().Str("path", f.Path).Msg("File is neither managed nor cached")
			return f.op(FileOpSkip), nil
		}
		return f.reconcileOrphan(ctx, r)
	}
	if f.symlinkTarget != "" {
		return f.reconcileSymlink(ctx, r)
	}
	if !f.hasContent() {
		f.lastApplyKind = ApplyKindNonFS
		f.status = FileStatusSkipped
		return f.op(FileOpNone), nil
	}

	disk, err := r.inspect(f.Path)
	if err != nil {
		return f.fail(NewPermanentError("failed to inspect file", err).WithPath(f.Path))
	}

	value, produced, kind, err := f.reduce(ctx, disk.content, disk.exists && !disk.symlink)
	if err != nil {
		return f.fail(err)
	}
	if !produced {
		f.lastApplyKind = ApplyKindNonFS
		f.status = FileStatusSkipped
		return f.op(FileOpNone), nil
	}
	f.lastApplyKind = kind

	desired, err := f.codec.Stringify(value)
	if err != nil {
		return f.fail(NewPermanentError("failed to stringify content", err).WithPath(f.Path))
	}

	if disk.exists && !disk.symlink && strings.TrimSpace(disk.content) == strings.TrimSpace(desired) {
		f.status = FileStatusApplied
		f.applied = contentRecord(f.Path, disk.content, disk.info)
		return f.op(FileOpNone), nil
	}

	write := func(ctx context.Context) (FileOp, error) {
		op := FileOpCreate
		if disk.exists {
			op = FileOpUpdate
		}
		abs := r.abs(f.Path)
		if disk.symlink {
			if err := r.fs.Remove(abs); err != nil {
				return FileOpError, NewPermanentError("failed to remove symlink", err).WithPath(f.Path)
			}
		}
		perm := os.FileMode(0o644)
		if f.attrs.Executable {
			perm = 0o755
		}
		if err := r.fs.WriteFile(abs, []byte(desired), perm); err != nil {
			return FileOpError, NewPermanentError("failed to write file", err).WithPath(f.Path)
		}
		info, err := r.fs.Lstat(abs)
		if err != nil {
			return FileOpError, NewPermanentError("failed to stat written file", err).WithPath(f.Path)
		}
		f.status = FileStatusApplied
		f.applied = contentRecord(f.Path, desired, info)
		return op, nil
	}

	trusted := !disk.exists ||
		disk.ownedBy(f.lastApplied) ||
		f.attrs.AlwaysOverwrite ||
		kind == ApplyKindUserEditable
	if trusted {
		op, err := write(ctx)
		if err != nil {
			return f.fail(err)
		}
		r.logger.Debug().Str("path", f.Path).Str("op", string(op)).Msg("Wrote managed file")
		return f.op(op), nil
	}

	current := disk.content
	if disk.symlink {
		current = "symlink -> " + disk.target + "\n"
	}
	f.park(write, unifiedDiff(f.Path, current, desired))
	return f.op(FileOpConflict), nil
}

func (f *ManagedFile) park(fn func(ctx context.Context) (FileOp, error), diff string) {
	f.status = FileStatusNeedsUserInput
	f.deferred = fn
	f.diff = diff
}

func (f *ManagedFile) reconcileSymlink(ctx context.Context, r *reconciler) (FileOperation, error) {
	f.lastApplyKind = ApplyKindSymlink
	abs := r.abs(f.Path)

	disk, err := r.inspect(f.Path)
	if err != nil {
		return f.fail(NewPermanentError("failed to inspect symlink", err).WithPath(f.Path))
	}
	if disk.symlink && disk.target == f.symlinkTarget {
		f.status = FileStatusApplied
		f.applied = symlinkRecord(f.Path, f.symlinkTarget, disk.info)
		return f.op(FileOpNone), nil
	}

	link := func(ctx context.Context) (FileOp, error) {
		if disk.exists {
			if err := r.fs.Remove(abs); err != nil {
				return FileOpError, NewPermanentError("failed to unlink", err).WithPath(f.Path)
			}
		}
		if err := r.fs.Symlink(f.symlinkTarget, abs); err != nil {
			return FileOpError, NewPermanentError("failed to create symlink", err).WithPath(f.Path)
		}
		info, err := r.fs.Lstat(abs)
		if err != nil {
			return FileOpError, NewPermanentError("failed to stat symlink", err).WithPath(f.Path)
		}
		f.status = FileStatusApplied
		f.applied = symlinkRecord(f.Path, f.symlinkTarget, info)
		return FileOpSymlink, nil
	}

	// A symlink is always engine territory. A regular file only when we wrote it.
	if !disk.exists || disk.symlink || disk.ownedBy(f.lastApplied) || f.attrs.AlwaysOverwrite {
		op, err := link(ctx)
		if err != nil {
			return f.fail(err)
		}
		return f.op(op), nil
	}

	f.park(link, unifiedDiff(f.Path, disk.content, "symlink -> "+f.symlinkTarget+"\n"))
	return f.op(FileOpConflict), nil
}

func (f *ManagedFile) reconcileOrphan(ctx context.Context, r *reconciler) (FileOperation, error) {
	f.lastApplyKind = ApplyKindNoLongerGenerated
	abs := r.abs(f.Path)

	disk, err := r.inspect(f.Path)
	if err != nil {
		return f.fail(NewPermanentError("failed to inspect orphaned file", err).WithPath(f.Path))
	}
	if !disk.exists {
		f.status = FileStatusApplied
		return f.op(FileOpNone), nil
	}

	remove := func(ctx context.Context) (FileOp, error) {
		if err := r.fs.Remove(abs); err != nil {
			return FileOpError, NewPermanentError("failed to delete file", err).WithPath(f.Path)
		}
		f.status = FileStatusApplied
		return FileOpDelete, nil
	}

	if disk.ownedBy(f.lastApplied) {
		op, err := remove(ctx)
		if err != nil {
			return f.fail(err)
		}
		r.logger.Debug().Str("path", f.Path).Msg("Deleted file no longer generated")
		return f.op(op), nil
	}

	f.park(remove, unifiedDiff(f.Path, disk.content, ""))
	return f.op(FileOpConflict), nil
}

// cacheRecord returns the entry the rewritten cache keeps for the file. A managed file
// left unapplied this run keeps its previous record, so its last write stays owned.
func (f *ManagedFile) cacheRecord() *CacheRecord {
	if f.cacheable() {
		return f.applied
	}
	if f.Managed() && !f.attrs.NeverCache && f.status != FileStatusApplied {
		return f.lastApplied
	}
	return nil
}

// cacheable reports whether the file earns a cache entry after this run.
func (f *ManagedFile) cacheable() bool {
	if !f.Managed() || f.attrs.NeverCache || f.applied == nil {
		return false
	}
	if f.status != FileStatusApplied {
		return false
	}
	switch f.lastApplyKind {
	case ApplyKindGenerated, ApplyKindUserEditable, ApplyKindSymlink:
		return true
	default:
		return false
	}
}

// FileInfo is a read-only snapshot of a managed file's declarations.
type FileInfo struct {
	Path          string     `json:"path"`
	Package       string     `json:"package"`
	Attributes    Attributes `json:"attributes"`
	Features      []string   `json:"features"`
	SymlinkTarget string     `json:"symlinkTarget,omitempty"`
	HasContent    bool       `json:"hasContent"`
}

func (f *ManagedFile) info() FileInfo {
	return FileInfo{
		Path:          f.Path,
		Package:       f.Package,
		Attributes:    f.attrs.clone(),
		Features:      f.Features(),
		SymlinkTarget: f.symlinkTarget,
		HasContent:    f.hasContent(),
	}
}

func sortFiles(files []*ManagedFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
