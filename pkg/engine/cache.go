package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"
)

const (
	// CacheVersion is bumped whenever the cache layout changes. Any other version is
	// read as an empty cache.
	CacheVersion = 1

	// CacheFile is the workspace-relative cache location.
	CacheFile = ".sous/cache.json"
)

// CacheRecord is the engine's last write to one path.
type CacheRecord struct {
	Path          string
	Content       string
	SymlinkTarget string
	ModifiedAt    time.Time
	Size          int64
}

// IsSymlink reports whether the record describes a symlink.
func (r *CacheRecord) IsSymlink() bool {
	return r.SymlinkTarget != ""
}

type symlinkContent struct {
	SymlinkTarget string `json:"symlinkTarget"`
}

type cacheRecordJSON struct {
	Path       string          `json:"path"`
	Content    json.RawMessage `json:"content"`
	ModifiedAt time.Time       `json:"modifiedAt"`
	Size       int64           `json:"size"`
}

// MarshalJSON writes content either as a string or as {"symlinkTarget": ...}.
func (r CacheRecord) MarshalJSON() ([]byte, error) {
	var content any = r.Content
	if r.IsSymlink() {
		content = symlinkContent{SymlinkTarget: r.SymlinkTarget}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cacheRecordJSON{
		Path:       r.Path,
		Content:    raw,
		ModifiedAt: r.ModifiedAt,
		Size:       r.Size,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CacheRecord) UnmarshalJSON(data []byte) error {
	var w cacheRecordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = CacheRecord{Path: w.Path, ModifiedAt: w.ModifiedAt, Size: w.Size}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return fmt.Errorf("cache entry %q has no content", w.Path)
	}
	if w.Content[0] == '"' {
		return json.Unmarshal(w.Content, &r.Content)
	}
	var link symlinkContent
	if err := json.Unmarshal(w.Content, &link); err != nil {
		return err
	}
	if link.SymlinkTarget == "" {
		return fmt.Errorf("cache entry %q has an empty symlink target", w.Path)
	}
	r.SymlinkTarget = link.SymlinkTarget
	return nil
}

func contentRecord(path, content string, info os.FileInfo) *CacheRecord {
	rec := &CacheRecord{Path: path, Content: content, Size: int64(len(content))}
	if info != nil {
		rec.ModifiedAt = info.ModTime().UTC()
		rec.Size = info.Size()
	}
	return rec
}

func symlinkRecord(path, target string, info os.FileInfo) *CacheRecord {
	rec := &CacheRecord{Path: path, SymlinkTarget: target}
	if info != nil {
		rec.ModifiedAt = info.ModTime().UTC()
		rec.Size = info.Size()
	}
	return rec
}

type cacheDocument struct {
	CacheVersion int           `json:"cacheVersion"`
	Files        []CacheRecord `json:"files"`
}

// readCache loads the cache at path. A missing file is an empty cache. An unreadable
// or foreign-version file returns a cache error and no records.
func readCache(fsys FS, path string) ([]CacheRecord, error) {
	data, err := fsys.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, NewCacheError("failed to read cache", err).WithCode(ErrCodeCacheCorrupt)
	}

	var probe struct {
		CacheVersion int `json:"cacheVersion"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, NewCacheError("cache is corrupt", err).WithCode(ErrCodeCacheCorrupt)
	}
	if probe.CacheVersion != CacheVersion {
		return nil, NewCacheError("cache version mismatch", nil).
			WithCode(ErrCodeCacheVersion).
			WithDetail("found", probe.CacheVersion).
			WithDetail("expected", CacheVersion)
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewCacheError("cache is corrupt", err).WithCode(ErrCodeCacheCorrupt)
	}
	return doc.Files, nil
}

// writeCache replaces the cache file unconditionally.
func writeCache(fsys FS, path string, records []CacheRecord) error {
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	if records == nil {
		records = []CacheRecord{}
	}
	data, err := json.MarshalIndent(cacheDocument{CacheVersion: CacheVersion, Files: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	data = append(data, '\n')
	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
