package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCacheRecordJSON(t *testing.T) {
	modified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []CacheRecord{
		{Path: "a.json", Content: "{}\n", ModifiedAt: modified, Size: 3},
		{Path: "link.json", SymlinkTarget: "shared/base.json", ModifiedAt: modified},
	}

	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"content":{"symlinkTarget":"shared/base.json"}`) {
		t.Errorf("symlink record not encoded as object: %s", data)
	}
	if !strings.Contains(string(data), `"content":"{}\n"`) {
		t.Errorf("content record not encoded as string: %s", data)
	}

	var decoded []CacheRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded[0].IsSymlink() || decoded[0].Content != "{}\n" {
		t.Errorf("content record = %+v", decoded[0])
	}
	if !decoded[1].IsSymlink() || decoded[1].SymlinkTarget != "shared/base.json" {
		t.Errorf("symlink record = %+v", decoded[1])
	}
}

func TestReadCache(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
		records int
	}{
		{"valid", `{"cacheVersion": 1, "files": [{"path": "a.txt", "content": "a", "size": 1}]}`, "", 1},
		{"version mismatch", `{"cacheVersion": 2, "files": []}`, ErrCodeCacheVersion, 0},
		{"corrupt", `{"cacheVersion": 1, "files": [`, ErrCodeCacheCorrupt, 0},
		{"entry without content", `{"cacheVersion": 1, "files": [{"path": "a.txt"}]}`, ErrCodeCacheCorrupt, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, CacheFile, tt.content)

			records, err := readCache(OSFS{}, filepath.Join(dir, CacheFile))
			if tt.code == "" {
				if err != nil {
					t.Fatalf("readCache() error = %v", err)
				}
				if len(records) != tt.records {
					t.Errorf("records = %d, want %d", len(records), tt.records)
				}
				return
			}
			if !IsCache(err) {
				t.Fatalf("readCache() error = %v, want cache error", err)
			}
			if ee, ok := err.(*EngineError); !ok || ee.Code != tt.code {
				t.Errorf("code = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestReadCacheMissing(t *testing.T) {
	records, err := readCache(OSFS{}, filepath.Join(t.TempDir(), CacheFile))
	if err != nil || records != nil {
		t.Fatalf("readCache() = %v, %v, want nil, nil", records, err)
	}
}

func TestFileStoreLoadCacheCorruptStartsEmpty(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Dir, CacheFile, "not json")

	store := NewFileStore(ws)
	if err := store.LoadCache(OSFS{}, zerolog.Nop()); !IsCache(err) {
		t.Fatalf("LoadCache() error = %v, want cache error", err)
	}
	if len(store.Files()) != 0 {
		t.Errorf("Files() = %d, want empty store", len(store.Files()))
	}
}

func TestRunReportsCacheErrorAndTreatsFilesAsUnowned(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Dir, "a.txt", "previous\n")
	writeFile(t, ws.Dir, CacheFile, `{"cacheVersion": 99, "files": []}`)

	e := newTestEngine(Options{})
	summary, err := e.Run(context.Background(), ws, []Feature{generateFeature("f", "a.txt", "next\n")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.CacheError == "" {
		t.Error("CacheError should be reported")
	}
	if got := readFile(t, ws.Dir, "a.txt"); got != "previous\n" {
		t.Errorf("a.txt = %q, unowned file must not be overwritten", got)
	}

	// The rewritten cache has the current version.
	records, err := readCache(OSFS{}, filepath.Join(ws.Dir, CacheFile))
	if err != nil {
		t.Fatalf("readCache() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, conflicting file must not be cached", records)
	}
}

func TestRunNeverCache(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "f",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			return r.GenerateFile(nil, "volatile.txt", FileSpec{Content: "x\n", Attributes: Attributes{NeverCache: true}})
		},
	}}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	records, err := readCache(OSFS{}, filepath.Join(ws.Dir, CacheFile))
	if err != nil {
		t.Fatalf("readCache() error = %v", err)
	}
	for _, rec := range records {
		if rec.Path == "volatile.txt" {
			t.Error("NeverCache file was cached")
		}
	}
}
