package features

import (
	"context"
	"path"
	"strings"

	"github.com/openfroyo/sous/pkg/engine"
)

const (
	// GitignoreName is the gitignore feature's name.
	GitignoreName = "gitignore"

	// GitignoreFile is the managed ignore file at the workspace root.
	GitignoreFile = ".gitignore"
)

// stateDir is always ignored; it holds the engine cache.
var stateDir = path.Dir(engine.CacheFile) + "/"

// Gitignore declares the root .gitignore. Its content is computed when files are
// applied, so files declared by features that run later are included.
func Gitignore() engine.Feature {
	return engine.Feature{
		Name:  GitignoreName,
		Scope: engine.Scope{RootOnly: true},
		DefineRecipe: func(ctx context.Context, r *engine.Recipe) error {
			view := r.View()
			return r.GenerateFile(nil, GitignoreFile, engine.FileSpec{
				Producer: func(context.Context, any) (any, error) {
					return IgnoreLines(view), nil
				},
			})
		},
	}
}

// IgnoreLines lists the entries of the generated .gitignore: the state directory
// first, then every IgnoreVCS file anchored at the root, sorted by path.
func IgnoreLines(view *engine.StateView) []string {
	lines := []string{"# Managed by sous", stateDir}
	for _, f := range view.Files(func(f engine.FileInfo) bool { return f.Attributes.IgnoreVCS }) {
		if f.Path == GitignoreFile {
			continue
		}
		lines = append(lines, "/"+escapeGitignore(f.Path))
	}
	return lines
}

// escapeGitignore escapes the characters gitignore treats as patterns.
func escapeGitignore(p string) string {
	var b strings.Builder
	for i, c := range p {
		switch c {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		case '#', '!':
			if i == 0 {
				b.WriteByte('\\')
			}
		}
		b.WriteRune(c)
	}
	return b.String()
}
