package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openfroyo/sous/pkg/engine"
)

// Example_run shows a feature generating a file and a manifest field, then a second
// run finding nothing to do.
func Example_run() {
	dir, _ := os.MkdirTemp("", "sous-example")
	defer os.RemoveAll(dir)
	_ = os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name": "demo"}`), 0o644)

	editorconfig := engine.Feature{
		Name: "editorconfig",
		DefineRecipe: func(ctx context.Context, r *engine.Recipe) error {
			if err := r.GenerateFile(nil, ".editorconfig", engine.FileSpec{
				Content: []string{"root = true", "", "[*]", "indent_style = space"},
			}); err != nil {
				return err
			}
			return r.ModifyManifest(nil, func(ctx context.Context, m *engine.Manifest) error {
				m.Set("private", true)
				return nil
			})
		},
	}

	e := engine.New(engine.Options{Logger: zerolog.Nop()})
	for i := 0; i < 2; i++ {
		ws := &engine.Workspace{Dir: dir}
		ws.Packages = append(ws.Packages, engine.LoadPackageEntry(engine.OSFS{}, engine.PackageKindWorkspace, dir, "."))

		summary, err := e.Run(context.Background(), ws, []engine.Feature{editorconfig})
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("run %d: files changed=%d packages touched=%v\n", i+1, summary.FilesChanged, summary.PackagesTouched)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "package.json"))
	fmt.Print(string(data))

	// Output:
	// run 1: files changed=1 packages touched=[.]
	// run 2: files changed=0 packages touched=[]
	// {
	//   "name": "demo",
	//   "private": true
	// }
}

// ExampleFeatureGraphDOT renders the feature order for graphviz.
func ExampleFeatureGraphDOT() {
	fmt.Print(engine.FeatureGraphDOT([]engine.Feature{
		{Name: "typescript"},
		{Name: "eslint", After: []string{"typescript"}},
	}))

	// Output:
	// digraph Features {
	//   rankdir=LR;
	//   node [shape=box, style=rounded];
	//
	//   "typescript" [label="1. typescript"];
	//   "eslint" [label="2. eslint"];
	//
	//   "typescript" -> "eslint" [style=dotted];
	//   "typescript" -> "eslint";
	// }
}
