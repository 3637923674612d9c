package features

import (
	"context"

	"github.com/openfroyo/sous/pkg/engine"
)

// TaskScriptsName is the task-scripts feature's name.
const TaskScriptsName = "task-scripts"

// TaskScripts mirrors every collected task into the "scripts" object of the
// manifest of the package that declared it. It runs during garnish, when every
// recipe has declared its tasks.
func TaskScripts() engine.Feature {
	return engine.Feature{
		Name: TaskScriptsName,
		DefineGarnish: func(ctx context.Context, r *engine.Recipe) error {
			byPackage := map[string]map[string]string{}
			for _, task := range r.View().Tasks() {
				scripts, ok := byPackage[task.Package]
				if !ok {
					scripts = map[string]string{}
					byPackage[task.Package] = scripts
				}
				scripts[task.Name] = task.Command
			}

			for _, pkg := range r.Packages() {
				scripts := byPackage[pkg.Paths.Rel]
				if len(scripts) == 0 {
					continue
				}
				err := r.ModifyManifest(pkg, func(_ context.Context, m *engine.Manifest) error {
					obj := m.EnsureObject("scripts")
					for name, cmd := range scripts {
						obj[name] = cmd
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
