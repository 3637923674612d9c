package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/sous/pkg/engine"
)

// PlanView is the JSON shape of a plan.
type PlanView struct {
	RunID        string                         `json:"run_id"`
	Files        []engine.FileInfo              `json:"files"`
	Dependencies []engine.DependencyRequest     `json:"dependencies"`
	Resolutions  map[string]string              `json:"resolutions,omitempty"`
	Tasks        []engine.Task                  `json:"tasks"`
	Features     map[string]engine.FeatureStats `json:"features"`
}

// NewPlanView snapshots a plan.
func NewPlanView(p *engine.Plan) PlanView {
	return PlanView{
		RunID:        p.RunID,
		Files:        p.State.Files(nil),
		Dependencies: p.State.Dependencies(),
		Resolutions:  p.State.Resolutions(),
		Tasks:        p.State.Tasks(),
		Features:     p.Features,
	}
}

// Plan prints what a run would converge without touching the disk.
func (c *Console) Plan(p *engine.Plan) {
	view := NewPlanView(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.JSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(view)
		return
	}

	c.section("files", len(view.Files))
	for _, f := range view.Files {
		line := "  " + f.Path
		if f.SymlinkTarget != "" {
			line += " -> " + f.SymlinkTarget
		}
		if flags := attributeFlags(f.Attributes); flags != "" {
			line += " [" + flags + "]"
		}
		_, _ = c.colors.info.Fprint(c.out, line)
		_, _ = c.colors.dim.Fprintf(c.out, " (%s)\n", strings.Join(f.Features, ", "))
	}

	c.section("dependencies", len(view.Dependencies))
	for _, d := range view.Dependencies {
		spec := d.Version
		if spec == "" {
			spec = d.Tag
		}
		name := d.Name
		if d.InstallAsAlias != "" {
			name = d.InstallAsAlias + " (npm:" + d.Name + ")"
		}
		_, _ = c.colors.info.Fprintf(c.out, "  %s@%s in %s [%s]", name, spec, d.Package, d.List)
		_, _ = c.colors.dim.Fprintf(c.out, " (%s)\n", d.Feature)
	}

	if len(view.Resolutions) > 0 {
		c.section("resolutions", len(view.Resolutions))
		names := make([]string, 0, len(view.Resolutions))
		for name := range view.Resolutions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = c.colors.info.Fprintf(c.out, "  %s@%s\n", name, view.Resolutions[name])
		}
	}

	c.section("tasks", len(view.Tasks))
	for _, t := range view.Tasks {
		_, _ = c.colors.info.Fprintf(c.out, "  %s in %s: %s", t.Name, t.Package, t.Command)
		_, _ = c.colors.dim.Fprintf(c.out, " (%s)\n", t.Feature)
	}
}

func (c *Console) section(title string, n int) {
	_, _ = c.colors.header.Fprintf(c.out, "▸ %s (%d)\n", title, n)
}

func attributeFlags(a engine.Attributes) string {
	var flags []string
	if a.AlwaysOverwrite {
		flags = append(flags, "overwrite")
	}
	if a.IgnoreVCS {
		flags = append(flags, "vcs-ignored")
	}
	if a.IgnorePublish {
		flags = append(flags, "publish-ignored")
	}
	if a.NeverCache {
		flags = append(flags, "uncached")
	}
	if a.Executable {
		flags = append(flags, "executable")
	}
	return strings.Join(flags, ", ")
}

// String renders a short one-line description of the plan.
func (v PlanView) String() string {
	return fmt.Sprintf("%d files, %d dependencies, %d tasks", len(v.Files), len(v.Dependencies), len(v.Tasks))
}
