package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/openfroyo/sous/pkg/engine"
)

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// JSON prints only the run summary, as indented JSON.
	JSON bool

	// Verbose also prints phases, feature stats and unchanged entries.
	Verbose bool

	// NoColor disables ANSI colors regardless of the terminal.
	NoColor bool
}

type palette struct {
	success *color.Color
	warning *color.Color
	failure *color.Color
	info    *color.Color
	header  *color.Color
	dim     *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		success: color.New(color.FgGreen, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgCyan),
		header:  color.New(color.FgBlue, color.Bold),
		dim:     color.New(color.FgHiBlack),
	}
	if noColor {
		for _, c := range []*color.Color{p.success, p.warning, p.failure, p.info, p.header, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

// Console implements engine.Reporter on a terminal.
type Console struct {
	out     io.Writer
	opts    ConsoleOptions
	colors  palette
	noColor bool

	mu sync.Mutex
}

var _ engine.Reporter = (*Console)(nil)

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer, opts ConsoleOptions) *Console {
	return &Console{
		out:     out,
		opts:    opts,
		colors:  newPalette(opts.NoColor),
		noColor: opts.NoColor,
	}
}

func (c *Console) linesEnabled() bool {
	return !c.opts.JSON
}

// PhaseStart implements engine.Reporter.
func (c *Console) PhaseStart(phase string) {
	if !c.linesEnabled() || !c.opts.Verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.colors.header.Fprintf(c.out, "▸ %s\n", phase)
}

// PhaseEnd implements engine.Reporter.
func (c *Console) PhaseEnd(phase string, err error) {
	if !c.linesEnabled() || err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.colors.failure.Fprintf(c.out, "✗ %s: %v\n", phase, err)
}

// FeatureStart implements engine.Reporter.
func (c *Console) FeatureStart(string) {}

// FeatureEnd implements engine.Reporter.
func (c *Console) FeatureEnd(feature string, stats engine.FeatureStats) {
	if !c.linesEnabled() || !c.opts.Verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.colors.dim.Fprintf(c.out, "  %s: %s, %s, %s, %s\n", feature,
		count(stats.Files, "file", "files"),
		count(stats.Dependencies, "dependency", "dependencies"),
		count(stats.Tasks, "task", "tasks"),
		count(stats.Modifiers, "modifier", "modifiers"))
}

// FileOperation implements engine.Reporter.
func (c *Console) FileOperation(op engine.FileOperation) {
	if !c.linesEnabled() {
		return
	}
	if op.Op == engine.FileOpNone && !c.opts.Verbose {
		return
	}

	clr, symbol := c.colors.dim, "="
	switch op.Op {
	case engine.FileOpCreate:
		clr, symbol = c.colors.success, "+"
	case engine.FileOpUpdate:
		clr, symbol = c.colors.info, "~"
	case engine.FileOpDelete:
		clr, symbol = c.colors.warning, "-"
	case engine.FileOpSymlink:
		clr, symbol = c.colors.info, "@"
	case engine.FileOpConflict:
		clr, symbol = c.colors.warning, "!"
	case engine.FileOpSkip:
		clr, symbol = c.colors.dim, "?"
	case engine.FileOpError:
		clr, symbol = c.colors.failure, "✗"
	}

	line := fmt.Sprintf("%s %-9s %s", symbol, op.Op, op.Path)
	if len(op.Features) > 0 {
		line += " (" + strings.Join(op.Features, ", ") + ")"
	}
	if op.Error != "" {
		line += ": " + op.Error
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = clr.Fprintln(c.out, line)
}

// DependencyOperation implements engine.Reporter.
func (c *Console) DependencyOperation(op engine.DependencyOperation) {
	if !c.linesEnabled() {
		return
	}
	if op.Op == engine.DependencyOpUnchanged && !c.opts.Verbose {
		return
	}

	clr := c.colors.dim
	switch op.Op {
	case engine.DependencyOpAdd:
		clr = c.colors.success
	case engine.DependencyOpUpdate:
		clr = c.colors.info
	case engine.DependencyOpRemove:
		clr = c.colors.warning
	case engine.DependencyOpError:
		clr = c.colors.failure
	}

	var version string
	switch {
	case op.From != "" && op.To != "" && op.From != op.To:
		version = op.From + " -> " + op.To
	case op.To != "":
		version = op.To
	default:
		version = op.From
	}

	line := fmt.Sprintf("%s %-9s %s", "•", op.Op, op.Name)
	if version != "" {
		line += "@" + version
	}
	line += " in " + op.Package
	if op.List != "" {
		line += " [" + string(op.List) + "]"
	}
	if op.Error != "" {
		line += ": " + op.Error
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = clr.Fprintln(c.out, line)
}

// Summary implements engine.Reporter.
func (c *Console) Summary(s *engine.Summary) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.JSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(s)
		return
	}
	_, _ = fmt.Fprintln(c.out, c.renderSummary(s))
}

// renderSummary draws the summary box.
func (c *Console) renderSummary(s *engine.Summary) string {
	var b strings.Builder

	status, statusColor := "clean", lipgloss.Color("#5FD75F")
	if s.Dirty {
		status, statusColor = "dirty", lipgloss.Color("#FFAF00")
	}
	if len(s.Errors) > 0 {
		status, statusColor = "failed", lipgloss.Color("#FF6B6B")
	}

	head := lipgloss.NewStyle().Bold(true)
	if !c.noColor {
		head = head.Foreground(statusColor)
	}
	b.WriteString(head.Render(fmt.Sprintf("sous run %s: %s", shortID(s.RunID), status)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "files         %d evaluated, %d changed, %d deleted, %d skipped\n",
		s.FilesEvaluated, s.FilesChanged, s.FilesDeleted, s.FilesSkipped)
	fmt.Fprintf(&b, "dependencies  %d evaluated, %d changed, %d removed\n",
		s.DependenciesEvaluated, s.DependenciesChanged, s.DependenciesRemoved)
	fmt.Fprintf(&b, "packages      %d touched\n", len(s.PackagesTouched))
	fmt.Fprintf(&b, "duration      %s", s.Duration().Round(time.Millisecond))

	if len(s.Features) > 0 && c.opts.Verbose {
		names := make([]string, 0, len(s.Features))
		for name := range s.Features {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n\nfeatures")
		for _, name := range names {
			st := s.Features[name]
			fmt.Fprintf(&b, "\n  %-20s %d files, %d deps, %d tasks", name, st.Files, st.Dependencies, st.Tasks)
		}
	}

	if len(s.NeedsReview) > 0 {
		b.WriteString("\n\nneeds review")
		for _, path := range s.NeedsReview {
			b.WriteString("\n  ! " + path)
		}
	}
	if s.CacheError != "" {
		b.WriteString("\n\ncache: " + s.CacheError)
	}
	if len(s.Errors) > 0 {
		b.WriteString("\n\nerrors")
		for _, msg := range s.Errors {
			b.WriteString("\n  ✗ " + msg)
		}
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)
	if !c.noColor {
		box = box.BorderForeground(lipgloss.Color("#444444"))
	}
	return box.Render(b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func count(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
