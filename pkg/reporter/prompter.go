package reporter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/openfroyo/sous/pkg/engine"
)

// maxAttempts bounds how often an unrecognized answer is asked again.
const maxAttempts = 3

// TerminalPrompter asks on a terminal whether to overwrite a manually edited file.
type TerminalPrompter struct {
	in     *bufio.Reader
	out    io.Writer
	colors palette

	mu sync.Mutex
}

var _ engine.Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter reads answers from in and writes diffs and questions to out.
func NewTerminalPrompter(in io.Reader, out io.Writer, noColor bool) *TerminalPrompter {
	return &TerminalPrompter{
		in:     bufio.NewReader(in),
		out:    out,
		colors: newPalette(noColor),
	}
}

// Confirm implements engine.Prompter. Prompts never interleave. End of input
// declines.
func (p *TerminalPrompter) Confirm(ctx context.Context, path, diff string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, _ = p.colors.warning.Fprintf(p.out, "\n%s was changed outside sous\n", path)
	p.writeDiff(diff)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, _ = p.colors.header.Fprintf(p.out, "Overwrite %s? [y/N] ", path)

		line, err := p.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		_, _ = p.colors.dim.Fprintln(p.out, "Please answer y or n.")
	}
	return false, nil
}

// writeDiff prints a unified diff with added lines green and removed lines red.
func (p *TerminalPrompter) writeDiff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			_, _ = p.colors.header.Fprint(p.out, line)
		case strings.HasPrefix(line, "@@"):
			_, _ = p.colors.info.Fprint(p.out, line)
		case strings.HasPrefix(line, "+"):
			_, _ = p.colors.success.Fprint(p.out, line)
		case strings.HasPrefix(line, "-"):
			_, _ = p.colors.failure.Fprint(p.out, line)
		default:
			_, _ = fmt.Fprint(p.out, line)
		}
	}
	if diff != "" && !strings.HasSuffix(diff, "\n") {
		_, _ = fmt.Fprintln(p.out)
	}
}

// AutoPrompter answers every prompt the same way.
type AutoPrompter bool

// Confirm implements engine.Prompter.
func (a AutoPrompter) Confirm(ctx context.Context, _, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(a), nil
}
