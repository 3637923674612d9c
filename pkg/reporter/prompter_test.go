package reporter

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

const sampleDiff = `--- .eslintrc (on disk)
+++ .eslintrc (desired)
@@ -1 +1 @@
-{"root": false}
+{"root": true}
`

func TestTerminalPrompterConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "yes long", input: "YES\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "default", input: "\n", want: false},
		{name: "eof", input: "", want: false},
		{name: "eof after yes", input: "y", want: true},
		{name: "retry", input: "maybe\ny\n", want: true},
		{name: "gives up", input: "a\nb\nc\ny\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewTerminalPrompter(strings.NewReader(tt.input), &out, true)

			got, err := p.Confirm(context.Background(), ".eslintrc", sampleDiff)
			if err != nil {
				t.Fatalf("Confirm failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), `+{"root": true}`) {
				t.Errorf("diff not shown:\n%s", out.String())
			}
			if !strings.Contains(out.String(), "Overwrite .eslintrc? [y/N]") {
				t.Errorf("question not shown:\n%s", out.String())
			}
		})
	}
}

func TestTerminalPrompterSequential(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("y\nn\n"), &out, true)

	first, err := p.Confirm(context.Background(), "a", "")
	if err != nil || !first {
		t.Fatalf("first = %v, %v", first, err)
	}
	second, err := p.Confirm(context.Background(), "b", "")
	if err != nil || second {
		t.Fatalf("second = %v, %v", second, err)
	}
}

func TestTerminalPrompterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewTerminalPrompter(strings.NewReader("y\n"), &bytes.Buffer{}, true)
	if _, err := p.Confirm(ctx, "a", ""); err == nil {
		t.Fatal("expected context error")
	}
}

func TestAutoPrompter(t *testing.T) {
	ok, err := AutoPrompter(true).Confirm(context.Background(), "a", "")
	if err != nil || !ok {
		t.Errorf("AutoPrompter(true) = %v, %v", ok, err)
	}
	ok, _ = AutoPrompter(false).Confirm(context.Background(), "a", "")
	if ok {
		t.Error("AutoPrompter(false) confirmed")
	}
}
