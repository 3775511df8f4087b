package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRunner_Run_Success(t *testing.T) {
	t.Parallel()

	r := &Runner{Cwd: t.TempDir()}
	res, err := r.Run(context.Background(), "echo", `sh -c "cat > /dev/null; echo hello"`, "the message")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("Output = %q, want it to contain hello", res.Output)
	}
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	t.Parallel()

	r := &Runner{Cwd: t.TempDir()}
	_, err := r.Run(context.Background(), "fail", `sh -c "cat > /dev/null; exit 3"`, "the message")

	var execErr *PluginExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *PluginExecutionError", err)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", execErr.ExitCode)
	}
}

func TestRunner_Run_MessageOnStdin(t *testing.T) {
	t.Parallel()

	r := &Runner{Cwd: t.TempDir()}
	res, err := r.Run(context.Background(), "cat", "cat", "hello from the supervisor")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Output != "hello from the supervisor" {
		t.Errorf("Output = %q, want the message echoed back", res.Output)
	}
}

func TestRunner_Run_NotFound(t *testing.T) {
	t.Parallel()

	r := &Runner{Cwd: t.TempDir()}
	_, err := r.Run(context.Background(), "missing", "/no/such/executable-xyz", "msg")

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
}

func TestRunner_Run_EmptyCommand(t *testing.T) {
	t.Parallel()

	r := &Runner{Cwd: t.TempDir()}
	_, err := r.Run(context.Background(), "empty", "   ", "msg")

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *NotFoundError for an empty command", err)
	}
}

func TestSplitWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr bool
	}{
		{name: "simple", in: "notify --flag value", want: []string{"notify", "--flag", "value"}},
		{name: "quoted", in: `notify "hello world" 'single quoted'`, want: []string{"notify", "hello world", "single quoted"}},
		{name: "empty", in: "", want: nil},
		{name: "unterminated quote", in: `notify "unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := splitWords(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitWords() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !equalStrings(got, tt.want) {
				t.Errorf("splitWords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
