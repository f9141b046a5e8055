package cli

import (
	"bytes"
	"strings"
	"testing"
)

// completionScript runs `shardrun completion <shell>` and returns its output
func completionScript(t *testing.T, args ...string) (string, error) {
	t.Helper()

	rootCmd := newRootCmd()
	rootCmd.SetArgs(append([]string{"completion"}, args...))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCompletionCommand(t *testing.T) {
	tests := []struct {
		shell  string
		header string
	}{
		{"bash", "# bash completion for shardrun"},
		{"zsh", "#compdef shardrun"},
		{"fish", "# fish completion for shardrun"},
		{"powershell", "Register-ArgumentCompleter"},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			script, err := completionScript(t, tt.shell)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(script, tt.header) {
				t.Errorf("expected %s script to contain %q", tt.shell, tt.header)
			}
		})
	}
}

func TestCompletionCommand_InvalidArgs(t *testing.T) {
	tests := map[string]struct {
		args        []string
		errContains string
	}{
		"unknown shell": {[]string{"tcsh"}, "invalid argument"},
		"no shell":      {nil, "accepts 1 arg"},
		"two shells":    {[]string{"bash", "zsh"}, "accepts 1 arg"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := completionScript(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}

// The bash script enumerates the command tree, so it shows which commands
// and flags users can complete.
func TestCompletionCommand_BashCoversCommandTree(t *testing.T) {
	script, err := completionScript(t, "bash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"_shardrun_run()",
		"_shardrun_split()",
		"_shardrun_workers_check()",
		"_shardrun_pods_clean()",
		`commands+=("run")`,
		`flags+=("--tests=")`,
		`flags+=("--max-retries=")`,
		`flags+=("--shard-index=")`,
		`flags+=("--workers=")`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("expected bash completion to contain %q", want)
		}
	}
}

func TestCompletionCommand_Help(t *testing.T) {
	cmd := newCompletionCmd()
	cmd.SetArgs([]string{"--help"})

	output := &bytes.Buffer{}
	cmd.SetOut(output)

	err := cmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	help := output.String()

	expectedStrings := []string{
		"Generate shell completion scripts",
		"bash",
		"zsh",
		"fish",
		"powershell",
		"Bash:",
		"Zsh:",
		"Fish:",
		"PowerShell:",
	}

	for _, want := range expectedStrings {
		if !strings.Contains(help, want) {
			t.Errorf("expected help to contain %q", want)
		}
	}
}
