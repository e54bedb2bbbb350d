// Package common provides utility functions used across hvmigrate.
package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

// CheckCommand checks if a command is available in the system PATH.
func CheckCommand(cmd string) error {
	_, err := exec.LookPath(cmd)
	if err != nil {
		return fmt.Errorf("command '%s' not found in PATH", cmd)
	}
	return nil
}

// RunCommand executes a local command with extra environment variables and
// captures its output and exit code. A nonzero exit is reported in the
// returned Command, not as an error; err is only set when the command could
// not be started.
func RunCommand(ctx context.Context, env []string, name string, args ...string) (result.Command, error) {
	detail := result.Command{Command: JoinCommand(name, args...)}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	detail.Stdout = stdout.String()
	detail.Stderr = stderr.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail.ExitCode = exitErr.ExitCode()
			return detail, nil
		}
		return detail, fmt.Errorf("command failed: %w", err)
	}
	return detail, nil
}

// JoinCommand renders a command line for reports, quoting arguments that contain spaces.
func JoinCommand(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = ShellQuote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// NonEmptyLines splits output into trimmed, non-blank lines.
func NonEmptyLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
