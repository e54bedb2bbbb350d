// Package result defines the tagged outcome of a sub-operation, the per-host
// outcome of a step, and the configuration error that aborts a whole run.
package result

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies how a sub-operation ended.
type Kind int

const (
	// OK means the sub-operation succeeded.
	OK Kind = iota
	// Precondition means an expected, checkable condition was not met.
	Precondition
	// Adapter means an external call failed or a remote command exited nonzero.
	Adapter
	// Configuration means required credentials or roster data were missing or malformed.
	Configuration
	// Unexpected covers everything else.
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Precondition:
		return "precondition-failure"
	case Adapter:
		return "adapter-failure"
	case Configuration:
		return "configuration-failure"
	case Unexpected:
		return "unexpected-failure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is the detail of one command execution, local or remote.
type Command struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Failed reports whether the command exited nonzero.
func (c Command) Failed() bool { return c.ExitCode != 0 }

// Report renders the command detail the way ticket comments show it.
func (c Command) Report() string {
	var b strings.Builder
	b.WriteString("command:\n{code}" + c.Command + "{code}\n")
	b.WriteString("stdout:\n{code}" + c.Stdout + "{code}\n")
	b.WriteString("stderr:\n{code}" + c.Stderr + "{code}\n")
	fmt.Fprintf(&b, "return code:\n{code}%d{code}", c.ExitCode)
	return b.String()
}

// Result is what every sub-operation returns. Exactly one of the
// constructors below should be used to build it.
type Result struct {
	Kind    Kind
	Summary string
	Err     error
	// Commands holds the detail of every command the sub-operation ran, in order.
	Commands []Command
}

// Success builds an OK result.
func Success(summary string, cmds ...Command) Result {
	return Result{Kind: OK, Summary: summary, Commands: cmds}
}

// PreconditionFailed builds a precondition failure with a human-readable reason.
func PreconditionFailed(reason string, cmds ...Command) Result {
	return Result{Kind: Precondition, Summary: reason, Err: errors.New(reason), Commands: cmds}
}

// AdapterFailed builds an adapter failure.
func AdapterFailed(err error, cmds ...Command) Result {
	return Result{Kind: Adapter, Summary: errString(err), Err: err, Commands: cmds}
}

// CommandFailed builds an adapter failure for a command that exited nonzero.
func CommandFailed(what string, cmd Command, more ...Command) Result {
	err := fmt.Errorf("%s: exit code %d", what, cmd.ExitCode)
	return AdapterFailed(err, append([]Command{cmd}, more...)...)
}

// UnexpectedFailed builds an unexpected failure.
func UnexpectedFailed(err error, cmds ...Command) Result {
	return Result{Kind: Unexpected, Summary: errString(err), Err: err, Commands: cmds}
}

// Ok reports whether the result is a success.
func (r Result) Ok() bool { return r.Kind == OK }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
