package result

import (
	"errors"
	"fmt"
)

// Outcome is the terminal state of one step on one host.
type Outcome struct {
	Host      string
	Step      string
	Completed bool
	// AbortedAt is the name of the failing sub-operation when Completed is false.
	AbortedAt string
	Kind      Kind
	Reason    string
	// Executed counts sub-operations that ran, successful or not. Skipped guards are not counted.
	Executed int
}

// Completed builds a completed outcome.
func Completed(host, step string, executed int) Outcome {
	return Outcome{Host: host, Step: step, Completed: true, Kind: OK, Executed: executed}
}

// AbortedAt builds an aborted outcome.
func AbortedAt(host, step, op string, kind Kind, reason string, executed int) Outcome {
	return Outcome{Host: host, Step: step, AbortedAt: op, Kind: kind, Reason: reason, Executed: executed}
}

func (o Outcome) String() string {
	if o.Completed {
		return fmt.Sprintf("%s: %s completed", o.Host, o.Step)
	}
	return fmt.Sprintf("%s: %s aborted at %s (%s): %s", o.Host, o.Step, o.AbortedAt, o.Kind, o.Reason)
}

// ConfigError is a configuration failure. It aborts a run before any host work starts.
type ConfigError struct {
	Source string
	Err    error
}

// NewConfigError wraps err as a configuration failure attributed to source.
func NewConfigError(source string, err error) *ConfigError {
	return &ConfigError{Source: source, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
