package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hvmigrate/hvmigrate/internal/metrics"
	"github.com/hvmigrate/hvmigrate/internal/result"
)

// StepRunner executes one step's operations, in order, for one host.
type StepRunner struct {
	step    *Step
	metrics *metrics.Collector
}

// NewStepRunner creates a runner for step. collector may be nil.
func NewStepRunner(step *Step, collector *metrics.Collector) *StepRunner {
	return &StepRunner{step: step, metrics: collector}
}

// Run drives every operation until one fails. It never panics and never
// returns an error: failures end up in the Outcome and in the host's ticket.
func (r *StepRunner) Run(ctx context.Context, h *HostContext) result.Outcome {
	log := h.Log
	executed := 0

	for _, op := range r.step.Operations {
		if op.Guard != nil {
			run, err := r.guard(ctx, h, op)
			if err != nil {
				res := result.AdapterFailed(fmt.Errorf("evaluating the condition for %s: %w", op.Name, err))
				return r.abort(ctx, h, op.Name, res, executed)
			}
			if !run {
				log.Debugf("Skipping %s", op.Name)
				h.Sink.AppendMessage(fmt.Sprintf("%s: skipped", op.Name))
				if out, ok := r.flush(ctx, h, op.Name, executed); !ok {
					return out
				}
				continue
			}
		}

		log.Debugf("Running %s", op.Name)
		start := time.Now()
		res := r.invoke(ctx, h, op)
		r.metrics.RecordOperation(r.step.Name, op.Name, res.Kind.String(), time.Since(start))
		executed++

		if !res.Ok() {
			return r.abort(ctx, h, op.Name, res, executed)
		}

		r.report(h, op.Name, res)
		if out, ok := r.flush(ctx, h, op.Name, executed); !ok {
			return out
		}
	}

	log.Successf("Step %s completed (%d operation(s))", r.step.Name, executed)
	return result.Completed(h.Hostname(), r.step.Name, executed)
}

// invoke runs one operation, converting a panic into an unexpected failure.
func (r *StepRunner) invoke(ctx context.Context, h *HostContext, op Operation) (res result.Result) {
	defer func() {
		if p := recover(); p != nil {
			h.Log.Debugf("Panic in %s: %v\n%s", op.Name, p, debug.Stack())
			res = result.UnexpectedFailed(fmt.Errorf("panic in %s: %v", op.Name, p))
		}
	}()
	return op.Run(ctx, h)
}

func (r *StepRunner) guard(ctx context.Context, h *HostContext, op Operation) (run bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return op.Guard(ctx, h)
}

// flush delivers the progress of name to the ticket. A delivery failure ends
// the step as an adapter failure.
func (r *StepRunner) flush(ctx context.Context, h *HostContext, name string, executed int) (result.Outcome, bool) {
	if err := h.Sink.Flush(ctx); err != nil {
		res := result.AdapterFailed(fmt.Errorf("reporting %s to the ticket: %w", name, err))
		h.Log.Errorf("Failed to flush progress for %s: %v", name, err)
		return result.AbortedAt(h.Hostname(), r.step.Name, name, res.Kind, res.Summary, executed), false
	}
	return result.Outcome{}, true
}

// report appends the command detail and summary of a finished operation.
func (r *StepRunner) report(h *HostContext, name string, res result.Result) {
	for _, cmd := range res.Commands {
		h.Sink.AppendMessage(cmd.Report())
	}
	if res.Summary != "" {
		h.Sink.AppendMessage(fmt.Sprintf("%s: %s", name, res.Summary))
	}
}

// abort reports a failure to the ticket and fires the step's failure transition.
func (r *StepRunner) abort(ctx context.Context, h *HostContext, name string, res result.Result, executed int) result.Outcome {
	reason := res.Summary
	if reason == "" && res.Err != nil {
		reason = res.Err.Error()
	}

	r.report(h, name, res)
	if len(res.Commands) == 0 && res.Err != nil && res.Kind != result.Precondition {
		h.Sink.AppendMessage("Exception captured")
		h.Sink.AppendBlock(res.Err.Error())
	}
	banner := fmt.Sprintf("An ERROR occurred %s. Aborting automation for hypervisor %s", reason, h.Hostname())
	h.Log.Error(banner)
	h.Sink.AppendMessage(banner)
	if err := h.Sink.Flush(ctx); err != nil {
		h.Log.Errorf("Failed to report the failure to the ticket: %v", err)
	}

	if state, ok := h.Config.FailureTransition(r.step.Name); ok {
		if err := h.Sink.TransitionTo(ctx, state); err != nil {
			h.Log.Errorf("Failed to move the ticket to %q: %v", state, err)
		}
	}

	return result.AbortedAt(h.Hostname(), r.step.Name, name, res.Kind, reason, executed)
}
