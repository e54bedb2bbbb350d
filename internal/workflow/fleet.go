package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hvmigrate/hvmigrate/internal/logger"
	"github.com/hvmigrate/hvmigrate/internal/metrics"
	"github.com/hvmigrate/hvmigrate/internal/result"
)

// Dispatcher fans a step out across hosts and waits for all of them.
type Dispatcher struct {
	// MaxWorkers bounds concurrent hosts. Zero means one worker per host.
	MaxWorkers int
	// Serial runs hosts one at a time in roster order.
	Serial  bool
	Log     *logger.Logger
	Metrics *metrics.Collector
}

// Dispatch runs step on every host and returns the outcomes in the order of hosts.
// It returns only after every host has reached a terminal outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, step *Step, hosts []*HostContext) []result.Outcome {
	outcomes := make([]result.Outcome, len(hosts))
	runner := NewStepRunner(step, d.Metrics)

	if d.Serial {
		for i, h := range hosts {
			outcomes[i] = d.runHost(ctx, runner, step, h)
		}
		return outcomes
	}

	var g errgroup.Group
	if d.MaxWorkers > 0 {
		g.SetLimit(d.MaxWorkers)
	}
	for i, h := range hosts {
		g.Go(func() error {
			outcomes[i] = d.runHost(ctx, runner, step, h)
			return nil
		})
	}
	// Workers never return errors; Wait is only the barrier.
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) runHost(ctx context.Context, runner *StepRunner, step *Step, h *HostContext) (out result.Outcome) {
	d.Metrics.HostStarted()
	defer func() {
		if p := recover(); p != nil {
			reason := fmt.Sprintf("panic: %v", p)
			if d.Log != nil {
				d.Log.Errorf("Worker for %s failed: %s", h.Hostname(), reason)
			}
			out = result.AbortedAt(h.Hostname(), step.Name, "", result.Unexpected, reason, 0)
		}
		d.Metrics.HostFinished()
		if out.Completed {
			d.Metrics.RecordStep(step.Name, "completed")
		} else {
			d.Metrics.RecordStep(step.Name, out.Kind.String())
		}
	}()

	h.Log.Infof("Starting %s (ticket %s)", step.Name, h.Record.TicketID)
	return runner.Run(ctx, h)
}
