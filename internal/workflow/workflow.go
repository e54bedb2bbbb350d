package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hvmigrate/hvmigrate/internal/common"
	"github.com/hvmigrate/hvmigrate/internal/config"
	"github.com/hvmigrate/hvmigrate/internal/credentials"
	"github.com/hvmigrate/hvmigrate/internal/fixups"
	"github.com/hvmigrate/hvmigrate/internal/logger"
	"github.com/hvmigrate/hvmigrate/internal/metrics"
	"github.com/hvmigrate/hvmigrate/internal/report"
	"github.com/hvmigrate/hvmigrate/internal/result"
	"github.com/hvmigrate/hvmigrate/internal/roster"
	"github.com/hvmigrate/hvmigrate/internal/timewindow"
)

// Coordinator loads the run's shared inputs once and runs steps across the roster.
type Coordinator struct {
	config  *config.Config
	logger  *logger.Logger
	creds   *credentials.Set
	roster  *roster.Roster
	window  timewindow.Window
	runID   string
	fixups  *fixups.Registry
	metrics *metrics.Collector
	factory AdapterFactory
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAdapterFactory replaces the adapters built from credentials.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(c *Coordinator) { c.factory = f }
}

// WithMetrics records step and operation outcomes in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = collector }
}

// WithWindow replaces the maintenance window computed at construction.
func WithWindow(w timewindow.Window) Option {
	return func(c *Coordinator) { c.window = w }
}

// New loads credentials and roster and computes the maintenance window.
// Every error it returns is a *result.ConfigError.
func New(cfg *config.Config, credsPath, rosterPath string, log *logger.Logger, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, result.NewConfigError("config", err)
	}
	creds, err := credentials.Load(credsPath)
	if err != nil {
		return nil, err
	}
	hosts, err := roster.Load(rosterPath)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log = log.WithField("run", runID)
	log.Infof("Loaded %d hypervisor(s) from %s", hosts.Len(), rosterPath)
	c := &Coordinator{
		config: cfg,
		logger: log,
		creds:  creds,
		roster: hosts,
		window: timewindow.New(),
		runID:  runID,
		fixups: fixups.NewDefaultRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunID identifies this run in logs and ticket comments.
func (c *Coordinator) RunID() string { return c.runID }

// Window returns the maintenance window shared by every host.
func (c *Coordinator) Window() timewindow.Window { return c.window }

// Run executes stepName on every roster host. A configuration problem is
// returned as an error before any host work starts; host failures are only
// reported in the returned outcomes, in roster order.
func (c *Coordinator) Run(ctx context.Context, stepName string) ([]result.Outcome, error) {
	step, err := DefaultRegistry.Get(stepName)
	if err != nil {
		return nil, result.NewConfigError("step", err)
	}
	if err := c.creds.Require(step.Requires...); err != nil {
		return nil, err
	}
	if dups := c.roster.Duplicates(); len(dups) > 0 {
		c.logger.Warningf("Roster lists these hypervisors more than once: %s", strings.Join(dups, ", "))
	}

	factory := c.factory
	if factory == nil {
		if err := checkLocalTools(step); err != nil {
			return nil, err
		}
		header := fmt.Sprintf("%s (run %s)", report.DefaultHeader, c.runID)
		factory, err = NewAdapterFactory(c.config, c.creds, header)
		if err != nil {
			return nil, err
		}
	}

	hosts, err := c.hostContexts(factory)
	if err != nil {
		return nil, err
	}

	c.logger.Step(step.Name, len(hosts))
	c.logger.Infof("Maintenance window: %s", c.window)

	d := &Dispatcher{
		MaxWorkers: c.config.MaxWorkers,
		Serial:     c.config.Serial,
		Log:        c.logger,
		Metrics:    c.metrics,
	}
	outcomes := d.Dispatch(ctx, step, hosts)

	completed := 0
	for _, o := range outcomes {
		if o.Completed {
			completed++
			c.logger.Successf("%s", o)
		} else {
			c.logger.Warningf("%s", o)
		}
	}
	c.logger.Infof("Step %s finished: %d of %d hypervisor(s) completed", step.Name, completed, len(outcomes))
	return outcomes, nil
}

// localTools lists the local commands an adapter drives, by credential section.
var localTools = map[credentials.Section]string{
	credentials.OpenStack: "openstack",
}

func checkLocalTools(step *Step) error {
	for _, sec := range step.Requires {
		if tool, ok := localTools[sec]; ok {
			if err := common.CheckCommand(tool); err != nil {
				return result.NewConfigError(string(sec), err)
			}
		}
	}
	return nil
}

func (c *Coordinator) hostContexts(factory AdapterFactory) ([]*HostContext, error) {
	records := c.roster.Records()
	hosts := make([]*HostContext, 0, len(records))
	for _, rec := range records {
		h := &HostContext{
			Record: rec,
			Window: c.window,
			Creds:  c.creds,
			Config: c.config,
			Fixups: c.fixups,
			Log:    c.logger.WithHost(rec.Hostname),
		}
		adapters, err := factory(h)
		if err != nil {
			if result.IsConfigError(err) {
				return nil, err
			}
			return nil, result.NewConfigError(rec.Hostname, err)
		}
		h.Adapters = adapters
		hosts = append(hosts, h)
	}
	return hosts, nil
}
