package workflow

import (
	"github.com/hvmigrate/hvmigrate/internal/config"
	"github.com/hvmigrate/hvmigrate/internal/credentials"
	"github.com/hvmigrate/hvmigrate/internal/fixups"
	"github.com/hvmigrate/hvmigrate/internal/logger"
	"github.com/hvmigrate/hvmigrate/internal/roster"
	"github.com/hvmigrate/hvmigrate/internal/timewindow"
)

// Adapters bundles one host's external-system clients. A field is nil when
// its credential section is absent; steps that need it are rejected up front.
type Adapters struct {
	Sink         Sink
	Inventory    Inventory
	Compute      Compute
	Remote       Remote
	Provisioning Provisioning
	Monitoring   Monitoring
	Playbooks    Playbooks
}

// HostContext is everything a step needs for one host. It is owned by a single worker.
type HostContext struct {
	Record roster.HostRecord
	Window timewindow.Window
	Creds  *credentials.Set
	Config *config.Config
	Fixups *fixups.Registry
	Log    *logger.Logger
	Adapters
}

// Hostname returns the host's name.
func (h *HostContext) Hostname() string { return h.Record.Hostname }

// initials returns the operator initials used in reasons and comments.
func (h *HostContext) initials() string { return h.Creds.Initials() }
