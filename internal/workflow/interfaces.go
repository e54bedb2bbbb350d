// Package workflow defines the capabilities a reinstall step consumes and
// runs steps across the fleet.
package workflow

import (
	"context"

	"github.com/hvmigrate/hvmigrate/internal/result"
	"github.com/hvmigrate/hvmigrate/internal/timewindow"
)

// Sink collects progress for one host and delivers it to the host's ticket.
type Sink interface {
	AppendMessage(text string)
	AppendBlock(text string)
	Flush(ctx context.Context) error
	TransitionTo(ctx context.Context, state string) error
}

// Inventory is the host's record in the hardware inventory.
type Inventory interface {
	Exists(ctx context.Context) (bool, error)
	Status(ctx context.Context) (string, error)
	SetStatus(ctx context.Context, status string) error
	SetRole(ctx context.Context, role string) error
	HasGPU(ctx context.Context) (bool, error)
	ManagementAddress(ctx context.Context) (string, error)
	WebURL(ctx context.Context) (string, error)
}

// Compute manages the host's compute service.
type Compute interface {
	Disable(ctx context.Context, reason string) (result.Command, error)
	Enable(ctx context.Context) (result.Command, error)
	ListWorkloads(ctx context.Context) ([]string, result.Command, error)
	Show(ctx context.Context) (result.Command, error)
}

// Remote runs shell commands on the host. An empty user means the operator's own account.
type Remote interface {
	Run(ctx context.Context, command, user string) (result.Command, error)
}

// Provisioning drives the host's provisioning record.
type Provisioning interface {
	Reimport(ctx context.Context) (result.Command, error)
	RemoveUnmanagedInterfaces(ctx context.Context) (result.Command, error)
	RemoveUnmanagedDisk(ctx context.Context) (result.Command, bool, error)
	Recompile(ctx context.Context) (result.Command, error)
	PXESwitch(ctx context.Context) (result.Command, error)
	HardwareModel(ctx context.Context) (string, result.Command, error)
}

// Monitoring silences alerts.
type Monitoring interface {
	CreateSilence(ctx context.Context, label, value string, w timewindow.Window, comment string) (string, error)
	SilenceURL(id string) string
}

// Playbooks runs configuration playbooks against the host.
type Playbooks interface {
	RunInterconnectPlaybook(ctx context.Context) (result.Command, error)
}
