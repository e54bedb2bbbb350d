// Package kayobe provides the playbook adapter. Wrapper scripts run on the
// Kayobe management host over SSH with agent forwarding.
package kayobe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

// ErrPlaybookFailed is returned when a playbook reports a fatal task.
var ErrPlaybookFailed = errors.New("playbook reported a fatal error")

// Executor runs a command on the management host.
type Executor interface {
	Run(ctx context.Context, command, user string) (result.Command, error)
}

// Provider runs playbooks against one hypervisor.
type Provider struct {
	exec       Executor
	scriptsDir string
	hostname   string
}

// NewProvider creates a Provider. scriptsDir is relative to the home directory on the management host.
func NewProvider(exec Executor, scriptsDir, hostname string) *Provider {
	return &Provider{exec: exec, scriptsDir: strings.TrimRight(scriptsDir, "/"), hostname: hostname}
}

func (p *Provider) playbook(ctx context.Context, script string) (result.Command, error) {
	cmd, err := p.exec.Run(ctx, fmt.Sprintf("~/%s/%s %s", p.scriptsDir, script, p.hostname), "")
	if err != nil {
		return cmd, err
	}
	if !cmd.Failed() && strings.Contains(cmd.Stdout, "fatal") {
		return cmd, fmt.Errorf("%s on %s: %w", script, p.hostname, ErrPlaybookFailed)
	}
	return cmd, nil
}

// RunInterconnectPlaybook configures the Mellanox interconnect.
func (p *Provider) RunInterconnectPlaybook(ctx context.Context) (result.Command, error) {
	return p.playbook(ctx, "mellanox_playbook.sh")
}
