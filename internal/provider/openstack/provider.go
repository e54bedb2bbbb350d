// Package openstack provides the compute adapter. It drives the local
// openstack CLI against a named cloud from clouds.yaml.
package openstack

import (
	"context"
	"fmt"

	"github.com/hvmigrate/hvmigrate/internal/common"
	"github.com/hvmigrate/hvmigrate/internal/result"
)

const (
	cliName     = "openstack"
	computeUnit = "nova-compute"
)

// Runner executes a local command. common.RunCommand is the default.
type Runner func(ctx context.Context, env []string, name string, args ...string) (result.Command, error)

// Provider manages one hypervisor's compute service.
type Provider struct {
	cloud    string
	env      []string
	hostname string
	run      Runner
}

// NewProvider creates a Provider. Credentials are passed to the CLI through the environment.
func NewProvider(cloud, username, password, hostname string) *Provider {
	return &Provider{
		cloud:    cloud,
		env:      []string{"OS_USERNAME=" + username, "OS_PASSWORD=" + password},
		hostname: hostname,
		run:      common.RunCommand,
	}
}

// WithRunner replaces the command runner.
func (p *Provider) WithRunner(run Runner) *Provider {
	p.run = run
	return p
}

func (p *Provider) openstack(ctx context.Context, args ...string) (result.Command, error) {
	full := append([]string{"--os-cloud", p.cloud}, args...)
	return p.run(ctx, p.env, cliName, full...)
}

// Disable disables the compute service with reason.
func (p *Provider) Disable(ctx context.Context, reason string) (result.Command, error) {
	return p.openstack(ctx, "compute", "service", "set", "--disable", "--disable-reason", reason, p.hostname, computeUnit)
}

// Enable re-enables the compute service.
func (p *Provider) Enable(ctx context.Context) (result.Command, error) {
	return p.openstack(ctx, "compute", "service", "set", "--enable", p.hostname, computeUnit)
}

// Show returns the full hypervisor record.
func (p *Provider) Show(ctx context.Context) (result.Command, error) {
	return p.openstack(ctx, "hypervisor", "show", p.hostname)
}

// ListWorkloads returns the IDs of every server on the hypervisor, across all projects.
func (p *Provider) ListWorkloads(ctx context.Context) ([]string, result.Command, error) {
	cmd, err := p.openstack(ctx, "server", "list", "--host", p.hostname, "--all-projects", "-f", "value", "-c", "ID")
	if err != nil {
		return nil, cmd, err
	}
	if cmd.Failed() {
		return nil, cmd, fmt.Errorf("listing servers on %s: exit code %d", p.hostname, cmd.ExitCode)
	}
	return common.NonEmptyLines(cmd.Stdout), cmd, nil
}
