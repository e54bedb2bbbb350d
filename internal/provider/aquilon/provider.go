// Package aquilon provides the provisioning adapter. Helper scripts run on the
// Aquilon broker host over SSH.
package aquilon

import (
	"context"
	"fmt"
	"strings"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

// Executor runs a command on the broker host.
type Executor interface {
	Run(ctx context.Context, command, user string) (result.Command, error)
}

// Provider provisions one hypervisor through Aquilon.
type Provider struct {
	exec       Executor
	aqHost     string
	scriptsDir string
	hostname   string
}

// NewProvider creates a Provider. aqHost is exported as AQHOST for the aq tools;
// scriptsDir is relative to the login directory on the broker host.
func NewProvider(exec Executor, aqHost, scriptsDir, hostname string) *Provider {
	return &Provider{exec: exec, aqHost: aqHost, scriptsDir: strings.TrimRight(scriptsDir, "/"), hostname: hostname}
}

func (p *Provider) envPrefix() string {
	return fmt.Sprintf("export AQHOST=%s; export AQSERVICE=aqd;", p.aqHost) +
		"export PATH=/opt/aquilon/bin/:$PATH;" +
		"export PATH=/var/quattor/bin/:$PATH;"
}

// run executes cmd with the aq environment. The reported command omits the prefix.
func (p *Provider) run(ctx context.Context, cmd string) (result.Command, error) {
	out, err := p.exec.Run(ctx, p.envPrefix()+cmd, "")
	out.Command = cmd
	return out, err
}

func (p *Provider) python(ctx context.Context, script string) (result.Command, error) {
	return p.run(ctx, fmt.Sprintf("python3 ./%s/%s %s", p.scriptsDir, script, p.hostname))
}

// Reimport re-imports the host definition.
func (p *Provider) Reimport(ctx context.Context) (result.Command, error) {
	return p.run(ctx, fmt.Sprintf("./%s/reimport-host.sh %s", p.scriptsDir, p.hostname))
}

// RemoveUnmanagedInterfaces removes every interface other than bmc0 and eth0.
func (p *Provider) RemoveUnmanagedInterfaces(ctx context.Context) (result.Command, error) {
	return p.python(ctx, "remove_interfaces.py")
}

// RemoveUnmanagedDisk removes registered SATA disks from A100 hosts. For other
// hosts it does nothing and reports applied=false.
func (p *Provider) RemoveUnmanagedDisk(ctx context.Context) (cmd result.Command, applied bool, err error) {
	if !strings.Contains(p.hostname, "a100") {
		return result.Command{}, false, nil
	}
	cmd, err = p.python(ctx, "remove_sata_disk.py")
	return cmd, true, err
}

// Recompile recompiles the host with its target domain, personality and OS.
func (p *Provider) Recompile(ctx context.Context) (result.Command, error) {
	return p.python(ctx, "make_host.py")
}

// PXESwitch switches the host to network boot.
func (p *Provider) PXESwitch(ctx context.Context) (result.Command, error) {
	return p.python(ctx, "pxeswitch_host.py")
}

// HardwareModel returns the hardware model Aquilon has on record.
func (p *Provider) HardwareModel(ctx context.Context) (string, result.Command, error) {
	cmd, err := p.run(ctx, "myaq-get-model "+p.hostname)
	if err != nil {
		return "", cmd, err
	}
	if cmd.Failed() {
		return "", cmd, fmt.Errorf("reading hardware model of %s: exit code %d", p.hostname, cmd.ExitCode)
	}
	return strings.TrimSpace(cmd.Stdout), cmd, nil
}
