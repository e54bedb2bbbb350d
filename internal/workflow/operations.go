package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hvmigrate/hvmigrate/internal/common"
	"github.com/hvmigrate/hvmigrate/internal/fixups"
	"github.com/hvmigrate/hvmigrate/internal/result"
)

const (
	osVersionCommand    = "cat /etc/os-release | grep VERSION_ID | awk -F= '{print $2}'"
	hotfixCommand       = "dnf -y update qemu-kvm"
	resolvConfCommand   = "cat /etc/resolv.conf"
	virshListCommand    = "virsh list --all"
	blockDevicesCommand = "lsblk"
	gpuProbeCommand     = "lspci | grep -i nvidia"
	interconnectCommand = "lspci | grep -i mellanox"
	firmwareCommand     = "ls /sys/firmware/ | grep efi"
	rootProbeCommand    = "true"

	// grepNoMatch is the exit code grep uses when nothing matched.
	grepNoMatch = 1
)

// runRemote runs command on the host and fails on transport errors and nonzero exits.
func runRemote(ctx context.Context, h *HostContext, what, command, user string) (result.Command, error) {
	cmd, err := h.Remote.Run(ctx, command, user)
	if err != nil {
		return cmd, fmt.Errorf("%s: %w", what, err)
	}
	if cmd.Failed() {
		return cmd, fmt.Errorf("%s: exit code %d", what, cmd.ExitCode)
	}
	return cmd, nil
}

// probeRemote runs a grep pipeline as root. No match is not a failure.
func probeRemote(ctx context.Context, h *HostContext, what, command string) (result.Command, error) {
	cmd, err := h.Remote.Run(ctx, command, fixups.RootUser)
	if err != nil {
		return cmd, fmt.Errorf("%s: %w", what, err)
	}
	if cmd.Failed() && cmd.ExitCode != grepNoMatch {
		return cmd, fmt.Errorf("%s: exit code %d", what, cmd.ExitCode)
	}
	return cmd, nil
}

func verifySourceOSVersion(ctx context.Context, h *HostContext) result.Result {
	return verifyOSVersion(ctx, h, h.Config.SourceOSMajor, "Ready to start.")
}

func verifyTargetOSVersion(ctx context.Context, h *HostContext) result.Result {
	return verifyOSVersion(ctx, h, h.Config.TargetOSMajor, "Ready to continue.")
}

func verifyOSVersion(ctx context.Context, h *HostContext, major, ready string) result.Result {
	cmd, err := runRemote(ctx, h, "reading the OS release", osVersionCommand, fixups.RootUser)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	version := strings.Trim(strings.TrimSpace(cmd.Stdout), `"`)
	if !matchesMajor(version, major) {
		return result.PreconditionFailed(
			fmt.Sprintf("the hypervisor %s runs OS release %q, not %s", h.Hostname(), version, major), cmd)
	}
	return result.Success(fmt.Sprintf("the hypervisor %s runs OS release %s. %s", h.Hostname(), version, ready), cmd)
}

// matchesMajor reports whether version is major itself or a minor release of it.
func matchesMajor(version, major string) bool {
	return version == major || strings.HasPrefix(version, major+".")
}

func applyHotfixUpdate(ctx context.Context, h *HostContext) result.Result {
	cmd, err := h.Remote.Run(ctx, hotfixCommand, fixups.RootUser)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("updating qemu-kvm: %w", err), cmd)
	}
	if !cmd.Failed() {
		return result.Success("qemu-kvm updated", cmd)
	}
	h.Sink.AppendMessage("command failed. Checking the content of file /etc/resolv.conf")
	resolv, rerr := h.Remote.Run(ctx, resolvConfCommand, fixups.RootUser)
	if rerr != nil {
		h.Log.Warningf("Failed to read /etc/resolv.conf: %v", rerr)
		return result.CommandFailed("updating qemu-kvm failed", cmd)
	}
	return result.CommandFailed("updating qemu-kvm failed", cmd, resolv)
}

func verifyInventoryRegistration(ctx context.Context, h *HostContext) result.Result {
	exists, err := h.Inventory.Exists(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("looking up the hypervisor in Netbox: %w", err))
	}
	if !exists {
		return result.PreconditionFailed("there is no info in Netbox for this hypervisor")
	}
	url, err := h.Inventory.WebURL(ctx)
	if err != nil {
		return result.AdapterFailed(err)
	}
	return result.Success(fmt.Sprintf("Confirmed that hypervisor %s is registered in Netbox: %s", h.Hostname(), url))
}

func verifyInventoryStatus(ctx context.Context, h *HostContext) result.Result {
	status, err := h.Inventory.Status(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("reading the Netbox status: %w", err))
	}
	url, err := h.Inventory.WebURL(ctx)
	if err != nil {
		return result.AdapterFailed(err)
	}
	switch status {
	case "active", "offline":
		return result.Success(fmt.Sprintf("status of hypervisor %s in Netbox is %s. Ready to start.\n%s", h.Hostname(), status, url))
	}
	return result.PreconditionFailed(
		fmt.Sprintf("status of hypervisor %s in Netbox is %q, neither active nor offline", h.Hostname(), status))
}

func disableComputeService(ctx context.Context, h *HostContext) result.Result {
	reason := fmt.Sprintf("%s - %s", h.Config.DisableReason, h.initials())
	cmd, err := h.Compute.Disable(ctx, reason)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("disabling the compute service: %w", err), cmd)
	}
	if cmd.Failed() {
		return result.CommandFailed("disabling the compute service", cmd)
	}
	return result.Success("compute service disabled", cmd)
}

func snapshotComputeService(ctx context.Context, h *HostContext) result.Result {
	cmd, err := h.Compute.Show(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("showing the hypervisor: %w", err), cmd)
	}
	if cmd.Failed() {
		return result.CommandFailed("showing the hypervisor", cmd)
	}
	return result.Success("full status of the hypervisor recorded", cmd)
}

func reportWorkloadCount(ctx context.Context, h *HostContext) result.Result {
	cmd, err := runRemote(ctx, h, "listing the VMs", virshListCommand, fixups.RootUser)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	return result.Success(fmt.Sprintf("%d VM(s) defined on the hypervisor", len(virshDomains(cmd.Stdout))), cmd)
}

// virshDomains returns the rows of `virsh list --all` below the header separator.
func virshDomains(out string) []string {
	lines := common.NonEmptyLines(out)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "---") {
			return lines[i+1:]
		}
	}
	return nil
}

func ensureNoActiveWorkloads(ctx context.Context, h *HostContext) result.Result {
	ids, cmd, err := h.Compute.ListWorkloads(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("listing servers on the hypervisor: %w", err), cmd)
	}
	if len(ids) > 0 {
		return result.PreconditionFailed(
			fmt.Sprintf("hypervisor still not empty: %d server(s) in OpenStack", len(ids)), cmd)
	}
	return result.Success("no servers left on the hypervisor in OpenStack", cmd)
}

func verifyWorkloadListEmpty(ctx context.Context, h *HostContext) result.Result {
	cmd, err := runRemote(ctx, h, "listing the VMs", virshListCommand, fixups.RootUser)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	if n := len(virshDomains(cmd.Stdout)); n > 0 {
		return result.PreconditionFailed(fmt.Sprintf("hypervisor still not empty: %d VM(s) defined", n), cmd)
	}
	return result.Success("the hypervisor is empty", cmd)
}

func reportBlockDevices(ctx context.Context, h *HostContext) result.Result {
	cmd, err := runRemote(ctx, h, "listing block devices", blockDevicesCommand, fixups.RootUser)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	return result.Success("block devices recorded", cmd)
}

func hasGPU(ctx context.Context, h *HostContext) (bool, error) {
	return h.Inventory.HasGPU(ctx)
}

func reportGPUDevices(ctx context.Context, h *HostContext) result.Result {
	cmd, err := probeRemote(ctx, h, "listing nvidia cards", gpuProbeCommand)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	return result.Success("nvidia cards recorded", cmd)
}

func createMonitoringSilence(ctx context.Context, h *HostContext) result.Result {
	comment := fmt.Sprintf("%s %s - %s", h.Config.SilenceComment, h.Window.StartString(), h.initials())
	lines := []string{fmt.Sprintf("silences created in Alertmanager, from %s to %s",
		h.Window.StartString(), h.Window.EndString())}
	for _, label := range []string{"hostname", "instance"} {
		id, err := h.Monitoring.CreateSilence(ctx, label, h.Hostname(), h.Window, comment)
		if err != nil {
			return result.AdapterFailed(fmt.Errorf("creating the %s silence: %w", label, err))
		}
		lines = append(lines, fmt.Sprintf("Silence for %s: %s", label, h.Monitoring.SilenceURL(id)))
	}
	return result.Success(strings.Join(lines, "\n"))
}

func setInventoryStatus(status string) func(context.Context, *HostContext) result.Result {
	return func(ctx context.Context, h *HostContext) result.Result {
		if err := h.Inventory.SetStatus(ctx, status); err != nil {
			return result.AdapterFailed(fmt.Errorf("updating the Netbox status: %w", err))
		}
		url, err := h.Inventory.WebURL(ctx)
		if err != nil {
			return result.AdapterFailed(err)
		}
		return result.Success(fmt.Sprintf("Successfully updated status for device '%s' to '%s' in Netbox:\n%s",
			h.Hostname(), status, url))
	}
}

func setInventoryStatusAndRole(ctx context.Context, h *HostContext) result.Result {
	res := setInventoryStatus("active")(ctx, h)
	if !res.Ok() {
		return res
	}
	role := h.Config.ProductionRole
	if err := h.Inventory.SetRole(ctx, role); err != nil {
		return result.AdapterFailed(fmt.Errorf("updating the Netbox role: %w", err))
	}
	return result.Success(fmt.Sprintf("%s\nSuccessfully updated role for device '%s' to '%s' in Netbox",
		res.Summary, h.Hostname(), role))
}

func probeInterconnectHardware(ctx context.Context, h *HostContext) result.Result {
	cmd, err := probeRemote(ctx, h, "probing mellanox cards", interconnectCommand)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	if strings.TrimSpace(cmd.Stdout) == "" {
		return result.Success("no mellanox cards found", cmd)
	}
	return result.Success("mellanox cards found", cmd)
}

// hasInterconnect re-probes the hardware. The host may have changed since the earlier probe.
func hasInterconnect(ctx context.Context, h *HostContext) (bool, error) {
	cmd, err := probeRemote(ctx, h, "probing mellanox cards", interconnectCommand)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(cmd.Stdout) != "", nil
}

func provisioningCommand(what string, call func(Provisioning, context.Context) (result.Command, error)) func(context.Context, *HostContext) result.Result {
	return func(ctx context.Context, h *HostContext) result.Result {
		cmd, err := call(h.Provisioning, ctx)
		if err != nil {
			return result.AdapterFailed(fmt.Errorf("aquilon %s: %w", what, err), cmd)
		}
		if cmd.Failed() {
			return result.CommandFailed("aquilon "+what, cmd)
		}
		return result.Success(fmt.Sprintf("aquilon %s done", what), cmd)
	}
}

func removeUnmanagedStorageDisks(ctx context.Context, h *HostContext) result.Result {
	cmd, applied, err := h.Provisioning.RemoveUnmanagedDisk(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("aquilon remove unmanaged disk: %w", err), cmd)
	}
	if !applied {
		return result.Success("no unmanaged disk to remove for this hardware")
	}
	if cmd.Failed() {
		return result.CommandFailed("aquilon remove unmanaged disk", cmd)
	}
	return result.Success("unmanaged disk removed in Aquilon", cmd)
}

func runInterconnectPlaybook(ctx context.Context, h *HostContext) result.Result {
	cmd, err := h.Playbooks.RunInterconnectPlaybook(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("running the mellanox playbook: %w", err), cmd)
	}
	if cmd.Failed() {
		return result.CommandFailed("running the mellanox playbook", cmd)
	}
	return result.Success("mellanox playbook completed", cmd)
}

func reportManagementAddress(ctx context.Context, h *HostContext) result.Result {
	addr, err := h.Inventory.ManagementAddress(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("reading the IPMI address: %w", err))
	}
	return result.Success(fmt.Sprintf("IPMI address for device %s according to Netbox: %s", h.Hostname(), addr))
}

func verifyFirmwareBootMode(ctx context.Context, h *HostContext) result.Result {
	cmd, err := probeRemote(ctx, h, "checking the firmware", firmwareCommand)
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	if strings.TrimSpace(cmd.Stdout) == "" {
		return result.PreconditionFailed("the hypervisor is not EFI enabled", cmd)
	}
	return result.Success("the hypervisor is EFI enabled", cmd)
}

func applyHardwareFixups(ctx context.Context, h *HostContext) result.Result {
	model, cmd, err := h.Provisioning.HardwareModel(ctx)
	if err != nil {
		return result.AdapterFailed(fmt.Errorf("reading the hardware model: %w", err), cmd)
	}
	fixup, ok := h.Fixups.Get(model)
	if !ok {
		return result.Success(fmt.Sprintf("no hardware specific fixes for model %q (fixes exist for %s)",
			model, strings.Join(h.Fixups.Models(), ", ")), cmd)
	}
	h.Sink.AppendMessage(fmt.Sprintf("Performing hardware specific fixes %s for model %s", fixup.Name(), model))
	res := fixup.Apply(ctx, h.Remote)
	res.Commands = append([]result.Command{cmd}, res.Commands...)
	return res
}

func ensureRemoteAdminAccess(ctx context.Context, h *HostContext) result.Result {
	user := h.Creds.SSH.Username
	probe, err := h.Remote.Run(ctx, rootProbeCommand, fixups.RootUser)
	if err == nil && !probe.Failed() {
		return result.Success(fmt.Sprintf("user %s already has root access to hypervisor %s", user, h.Hostname()))
	}
	h.Sink.AppendMessage(fmt.Sprintf("user %s does not have yet root access to hypervisor %s", user, h.Hostname()))

	pub, err := os.ReadFile(h.Creds.SSH.PublicKeyPath())
	if err != nil {
		return result.PreconditionFailed(fmt.Sprintf("cannot read the public key: %v", err))
	}
	key := strings.TrimSpace(string(pub))
	if key == "" {
		return result.PreconditionFailed("the public key file is empty")
	}
	command := fmt.Sprintf("sudo -S su -c %s", common.ShellQuote(fmt.Sprintf(
		`grep -qF "%s" /root/.ssh/authorized_keys || echo "%s" >> /root/.ssh/authorized_keys`, key, key)))
	cmd, err := runRemote(ctx, h, "adding the public key for root", command, "")
	if err != nil {
		return result.AdapterFailed(err, cmd)
	}
	return result.Success(fmt.Sprintf("user %s now has root access to hypervisor %s", user, h.Hostname()), cmd)
}
