package workflow

import (
	"context"

	"github.com/hvmigrate/hvmigrate/internal/credentials"
	"github.com/hvmigrate/hvmigrate/internal/result"
)

// Step names.
const (
	StepSetup         = "setup"
	StepPreDrain      = "pre_drain"
	StepPreReinstall  = "pre_reinstall"
	StepPostReinstall = "post_reinstall"
	StepNoop          = "noop"
)

// Guard decides, when its operation is reached, whether the operation runs.
type Guard func(ctx context.Context, h *HostContext) (bool, error)

// Operation is one named sub-operation of a step.
type Operation struct {
	Name string
	// Guard is nil for operations that always run.
	Guard Guard
	Run   func(ctx context.Context, h *HostContext) result.Result
}

// Step is a static, ordered list of operations.
type Step struct {
	Name    string
	Aliases []string
	// Summary lines describe the step in CLI help.
	Summary []string
	// Requires lists the credential sections the step's adapters need.
	Requires   []credentials.Section
	Operations []Operation
}

// Setup grants the operator's key root access to the hypervisor.
func Setup() *Step {
	return &Step{
		Name:     StepSetup,
		Summary:  []string{"adds your public SSH key to the hypervisor to grant access as root"},
		Requires: []credentials.Section{credentials.SSH, credentials.Jira},
		Operations: []Operation{
			{Name: "ensure-remote-admin-access", Run: ensureRemoteAdminAccess},
		},
	}
}

// PreDrain checks the hypervisor and takes it out of scheduling.
func PreDrain() *Step {
	return &Step{
		Name: StepPreDrain,
		Summary: []string{
			"verifies the hypervisor still runs the source OS release",
			"updates the qemu-kvm package",
			"verifies the hypervisor is registered in Netbox",
			"checks the status of the hypervisor in Netbox",
			"disables the hypervisor in OpenStack",
			"lists the VMs currently defined on the hypervisor",
		},
		Requires: []credentials.Section{
			credentials.SSH, credentials.Jira, credentials.Netbox, credentials.OpenStack, credentials.General,
		},
		Operations: []Operation{
			{Name: "verify-source-os-version", Run: verifySourceOSVersion},
			{Name: "apply-hypervisor-hotfix-update", Run: applyHotfixUpdate},
			{Name: "verify-inventory-registration", Run: verifyInventoryRegistration},
			{Name: "verify-inventory-status-precondition", Run: verifyInventoryStatus},
			{Name: "disable-compute-service", Run: disableComputeService},
			{Name: "snapshot-compute-service-state", Run: snapshotComputeService},
			{Name: "report-running-workload-count", Run: reportWorkloadCount},
		},
	}
}

// PreReinstall empties, silences and re-provisions the hypervisor.
func PreReinstall() *Step {
	return &Step{
		Name: StepPreReinstall,
		Summary: []string{
			"ensures the hypervisor is not hosting any VM",
			"lists block devices",
			"gets GPU info",
			"creates silences in Alertmanager",
			`changes the status of the hypervisor in Netbox to "planned"`,
			"re-imports the host in Aquilon",
			"removes unnecessary interfaces and disks in Aquilon",
			"recompiles the host in Aquilon with the right domain, personality and OS",
			"PXE-switches the host in Aquilon",
			"gets Mellanox info and runs the interconnect playbook if needed",
			"reports the IPMI address",
		},
		Requires: []credentials.Section{
			credentials.SSH, credentials.Jira, credentials.Netbox, credentials.OpenStack,
			credentials.Alertmanager, credentials.Aquilon, credentials.Kayobe, credentials.General,
		},
		Operations: []Operation{
			{Name: "ensure-no-active-workloads", Run: ensureNoActiveWorkloads},
			{Name: "verify-workload-list-empty", Run: verifyWorkloadListEmpty},
			{Name: "report-block-devices", Run: reportBlockDevices},
			{Name: "report-gpu-devices", Guard: hasGPU, Run: reportGPUDevices},
			{Name: "create-monitoring-silence", Run: createMonitoringSilence},
			{Name: "set-inventory-status", Run: setInventoryStatus("planned")},
			{Name: "probe-interconnect-hardware", Run: probeInterconnectHardware},
			{Name: "trigger-provisioning-reimport", Run: provisioningCommand("reimport", Provisioning.Reimport)},
			{Name: "remove-unmanaged-network-interfaces", Run: provisioningCommand("remove unmanaged interfaces", Provisioning.RemoveUnmanagedInterfaces)},
			{Name: "remove-unmanaged-storage-disks", Run: removeUnmanagedStorageDisks},
			{Name: "recompile-provisioning-profile", Run: provisioningCommand("recompile", Provisioning.Recompile)},
			{Name: "trigger-network-boot-switch", Run: provisioningCommand("PXE switch", Provisioning.PXESwitch)},
			{Name: "run-interconnect-configuration-playbook", Guard: hasInterconnect, Run: runInterconnectPlaybook},
			{Name: "report-management-network-address", Run: reportManagementAddress},
		},
	}
}

// PostReinstall verifies the new OS and returns the hypervisor to production.
func PostReinstall() *Step {
	return &Step{
		Name: StepPostReinstall,
		Summary: []string{
			"ensures the hypervisor now runs the target OS release",
			"lists block devices",
			"gets GPU info",
			"checks the hypervisor boots with EFI",
			"applies hardware specific fixes",
			`changes the status in Netbox to "active" and the role to the production compute role`,
		},
		Requires: []credentials.Section{
			credentials.SSH, credentials.Jira, credentials.Netbox, credentials.Aquilon,
		},
		Operations: []Operation{
			{Name: "verify-target-os-version", Run: verifyTargetOSVersion},
			{Name: "report-block-devices", Run: reportBlockDevices},
			{Name: "report-gpu-devices", Guard: hasGPU, Run: reportGPUDevices},
			{Name: "verify-firmware-boot-mode", Run: verifyFirmwareBootMode},
			{Name: "apply-hardware-model-specific-fixups", Run: applyHardwareFixups},
			{Name: "set-inventory-status-and-role", Run: setInventoryStatusAndRole},
		},
	}
}

// Noop runs nothing. It checks that every host context can be built.
func Noop() *Step {
	return &Step{
		Name:    StepNoop,
		Aliases: []string{"noops"},
		Summary: []string{"does nothing; checks that every host can be set up"},
	}
}
