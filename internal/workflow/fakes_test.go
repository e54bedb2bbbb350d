package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hvmigrate/hvmigrate/internal/config"
	"github.com/hvmigrate/hvmigrate/internal/credentials"
	"github.com/hvmigrate/hvmigrate/internal/fixups"
	"github.com/hvmigrate/hvmigrate/internal/logger"
	"github.com/hvmigrate/hvmigrate/internal/result"
	"github.com/hvmigrate/hvmigrate/internal/roster"
	"github.com/hvmigrate/hvmigrate/internal/timewindow"
)

var (
	errBoom   = errors.New("boom")
	testStart = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
)

type fakeSink struct {
	mu          sync.Mutex
	messages    []string
	flushes     int
	flushErr    error
	transitions []string
}

func (s *fakeSink) AppendMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
}

func (s *fakeSink) AppendBlock(text string) { s.AppendMessage("{code}" + text + "{code}") }

func (s *fakeSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *fakeSink) TransitionTo(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, state)
	return nil
}

func (s *fakeSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.messages, "\n")
}

// fakeRemote answers by command; unknown commands succeed with empty output.
type fakeRemote struct {
	mu      sync.Mutex
	outputs map[string]result.Command
	errs    map[string]error
	calls   []string
	users   []string
}

func (r *fakeRemote) Run(_ context.Context, command, user string) (result.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, command)
	r.users = append(r.users, user)
	out := r.outputs[command]
	out.Command = command
	return out, r.errs[command]
}

func (r *fakeRemote) ran(command string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == command {
			return true
		}
	}
	return false
}

type fakeInventory struct {
	exists   bool
	status   string
	gpu      bool
	gpuErr   error
	address  string
	setErr   error
	statuses []string
	roles    []string
}

func (i *fakeInventory) Exists(context.Context) (bool, error)  { return i.exists, nil }
func (i *fakeInventory) Status(context.Context) (string, error) { return i.status, nil }
func (i *fakeInventory) SetStatus(_ context.Context, status string) error {
	if i.setErr != nil {
		return i.setErr
	}
	i.statuses = append(i.statuses, status)
	return nil
}
func (i *fakeInventory) SetRole(_ context.Context, role string) error {
	i.roles = append(i.roles, role)
	return nil
}
func (i *fakeInventory) HasGPU(context.Context) (bool, error)             { return i.gpu, i.gpuErr }
func (i *fakeInventory) ManagementAddress(context.Context) (string, error) { return i.address, nil }
func (i *fakeInventory) WebURL(context.Context) (string, error) {
	return "https://netbox.example.org/dcim/devices/7/", nil
}

type fakeCompute struct {
	workloads []string
	disabled  []string
	disableRC int
}

func (c *fakeCompute) Disable(_ context.Context, reason string) (result.Command, error) {
	c.disabled = append(c.disabled, reason)
	return result.Command{Command: "openstack compute service set --disable", ExitCode: c.disableRC}, nil
}
func (c *fakeCompute) Enable(context.Context) (result.Command, error) {
	return result.Command{Command: "openstack compute service set --enable"}, nil
}
func (c *fakeCompute) ListWorkloads(context.Context) ([]string, result.Command, error) {
	return c.workloads, result.Command{Command: "openstack server list", Stdout: strings.Join(c.workloads, "\n")}, nil
}
func (c *fakeCompute) Show(context.Context) (result.Command, error) {
	return result.Command{Command: "openstack hypervisor show", Stdout: "state | up"}, nil
}

type fakeProvisioning struct {
	calls   []string
	model   string
	applied bool
	failOn  string
}

func (p *fakeProvisioning) record(name string) (result.Command, error) {
	p.calls = append(p.calls, name)
	cmd := result.Command{Command: name}
	if name == p.failOn {
		cmd.ExitCode = 1
		cmd.Stderr = "aqd: failed"
	}
	return cmd, nil
}

func (p *fakeProvisioning) Reimport(context.Context) (result.Command, error) {
	return p.record("reimport")
}
func (p *fakeProvisioning) RemoveUnmanagedInterfaces(context.Context) (result.Command, error) {
	return p.record("remove_interfaces")
}
func (p *fakeProvisioning) RemoveUnmanagedDisk(context.Context) (result.Command, bool, error) {
	if !p.applied {
		return result.Command{}, false, nil
	}
	cmd, err := p.record("remove_sata_disk")
	return cmd, true, err
}
func (p *fakeProvisioning) Recompile(context.Context) (result.Command, error) {
	return p.record("make_host")
}
func (p *fakeProvisioning) PXESwitch(context.Context) (result.Command, error) {
	return p.record("pxeswitch_host")
}
func (p *fakeProvisioning) HardwareModel(context.Context) (string, result.Command, error) {
	return p.model, result.Command{Command: "myaq-get-model", Stdout: p.model}, nil
}

type fakeMonitoring struct {
	mu       sync.Mutex
	silences []string
	comments []string
	err      error
}

func (m *fakeMonitoring) CreateSilence(_ context.Context, label, value string, _ timewindow.Window, comment string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.silences = append(m.silences, label+"="+value)
	m.comments = append(m.comments, comment)
	return fmt.Sprintf("s-%d", len(m.silences)), nil
}

func (m *fakeMonitoring) SilenceURL(id string) string { return "https://am.example.org/#/silences/" + id }

type fakePlaybooks struct{ runs int }

func (p *fakePlaybooks) RunInterconnectPlaybook(context.Context) (result.Command, error) {
	p.runs++
	return result.Command{Command: "mellanox_playbook.sh"}, nil
}

type fakes struct {
	sink         *fakeSink
	remote       *fakeRemote
	inventory    *fakeInventory
	compute      *fakeCompute
	provisioning *fakeProvisioning
	monitoring   *fakeMonitoring
	playbooks    *fakePlaybooks
}

func newFakes() *fakes {
	return &fakes{
		sink: &fakeSink{},
		remote: &fakeRemote{
			outputs: map[string]result.Command{},
			errs:    map[string]error{},
		},
		inventory:    &fakeInventory{exists: true, status: "active", address: "10.0.0.7"},
		compute:      &fakeCompute{},
		provisioning: &fakeProvisioning{},
		monitoring:   &fakeMonitoring{},
		playbooks:    &fakePlaybooks{},
	}
}

func (f *fakes) adapters() Adapters {
	return Adapters{
		Sink:         f.sink,
		Inventory:    f.inventory,
		Compute:      f.compute,
		Remote:       f.remote,
		Provisioning: f.provisioning,
		Monitoring:   f.monitoring,
		Playbooks:    f.playbooks,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		NetboxURL:          "https://netbox.example.org",
		JiraURL:            "https://jira.example.org",
		AlertmanagerURL:    "https://alertmanager.example.org",
		AquilonHost:        "aquilon.example.org",
		SourceOSMajor:      "8",
		TargetOSMajor:      "9",
		ProductionRole:     "Openstack Prod Kolla_Compute",
		DisableReason:      "Migration to Rocky 9",
		SilenceComment:     "RL9 Reinstall",
		TicketStates:       []string{"Pre Bios Failed", "Drained"},
		FailureTransitions: map[string]string{StepPreReinstall: "Pre Bios Failed"},
	}
}

func testCreds() *credentials.Set {
	return &credentials.Set{
		SSH:     &credentials.SSHCredentials{KeyPath: "/nonexistent/id_rsa", Username: "jdoe"},
		General: &credentials.GeneralCredentials{Initials: "JD"},
	}
}

func discardLogger() *logger.Logger { return logger.NewWithWriter(io.Discard, false) }

func newHost(hostname string, f *fakes) *HostContext {
	return &HostContext{
		Record:   roster.HostRecord{Hostname: hostname, TicketID: "HV-1"},
		Window:   timewindow.At(testStart),
		Creds:    testCreds(),
		Config:   testConfig(),
		Fixups:   fixups.NewDefaultRegistry(),
		Log:      discardLogger(),
		Adapters: f.adapters(),
	}
}
