package workflow

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/hvmigrate/hvmigrate/internal/credentials"
	"github.com/hvmigrate/hvmigrate/internal/provider/sshexec"
	"github.com/hvmigrate/hvmigrate/internal/report"
	"github.com/hvmigrate/hvmigrate/internal/result"
	"github.com/hvmigrate/hvmigrate/internal/timewindow"
)

const fullCreds = `
openstack:
  username: admin
  password: secret
  cloud: prod
alertmanager:
  username: am
  password: secret
netbox:
  api_token: nb-token
jira:
  username: jdoe@example.org
  api_token: jira-token
aquilon:
  username: jdoe
  password: secret
general:
  initials: JD
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// fakeFactory hands out one set of fakes per ticket.
type fakeFactory struct {
	mu    sync.Mutex
	calls int
	hosts map[string]*fakes
}

func newFakeFactory() *fakeFactory { return &fakeFactory{hosts: map[string]*fakes{}} }

func (f *fakeFactory) get(ticket string) *fakes {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.hosts[ticket]; !ok {
		f.hosts[ticket] = newFakes()
	}
	return f.hosts[ticket]
}

func (f *fakeFactory) build(h *HostContext) (Adapters, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.get(h.Record.TicketID).adapters(), nil
}

func TestCoordinatorNoop(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "hypervisors.txt", "# fleet\nhv1 HV-1\n\nhv2 HV-2\nhv3 HV-3\n")
	credsPath := writeFile(t, dir, "creds.yaml", "general:\n  initials: JD\n")
	factory := newFakeFactory()

	c, err := New(testConfig(), credsPath, rosterPath, discardLogger(), WithAdapterFactory(factory.build))
	require.NoError(t, err)
	assert.NotEmpty(t, c.RunID())

	for _, name := range []string{StepNoop, "noops"} {
		outcomes, err := c.Run(context.Background(), name)
		require.NoError(t, err)
		require.Len(t, outcomes, 3)
		for i, o := range outcomes {
			assert.Equal(t, []string{"hv1", "hv2", "hv3"}[i], o.Host)
			assert.True(t, o.Completed)
			assert.Zero(t, o.Executed)
		}
	}
}

func TestCoordinatorMalformedRoster(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "hypervisors.txt", "hv1 HV-1\nhv2\n")
	credsPath := writeFile(t, dir, "creds.yaml", fullCreds)
	factory := newFakeFactory()

	_, err := New(testConfig(), credsPath, rosterPath, discardLogger(), WithAdapterFactory(factory.build))

	require.Error(t, err)
	assert.True(t, result.IsConfigError(err))
	assert.Contains(t, err.Error(), "line 2")
	assert.Zero(t, factory.calls)
}

func TestCoordinatorConfigurationFailures(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "hypervisors.txt", "hv1 HV-1\n")

	t.Run("Missing credential section", func(t *testing.T) {
		credsPath := writeFile(t, dir, "general.yaml", "general:\n  initials: JD\n")
		factory := newFakeFactory()
		c, err := New(testConfig(), credsPath, rosterPath, discardLogger(), WithAdapterFactory(factory.build))
		require.NoError(t, err)

		_, err = c.Run(context.Background(), StepPreReinstall)

		require.Error(t, err)
		assert.True(t, result.IsConfigError(err))
		assert.True(t, errors.Is(err, credentials.ErrMissingSection))
		assert.Contains(t, err.Error(), "alertmanager")
		assert.Zero(t, factory.calls)
	})

	t.Run("Unknown step", func(t *testing.T) {
		credsPath := writeFile(t, dir, "full.yaml", fullCreds)
		c, err := New(testConfig(), credsPath, rosterPath, discardLogger(), WithAdapterFactory(newFakeFactory().build))
		require.NoError(t, err)

		_, err = c.Run(context.Background(), "drain")

		assert.True(t, result.IsConfigError(err))
		assert.Contains(t, err.Error(), "valid steps")
	})

	t.Run("Unknown ticket state", func(t *testing.T) {
		credsPath := writeFile(t, dir, "full.yaml", fullCreds)
		cfg := testConfig()
		cfg.FailureTransitions[StepPreDrain] = "Pre Drain Failed"

		_, err := New(cfg, credsPath, rosterPath, discardLogger())

		assert.True(t, result.IsConfigError(err))
	})

	t.Run("Empty aquilon host", func(t *testing.T) {
		credsPath := writeFile(t, dir, "full.yaml", fullCreds)
		cfg := testConfig()
		cfg.AquilonHost = ""

		_, err := New(cfg, credsPath, rosterPath, discardLogger())

		require.Error(t, err)
		assert.True(t, result.IsConfigError(err))
		assert.Contains(t, err.Error(), "aquilon_host is required")
	})

	t.Run("Unreadable private key", func(t *testing.T) {
		credsPath := writeFile(t, dir, "ssh.yaml", fullCreds+"ssh:\n  key_path: "+filepath.Join(dir, "missing")+"\n  username: jdoe\n")
		c, err := New(testConfig(), credsPath, rosterPath, discardLogger())
		require.NoError(t, err)

		_, err = c.Run(context.Background(), StepSetup)

		assert.True(t, result.IsConfigError(err))
	})
}

func TestCoordinatorPreDrain(t *testing.T) {
	dir := t.TempDir()
	rosterPath := writeFile(t, dir, "hypervisors.txt", "hv1 HV-1\nhv2 HV-2\nhv1 HV-3\n")
	credsPath := writeFile(t, dir, "creds.yaml", fullCreds+"ssh:\n  key_path: /dev/null\n  username: jdoe\n")
	factory := newFakeFactory()
	factory.get("HV-1").remote.outputs[osVersionCommand] = osRelease("8")
	factory.get("HV-2").remote.outputs[osVersionCommand] = osRelease("9")
	factory.get("HV-3").remote.outputs[osVersionCommand] = osRelease("8.10")

	window := timewindow.At(testStart)
	c, err := New(testConfig(), credsPath, rosterPath, discardLogger(),
		WithAdapterFactory(factory.build), WithWindow(window))
	require.NoError(t, err)

	outcomes, err := c.Run(context.Background(), StepPreDrain)

	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Completed)
	assert.False(t, outcomes[1].Completed)
	assert.Equal(t, "verify-source-os-version", outcomes[1].AbortedAt)
	assert.True(t, outcomes[2].Completed)
	assert.Equal(t, 3, factory.calls)
	assert.Equal(t, window, c.Window())
}

func TestNewAdapterFactory(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyPath := writeFile(t, dir, "id_ed25519", string(pem.EncodeToMemory(block)))

	creds, err := credentials.Parse([]byte(fullCreds +
		"ssh:\n  key_path: " + keyPath + "\n  username: jdoe\n" +
		"kayobe:\n  nopassfile: " + keyPath + "\n  username: stack\n  hostname: kayobe.example.org\n"))
	require.NoError(t, err)

	factory, err := NewAdapterFactory(testConfig(), creds, report.DefaultHeader)
	require.NoError(t, err)

	h := newHost("hv1", newFakes())
	h.Adapters = Adapters{}
	a, err := factory(h)
	require.NoError(t, err)

	assert.IsType(t, &report.Sink{}, a.Sink)
	assert.IsType(t, &sshexec.Client{}, a.Remote)
	assert.Equal(t, "hv1", a.Remote.(*sshexec.Client).Host())
	assert.NotNil(t, a.Inventory)
	assert.NotNil(t, a.Compute)
	assert.NotNil(t, a.Monitoring)
	assert.NotNil(t, a.Provisioning)
	assert.NotNil(t, a.Playbooks)
}

func TestNewAdapterFactoryPartialCredentials(t *testing.T) {
	creds, err := credentials.Parse([]byte("general:\n  initials: JD\n"))
	require.NoError(t, err)

	factory, err := NewAdapterFactory(testConfig(), creds, report.DefaultHeader)
	require.NoError(t, err)
	a, err := factory(newHost("hv1", newFakes()))
	require.NoError(t, err)

	assert.NotNil(t, a.Sink)
	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Inventory)
	assert.Nil(t, a.Monitoring)
}
