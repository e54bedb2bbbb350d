package aquilon

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

type fakeExec struct {
	commands []string
	stdout   string
	code     int
	err      error
}

func (f *fakeExec) Run(_ context.Context, command, user string) (result.Command, error) {
	f.commands = append(f.commands, command)
	return result.Command{Command: command, Stdout: f.stdout, ExitCode: f.code}, f.err
}

func TestScriptsRunWithEnvironment(t *testing.T) {
	exec := &fakeExec{}
	p := NewProvider(exec, "aq.example.org", "scripts/", "hv01")
	ctx := context.Background()

	for _, op := range []func(context.Context) (result.Command, error){
		p.Reimport, p.RemoveUnmanagedInterfaces, p.Recompile, p.PXESwitch,
	} {
		cmd, err := op(ctx)
		require.NoError(t, err)
		assert.False(t, strings.Contains(cmd.Command, "export"))
	}

	prefix := "export AQHOST=aq.example.org; export AQSERVICE=aqd;export PATH=/opt/aquilon/bin/:$PATH;export PATH=/var/quattor/bin/:$PATH;"
	assert.Equal(t, []string{
		prefix + "./scripts/reimport-host.sh hv01",
		prefix + "python3 ./scripts/remove_interfaces.py hv01",
		prefix + "python3 ./scripts/make_host.py hv01",
		prefix + "python3 ./scripts/pxeswitch_host.py hv01",
	}, exec.commands)
}

func TestRemoveUnmanagedDisk(t *testing.T) {
	exec := &fakeExec{}
	ctx := context.Background()

	_, applied, err := NewProvider(exec, "aq", "s", "hv01").RemoveUnmanagedDisk(ctx)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, exec.commands)

	cmd, applied, err := NewProvider(exec, "aq", "s", "hv-a100-03").RemoveUnmanagedDisk(ctx)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "python3 ./s/remove_sata_disk.py hv-a100-03", cmd.Command)
}

func TestHardwareModel(t *testing.T) {
	exec := &fakeExec{stdout: "hv-2022-lenovo\n"}
	model, cmd, err := NewProvider(exec, "aq", "s", "hv01").HardwareModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hv-2022-lenovo", model)
	assert.Equal(t, "myaq-get-model hv01", cmd.Command)

	exec.code = 2
	_, _, err = NewProvider(exec, "aq", "s", "hv01").HardwareModel(context.Background())
	assert.Error(t, err)

	exec.err = errors.New("dial failed")
	_, _, err = NewProvider(exec, "aq", "s", "hv01").HardwareModel(context.Background())
	assert.ErrorContains(t, err, "dial failed")
}
