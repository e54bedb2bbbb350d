package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("Register and Get", func(t *testing.T) {
		r := NewRegistry()
		step := &Step{Name: "drain", Aliases: []string{"drains"}}
		require.NoError(t, r.Register(step))

		got, err := r.Get("drain")
		require.NoError(t, err)
		assert.Same(t, step, got)

		got, err = r.Get(" drains ")
		require.NoError(t, err)
		assert.Same(t, step, got)
	})

	t.Run("Duplicate alias", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(&Step{Name: "a"}))
		assert.Error(t, r.Register(&Step{Name: "b", Aliases: []string{"a"}}))
		_, err := r.Get("b")
		assert.Error(t, err)
	})

	t.Run("Unknown step lists valid steps", func(t *testing.T) {
		_, err := DefaultRegistry.Get("reinstall")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "noop, post_reinstall, pre_drain, pre_reinstall, setup")
	})
}

func TestDefaultSteps(t *testing.T) {
	var names []string
	for _, step := range DefaultRegistry.List() {
		names = append(names, step.Name)
		assert.NotEmpty(t, step.Summary, step.Name)
	}
	assert.Equal(t, []string{StepSetup, StepPreDrain, StepPreReinstall, StepPostReinstall, StepNoop}, names)

	noop, err := DefaultRegistry.Get("noops")
	require.NoError(t, err)
	assert.Equal(t, StepNoop, noop.Name)
	assert.Empty(t, noop.Operations)

	pre, err := DefaultRegistry.Get(StepPreReinstall)
	require.NoError(t, err)
	var guarded []string
	for _, op := range pre.Operations {
		if op.Guard != nil {
			guarded = append(guarded, op.Name)
		}
	}
	assert.Equal(t, []string{"report-gpu-devices", "run-interconnect-configuration-playbook"}, guarded)

	help := DefaultRegistry.Help()
	assert.Contains(t, help, "noop (noops):")
	assert.Contains(t, help, "   disables the hypervisor in OpenStack")
}
