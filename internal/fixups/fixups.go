// Package fixups holds hardware-model specific actions applied to a host after
// its operating system has been reinstalled.
package fixups

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

// RootUser is the account fixup commands run as.
const RootUser = "root"

// Shell runs a command on the host being fixed.
type Shell interface {
	Run(ctx context.Context, command, user string) (result.Command, error)
}

// Fixup defines the interface for hardware-model specific post-reinstall actions.
type Fixup interface {
	// Name returns a human readable description (e.g., "2022 Lenovo NVMe instance store")
	Name() string

	// Model returns the hardware model this fixup applies to, as reported by provisioning.
	Model() string

	// Apply runs the fixup on the host behind sh.
	Apply(ctx context.Context, sh Shell) result.Result
}

// Registry maps hardware models to fixups.
type Registry struct {
	fixups map[string]Fixup
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fixups: make(map[string]Fixup)}
}

// Register adds a fixup. Each model can have at most one.
func (r *Registry) Register(f Fixup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeModel(f.Model())
	if _, exists := r.fixups[key]; exists {
		return fmt.Errorf("fixup for model %s already registered", key)
	}
	r.fixups[key] = f
	return nil
}

// Get returns the fixup for model, if any.
func (r *Registry) Get(model string) (Fixup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fixups[normalizeModel(model)]
	return f, ok
}

// Models returns the registered models in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.fixups))
	for m := range r.fixups {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

func normalizeModel(model string) string {
	return strings.TrimSpace(model)
}

// NewDefaultRegistry returns a registry holding every known fixup.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, f := range []Fixup{lenovo2022(), xmaA100()} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// step is one root command; check, when set, validates its output.
type step struct {
	command string
	check   func(result.Command) error
}

// commandFixup runs its steps in order and stops at the first failure.
type commandFixup struct {
	name  string
	model string
	steps []step
}

func (f *commandFixup) Name() string  { return f.name }
func (f *commandFixup) Model() string { return f.model }

func (f *commandFixup) Apply(ctx context.Context, sh Shell) result.Result {
	var ran []result.Command
	for _, s := range f.steps {
		cmd, err := sh.Run(ctx, s.command, RootUser)
		ran = append(ran, cmd)
		if err != nil {
			return result.AdapterFailed(err, ran...)
		}
		if cmd.Failed() {
			return result.AdapterFailed(fmt.Errorf("%s: %q exit code %d", f.name, s.command, cmd.ExitCode), ran...)
		}
		if s.check != nil {
			if err := s.check(cmd); err != nil {
				return result.PreconditionFailed(err.Error(), ran...)
			}
		}
	}
	return result.Success(fmt.Sprintf("applied %s fixups", f.name), ran...)
}
