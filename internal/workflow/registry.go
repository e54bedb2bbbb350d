package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry manages step definitions by name and alias.
type Registry struct {
	steps map[string]*Step
	names []string
	mu    sync.RWMutex
}

// NewRegistry creates a new step registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]*Step),
	}
}

// Register registers a step under its name and every alias.
func (r *Registry) Register(step *Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{step.Name}, step.Aliases...)
	for _, key := range keys {
		if _, exists := r.steps[key]; exists {
			return fmt.Errorf("step %s already registered", key)
		}
	}
	for _, key := range keys {
		r.steps[key] = step
	}
	r.names = append(r.names, step.Name)
	return nil
}

// Get retrieves a step by name or alias.
func (r *Registry) Get(name string) (*Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[strings.TrimSpace(name)]
	if !exists {
		valid := append([]string(nil), r.names...)
		sort.Strings(valid)
		return nil, fmt.Errorf("unknown step %q (valid steps: %s)", name, strings.Join(valid, ", "))
	}
	return step, nil
}

// List returns every registered step in registration order.
func (r *Registry) List() []*Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]*Step, 0, len(r.names))
	for _, name := range r.names {
		steps = append(steps, r.steps[name])
	}
	return steps
}

// Help renders every step and its summary for CLI help.
func (r *Registry) Help() string {
	var b strings.Builder
	for _, step := range r.List() {
		name := step.Name
		if len(step.Aliases) > 0 {
			name += " (" + strings.Join(step.Aliases, ", ") + ")"
		}
		b.WriteString(name + ":\n")
		for _, line := range step.Summary {
			b.WriteString("   " + line + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewDefaultRegistry returns a registry with every workflow step.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, step := range []*Step{Setup(), PreDrain(), PreReinstall(), PostReinstall(), Noop()} {
		if err := r.Register(step); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultRegistry is the global step registry.
var DefaultRegistry = NewDefaultRegistry()
