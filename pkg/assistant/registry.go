package assistant

import (
	"context"
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Registry holds the known assistant definitions by type. It is filled
// before use and not safe for concurrent Register calls.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns a registry with the built-in assistants.
func NewRegistry() *Registry {
	r := &Registry{defs: map[string]Definition{}}
	r.Register(VolumeDefinition())
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) {
	r.defs[def.Type] = def
}

// Get returns the definition of an assistant type.
func (r *Registry) Get(assistantType string) (Definition, bool) {
	def, ok := r.defs[assistantType]
	return def, ok
}

// Types returns the registered assistant types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Assistants invokes assistants by type over a datasource. Each invocation
// resolves the batch request and runs a fresh assistant under the type's
// registered name.
type Assistants struct {
	registry   *Registry
	datasource core.Datasource
	opts       Options
}

// NewAssistants returns an accessor over ds. A nil registry uses
// NewRegistry.
func NewAssistants(reg *Registry, ds core.Datasource, opts Options) *Assistants {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Assistants{registry: reg, datasource: ds, opts: opts}
}

// Run invokes the assistant of the given type on the batches of req.
func (a *Assistants) Run(ctx context.Context, assistantType string, req core.BatchRequest, opts RunOptions) (*Result, error) {
	def, ok := a.registry.Get(assistantType)
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", core.ErrUnknownAssistant, assistantType, a.registry.Types())
	}
	v, err := NewValidator(ctx, a.datasource, req)
	if err != nil {
		return nil, err
	}
	da, err := New(def.RegisteredName, def, v, a.opts)
	if err != nil {
		return nil, fmt.Errorf("%s data assistant: %w", assistantType, err)
	}
	return da.Run(ctx, opts)
}

// Volume invokes the volume assistant.
func (a *Assistants) Volume(ctx context.Context, req core.BatchRequest, opts RunOptions) (*Result, error) {
	return a.Run(ctx, VolumeType, req, opts)
}
