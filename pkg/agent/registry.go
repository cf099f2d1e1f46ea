package agent

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/qaforge/qaforge/pkg/qaerrors"
)

// Builder constructs a concrete agent instance. Builders are registered per
// agent type, typically from an init function in the package that implements
// the type.
type Builder func(id string) Agent

var (
	registryMu sync.RWMutex
	builders   = make(map[string]Builder)
)

// Register makes an agent type available to RegistryFactory. Registering the
// same type twice replaces the previous builder.
func Register(agentType string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	builders[agentType] = b
}

// ListTypes returns the registered agent types in sorted order.
func ListTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(builders))
	for t := range builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RegistryFactory is a Factory backed by the builder registry. It assigns
// instance IDs through the supplied function, or a monotonic default.
type RegistryFactory struct {
	nextID func(agentType string) string
}

// NewRegistryFactory creates a factory that builds agents from the registry.
// nextID may be nil, in which case instances are numbered per process.
func NewRegistryFactory(nextID func(agentType string) string) *RegistryFactory {
	if nextID == nil {
		nextID = defaultID
	}
	return &RegistryFactory{nextID: nextID}
}

// Create constructs a new instance of the given agent type.
func (f *RegistryFactory) Create(_ context.Context, agentType string) (Agent, error) {
	registryMu.RLock()
	b, ok := builders[agentType]
	registryMu.RUnlock()
	if !ok {
		return nil, qaerrors.Newf(qaerrors.ErrorTypeNotFound, "unknown agent type %q", agentType)
	}
	return b(f.nextID(agentType)), nil
}

// Initialize runs the expensive setup step if the agent supports one.
func (f *RegistryFactory) Initialize(ctx context.Context, a Agent) error {
	if init, ok := a.(interface{ Initialize(context.Context) error }); ok {
		return init.Initialize(ctx)
	}
	return nil
}

// Dispose releases the agent's resources if it holds any.
func (f *RegistryFactory) Dispose(ctx context.Context, a Agent) error {
	if closer, ok := a.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}

var (
	idMu       sync.Mutex
	idCounters = make(map[string]int)
)

func defaultID(agentType string) string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounters[agentType]++
	return agentType + "-" + strconv.Itoa(idCounters[agentType])
}
