package alerter

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds an Alerter from channel settings.
type Factory func(settings map[string]string) (Alerter, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a channel available by name. Adapters call it from init.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("alerter: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New builds the named channel.
func New(name string, settings map[string]string) (Alerter, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("alerter: unknown channel %q", name)
	}
	return factory(settings)
}

// Available returns the registered channel names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
