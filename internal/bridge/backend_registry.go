package bridge

import (
	"strings"
	"sync"
)

type MappingBackendFactory func(dsn string) (MappingBackend, error)

var backendFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]MappingBackendFactory
}{
	factories: map[string]MappingBackendFactory{},
}

// RegisterMappingBackendFactory lets external packages claim a DSN scheme.
// A registered factory takes precedence over the built-in schemes.
func RegisterMappingBackendFactory(scheme string, factory MappingBackendFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactoryRegistry.mu.Lock()
	defer backendFactoryRegistry.mu.Unlock()
	backendFactoryRegistry.factories[scheme] = factory
}

func lookupMappingBackendFactory(scheme string) (MappingBackendFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	backendFactoryRegistry.mu.RLock()
	defer backendFactoryRegistry.mu.RUnlock()
	factory, ok := backendFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
