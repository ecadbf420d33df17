package browser

import (
	"sync"

	"github.com/GrindLabs/spectrum/internal/logger"
)

// Manager tracks a fleet of browser instances by id so callers can hand
// out, look up, and tear down browsers from one place.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*Instance
	log       *logger.Logger
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{
		instances: make(map[string]*Instance),
		log:       logger.Global().WithComponent("manager"),
	}
}

// Launch builds an instance from the given options, starts its browser
// process, and registers it under its id.
func (m *Manager) Launch(opts ...Option) (*Instance, error) {
	instance, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := instance.Start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.instances[instance.ID()] = instance
	m.mu.Unlock()

	m.log.WithInstance(instance.ID()).Info("Instance registered")
	return instance, nil
}

// Get returns the instance registered under id.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, ok := m.instances[id]
	return instance, ok
}

// Close shuts down the instance registered under id and forgets it.
// Unknown ids are a no-op.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	instance, ok := m.instances[id]
	if ok {
		delete(m.instances, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return instance.Close()
}

// CloseAll shuts down every registered instance, returning the first
// shutdown error after attempting all of them.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, instance := range m.instances {
		instances = append(instances, instance)
	}
	m.instances = make(map[string]*Instance)
	m.mu.Unlock()

	var firstErr error
	for _, instance := range instances {
		if err := instance.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports how many instances are currently registered.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}
