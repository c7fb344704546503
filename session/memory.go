package session

import (
	"context"
	"path"
	"sync"

	"github.com/orderpilot-ai/orderpilot/chatmodel"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string]*Context
}

// NewMemoryStore returns a process-local Store for single-instance
// deployments.
func NewMemoryStore() Store {
	return &inMemory{}
}

func memoryKey(ctx context.Context) (string, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(tenantID, chatID), nil
}

func (m *inMemory) Load(ctx context.Context) (*Context, error) {
	key, err := memoryKey(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sc, ok := m.storage[key]; ok {
		return sc.Clone(), nil
	}
	return &Context{}, nil
}

func (m *inMemory) Save(ctx context.Context, sc *Context) error {
	key, err := memoryKey(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string]*Context)
	}
	m.storage[key] = sc.Clone()
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	key, err := memoryKey(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, key)
	}
	return nil
}
