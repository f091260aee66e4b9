package storage

import (
	"sync"

	"github.com/Woffluon/Voxel-Forge/internal/model"
)

type MemoryStore struct {
	contents map[string]*model.UserContent
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents: make(map[string]*model.UserContent),
	}
}

func (m *MemoryStore) Save(sessionID string, content *model.UserContent) error {
	if content == nil {
		return ErrInvalidContent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *content
	m.contents[sessionID] = &cp
	return nil
}

func (m *MemoryStore) Get(sessionID string) (*model.UserContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, exists := m.contents[sessionID]
	if !exists {
		return nil, ErrContentNotFound
	}

	cp := *content
	return &cp, nil
}

func (m *MemoryStore) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.contents[sessionID]; !exists {
		return ErrContentNotFound
	}

	delete(m.contents, sessionID)
	return nil
}

func (m *MemoryStore) List() ([]*model.UserContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contents := make([]*model.UserContent, 0, len(m.contents))
	for _, content := range m.contents {
		cp := *content
		contents = append(contents, &cp)
	}

	return contents, nil
}
