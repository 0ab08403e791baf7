package store

import (
	"context"
	"sort"
	"sync"

	"mcpgateway/internal/api"
)

// MemoryStore is an in-process api.Store.
type MemoryStore struct {
	mu      sync.RWMutex
	servers map[string]*api.ServerRecord
	tools   map[string]*api.ToolRecord // keyed by namespaced name
}

var _ api.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		servers: make(map[string]*api.ServerRecord),
		tools:   make(map[string]*api.ToolRecord),
	}
}

func (s *MemoryStore) ListServers(ctx context.Context) ([]*api.ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.ServerRecord, 0, len(s.servers))
	for _, rec := range s.servers {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetServer(ctx context.Context, id string) (*api.ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.servers[id]
	if !ok {
		return nil, api.ErrServerNotFound(id)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) CreateServer(ctx context.Context, rec *api.ServerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[rec.ID]; ok {
		return api.ErrServerAlreadyExists(rec.Name)
	}
	for _, existing := range s.servers {
		if existing.Name == rec.Name {
			return api.ErrServerAlreadyExists(rec.Name)
		}
	}
	s.servers[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) UpdateServer(ctx context.Context, rec *api.ServerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[rec.ID]; !ok {
		return api.ErrServerNotFound(rec.ID)
	}
	s.servers[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) DeleteServer(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[id]; !ok {
		return nil, api.ErrServerNotFound(id)
	}
	delete(s.servers, id)

	var ids []string
	for name, tool := range s.tools {
		if tool.SourceServerID == id {
			ids = append(ids, tool.ID)
			delete(s.tools, name)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListTools(ctx context.Context) ([]*api.ToolRecord, error) {
	return s.listTools(func(*api.ToolRecord) bool { return true }), nil
}

func (s *MemoryStore) ListToolsByServer(ctx context.Context, serverID string) ([]*api.ToolRecord, error) {
	return s.listTools(func(t *api.ToolRecord) bool { return t.SourceServerID == serverID }), nil
}

func (s *MemoryStore) listTools(keep func(*api.ToolRecord) bool) []*api.ToolRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.ToolRecord, 0, len(s.tools))
	for _, tool := range s.tools {
		if keep(tool) {
			out = append(out, tool.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedName < out[j].NamespacedName })
	return out
}

// UpsertTool inserts or replaces the tool with the same namespaced name.
// A tool owned by a server that is not stored is rejected.
func (s *MemoryStore) UpsertTool(ctx context.Context, tool *api.ToolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tool.SourceServerID != "" {
		if _, ok := s.servers[tool.SourceServerID]; !ok {
			return api.ErrServerNotFound(tool.SourceServerID)
		}
	}
	s.tools[tool.NamespacedName] = tool.Clone()
	return nil
}

func (s *MemoryStore) DeleteTools(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for name, tool := range s.tools {
		if drop[tool.ID] {
			delete(s.tools, name)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
