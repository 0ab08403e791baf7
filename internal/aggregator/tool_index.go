package aggregator

import (
	"sort"
	"strings"
	"sync"

	"mcpgateway/internal/api"
)

// NamespaceSeparator joins a server name and a tool name.
const NamespaceSeparator = "."

// Namespace returns the exposed name of an external tool.
func Namespace(serverName, toolName string) string {
	return serverName + NamespaceSeparator + toolName
}

// SplitNamespaced splits on the first separator. Everything after it is the
// original tool name, dots included.
func SplitNamespaced(name string) (serverName, toolName string, ok bool) {
	serverName, toolName, ok = strings.Cut(name, NamespaceSeparator)
	if !ok || serverName == "" || toolName == "" {
		return "", "", false
	}
	return serverName, toolName, true
}

// ToolIndex is the in-memory tool catalog: the route table read by every
// call and written by discovery. Records are immutable once stored;
// writers replace them, so readers see either the old or the new record.
type ToolIndex struct {
	mu sync.RWMutex
	// namespaced name -> record
	byName map[string]*api.ToolRecord
	// original name -> server id -> record, external tools only
	byOriginal map[string]map[string]*api.ToolRecord
	// server id -> namespaced name -> record
	byServer map[string]map[string]*api.ToolRecord
}

// NewToolIndex creates an empty index.
func NewToolIndex() *ToolIndex {
	return &ToolIndex{
		byName:     make(map[string]*api.ToolRecord),
		byOriginal: make(map[string]map[string]*api.ToolRecord),
		byServer:   make(map[string]map[string]*api.ToolRecord),
	}
}

// Upsert stores rec keyed by its namespaced name. A record already owned
// by a different server is not replaced and SERVER_ALREADY_EXISTS is
// returned.
func (ti *ToolIndex) Upsert(rec *api.ToolRecord) error {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if existing, ok := ti.byName[rec.NamespacedName]; ok && existing.SourceServerID != rec.SourceServerID {
		return api.NewError(api.CodeServerAlreadyExists,
			"tool %q is already provided by server %s", rec.NamespacedName, existing.SourceServerID)
	}
	ti.put(rec)
	return nil
}

// put must be called with mu held.
func (ti *ToolIndex) put(rec *api.ToolRecord) {
	if old, ok := ti.byName[rec.NamespacedName]; ok {
		ti.unlink(old)
	}
	ti.byName[rec.NamespacedName] = rec

	if rec.IsExternal {
		owners := ti.byOriginal[rec.OriginalName]
		if owners == nil {
			owners = make(map[string]*api.ToolRecord)
			ti.byOriginal[rec.OriginalName] = owners
		}
		owners[rec.SourceServerID] = rec
	}

	tools := ti.byServer[rec.SourceServerID]
	if tools == nil {
		tools = make(map[string]*api.ToolRecord)
		ti.byServer[rec.SourceServerID] = tools
	}
	tools[rec.NamespacedName] = rec
}

// unlink removes rec from the secondary indexes. mu must be held.
func (ti *ToolIndex) unlink(rec *api.ToolRecord) {
	if owners := ti.byOriginal[rec.OriginalName]; owners != nil && rec.IsExternal {
		delete(owners, rec.SourceServerID)
		if len(owners) == 0 {
			delete(ti.byOriginal, rec.OriginalName)
		}
	}
	if tools := ti.byServer[rec.SourceServerID]; tools != nil {
		delete(tools, rec.NamespacedName)
		if len(tools) == 0 {
			delete(ti.byServer, rec.SourceServerID)
		}
	}
}

// Update replaces the record for name with fn's result if the stored
// record still has the expected content hash. It reports whether the
// record was replaced.
func (ti *ToolIndex) Update(name, contentHash string, fn func(rec *api.ToolRecord)) (*api.ToolRecord, bool) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	cur, ok := ti.byName[name]
	if !ok || cur.ContentHash != contentHash {
		return nil, false
	}
	next := cur.Clone()
	fn(next)
	next.NamespacedName = cur.NamespacedName
	next.SourceServerID = cur.SourceServerID
	ti.put(next)
	return next, true
}

// Get returns the record for a namespaced (or local) name.
func (ti *ToolIndex) Get(name string) *api.ToolRecord {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return ti.byName[name]
}

// LookupOriginal returns the external tools with the given original name,
// sorted by server id.
func (ti *ToolIndex) LookupOriginal(original string) []*api.ToolRecord {
	ti.mu.RLock()
	owners := ti.byOriginal[original]
	out := make([]*api.ToolRecord, 0, len(owners))
	for _, rec := range owners {
		out = append(out, rec)
	}
	ti.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceServerID < out[j].SourceServerID })
	return out
}

// ListByServer returns the tools of one server sorted by name.
func (ti *ToolIndex) ListByServer(serverID string) []*api.ToolRecord {
	ti.mu.RLock()
	tools := ti.byServer[serverID]
	out := make([]*api.ToolRecord, 0, len(tools))
	for _, rec := range tools {
		out = append(out, rec)
	}
	ti.mu.RUnlock()

	sortTools(out)
	return out
}

// CountByServer returns how many tools a server owns.
func (ti *ToolIndex) CountByServer(serverID string) int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.byServer[serverID])
}

// List returns every tool sorted by name.
func (ti *ToolIndex) List() []*api.ToolRecord {
	ti.mu.RLock()
	out := make([]*api.ToolRecord, 0, len(ti.byName))
	for _, rec := range ti.byName {
		out = append(out, rec)
	}
	ti.mu.RUnlock()

	sortTools(out)
	return out
}

// Delete removes tools by namespaced name and returns the removed records.
func (ti *ToolIndex) Delete(names ...string) []*api.ToolRecord {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	var removed []*api.ToolRecord
	for _, name := range names {
		rec, ok := ti.byName[name]
		if !ok {
			continue
		}
		ti.unlink(rec)
		delete(ti.byName, name)
		removed = append(removed, rec)
	}
	return removed
}

// RemoveServer deletes every tool owned by serverID and returns their ids.
func (ti *ToolIndex) RemoveServer(serverID string) []string {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	tools := ti.byServer[serverID]
	ids := make([]string, 0, len(tools))
	for name, rec := range tools {
		ids = append(ids, rec.ID)
		delete(ti.byName, name)
		if owners := ti.byOriginal[rec.OriginalName]; owners != nil {
			delete(owners, serverID)
			if len(owners) == 0 {
				delete(ti.byOriginal, rec.OriginalName)
			}
		}
	}
	delete(ti.byServer, serverID)
	sort.Strings(ids)
	return ids
}

// Load replaces the index content with records read from the store.
func (ti *ToolIndex) Load(records []*api.ToolRecord) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	ti.byName = make(map[string]*api.ToolRecord, len(records))
	ti.byOriginal = make(map[string]map[string]*api.ToolRecord)
	ti.byServer = make(map[string]map[string]*api.ToolRecord)
	for _, rec := range records {
		ti.put(rec)
	}
}

// Len returns the number of tools.
func (ti *ToolIndex) Len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.byName)
}

func sortTools(tools []*api.ToolRecord) {
	sort.Slice(tools, func(i, j int) bool { return tools[i].NamespacedName < tools[j].NamespacedName })
}
