package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"mcpgateway/internal/api"
	"mcpgateway/internal/metrics"
	"mcpgateway/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// Discovery lists a server's tools and reconciles them into the catalog.
type Discovery struct {
	registry *ServerRegistry
	sessions *SessionManager
	tools    *ToolIndex
	queue    *ClassificationQueue
	store    api.Store
	index    api.SearchIndex
	metrics  *metrics.Metrics
	clock    Clock
}

// NewDiscovery wires a Discovery. store and index may be nil.
func NewDiscovery(registry *ServerRegistry, sessions *SessionManager, tools *ToolIndex, queue *ClassificationQueue,
	store api.Store, index api.SearchIndex, m *metrics.Metrics, clock Clock) *Discovery {
	if clock == nil {
		clock = realClock{}
	}
	return &Discovery{
		registry: registry,
		sessions: sessions,
		tools:    tools,
		queue:    queue,
		store:    store,
		index:    index,
		metrics:  m,
		clock:    clock,
	}
}

// Discover runs one discovery pass for a CONNECTED server.
//
// Every remote tool is upserted under its namespaced name; tools with a
// new content hash are queued for classification; tools the server no
// longer reports are deleted from the catalog, the store and the index.
// tool_count is updated to the number of tools the server now owns.
func (d *Discovery) Discover(ctx context.Context, serverID string) (*api.RefreshResult, error) {
	rec := d.registry.Get(serverID)
	if rec == nil {
		return nil, api.ErrServerNotFound(serverID)
	}
	if rec.Status != api.StatusConnected {
		return nil, api.ErrServerUnavailable(rec.Name, rec.Status).
			WithDetail("discovery requires status %s", api.StatusConnected)
	}

	remote, err := d.sessions.ListTools(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools of %s: %w", rec.Name, err)
	}

	result := &api.RefreshResult{ServerID: serverID}

	existing := make(map[string]*api.ToolRecord)
	for _, t := range d.tools.ListByServer(serverID) {
		existing[t.NamespacedName] = t
	}
	seen := make(map[string]bool, len(remote))
	now := d.clock.Now()

	for _, tool := range remote {
		if tool.Name == "" {
			continue
		}
		name := Namespace(rec.Name, tool.Name)
		if seen[name] {
			logging.Warn("Discovery", "Server %s reported tool %s twice, keeping the first", rec.Name, tool.Name)
			continue
		}
		seen[name] = true

		schema := toolSchema(tool)
		hash := contentHash(tool.Description, schema)

		prev := existing[name]
		if prev != nil && prev.ContentHash == hash {
			result.Unchanged++
			continue
		}

		next := &api.ToolRecord{
			ID:             uuid.NewString(),
			NamespacedName: name,
			OriginalName:   tool.Name,
			Description:    tool.Description,
			InputSchema:    schema,
			SourceServerID: serverID,
			IsExternal:     true,
			ContentHash:    hash,
			DiscoveredAt:   now,
			UpdatedAt:      now,
		}
		if prev != nil {
			next.ID = prev.ID
			next.DiscoveredAt = prev.DiscoveredAt
		}

		if err := d.tools.Upsert(next); err != nil {
			logging.Warn("Discovery", "Skipping tool %s: %v", name, err)
			delete(seen, name)
			continue
		}
		if d.store != nil {
			if err := d.store.UpsertTool(ctx, next); err != nil {
				logging.Warn("Discovery", "Failed to persist tool %s: %v", name, err)
			}
		}
		d.queue.Enqueue(name)

		if prev != nil {
			result.Updated++
		} else {
			result.Added++
		}
	}

	if d.registry.Get(serverID) == nil {
		// removed while the pass was upserting
		d.dropServerTools(ctx, serverID, rec.Name)
		return nil, api.ErrServerNotFound(serverID)
	}

	var stale []string
	for name := range existing {
		if !seen[name] {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		removed := d.tools.Delete(stale...)
		ids := make([]string, 0, len(removed))
		for _, t := range removed {
			ids = append(ids, t.ID)
		}
		if d.store != nil {
			if err := d.store.DeleteTools(ctx, ids); err != nil {
				logging.Warn("Discovery", "Failed to delete stale tools of %s: %v", rec.Name, err)
			}
		}
		if d.index != nil {
			if err := d.index.Delete(ctx, ids); err != nil {
				logging.Warn("Discovery", "Failed to remove stale tools of %s from index: %v", rec.Name, err)
			}
		}
		result.Removed = len(removed)
	}

	result.ToolCount = d.tools.CountByServer(serverID)
	if _, err := d.registry.Update(ctx, serverID, func(r *api.ServerRecord) error {
		if r.ToolCount == result.ToolCount {
			return errNoChange
		}
		r.ToolCount = result.ToolCount
		return nil
	}); err != nil {
		return result, err
	}
	d.metrics.SetServerTools(rec.Name, result.ToolCount)

	if len(remote) == 0 {
		logging.Warn("Discovery", "Server %s reported no tools", rec.Name)
	}
	logging.Info("Discovery", "Server %s: %d tools (%d added, %d updated, %d removed)",
		rec.Name, result.ToolCount, result.Added, result.Updated, result.Removed)
	return result, nil
}

// dropServerTools deletes whatever the catalog still holds for a server
// that no longer exists.
func (d *Discovery) dropServerTools(ctx context.Context, serverID, name string) {
	ids := d.tools.RemoveServer(serverID)
	if len(ids) == 0 {
		return
	}
	if d.store != nil {
		if err := d.store.DeleteTools(ctx, ids); err != nil {
			logging.Warn("Discovery", "Failed to delete tools of removed server %s: %v", name, err)
		}
	}
	if d.index != nil {
		if err := d.index.Delete(ctx, ids); err != nil {
			logging.Warn("Discovery", "Failed to remove tools of removed server %s from index: %v", name, err)
		}
	}
	logging.Warn("Discovery", "Server %s was removed during discovery, dropped %d tools", name, len(ids))
}

// toolSchema returns the tool's input schema as raw JSON.
func toolSchema(tool mcp.Tool) json.RawMessage {
	if len(tool.RawInputSchema) > 0 {
		return append(json.RawMessage(nil), tool.RawInputSchema...)
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil
	}
	return data
}

func contentHash(description string, schema json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write(schema)
	return hex.EncodeToString(h.Sum(nil))
}
