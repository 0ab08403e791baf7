package api

import (
	"context"
	"encoding/json"
)

// Classification is the result of assigning a tool to skills.
type Classification struct {
	SkillIDs       []string `json:"skill_ids"`
	PrimarySkillID string   `json:"primary_skill_id"`
	Confidence     float64  `json:"confidence"`
}

// Classifier assigns tools to skills. Failures are non-fatal for discovery.
type Classifier interface {
	Classify(ctx context.Context, name, description string, schema json.RawMessage) (Classification, error)
}

// SearchIndex is the semantic index used by tool search.
type SearchIndex interface {
	Upsert(ctx context.Context, tool *ToolRecord) error
	Delete(ctx context.Context, ids []string) error
}

// Store persists server and tool records.
//
// DeleteServer must cascade: every tool whose SourceServerID matches is
// deleted in the same operation and the ids of those tools are returned so
// that the caller can purge them from the search index.
type Store interface {
	ListServers(ctx context.Context) ([]*ServerRecord, error)
	GetServer(ctx context.Context, id string) (*ServerRecord, error)
	CreateServer(ctx context.Context, rec *ServerRecord) error
	UpdateServer(ctx context.Context, rec *ServerRecord) error
	DeleteServer(ctx context.Context, id string) ([]string, error)

	ListTools(ctx context.Context) ([]*ToolRecord, error)
	ListToolsByServer(ctx context.Context, serverID string) ([]*ToolRecord, error)
	UpsertTool(ctx context.Context, tool *ToolRecord) error
	DeleteTools(ctx context.Context, ids []string) error

	Close() error
}
