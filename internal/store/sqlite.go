package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mcpgateway/internal/api"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists servers and tools in SQLite.
//
// Features:
//   - WAL journal and a busy timeout on every pooled connection
//   - foreign keys on, so deleting a server cascades to its tools
//   - connection configs sealed with the Encryptor
type SQLiteStore struct {
	db        *sql.DB
	encryptor Encryptor
}

var _ api.Store = (*SQLiteStore)(nil)

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file. Its directory is created if missing.
	Path string
	// Encryptor seals connection configs. Required.
	Encryptor Encryptor
}

// NewSQLiteStore opens (creating if needed) the database and migrates it.
func NewSQLiteStore(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + cfg.Path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, encryptor: cfg.Encryptor}
	if err := s.migrate(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			transport_type TEXT NOT NULL,
			connection_config BLOB NOT NULL,
			health_check_url TEXT NOT NULL DEFAULT '',
			auto_connect INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			tool_count INTEGER NOT NULL DEFAULT 0,
			last_health_check TEXT,
			consecutive_health_failures INTEGER NOT NULL DEFAULT 0,
			registered_at TEXT NOT NULL,
			connected_at TEXT,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS tools (
			id TEXT PRIMARY KEY,
			namespaced_name TEXT NOT NULL UNIQUE,
			original_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			input_schema TEXT,
			source_server_id TEXT REFERENCES servers(id) ON DELETE CASCADE,
			is_external INTEGER NOT NULL DEFAULT 0,
			is_classified INTEGER NOT NULL DEFAULT 0,
			skill_ids TEXT NOT NULL DEFAULT '[]',
			primary_skill_id TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			discovered_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tools_source_server ON tools(source_server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_original_name ON tools(original_name)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const serverColumns = `id, name, transport_type, connection_config, health_check_url, auto_connect,
	status, error_message, tool_count, last_health_check, consecutive_health_failures,
	registered_at, connected_at, updated_at`

func (s *SQLiteStore) ListServers(ctx context.Context) ([]*api.ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var out []*api.ServerRecord
	for rows.Next() {
		rec, err := s.scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetServer(ctx context.Context, id string) (*api.ServerRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	rec, err := s.scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrServerNotFound(id)
	}
	return rec, err
}

func (s *SQLiteStore) CreateServer(ctx context.Context, rec *api.ServerRecord) error {
	sealed, err := s.sealConfig(rec.ConnectionConfig)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(rec.TransportType), sealed, rec.HealthCheckURL, rec.AutoConnect,
		string(rec.Status), rec.ErrorMessage, rec.ToolCount, formatTimePtr(rec.LastHealthCheck),
		rec.ConsecutiveHealthFailures, formatTime(rec.RegisteredAt), formatTimePtr(rec.ConnectedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return api.ErrServerAlreadyExists(rec.Name)
		}
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateServer(ctx context.Context, rec *api.ServerRecord) error {
	sealed, err := s.sealConfig(rec.ConnectionConfig)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE servers SET
			transport_type = ?, connection_config = ?, health_check_url = ?, auto_connect = ?,
			status = ?, error_message = ?, tool_count = ?, last_health_check = ?,
			consecutive_health_failures = ?, connected_at = ?, updated_at = ?
		WHERE id = ?`,
		string(rec.TransportType), sealed, rec.HealthCheckURL, rec.AutoConnect,
		string(rec.Status), rec.ErrorMessage, rec.ToolCount, formatTimePtr(rec.LastHealthCheck),
		rec.ConsecutiveHealthFailures, formatTimePtr(rec.ConnectedAt), formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrServerNotFound(rec.ID)
	}
	return nil
}

// DeleteServer deletes the server; the foreign key cascades to its tools.
func (s *SQLiteStore) DeleteServer(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT id FROM tools WHERE source_server_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list server tools: %w", err)
	}
	var ids []string
	for rows.Next() {
		var toolID string
		if err := rows.Scan(&toolID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tool id: %w", err)
		}
		ids = append(ids, toolID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, api.ErrServerNotFound(id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return ids, nil
}

const toolColumns = `id, namespaced_name, original_name, description, input_schema, source_server_id,
	is_external, is_classified, skill_ids, primary_skill_id, content_hash, discovered_at, updated_at`

func (s *SQLiteStore) ListTools(ctx context.Context) ([]*api.ToolRecord, error) {
	return s.queryTools(ctx, `SELECT `+toolColumns+` FROM tools ORDER BY namespaced_name`)
}

func (s *SQLiteStore) ListToolsByServer(ctx context.Context, serverID string) ([]*api.ToolRecord, error) {
	return s.queryTools(ctx, `SELECT `+toolColumns+` FROM tools WHERE source_server_id = ? ORDER BY namespaced_name`, serverID)
}

func (s *SQLiteStore) queryTools(ctx context.Context, query string, args ...interface{}) ([]*api.ToolRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	var out []*api.ToolRecord
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tool)
	}
	return out, rows.Err()
}

// UpsertTool inserts or replaces the row with the same namespaced name.
// The id of an existing row is kept.
func (s *SQLiteStore) UpsertTool(ctx context.Context, tool *api.ToolRecord) error {
	skills, err := json.Marshal(nonNil(tool.SkillIDs))
	if err != nil {
		return fmt.Errorf("failed to encode skill ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO tools (`+toolColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespaced_name) DO UPDATE SET
			original_name = excluded.original_name,
			description = excluded.description,
			input_schema = excluded.input_schema,
			source_server_id = excluded.source_server_id,
			is_external = excluded.is_external,
			is_classified = excluded.is_classified,
			skill_ids = excluded.skill_ids,
			primary_skill_id = excluded.primary_skill_id,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		tool.ID, tool.NamespacedName, tool.OriginalName, tool.Description, nullString(string(tool.InputSchema)),
		nullString(tool.SourceServerID), tool.IsExternal, tool.IsClassified, string(skills),
		tool.PrimarySkillID, tool.ContentHash, formatTime(tool.DiscoveredAt), formatTime(tool.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return api.ErrServerNotFound(tool.SourceServerID)
		}
		return fmt.Errorf("failed to upsert tool %s: %w", tool.NamespacedName, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTools(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete tools: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanServer(row scanner) (*api.ServerRecord, error) {
	var (
		rec                     api.ServerRecord
		transport, status       string
		sealed                  []byte
		lastHealth, connectedAt sql.NullString
		registeredAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.Name, &transport, &sealed, &rec.HealthCheckURL, &rec.AutoConnect,
		&status, &rec.ErrorMessage, &rec.ToolCount, &lastHealth, &rec.ConsecutiveHealthFailures,
		&registeredAt, &connectedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan server: %w", err)
	}

	rec.TransportType = api.TransportType(transport)
	rec.Status = api.ServerStatus(status)
	rec.RegisteredAt = parseTime(registeredAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.LastHealthCheck = parseTimePtr(lastHealth)
	rec.ConnectedAt = parseTimePtr(connectedAt)

	cfg, err := s.openConfig(sealed)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", rec.Name, err)
	}
	rec.ConnectionConfig = cfg
	return &rec, nil
}

func scanTool(row scanner) (*api.ToolRecord, error) {
	var (
		tool                    api.ToolRecord
		schema, source          sql.NullString
		skills                  string
		discoveredAt, updatedAt string
	)
	err := row.Scan(&tool.ID, &tool.NamespacedName, &tool.OriginalName, &tool.Description, &schema, &source,
		&tool.IsExternal, &tool.IsClassified, &skills, &tool.PrimarySkillID, &tool.ContentHash,
		&discoveredAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tool: %w", err)
	}
	if schema.Valid {
		tool.InputSchema = json.RawMessage(schema.String)
	}
	tool.SourceServerID = source.String
	if err := json.Unmarshal([]byte(skills), &tool.SkillIDs); err != nil {
		return nil, fmt.Errorf("tool %s: invalid skill ids: %w", tool.NamespacedName, err)
	}
	if len(tool.SkillIDs) == 0 {
		tool.SkillIDs = nil
	}
	tool.DiscoveredAt = parseTime(discoveredAt)
	tool.UpdatedAt = parseTime(updatedAt)
	return &tool, nil
}

func (s *SQLiteStore) sealConfig(cfg api.ConnectionConfig) ([]byte, error) {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode connection config: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt connection config: %w", err)
	}
	return sealed, nil
}

func (s *SQLiteStore) openConfig(sealed []byte) (api.ConnectionConfig, error) {
	var cfg api.ConnectionConfig
	plain, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return cfg, fmt.Errorf("failed to decrypt connection config: %w", err)
	}
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode connection config: %w", err)
	}
	return cfg, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
