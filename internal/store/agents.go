package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mkretch/quorum/pkg/models"
)

// PutAgent inserts or overwrites an agent record.
func (db *DB) PutAgent(a *models.Agent) error {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO agents (id, name, type, capabilities, status, registered_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			capabilities = excluded.capabilities,
			status = excluded.status,
			last_seen = excluded.last_seen
	`, a.ID, a.Name, a.Type, string(caps), string(a.Status),
		formatTime(a.RegisteredAt), formatTime(a.LastSeen))
	if err != nil {
		return fmt.Errorf("put agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by id, or (nil, nil) if unknown.
func (db *DB) GetAgent(id string) (*models.Agent, error) {
	row := db.QueryRow(`
		SELECT id, name, type, capabilities, status, registered_at, last_seen
		FROM agents WHERE id = ?
	`, id)

	a, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns all agents ordered by id.
func (db *DB) ListAgents() ([]*models.Agent, error) {
	rows, err := db.Query(`
		SELECT id, name, type, capabilities, status, registered_at, last_seen
		FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// scanAgent reads one agent row via the given scan function.
func scanAgent(scan func(...any) error) (*models.Agent, error) {
	var a models.Agent
	var caps, registeredAt, lastSeen string
	if err := scan(&a.ID, &a.Name, &a.Type, &caps, &a.Status, &registeredAt, &lastSeen); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	a.RegisteredAt, _ = parseTime(registeredAt)
	a.LastSeen, _ = parseTime(lastSeen)
	return &a, nil
}
