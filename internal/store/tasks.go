package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mkretch/quorum/pkg/models"
)

// PutTask inserts or overwrites a task record.
func (db *DB) PutTask(t *models.Task) error {
	caps, err := json.Marshal(t.RequiredCapabilities)
	if err != nil {
		return fmt.Errorf("marshal required capabilities: %w", err)
	}
	deps, err := json.Marshal(t.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}

	var finalizedAt any
	if t.FinalizedAt != nil {
		finalizedAt = formatTime(*t.FinalizedAt)
	}

	_, err = db.Exec(`
		INSERT INTO tasks (id, description, priority, estimated_effort,
			required_capabilities, dependencies, state, assignee, result,
			blocked_by, created_at, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			priority = excluded.priority,
			estimated_effort = excluded.estimated_effort,
			required_capabilities = excluded.required_capabilities,
			dependencies = excluded.dependencies,
			state = excluded.state,
			assignee = excluded.assignee,
			result = excluded.result,
			blocked_by = excluded.blocked_by,
			finalized_at = excluded.finalized_at
	`, t.ID, t.Description, t.Priority, t.EstimatedEffort, string(caps),
		string(deps), string(t.State), t.Assignee, t.Result, t.BlockedBy,
		formatTime(t.CreatedAt), finalizedAt)
	if err != nil {
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by id, or (nil, nil) if unknown.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, description, priority, estimated_effort, required_capabilities,
			dependencies, state, assignee, result, blocked_by, created_at, finalized_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks ordered by id, optionally filtered by state and/or
// assignee.
func (db *DB) ListTasks(state models.TaskState, assignee string) ([]*models.Task, error) {
	query := `
		SELECT id, description, priority, estimated_effort, required_capabilities,
			dependencies, state, assignee, result, blocked_by, created_at, finalized_at
		FROM tasks WHERE 1=1`
	var args []any
	if state != "" {
		query += " AND state = ?"
		args = append(args, string(state))
	}
	if assignee != "" {
		query += " AND assignee = ?"
		args = append(args, assignee)
	}
	query += " ORDER BY id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanTask reads one task row via the given scan function.
func scanTask(scan func(...any) error) (*models.Task, error) {
	var t models.Task
	var caps, deps, createdAt string
	var assignee, result, blockedBy, finalizedAt sql.NullString
	err := scan(&t.ID, &t.Description, &t.Priority, &t.EstimatedEffort, &caps,
		&deps, &t.State, &assignee, &result, &blockedBy, &createdAt, &finalizedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &t.RequiredCapabilities); err != nil {
		return nil, fmt.Errorf("unmarshal required capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	t.Assignee = assignee.String
	t.Result = result.String
	t.BlockedBy = blockedBy.String
	t.CreatedAt, _ = parseTime(createdAt)
	t.FinalizedAt = parseNullableTime(finalizedAt)
	return &t, nil
}
