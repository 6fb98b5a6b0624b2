package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mkretch/quorum/pkg/models"
)

// PutSession inserts or overwrites a session record.
func (db *DB) PutSession(s *models.Session) error {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	messages, err := json.Marshal(s.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	var consensus any
	if s.Consensus != nil {
		raw, err := json.Marshal(s.Consensus)
		if err != nil {
			return fmt.Errorf("marshal consensus: %w", err)
		}
		consensus = string(raw)
	}

	_, err = db.Exec(`
		INSERT INTO sessions (id, task_id, participants, messages, consensus, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participants = excluded.participants,
			messages = excluded.messages,
			consensus = excluded.consensus
	`, s.ID, s.TaskID, string(participants), string(messages), consensus,
		formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id, or (nil, nil) if unknown.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, task_id, participants, messages, consensus, created_at
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns all sessions ordered by id.
func (db *DB) ListSessions() ([]*models.Session, error) {
	rows, err := db.Query(`
		SELECT id, task_id, participants, messages, consensus, created_at
		FROM sessions ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// scanSession reads one session row via the given scan function.
func scanSession(scan func(...any) error) (*models.Session, error) {
	var s models.Session
	var participants, messages, createdAt string
	var consensus sql.NullString
	if err := scan(&s.ID, &s.TaskID, &participants, &messages, &consensus, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &s.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &s.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if consensus.Valid {
		var c models.Consensus
		if err := json.Unmarshal([]byte(consensus.String), &c); err != nil {
			return nil, fmt.Errorf("unmarshal consensus: %w", err)
		}
		s.Consensus = &c
	}
	s.CreatedAt, _ = parseTime(createdAt)
	return &s, nil
}
