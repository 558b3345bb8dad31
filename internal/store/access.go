package store

import (
	"database/sql"
	"time"
)

// Access log actions.
const (
	ActionIn  = "in"
	ActionOut = "out"
)

// AccessEntry is one login or logout record.
type AccessEntry struct {
	ID        int64
	UserID    string
	Name      string
	Action    string
	CreatedAt time.Time
}

// AccessLogRepository appends to and reads the access log.
type AccessLogRepository struct {
	db *sql.DB
}

// AccessLog returns the access log repository for this store.
func (s *Store) AccessLog() *AccessLogRepository {
	return &AccessLogRepository{db: s.db}
}

// Append adds an entry, stamping it with the current time when unset.
func (r *AccessLogRepository) Append(e *AccessEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.Exec(
		`INSERT INTO access_log (user_id, name, action, created_at) VALUES (?, ?, ?, ?)`,
		e.UserID, e.Name, e.Action, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// Recent returns up to limit entries, newest first.
func (r *AccessLogRepository) Recent(limit int) ([]*AccessEntry, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, name, action, created_at FROM access_log
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AccessEntry
	for rows.Next() {
		e := &AccessEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.Action, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Count returns the number of entries with the given action.
func (r *AccessLogRepository) Count(action string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM access_log WHERE action = ?`, action).Scan(&n)
	return n, err
}
