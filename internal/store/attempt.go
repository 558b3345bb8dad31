package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Attempt kinds.
const (
	KindLogin    = "login"
	KindRegister = "register"
	KindLogout   = "logout"
)

// Attempt is one audited login, registration or logout. Images are never
// stored.
type Attempt struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Samples   int       `json:"samples"`
	CreatedAt time.Time `json:"created_at"`
}

// AttemptRepository records and lists attempts.
type AttemptRepository struct {
	db *sql.DB
}

// Attempts returns the attempt repository for this store.
func (s *Store) Attempts() *AttemptRepository {
	return &AttemptRepository{db: s.db}
}

// Record inserts an attempt, assigning an ID and timestamp when unset.
func (r *AttemptRepository) Record(a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(
		`INSERT INTO attempts (id, kind, outcome, reason, message, user_name, samples, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, a.Outcome, a.Reason, a.Message, a.UserName, a.Samples, a.CreatedAt,
	)
	return err
}

// List returns up to limit attempts, newest first. A non-positive limit
// returns all of them.
func (r *AttemptRepository) List(limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, kind, outcome, reason, message, user_name, samples, created_at
		 FROM attempts ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a := &Attempt{}
		if err := rows.Scan(&a.ID, &a.Kind, &a.Outcome, &a.Reason, &a.Message, &a.UserName, &a.Samples, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attempts, nil
}

// CountByOutcome returns the number of attempts of a kind per outcome.
func (r *AttemptRepository) CountByOutcome(kind string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT outcome, COUNT(*) FROM attempts WHERE kind = ? GROUP BY outcome`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}

	return counts, rows.Err()
}
