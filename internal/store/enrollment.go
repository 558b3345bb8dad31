package store

import (
	"database/sql"
	"time"
)

// Enrollment is one training still of an enrolled user.
type Enrollment struct {
	ID          int64
	UserID      string
	SampleIndex int
	Hash        uint64
	Image       []byte
	CreatedAt   time.Time
}

// EnrollmentRepository stores training stills.
type EnrollmentRepository struct {
	db *sql.DB
}

// Enrollments returns the enrollment repository for this store.
func (s *Store) Enrollments() *EnrollmentRepository {
	return &EnrollmentRepository{db: s.db}
}

// Enroll creates the user and their training stills in a single
// transaction. A duplicate email returns ErrConflict and stores nothing.
func (r *EnrollmentRepository) Enroll(u *User, samples []Enrollment) error {
	now := time.Now().UTC()
	if u.RegistrationDate.IsZero() {
		u.RegistrationDate = now
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(insertUserSQL,
		u.UserID, u.Name, u.Email, u.Phone, u.DateOfBirth, u.Gender, u.Address, u.Department,
		u.Position, u.EmergencyContact, u.EmergencyPhone, u.TrainingQuality, u.RegistrationDate,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO enrollments (user_id, sample_index, hash, image, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range samples {
		s := &samples[i]
		s.UserID = u.UserID
		s.CreatedAt = now
		res, err := stmt.Exec(s.UserID, s.SampleIndex, int64(s.Hash), s.Image, s.CreatedAt)
		if err != nil {
			return err
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Hashes returns the hash of every stored still, without image data.
func (r *EnrollmentRepository) Hashes() ([]Enrollment, error) {
	rows, err := r.db.Query(`SELECT id, user_id, sample_index, hash, created_at FROM enrollments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		var hash int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.SampleIndex, &hash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Hash = uint64(hash)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// FirstImage returns the first training still of a user.
func (r *EnrollmentRepository) FirstImage(userID string) ([]byte, error) {
	var img []byte
	err := r.db.QueryRow(
		`SELECT image FROM enrollments WHERE user_id = ? ORDER BY sample_index, id LIMIT 1`,
		userID,
	).Scan(&img)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return img, err
}

// CountByUser returns the number of stills per user.
func (r *EnrollmentRepository) CountByUser() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT user_id, COUNT(*) FROM enrollments GROUP BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}

	return counts, rows.Err()
}
