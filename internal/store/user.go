package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// User is a user enrolled with the reference service.
type User struct {
	UserID           string
	Name             string
	Email            string
	Phone            string
	DateOfBirth      string
	Gender           string
	Address          string
	Department       string
	Position         string
	EmergencyContact string
	EmergencyPhone   string
	TrainingQuality  float64
	RegistrationDate time.Time
	LastLogin        *time.Time
	LoginCount       int
}

// UserRepository provides CRUD operations for users.
type UserRepository struct {
	db *sql.DB
}

// Users returns the user repository for this store.
func (s *Store) Users() *UserRepository {
	return &UserRepository{db: s.db}
}

const userColumns = `user_id, name, email, phone, date_of_birth, gender, address, department,
	position, emergency_contact, emergency_phone, training_quality, registration_date, last_login, login_count`

const insertUserSQL = `INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var lastLogin sql.NullTime
	err := row.Scan(&u.UserID, &u.Name, &u.Email, &u.Phone, &u.DateOfBirth, &u.Gender, &u.Address,
		&u.Department, &u.Position, &u.EmergencyContact, &u.EmergencyPhone, &u.TrainingQuality, &u.RegistrationDate,
		&lastLogin, &u.LoginCount)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

// Create inserts a new user. A duplicate email returns ErrConflict.
func (r *UserRepository) Create(u *User) error {
	if u.RegistrationDate.IsZero() {
		u.RegistrationDate = time.Now().UTC()
	}
	_, err := r.db.Exec(
		insertUserSQL,
		u.UserID, u.Name, u.Email, u.Phone, u.DateOfBirth, u.Gender, u.Address, u.Department,
		u.Position, u.EmergencyContact, u.EmergencyPhone, u.TrainingQuality, u.RegistrationDate,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE user_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(email string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// List retrieves all users, most recently registered first.
func (r *UserRepository) List() ([]*User, error) {
	rows, err := r.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY registration_date DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// RecordLogin increments the login count and sets the last login time.
func (r *UserRepository) RecordLogin(id string, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE users SET login_count = login_count + 1, last_login = ? WHERE user_id = ?`,
		at, id,
	)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// Delete removes a user and, by cascade, their enrollments.
func (r *UserRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM users WHERE user_id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// Count returns the number of users.
func (r *UserRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
