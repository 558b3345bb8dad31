package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Attempts - kiosk audit log of login and registration outcomes
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('login', 'register', 'logout')),
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			user_name TEXT NOT NULL DEFAULT '',
			samples INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		// Users - enrolled users of the reference service
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			date_of_birth TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			emergency_contact TEXT NOT NULL DEFAULT '',
			emergency_phone TEXT NOT NULL DEFAULT '',
			training_quality REAL NOT NULL DEFAULT 0,
			registration_date DATETIME NOT NULL,
			last_login DATETIME,
			login_count INTEGER NOT NULL DEFAULT 0
		)`,

		// Enrollments - per-user training stills and their perceptual hashes
		`CREATE TABLE IF NOT EXISTS enrollments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			sample_index INTEGER NOT NULL,
			hash INTEGER NOT NULL,
			image BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Access log - login and logout entries
		`CREATE TABLE IF NOT EXISTS access_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			action TEXT NOT NULL CHECK(action IN ('in', 'out')),
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_user_id ON enrollments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_access_log_created_at ON access_log(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
