package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per websocket connection.
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			language TEXT NOT NULL,
			remote_addr TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Words surfaced to the client. target_gloss and correct are only
		// meaningful in TRAINING mode.
		`CREATE TABLE IF NOT EXISTS words (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			language TEXT NOT NULL,
			mode TEXT NOT NULL CHECK(mode IN ('LIVE', 'TRAINING')),
			gloss TEXT NOT NULL,
			class_id INTEGER NOT NULL,
			confidence REAL NOT NULL,
			target_gloss TEXT NOT NULL DEFAULT '',
			correct INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_words_session_id ON words(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
