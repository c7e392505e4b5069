package store

import (
	"database/sql"
	"time"
)

// Word is a recognized word surfaced to a client.
type Word struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Language    string    `json:"language"`
	Mode        string    `json:"mode"`
	Gloss       string    `json:"gloss"`
	ClassID     int       `json:"class_id"`
	Confidence  float64   `json:"confidence"`
	TargetGloss string    `json:"target_gloss,omitempty"`
	Correct     bool      `json:"correct"`
	CreatedAt   time.Time `json:"created_at"`
}

// WordRepository provides access to recorded words.
type WordRepository struct {
	db *sql.DB
}

// Words returns the word repository for this store.
func (s *Store) Words() *WordRepository {
	return &WordRepository{db: s.db}
}

// Create inserts a word and sets its ID.
func (r *WordRepository) Create(w *Word) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Exec(
		`INSERT INTO words (session_id, language, mode, gloss, class_id, confidence, target_gloss, correct, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.SessionID, w.Language, w.Mode, w.Gloss, w.ClassID, w.Confidence, w.TargetGloss, w.Correct, w.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = id
	return nil
}

// ListBySession returns a session's words in emission order.
func (r *WordRepository) ListBySession(sessionID string) ([]Word, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, language, mode, gloss, class_id, confidence, target_gloss, correct, created_at
		 FROM words WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []Word
	for rows.Next() {
		var w Word
		err := rows.Scan(&w.ID, &w.SessionID, &w.Language, &w.Mode, &w.Gloss,
			&w.ClassID, &w.Confidence, &w.TargetGloss, &w.Correct, &w.CreatedAt)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}

	return words, rows.Err()
}

// Accuracy returns how many TRAINING words a session emitted and how many
// matched the target gloss.
func (r *WordRepository) Accuracy(sessionID string) (total, correct int, err error) {
	err = r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(correct), 0) FROM words
		 WHERE session_id = ? AND mode = 'TRAINING'`,
		sessionID,
	).Scan(&total, &correct)
	return total, correct, err
}
