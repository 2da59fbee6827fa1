package store

import (
	"database/sql"

	"github.com/google/uuid"
)

// Activation is a logged pinch click.
type Activation struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Target    string  `json:"target"`
	Timestamp int64   `json:"timestamp"`
}

// ActivationRepository records clicks.
type ActivationRepository struct {
	db *sql.DB
}

// Activations returns the activation repository for this store.
func (s *Store) Activations() *ActivationRepository {
	return &ActivationRepository{db: s.db}
}

// Record inserts a click. The ID is assigned when empty.
func (r *ActivationRepository) Record(a *Activation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	_, err := r.db.Exec(
		`INSERT INTO activations (id, session_id, x, y, target, timestamp_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.X, a.Y, a.Target, a.Timestamp,
	)
	return err
}

// ListBySession returns the clicks of a session in firing order.
func (r *ActivationRepository) ListBySession(sessionID string) ([]*Activation, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, x, y, target, timestamp_ms
		 FROM activations WHERE session_id = ? ORDER BY timestamp_ms, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activations []*Activation
	for rows.Next() {
		a := &Activation{}
		if err := rows.Scan(&a.ID, &a.SessionID, &a.X, &a.Y, &a.Target, &a.Timestamp); err != nil {
			return nil, err
		}
		activations = append(activations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activations, nil
}
