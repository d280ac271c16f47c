package storage

import (
	"context"
	"fmt"
)

// EnsureUser upserts a user row so session foreign keys are satisfied.
// User identity is opaque here — auth lives outside this service.
func (db *DB) EnsureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("storage: empty user id")
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("storage: ensure user: %w", err)
	}
	return nil
}
