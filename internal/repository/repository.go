package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreCorrupted is returned when the ledger file cannot be decoded.
	ErrStoreCorrupted = errors.New("ledger corrupted")
	// ErrStorePersist is returned when the ledger file cannot be written.
	ErrStorePersist = errors.New("failed to persist ledger")
)

// Repository defines the persistence operations for deployment history.
type Repository interface {
	// Session operations
	CreateSession(ctx context.Context, s *Session) error
	FinishSession(ctx context.Context, id string, status Status, errMsg *string) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns the most recent sessions first. A non-positive
	// limit returns all of them.
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	// Step operations
	RecordDeployment(ctx context.Context, d *Deployment) error
	ListDeployments(ctx context.Context, sessionID string) ([]Deployment, error)

	Close() error
}
