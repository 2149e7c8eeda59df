package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ledgerVersion is the current file format version.
const ledgerVersion = 1

type ledger struct {
	Version     int                      `json:"version"`
	Sessions    map[string]*Session      `json:"sessions"`
	Deployments map[string][]*Deployment `json:"deployments"`
}

// FileRepository keeps deployment history in a single JSON file. Every
// mutation is written through with a temp file, fsync and rename so a crash
// never leaves a truncated ledger behind.
type FileRepository struct {
	mu   sync.RWMutex
	path string
	data *ledger
}

// NewFileRepository opens the ledger at path, creating its directory if
// needed. A missing or empty file is an empty ledger.
func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{
		path: path,
		data: &ledger{
			Version:     ledgerVersion,
			Sessions:    make(map[string]*Session),
			Deployments: make(map[string][]*Deployment),
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := r.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) load() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	var l ledger
	if err := json.Unmarshal(raw, &l); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if l.Version > ledgerVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrStoreCorrupted, l.Version)
	}
	if l.Sessions == nil {
		l.Sessions = make(map[string]*Session)
	}
	if l.Deployments == nil {
		l.Deployments = make(map[string][]*Deployment)
	}
	r.data = &l
	return nil
}

// persistLocked must be called with the write lock held.
func (r *FileRepository) persistLocked() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmpPath := r.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorePersist, err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write: %v", ErrStorePersist, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrStorePersist, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrStorePersist, err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrStorePersist, err)
	}
	return nil
}

// Path returns the ledger file path.
func (r *FileRepository) Path() string {
	return r.path
}

// CreateSession stores a new session.
func (r *FileRepository) CreateSession(_ context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("CreateSession: session ID is required")
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data.Sessions[s.ID]; exists {
		return fmt.Errorf("CreateSession: session %s already exists", s.ID)
	}
	cp := *s
	r.data.Sessions[s.ID] = &cp
	if err := r.persistLocked(); err != nil {
		delete(r.data.Sessions, s.ID)
		return fmt.Errorf("CreateSession: %w", err)
	}
	return nil
}

// FinishSession sets the final status of a session.
func (r *FileRepository) FinishSession(_ context.Context, id string, status Status, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.data.Sessions[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	s.Status = status
	s.ErrorMessage = errMsg
	s.FinishedAt = &now
	if err := r.persistLocked(); err != nil {
		return fmt.Errorf("FinishSession: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (r *FileRepository) GetSession(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.data.Sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListSessions returns sessions newest first.
func (r *FileRepository) ListSessions(_ context.Context, limit int) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.data.Sessions))
	for _, s := range r.data.Sessions {
		cp := *s
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordDeployment appends a step outcome to its session.
func (r *FileRepository) RecordDeployment(_ context.Context, d *Deployment) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data.Sessions[d.SessionID]; !ok {
		return fmt.Errorf("RecordDeployment: session %s: %w", d.SessionID, ErrNotFound)
	}
	cp := *d
	r.data.Deployments[d.SessionID] = append(r.data.Deployments[d.SessionID], &cp)
	if err := r.persistLocked(); err != nil {
		steps := r.data.Deployments[d.SessionID]
		r.data.Deployments[d.SessionID] = steps[:len(steps)-1]
		return fmt.Errorf("RecordDeployment: %w", err)
	}
	return nil
}

// ListDeployments returns the recorded steps of a session in plan order.
func (r *FileRepository) ListDeployments(_ context.Context, sessionID string) ([]Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.data.Sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	steps := r.data.Deployments[sessionID]
	out := make([]Deployment, 0, len(steps))
	for _, d := range steps {
		out = append(out, *d)
	}
	slices.SortStableFunc(out, func(a, b Deployment) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out, nil
}

// Close releases resources. Writes are already durable.
func (r *FileRepository) Close() error {
	return nil
}

var _ Repository = (*FileRepository)(nil)
