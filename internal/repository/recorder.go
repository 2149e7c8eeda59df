package repository

import (
	"context"
	"log/slog"

	"github.com/epord/Plasma-Cash-RootChain/internal/pkg/ulid"
	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

// Recorder persists a session as it runs. It is a sequencer.Observer.
// Persistence failures are logged and never interrupt a deployment: the
// contracts are on chain whether or not the ledger could be written.
type Recorder struct {
	repo      Repository
	logger    *slog.Logger
	session   *Session
	positions map[string]int
	persisted bool
}

// NewRecorder creates a Recorder that stores session, filling in its ID when
// empty.
func NewRecorder(repo Repository, session *Session, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if session.ID == "" {
		session.ID = ulid.Now()
	}
	return &Recorder{
		repo:      repo,
		logger:    logger.With(slog.String("session_id", session.ID)),
		session:   session,
		positions: make(map[string]int),
	}
}

// SessionID returns the ID the session is stored under.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// SessionStarted implements sequencer.Observer.
func (r *Recorder) SessionStarted(ctx context.Context, steps []sequencer.Step) {
	for i, s := range steps {
		r.positions[s.Name] = i
	}
	r.session.Status = StatusRunning
	if err := r.repo.CreateSession(ctx, r.session); err != nil {
		r.logger.Error("failed to record session", slog.String("error", err.Error()))
		return
	}
	r.persisted = true
}

// StepStarted implements sequencer.Observer.
func (r *Recorder) StepStarted(context.Context, sequencer.Step) {}

// StepFinished implements sequencer.Observer.
func (r *Recorder) StepFinished(ctx context.Context, res *sequencer.Result) {
	if !r.persisted {
		return
	}

	d := &Deployment{
		SessionID:  r.session.ID,
		Position:   r.positions[res.Name],
		Name:       res.Name,
		Kind:       res.Kind.String(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Status == sequencer.StatusDeployed {
		d.Status = StatusDeployed
		addr, hash := res.Address.Hex(), res.TxHash.Hex()
		d.Address, d.TxHash = &addr, &hash
	} else {
		d.Status = StatusFailed
		if res.Err != nil {
			msg := res.Err.Error()
			d.ErrorMessage = &msg
		}
	}

	if err := r.repo.RecordDeployment(context.WithoutCancel(ctx), d); err != nil {
		r.logger.Error("failed to record step",
			slog.String("step", res.Name),
			slog.String("error", err.Error()),
		)
	}
}

// SessionFinished implements sequencer.Observer.
func (r *Recorder) SessionFinished(ctx context.Context, _ sequencer.Results, err error) {
	if !r.persisted {
		return
	}

	status := StatusCompleted
	if r.session.DryRun {
		status = StatusSimulated
	}
	var errMsg *string
	if err != nil {
		status = StatusFailed
		msg := err.Error()
		errMsg = &msg
	}
	r.session.Status = status
	r.session.ErrorMessage = errMsg

	// The session context may already be cancelled; the outcome is still recorded.
	if ferr := r.repo.FinishSession(context.WithoutCancel(ctx), r.session.ID, status, errMsg); ferr != nil {
		r.logger.Error("failed to finish session", slog.String("error", ferr.Error()))
	}
}

var _ sequencer.Observer = (*Recorder)(nil)
