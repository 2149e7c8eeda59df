// Package repository persists deployment sessions and the outcome of each
// step so that past deployments can be listed and audited.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Status is the state of a session or of one recorded step.
type Status string

const (
	// StatusRunning indicates the session is in progress.
	StatusRunning Status = "running"
	// StatusCompleted indicates every step was deployed on chain.
	StatusCompleted Status = "completed"
	// StatusSimulated indicates a dry run that deployed nothing.
	StatusSimulated Status = "simulated"
	// StatusDeployed indicates a step's contract was deployed.
	StatusDeployed Status = "deployed"
	// StatusFailed indicates the session or step failed.
	StatusFailed Status = "failed"
)

// Session is one run of a deployment plan.
type Session struct {
	ID           string     `json:"id"`
	Plan         string     `json:"plan"`
	Network      string     `json:"network"`
	ChainID      int64      `json:"chainId"`
	Deployer     string     `json:"deployer"`
	Status       Status     `json:"status"`
	DryRun       bool       `json:"dryRun"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Deployment is the recorded outcome of one step within a session.
type Deployment struct {
	ID           uuid.UUID `json:"id"`
	SessionID    string    `json:"sessionId"`
	Position     int       `json:"position"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Status       Status    `json:"status"`
	Address      *string   `json:"address,omitempty"`
	TxHash       *string   `json:"txHash,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}
