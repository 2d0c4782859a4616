package jobs

import (
	"errors"
	"fmt"
	"sync"

	"gm-batch-converter/internal/domain"
)

// ErrBatchAlreadyRunning is returned when Convert is pressed mid-batch.
var ErrBatchAlreadyRunning = errors.New("batch already running")

// ErrNoRunningBatch is returned when cancel is requested for idle state.
var ErrNoRunningBatch = errors.New("no running batch")

// Manager tracks the single allowed active batch and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Batch
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Batch{
			Status: domain.BatchStatusIdle,
		},
	}
}

// Start moves a new batch of total jobs into converting state.
func (m *Manager) Start(batchID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.BatchStatusConverting {
		return ErrBatchAlreadyRunning
	}

	m.current = domain.Batch{
		ID:     batchID,
		Status: domain.BatchStatusConverting,
		Total:  total,
	}
	return nil
}

// Progress updates counters of the converting batch.
func (m *Manager) Progress(batchID string, completed, failed, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != batchID || m.current.Status != domain.BatchStatusConverting {
		return
	}
	m.current.Completed = completed
	m.current.Failed = failed
	m.current.Skipped = skipped
}

// Finish validates and applies the terminal transition for batchID.
func (m *Manager) Finish(batchID string, status domain.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != batchID {
		return fmt.Errorf("batch %s is not current", batchID)
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Current returns a snapshot of the current batch.
func (m *Manager) Current() domain.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset returns a finished manager to idle.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.BatchStatusConverting {
		return ErrBatchAlreadyRunning
	}
	m.current = domain.Batch{Status: domain.BatchStatusIdle}
	return nil
}

// IsRunning reports whether a batch is converting.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.BatchStatusConverting
}

// RequireRunning returns ErrNoRunningBatch unless a batch is converting.
// The batch stays converting until its executor reports the outcome.
func (m *Manager) RequireRunning() error {
	if !m.IsRunning() {
		return ErrNoRunningBatch
	}
	return nil
}

// isValidTransition enforces the allowed batch state machine edges.
func isValidTransition(from, to domain.BatchStatus) bool {
	switch from {
	case domain.BatchStatusIdle:
		return to == domain.BatchStatusConverting
	case domain.BatchStatusConverting:
		switch to {
		case domain.BatchStatusSuccess, domain.BatchStatusPartialFailure, domain.BatchStatusFailed, domain.BatchStatusCancelled:
			return true
		}
		return false
	case domain.BatchStatusSuccess, domain.BatchStatusPartialFailure, domain.BatchStatusFailed, domain.BatchStatusCancelled:
		return to == domain.BatchStatusConverting || to == domain.BatchStatusIdle
	default:
		return false
	}
}
