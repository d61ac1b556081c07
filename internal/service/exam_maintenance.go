package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type exportCleaner interface {
	Cleanup() ([]string, error)
}

type proposalPruner interface {
	PruneProposals() int
}

type jobPruner interface {
	Prune() int
}

// ExamMaintenance periodically removes expired exports, proposals and finished jobs.
type ExamMaintenance struct {
	cron      *cron.Cron
	exports   exportCleaner
	proposals proposalPruner
	jobs      jobPruner
	logger    *zap.Logger
}

// NewExamMaintenance registers the sweep under spec (standard five-field cron or a descriptor
// such as "@every 1h"). Nil collaborators are skipped.
func NewExamMaintenance(spec string, exports exportCleaner, proposals proposalPruner, jobs jobPruner, logger *zap.Logger) (*ExamMaintenance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec == "" {
		spec = "@every 1h"
	}
	m := &ExamMaintenance{
		cron:      cron.New(),
		exports:   exports,
		proposals: proposals,
		jobs:      jobs,
		logger:    logger,
	}
	if _, err := m.cron.AddFunc(spec, m.Sweep); err != nil {
		return nil, fmt.Errorf("parse maintenance schedule %q: %w", spec, err)
	}
	return m, nil
}

// Start runs the cron scheduler in its own goroutine.
func (m *ExamMaintenance) Start() {
	m.cron.Start()
	m.logger.Info("exam maintenance started")
}

// Stop halts the scheduler and waits for a running sweep, bounded by ctx.
func (m *ExamMaintenance) Stop(ctx context.Context) {
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		m.logger.Warn("exam maintenance stop timed out")
	}
}

// Sweep performs one maintenance pass.
func (m *ExamMaintenance) Sweep() {
	var removed, proposals, jobs int
	if m.exports != nil {
		files, err := m.exports.Cleanup()
		if err != nil {
			m.logger.Warn("export cleanup failed", zap.Error(err))
		}
		removed = len(files)
	}
	if m.proposals != nil {
		proposals = m.proposals.PruneProposals()
	}
	if m.jobs != nil {
		jobs = m.jobs.Prune()
	}
	m.logger.Debug("exam maintenance sweep",
		zap.Int("exports_removed", removed),
		zap.Int("proposals_pruned", proposals),
		zap.Int("jobs_pruned", jobs),
	)
}
