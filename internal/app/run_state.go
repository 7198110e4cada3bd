package app

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

// RunState holds the aggregate progress of one orchestration run.
// Totals are counted at start and only grow while a producer is still
// inserting records. Counters only grow.
type RunState struct {
	ID        string
	StartedAt time.Time

	totalBytes     atomic.Int64
	totalCount     atomic.Int64
	admitted       atomic.Int64
	completedBytes atomic.Int64
	completedFiles atomic.Int64
	failedFiles    atomic.Int64
	skippedFiles   atomic.Int64
	retiredBytes   atomic.Int64
	finishedAt     atomic.Int64
}

func newRunState(totals domain.PendingTotals) *RunState {
	s := &RunState{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
	s.totalBytes.Store(totals.TotalBytes)
	s.totalCount.Store(totals.TotalCount)
	return s
}

// Totals returns the current run targets
func (s *RunState) Totals() domain.PendingTotals {
	return domain.PendingTotals{
		TotalBytes: s.totalBytes.Load(),
		TotalCount: s.totalCount.Load(),
	}
}

// grow raises the totals to cover records still pending plus the ones this
// run already took out of the pending set. It must be called between
// passes and reports whether a total changed.
func (s *RunState) grow(pending domain.PendingTotals) bool {
	retiredFiles := s.completedFiles.Load() - s.failedFiles.Load()
	bytes := s.retiredBytes.Load() + pending.TotalBytes
	count := retiredFiles + pending.TotalCount

	grown := false
	if bytes > s.totalBytes.Load() {
		s.totalBytes.Store(bytes)
		grown = true
	}
	if count > s.totalCount.Load() {
		s.totalCount.Store(count)
		grown = true
	}
	return grown
}

func (s *RunState) admit() {
	s.admitted.Add(1)
}

// settle records a finished task by its declared size and returns the
// completed byte count
func (s *RunState) settle(size int64, outcome domain.TransferOutcome) int64 {
	switch outcome {
	case domain.OutcomeFailed:
		s.failedFiles.Add(1)
	case domain.OutcomeSkipped:
		s.skippedFiles.Add(1)
		s.retiredBytes.Add(size)
	default:
		s.retiredBytes.Add(size)
	}
	s.completedFiles.Add(1)
	return s.completedBytes.Add(size)
}

func (s *RunState) finish() {
	s.finishedAt.Store(time.Now().UnixNano())
}

// Note renders the remaining file count for the aggregate indicator
func (s *RunState) Note() string {
	return fmt.Sprintf("%d / %d files", s.completedFiles.Load(), s.totalCount.Load())
}

// Summary returns a snapshot of the run
func (s *RunState) Summary() *domain.RunSummary {
	end := time.Now()
	if ns := s.finishedAt.Load(); ns != 0 {
		end = time.Unix(0, ns)
	}

	return &domain.RunSummary{
		RunID:          s.ID,
		TotalBytes:     s.totalBytes.Load(),
		TotalCount:     s.totalCount.Load(),
		AdmittedFiles:  s.admitted.Load(),
		CompletedBytes: s.completedBytes.Load(),
		CompletedFiles: s.completedFiles.Load(),
		FailedFiles:    s.failedFiles.Load(),
		SkippedFiles:   s.skippedFiles.Load(),
		Duration:       end.Sub(s.StartedAt),
	}
}
