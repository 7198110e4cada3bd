package domain

import "time"

// RunPhase is the current stage of a pipeline run
type RunPhase string

const (
	PhaseIdle        RunPhase = "idle"
	PhaseDiscovering RunPhase = "discovering"
	PhaseDownloading RunPhase = "downloading"
	PhaseCompleted   RunPhase = "completed"
	PhaseFailed      RunPhase = "failed"
)

// RunSummary describes the outcome of a download run
type RunSummary struct {
	RunID          string        `json:"run_id"`
	TotalBytes     int64         `json:"total_bytes"`
	TotalCount     int64         `json:"total_count"`
	AdmittedFiles  int64         `json:"admitted_files"`
	CompletedBytes int64         `json:"completed_bytes"`
	CompletedFiles int64         `json:"completed_files"`
	FailedFiles    int64         `json:"failed_files"`
	SkippedFiles   int64         `json:"skipped_files"`
	Duration       time.Duration `json:"duration"`
}

// DiscoverySummary describes the outcome of a discovery stage
type DiscoverySummary struct {
	Directories    int  `json:"directories"`
	NewDirectories int  `json:"new_directories"`
	ScrapedDirs    int  `json:"scraped_directories"`
	FailedDirs     int  `json:"failed_directories"`
	Files          int  `json:"files"`
	TreeFromCache  bool `json:"tree_from_cache"`
}

// Notifier reports run outcomes to the user
type Notifier interface {
	NotifyRunCompleted(summary *RunSummary)
	NotifyRunFailed(err error)
}
