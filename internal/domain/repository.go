package domain

import "context"

// FileCursor is a lazily advancing sequence of pending files
type FileCursor interface {
	// Next returns the next pending file, or ErrStreamExhausted when the
	// store currently has nothing more to offer
	Next(ctx context.Context) (*PendingFile, error)

	// Close releases the cursor
	Close() error
}

// FileStore is the narrow view of the record store used by a download run
type FileStore interface {
	// CountPending aggregates size and count over records matching the filter
	CountPending(ctx context.Context, filter PendingFilter) (PendingTotals, error)

	// PendingStream opens a cursor over records matching the filter,
	// joined with their directory
	PendingStream(ctx context.Context, filter PendingFilter) (FileCursor, error)

	// MarkComplete flags a record as downloaded with its observed size
	MarkComplete(ctx context.Context, id string, size int64) error
}

// CatalogRepository defines the persistence used by discovery
type CatalogRepository interface {
	// EnsureDirectory inserts the directory if no record with its ID exists
	EnsureDirectory(ctx context.Context, dir *DirectoryRecord) (bool, error)

	// FindUnscrapedDirectories returns directories whose listing was not scraped yet
	FindUnscrapedDirectories(ctx context.Context) ([]*DirectoryRecord, error)

	// MarkDirectoryScraped flags a directory listing as scraped
	MarkDirectoryScraped(ctx context.Context, id string) error

	// UpsertFile inserts a file or refreshes its listing attributes,
	// leaving the downloaded flag untouched
	UpsertFile(ctx context.Context, file *FileRecord) error

	// GetStats returns store-wide statistics
	GetStats(ctx context.Context) (*FileStats, error)
}

// TreeCache stores the remote tree document alongside its timestamp
type TreeCache interface {
	// Load returns the cached timestamp and tree, ok is false when either is missing
	Load(ctx context.Context) (timestamp int64, tree []byte, ok bool, err error)

	// Store replaces the cached timestamp and tree
	Store(ctx context.Context, timestamp int64, tree []byte) error
}
