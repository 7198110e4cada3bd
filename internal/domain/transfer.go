package domain

import "context"

// TransferEventKind identifies a transfer event
type TransferEventKind int

const (
	EventStart    TransferEventKind = iota // response received, Total is known
	EventProgress                          // bytes written
	EventTimeout                           // attempt timed out, a retry may follow
	EventRetry                             // a new attempt is about to start
	EventError                             // terminal failure
	EventEnd                               // body fully received
)

// String returns the event kind name
func (k TransferEventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventProgress:
		return "progress"
	case EventTimeout:
		return "timeout"
	case EventRetry:
		return "retry"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the event settles a transfer
func (k TransferEventKind) IsTerminal() bool {
	return k == EventError || k == EventEnd
}

// TransferEvent is one step of a streaming transfer
type TransferEvent struct {
	Kind       TransferEventKind
	Total      int64   // remote total bytes, -1 when unknown
	Downloaded int64   // bytes written in the current attempt
	Speed      float64 // bytes per second
	Attempt    int
	Err        error
}

// RemoteInfo is the result of a metadata probe
type RemoteInfo struct {
	Size int64
}

// Fetcher moves a remote resource onto local storage
type Fetcher interface {
	// Probe issues a metadata-only request for the remote size
	Probe(ctx context.Context, url string) (*RemoteInfo, error)

	// Stream downloads url into path, emitting events until a terminal
	// event; the channel is closed afterwards
	Stream(ctx context.Context, url, path string) <-chan TransferEvent
}

// TransferOutcome is how a transfer settled
type TransferOutcome int

const (
	OutcomeFailed     TransferOutcome = iota // record stays not downloaded
	OutcomeDownloaded                        // body received and written
	OutcomeSkipped                           // local copy already complete
)

// String returns the outcome name
func (o TransferOutcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// FileTransfer drives one pending file to a terminal outcome.
// A StoreWriteError may accompany a downloaded or skipped outcome.
type FileTransfer interface {
	Transfer(ctx context.Context, file *PendingFile) (TransferOutcome, error)
}
