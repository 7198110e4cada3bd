package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

var (
	errServer      = errors.New("server error")
	errStalled     = errors.New("no data received within stall timeout")
	errShortBody   = errors.New("body shorter than content length")
	errUnavailable = errors.New("resource unavailable")
)

// FetcherOptions configures the HTTP fetcher
type FetcherOptions struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration // dial and response header timeout
	StallTimeout   time.Duration // max time without body bytes, 0 disables
}

// FetcherOptionsFromConfig maps download configuration onto fetcher options
func FetcherOptionsFromConfig(config *domain.DownloadConfig) FetcherOptions {
	return FetcherOptions{
		MaxRetries:     config.MaxRetries,
		RetryDelay:     config.RetryDelay,
		RequestTimeout: config.RequestTimeout,
		StallTimeout:   config.StallTimeout,
	}
}

// HTTPFetcher implements Fetcher over HTTP onto an afero filesystem
type HTTPFetcher struct {
	client *http.Client
	fs     afero.Fs
	opts   FetcherOptions
}

// NewHTTPFetcher creates a fetcher writing into fs
func NewHTTPFetcher(fs afero.Fs, opts FetcherOptions) *HTTPFetcher {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.RequestTimeout,
		DisableCompression:    true,
	}

	return &HTTPFetcher{
		client: &http.Client{Transport: transport},
		fs:     fs,
		opts:   opts,
	}
}

// Probe issues a HEAD request for the remote size
func (f *HTTPFetcher) Probe(ctx context.Context, url string) (*domain.RemoteInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrProbe, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProbe, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %s", domain.ErrProbe, resp.Status)
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("%w: missing content length", domain.ErrProbe)
	}

	return &domain.RemoteInfo{Size: resp.ContentLength}, nil
}

// Stream downloads url into path with retries, emitting events on the
// returned channel until a terminal event
func (f *HTTPFetcher) Stream(ctx context.Context, url, path string) <-chan domain.TransferEvent {
	events := make(chan domain.TransferEvent, 16)

	go func() {
		defer close(events)

		emit := func(ev domain.TransferEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var lastErr error
		for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
			if attempt > 0 {
				if !emit(domain.TransferEvent{Kind: domain.EventRetry, Attempt: attempt, Err: lastErr}) {
					return
				}
				select {
				case <-time.After(f.opts.RetryDelay):
				case <-ctx.Done():
					emit(domain.TransferEvent{Kind: domain.EventError, Attempt: attempt, Err: ctx.Err()})
					return
				}
			}

			written, err := f.fetchOnce(ctx, url, path, attempt, emit)
			if err == nil {
				emit(domain.TransferEvent{Kind: domain.EventEnd, Total: written, Downloaded: written, Attempt: attempt})
				return
			}

			if ctx.Err() != nil {
				emit(domain.TransferEvent{Kind: domain.EventError, Attempt: attempt, Err: ctx.Err()})
				return
			}
			if isTimeout(err) {
				err = fmt.Errorf("%w: %v", domain.ErrTransferTimeout, err)
				if !emit(domain.TransferEvent{Kind: domain.EventTimeout, Attempt: attempt, Err: err}) {
					return
				}
			}
			if !isRetryable(err) {
				emit(domain.TransferEvent{Kind: domain.EventError, Attempt: attempt, Err: err})
				return
			}
			lastErr = err
		}

		emit(domain.TransferEvent{
			Kind:    domain.EventError,
			Attempt: f.opts.MaxRetries,
			Err:     fmt.Errorf("failed after %d attempts: %w", f.opts.MaxRetries+1, lastErr),
		})
	}()

	return events
}

// fetchOnce performs a single GET attempt, overwriting path
func (f *HTTPFetcher) fetchOnce(ctx context.Context, url, path string, attempt int, emit func(domain.TransferEvent) bool) (int64, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("%w: %s", errServer, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s", errUnavailable, resp.Status)
	}

	if !emit(domain.TransferEvent{Kind: domain.EventStart, Total: resp.ContentLength, Attempt: attempt}) {
		return 0, ctx.Err()
	}

	file, err := f.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", errUnavailable, path, err)
	}
	defer file.Close()

	var body io.Reader = resp.Body
	if f.opts.StallTimeout > 0 {
		watchdog := newStallReader(resp.Body, f.opts.StallTimeout, func() { cancel(errStalled) })
		defer watchdog.stop()
		body = watchdog
	}

	pw := newProgressWriter(file, resp.ContentLength, attempt, emit)
	written, err := io.Copy(pw, body)
	if err != nil {
		if cause := context.Cause(attemptCtx); errors.Is(cause, errStalled) {
			return written, cause
		}
		return written, err
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, fmt.Errorf("%w: got %d of %d bytes", errShortBody, written, resp.ContentLength)
	}

	return written, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, errStalled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRetryable reports whether another attempt may succeed
func isRetryable(err error) bool {
	return !errors.Is(err, errUnavailable)
}

// progressWriter counts written bytes and reports them with a throughput estimate
type progressWriter struct {
	w       io.Writer
	total   int64
	current int64
	attempt int
	emit    func(domain.TransferEvent) bool

	sampleAt    time.Time
	sampleBytes int64
	speed       float64
}

func newProgressWriter(w io.Writer, total int64, attempt int, emit func(domain.TransferEvent) bool) *progressWriter {
	return &progressWriter{
		w:        w,
		total:    total,
		attempt:  attempt,
		emit:     emit,
		sampleAt: time.Now(),
	}
}

const speedSampleWindow = 250 * time.Millisecond

// Write implements the io.Writer interface
func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.current += int64(n)

	now := time.Now()
	if elapsed := now.Sub(pw.sampleAt); elapsed >= speedSampleWindow {
		pw.speed = float64(pw.current-pw.sampleBytes) / elapsed.Seconds()
		pw.sampleAt = now
		pw.sampleBytes = pw.current
	}

	if !pw.emit(domain.TransferEvent{
		Kind:       domain.EventProgress,
		Total:      pw.total,
		Downloaded: pw.current,
		Speed:      pw.speed,
		Attempt:    pw.attempt,
	}) && err == nil {
		err = context.Canceled
	}

	return n, err
}

// stallReader fires onStall when no Read returns data within timeout
type stallReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newStallReader(r io.Reader, timeout time.Duration, onStall func()) *stallReader {
	return &stallReader{
		r:       r,
		timeout: timeout,
		timer:   time.AfterFunc(timeout, onStall),
	}
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.timeout)
	}
	return n, err
}

func (s *stallReader) stop() {
	s.timer.Stop()
}
