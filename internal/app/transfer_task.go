package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errStreamClosed = errors.New("transfer stream closed without a result")

// transferTask follows one file through the fetcher's event stream.
// It is owned by a single goroutine.
type transferTask struct {
	svc  *TransferService
	file *domain.PendingFile
	path string

	indicator  domain.Indicator
	progress   rate.Sometimes
	total      int64
	downloaded int64
	cancel     context.CancelFunc

	settled bool
	outcome domain.TransferOutcome
	err     error
}

func newTransferTask(svc *TransferService, file *domain.PendingFile, path string) *transferTask {
	t := &transferTask{
		svc:    svc,
		file:   file,
		path:   path,
		total:  file.Size,
		cancel: func() {},
	}
	t.progress.Interval = svc.config.ProgressInterval
	if svc.config.ProgressInterval <= 0 {
		t.progress = rate.Sometimes{Every: 1}
	}

	return t
}

func (t *transferTask) run(ctx context.Context) (domain.TransferOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.cancel = cancel

	for ev := range t.svc.fetcher.Stream(ctx, t.file.URL, t.path) {
		t.handle(ctx, ev)
	}

	if !t.settled {
		err := ctx.Err()
		if err == nil {
			err = errStreamClosed
		}
		t.fail(err)
	}
	return t.outcome, t.err
}

func (t *transferTask) handle(ctx context.Context, ev domain.TransferEvent) {
	if t.settled {
		return
	}

	switch ev.Kind {
	case domain.EventStart:
		if ev.Total > 0 {
			t.total = ev.Total
		}
		t.downloaded = 0
		if t.indicator == nil {
			t.indicator = t.svc.reporter.CreateIndicator(t.total, domain.IndicatorFields{
				Name:  t.file.ID,
				State: domain.IndicatorActive,
				Speed: -1,
			})
			return
		}
		t.indicator.Update(0, domain.IndicatorFields{Total: t.total, State: domain.IndicatorActive})

	case domain.EventProgress:
		t.downloaded = ev.Downloaded
		if t.indicator == nil {
			return
		}
		t.progress.Do(func() {
			t.indicator.Update(ev.Downloaded, domain.IndicatorFields{Speed: ev.Speed})
		})

	case domain.EventTimeout:
		t.svc.logger.Warn("Transfer timed out",
			zap.String("file", t.file.ID),
			zap.Int("attempt", ev.Attempt),
			zap.Error(ev.Err))
		t.relabel(domain.IndicatorTimeout, "")

	case domain.EventRetry:
		t.svc.logger.Info("Retrying transfer",
			zap.String("file", t.file.ID),
			zap.Int("attempt", ev.Attempt),
			zap.Error(ev.Err))
		t.relabel(domain.IndicatorRetrying, fmt.Sprintf("retry %d", ev.Attempt))

	case domain.EventError:
		t.fail(ev.Err)

	case domain.EventEnd:
		t.finish(ctx, ev.Total)
	}
}

func (t *transferTask) relabel(state domain.IndicatorState, note string) {
	if t.indicator != nil {
		t.indicator.Update(t.downloaded, domain.IndicatorFields{State: state, Note: note})
	}
}

// ensureIndicator creates the indicator when no Start event was seen
func (t *transferTask) ensureIndicator() {
	if t.indicator == nil {
		t.indicator = t.svc.reporter.CreateIndicator(t.total, domain.IndicatorFields{
			Name:  t.file.ID,
			State: domain.IndicatorActive,
			Speed: -1,
		})
	}
}

// fail settles the task without write-back, finalizing the indicator at
// the declared size
func (t *transferTask) fail(err error) {
	if t.settled {
		return
	}
	t.settled = true
	t.cancel()

	t.ensureIndicator()
	t.indicator.Update(t.file.Size, domain.IndicatorFields{State: domain.IndicatorError})
	t.indicator.Remove()

	t.svc.logger.Error("Transfer failed",
		zap.String("file", t.file.ID),
		zap.String("url", t.file.URL),
		zap.Error(err))

	t.outcome = domain.OutcomeFailed
	t.err = &domain.TransferError{FileID: t.file.ID, Err: err}
}

// finish settles the task with write-back of the received size
func (t *transferTask) finish(ctx context.Context, total int64) {
	if t.settled {
		return
	}
	t.settled = true

	t.ensureIndicator()
	t.indicator.Update(total, domain.IndicatorFields{Total: total, State: domain.IndicatorDone})
	t.indicator.Remove()

	t.svc.logger.Debug("Transfer completed",
		zap.String("file", t.file.ID),
		zap.Int64("size", total))

	t.outcome = domain.OutcomeDownloaded
	t.err = t.svc.markComplete(ctx, t.file, total)
}
