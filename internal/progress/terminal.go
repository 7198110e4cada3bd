package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/ttscraper/ttscraper-go/internal/domain"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const (
	nameColumnWidth  = 32
	stateColumnWidth = 10
)

// TerminalReporter renders indicators as a live multi-bar
type TerminalReporter struct {
	progress *mpb.Progress
	stopOnce sync.Once

	mu   sync.Mutex
	live map[*terminalIndicator]struct{}
}

// NewTerminalReporter creates a reporter rendering to w
func NewTerminalReporter(w io.Writer, width int) *TerminalReporter {
	if width <= 0 {
		width = 40
	}
	return &TerminalReporter{
		progress: mpb.New(mpb.WithOutput(w), mpb.WithWidth(width)),
		live:     make(map[*terminalIndicator]struct{}),
	}
}

// CreateIndicator implements ProgressReporter
func (r *TerminalReporter) CreateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	return r.add(total, fields, false)
}

// CreateAggregateIndicator implements ProgressReporter.
// The aggregate bar is kept on screen after removal.
func (r *TerminalReporter) CreateAggregateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	return r.add(total, fields, true)
}

func (r *TerminalReporter) add(total int64, fields domain.IndicatorFields, aggregate bool) *terminalIndicator {
	ind := &terminalIndicator{
		reporter:  r,
		aggregate: aggregate,
		state:     domain.IndicatorActive,
		speed:     -1,
	}
	ind.merge(fields)

	opts := []mpb.BarOption{
		mpb.PrependDecorators(
			decor.Any(ind.renderState, decor.WC{W: stateColumnWidth, C: decor.DindentRight}),
			decor.Any(ind.renderName, decor.WC{W: nameColumnWidth, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Any(ind.renderCounters),
			decor.Percentage(decor.WC{W: 6}),
			decor.Any(ind.renderNote),
		),
	}
	if aggregate {
		opts = append(opts, mpb.BarPriority(-1))
	} else {
		opts = append(opts, mpb.BarRemoveOnComplete())
	}

	ind.bar = r.progress.AddBar(total, opts...)

	r.mu.Lock()
	r.live[ind] = struct{}{}
	r.mu.Unlock()
	return ind
}

func (r *TerminalReporter) detach(ind *terminalIndicator) {
	r.mu.Lock()
	delete(r.live, ind)
	r.mu.Unlock()
}

// Stop removes indicators still on screen and waits for rendering to finish
func (r *TerminalReporter) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		remaining := make([]*terminalIndicator, 0, len(r.live))
		for ind := range r.live {
			remaining = append(remaining, ind)
		}
		r.mu.Unlock()

		for _, ind := range remaining {
			ind.Remove()
		}
		r.progress.Wait()
	})
}

type terminalIndicator struct {
	reporter  *TerminalReporter
	bar       *mpb.Bar
	aggregate bool
	once      sync.Once

	mu    sync.Mutex
	name  string
	state domain.IndicatorState
	speed float64
	note  string
}

// merge applies fields, caller holds mu or owns ind exclusively
func (ind *terminalIndicator) merge(fields domain.IndicatorFields) {
	if fields.Name != "" {
		ind.name = fields.Name
	}
	if fields.State != "" {
		ind.state = fields.State
	}
	if fields.Speed != 0 {
		ind.speed = fields.Speed
	}
	if fields.Note != "" {
		ind.note = fields.Note
	}
}

func (ind *terminalIndicator) Update(current int64, fields domain.IndicatorFields) {
	ind.mu.Lock()
	ind.merge(fields)
	ind.mu.Unlock()

	if fields.Total > 0 {
		ind.bar.SetTotal(fields.Total, false)
	}
	ind.bar.SetCurrent(current)
}

func (ind *terminalIndicator) Remove() {
	ind.once.Do(func() {
		ind.bar.Abort(!ind.aggregate)
		ind.reporter.detach(ind)
	})
}

func (ind *terminalIndicator) renderState(decor.Statistics) string {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return fmt.Sprintf("[%s]", ind.state)
}

func (ind *terminalIndicator) renderName(decor.Statistics) string {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return FitName(ind.name, nameColumnWidth-1)
}

func (ind *terminalIndicator) renderCounters(s decor.Statistics) string {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.aggregate {
		return fmt.Sprintf(" %s / %s", FormatBytes(s.Current), FormatBytes(s.Total))
	}
	return fmt.Sprintf(" %s / %s %s", FormatBytes(s.Current), FormatBytes(s.Total), FormatSpeed(ind.speed))
}

func (ind *terminalIndicator) renderNote(decor.Statistics) string {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.note == "" {
		return ""
	}
	return " " + ind.note
}
