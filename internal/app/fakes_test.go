package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

// mockStore implements domain.FileStore in memory
type mockStore struct {
	mu          sync.Mutex
	files       map[string]*domain.FileRecord
	dirs        map[string]domain.DirectoryRecord
	marks       []string
	markErr     error
	countCalls  int
	cursors     int
	onExhausted func(pass int)
}

func newMockStore() *mockStore {
	return &mockStore{
		files: make(map[string]*domain.FileRecord),
		dirs:  make(map[string]domain.DirectoryRecord),
	}
}

func (m *mockStore) add(dirID, name string, size int64) *domain.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir, ok := m.dirs[dirID]
	if !ok {
		dir = domain.DirectoryRecord{ID: dirID, URL: "http://remote/" + dirID + "/index.html"}
		m.dirs[dirID] = dir
	}
	rec := domain.NewFileRecord(&dir, name, "http://remote/"+dirID+"/"+name, size, time.Time{})
	m.files[rec.ID] = rec
	return rec
}

func (m *mockStore) get(id string) domain.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.files[id]
}

func (m *mockStore) markCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marks)
}

func (m *mockStore) CountPending(ctx context.Context, filter domain.PendingFilter) (domain.PendingTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++

	var totals domain.PendingTotals
	for _, rec := range m.files {
		if filter.Matches(rec) {
			totals.TotalBytes += rec.Size
			totals.TotalCount++
		}
	}
	return totals, nil
}

func (m *mockStore) PendingStream(ctx context.Context, filter domain.PendingFilter) (domain.FileCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors++
	return &mockCursor{store: m, filter: filter, pass: m.cursors}, nil
}

func (m *mockStore) MarkComplete(ctx context.Context, id string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.marks = append(m.marks, id)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.markErr != nil {
		return m.markErr
	}
	if rec, ok := m.files[id]; ok {
		rec.Downloaded = true
		rec.Size = size
	}
	return nil
}

// mockCursor returns records in ID order as they are at the time of each Next
type mockCursor struct {
	store     *mockStore
	filter    domain.PendingFilter
	pass      int
	lastID    string
	exhausted bool
}

func (c *mockCursor) Next(ctx context.Context) (*domain.PendingFile, error) {
	c.store.mu.Lock()
	var ids []string
	for id, rec := range c.store.files {
		if id > c.lastID && c.filter.Matches(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		hook := c.store.onExhausted
		first := !c.exhausted
		c.exhausted = true
		c.store.mu.Unlock()
		if hook != nil && first {
			hook(c.pass)
		}
		return nil, domain.ErrStreamExhausted
	}

	rec := *c.store.files[ids[0]]
	rec.Directory = c.store.dirs[rec.DirectoryID]
	c.lastID = rec.ID
	c.store.mu.Unlock()
	return &domain.PendingFile{FileRecord: rec}, nil
}

func (c *mockCursor) Close() error { return nil }

// mockTransfer implements domain.FileTransfer
type mockTransfer struct {
	mu        sync.Mutex
	calls     []string
	outcomes  map[string]domain.TransferOutcome
	panics    map[string]bool
	delay     time.Duration
	active    int32
	maxActive int32
}

func newMockTransfer() *mockTransfer {
	return &mockTransfer{
		outcomes: make(map[string]domain.TransferOutcome),
		panics:   make(map[string]bool),
	}
}

func (m *mockTransfer) Transfer(ctx context.Context, file *domain.PendingFile) (domain.TransferOutcome, error) {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		max := atomic.LoadInt32(&m.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&m.maxActive, max, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, file.ID)
	outcome, ok := m.outcomes[file.ID]
	panics := m.panics[file.ID]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.OutcomeFailed, &domain.TransferError{FileID: file.ID, Err: ctx.Err()}
		}
	}
	if panics {
		panic("transfer exploded")
	}
	if !ok {
		outcome = domain.OutcomeDownloaded
	}
	if outcome == domain.OutcomeFailed {
		return outcome, &domain.TransferError{FileID: file.ID, Err: errors.New("boom")}
	}
	return outcome, nil
}

func (m *mockTransfer) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockFetcher implements domain.Fetcher with scripted streams
type mockFetcher struct {
	fs       afero.Fs
	mu       sync.Mutex
	sizes    map[string]int64
	bodies   map[string][]byte
	scripts  map[string][]domain.TransferEvent
	streams  int
	probeErr error
}

func newMockFetcher(fs afero.Fs) *mockFetcher {
	return &mockFetcher{
		fs:      fs,
		sizes:   make(map[string]int64),
		bodies:  make(map[string][]byte),
		scripts: make(map[string][]domain.TransferEvent),
	}
}

// serve makes url probe and download as body
func (m *mockFetcher) serve(url string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[url] = int64(len(body))
	m.bodies[url] = body
}

func (m *mockFetcher) streamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}

func (m *mockFetcher) Probe(ctx context.Context, url string) (*domain.RemoteInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	size, ok := m.sizes[url]
	if !ok {
		return nil, domain.ErrProbe
	}
	return &domain.RemoteInfo{Size: size}, nil
}

func (m *mockFetcher) Stream(ctx context.Context, url, path string) <-chan domain.TransferEvent {
	m.mu.Lock()
	m.streams++
	script, scripted := m.scripts[url]
	body := m.bodies[url]
	m.mu.Unlock()

	events := make(chan domain.TransferEvent, len(script)+8)
	go func() {
		defer close(events)
		if scripted {
			for _, ev := range script {
				events <- ev
			}
			return
		}

		total := int64(len(body))
		events <- domain.TransferEvent{Kind: domain.EventStart, Total: total}
		if err := afero.WriteFile(m.fs, path, body, 0644); err != nil {
			events <- domain.TransferEvent{Kind: domain.EventError, Err: err}
			return
		}
		events <- domain.TransferEvent{Kind: domain.EventProgress, Total: total, Downloaded: total, Speed: 1000}
		events <- domain.TransferEvent{Kind: domain.EventEnd, Total: total, Downloaded: total}
	}()
	return events
}

// recordingReporter keeps every indicator created
type recordingReporter struct {
	mu         sync.Mutex
	indicators []*recordingIndicator
	aggregate  *recordingIndicator
	stopped    bool
}

func (r *recordingReporter) CreateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	r.mu.Lock()
	defer r.mu.Unlock()
	ind := &recordingIndicator{total: total, name: fields.Name}
	r.indicators = append(r.indicators, ind)
	return ind
}

func (r *recordingReporter) CreateAggregateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregate = &recordingIndicator{total: total, name: fields.Name, note: fields.Note}
	return r.aggregate
}

func (r *recordingReporter) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

type recordingIndicator struct {
	mu      sync.Mutex
	name    string
	total   int64
	current int64
	note    string
	states  []domain.IndicatorState
	updates int
	removes int
}

func (i *recordingIndicator) Update(current int64, fields domain.IndicatorFields) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.updates++
	i.current = current
	if fields.Total > 0 {
		i.total = fields.Total
	}
	if fields.State != "" {
		i.states = append(i.states, fields.State)
	}
	if fields.Note != "" {
		i.note = fields.Note
	}
}

func (i *recordingIndicator) Remove() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removes++
}

func (i *recordingIndicator) lastState() domain.IndicatorState {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.states) == 0 {
		return ""
	}
	return i.states[len(i.states)-1]
}

// staticProducer reports a fixed activity
type staticProducer struct {
	active atomic.Bool
}

func (p *staticProducer) IsActive() bool {
	return p.active.Load()
}
