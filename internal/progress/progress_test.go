package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "     0 B"},
		{999, "   999 B"},
		{1500, "  1.5 kB"},
		{12300000, "   12 MB"},
		{-5, "     0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := FormatBytes(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Len(t, got, byteColumnWidth)
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "       N/A", FormatSpeed(-1))
	assert.Equal(t, "  1.5 kB/s", FormatSpeed(1500))
}

func TestFitName(t *testing.T) {
	assert.Equal(t, "abc  ", FitName("abc", 5))
	assert.Equal(t, "...efgh", FitName("abcdefgh", 7))
	assert.Equal(t, "gh", FitName("abcdefgh", 2))
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker := NewTracker()

	agg := tracker.CreateAggregateIndicator(300, domain.IndicatorFields{Name: "Total", Note: "0 / 2 files"})
	a := tracker.CreateIndicator(100, domain.IndicatorFields{Name: "a.pdf"})
	b := tracker.CreateIndicator(200, domain.IndicatorFields{Name: "b.pdf"})

	a.Update(50, domain.IndicatorFields{Speed: 1000})
	b.Update(10, domain.IndicatorFields{State: domain.IndicatorRetrying, Total: 250})

	snap := tracker.Snapshot()
	require.NotNil(t, snap.Aggregate)
	assert.Equal(t, "0 / 2 files", snap.Aggregate.Note)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "a.pdf", snap.Items[0].Name)
	assert.Equal(t, int64(50), snap.Items[0].Current)
	assert.Equal(t, float64(1000), snap.Items[0].Speed)
	assert.Equal(t, domain.IndicatorActive, snap.Items[0].State)
	assert.Equal(t, domain.IndicatorRetrying, snap.Items[1].State)
	assert.Equal(t, int64(250), snap.Items[1].Total)

	a.Remove()
	a.Remove()
	a.Update(60, domain.IndicatorFields{})

	agg.Update(100, domain.IndicatorFields{Note: "1 / 2 files"})
	agg.Remove()

	snap = tracker.Snapshot()
	assert.Equal(t, 2, snap.Created)
	assert.Equal(t, 1, snap.Removed)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "b.pdf", snap.Items[0].Name)
	require.NotNil(t, snap.Aggregate)
	assert.Equal(t, int64(100), snap.Aggregate.Current)
	assert.Equal(t, 2, tracker.Updates())
}

func TestMulti_FansOut(t *testing.T) {
	first := NewTracker()
	second := NewTracker()
	multi := NewMulti(first, nil, second)

	ind := multi.CreateIndicator(10, domain.IndicatorFields{Name: "x"})
	ind.Update(5, domain.IndicatorFields{})
	ind.Remove()
	multi.Stop()

	for _, tracker := range []*Tracker{first, second} {
		snap := tracker.Snapshot()
		assert.Equal(t, 1, snap.Created)
		assert.Equal(t, 1, snap.Removed)
		assert.Equal(t, 1, tracker.Updates())
	}
}

func TestTerminalReporter_StopRemovesLiveIndicators(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewTerminalReporter(&buf, 20)

	agg := reporter.CreateAggregateIndicator(100, domain.IndicatorFields{Name: "Total"})
	item := reporter.CreateIndicator(50, domain.IndicatorFields{Name: "a.pdf"})
	item.Update(25, domain.IndicatorFields{Speed: 100})
	agg.Update(25, domain.IndicatorFields{Note: "0 / 1 files"})

	reporter.Stop()

	item.Remove()
	assert.Empty(t, reporter.live)
}
