package progress

import "github.com/ttscraper/ttscraper-go/internal/domain"

// Multi fans every call out to several reporters
type Multi []domain.ProgressReporter

// NewMulti combines reporters, nil entries are ignored
func NewMulti(reporters ...domain.ProgressReporter) Multi {
	m := make(Multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

// CreateIndicator implements ProgressReporter
func (m Multi) CreateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	inds := make(multiIndicator, len(m))
	for i, r := range m {
		inds[i] = r.CreateIndicator(total, fields)
	}
	return inds
}

// CreateAggregateIndicator implements ProgressReporter
func (m Multi) CreateAggregateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	inds := make(multiIndicator, len(m))
	for i, r := range m {
		inds[i] = r.CreateAggregateIndicator(total, fields)
	}
	return inds
}

// Stop implements ProgressReporter
func (m Multi) Stop() {
	for _, r := range m {
		r.Stop()
	}
}

type multiIndicator []domain.Indicator

func (m multiIndicator) Update(current int64, fields domain.IndicatorFields) {
	for _, ind := range m {
		ind.Update(current, fields)
	}
}

func (m multiIndicator) Remove() {
	for _, ind := range m {
		ind.Remove()
	}
}
