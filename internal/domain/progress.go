package domain

// IndicatorState is the visual marker of an indicator
type IndicatorState string

const (
	IndicatorActive   IndicatorState = "active"
	IndicatorTimeout  IndicatorState = "timeout"
	IndicatorRetrying IndicatorState = "retrying"
	IndicatorError    IndicatorState = "error"
	IndicatorDone     IndicatorState = "done"
)

// IndicatorFields carries display fields of an indicator update.
// Zero values leave the previous value unchanged.
type IndicatorFields struct {
	Name  string
	State IndicatorState
	Total int64   // new total units, 0 keeps the current total
	Speed float64 // bytes per second, negative renders as N/A
	Note  string  // free-form suffix, e.g. remaining file count
}

// Indicator is a single live progress indicator
type Indicator interface {
	// Update sets the current units and display fields
	Update(current int64, fields IndicatorFields)

	// Remove stops the indicator and detaches it; only the first call has effect
	Remove()
}

// ProgressReporter renders one aggregate indicator and any number of item indicators
type ProgressReporter interface {
	CreateIndicator(total int64, fields IndicatorFields) Indicator
	CreateAggregateIndicator(total int64, fields IndicatorFields) Indicator

	// Stop waits for rendering to finish
	Stop()
}
