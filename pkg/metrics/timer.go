package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

// Float64Timer records durations in milliseconds.
type Float64Timer struct {
	measureMs *stats.Float64Measure
	view      *view.View
}

// NewTimerMs registers a millisecond timer with a distribution view.
func NewTimerMs(name, desc string) *Float64Timer {
	log.Debugf("registering timer: %s - %s", name, desc)
	fMeasure := stats.Float64(name, desc, stats.UnitMilliseconds)
	fView := &view.View{
		Name:        name,
		Measure:     fMeasure,
		Description: desc,
		Aggregation: view.Distribution(1, 10, 100, 1000, 10000, 100000),
	}
	if err := view.Register(fView); err != nil {
		panic(err)
	}

	return &Float64Timer{
		measureMs: fMeasure,
		view:      fView,
	}
}

// Start begins a measurement.
func (t *Float64Timer) Start(ctx context.Context) *Stopwatch {
	return &Stopwatch{
		start:  time.Now(),
		record: t.measureMs,
	}
}

// View returns the registered view.
func (t *Float64Timer) View() *view.View {
	return t.view
}

// Stopwatch is one running measurement of a Float64Timer.
type Stopwatch struct {
	start  time.Time
	record *stats.Float64Measure
}

// Stop records the time elapsed since Start and returns it.
func (sw *Stopwatch) Stop(ctx context.Context) time.Duration {
	d := time.Since(sw.start)
	stats.Record(ctx, sw.record.M(float64(d)/float64(time.Millisecond)))
	return d
}
