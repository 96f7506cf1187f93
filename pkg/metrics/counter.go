// Package metrics wraps the opencensus measures recorded while sealing,
// proving and verifying.
package metrics

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var log = logging.Logger("metrics")

// Int64Counter wraps an opencensus int64 measure used as a counter.
type Int64Counter struct {
	measureCt *stats.Int64Measure
	view      *view.View
}

// NewInt64Counter creates a dimensionless counter summed over all records.
// Extra tag keys are attached to the view and set with IncWithTags.
func NewInt64Counter(name, desc string, keys ...tag.Key) *Int64Counter {
	log.Debugf("registering int64 counter: %s - %s", name, desc)
	iMeasure := stats.Int64(name, desc, stats.UnitDimensionless)
	iView := &view.View{
		Name:        name,
		Measure:     iMeasure,
		Description: desc,
		TagKeys:     keys,
		Aggregation: view.Sum(),
	}
	if err := view.Register(iView); err != nil {
		// counters are created from package level vars, so this fails at
		// program start.
		panic(err)
	}

	return &Int64Counter{
		measureCt: iMeasure,
		view:      iView,
	}
}

// Inc increments the counter by `v`.
func (c *Int64Counter) Inc(ctx context.Context, v int64) {
	stats.Record(ctx, c.measureCt.M(v))
}

// IncWithTags increments the counter by `v` under the given tag values.
func (c *Int64Counter) IncWithTags(ctx context.Context, v int64, mutators ...tag.Mutator) {
	if err := stats.RecordWithTags(ctx, mutators, c.measureCt.M(v)); err != nil {
		log.Warnf("recording %s: %s", c.view.Name, err)
	}
}

// View returns the registered view.
func (c *Int64Counter) View() *view.View {
	return c.view
}
