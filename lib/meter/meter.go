// Package meter collects per-operation metrics for a cluster. The facade
// reports every public call's name, outcome and duration; the collected
// series can be dumped in Prometheus text format at any time.
package meter

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/couchkit/couchkit/lib/errors"
)

// Ensure implementations satisfy the interface.
var (
	_ IMeter = &setMeter{}
	_ IMeter = &nopMeter{}
)

// IMeter observes completed operations. The cluster shares one meter across
// all handles derived from it, so implementations must be safe for
// concurrent use.
type IMeter interface {
	// Observe records one completed operation under
	// couchkit_operations_total{op,outcome} and
	// couchkit_operation_duration_seconds{op}. The outcome label is "ok"
	// for a nil error and the error code otherwise.
	Observe(op string, err error, elapsed time.Duration)
	// WritePrometheus dumps all collected series in Prometheus text format.
	WritePrometheus(w io.Writer)
}

// NopMeter represents an IMeter that doesn't record anything. It is the
// default of a cluster that configured none.
var NopMeter IMeter = &nopMeter{}

type nopMeter struct{}

func (n *nopMeter) Observe(op string, err error, elapsed time.Duration) {}
func (n *nopMeter) WritePrometheus(w io.Writer)                         {}

// setMeter records into an isolated metrics set so that several clusters in
// one process never mix their series.
type setMeter struct {
	set *metrics.Set
}

// New returns a meter backed by a fresh metrics set.
func New() IMeter {
	return &setMeter{set: metrics.NewSet()}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IMeter)
// --------------------------------------------------------------------------

func (m *setMeter) Observe(op string, err error, elapsed time.Duration) {
	m.set.GetOrCreateCounter(fmt.Sprintf(
		`couchkit_operations_total{op=%q,outcome=%q}`, op, outcome(err))).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(
		`couchkit_operation_duration_seconds{op=%q}`, op)).Update(elapsed.Seconds())
}

func (m *setMeter) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// outcome renders the error as a bounded label value: "ok" or the error
// code (CodeOf yields Uncoded for foreign errors, keeping the set closed).
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errors.CodeOf(err))
}
