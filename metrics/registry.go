// Package metrics implements the observability surface the core deliberately
// stays silent on (spec.md §6: "No CLI, no env vars, no on-disk persisted
// state at the core level" — metrics are an ambient, outer-layer concern,
// not a core dependency): counters and gauges for promotions, bins
// transferred, malformed control groups skipped, and notificator queue
// depth, registered against a Prometheus registry.
//
// Registry is kept as the same two-method shape as the teacher's
// metrics/prometheus package (Each/Get over a registered-metric set), now
// backed by a real prometheus.Registry rather than left as a bare
// interface with no implementation.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry exposes the subset of metric-registry behavior the rest of this
// module depends on, so callers needn't import prometheus directly.
type Registry interface {
	// Each calls f for every registered metric, keyed by name.
	Each(func(string, any))
	// Get returns the metric registered under name, or nil if none is.
	Get(string) any
}

// Set is the fixed collection of metrics binshift registers for one
// worker's operator.StatefulStateMachine: promotions and bins transferred (the
// reconfiguration path spec.md §4.3 describes), malformed control groups
// skipped (§7's error taxonomy), and notificator queue depth (§4.5, a
// gauge rather than a counter since it rises and falls with backlog).
type Set struct {
	reg *prometheus.Registry

	Promotions         prometheus.Counter
	BinsTransferred    prometheus.Counter
	MalformedSkipped   prometheus.Counter
	OrderingViolations prometheus.Counter
	NotificatorPending prometheus.Gauge
	PendingPromotions  prometheus.Gauge
}

// NewSet registers a fresh Set of metrics under the "binshift" namespace,
// with worker the worker id this Set tracks (so multiple workers in one
// process, e.g. the cmd/binshift replay driver, don't collide on metric
// identity).
func NewSet(reg *prometheus.Registry, worker uint32) *Set {
	labels := prometheus.Labels{"worker": workerLabel(worker)}

	s := &Set{
		reg: reg,
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "binshift",
			Name:        "promotions_total",
			Help:        "Control sets promoted from pending to active.",
			ConstLabels: labels,
		}),
		BinsTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "binshift",
			Name:        "bins_transferred_total",
			Help:        "Bins drained and handed off to a new owner across all promotions.",
			ConstLabels: labels,
		}),
		MalformedSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "binshift",
			Name:        "malformed_control_commands_skipped_total",
			Help:        "Control commands dropped for failing a well-formedness check.",
			ConstLabels: labels,
		}),
		OrderingViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "binshift",
			Name:        "control_ordering_violations_total",
			Help:        "Control sets closed with a frontier not dominated by their predecessor.",
			ConstLabels: labels,
		}),
		NotificatorPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "binshift",
			Name:        "notificator_pending",
			Help:        "Notifications currently held back by an open input frontier.",
			ConstLabels: labels,
		}),
		PendingPromotions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "binshift",
			Name:        "pending_control_sets",
			Help:        "Control sets queued for promotion.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		s.Promotions,
		s.BinsTransferred,
		s.MalformedSkipped,
		s.OrderingViolations,
		s.NotificatorPending,
		s.PendingPromotions,
	)
	return s
}

// Each satisfies Registry by delegating to the underlying
// prometheus.Registry's Gather, reporting each metric family by name.
func (s *Set) Each(f func(string, any)) {
	families, err := s.reg.Gather()
	if err != nil {
		return
	}
	for _, fam := range families {
		f(fam.GetName(), fam)
	}
}

// Get satisfies Registry by scanning Gather's output for name. Linear in
// the number of registered families, which for this module's fixed,
// small metric set is never a concern.
func (s *Set) Get(name string) any {
	families, err := s.reg.Gather()
	if err != nil {
		return nil
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	return nil
}

func workerLabel(w uint32) string {
	return strconv.FormatUint(uint64(w), 10)
}
