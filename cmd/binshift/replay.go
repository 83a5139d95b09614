package main

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slog"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/metrics"
	"github.com/binshift/binshift/operator"
	"github.com/binshift/binshift/planfile"
)

// concreteTypeValue reports the concrete runtime type of a log field as
// determined by the %T fmt verb, so a log line can show what kind of
// aggregate state a transfer actually carried (a worker's Agg is generic,
// opaque to the log package itself).
type concreteTypeValue struct{ v any }

func (v concreteTypeValue) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("%T", v.v))
}

// tick is the replay driver's timestamp type: one migration-plan group per
// tick, per planfile's documented grammar.
type tick int64

func (t tick) Less(o tick) bool { return t < o }

// demoKeys is the fixed rotating key set the replay driver feeds through
// the state machine; a real deployment would read these off an actual
// input stream (spec.md §2), which is out of scope for this illustrative
// binary.
var demoKeys = []string{"alice", "bob", "carol", "dave"}

func hashKey(k string) uint64 { return xxhash.Sum64String(k) }

func sumFold(key string, v int64, agg *int64) (remove bool, outputs []string) {
	*agg += v
	return false, []string{fmt.Sprintf("%s=%d", key, *agg)}
}

// runReplay drives one simulated run of cfg.Workers state machines through
// the migration plan at cfg.Plan, submitting a small synthetic input stream
// alongside it so promotions and transfers have something to reorder around.
//
// This is a single-process, sequential simulation: every worker's machine
// is driven from the same goroutine, one tick fully settling (records
// submitted, notifications advanced, any resulting transfers delivered)
// before the next begins. The core itself (router/state/operator) makes no
// such assumption — spec.md §5 calls for one OS thread per worker — but a
// deterministic, single-threaded replay is the simplest way to exercise the
// whole reconfiguration path in one illustrative binary.
func runReplay(cfg Config, reg *prometheus.Registry, logger log.Logger) error {
	groups, err := loadPlan(cfg.Plan)
	if err != nil {
		return fmt.Errorf("loading plan %q: %w", cfg.Plan, err)
	}

	bottom := frontier.NewAntichain[tick](0)
	machines := make([]*operator.StatefulStateMachine[tick, string, int64, int64, string], cfg.Workers)
	sets := make([]*metrics.Set, cfg.Workers)
	for w := range machines {
		m := operator.NewStatefulStateMachine[tick, string, int64, int64, string](bin.Worker(w), cfg.BinShift, hashKey, sumFold, bottom)
		set := metrics.NewSet(reg, uint32(w))
		m.OnMalformed(func(err error) {
			set.MalformedSkipped.Inc()
			logger.Warn("skipped malformed control command", "worker", w, "err", err)
		})
		m.OnOrderingViolation(func(err error) {
			set.OrderingViolations.Inc()
			logger.Warn("control set ordering violation", "worker", w, "err", err)
		})
		machines[w] = m
		sets[w] = set
	}
	defer func() {
		for _, m := range machines {
			m.Close()
		}
	}()

	for i, group := range groups {
		t := tick(group.Sequence)
		closedAt := frontier.NewAntichain(t + 1)

		for _, m := range machines {
			for _, cmd := range group.Commands {
				m.IngestControl(t, cmd)
			}
			m.CloseControl(t)
			m.AdvanceControlInput(closedAt)
			m.AdvanceRecordInput(closedAt)
			m.AdvanceTransferInput(closedAt)
		}

		for w, m := range machines {
			remote, out := m.DrainRouter()
			logOutputs(logger, w, out)
			deliverRemote(machines, logger, remote)
		}

		for w, m := range machines {
			key := demoKeys[(i+w)%len(demoKeys)]
			remote, out := m.Submit(t, []string{key}, []int64{int64(i + 1)})
			logOutputs(logger, w, out)
			deliverRemote(machines, logger, remote)
		}

		pendingBefore := make([]int, len(machines))
		for w, m := range machines {
			pendingBefore[w] = m.PendingPromotions()
		}
		for w, m := range machines {
			out, transfers := m.Advance()
			logOutputs(logger, w, out)
			for _, tr := range transfers {
				sets[w].BinsTransferred.Inc()
				logger.Info("bin migrated", "from", w, "to", tr.Worker, "bin", tr.Bin, "at", tr.Time,
					"entries", len(tr.Entries), "agg", concreteTypeValue{tr.Entries})

				target := machines[tr.Worker]
				target.DeliverTransfer(operator.Transfer[tick, string, int64]{
					Time: tr.Time, Worker: tr.Worker, Bin: tr.Bin, Entries: tr.Entries,
				})
				out2, _ := target.Advance()
				logOutputs(logger, int(tr.Worker), out2)
			}
		}

		for w, m := range machines {
			sets[w].Promotions.Add(float64(pendingBefore[w] - m.PendingPromotions()))
			sets[w].PendingPromotions.Set(float64(m.PendingPromotions()))
			sets[w].NotificatorPending.Set(float64(m.PendingNotifications()))
		}
	}
	return nil
}

func deliverRemote(machines []*operator.StatefulStateMachine[tick, string, int64, int64, string], logger log.Logger, remote []operator.RemoteRecord[tick, string, int64]) {
	for _, rr := range remote {
		target := machines[rr.Record.TargetWorker]
		out := target.DeliverRemote(rr)
		logOutputs(logger, int(rr.Record.TargetWorker), out)
	}
}

func logOutputs(logger log.Logger, worker int, out []string) {
	for _, o := range out {
		logger.Debug("output", "worker", worker, "result", o)
	}
}

func loadPlan(path string) ([]planfile.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return planfile.Parse(f)
}
