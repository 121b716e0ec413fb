package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/vitalwatch/vitalwatch/server/internal/alerts"
	"github.com/vitalwatch/vitalwatch/server/internal/receiver"
)

const namespace = "vitalwatch_"

// EngineCollector reports the alert engine's counters.
func EngineCollector(stats func() alerts.Stats) Collector {
	return func() []*dto.MetricFamily {
		s := stats()

		emitted := Family(namespace+"alerts_emitted_total", "Alerts emitted, by decoration.", dto.MetricType_COUNTER)
		Add(emitted, float64(s.Plain), Label{"variant", alerts.Plain.String()})
		Add(emitted, float64(s.Priority), Label{"variant", alerts.Priority.String()})
		Add(emitted, float64(s.Repeated), Label{"variant", alerts.Repeated.String()})

		rechecks := Family(namespace+"rechecks_total", "Scheduled rechecks, by outcome.", dto.MetricType_COUNTER)
		Add(rechecks, float64(s.RechecksConfirmed), Label{"outcome", "confirmed"})
		Add(rechecks, float64(s.RechecksMissing), Label{"outcome", "missing"})
		Add(rechecks, float64(s.RechecksRun-s.RechecksConfirmed-s.RechecksMissing), Label{"outcome", "negative"})

		return []*dto.MetricFamily{
			emitted,
			rechecks,
			Counter(namespace+"evaluation_cycles_total", "Completed evaluation cycles over all patients.", float64(s.Cycles)),
			Counter(namespace+"records_evaluated_total", "New records passed through detection strategies.", float64(s.Evaluated)),
			Counter(namespace+"records_primed_total", "Already-scanned records replayed to warm strategies.", float64(s.Primed)),
			Counter(namespace+"records_skipped_total", "Records skipped because no strategy handles their kind.", float64(s.Skipped)),
			Gauge(namespace+"strategy_sets", "Patients with live strategy state.", float64(s.Patients)),
		}
	}
}

// StoreStats is the part of the patient store the collector reads.
type StoreStats interface {
	Count() int
	Total() int
}

// StoreCollector reports patient and record counts.
func StoreCollector(s StoreStats) Collector {
	return func() []*dto.MetricFamily {
		return []*dto.MetricFamily{
			Gauge(namespace+"patients", "Patients with at least one record.", float64(s.Count())),
			Gauge(namespace+"records", "Records held across all patients.", float64(s.Total())),
		}
	}
}

// ReceiverCollector reports ingested lines by outcome.
func ReceiverCollector(stats func() receiver.Stats) Collector {
	return func() []*dto.MetricFamily {
		s := stats()
		lines := Family(namespace+"lines_total", "Measurement lines received, by outcome.", dto.MetricType_COUNTER)
		Add(lines, float64(s.Accepted), Label{"outcome", "accepted"})
		Add(lines, float64(s.Rejected), Label{"outcome", "rejected"})
		Add(lines, float64(s.Resolved), Label{"outcome", "resolved"})
		return []*dto.MetricFamily{lines}
	}
}
