package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Collector produces metric families at scrape time.
type Collector func() []*dto.MetricFamily

// Registry gathers metric families from registered collectors.
type Registry struct {
	mu         sync.Mutex
	collectors []Collector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds c to the registry.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	r.collectors = append(r.collectors, c)
	r.mu.Unlock()
}

// Gather calls every collector and returns the families sorted by name.
// Families sharing a name are merged.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	cs := append([]Collector(nil), r.collectors...)
	r.mu.Unlock()

	byName := make(map[string]*dto.MetricFamily)
	for _, c := range cs {
		for _, mf := range c() {
			if prev, ok := byName[mf.GetName()]; ok {
				prev.Metric = append(prev.Metric, mf.Metric...)
				continue
			}
			byName[mf.GetName()] = mf
		}
	}

	out := make([]*dto.MetricFamily, 0, len(byName))
	for _, mf := range byName {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Handler serves the gathered families in the text exposition format.
func (r *Registry) Handler() http.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range r.Gather() {
			if err := enc.Encode(mf); err != nil {
				slog.Error("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}

// Label is one name/value pair on a sample.
type Label struct {
	Name, Value string
}

// Family starts an empty metric family.
func Family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: typ.Enum(),
	}
}

// Add appends a sample to mf, typed after the family.
func Add(mf *dto.MetricFamily, value float64, labels ...Label) *dto.MetricFamily {
	m := &dto.Metric{}
	for _, l := range labels {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(l.Name),
			Value: proto.String(l.Value),
		})
	}
	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: proto.Float64(value)}
	case dto.MetricType_GAUGE:
		m.Gauge = &dto.Gauge{Value: proto.Float64(value)}
	default:
		m.Untyped = &dto.Untyped{Value: proto.Float64(value)}
	}
	mf.Metric = append(mf.Metric, m)
	return mf
}

// Counter returns a single-sample counter family.
func Counter(name, help string, value float64, labels ...Label) *dto.MetricFamily {
	return Add(Family(name, help, dto.MetricType_COUNTER), value, labels...)
}

// Gauge returns a single-sample gauge family.
func Gauge(name, help string, value float64, labels ...Label) *dto.MetricFamily {
	return Add(Family(name, help, dto.MetricType_GAUGE), value, labels...)
}

// GaugeFunc is a Collector reporting fn() as a gauge.
func GaugeFunc(name, help string, fn func() float64) Collector {
	return func() []*dto.MetricFamily {
		return []*dto.MetricFamily{Gauge(name, help, fn())}
	}
}
