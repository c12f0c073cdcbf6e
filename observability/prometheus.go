package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registerer.
// Dotted metric names are converted to Prometheus form: the dots become
// underscores and counters get a _total suffix.
type PrometheusFactory struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	buckets    []float64
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory returns a factory that registers its metrics with
// reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		registerer: reg,
		buckets:    prometheus.ExponentialBuckets(1, 10, 10),
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Counter implements MetricFactory. Asking twice for the same name returns
// the same counter.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Total " + strings.ReplaceAll(name, ".", " ") + ".",
	})
	c = register(f.registerer, c)
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + strings.ReplaceAll(name, ".", " ") + ".",
		Buckets: f.buckets,
	})
	h = register(f.registerer, h)
	f.histograms[name] = h
	return h
}

// register adds c to reg, reusing an identical collector that is already
// registered there.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
