// Package metrics exposes algo and API telemetry to Prometheus.
//
//   - vimana_algo_value{instance,name}        last value of an algo gauge
//   - vimana_algo_events_total{instance,name} algo event counters
//   - vimana_http_requests_total{method,code} API requests served
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
)

// Registry owns the collectors of the process.
type Registry struct {
	reg      *prometheus.Registry
	values   *prometheus.GaugeVec
	events   *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// NewRegistry creates the collectors and registers them, along with the Go
// runtime and process collectors, on a fresh registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vimana_algo_value",
				Help: "Last value reported by an algo instance (prices, spread, executed quantities).",
			},
			[]string{"instance", "name"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vimana_algo_events_total",
				Help: "Events counted by algo instances (transitions, orders, errors).",
			},
			[]string{"instance", "name"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vimana_http_requests_total",
				Help: "API requests served by method and status code.",
			},
			[]string{"method", "code"},
		),
	}
	r.reg.MustRegister(
		r.values,
		r.events,
		r.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// For returns the recorder of one instance.
func (r *Registry) For(instance string) algo.Recorder {
	return &recorder{reg: r, instance: instance}
}

// Forget drops every series of an ended instance.
func (r *Registry) Forget(instance string) {
	r.values.DeletePartialMatch(prometheus.Labels{"instance": instance})
	r.events.DeletePartialMatch(prometheus.Labels{"instance": instance})
}

// ObserveRequest counts one served request.
func (r *Registry) ObserveRequest(method string, code int) {
	r.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

type recorder struct {
	reg      *Registry
	instance string
}

func (rc *recorder) Gauge(name string, value decimal.Decimal) {
	rc.reg.values.WithLabelValues(rc.instance, name).Set(value.InexactFloat64())
}

func (rc *recorder) Count(name string) {
	rc.reg.events.WithLabelValues(rc.instance, name).Inc()
}

var _ algo.Recorder = (*recorder)(nil)
