// Package metrics contains definitions of most of the prometheus metrics
// that we use in frontd.
package metrics

import (
	"sync"

	"github.com/axiomhq/hyperloglog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// constants with the namespace and the subsystem names that we use in our
// prometheus metrics.
const (
	namespace = "frontd"

	subsystemApp    = "app"
	subsystemWeb    = "web"
	subsystemRoutes = "routes"
)

// RequestsTotal is the total number of HTTP requests dispatched, labeled by
// the handler kind that produced the response and the resulting status code.
var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: subsystemWeb,
	Name:      "requests_total",
	Help:      "The total number of dispatched HTTP requests.",
}, []string{"kind", "status"})

// HandlerFailuresTotal is the total number of handler failures recovered by
// the dispatcher.
var HandlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: subsystemWeb,
	Name:      "handler_failures_total",
	Help:      "The total number of handler failures caught by the dispatcher.",
}, []string{"kind"})

// RoutedDomainsNum is a gauge with the number of hostnames present in the
// assembled routing table.
var RoutedDomainsNum = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: subsystemRoutes,
	Name:      "domains_num",
	Help:      "The number of hostnames in the routing table.",
})

// uniqueHostsGauge is an estimate of the number of unique hostnames served
// since the process started.
var uniqueHostsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: subsystemWeb,
	Name:      "unique_hosts_estimate",
	Help:      "An estimate of the number of unique hostnames served.",
})

// uniqueHosts is the hyperloglog sketch behind uniqueHostsGauge.  Protected
// by uniqueHostsMu since sketches are not safe for concurrent use.
var (
	uniqueHosts   = hyperloglog.New16()
	uniqueHostsMu sync.Mutex
)

// ObserveHost records the hostname of a served request in the unique hosts
// estimate.
func ObserveHost(hostname string) {
	uniqueHostsMu.Lock()
	defer uniqueHostsMu.Unlock()

	uniqueHosts.Insert([]byte(hostname))
	uniqueHostsGauge.Set(float64(uniqueHosts.Estimate()))
}

// SetUpGauge signals that the server has been started.  Use a function here to
// avoid circular dependencies.
func SetUpGauge(version, goVersion string) {
	upGauge := promauto.NewGauge(
		prometheus.GaugeOpts{
			Name:      "up",
			Namespace: namespace,
			Subsystem: subsystemApp,
			Help:      `A metric with a constant '1' value labeled by the build information.`,
			ConstLabels: prometheus.Labels{
				"version":   version,
				"goversion": goVersion,
			},
		},
	)

	upGauge.Set(1)
}
