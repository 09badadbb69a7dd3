package routing

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/log"
	"github.com/frontd/frontd/internal/metrics"
	"github.com/getsentry/sentry-go"
)

// Security headers injected for hostnames that have a known certificate.
const (
	hstsHeader = "max-age=31536000; includeSubDomains; preload"
	cspHeader  = "upgrade-insecure-requests"
)

// Dispatcher is the per-request entry point.  It resolves the target
// hostname, walks the fallthrough chain, injects security headers, and maps
// absence and failure to HTTP status codes.
type Dispatcher struct {
	table        *Table
	hasCert      func(domain string) (ok bool)
	reportPanics bool
}

// NewDispatcher creates a dispatcher over the assembled table.  hasCert
// reports whether a hostname has a known certificate and may be nil.  When
// reportPanics is set, recovered handler panics are forwarded to sentry.
func NewDispatcher(table *Table, hasCert func(domain string) (ok bool), reportPanics bool) (d *Dispatcher) {
	return &Dispatcher{
		table:        table,
		hasCert:      hasCert,
		reportPanics: reportPanics,
	}
}

// type check
var _ http.Handler = (*Dispatcher)(nil)

// ServeHTTP implements the http.Handler interface for *Dispatcher.
//
// A handler failure continues the walk only while the response is untouched;
// once headers are out the walk stops, so a partially handled request is
// never handled twice.  An exhausted chain is a 404 when clean and a 500
// when at least one handler failed along the way.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hostname := requestHostname(r)
	if hostname != "" {
		metrics.ObserveHost(hostname)
	}

	if hostname != "" && d.hasCert != nil && d.hasCert(hostname) {
		w.Header().Set("Strict-Transport-Security", hstsHeader)
		w.Header().Set("Content-Security-Policy", cspHeader)
	}

	chain := d.table.Lookup(hostname)
	if len(chain) == 0 {
		log.Debug("dispatch: no routes for %q", hostname)
		metrics.RequestsTotal.WithLabelValues("none", "502").Inc()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("no application configured\n"))

		return
	}

	sw := &statusWriter{ResponseWriter: w}
	failed := false

	for _, entry := range chain {
		handled, err := d.invoke(entry, sw, r)
		if err != nil {
			failed = true
			log.Error(
				"dispatch: handler %s (%s) for %s: %v",
				entry.Provenance,
				entry.Kind,
				hostname,
				err,
			)
			metrics.HandlerFailuresTotal.WithLabelValues(string(entry.Kind)).Inc()

			if sw.wroteHeader {
				// The response is already underway, walking further
				// would risk handling the request twice.
				return
			}

			continue
		}

		if handled {
			metrics.RequestsTotal.
				WithLabelValues(string(entry.Kind), strconv.Itoa(sw.status())).
				Inc()

			return
		}
	}

	if sw.wroteHeader {
		return
	}

	if failed {
		metrics.RequestsTotal.WithLabelValues("none", "500").Inc()
		http.Error(sw, "Internal server error", http.StatusInternalServerError)

		return
	}

	metrics.RequestsTotal.WithLabelValues("none", "404").Inc()
	http.Error(sw, "Not found", http.StatusNotFound)
}

// invoke runs one handler of the chain, converting a panic into a returned
// error so that it never reaches the transport layer.
func (d *Dispatcher) invoke(
	entry Entry,
	w http.ResponseWriter,
	r *http.Request,
) (handled bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			if d.reportPanics {
				sentry.CurrentHub().Recover(v)
			}

			handled = false
			err = fmt.Errorf("handler panic: %v", v)
		}
	}()

	return entry.Handler.Handle(w, r)
}

// requestHostname extracts the lowercase hostname of the request with the
// optional port stripped.  An unresolvable host yields the empty string,
// which matches no route.
func requestHostname(r *http.Request) (hostname string) {
	hostname = r.Host
	if strings.Contains(hostname, ":") {
		if h, _, err := net.SplitHostPort(hostname); err == nil {
			hostname = h
		}
	}

	return strings.ToLower(strings.TrimSuffix(hostname, "."))
}

// statusWriter tracks whether a handler has started the response and with
// what status code.
type statusWriter struct {
	http.ResponseWriter

	code        int
	wroteHeader bool
}

// WriteHeader implements the http.ResponseWriter interface for
// *statusWriter.
func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
		sw.code = code
	}

	sw.ResponseWriter.WriteHeader(code)
}

// Write implements the http.ResponseWriter interface for *statusWriter.
func (sw *statusWriter) Write(b []byte) (n int, err error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
		sw.code = http.StatusOK
	}

	return sw.ResponseWriter.Write(b)
}

// Flush implements the http.Flusher interface for *statusWriter when the
// underlying writer supports it.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// status returns the recorded status code, defaulting to 200.
func (sw *statusWriter) status() (code int) {
	if !sw.wroteHeader {
		return http.StatusOK
	}

	return sw.code
}
