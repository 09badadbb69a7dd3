// Package routing implements the per-hostname routing table and the request
// dispatcher that walks the fallthrough chain.
package routing

import (
	"net/http"
	"strings"

	"github.com/frontd/frontd/internal/artifact"
)

// Handler handles a request for a matched hostname.  It returns handled=true
// when it produced the response and handled=false to defer to the next
// handler in the chain.
type Handler interface {
	Handle(w http.ResponseWriter, r *http.Request) (handled bool, err error)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// handlers.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (handled bool, err error)

// type check
var _ Handler = HandlerFunc(nil)

// Handle implements the Handler interface for HandlerFunc.
func (f HandlerFunc) Handle(w http.ResponseWriter, r *http.Request) (handled bool, err error) {
	return f(w, r)
}

// Bound is a handler bound to the domains its artifact declares.
type Bound struct {
	// Handler is the runnable handler.
	Handler Handler

	// Kind is the kind of the artifact the handler was built from.
	Kind artifact.Kind

	// Provenance identifies the artifact in logs, usually its filename.
	Provenance string

	// Domains is the list of hostnames the handler serves.
	Domains []string
}

// Entry is one element of a hostname's fallthrough chain.
type Entry struct {
	// Handler is the runnable handler.
	Handler Handler

	// Kind is the kind of the artifact the handler was built from.
	Kind artifact.Kind

	// Provenance identifies the artifact in logs.
	Provenance string
}

// Table maps lowercase hostnames to their ordered fallthrough chains.  A
// table is built once from the final descriptor lists and never mutated, so
// it is safe for concurrent lookups.
type Table struct {
	routes map[string][]Entry
}

// BuildTable assembles the routing table.  Insertion happens in the fixed
// priority order: proxy handlers first, then static, then application, and
// within the same hostname later insertions append to the chain rather than
// replace earlier ones.
func BuildTable(proxies, statics, apps []Bound) (t *Table) {
	t = &Table{routes: map[string][]Entry{}}

	for _, group := range [][]Bound{proxies, statics, apps} {
		for _, b := range group {
			t.insert(b)
		}
	}

	return t
}

// insert appends the bound handler to the chain of each of its domains.
func (t *Table) insert(b Bound) {
	for _, domain := range b.Domains {
		domain = strings.ToLower(domain)
		if domain == "" {
			continue
		}

		t.routes[domain] = append(t.routes[domain], Entry{
			Handler:    b.Handler,
			Kind:       b.Kind,
			Provenance: b.Provenance,
		})
	}
}

// Lookup returns the fallthrough chain for hostname, or nil when the
// hostname has no routes.
func (t *Table) Lookup(hostname string) (chain []Entry) {
	return t.routes[hostname]
}

// Len returns the number of hostnames in the table.
func (t *Table) Len() (n int) {
	return len(t.routes)
}
