// Package appmod holds the build-time registry of in-process application
// modules.  An application artifact on disk refers to a module registered
// here by name; the module's initializer produces the actual request handler
// and the domain list it claims.
package appmod

import (
	"fmt"
	"sync"

	"github.com/frontd/frontd/internal/routing"
)

// Context is passed to a module initializer that wants it.
type Context struct {
	// ArtifactPath is the normalized absolute path of the artifact file
	// that referenced the module.
	ArtifactPath string
}

// App is the resolved result of a module initializer: the request handler
// plus the domains it claims.
type App struct {
	// Handler handles requests routed to the module.  Required.
	Handler routing.Handler

	// Domains is the list of hostnames the module claims.
	Domains []string

	// Domain is the scalar form of Domains, used when the module claims a
	// single hostname.
	Domain string

	// Meta carries free-form module metadata.
	Meta map[string]string
}

// InitFunc initializes a module.  The context argument may be ignored.
type InitFunc func(ctx *Context) (app *App, err error)

// Module is a registered application module.  Either Init or Handler must be
// set; Init takes precedence.
type Module struct {
	// Init produces the resolved app.  Optional when Handler is set.
	Init InitFunc

	// Handler is used directly when no initializer is declared.
	Handler routing.Handler

	// Domains is the module-level domain declaration, used when the
	// initializer's result declares none.
	Domains []string

	// Domain is the scalar form of Domains.
	Domain string

	// Meta carries module-level metadata, merged under the resolved
	// app's own metadata.
	Meta map[string]string
}

// registry is the process-wide module registry.  Registration happens from
// init funcs, resolution after startup, so a plain mutex suffices.
var (
	registry   = map[string]*Module{}
	registryMu sync.Mutex
)

// Register adds a module to the registry under the given name.  It panics on
// an empty name or a duplicate registration, both programmer errors.
func Register(name string, m *Module) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" {
		panic("appmod: empty module name")
	}

	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("appmod: module %q registered twice", name))
	}

	registry[name] = m
}

// Lookup returns the module registered under name.
func Lookup(name string) (m *Module, ok bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	m, ok = registry[name]

	return m, ok
}

// Resolve looks up and initializes the module registered under name.  The
// resolved app must expose a handler and a non-empty domain list; the
// module-level declarations fill in whatever the initializer's result omits.
// Each failure mode is a distinct error so that the caller can log the skip
// reason.
func Resolve(name string, ctx *Context) (app *App, err error) {
	m, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("appmod: no registered module %q", name)
	}

	if m.Init != nil {
		app, err = m.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("appmod: module %q failed to initialize: %w", name, err)
		}

		if app == nil {
			app = &App{}
		}
	} else {
		app = &App{Handler: m.Handler}
	}

	if app.Handler == nil {
		return nil, fmt.Errorf("appmod: module %q resolved without a handler", name)
	}

	app.Domains = mergeDomains(app, m)
	if len(app.Domains) == 0 {
		return nil, fmt.Errorf("appmod: module %q declares no domains", name)
	}

	app.Meta = mergeMeta(m.Meta, app.Meta)

	return app, nil
}

// mergeDomains picks the first non-empty domain declaration: the resolved
// app's list, its scalar form, then the module-level equivalents.
func mergeDomains(app *App, m *Module) (domains []string) {
	switch {
	case len(app.Domains) > 0:
		return app.Domains
	case app.Domain != "":
		return []string{app.Domain}
	case len(m.Domains) > 0:
		return m.Domains
	case m.Domain != "":
		return []string{m.Domain}
	default:
		return nil
	}
}

// mergeMeta merges the module-level metadata with the resolved app's
// metadata, the latter taking precedence on key collisions.
func mergeMeta(moduleMeta, appMeta map[string]string) (meta map[string]string) {
	if moduleMeta == nil && appMeta == nil {
		return nil
	}

	meta = make(map[string]string, len(moduleMeta)+len(appMeta))
	for k, v := range moduleMeta {
		meta[k] = v
	}

	for k, v := range appMeta {
		meta[k] = v
	}

	return meta
}

// reset clears the registry.  Tests only.
func reset() {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry = map[string]*Module{}
}
