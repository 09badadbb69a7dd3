package routing_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frontd/frontd/internal/artifact"
	"github.com/frontd/frontd/internal/routing"
	"github.com/stretchr/testify/require"
)

// respondWith returns a handler that writes body with status and reports the
// request as handled.
func respondWith(status int, body string) (h routing.Handler) {
	return routing.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) (handled bool, err error) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))

		return true, nil
	})
}

// deferring returns a handler that always defers to the next handler in the
// chain, recording that it ran.
func deferring(ran *bool) (h routing.Handler) {
	return routing.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) (handled bool, err error) {
		*ran = true

		return false, nil
	})
}

func get(t *testing.T, d *routing.Dispatcher, host string) (rec *httptest.ResponseRecorder) {
	t.Helper()

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://"+host+"/", nil)
	r.Host = host

	d.ServeHTTP(rec, r)

	return rec
}

func TestDispatcher_singleKind(t *testing.T) {
	table := routing.BuildTable(nil, nil, []routing.Bound{{
		Handler:    respondWith(http.StatusTeapot, "app"),
		Kind:       artifact.KindApplication,
		Provenance: "demo.app",
		Domains:    []string{"example.com"},
	}})

	d := routing.NewDispatcher(table, nil, false)

	rec := get(t, d, "example.com")
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "app", rec.Body.String())

	// Host matching is case-insensitive and ignores the port.
	rec = get(t, d, "EXAMPLE.com:8443")
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestDispatcher_priority(t *testing.T) {
	proxyRan := false

	table := routing.BuildTable(
		[]routing.Bound{{
			Handler:    deferring(&proxyRan),
			Kind:       artifact.KindProxy,
			Provenance: "svc.proxy",
			Domains:    []string{"example.com"},
		}},
		[]routing.Bound{{
			Handler:    respondWith(http.StatusOK, "static"),
			Kind:       artifact.KindStatic,
			Provenance: "site.static",
			Domains:    []string{"example.com"},
		}},
		nil,
	)

	d := routing.NewDispatcher(table, nil, false)

	rec := get(t, d, "example.com")
	require.True(t, proxyRan)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "static", rec.Body.String())
}

func TestDispatcher_noRoute(t *testing.T) {
	d := routing.NewDispatcher(routing.BuildTable(nil, nil, nil), nil, false)

	rec := get(t, d, "unknown.test")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "no application configured")
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestDispatcher_exhausted(t *testing.T) {
	ran := false

	table := routing.BuildTable(nil, []routing.Bound{{
		Handler:    deferring(&ran),
		Kind:       artifact.KindStatic,
		Provenance: "site.static",
		Domains:    []string{"example.com"},
	}}, nil)

	d := routing.NewDispatcher(table, nil, false)

	rec := get(t, d, "example.com")
	require.True(t, ran)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatcher_failureRecovery(t *testing.T) {
	panicking := routing.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) (handled bool, err error) {
		panic("boom")
	})

	t.Run("next_handler_runs", func(t *testing.T) {
		table := routing.BuildTable(
			[]routing.Bound{{
				Handler:    panicking,
				Kind:       artifact.KindProxy,
				Provenance: "svc.proxy",
				Domains:    []string{"example.com"},
			}},
			[]routing.Bound{{
				Handler:    respondWith(http.StatusOK, "recovered"),
				Kind:       artifact.KindStatic,
				Provenance: "site.static",
				Domains:    []string{"example.com"},
			}},
			nil,
		)

		d := routing.NewDispatcher(table, nil, false)

		rec := get(t, d, "example.com")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "recovered", rec.Body.String())
	})

	t.Run("exhausted_after_failure", func(t *testing.T) {
		table := routing.BuildTable(nil, nil, []routing.Bound{{
			Handler:    panicking,
			Kind:       artifact.KindApplication,
			Provenance: "demo.app",
			Domains:    []string{"example.com"},
		}})

		d := routing.NewDispatcher(table, nil, false)

		rec := get(t, d, "example.com")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("stops_after_partial_response", func(t *testing.T) {
		partial := routing.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) (handled bool, err error) {
			w.WriteHeader(http.StatusAccepted)

			panic("mid-response")
		})

		nextRan := false

		table := routing.BuildTable(nil, []routing.Bound{{
			Handler:    partial,
			Kind:       artifact.KindStatic,
			Provenance: "site.static",
			Domains:    []string{"example.com"},
		}, {
			Handler:    deferring(&nextRan),
			Kind:       artifact.KindStatic,
			Provenance: "other.static",
			Domains:    []string{"example.com"},
		}}, nil)

		d := routing.NewDispatcher(table, nil, false)

		rec := get(t, d, "example.com")
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.False(t, nextRan)
	})
}

func TestDispatcher_securityHeaders(t *testing.T) {
	table := routing.BuildTable(nil, nil, []routing.Bound{{
		Handler:    respondWith(http.StatusOK, "ok"),
		Kind:       artifact.KindApplication,
		Provenance: "demo.app",
		Domains:    []string{"secure.test", "insecure.test"},
	}})

	hasCert := func(domain string) (ok bool) { return domain == "secure.test" }
	d := routing.NewDispatcher(table, hasCert, false)

	rec := get(t, d, "secure.test")
	require.Equal(
		t,
		"max-age=31536000; includeSubDomains; preload",
		rec.Header().Get("Strict-Transport-Security"),
	)
	require.Equal(
		t,
		"upgrade-insecure-requests",
		rec.Header().Get("Content-Security-Policy"),
	)

	rec = get(t, d, "insecure.test")
	require.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	require.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestBuildTable_appendWithinKind(t *testing.T) {
	first := false
	second := false

	table := routing.BuildTable(nil, []routing.Bound{{
		Handler:    deferring(&first),
		Kind:       artifact.KindStatic,
		Provenance: "a.static",
		Domains:    []string{"example.com"},
	}, {
		Handler:    deferring(&second),
		Kind:       artifact.KindStatic,
		Provenance: "b.static",
		Domains:    []string{"example.com"},
	}}, nil)

	d := routing.NewDispatcher(table, nil, false)

	rec := get(t, d, "example.com")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.True(t, first)
	require.True(t, second)
}
