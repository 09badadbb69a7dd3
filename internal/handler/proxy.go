package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/frontd/frontd/internal/routing"
	"golang.org/x/net/proxy"
)

// proxyErrKey is the context key under which a request carries its upstream
// error slot.
type proxyErrKey struct{}

// proxyHandler forwards requests unmodified to a local upstream.  The
// inbound Host header is preserved.
type proxyHandler struct {
	target *url.URL
	rp     *httputil.ReverseProxy
}

// NewProxy builds a reverse-proxy handler for the resolved target URL.
// When outbound is not nil, upstream connections are dialed through that
// proxy, in the format [protocol://username:password@]host[:port].
func NewProxy(target string, outbound *url.URL) (h routing.Handler, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("handler: invalid proxy target %q: %w", target, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("handler: proxy target %q has no scheme or host", target)
	}

	dialer := proxy.Dialer(proxy.Direct)
	if outbound != nil {
		dialer, err = proxy.FromURL(outbound, dialer)
		if err != nil {
			return nil, fmt.Errorf("handler: invalid outbound proxy: %w", err)
		}
	}

	transport := &http.Transport{}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.Dial = dialer.Dial
	}

	ph := &proxyHandler{target: u}
	ph.rp = &httputil.ReverseProxy{
		Director:  ph.direct,
		Transport: transport,
		ErrorHandler: func(_ http.ResponseWriter, r *http.Request, rpErr error) {
			// Record the error instead of writing a response so that the
			// chain can still fall through to the next handler.
			if slot, ok := r.Context().Value(proxyErrKey{}).(*error); ok {
				*slot = rpErr
			}
		},
	}

	return ph, nil
}

// type check
var _ routing.Handler = (*proxyHandler)(nil)

// direct rewrites the request URL to point at the upstream.  The request's
// Host header is deliberately left untouched.
func (h *proxyHandler) direct(req *http.Request) {
	req.URL.Scheme = h.target.Scheme
	req.URL.Host = h.target.Host

	if h.target.Path != "" && h.target.Path != "/" {
		req.URL.Path = singleJoiningSlash(h.target.Path, req.URL.Path)
	}
}

// Handle implements the routing.Handler interface for *proxyHandler.  An
// upstream failure before any response bytes defers to the next handler in
// the chain; after bytes are out the response counts as produced.
func (h *proxyHandler) Handle(w http.ResponseWriter, r *http.Request) (handled bool, err error) {
	var upstreamErr error

	cw := &writeTracker{ResponseWriter: w}
	r = r.WithContext(context.WithValue(r.Context(), proxyErrKey{}, &upstreamErr))

	h.rp.ServeHTTP(cw, r)

	if upstreamErr != nil {
		return cw.wrote, fmt.Errorf("handler: proxying to %s: %w", h.target, upstreamErr)
	}

	return true, nil
}

// writeTracker records whether anything has been written to the response.
type writeTracker struct {
	http.ResponseWriter

	wrote bool
}

// WriteHeader implements the http.ResponseWriter interface for
// *writeTracker.
func (wt *writeTracker) WriteHeader(code int) {
	wt.wrote = true
	wt.ResponseWriter.WriteHeader(code)
}

// Write implements the http.ResponseWriter interface for *writeTracker.
func (wt *writeTracker) Write(b []byte) (n int, err error) {
	wt.wrote = true

	return wt.ResponseWriter.Write(b)
}

// Flush implements the http.Flusher interface for *writeTracker when the
// underlying writer supports it.
func (wt *writeTracker) Flush() {
	if f, ok := wt.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// singleJoiningSlash joins two URL path segments with exactly one slash.
func singleJoiningSlash(a, b string) (joined string) {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")

	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	default:
		return a + b
	}
}
