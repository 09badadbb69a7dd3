// Package websrv runs the TLS front door listener and the optional
// plain-HTTP redirect listener.
package websrv

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/AdguardTeam/golibs/netutil"
)

// Timeouts applied to the HTTP servers.
const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 120 * time.Second
)

// Config represents the web server configuration.
type Config struct {
	// TLSConf selects the per-connection server identity.  Required.
	TLSConf *tls.Config

	// Handler dispatches the requests.  Required.
	Handler http.Handler

	// ListenAddr is the address the server will listen to.
	ListenAddr netip.Addr

	// PortTLS is the port where HTTPS is terminated.
	PortTLS uint16

	// PortPlain is the optional plain-HTTP port that redirects to https.
	// Zero disables the redirect listener.
	PortPlain uint16
}

// Server terminates TLS and serves the dispatcher.  The routing state behind
// the handler is an immutable snapshot, so requests run concurrently without
// any server-level locking.
type Server struct {
	started bool
	wg      *sync.WaitGroup

	conf *Config

	listenerTLS   net.Listener
	listenerPlain net.Listener

	srvTLS   *http.Server
	srvPlain *http.Server

	// mu protects started and the listeners.
	mu *sync.Mutex
}

// type check.
var _ io.Closer = (*Server)(nil)

// New creates a new instance of *Server.
func New(conf *Config) (s *Server, err error) {
	if conf.TLSConf == nil {
		return nil, fmt.Errorf("websrv: no tls configuration")
	}

	if conf.Handler == nil {
		return nil, fmt.Errorf("websrv: no handler")
	}

	return &Server{
		wg:   &sync.WaitGroup{},
		mu:   &sync.Mutex{},
		conf: conf,
	}, nil
}

// AddrTLS returns the address where the server listens for TLS traffic.
func (s *Server) AddrTLS() (addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	return s.listenerTLS.Addr()
}

// AddrPlain returns the address where the server listens for plain traffic,
// or nil when the redirect listener is disabled.
func (s *Server) AddrPlain() (addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.listenerPlain == nil {
		return nil
	}

	return s.listenerPlain.Addr()
}

// Start starts the server.
func (s *Server) Start() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info("websrv: starting")

	if s.started {
		return fmt.Errorf("websrv: server is already started")
	}

	ip := net.IP(s.conf.ListenAddr.AsSlice())

	tcpListener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: ip, Port: int(s.conf.PortTLS)})
	if err != nil {
		return fmt.Errorf("websrv: failed to listen for TLS: %w", err)
	}

	s.listenerTLS = tls.NewListener(tcpListener, s.conf.TLSConf)
	s.srvTLS = &http.Server{
		Handler:           s.conf.Handler,
		TLSConfig:         s.conf.TLSConf,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.wg.Add(1)
	go s.serve(s.srvTLS, s.listenerTLS, "tls")

	if s.conf.PortPlain != 0 {
		s.listenerPlain, err = net.ListenTCP(
			"tcp",
			&net.TCPAddr{IP: ip, Port: int(s.conf.PortPlain)},
		)
		if err != nil {
			cErr := s.listenerTLS.Close()

			return errors.Join(
				fmt.Errorf("websrv: failed to listen for plain HTTP: %w", err),
				cErr,
			)
		}

		s.srvPlain = &http.Server{
			Handler:           s.redirectHandler(),
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		}

		s.wg.Add(1)
		go s.serve(s.srvPlain, s.listenerPlain, "plain")
	}

	s.started = true

	log.Info("websrv: started")

	return nil
}

// serve runs one server loop until its listener is closed.
func (s *Server) serve(srv *http.Server, l net.Listener, name string) {
	defer s.wg.Done()

	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		log.Info("websrv: %s listener closed", name)

		return
	}

	log.Error("websrv: %s listener: %v", name, err)
}

// redirectHandler returns the handler of the plain listener: a permanent
// redirect of every request to its https equivalent.
func (s *Server) redirectHandler() (h http.Handler) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}

		if s.conf.PortTLS != 443 {
			host = netutil.JoinHostPort(host, s.conf.PortTLS)
		}

		target := "https://" + host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// Close implements the io.Closer interface for *Server.
func (s *Server) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info("websrv: closing")

	if !s.started {
		return nil
	}

	err = s.srvTLS.Close()
	if s.srvPlain != nil {
		err = errors.Join(err, s.srvPlain.Close())
	}

	log.Info("websrv: waiting until connections stop processing")

	s.wg.Wait()
	s.started = false

	log.Info("websrv: closed")

	return err
}
