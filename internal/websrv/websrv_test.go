package websrv_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/frontd/frontd/internal/websrv"
	"github.com/stretchr/testify/require"
)

// newTLSConfig generates a throwaway self-signed server identity.
func newTLSConfig(t *testing.T) (conf *tls.Config) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
	}
}

func TestServer(t *testing.T) {
	srv, err := websrv.New(&websrv.Config{
		TLSConf: newTLSConfig(t),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "hello")
		}),
		ListenAddr: netip.MustParseAddr("127.0.0.1"),
		PortTLS:    0,
		PortPlain:  0,
	})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	addr := srv.AddrTLS()
	require.NotNil(t, addr)

	client := &http.Client{
		Transport: &http.Transport{
			// Self-signed test certificate.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := client.Get(fmt.Sprintf("https://%s/", addr))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))

	require.NoError(t, srv.Close())

	// Starting again after close is allowed, double start is not.
	require.NoError(t, srv.Start())
	require.Error(t, srv.Start())
	require.NoError(t, srv.Close())
}

func TestServer_noPlainListener(t *testing.T) {
	srv, err := websrv.New(&websrv.Config{
		TLSConf:    newTLSConfig(t),
		Handler:    http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
		ListenAddr: netip.MustParseAddr("127.0.0.1"),
		PortTLS:    0,
		PortPlain:  0,
	})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	// PortPlain zero disables the redirect listener entirely.
	require.Nil(t, srv.AddrPlain())
}

// freePort reserves an ephemeral port and releases it for the server.
func freePort(t *testing.T) (port uint16) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port = uint16(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())

	return port
}

func TestServer_redirect(t *testing.T) {
	srv, err := websrv.New(&websrv.Config{
		TLSConf:    newTLSConfig(t),
		Handler:    http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
		ListenAddr: netip.MustParseAddr("127.0.0.1"),
		PortTLS:    0,
		PortPlain:  freePort(t),
	})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	plainAddr := srv.AddrPlain()
	require.NotNil(t, plainAddr)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/path?q=1", plainAddr), nil)
	require.NoError(t, err)
	req.Host = "example.com"

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)

	loc := resp.Header.Get("Location")
	require.Contains(t, loc, "https://example.com")
	require.Contains(t, loc, "/path?q=1")
}

func TestNew_validation(t *testing.T) {
	_, err := websrv.New(&websrv.Config{Handler: http.DefaultServeMux})
	require.Error(t, err)

	_, err = websrv.New(&websrv.Config{TLSConf: &tls.Config{}})
	require.Error(t, err)
}
