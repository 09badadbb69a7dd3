// Package cmd is responsible for the program's command-line interface.
package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"os"
	"runtime"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/frontd/frontd/internal/certstore"
	"github.com/frontd/frontd/internal/config"
	"github.com/frontd/frontd/internal/metrics"
	"github.com/frontd/frontd/internal/routing"
	"github.com/frontd/frontd/internal/version"
	"github.com/frontd/frontd/internal/websrv"
	"github.com/getsentry/sentry-go"
	goFlags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Main is the entry point of the program.
func Main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("frontd version: %s\n", version.Version())

		os.Exit(0)
	}

	o, err := parseOptions()
	var flagErr *goFlags.Error
	if errors.As(err, &flagErr) && flagErr.Type == goFlags.ErrHelp {
		// This is a special case when we exit process here as we received
		// --help.
		os.Exit(0)
	}

	check("parse args", err)

	if o.Verbose {
		log.SetLevel(log.DEBUG)
	}

	envs, err := readEnvs()
	check("read environment", err)

	configPath := o.ConfigPath
	if configPath == "" {
		configPath = envs.ConfigPath
	}

	if configPath == "" {
		check("resolve config path", fmt.Errorf("no config path given"))
	}

	cfg, err := config.Load(configPath)
	check("load config file", err)

	if cfg.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: version.Version(),
		})
		check("init sentry", err)
	}

	entries, err := certstore.Load(cfg.CertDir)
	check("load certificates", err)

	store := certstore.NewStore(entries)

	outbound, err := cfg.ToProxyURL()
	check("parse proxy url", err)

	descs, err := loadDescriptors(cfg, o.Update, store)
	check("load descriptors", err)

	table := buildTable(descs, outbound)
	metrics.RoutedDomainsNum.Set(float64(table.Len()))

	dispatcher := routing.NewDispatcher(table, store.HasCertificate, cfg.SentryDSN != "")

	listenAddr, err := netip.ParseAddr(cfg.Server.ListenAddr)
	check("parse listen addr", err)

	srv, err := websrv.New(&websrv.Config{
		TLSConf:    store.TLSConfig(),
		Handler:    dispatcher,
		ListenAddr: listenAddr,
		PortTLS:    cfg.Server.HTTPSPort,
		PortPlain:  cfg.Server.HTTPPort,
	})
	check("init web server", err)

	err = srv.Start()
	check("start web server", err)

	metrics.SetUpGauge(version.Version(), runtime.Version())

	if cfg.Prometheus != nil {
		go serveMetrics(cfg.Prometheus.Addr, cfg.Prometheus.Port)
	}

	sigHandler := newSignalHandler(srv)
	os.Exit(sigHandler.handle())
}

// check panics if err is not nil.
func check(operationName string, err error) {
	if err != nil {
		log.Error("failed to %s: %v", operationName, err)

		os.Exit(1)
	}
}

// serveMetrics starts the prometheus endpoint.
func serveMetrics(listenAddr string, port uint16) {
	metricsAddr := netutil.JoinHostPort(listenAddr, port)
	log.Info("Starting metrics at %s", metricsAddr)

	mux := &http.ServeMux{}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health-check", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "OK")
	})

	srv := &http.Server{
		Addr:         metricsAddr,
		Handler:      mux,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Metrics failed to listen to %s: %v", metricsAddr, err)
	}
}
