package cmd

import (
	"net/url"
	"os"
	"regexp"

	"github.com/AdguardTeam/golibs/log"
	"github.com/frontd/frontd/internal/artifact"
	"github.com/frontd/frontd/internal/certstore"
	"github.com/frontd/frontd/internal/config"
	"github.com/frontd/frontd/internal/discovery"
	"github.com/frontd/frontd/internal/handler"
	"github.com/frontd/frontd/internal/reconcile"
	"github.com/frontd/frontd/internal/registry"
	"github.com/frontd/frontd/internal/routing"
)

// loadDescriptors produces the canonical descriptor list.  Normal startup
// reads the persisted registry without touching the filesystem; an explicit
// update, or a first run with no registry file, triggers a full scan and an
// interactive reconciliation.
func loadDescriptors(
	cfg *config.File,
	update bool,
	store *certstore.Store,
) (descs []*artifact.Descriptor, err error) {
	if !update {
		if _, statErr := os.Stat(cfg.RegistryPath); statErr == nil {
			return registry.Load(cfg.RegistryPath)
		}

		log.Info("cmd: no registry at %s, running first-time reconciliation", cfg.RegistryPath)
	}

	return reconcile.Run(&reconcile.Config{
		RegistryPath: cfg.RegistryPath,
		Prompter:     reconcile.NewPrompter(os.Stdin, os.Stdout),
		HasCert:      store.HasCertificate,
		Discover:     discoverFuncs(cfg.Scan),
		Rederive: map[artifact.Kind]reconcile.RederiveFunc{
			artifact.KindProxy:       discovery.ParseProxy,
			artifact.KindStatic:      discovery.ParseStatic,
			artifact.KindApplication: discovery.ResolveApp,
		},
	})
}

// discoverFuncs builds the per-kind scan functions over the configured
// roots.
func discoverFuncs(scan *config.Scan) (fns map[artifact.Kind]reconcile.DiscoverFunc) {
	return map[artifact.Kind]reconcile.DiscoverFunc{
		artifact.KindProxy: scanKind(
			scan.ProxyScanRoot(), discovery.ProxyPattern, scan.Exclude, discovery.ParseProxy,
		),
		artifact.KindStatic: scanKind(
			scan.StaticScanRoot(), discovery.StaticPattern, scan.Exclude, discovery.ParseStatic,
		),
		artifact.KindApplication: scanKind(
			scan.AppScanRoot(), discovery.AppPattern, scan.Exclude, discovery.ResolveApp,
		),
	}
}

// scanKind returns a scan function that walks root for files matching
// pattern and parses each into a descriptor.  A file that fails to parse is
// logged and skipped, it never aborts the scan.
func scanKind(
	root string,
	pattern *regexp.Regexp,
	excludes []string,
	parse func(path string) (desc *artifact.Descriptor, err error),
) (fn reconcile.DiscoverFunc) {
	return func() (descs []*artifact.Descriptor, err error) {
		paths, err := discovery.Walk(root, pattern, excludes)
		if err != nil {
			return nil, err
		}

		for _, path := range paths {
			desc, pErr := parse(path)
			if pErr != nil {
				log.Error("cmd: skipping artifact %s: %v", path, pErr)

				continue
			}

			descs = append(descs, desc)
		}

		return descs, nil
	}
}

// buildTable builds the live routing table from the canonical descriptor
// list, inserting proxy handlers first, then static, then application.
func buildTable(descs []*artifact.Descriptor, outbound *url.URL) (table *routing.Table) {
	byKind := map[artifact.Kind][]*artifact.Descriptor{}
	for _, desc := range descs {
		byKind[desc.Kind] = append(byKind[desc.Kind], desc)
	}

	return routing.BuildTable(
		handler.BuildProxies(byKind[artifact.KindProxy], outbound),
		handler.BuildStatics(byKind[artifact.KindStatic]),
		handler.BuildApplications(byKind[artifact.KindApplication]),
	)
}
