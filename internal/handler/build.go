package handler

import (
	"net/url"
	"strings"

	"github.com/AdguardTeam/golibs/log"
	"github.com/frontd/frontd/internal/appmod"
	"github.com/frontd/frontd/internal/artifact"
	"github.com/frontd/frontd/internal/discovery"
	"github.com/frontd/frontd/internal/routing"
)

// BuildProxies builds reverse-proxy handlers for the given descriptors.  A
// descriptor whose handler cannot be constructed is logged and dropped, it
// never aborts the batch.
func BuildProxies(descs []*artifact.Descriptor, outbound *url.URL) (bound []routing.Bound) {
	for _, desc := range descs {
		h, err := NewProxy(desc.Target, outbound)
		if err != nil {
			log.Error("handler: skipping %s: %v", desc.Filename(), err)

			continue
		}

		bound = append(bound, routing.Bound{
			Handler:    h,
			Kind:       artifact.KindProxy,
			Provenance: desc.Filename(),
			Domains:    desc.Domains,
		})
	}

	return bound
}

// BuildStatics builds static-file handlers for the given descriptors, each
// rooted at its artifact's directory.
func BuildStatics(descs []*artifact.Descriptor) (bound []routing.Bound) {
	for _, desc := range descs {
		bound = append(bound, routing.Bound{
			Handler:    NewStatic(desc.Dir),
			Kind:       artifact.KindStatic,
			Provenance: desc.Filename(),
			Domains:    desc.Domains,
		})
	}

	return bound
}

// BuildApplications resolves the registered application module behind each
// descriptor and binds its handler.  Resolution failures are logged with the
// artifact filename and the artifact is dropped.
func BuildApplications(descs []*artifact.Descriptor) (bound []routing.Bound) {
	for _, desc := range descs {
		name := strings.TrimSuffix(desc.Filename(), discovery.AppSuffix)

		app, err := appmod.Resolve(name, &appmod.Context{ArtifactPath: desc.Path})
		if err != nil {
			log.Error("handler: skipping %s: %v", desc.Filename(), err)

			continue
		}

		bound = append(bound, routing.Bound{
			Handler:    app.Handler,
			Kind:       artifact.KindApplication,
			Provenance: desc.Filename(),
			Domains:    desc.Domains,
		})
	}

	return bound
}
