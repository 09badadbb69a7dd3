package discovery

import (
	"path/filepath"
	"strings"

	"github.com/frontd/frontd/internal/appmod"
	"github.com/frontd/frontd/internal/artifact"
)

// ResolveApp resolves an application artifact into a descriptor by
// initializing the registered module its filename refers to.  A missing
// module, a failed initializer, a missing handler, and an empty domain list
// are each distinct errors; the caller logs them and skips the artifact.
func ResolveApp(path string) (desc *artifact.Descriptor, err error) {
	path = artifact.NormalizePath(path)
	name := strings.TrimSuffix(filepath.Base(path), AppSuffix)

	app, err := appmod.Resolve(name, &appmod.Context{ArtifactPath: path})
	if err != nil {
		return nil, err
	}

	return &artifact.Descriptor{
		Kind:    artifact.KindApplication,
		Path:    path,
		Dir:     filepath.Dir(path),
		Domains: app.Domains,
	}, nil
}
