package reconcile

import (
	"fmt"
	"os"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/frontd/frontd/internal/artifact"
	"github.com/frontd/frontd/internal/registry"
)

// DiscoverFunc scans the filesystem for artifacts of one kind.  Per-artifact
// failures are logged and skipped inside the scan, they never abort it.
type DiscoverFunc func() (descs []*artifact.Descriptor, err error)

// RederiveFunc re-parses a single artifact file that the operator chose to
// keep even though the walk did not rediscover it.
type RederiveFunc func(path string) (desc *artifact.Descriptor, err error)

// Config configures a reconciliation run.
type Config struct {
	// RegistryPath is the path of the durable registry file.
	RegistryPath string

	// Prompter asks the operator to approve state transitions.
	Prompter *Prompter

	// HasCert derives the per-domain certificate annotation written to the
	// registry.  May be nil.
	HasCert func(domain string) (ok bool)

	// Discover holds the per-kind scan functions.
	Discover map[artifact.Kind]DiscoverFunc

	// Rederive holds the per-kind re-parse functions.
	Rederive map[artifact.Kind]RederiveFunc
}

// Run loads the persisted registry, reconciles each kind against a fresh
// scan, writes the registry back, and returns the canonical descriptor list
// in the persisted order: proxy, then static, then application.
func Run(cfg *Config) (descs []*artifact.Descriptor, err error) {
	persisted, err := loadPersisted(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	byKind := map[artifact.Kind][]*artifact.Descriptor{}
	for _, desc := range persisted {
		byKind[desc.Kind] = append(byKind[desc.Kind], desc)
	}

	for _, kind := range artifact.Kinds {
		discover, ok := cfg.Discover[kind]
		if !ok {
			// A kind with no scan function is out of this run's scope,
			// its persisted descriptors carry through unchanged.
			descs = append(descs, byKind[kind]...)

			continue
		}

		var discovered []*artifact.Descriptor
		discovered, err = discover()
		if err != nil {
			return nil, fmt.Errorf("reconcile: discovering %s artifacts: %w", kind, err)
		}

		approved := reconcileKind(cfg, kind, byKind[kind], discovered)
		descs = append(descs, approved...)
	}

	err = registry.Save(cfg.RegistryPath, descs, cfg.HasCert)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	log.Info("reconcile: wrote %d descriptors to %s", len(descs), cfg.RegistryPath)

	return descs, nil
}

// loadPersisted reads the previous registry.  A missing file means a
// first-ever run and yields an empty state.
func loadPersisted(path string) (descs []*artifact.Descriptor, err error) {
	descs, err = registry.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	return descs, nil
}

// reconcileKind merges the persisted and the freshly discovered descriptors
// of one kind, asking the operator about additions, removals, and domain
// changes.
func reconcileKind(
	cfg *Config,
	kind artifact.Kind,
	persisted []*artifact.Descriptor,
	discovered []*artifact.Descriptor,
) (approved []*artifact.Descriptor) {
	persistedByPath := make(map[string]*artifact.Descriptor, len(persisted))
	for _, desc := range persisted {
		persistedByPath[artifact.NormalizePath(desc.Path)] = desc
	}

	rediscovered := map[string]struct{}{}

	for _, fresh := range discovered {
		path := artifact.NormalizePath(fresh.Path)
		rediscovered[path] = struct{}{}

		stored, known := persistedByPath[path]
		if !known {
			question := fmt.Sprintf("Add %s artifact %s (domains: %s)?",
				kind, path, domainList(fresh.Domains))
			if cfg.Prompter.Confirm(question, true) {
				approved = append(approved, fresh)
			}

			// A declined addition is dropped for this pass and will be
			// offered again on the next rescan.
			continue
		}

		if !artifact.SameDomains(stored.Domains, fresh.Domains) {
			question := fmt.Sprintf("Update domains of %s from [%s] to [%s]?",
				path, domainList(stored.Domains), domainList(fresh.Domains))
			if !cfg.Prompter.Confirm(question, true) {
				fresh.Domains = stored.Domains
			}
		}

		approved = append(approved, fresh)
	}

	for _, stored := range persisted {
		path := artifact.NormalizePath(stored.Path)
		if _, found := rediscovered[path]; found {
			continue
		}

		question := fmt.Sprintf("Keep %s artifact %s that was not rediscovered?", kind, path)
		if !cfg.Prompter.Confirm(question, false) {
			continue
		}

		approved = append(approved, rederive(cfg, kind, stored))
	}

	return approved
}

// rederive re-parses a kept artifact from disk when the file still exists;
// otherwise the stored descriptor is retained verbatim.
func rederive(cfg *Config, kind artifact.Kind, stored *artifact.Descriptor) (desc *artifact.Descriptor) {
	if _, err := os.Stat(stored.Path); err != nil {
		return stored
	}

	fn, ok := cfg.Rederive[kind]
	if !ok {
		return stored
	}

	desc, err := fn(stored.Path)
	if err != nil {
		log.Info("reconcile: keeping stored domains for %s: %v", stored.Path, err)

		return stored
	}

	return desc
}

// domainList renders a domain list for a prompt.
func domainList(domains []string) (s string) {
	if len(domains) == 0 {
		return "(none)"
	}

	return strings.Join(domains, ", ")
}
