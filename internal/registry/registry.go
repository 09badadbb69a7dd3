// Package registry reads and writes the durable descriptor registry file,
// the source of truth between runs.  The file is an ordered sequence of
// blocks, one per artifact, and is regenerated wholesale by reconciliation.
package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/frontd/frontd/internal/artifact"
)

// certAnnotation values written next to each domain.
const (
	certPresent = "present"
	certMissing = "missing"
	certNA      = "n/a"
)

// nonePlaceholder marks a descriptor with an empty domain list, meaning
// "currently unroutable".
const nonePlaceholder = "(none)"

// Load reads the registry file at path.
func Load(path string) (descs []*artifact.Descriptor, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	descs, err = Parse(f)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to parse %s: %w", path, err)
	}

	return descs, nil
}

// Save writes the registry file at path, replacing any previous content.
// hasCert derives the per-domain certificate annotation and may be nil.
func Save(path string, descs []*artifact.Descriptor, hasCert func(domain string) (ok bool)) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("registry: failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Write(f, descs, hasCert)
}

// Parse reads descriptor blocks from r.  Block order is preserved.
func Parse(r io.Reader) (descs []*artifact.Descriptor, err error) {
	var current *artifact.Descriptor

	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// A line without leading whitespace starts a new block keyed by
		// the artifact's absolute path.
		if line == trimmed {
			current = &artifact.Descriptor{Path: trimmed}
			descs = append(descs, current)

			continue
		}

		if current == nil {
			return nil, fmt.Errorf("registry: line %d: field outside of a block", lineNum)
		}

		err = parseField(current, trimmed, lineNum)
		if err != nil {
			return nil, err
		}
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("registry: read: %w", err)
	}

	return descs, nil
}

// parseField applies one indented metadata line to the current descriptor.
func parseField(desc *artifact.Descriptor, trimmed string, lineNum int) (err error) {
	switch {
	case strings.HasPrefix(trimmed, "type:"):
		value := strings.TrimSpace(strings.TrimPrefix(trimmed, "type:"))
		kind, ok := artifact.ParseKind(value)
		if !ok {
			return fmt.Errorf("registry: line %d: unknown kind %q", lineNum, value)
		}

		desc.Kind = kind
	case strings.HasPrefix(trimmed, "dir:"):
		desc.Dir = strings.TrimSpace(strings.TrimPrefix(trimmed, "dir:"))
	case strings.HasPrefix(trimmed, "target:"):
		desc.Target = strings.TrimSpace(strings.TrimPrefix(trimmed, "target:"))
	case trimmed == "domains:":
		// List header, the items follow.
	case strings.HasPrefix(trimmed, "- "):
		domain := parseDomainItem(strings.TrimPrefix(trimmed, "- "))
		if domain != "" {
			desc.Domains = append(desc.Domains, domain)
		}
	default:
		return fmt.Errorf("registry: line %d: unrecognized field %q", lineNum, trimmed)
	}

	return nil
}

// parseDomainItem strips the certificate annotation from a domain list item.
// The "(none)" placeholder yields an empty domain.
func parseDomainItem(item string) (domain string) {
	if i := strings.Index(item, " (cert:"); i >= 0 {
		item = item[:i]
	}

	item = strings.TrimSpace(item)
	if item == nonePlaceholder {
		return ""
	}

	return item
}

// Write writes descriptor blocks to w in the given order.
func Write(w io.Writer, descs []*artifact.Descriptor, hasCert func(domain string) (ok bool)) (err error) {
	bw := bufio.NewWriter(w)

	for _, desc := range descs {
		writeBlock(bw, desc, hasCert)
	}

	return bw.Flush()
}

// writeBlock writes one descriptor block.
func writeBlock(bw *bufio.Writer, desc *artifact.Descriptor, hasCert func(domain string) (ok bool)) {
	_, _ = fmt.Fprintf(bw, "%s\n", desc.Path)
	_, _ = fmt.Fprintf(bw, "  type: %s\n", desc.Kind)
	_, _ = fmt.Fprintf(bw, "  dir: %s\n", desc.Dir)

	if desc.Target != "" {
		_, _ = fmt.Fprintf(bw, "  target: %s\n", desc.Target)
	}

	_, _ = fmt.Fprintf(bw, "  domains:\n")

	if len(desc.Domains) == 0 {
		_, _ = fmt.Fprintf(bw, "    - %s (cert: %s)\n", nonePlaceholder, certNA)

		return
	}

	for _, domain := range desc.Domains {
		annotation := certMissing
		if hasCert != nil && hasCert(domain) {
			annotation = certPresent
		}

		_, _ = fmt.Fprintf(bw, "    - %s (cert: %s)\n", domain, annotation)
	}
}
