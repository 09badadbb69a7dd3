// Package artifact defines the descriptor model shared by discovery, the
// registry file, and reconciliation.
package artifact

import (
	"path/filepath"
	"strings"
)

// Kind is the kind of a discovered artifact.
type Kind string

// Artifact kinds, in the routing-table insertion priority order.
const (
	KindProxy       Kind = "proxy"
	KindStatic      Kind = "static"
	KindApplication Kind = "application"
)

// Kinds lists all artifact kinds in the order they are persisted to the
// registry file.
var Kinds = []Kind{KindProxy, KindStatic, KindApplication}

// ParseKind parses a kind string.
func ParseKind(s string) (k Kind, ok bool) {
	switch Kind(s) {
	case KindProxy, KindStatic, KindApplication:
		return Kind(s), true
	default:
		return "", false
	}
}

// Descriptor summarizes one artifact: its kind, location, and the domains it
// declares.  The identity key is the normalized absolute path.
type Descriptor struct {
	// Kind is the artifact kind.
	Kind Kind

	// Path is the normalized absolute path of the artifact file.
	Path string

	// Dir is the directory containing the artifact.
	Dir string

	// Target is the resolved upstream base URL.  Populated for proxy
	// artifacts only.
	Target string

	// Domains is the ordered list of hostnames the artifact declares,
	// lowercased, without scheme or trailing slash.  May be empty, which
	// marks the artifact as currently unroutable.
	Domains []string
}

// Filename returns the base name of the artifact file.
func (d *Descriptor) Filename() (name string) {
	return filepath.Base(d.Path)
}

// NormalizePath returns the absolute, cleaned form of path used as the
// descriptor identity key.
func NormalizePath(path string) (norm string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	return abs
}

// SanitizeDomain normalizes a free-form hostname token: the result is
// lowercased, then the scheme and any trailing slashes are stripped.
// Lowercasing comes first so that an uppercase scheme is stripped too.
func SanitizeDomain(token string) (domain string) {
	domain = strings.ToLower(strings.TrimSpace(token))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")

	return strings.TrimRight(domain, "/")
}

// SameDomains reports whether a and b contain the same domains regardless of
// order and duplication.
func SameDomains(a, b []string) (ok bool) {
	seen := make(map[string]struct{}, len(a))
	for _, d := range a {
		seen[d] = struct{}{}
	}

	for _, d := range b {
		if _, found := seen[d]; !found {
			return false
		}
	}

	other := make(map[string]struct{}, len(b))
	for _, d := range b {
		other[d] = struct{}{}
	}

	for _, d := range a {
		if _, found := other[d]; !found {
			return false
		}
	}

	return true
}
