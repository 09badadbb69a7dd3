package certstore

import (
	"crypto/tls"
	"strings"

	"github.com/AdguardTeam/golibs/log"
)

// Store holds the loaded certificate entries and the per-SNI name index.  It
// is built once at startup and is safe for concurrent use since it is never
// mutated afterwards.
type Store struct {
	entries     []*Entry
	byName      map[string]*tls.Certificate
	defaultCert *tls.Certificate
}

// NewStore builds a Store from the loaded entries.  For every entry each
// declared domain is claimed on a first-come basis: a domain already claimed
// by an earlier entry is logged and skipped.  The first entry is the default
// identity for connections with no or an unmatched SNI name.
func NewStore(entries []*Entry) (s *Store) {
	s = &Store{
		entries: entries,
		byName:  map[string]*tls.Certificate{},
	}

	for _, entry := range entries {
		if s.defaultCert == nil {
			s.defaultCert = &entry.Certificate
		}

		for _, domain := range entry.Domains {
			if _, claimed := s.byName[domain]; claimed {
				log.Info(
					"certstore: warning: %s already has a certificate, skipping the one from %s",
					domain,
					entry.SourceDir,
				)

				continue
			}

			s.byName[domain] = &entry.Certificate
		}
	}

	return s
}

// Entries returns the loaded certificate entries.
func (s *Store) Entries() (entries []*Entry) {
	return s.entries
}

// HasCertificate reports whether any loaded certificate covers domain, either
// exactly or through a wildcard pattern.  This is used for registry-file
// annotations and security-header gating, not for handshake selection.
func (s *Store) HasCertificate(domain string) (ok bool) {
	for _, entry := range s.entries {
		for _, pattern := range entry.Domains {
			if MatchesPattern(domain, pattern) {
				return true
			}
		}
	}

	return false
}

// TLSConfig returns the tls.Config that selects the certificate by the SNI
// name presented by the client.
func (s *Store) TLSConfig() (conf *tls.Config) {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: s.getCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}

// getCertificate selects the best certificate for the given ClientHelloInfo.
// It tries an exact name match first, then replaces leading labels with a
// wildcard, and falls back to the default identity.
func (s *Store) getCertificate(clientHello *tls.ClientHelloInfo) (cert *tls.Certificate, err error) {
	name := strings.ToLower(clientHello.ServerName)
	for len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}

	if cert, ok := s.byName[name]; ok {
		return cert, nil
	}

	// Try replacing labels in the name with wildcards until there is a
	// match.
	labels := strings.Split(name, ".")
	for i := range labels {
		labels[i] = "*"
		candidate := strings.Join(labels, ".")
		if cert, ok := s.byName[candidate]; ok {
			return cert, nil
		}
	}

	return s.defaultCert, nil
}

// MatchesPattern reports whether domain matches pattern.  A pattern that does
// not start with "*." must match exactly.  A wildcard pattern matches any
// domain that ends with the pattern's suffix and is strictly longer than it,
// so "*.example.com" never matches the bare "example.com".
func MatchesPattern(domain, pattern string) (ok bool) {
	if !strings.HasPrefix(pattern, "*.") {
		return domain == pattern
	}

	suffix := pattern[1:]

	return len(domain) > len(suffix) && strings.HasSuffix(domain, suffix)
}
