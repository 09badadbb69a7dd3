// Package certstore is responsible for loading the certificate directory
// tree and for selecting the server identity per connection.
package certstore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdguardTeam/golibs/log"
)

// File names that make up one certificate directory.  The chain file is
// optional, the other two are required.
const (
	keyFileName   = "privkey.pem"
	certFileName  = "cert.pem"
	chainFileName = "chain.pem"
)

// Entry is one loaded certificate with the domain set it covers.  Entries are
// built once at startup and never mutated afterwards.
type Entry struct {
	// Certificate is the parsed key pair, chain included when present.
	Certificate tls.Certificate

	// Domains is the set of domains the certificate covers, lowercased.
	// Derived from the leaf's SAN DNS entries, or from the directory name
	// when the SAN list is unusable.
	Domains []string

	// SourceDir is the directory the entry was loaded from.
	SourceDir string
}

// Load reads every subdirectory of rootDir as a certificate directory.  It
// returns an error if rootDir does not exist, contains no subdirectories, or
// if any subdirectory misses its key or leaf certificate.
func Load(rootDir string) (entries []*Entry, err error) {
	dirEntries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("certstore: failed to read cert root: %w", err)
	}

	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, de.Name())

		var entry *Entry
		entry, err = loadDir(dir)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("certstore: no certificate directories under %s", rootDir)
	}

	return entries, nil
}

// loadDir loads a single certificate directory.
func loadDir(dir string) (entry *Entry, err error) {
	keyPEM, err := os.ReadFile(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, fmt.Errorf("certstore: missing key in %s: %w", dir, err)
	}

	certPEM, err := os.ReadFile(filepath.Join(dir, certFileName))
	if err != nil {
		return nil, fmt.Errorf("certstore: missing certificate in %s: %w", dir, err)
	}

	// The chain is optional.  When present it is appended to the leaf so
	// that the full chain is presented during the handshake.
	chainPEM, err := os.ReadFile(filepath.Join(dir, chainFileName))
	if err == nil {
		certPEM = append(certPEM, '\n')
		certPEM = append(certPEM, chainPEM...)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("certstore: malformed certificate directory %s: %w", dir, err)
	}

	entry = &Entry{
		Certificate: cert,
		Domains:     extractDomains(cert, dir),
		SourceDir:   dir,
	}

	if len(entry.Domains) == 0 {
		log.Info("certstore: warning: %s covers no domains, entry is unroutable", dir)
	}

	return entry, nil
}

// extractDomains derives the domain set of a certificate from the leaf's SAN
// DNS entries.  When the leaf cannot be parsed or lists no DNS names, the
// directory base name is used as the single fallback domain.
func extractDomains(cert tls.Certificate, dir string) (domains []string) {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil || len(leaf.DNSNames) == 0 {
		if err != nil {
			log.Info("certstore: failed to parse leaf in %s: %v", dir, err)
		}

		name := strings.ToLower(filepath.Base(dir))
		if name == "" || name == "." {
			return nil
		}

		return []string{name}
	}

	for _, name := range leaf.DNSNames {
		domains = append(domains, strings.ToLower(name))
	}

	return domains
}
