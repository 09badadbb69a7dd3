package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdguardTeam/golibs/log"
	"github.com/frontd/frontd/internal/artifact"
)

// Known descriptor file suffixes.
const (
	AppSuffix    = ".app"
	StaticSuffix = ".static"
	ProxySuffix  = ".proxy"
)

// defaultProxyPort is the upstream port assumed when a proxy descriptor's
// filename carries no trailing numeric segment.
const defaultProxyPort = "80"

// ParseStatic reads a static-site descriptor file and returns its
// descriptor.  The file lists one domain per non-empty, non-comment line.
func ParseStatic(path string) (desc *artifact.Descriptor, err error) {
	path = artifact.NormalizePath(path)

	domains, _, err := parseDescriptorFile(path, false)
	if err != nil {
		return nil, err
	}

	if len(domains) == 0 {
		domains = fallbackDomains(path, StaticSuffix)
	}

	return &artifact.Descriptor{
		Kind:    artifact.KindStatic,
		Path:    path,
		Dir:     filepath.Dir(path),
		Domains: domains,
	}, nil
}

// ParseProxy reads a proxy descriptor file and returns its descriptor,
// including the resolved upstream target URL.
func ParseProxy(path string) (desc *artifact.Descriptor, err error) {
	path = artifact.NormalizePath(path)

	domains, targetToken, err := parseDescriptorFile(path, true)
	if err != nil {
		return nil, err
	}

	if len(domains) == 0 {
		domains = fallbackDomains(path, ProxySuffix)
	}

	target, err := resolveProxyTarget(targetToken, path)
	if err != nil {
		return nil, err
	}

	return &artifact.Descriptor{
		Kind:    artifact.KindProxy,
		Path:    path,
		Dir:     filepath.Dir(path),
		Target:  target,
		Domains: domains,
	}, nil
}

// parseDescriptorFile parses a newline-delimited descriptor file and collects
// the sanitized domains.  For proxy files the second token of any usable line
// is kept on its line during a rewrite, and the first such token found
// anywhere in the file is returned as the target token.  When sanitization
// changed any line the file is rewritten in place with the normalized
// content; the rewrite is best-effort and idempotent.
func parseDescriptorFile(path string, proxy bool) (domains []string, targetToken string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("discovery: failed to read descriptor %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	normalized := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed) {
			// Comments and blank lines pass through unchanged.
			normalized = append(normalized, line)

			continue
		}

		fields := strings.Fields(trimmed)
		domain := artifact.SanitizeDomain(fields[0])
		if domain == "" {
			normalized = append(normalized, line)

			continue
		}

		normLine := domain
		if proxy && len(fields) > 1 {
			if targetToken == "" {
				targetToken = fields[1]
			}

			normLine = domain + " " + fields[1]
		}

		domains = append(domains, domain)
		normalized = append(normalized, normLine)
	}

	content := strings.Join(normalized, "\n")
	if content != string(data) {
		log.Info("discovery: normalizing descriptor %s", path)

		if wErr := os.WriteFile(path, []byte(content), 0o644); wErr != nil {
			log.Info("discovery: warning: failed to rewrite %s: %v", path, wErr)
		}
	}

	return domains, targetToken, nil
}

// isComment reports whether a trimmed descriptor line is a comment.
func isComment(line string) (ok bool) {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//")
}

// fallbackDomains derives a single domain from the descriptor filename with
// its known suffix stripped.  Returns nil when nothing usable remains.
func fallbackDomains(path, suffix string) (domains []string) {
	stem := strings.TrimSuffix(filepath.Base(path), suffix)
	stem = artifact.SanitizeDomain(stem)
	if stem == "" {
		return nil
	}

	return []string{stem}
}

// resolveProxyTarget normalizes the upstream target of a proxy descriptor to
// a full URL.  An explicit token takes precedence: a bare port number maps to
// localhost, a host:port pair gets an http scheme, and an already schemed URL
// is left untouched.  With no token the target is derived from the filename,
// treating a trailing dot-separated numeric segment as the port.  There is no
// silent default beyond that: an underivable target is an error.
func resolveProxyTarget(token, path string) (target string, err error) {
	if token != "" {
		if strings.Contains(token, "://") {
			return token, nil
		}

		if isDigits(token) {
			return "http://localhost:" + token, nil
		}

		return "http://" + token, nil
	}

	stem := strings.TrimSuffix(filepath.Base(path), ProxySuffix)
	if stem == "" {
		return "", fmt.Errorf("discovery: no proxy target derivable from %s", path)
	}

	port := defaultProxyPort
	if i := strings.LastIndex(stem, "."); i >= 0 && i < len(stem)-1 && isDigits(stem[i+1:]) {
		port = stem[i+1:]
	}

	return "http://localhost:" + port, nil
}

// isDigits reports whether s is a non-empty string of ASCII digits.
func isDigits(s string) (ok bool) {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
