// Package config is responsible for parsing the settings file.
package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values for optional settings.
const (
	defaultListenAddr = "0.0.0.0"
	defaultHTTPSPort  = uint16(443)
	defaultScanRoot   = "/"
)

// File represents the settings file.
type File struct {
	// Server is the listener section.  Must be specified.
	Server *Server `yaml:"server"`

	// Scan is the artifact discovery section.  If not specified, scans
	// start from the filesystem root with no extra exclusions.
	Scan *Scan `yaml:"scan"`

	// Prometheus is the metrics endpoint section.  If not specified, no
	// metrics endpoint is started.
	Prometheus *Prometheus `yaml:"prometheus"`

	// CertDir is the root of the certificate directory tree.  Must be
	// specified.
	CertDir string `yaml:"cert-dir"`

	// RegistryPath is the path of the durable descriptor registry file.
	// Must be specified.
	RegistryPath string `yaml:"registry-path"`

	// ProxyURL is the optional outbound proxy for upstream connections.
	// Format of the URL: [protocol://username:password@]host[:port].
	ProxyURL string `yaml:"proxy-url"`

	// SentryDSN enables crash reporting when set.
	SentryDSN string `yaml:"sentry-dsn"`
}

// Server represents the listener section of the settings file.
type Server struct {
	// ListenAddr is the address the server will listen to.
	ListenAddr string `yaml:"listen-addr"`

	// HTTPSPort is the port where TLS connections are terminated.
	HTTPSPort uint16 `yaml:"https-port"`

	// HTTPPort is the optional plain-HTTP port that redirects to https.
	// Zero disables the redirect listener.
	HTTPPort uint16 `yaml:"http-port"`
}

// Scan represents the artifact discovery section of the settings file.
type Scan struct {
	// Root is the default walk root for all artifact kinds.
	Root string `yaml:"root"`

	// AppRoot overrides Root for application artifacts.
	AppRoot string `yaml:"app-root"`

	// StaticRoot overrides Root for static-site descriptors.
	StaticRoot string `yaml:"static-root"`

	// ProxyRoot overrides Root for proxy descriptors.
	ProxyRoot string `yaml:"proxy-root"`

	// Exclude lists extra wildcard patterns of directory names the walk
	// skips, on top of the built-in set.
	Exclude []string `yaml:"exclude"`
}

// Prometheus represents the prometheus configuration.
type Prometheus struct {
	// Addr is the address where prometheus metrics are exposed.
	Addr string `yaml:"addr"`

	// Port is the port where prometheus metrics will be exposed.
	Port uint16 `yaml:"port"`
}

// Load loads and validates configuration from the specified file.
func Load(path string) (cfg *File, err error) {
	// Ignore G304 here as it's trusted context.
	//nolint:gosec
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg = &File{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	err = validate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to validate config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// validate checks the required settings.
func validate(cfg *File) (err error) {
	if cfg.Server == nil {
		return fmt.Errorf("no server configured")
	}

	if cfg.CertDir == "" {
		return fmt.Errorf("cert-dir is required")
	}

	if cfg.RegistryPath == "" {
		return fmt.Errorf("registry-path is required")
	}

	return nil
}

// applyDefaults fills in the optional settings.
func applyDefaults(cfg *File) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	if cfg.Server.HTTPSPort == 0 {
		cfg.Server.HTTPSPort = defaultHTTPSPort
	}

	if cfg.Scan == nil {
		cfg.Scan = &Scan{}
	}

	if cfg.Scan.Root == "" {
		cfg.Scan.Root = defaultScanRoot
	}
}

// AppScanRoot returns the walk root for application artifacts.
func (s *Scan) AppScanRoot() (root string) {
	return orDefault(s.AppRoot, s.Root)
}

// StaticScanRoot returns the walk root for static-site descriptors.
func (s *Scan) StaticScanRoot() (root string) {
	return orDefault(s.StaticRoot, s.Root)
}

// ProxyScanRoot returns the walk root for proxy descriptors.
func (s *Scan) ProxyScanRoot() (root string) {
	return orDefault(s.ProxyRoot, s.Root)
}

// orDefault returns value unless it is empty.
func orDefault(value, def string) (res string) {
	if value != "" {
		return value
	}

	return def
}

// ToProxyURL parses the optional outbound proxy URL.
func (f *File) ToProxyURL() (u *url.URL, err error) {
	if f.ProxyURL == "" {
		return nil, nil
	}

	u, err = url.Parse(f.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	return u, nil
}
