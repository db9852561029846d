package agent

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// DefaultPort is the port the agent listens on unless told otherwise
const DefaultPort = 2223

// DefaultMaxTrials caps the trials a single /simulate request may ask for
const DefaultMaxTrials = 10000

// Config contains configuration for the agent server. Without a
// certificate the agent serves plain HTTP; with a CA file it also requires
// client certificates.
type Config struct {
	Host      string // Listen address, empty for all interfaces
	Port      int    // Server port
	CertFile  string // Server certificate file
	KeyFile   string // Server private key file
	CAFile    string // CA certificate file for client verification
	MaxTrials int    // Upper bound on trials per request
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		Port:      DefaultPort,
		MaxTrials: DefaultMaxTrials,
	}
}

// TLSEnabled reports whether the server serves HTTPS
func (c Config) TLSEnabled() bool {
	return c.CertFile != ""
}

// MutualTLS reports whether client certificates are required
func (c Config) MutualTLS() bool {
	return c.TLSEnabled() && c.CAFile != ""
}

// Addr returns the listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MaxTrials <= 0 {
		return fmt.Errorf("max trials must be positive, got %d", c.MaxTrials)
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("certificate and key files must be given together")
	}

	if c.CAFile != "" && c.CertFile == "" {
		return fmt.Errorf("client verification requires a server certificate")
	}

	for _, f := range []string{c.CertFile, c.KeyFile, c.CAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("file not found: %s", f)
		}
	}

	return nil
}

// LoadTLSConfig creates the server TLS configuration. It returns nil when
// TLS is disabled.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if c.MutualTLS() {
		pool, err := loadCertPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = pool
	}

	return tlsConfig, nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	return pool, nil
}

// ClientConfig contains configuration for the agent client
type ClientConfig struct {
	Host     string // Target host
	Port     int    // Target port
	CertFile string // Client certificate file
	KeyFile  string // Client private key file
	CAFile   string // CA certificate file for server verification
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host: "localhost",
		Port: DefaultPort,
	}
}

// TLSEnabled reports whether the client talks HTTPS
func (c ClientConfig) TLSEnabled() bool {
	return c.CAFile != "" || c.CertFile != ""
}

// BaseURL returns the agent root URL
func (c ClientConfig) BaseURL() string {
	scheme := "http"
	if c.TLSEnabled() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Validate checks if the client configuration is valid
func (c ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("client certificate and key files must be given together")
	}

	return nil
}

// LoadClientTLSConfig creates TLS configuration for the client. It returns
// nil when TLS is disabled.
func (c ClientConfig) LoadClientTLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled() {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS13}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pool, err := loadCertPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
