// Package cert runs a small certificate authority. It issues the TLS
// certificates the agent and its clients use and signed attestations of
// stored simulation runs.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/mscrnt/scramsim/pkg/db"
)

const organization = "scramsim"

// Extension OIDs carried by run certificates
var (
	oidStatus    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 1}
	oidStandard  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 2}
	oidDuration  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 3}
	oidScrambler = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 4}
	oidSeed      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 5}
	oidTrials    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 6}
	oidMetrics   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 2}
)

// Validity periods
const (
	CAValidity   = 10 * 365 * 24 * time.Hour
	LeafValidity = 365 * 24 * time.Hour
)

// Authority signs certificates with a self-signed CA
type Authority struct {
	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey
}

func serialNumber() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
}

// NewAuthority creates a new self-signed CA
func NewAuthority() (*Authority, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	caTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   organization + " CA",
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(CAValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Authority{caCert: caCert, caKey: caKey}, nil
}

// CACertificate returns the CA certificate
func (a *Authority) CACertificate() *x509.Certificate {
	return a.caCert
}

// SaveCA saves the CA certificate and key to files
func (a *Authority) SaveCA(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", a.caCert.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(a.caKey)
	if err != nil {
		return fmt.Errorf("failed to marshal CA key: %w", err)
	}
	if err := writePEM(keyPath, "EC PRIVATE KEY", der, 0o600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// LoadCA loads CA certificate and key from files
func LoadCA(certPath, keyPath string) (*Authority, error) {
	caCert, err := ReadCertificate(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA cert: %w", err)
	}
	if !caCert.IsCA {
		return nil, fmt.Errorf("%s is not a CA certificate", certPath)
	}

	keyBlock, err := readPEM(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}

	caKey, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &Authority{caCert: caCert, caKey: caKey}, nil
}

func (a *Authority) sign(template *x509.Certificate) (*Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}
	template.SerialNumber = serial

	certDER, err := x509.CreateCertificate(rand.Reader, template, a.caCert, &key.PublicKey, a.caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{
		Certificate: cert,
		PrivateKey:  key,
		IssuedAt:    time.Now(),
	}, nil
}

// IssueServer issues a TLS server certificate for the agent. Hosts may be
// DNS names or IP addresses.
func (a *Authority) IssueServer(hosts []string) (*Certificate, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("at least one host is required")
	}

	now := time.Now()
	template := &x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   hosts[0],
		},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(LeafValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	return a.sign(template)
}

// IssueClient issues a TLS client certificate for talking to the agent
func (a *Authority) IssueClient(name string) (*Certificate, error) {
	now := time.Now()
	return a.sign(&x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   name,
		},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(LeafValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
}

// IssueRunCertificate issues a certificate attesting to a stored run
func (a *Authority) IssueRunCertificate(run *db.Run, results []*db.Result) (*Certificate, error) {
	if run.EndTime == nil {
		return nil, fmt.Errorf("run %d has not finished", run.ID)
	}

	template := &x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{organization + " run"},
			CommonName:   runCommonName(run.ID),
		},
		NotBefore:       run.StartTime,
		NotAfter:        run.StartTime.Add(LeafValidity),
		KeyUsage:        x509.KeyUsageDigitalSignature,
		ExtKeyUsage:     []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		ExtraExtensions: buildExtensions(run, results),
	}

	c, err := a.sign(template)
	if err != nil {
		return nil, err
	}
	c.RunID = run.ID
	return c, nil
}

// buildExtensions encodes the run and its metrics as X.509 extensions
func buildExtensions(run *db.Run, results []*db.Result) []pkix.Extension {
	status := "FAILED"
	if run.Success {
		status = "PASSED"
	}

	extensions := []pkix.Extension{
		{Id: oidStatus, Value: []byte(status)},
		{Id: oidStandard, Value: []byte(run.Standard)},
		{Id: oidScrambler, Value: []byte(run.Scrambler)},
		{Id: oidSeed, Value: []byte(strconv.FormatUint(run.Seed, 10))},
		{Id: oidTrials, Value: []byte(strconv.Itoa(run.Trials))},
		{Id: oidDuration, Value: []byte(fmt.Sprintf("%.2f", run.Duration().Seconds()))},
	}

	for i, result := range results {
		id := make(asn1.ObjectIdentifier, len(oidMetrics), len(oidMetrics)+1)
		copy(id, oidMetrics)
		extensions = append(extensions, pkix.Extension{
			Id:    append(id, i+1),
			Value: []byte(fmt.Sprintf("%s:%g %s", result.Metric, result.Value, result.Unit)),
		})
	}

	return extensions
}

// Verify checks that a run certificate was signed by this CA
func (a *Authority) Verify(cert *x509.Certificate) error {
	return verify(cert, a.caCert)
}

func verify(cert, ca *x509.Certificate) error {
	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// Certificate represents an issued certificate
type Certificate struct {
	*x509.Certificate
	PrivateKey *ecdsa.PrivateKey
	RunID      int64
	IssuedAt   time.Time
}

// Save writes the certificate and, if keyPath is set, its private key
func (c *Certificate) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cert: %w", err)
	}

	if keyPath == "" {
		return nil
	}

	der, err := x509.MarshalECPrivateKey(c.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := writePEM(keyPath, "EC PRIVATE KEY", der, 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// PEM returns the certificate PEM-encoded
func (c *Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: c.Raw,
	}))
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	return os.WriteFile(path, data, perm) // #nosec G306 -- perm is chosen per file type
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-specified certificate path
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM data in %s", path)
	}
	return block, nil
}

// ReadCertificate loads a PEM-encoded certificate from a file
func ReadCertificate(path string) (*x509.Certificate, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s holds a %s, not a certificate", path, block.Type)
	}
	return x509.ParseCertificate(block.Bytes)
}
