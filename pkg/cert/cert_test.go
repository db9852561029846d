package cert

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/scramsim/pkg/db"
)

func finishedRun() (*db.Run, []*db.Result) {
	start := time.Now().Add(-time.Minute)
	end := start.Add(2500 * time.Millisecond)
	run := &db.Run{
		ID:        42,
		Standard:  "DVB",
		Scrambler: "additive",
		Seed:      1<<63 + 7,
		Trials:    100,
		StartTime: start,
		EndTime:   &end,
		Success:   true,
	}
	results := []*db.Result{
		{Metric: "mean_scrambled_rate", Value: 0.0125, Unit: "ratio"},
		{Metric: "errors_unscrambled", Value: 512, Unit: "bits"},
	}
	return run, results
}

func TestAuthoritySaveLoad(t *testing.T) {
	dir := t.TempDir()
	ca, err := NewAuthority()
	require.NoError(t, err)
	assert.True(t, ca.CACertificate().IsCA)

	certPath := filepath.Join(dir, "ca.crt")
	keyPath := filepath.Join(dir, "ca.key")
	require.NoError(t, ca.SaveCA(certPath, keyPath))

	loaded, err := LoadCA(certPath, keyPath)
	require.NoError(t, err)
	assert.True(t, loaded.CACertificate().Equal(ca.CACertificate()))

	// A key file is not a certificate
	_, err = LoadCA(keyPath, keyPath)
	assert.Error(t, err)
}

func TestRunCertificate(t *testing.T) {
	dir := t.TempDir()
	ca, err := NewAuthority()
	require.NoError(t, err)

	run, results := finishedRun()
	c, err := ca.IssueRunCertificate(run, results)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.RunID)
	assert.NoError(t, ca.Verify(c.Certificate))
	assert.Contains(t, c.PEM(), "BEGIN CERTIFICATE")

	caPath := filepath.Join(dir, "ca.crt")
	certPath := filepath.Join(dir, "run.pem")
	require.NoError(t, ca.SaveCA(caPath, filepath.Join(dir, "ca.key")))
	require.NoError(t, c.Save(certPath, ""))

	result, err := VerifyCertificateFile(certPath, caPath)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.Error)
	assert.Equal(t, "42", result.RunID)
	assert.Equal(t, "DVB", result.Standard)
	assert.Equal(t, "additive", result.Scrambler)
	assert.Equal(t, "9223372036854775815", result.Seed)
	assert.Equal(t, "100", result.Trials)
	assert.Equal(t, "PASSED", result.Status)
	assert.Equal(t, "2.50 seconds", result.Duration)
	assert.Equal(t, "0.0125 ratio", result.Metrics["mean_scrambled_rate"])
	assert.Equal(t, "512 bits", result.Metrics["errors_unscrambled"])

	out := FormatVerifyResult(result)
	assert.Contains(t, out, "VALID")
	assert.Contains(t, out, "Standard: DVB")
}

func TestRunCertificateRejections(t *testing.T) {
	ca, err := NewAuthority()
	require.NoError(t, err)
	other, err := NewAuthority()
	require.NoError(t, err)

	run, results := finishedRun()
	c, err := ca.IssueRunCertificate(run, results)
	require.NoError(t, err)

	result := VerifyCertificate(c.Certificate, other.CACertificate())
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
	assert.Contains(t, FormatVerifyResult(result), "INVALID")

	run.EndTime = nil
	_, err = ca.IssueRunCertificate(run, results)
	assert.Error(t, err)
}

func TestTLSCertificates(t *testing.T) {
	dir := t.TempDir()
	ca, err := NewAuthority()
	require.NoError(t, err)

	server, err := ca.IssueServer([]string{"localhost", "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, server.DNSNames)
	require.Len(t, server.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", server.IPAddresses[0].String())

	client, err := ca.IssueClient("bench-client")
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(ca.CACertificate())

	_, err = server.Verify(x509.VerifyOptions{
		DNSName:   "localhost",
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)

	_, err = client.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err)

	certPath := filepath.Join(dir, "server.pem")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, server.Save(certPath, keyPath))
	_, err = tls.LoadX509KeyPair(certPath, keyPath)
	assert.NoError(t, err)

	_, err = ca.IssueServer(nil)
	assert.Error(t, err)
}
