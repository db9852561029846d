package cert

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const runCommonNamePrefix = "Simulation Run #"

func runCommonName(id int64) string {
	return runCommonNamePrefix + strconv.FormatInt(id, 10)
}

// VerifyResult contains the result of certificate verification
type VerifyResult struct {
	Valid       bool
	RunID       string
	Standard    string
	Scrambler   string
	Seed        string
	Trials      string
	Status      string
	Duration    string
	Metrics     map[string]string
	Error       string
	Certificate *x509.Certificate
}

// VerifyCertificateFile verifies a run certificate file against a CA
// certificate file and extracts the run data
func VerifyCertificateFile(certPath, caCertPath string) (*VerifyResult, error) {
	cert, err := ReadCertificate(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	caCert, err := ReadCertificate(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	return VerifyCertificate(cert, caCert), nil
}

// VerifyCertificate verifies a run certificate and extracts the run data
func VerifyCertificate(cert, caCert *x509.Certificate) *VerifyResult {
	result := &VerifyResult{
		Certificate: cert,
		Metrics:     make(map[string]string),
	}

	if err := verify(cert, caCert); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}

	result.RunID = strings.TrimPrefix(cert.Subject.CommonName, runCommonNamePrefix)
	if result.RunID == cert.Subject.CommonName {
		result.RunID = ""
	}

	for _, ext := range cert.Extensions {
		value := string(ext.Value)

		switch {
		case ext.Id.Equal(oidStatus):
			result.Status = value
		case ext.Id.Equal(oidStandard):
			result.Standard = value
		case ext.Id.Equal(oidScrambler):
			result.Scrambler = value
		case ext.Id.Equal(oidSeed):
			result.Seed = value
		case ext.Id.Equal(oidTrials):
			result.Trials = value
		case ext.Id.Equal(oidDuration):
			result.Duration = value + " seconds"
		case len(ext.Id) == len(oidMetrics)+1 && ext.Id[:len(oidMetrics)].Equal(oidMetrics):
			if metric, v, ok := strings.Cut(value, ":"); ok {
				result.Metrics[metric] = v
			}
		}
	}

	return result
}

// FormatVerifyResult formats verification result for display
func FormatVerifyResult(result *VerifyResult) string {
	var sb strings.Builder

	sb.WriteString("Certificate Verification Result\n")
	sb.WriteString("===============================\n\n")

	if result.Valid {
		sb.WriteString("Status: VALID ✓\n")
	} else {
		sb.WriteString("Status: INVALID ✗\n")
		fmt.Fprintf(&sb, "Error: %s\n", result.Error)
	}

	sb.WriteString("\nCertificate Details:\n")
	fmt.Fprintf(&sb, "  Subject: %s\n", result.Certificate.Subject)
	fmt.Fprintf(&sb, "  Issuer: %s\n", result.Certificate.Issuer)
	fmt.Fprintf(&sb, "  Serial: %s\n", result.Certificate.SerialNumber)
	fmt.Fprintf(&sb, "  Valid From: %s\n", result.Certificate.NotBefore)
	fmt.Fprintf(&sb, "  Valid Until: %s\n", result.Certificate.NotAfter)

	if result.RunID != "" {
		sb.WriteString("\nRun Information:\n")
		fmt.Fprintf(&sb, "  Run ID: %s\n", result.RunID)
		fmt.Fprintf(&sb, "  Standard: %s\n", result.Standard)
		fmt.Fprintf(&sb, "  Scrambler: %s\n", result.Scrambler)
		fmt.Fprintf(&sb, "  Seed: %s\n", result.Seed)
		fmt.Fprintf(&sb, "  Trials: %s\n", result.Trials)
		fmt.Fprintf(&sb, "  Status: %s\n", result.Status)
		fmt.Fprintf(&sb, "  Duration: %s\n", result.Duration)

		if len(result.Metrics) > 0 {
			sb.WriteString("\nMetrics:\n")
			names := make([]string, 0, len(result.Metrics))
			for name := range result.Metrics {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&sb, "  %s: %s\n", name, result.Metrics[name])
			}
		}
	}

	return sb.String()
}
