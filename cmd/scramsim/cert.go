package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/cert"
)

func certCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate management",
		Long:  "Issue agent TLS certificates and signed certificates for stored runs",
	}

	cmd.PersistentFlags().String("ca-path", "", "Path to CA directory (default: ~/.scramsim/ca)")

	cmd.AddCommand(certInitCmd())
	cmd.AddCommand(certIssueCmd())
	cmd.AddCommand(certVerifyCmd())
	cmd.AddCommand(certAgentCmd())

	return cmd
}

// caFiles returns the CA certificate and key paths
func caFiles(cmd *cobra.Command) (string, string, error) {
	caPath, err := cmd.Flags().GetString("ca-path")
	if err != nil {
		return "", "", err
	}
	if caPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("failed to get home directory: %w", err)
		}
		caPath = filepath.Join(homeDir, ".scramsim", "ca")
	}
	return filepath.Join(caPath, "ca.crt"), filepath.Join(caPath, "ca.key"), nil
}

func loadAuthority(cmd *cobra.Command) (*cert.Authority, error) {
	certPath, keyPath, err := caFiles(cmd)
	if err != nil {
		return nil, err
	}
	ca, err := cert.LoadCA(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA (run 'scramsim cert init' first): %w", err)
	}
	return ca, nil
}

func certInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize certificate authority",
		Long: `Initialize a certificate authority (CA). The CA signs the agent's TLS
certificates and certificates for stored runs.

Examples:
  # Initialize CA in default location
  scramsim cert init

  # Initialize CA in custom location
  scramsim cert init --ca-path /path/to/ca

  # Force overwrite existing CA
  scramsim cert init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			certPath, keyPath, err := caFiles(cmd)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
				return fmt.Errorf("failed to create CA directory: %w", err)
			}

			if !force {
				if _, err := os.Stat(certPath); err == nil {
					return fmt.Errorf("CA certificate already exists at %s (use --force to overwrite)", certPath)
				}
			}

			ca, err := cert.NewAuthority()
			if err != nil {
				return fmt.Errorf("failed to create CA: %w", err)
			}
			if err := ca.SaveCA(certPath, keyPath); err != nil {
				return fmt.Errorf("failed to save CA: %w", err)
			}

			fmt.Println("Certificate Authority initialized successfully")
			fmt.Printf("CA Certificate: %s\n", certPath)
			fmt.Printf("CA Private Key: %s\n", keyPath)
			fmt.Println("\nIMPORTANT: Keep the private key secure and backed up!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force overwrite existing CA")

	return cmd
}

func certIssueCmd() *cobra.Command {
	var (
		runID     int64
		latest    bool
		standard  string
		output    string
		keyOutput string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a certificate for a run",
		Long: `Issue a certificate attesting to a stored run.

The certificate carries the signed run data:
- Standard, scrambler and seed
- Trial count and duration
- Status (PASSED/FAILED)
- Summary metrics

Examples:
  # Certificate for the latest run
  scramsim cert issue --latest

  # Certificate for a specific run
  scramsim cert issue --run 42 --out run-42.pem --key run-42.key`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ca, err := loadAuthority(cmd)
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			run, err := resolveRun(database, runID, latest, standard)
			if err != nil {
				return err
			}

			results, err := database.GetResults(run.ID)
			if err != nil {
				return fmt.Errorf("failed to get results: %w", err)
			}

			certificate, err := ca.IssueRunCertificate(run, results)
			if err != nil {
				return fmt.Errorf("failed to issue certificate: %w", err)
			}

			if output == "" {
				timestamp := time.Now().Format("20060102_150405")
				output = fmt.Sprintf("scramsim_cert_%d_%s.pem", run.ID, timestamp)
			}

			if err := certificate.Save(output, keyOutput); err != nil {
				return fmt.Errorf("failed to save certificate: %w", err)
			}

			fmt.Printf("Certificate issued for run #%d\n", run.ID)
			fmt.Printf("Simulation: %s / %s\n", run.Standard, run.Scrambler)
			fmt.Printf("Status: %s\n", statusText(run))
			fmt.Printf("Certificate: %s\n", output)
			if keyOutput != "" {
				fmt.Printf("Private Key: %s\n", keyOutput)
			}

			fmt.Printf("\nCertificate Details:\n")
			fmt.Printf("  Subject: %s\n", certificate.Subject)
			fmt.Printf("  Serial: %s\n", certificate.SerialNumber)
			fmt.Printf("  Valid From: %s\n", certificate.NotBefore.Format("2006-01-02 15:04:05"))
			fmt.Printf("  Valid Until: %s\n", certificate.NotAfter.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to issue certificate for")
	cmd.Flags().BoolVar(&latest, "latest", false, "Use latest run")
	cmd.Flags().StringVarP(&standard, "standard", "s", "", "Filter by standard when using --latest")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output certificate file")
	cmd.Flags().StringVar(&keyOutput, "key", "", "Output private key file (optional)")

	return cmd
}

func certVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [certificate]",
		Short: "Verify a run certificate",
		Long: `Verify a run certificate against the CA and display the run data it carries.

Examples:
  scramsim cert verify run-42.pem
  scramsim cert verify run-42.pem --ca-path /path/to/ca`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caCertPath, _, err := caFiles(cmd)
			if err != nil {
				return err
			}

			result, err := cert.VerifyCertificateFile(args[0], caCertPath)
			if err != nil {
				return fmt.Errorf("failed to verify certificate: %w", err)
			}

			fmt.Println(cert.FormatVerifyResult(result))

			if !result.Valid {
				return fmt.Errorf("certificate %s is not valid", args[0])
			}
			return nil
		},
	}
}

func certAgentCmd() *cobra.Command {
	var (
		hosts      []string
		clientName string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Issue TLS certificates for the agent",
		Long: `Issue a server certificate for the agent and a client certificate for
connecting to it, both signed by the CA. Together with the CA certificate
they enable mutual TLS.

Examples:
  scramsim cert agent --host bench-01 --host 10.0.0.5 --out-dir ./certs
  scramsim agent serve --cert certs/server.pem --key certs/server.key --ca ~/.scramsim/ca/ca.crt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ca, err := loadAuthority(cmd)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			server, err := ca.IssueServer(hosts)
			if err != nil {
				return fmt.Errorf("failed to issue server certificate: %w", err)
			}
			client, err := ca.IssueClient(clientName)
			if err != nil {
				return fmt.Errorf("failed to issue client certificate: %w", err)
			}

			files := []struct {
				label string
				c     *cert.Certificate
				name  string
			}{
				{"Server", server, "server"},
				{"Client", client, "client"},
			}
			for _, f := range files {
				certPath := filepath.Join(outDir, f.name+".pem")
				keyPath := filepath.Join(outDir, f.name+".key")
				if err := f.c.Save(certPath, keyPath); err != nil {
					return fmt.Errorf("failed to save %s certificate: %w", f.name, err)
				}
				fmt.Printf("%s certificate: %s\n", f.label, certPath)
				fmt.Printf("%s key:         %s\n", f.label, keyPath)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "Host names and addresses the agent is reached by")
	cmd.Flags().StringVar(&clientName, "client-name", "scramsim-client", "Common name of the client certificate")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory for the issued files")

	return cmd
}
