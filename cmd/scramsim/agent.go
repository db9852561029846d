package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/agent"
	"github.com/mscrnt/scramsim/pkg/channel"
	"github.com/mscrnt/scramsim/pkg/db"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Remote simulation agent",
		Long:  "Serve simulations over HTTP(S) and talk to remote agents",
	}

	cmd.AddCommand(agentServeCmd())
	cmd.AddCommand(agentConnectCmd())
	cmd.AddCommand(agentSimulateCmd())

	return cmd
}

// envDefault fills an unset string flag from the environment
func envDefault(cmd *cobra.Command, flag string, value *string, env string) {
	if !cmd.Flags().Changed(flag) {
		if v := os.Getenv(env); v != "" {
			*value = v
		}
	}
}

func agentServeCmd() *cobra.Command {
	var (
		config  = agent.DefaultConfig()
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent server",
		Long: `Start the scramsim agent server.

Without a certificate the agent serves plain HTTP. With --cert and --key it
serves HTTPS and with --ca it also requires client certificates signed by
that CA.

The agent exposes the following endpoints:
  /health      - Health check
  /standards   - Built-in scrambler standards
  /scramblers  - Registered scrambler variants
  /sysinfo     - Host information
  /simulate    - Run a batch of trials (POST)

Examples:
  # Plain HTTP on the default port
  scramsim agent serve

  # Mutual TLS
  scramsim agent serve --cert server.pem --key server.key --ca ca.crt

  # Using environment variables
  export SCRAMSIM_AGENT_PORT=2223
  export SCRAMSIM_AGENT_CERT=server.pem
  export SCRAMSIM_AGENT_KEY=server.key
  export SCRAMSIM_AGENT_CA=ca.crt
  scramsim agent serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envDefault(cmd, "cert", &config.CertFile, "SCRAMSIM_AGENT_CERT")
			envDefault(cmd, "key", &config.KeyFile, "SCRAMSIM_AGENT_KEY")
			envDefault(cmd, "ca", &config.CAFile, "SCRAMSIM_AGENT_CA")
			if envPort := os.Getenv("SCRAMSIM_AGENT_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
				port, err := strconv.Atoi(envPort)
				if err != nil {
					return fmt.Errorf("invalid SCRAMSIM_AGENT_PORT: %w", err)
				}
				config.Port = port
			}

			var database *db.DB
			if !noStore {
				var err error
				database, err = openDB()
				if err != nil {
					return err
				}
				defer func() { _ = database.Close() }()
			}

			server, err := agent.NewServer(config, database, slog.Default())
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start()
			}()

			mode := "plain HTTP"
			switch {
			case config.MutualTLS():
				mode = "mTLS"
			case config.TLSEnabled():
				mode = "TLS"
			}
			fmt.Printf("Agent server started on %s with %s\n", config.Addr(), mode)
			if config.TLSEnabled() {
				fmt.Printf("Certificate: %s\n", config.CertFile)
			}
			if config.MutualTLS() {
				fmt.Printf("CA: %s\n", config.CAFile)
			}
			fmt.Println("\nPress Ctrl+C to stop...")

			select {
			case sig := <-sigChan:
				fmt.Printf("\nReceived signal: %v\n", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
				fmt.Println("Server stopped gracefully")
				return nil

			case err := <-errChan:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&config.Host, "host", "", "Address to listen on (default: all interfaces)")
	cmd.Flags().IntVar(&config.Port, "port", agent.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&config.CertFile, "cert", "", "Server certificate file")
	cmd.Flags().StringVar(&config.KeyFile, "key", "", "Server private key file")
	cmd.Flags().StringVar(&config.CAFile, "ca", "", "CA certificate file for client verification")
	cmd.Flags().IntVar(&config.MaxTrials, "max-trials", agent.DefaultMaxTrials, "Maximum trials per request")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not store simulations in the database")

	return cmd
}

// addClientFlags registers the connection flags shared by client commands
func addClientFlags(cmd *cobra.Command, config *agent.ClientConfig) {
	cmd.Flags().StringVar(&config.Host, "host", config.Host, "Target host")
	cmd.Flags().IntVar(&config.Port, "port", config.Port, "Target port")
	cmd.Flags().StringVar(&config.CertFile, "cert", "", "Client certificate file")
	cmd.Flags().StringVar(&config.KeyFile, "key", "", "Client private key file")
	cmd.Flags().StringVar(&config.CAFile, "ca", "", "CA certificate file for server verification")
}

func newAgentClient(cmd *cobra.Command, config agent.ClientConfig) (*agent.Client, error) {
	envDefault(cmd, "cert", &config.CertFile, "SCRAMSIM_CLIENT_CERT")
	envDefault(cmd, "key", &config.KeyFile, "SCRAMSIM_CLIENT_KEY")
	envDefault(cmd, "ca", &config.CAFile, "SCRAMSIM_CLIENT_CA")

	client, err := agent.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func agentConnectCmd() *cobra.Command {
	var (
		config   = agent.DefaultClientConfig()
		endpoint string
		pretty   bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Query a remote agent",
		Long: `Connect to a scramsim agent and print the response of a GET endpoint.

Available endpoints:
  health, standards, scramblers, sysinfo

Examples:
  # Host information
  scramsim agent connect --host 192.168.1.100 --endpoint sysinfo --pretty

  # Over mutual TLS
  scramsim agent connect --host bench-01 --endpoint standards \
    --cert client.pem --key client.key --ca ca.crt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newAgentClient(cmd, config)
			if err != nil {
				return err
			}

			data, err := client.Get(cmd.Context(), endpoint)
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}

			if pretty {
				var out bytes.Buffer
				if err := json.Indent(&out, data, "", "  "); err == nil {
					fmt.Println(out.String())
					return nil
				}
			}

			fmt.Print(string(data))
			return nil
		},
	}

	addClientFlags(cmd, &config)
	cmd.Flags().StringVar(&endpoint, "endpoint", "sysinfo", "Endpoint to query")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty print JSON output")

	return cmd
}

func agentSimulateCmd() *cobra.Command {
	var (
		config = agent.DefaultClientConfig()
		req    agent.SimulateRequest
		noise  = channel.DefaultNoiseModel()
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulation on a remote agent",
		Long: `Ask a remote agent to run a batch of trials and print the summary.

Examples:
  scramsim agent simulate --host bench-01 --standard DVB --trials 1000 --workers 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("max-run") {
				req.MaxRun = &noise.MaxRun
			}
			if flags.Changed("flip-probability") {
				req.FlipProbability = &noise.FlipProbability
			}
			if flags.Changed("base-error-rate") {
				req.BaseErrorRate = &noise.BaseErrorRate
			}

			client, err := newAgentClient(cmd, config)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			resp, err := client.Simulate(ctx, req)
			if err != nil {
				return err
			}

			for _, warning := range resp.Warnings {
				slog.Warn("agent: " + warning)
			}

			var run *db.Run
			if resp.RunID != 0 {
				run = &db.Run{ID: resp.RunID}
			}
			printSummary(resp.Standard+" / "+resp.Scrambler, resp.Seed, resp.Summary, run)
			return nil
		},
	}

	addClientFlags(cmd, &config)
	cmd.Flags().StringVarP(&req.Standard, "standard", "s", "", "Scrambler standard (default: agent default)")
	cmd.Flags().StringVar(&req.Scrambler, "scrambler", "", "Scrambler variant (default: agent default)")
	cmd.Flags().IntVarP(&req.Trials, "trials", "n", 1, "Number of trials")
	cmd.Flags().IntVarP(&req.Workers, "workers", "w", 1, "Parallel workers")
	cmd.Flags().Uint64Var(&req.Seed, "seed", 0, "Random seed (0 = random)")
	addNoiseFlags(cmd, &noise)

	return cmd
}
