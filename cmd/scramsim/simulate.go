package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/channel"
	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/scrambler"
	"github.com/mscrnt/scramsim/pkg/sim"
)

var (
	simStandard  string
	simScrambler string
	simTrials    int
	simWorkers   int
	simSeed      uint64
	simPayload   string
	simVerbose   bool
	simNoStore   bool
	simNoise     = channel.DefaultNoiseModel()
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run transmission trials",
		Long: `Send random frames over the noisy channel with and without scrambling and
compare the bit-error rates of both paths.

Every run is stored in the database unless --no-store is given.

Examples:
  # One DVB trial with the additive scrambler
  scramsim simulate --standard DVB

  # 500 BLE trials on 4 workers, reproducible
  scramsim simulate --standard BLE --trials 500 --workers 4 --seed 42

  # Harsher channel
  scramsim simulate --max-run 3 --flip-probability 0.95 --base-error-rate 0.02

  # Transmit a preloaded payload and print every frame
  scramsim simulate --payload data.txt --verbose`,
		RunE: runSimulate,
	}

	cmd.Flags().StringVarP(&simStandard, "standard", "s", lfsr.TEST.Name, "Scrambler standard (TEST, V34, DVB, BLE)")
	cmd.Flags().StringVar(&simScrambler, "scrambler", scrambler.AdditiveName, "Scrambler variant")
	cmd.Flags().IntVarP(&simTrials, "trials", "n", 1, "Number of trials")
	cmd.Flags().IntVarP(&simWorkers, "workers", "w", 1, "Parallel workers")
	cmd.Flags().Uint64Var(&simSeed, "seed", 0, "Random seed (0 = random)")
	cmd.Flags().StringVar(&simPayload, "payload", "", "File with a preloaded 0/1 payload")
	cmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "Print the bits of every trial")
	cmd.Flags().BoolVar(&simNoStore, "no-store", false, "Do not store the run")
	addNoiseFlags(cmd, &simNoise)

	return cmd
}

func addNoiseFlags(cmd *cobra.Command, m *channel.NoiseModel) {
	cmd.Flags().IntVar(&m.MaxRun, "max-run", m.MaxRun, "Run length at which the channel starts flipping bits")
	cmd.Flags().Float64Var(&m.FlipProbability, "flip-probability", m.FlipProbability, "Flip probability once a run exceeds --max-run")
	cmd.Flags().Float64Var(&m.BaseErrorRate, "base-error-rate", m.BaseErrorRate, "Flip probability for every other bit")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	std, err := lfsr.LookupStandard(simStandard)
	if err != nil {
		return err
	}

	payload, err := loadPayload(simPayload)
	if err != nil {
		return err
	}

	cfg := sim.Config{
		Standard:  std,
		Scrambler: simScrambler,
		Noise:     simNoise,
		Seed:      simSeed,
		Payload:   payload,
	}

	simulator, err := sim.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Debug("starting simulation",
		"standard", std.String(), "scrambler", cfg.Scrambler,
		"trials", simTrials, "workers", simWorkers, "seed", simulator.Seed())

	var printer sim.Sink
	if simVerbose {
		printer = sim.SinkFunc(printTrial)
	}

	var (
		summary sim.Summary
		run     *db.Run
	)
	if simNoStore {
		summary, err = simulator.Run(ctx, simTrials, simWorkers, printer)
	} else {
		run, summary, err = storeSimulation(ctx, simulator, printer)
	}

	printSummary(fmt.Sprintf("%s / %s", std.Name, cfg.Scrambler), simulator.Seed(), summary, run)
	return err
}

func storeSimulation(ctx context.Context, simulator *sim.Simulator, printer sim.Sink) (*db.Run, sim.Summary, error) {
	database, err := openDB()
	if err != nil {
		return nil, sim.Summary{}, err
	}
	defer func() { _ = database.Close() }()

	params := db.JSONData{"source": "cli"}
	if simPayload != "" {
		params["payload_file"] = simPayload
	}
	return database.RecordSimulation(ctx, simulator, simTrials, simWorkers, params, printer)
}

func printTrial(i int, r sim.TrialResult) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("\nTrial %d (%d bits, seed %s)\n", i+1, r.FrameLength, r.Seed)
	fmt.Printf("Original data:                  %s\n", r.Original)
	fmt.Printf("Scrambled data:                 %s\n", r.Scrambled)
	fmt.Printf("Received data with no scramble: %s\n", r.NoisyUnscrambled)
	fmt.Printf("Number of errors no scramble:   %d (%.4f)\n", r.ErrorsUnscrambled, r.UnscrambledRate())
	fmt.Printf("Received data with scramble:    %s\n", r.Descrambled)
	fmt.Printf("Number of errors scramble:      %d (%.4f)\n", r.ErrorsScrambled, r.ScrambledRate())
	return nil
}

func printSummary(title string, seed uint64, s sim.Summary, run *db.Run) {
	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	fmt.Println()
	_, _ = header.Println(title)
	fmt.Printf("Seed:                %d\n", seed)
	if run != nil {
		fmt.Printf("Run ID:              %d\n", run.ID)
	}
	fmt.Printf("Trials:              %d (%d bits)\n", s.Trials, s.TotalBits)
	if s.Trials == 0 {
		return
	}

	fmt.Printf("Unscrambled errors:  %d  mean rate %.4f  [%.4f, %.4f]\n",
		s.ErrorsUnscrambled, s.MeanUnscrambledRate, s.MinUnscrambledRate, s.MaxUnscrambledRate)
	fmt.Printf("Scrambled errors:    %d  mean rate %.4f  [%.4f, %.4f]\n",
		s.ErrorsScrambled, s.MeanScrambledRate, s.MinScrambledRate, s.MaxScrambledRate)

	switch {
	case s.ErrorsScrambled == 0 && s.ErrorsUnscrambled == 0:
		_, _ = good.Println("No errors on either path")
	case s.ErrorsScrambled == 0:
		_, _ = good.Println("Scrambling removed every error")
	case s.ErrorsScrambled < s.ErrorsUnscrambled:
		_, _ = good.Printf("Scrambling reduced errors %.2fx\n", s.Improvement())
	default:
		_, _ = bad.Printf("Scrambling did not help (%.2fx)\n", s.Improvement())
	}
}
