package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/sitstraight/internal/replay"
	"github.com/okian/sitstraight/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		baseURL    = flag.String("url", replay.DefaultBaseURL, "Base URL of the service")
		numSamples = flag.Int("samples", replay.DefaultNumSamples, "Number of samples to generate")
		mode       = flag.String("mode", string(replay.ModeSamples), "Submission mode: samples or score")
		mix        = flag.String("mix", replay.DefaultMix().String(), "Profile weights, e.g. upright=50,slouched=25")
		seed       = flag.Int64("seed", 1, "Generator seed")
		runID      = flag.String("run", "", "Run id used as the sample id prefix (default random)")
		workers    = flag.Int("workers", replay.DefaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", replay.DefaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", replay.DefaultSettleTimeout, "Wait for the recorded count to catch up")
		outputFile = flag.String("output", "", "Output file for generated samples")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Log every rejected or mismatched sample")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	if err := logger.InitWithOptions(logger.Options{File: *logFile}); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	m, err := replay.ParseMix(*mix)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &replay.Config{
		BaseURL:       *baseURL,
		NumSamples:    *numSamples,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		Mode:          replay.Mode(*mode),
		Mix:           m,
		Seed:          *seed,
		RunID:         *runID,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := replay.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "replay failed", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
