package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"chui/internal/logging"
	"chui/simulator"

	"github.com/rs/zerolog/log"
)

func main() {
	config := simulator.DefaultConfig()
	flag.StringVar(&config.ServerURL, "server", config.ServerURL, "chui server URL")
	flag.IntVar(&config.NumUsers, "users", config.NumUsers, "number of simulated users")
	flag.DurationVar(&config.SimulationTime, "duration", config.SimulationTime, "how long to generate traffic")
	flag.Float64Var(&config.MessageRate, "rate", config.MessageRate, "actions per second across all users")
	flag.Float64Var(&config.ReadRatio, "read-ratio", config.ReadRatio, "fraction of actions that read instead of send")
	flag.Float64Var(&config.ZipfS, "zipf", config.ZipfS, "zipf exponent for recipient popularity (> 1)")
	flag.IntVar(&config.Workers, "workers", config.Workers, "concurrent workers")
	flag.StringVar(&config.Prefix, "prefix", config.Prefix, "username prefix")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.Setup(*logLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.SimulationTime)
	defer cancel()

	log.Info().
		Str("server", config.ServerURL).
		Int("users", config.NumUsers).
		Dur("duration", config.SimulationTime).
		Float64("rate", config.MessageRate).
		Float64("zipf", config.ZipfS).
		Msg("Starting simulation")

	sim := simulator.NewSimulator(config)
	if err := sim.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}

	m := sim.GetMetrics()
	log.Info().
		Int("users", m.TotalUsers).
		Int64("requests", m.TotalRequests).
		Int64("sent", m.MessagesSent).
		Int64("inbox_reads", m.InboxReads).
		Int64("conversation_reads", m.ConversationReads).
		Int64("stale_summaries", m.StaleSummaries).
		Int64("errors", m.ErrorCount).
		Interface("errors_by_code", m.ErrorsByCode).
		Dur("avg", m.AverageLatency).
		Dur("p50", m.P50Latency).
		Dur("p99", m.P99Latency).
		Float64("req_per_sec", m.RequestsPerSecond).
		Msg("Simulation completed")
}
