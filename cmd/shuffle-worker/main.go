// Command shuffle-worker is the per-process entry point for one rank of a
// distributed graph-partitioning data-shuffle run. It reads configuration,
// joins the process group at the configured rendezvous address, runs the
// shuffle pipeline once, and reports the partitions it produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphshuffle/shuffle/internal/engine"
	"github.com/graphshuffle/shuffle/internal/transport"
	"github.com/graphshuffle/shuffle/pkg/compression"
	"github.com/graphshuffle/shuffle/pkg/config"
	"github.com/graphshuffle/shuffle/pkg/telemetry"
	"github.com/graphshuffle/shuffle/pkg/utils"
)

var (
	configPath = flag.String("c", "", "Path to configuration file")
	logDir     = flag.String("d", "", "Directory for log files (stderr if empty)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	version    = flag.Bool("v", false, "Print version and exit")
)

// Version information (set by build flags).
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("shuffle-worker version %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	logger, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	utils.SetGlobalLogger(logger)

	logger.Info("starting shuffle-worker version %s (commit: %s, built: %s)", Version, GitCommit, BuildTime)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Info("rank=%d world_size=%d master=%s:%d num_parts=%d", cfg.Transport.Rank, cfg.Transport.WorldSize, cfg.Transport.MasterAddr, cfg.Transport.MasterPort, cfg.Shuffle.NumParts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal %v, cancelling run", sig)
		cancel()
	}()

	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed: %v", err)
		}
	}()

	tcfg, err := transportConfig(cfg)
	if err != nil {
		logger.Error("invalid transport codec: %v", err)
		os.Exit(1)
	}
	group, err := transport.New(ctx, tcfg)
	if err != nil {
		logger.Error("failed to join process group: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := group.Close(); err != nil {
			logger.Warn("error closing process group: %v", err)
		}
	}()

	eng := engine.New(group, cfg, logger)
	result, err := eng.Run(ctx)
	if err != nil {
		logger.Error("shuffle run failed: %v", err)
		os.Exit(1)
	}

	logger.Info("rank %d produced %d partition(s): %v", result.Rank, len(result.PartitionKeys), result.PartitionKeys)
	if result.MetadataKey != "" {
		logger.Info("wrote global metadata to %s", result.MetadataKey)
	}
}

func transportConfig(cfg *config.Config) (transport.Config, error) {
	codec, err := resolveCodec(cfg.Transport.Codec)
	if err != nil {
		return transport.Config{}, err
	}
	return transport.Config{
		Backend:    cfg.Transport.Backend,
		Rank:       cfg.Transport.Rank,
		WorldSize:  cfg.Transport.WorldSize,
		MasterAddr: cfg.Transport.MasterAddr,
		MasterPort: cfg.Transport.MasterPort,
		Timeout:    time.Duration(cfg.Transport.TimeoutSecs) * time.Second,
		Codec:      codec,
	}, nil
}

// resolveCodec maps the configured codec name to a Compressor, leaving it
// nil (TypeNone) for "" or "none" so uncompressed wire bytes stay the
// default.
func resolveCodec(name string) (compression.Compressor, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "gzip":
		return compression.New(compression.TypeGzip, compression.LevelDefault)
	case "zstd":
		return compression.New(compression.TypeZstd, compression.LevelDefault)
	default:
		return nil, fmt.Errorf("unknown transport codec %q (valid: none, gzip, zstd)", name)
	}
}

func buildLogger() (*utils.DefaultLogger, error) {
	level := utils.LevelInfo
	if *verbose {
		level = utils.LevelDebug
	}
	if *logDir == "" {
		return utils.NewDefaultLogger(level, os.Stderr), nil
	}
	return utils.NewFileLogger(level, *logDir+"/shuffle-worker.log")
}
