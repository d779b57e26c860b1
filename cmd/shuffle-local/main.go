// Command shuffle-local launches every rank of a shuffle run as a
// subprocess on one machine, for development and single-box testing. It
// does not replace shuffle-worker: each subprocess is a regular
// shuffle-worker process, wired together with a rendezvous address and a
// rank assigned by this launcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphshuffle/shuffle/pkg/pprof"
	"github.com/graphshuffle/shuffle/pkg/utils"
)

var (
	configPath  string
	worldSize   int
	workerBin   string
	masterAddr  string
	masterPort  int
	verbose     bool
	logger      utils.Logger

	pprofEnabled  bool
	pprofMode     string
	pprofDir      string
	pprofProfiles string
	pprofAddr     string
)

var rootCmd = &cobra.Command{
	Use:   "shuffle-local",
	Short: "Run every rank of a shuffle job as a local subprocess",
	Long: `shuffle-local spawns world-size shuffle-worker subprocesses on this
machine, each bound to its own rank, all rendezvousing over TCP at one
shared master address and port. It is meant for development and for shuffling graphs small enough
to fit on one box; a real cluster run launches shuffle-worker once per
machine instead.`,
	RunE: runLocal,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := utils.LevelInfo
		if verbose {
			level = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(level, os.Stdout)

		if pprofEnabled {
			cfg := pprof.DefaultConfig()
			cfg.Enabled = true
			cfg.OutputDir = pprofDir
			switch pprofMode {
			case "file":
				cfg.Mode = pprof.ModeFile
			case "http":
				cfg.Mode = pprof.ModeHTTP
			default:
				return fmt.Errorf("invalid pprof mode: %q (valid: file, http)", pprofMode)
			}
			profiles, err := pprof.ParseProfileTypes(pprofProfiles)
			if err != nil {
				return err
			}
			cfg.Profiles = profiles
			cfg.HTTPConfig.Addr = pprofAddr
			if err := pprof.StartGlobal(cfg); err != nil {
				return err
			}
			logger.Info("pprof collection started for launcher (mode: %s, dir: %s)", cfg.Mode, cfg.OutputDir)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofEnabled {
			if err := pprof.StopGlobal(); err != nil {
				logger.Warn("failed to stop launcher pprof collector: %v", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the config file shared by every worker")
	rootCmd.Flags().IntVarP(&worldSize, "world-size", "w", 1, "Number of worker subprocesses to launch")
	rootCmd.Flags().StringVar(&workerBin, "worker-bin", "", "Path to the shuffle-worker binary (defaults to a sibling of this executable)")
	rootCmd.Flags().StringVar(&masterAddr, "master-addr", "127.0.0.1", "Rendezvous address shared by every worker")
	rootCmd.Flags().IntVar(&masterPort, "master-port", 29500, "Rendezvous port shared by every worker")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Enable pprof profiling of the launcher process itself")
	rootCmd.PersistentFlags().StringVar(&pprofMode, "pprof-mode", "file", "Pprof mode: file or http")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap,goroutine", "Comma-separated profile types")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof-addr", ":6061", "HTTP listen address for http mode")

	rootCmd.Example = `  # Run a 4-way shuffle entirely on this machine
  shuffle-local -c config.yaml -w 4

  # Point at an explicitly built worker binary
  shuffle-local -c config.yaml -w 4 --worker-bin ./bin/shuffle-worker`
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLocal(cmd *cobra.Command, args []string) error {
	bin, err := resolveWorkerBin()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal %v, stopping all workers", sig)
		cancel()
	}()

	logger.Info("launching %d shuffle-worker subprocess(es) via %s, rendezvous %s:%d", worldSize, bin, masterAddr, masterPort)

	var wg sync.WaitGroup
	procErrs := make([]error, worldSize)
	for rank := 0; rank < worldSize; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			procErrs[rank] = runWorker(ctx, bin, rank)
		}(rank)
	}
	wg.Wait()

	for rank, err := range procErrs {
		if err != nil {
			return fmt.Errorf("worker rank %d failed: %w", rank, err)
		}
	}
	logger.Info("all %d worker(s) finished successfully", worldSize)
	return nil
}

// runWorker starts one shuffle-worker subprocess for rank, inheriting this
// process's stdout/stderr, and waits for it to exit. A context cancellation
// sends the subprocess SIGTERM rather than killing it outright, so it can
// still flush partition output.
func runWorker(ctx context.Context, bin string, rank int) error {
	cmd := exec.Command(bin, "-c", configPath)
	if verbose {
		cmd.Args = append(cmd.Args, "-verbose")
	}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("RANK=%d", rank),
		fmt.Sprintf("SHUFFLE_TRANSPORT_WORLD_SIZE=%d", worldSize),
		fmt.Sprintf("MASTER_ADDR=%s", masterAddr),
		fmt.Sprintf("MASTER_PORT=%d", masterPort),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-done
		}
		return ctx.Err()
	}
}

// resolveWorkerBin locates the shuffle-worker binary: an explicit
// --worker-bin flag wins, otherwise it looks for a sibling of this
// executable.
func resolveWorkerBin() (string, error) {
	if workerBin != "" {
		return workerBin, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating shuffle-local executable: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(self), "shuffle-worker")
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("shuffle-worker not found next to shuffle-local at %s (pass --worker-bin): %w", candidate, err)
	}
	return candidate, nil
}
