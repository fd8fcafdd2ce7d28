// Command qxy runs the steps of the microcanonical XY study.
//
//	qxy ed | ed-timing | circuits | circuits-timing | submit | retrieve | plot | lattice | ground | serve
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fumin/qxy/backend"
	"github.com/fumin/qxy/backend/emulator"
	"github.com/fumin/qxy/backend/nexus"
	"github.com/fumin/qxy/experiment"
	"github.com/fumin/qxy/store"
)

const envToken = "QXY_TOKEN"

var (
	configPath string
	runDir     string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qxy",
		Short: "Microcanonical expectation values of the quantum XY model",
		Long: `qxy computes microcanonical expectation values of the quantum XY model,
by exact diagonalization and by Trotterized circuits run on a simulator or a remote backend.

Parameters are read from a YAML file given by --config, over the defaults.
The backend token is read from QXY_TOKEN, which may be set in a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errors.Wrap(err, "")
			}
			if err := setupLogger(verbose); err != nil {
				return errors.Wrap(err, "")
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			// Syncing stderr fails on some terminals.
			_ = zap.L().Sync()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVarP(&runDir, "dir", "d", experiment.Default().Dir, "run directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		edCmd(),
		edTimingCmd(),
		circuitsCmd(),
		circuitsTimingCmd(),
		submitCmd(),
		retrieveCmd(),
		plotCmd(),
		latticeCmd(),
		groundCmd(),
		serveCmd(),
	)
	return root
}

func setupLogger(verbose bool) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// loadConfig reads the configuration, and creates the run directory.
func loadConfig(cmd *cobra.Command) (experiment.Config, error) {
	cfg, err := experiment.LoadConfig(configPath)
	if err != nil {
		return experiment.Config{}, errors.Wrap(err, "")
	}
	if cmd.Flags().Changed("dir") {
		cfg.Dir = runDir
	}
	if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
		return experiment.Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}

// remote is a backend that also manages projects.
type remote interface {
	backend.Backend
	backend.ProjectService
}

// openBackend returns the backend of cfg.
// Without a backend URL, jobs run on an in-process emulator, which must be closed after use.
func openBackend(cfg experiment.Config) (remote, func() error, error) {
	if cfg.BackendURL == "" {
		e := emulator.New(emulator.Config{Machine: cfg.Machine, Workers: cfg.Workers, Seed: cfg.Seed})
		return e, e.Close, nil
	}
	c, err := nexus.New(nexus.Config{
		URL:     cfg.BackendURL,
		Token:   os.Getenv(envToken),
		Machine: cfg.Machine,
		Project: cfg.Project,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	return c, func() error { return nil }, nil
}

func openStore(cfg experiment.Config) (store.Store, error) {
	st, err := store.Open(cfg.StoreDSN())
	if err != nil {
		return nil, errors.Wrap(err, cfg.StoreDSN())
	}
	return st, nil
}

func main() {
	if err := mainWithErr(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func mainWithErr() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return err
	}
	return nil
}
