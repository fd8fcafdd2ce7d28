package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fumin/qxy/backend/emulator"
	"github.com/fumin/qxy/backend/server"
	"github.com/fumin/qxy/experiment"
)

// step returns the RunE of a subcommand that only needs the configuration.
func step(f func(ctx context.Context, cfg experiment.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := f(cmd.Context(), cfg); err != nil {
			return errors.Wrap(err, cmd.Name())
		}
		return nil
	}
}

func edCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ed",
		Short: "Microcanonical order parameter across the spectrum by exact diagonalization",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			r, err := experiment.EDSweep(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Printf("energy_density,order_parameter\n")
			for _, p := range r.Points {
				fmt.Printf("%f,%f\n", p.EnergyDensity, p.Value)
			}
			return nil
		}),
	}
}

func edTimingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ed-timing",
		Short: "Time exact diagonalization on growing lattices",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			r, err := experiment.EDTiming(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			printTiming(r)
			return nil
		}),
	}
}

func circuitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "circuits",
		Short: "Simulate Trotterized quenches from product states",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			r, err := experiment.CircuitSweep(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Printf("theta,energy_density,order_parameter,time_average\n")
			for _, tr := range r.Trajectories {
				fmt.Printf("%f,%f,%f,%f\n", tr.Theta, tr.EnergyDensity, tr.Converged(), tr.TimeAverages[len(tr.TimeAverages)-1])
			}
			return nil
		}),
	}
}

func circuitsTimingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "circuits-timing",
		Short: "Time statevector simulation on growing lattices",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			r, err := experiment.CircuitTiming(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			printTiming(r)
			return nil
		}),
	}
}

func printTiming(r experiment.TimingReport) {
	fmt.Printf("N,dim,seconds\n")
	for _, t := range r.Timings {
		fmt.Printf("%d,%d,%f\n", t.N, t.Dim, t.Seconds)
	}
	if r.YearSize > 0 {
		fmt.Printf("a year is N=%.1f, the age of the universe is N=%.1f\n", r.YearSize, r.UniverseSize)
	}
}

func submitCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit measurement circuits to the backend",
		Long: `Submit sends the measurement circuits of every initial state and number of Trotter steps,
and stores their handles. Circuits submitted by an earlier run are skipped.

Jobs of the in-process emulator do not outlive the command, so --wait is required without a backend_url.`,
		Args: cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			if cfg.BackendURL == "" && !wait {
				return errors.Errorf("submitting to the in-process emulator requires --wait, or set backend_url to a server such as qxy serve")
			}
			b, closeBackend, err := openBackend(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer closeBackend()
			st, err := openStore(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer st.Close()

			r, err := experiment.Submit(ctx, cfg, b, b, st)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Printf("submitted %d, skipped %d\n", r.Submitted, r.Skipped)
			if !wait {
				return nil
			}
			if _, err := experiment.Retrieve(ctx, cfg, b, st); err != nil {
				return errors.Wrap(err, "")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for and retrieve the results")
	return cmd
}

func retrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve",
		Short: "Wait for submitted circuits and compute the order parameter over time",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			if cfg.BackendURL == "" {
				return errors.Errorf("retrieve needs backend_url, jobs of the in-process emulator are retrieved by submit --wait")
			}
			b, closeBackend, err := openBackend(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer closeBackend()
			st, err := openStore(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer st.Close()

			datasets, err := experiment.Retrieve(ctx, cfg, b, st)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Printf("theta,t,order_parameter,errorbar\n")
			for _, d := range datasets {
				for i, t := range d.Ts {
					fmt.Printf("%f,%f,%f,%f\n", d.Theta, t, d.OrderParameters[i], d.OrderParameterErrorbars[i])
				}
			}
			return nil
		}),
	}
}

func plotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plot",
		Short: "Plot the retrieved order parameters over time",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			st, err := openStore(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer st.Close()
			fpath, err := experiment.Visualise(ctx, cfg, st)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Println(fpath)
			return nil
		}),
	}
}

func latticeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lattice",
		Short: "Print the qubit mapping and couplings of the submitted lattice",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			return experiment.Lattice(os.Stdout, cfg.Lattice)
		}),
	}
}

func groundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ground",
		Short: "Ground state of an open chain by matrix product states",
		Args:  cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			g, err := experiment.Ground(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Printf("L=%d D=%d energy %f order parameter %f\n", g.L, g.BondDim, g.Energy, g.OrderParameter)
			return nil
		}),
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an emulator over the backend REST API",
		Long: `Serve runs an emulator of the configured machine behind the REST API that submit and retrieve speak.
Requests must carry the bearer token in QXY_TOKEN, if set.`,
		Args: cobra.NoArgs,
		RunE: step(func(ctx context.Context, cfg experiment.Config) error {
			e := emulator.New(emulator.Config{Machine: cfg.Machine, Workers: cfg.Workers, Seed: cfg.Seed})
			defer e.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(e, os.Getenv(envToken)),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}
			errc := make(chan error, 1)
			go func() {
				zap.L().Info("serving", zap.String("addr", addr), zap.String("machine", cfg.Machine))
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return errors.Wrap(err, "")
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errors.Wrap(err, "")
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	return cmd
}
