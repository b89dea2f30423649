package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/shufflefl/sim"
	"github.com/inference-sim/shufflefl/sim/backend"
	"github.com/inference-sim/shufflefl/sim/federation"
	"github.com/inference-sim/shufflefl/sim/store"
)

var (
	configPath    string // YAML run configuration
	logLevel      string // Log verbosity level
	seed          int64  // Master seed for fleet, data and planner RNGs
	rounds        int    // Federated rounds
	users         int    // Device groups
	devices       int    // Devices across all groups
	parallelism   int    // Groups processed concurrently
	baseline      bool   // Disable adaptation and shuffling
	traceLevel    string // none, rounds or full
	runID         string // Checkpoint namespace; empty generates one
	resume        bool   // Continue from the latest checkpoint of --run-id
	checkpointDir string // Directory for model checkpoints; empty disables them
	reportPath    string // YAML report output; empty disables it
	metricsFile   string // Prometheus textfile output; empty disables it
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "shufflefl",
	Short: "Data-redistribution planner for heterogeneous federated learning",
}

// runCmd executes the full federated simulation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the federated simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if resume && (checkpointDir == "" || cfg.RunID == "") {
			logrus.Fatalf("--resume needs --checkpoint-dir and a run id")
		}

		var checkpointer sim.Checkpointer
		if checkpointDir != "" {
			fs, err := store.NewFileStore(checkpointDir)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Checkpoints in %s", fs.Root())
			checkpointer = fs
		}

		registry := prometheus.NewRegistry()
		metrics, err := federation.NewMetrics(registry)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		lb := backend.NewCentroid(cfg.Dataset.NumClasses, cfg.Dataset.FeatureDim)
		coord, err := federation.NewCoordinator(cfg, lb, checkpointer, metrics)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		logrus.Infof("Starting run %s: %d users, %d devices, %d rounds, seed=%d, baseline=%v",
			coord.RunID(), cfg.Users, cfg.Devices, cfg.Rounds, cfg.Seed, cfg.Baseline)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if resume {
			ok, err := coord.Resume(ctx)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			if !ok {
				logrus.Warnf("No checkpoint for run %s, starting from round 0", coord.RunID())
			}
		}

		startTime := time.Now()
		rt, runErr := coord.Run(ctx)

		report := newReport(cfg, rt, startTime)
		printSummary(os.Stdout, report)
		if reportPath != "" {
			if err := writeReport(reportPath, report); err != nil {
				logrus.Errorf("%v", err)
			}
		}
		if metricsFile != "" {
			if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
				logrus.Errorf("failed to write metrics file: %v", err)
			}
		}
		if runErr != nil {
			logrus.Fatalf("Run aborted: %v", runErr)
		}
		logrus.Info("Run complete.")
	},
}

// planCmd reduces and optimizes every group once without shuffling or training
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute one round of transfer plans and print them",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		lb := backend.NewCentroid(cfg.Dataset.NumClasses, cfg.Dataset.FeatureDim)
		coord, err := federation.NewCoordinator(cfg, lb, nil, nil)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		for _, g := range coord.Fleet().Groups {
			res, err := coord.PlanGroup(g.ID)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			printPlan(os.Stdout, g.ID, res)
		}
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerFlags attaches the configuration flags shared by run and plan.
func registerFlags(c *cobra.Command) {
	defaults := federation.DefaultConfig()
	c.Flags().StringVar(&configPath, "config", "", "Path to a YAML run configuration")
	c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().Int64Var(&seed, "seed", defaults.Seed, "Master seed for fleet, data and planner randomness")
	c.Flags().IntVar(&rounds, "rounds", defaults.Rounds, "Number of federated rounds")
	c.Flags().IntVar(&users, "users", defaults.Users, "Number of device groups")
	c.Flags().IntVar(&devices, "devices", defaults.Devices, "Number of devices, split evenly across groups")
	c.Flags().IntVar(&parallelism, "parallelism", defaults.Parallelism, "Groups processed concurrently")
	c.Flags().BoolVar(&baseline, "baseline", false, "Disable model adaptation and shuffling")
	c.Flags().StringVar(&traceLevel, "trace-level", defaults.TraceLevel, "Round trace detail (none, rounds, full)")
	c.Flags().StringVar(&runID, "run-id", "", "Run id namespacing checkpoints (generated when empty)")
}

// init sets up CLI flags and subcommands
func init() {
	registerFlags(runCmd)
	runCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "Directory for model checkpoints (disabled when empty)")
	runCmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML run report to this path")
	runCmd.Flags().BoolVar(&resume, "resume", false, "Continue from the latest checkpoint of --run-id")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")

	registerFlags(planCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}
