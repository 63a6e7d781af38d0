package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shivanshkc/streamlat/internal/config"
	"github.com/shivanshkc/streamlat/pkg/bench"
	"github.com/shivanshkc/streamlat/pkg/clock"
	"github.com/shivanshkc/streamlat/pkg/samples"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

const (
	// credentialEnv carries the credential to reader processes, keeping it off their command line.
	credentialEnv = "STREAMLAT_TRANSPORT_CREDENTIAL"
	// readerGracePeriod is how long an interrupted reader process may take to write its snapshot.
	readerGracePeriod = 5 * time.Second
)

// benchCmd runs one experiment and prints the merged latency table to stdout.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run one end-to-end latency experiment.",
	Long: `Run one end-to-end latency experiment.
The writer primes the stream with up to 100 batches, settles, then writes the
timed batches. Readers either run alongside the writer or start after it stops.
The merged table has one row per timed batch seen by every reader.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if message := validateBenchFlags(); message != "" {
			fmt.Println(message)
			os.Exit(1)
		}

		nBatches := samples.Count(cfg.Run.NSamples, cfg.Run.BatchSize)
		if nBatches <= bench.MaxPrimingBatches && !cfg.Run.ReplayPayload {
			logger.Warn().Int("batches", nBatches).Msg("every batch is used for priming, no rows will be measured")
		}

		dial, err := dialer(cfg.Transport)
		if err != nil {
			return err
		}

		result, err := bench.Run(cmd.Context(), benchConfig(cfg.Run), dial, newLauncher(dial), logger)
		if err != nil {
			return err
		}
		return renderResult(os.Stdout, result, cfg.Output.Format)
	},
}

// benchConfig converts the run settings into an experiment configuration.
func benchConfig(run config.RunConfig) bench.Config {
	return bench.Config{
		DT:                 clock.Duration(run.DT),
		BatchSize:          run.BatchSize,
		NSamples:           run.NSamples,
		SampleSizeBytes:    run.SampleSize,
		NumReaders:         run.NumReaders,
		ReadSimultaneously: run.ReadSimultaneously,
		Settle:             run.Settle,
		ReplayPayload:      run.ReplayPayload,
		SnapshotDir:        run.SnapshotDir,
	}
}

// newLauncher returns the reader launcher for the configured reader mode.
func newLauncher(dial transport.DialFunc) bench.Launcher {
	if cfg.Run.ReaderMode == config.ReaderModeThread {
		return bench.ThreadLauncher{Dial: dial, Logger: logger}
	}
	return bench.ProcessLauncher{Command: recordCommand, GracePeriod: readerGracePeriod}
}

// recordCommand re-executes this binary as a reader process.
func recordCommand(ctx context.Context, job bench.ReaderJob) *exec.Cmd {
	executable, err := os.Executable()
	if err != nil {
		executable = os.Args[0]
	}

	cmd := exec.CommandContext(ctx, executable, recordArgs(cfg, job)...)
	cmd.Env = append(os.Environ(), credentialEnv+"="+cfg.Transport.Credential)
	// Stdout is reserved for the result table.
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd
}

// recordArgs returns the arguments of the hidden record command for one reader.
func recordArgs(c config.Config, job bench.ReaderJob) []string {
	return []string{
		"record",
		"--stream", job.StreamName,
		"--reader-id", strconv.Itoa(job.ReaderID),
		"--batch-size", strconv.Itoa(job.BatchSize),
		"--snapshot-dir", job.SnapshotDir,
		"--transport", c.Transport.Kind,
		"--host", c.Transport.Host,
		"--port", strconv.Itoa(c.Transport.Port),
		"--init-timeout", c.Transport.InitTimeout.String(),
		"--log-level", c.Log.Level,
	}
}

func init() {
	rootCmd.AddCommand(benchCmd)

	flags := benchCmd.Flags()
	flags.Float64("dt", 0.01, "Target interval between batches, in seconds.")
	flags.Int("batch-size", 1, "Samples per batch.")
	flags.Int("n-samples", 1000, "Total number of samples in the payload.")
	flags.Int("sample-size", 8, "Size of every sample in bytes.")
	flags.Int("num-readers", 1, "Number of readers.")
	flags.Bool("read-simultaneously", true, "Start readers before writing instead of after the writer stops.")
	flags.Duration("settle", bench.DefaultSettle, "Pause after priming, and before late readers start.")
	flags.Bool("replay-payload", false, "Rewrite every batch in the timed phase, priming batches included.")
	flags.String("reader-mode", config.ReaderModeProcess, "Run readers as separate processes or as threads: process or thread.")
	flags.String("snapshot-dir", "", "Directory for reader snapshots. Defaults to the OS temp directory.")
	flags.String("output", config.FormatTable, "Output format: table, csv or markdown.")

	bindFlags(flags, map[string]string{
		"run.dt":                  "dt",
		"run.batch_size":          "batch-size",
		"run.n_samples":           "n-samples",
		"run.sample_size":         "sample-size",
		"run.num_readers":         "num-readers",
		"run.read_simultaneously": "read-simultaneously",
		"run.settle":              "settle",
		"run.replay_payload":      "replay-payload",
		"run.reader_mode":         "reader-mode",
		"run.snapshot_dir":        "snapshot-dir",
		"output.format":           "output",
	})
}
