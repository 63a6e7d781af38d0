// Package bench runs end-to-end latency experiments against a stream transport.
//
// One writer emits a deterministic payload at a paced rate while a set of
// isolated readers timestamp every read. The writer's emission record and the
// readers' snapshots are then joined by sample index into one latency table.
package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shivanshkc/streamlat/pkg/clock"
	"github.com/shivanshkc/streamlat/pkg/samples"
	"github.com/shivanshkc/streamlat/pkg/snapshot"
	"github.com/shivanshkc/streamlat/pkg/transport"
	"github.com/shivanshkc/streamlat/pkg/utils/miscutils"
)

// DefaultSettle is the pause after priming, and before readers started late.
const DefaultSettle = time.Second

// cleanupTimeout bounds the best-effort teardown after a failed run.
const cleanupTimeout = 10 * time.Second

// Config describes one experiment.
type Config struct {
	// DT is the target interval between batches.
	DT              time.Duration
	BatchSize       int
	NSamples        int
	SampleSizeBytes int
	NumReaders      int
	// ReadSimultaneously starts readers before the first write. Otherwise they
	// start after the writer has stopped and the settle period has passed.
	ReadSimultaneously bool
	// Settle is the pause after priming. Zero means no pause.
	Settle time.Duration
	// ReplayPayload makes the timed phase rewrite every batch, priming batches
	// included, instead of only the batches left after priming.
	ReplayPayload bool
	// SnapshotDir holds reader snapshots. Empty means the OS temp directory.
	SnapshotDir string
	// StreamName defaults to a random UUID.
	StreamName string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.DT < 0:
		return fmt.Errorf("dt must not be negative, got %s", c.DT)
	case c.BatchSize < 1:
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	case c.NSamples < 1:
		return fmt.Errorf("sample count must be at least 1, got %d", c.NSamples)
	case c.SampleSizeBytes < 1:
		return fmt.Errorf("sample size must be at least 1 byte, got %d", c.SampleSizeBytes)
	case c.NumReaders < 1:
		return fmt.Errorf("reader count must be at least 1, got %d", c.NumReaders)
	case c.Settle < 0:
		return fmt.Errorf("settle must not be negative, got %s", c.Settle)
	}
	return nil
}

// Params returns the run parameters attached to result rows.
func (c Config) Params() RunParams {
	return RunParams{
		DT:              clock.Seconds(c.DT),
		BatchSize:       c.BatchSize,
		NSamples:        c.NSamples,
		SampleSizeBytes: c.SampleSizeBytes,
		NumReaders:      c.NumReaders,
	}
}

// Result is the outcome of one experiment.
type Result struct {
	StreamName string
	Params     RunParams
	// Primed and Timed are the batch counts of each writer phase.
	Primed, Timed int
	Rows          []Row
}

// Run executes one experiment: it creates the stream, primes it, runs the timed
// phase, joins every reader, deletes the stream and aggregates the snapshots.
//
// On failure the readers are canceled and awaited, and the stream and any
// snapshots are removed on a best-effort basis.
func Run(ctx context.Context, cfg Config, dial transport.DialFunc, launcher Launcher, logger zerolog.Logger) (result Result, err error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	set, err := samples.Build(cfg.NSamples, cfg.SampleSizeBytes)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build payload: %w", err)
	}
	batches := set.Batches(cfg.BatchSize)
	nPrimed := PrimingCount(len(batches))
	timed := batches[nPrimed:]
	if cfg.ReplayPayload {
		timed = batches
	}

	name := cfg.StreamName
	if name == "" {
		name = uuid.NewString()
	}
	logger = logger.With().Str("stream", name).Logger()

	session, err := dial(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to dial transport: %w", err)
	}
	defer func() { _ = session.Close() }()

	if err := session.Create(ctx, name, transport.FixedWidthSchema(cfg.SampleSizeBytes)); err != nil {
		return Result{}, fmt.Errorf("failed to create stream: %w", err)
	}
	logger.Info().Int("batches", len(batches)).Int("primed", nPrimed).Int("timed", len(timed)).
		Int("readers", cfg.NumReaders).Str("dt", miscutils.FormatDuration(cfg.DT)).Msg("stream created")

	// Context for managing readers. Canceling it stops all of them.
	localCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var handles []ReaderHandle
	defer func() {
		if err != nil {
			cancel()
			for _, h := range handles {
				_ = h.Wait()
			}
			teardown(ctx, session, cfg, name, logger)
		}
	}()

	writer, err := session.NewWriter(localCtx, name)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open writer: %w", err)
	}
	// Some transports serve readers from the writer, so it stays open until they are joined.
	defer func() { _ = writer.Close() }()

	launchAll := func() error {
		for id := range cfg.NumReaders {
			job := ReaderJob{StreamName: name, ReaderID: id, BatchSize: cfg.BatchSize, SnapshotDir: cfg.SnapshotDir}
			handle, err := launcher.Launch(localCtx, job)
			if err != nil {
				return err
			}
			handles = append(handles, handle)
		}
		logger.Debug().Int("readers", len(handles)).Msg("readers started")
		return nil
	}

	if cfg.ReadSimultaneously {
		if err := launchAll(); err != nil {
			return Result{}, err
		}
	}

	paced := &PacedWriter{Writer: writer, DT: cfg.DT, Logger: logger}
	writeStart := time.Now()

	if err := paced.Prime(localCtx, batches[:nPrimed]); err != nil {
		return Result{}, fmt.Errorf("priming failed: %w", err)
	}
	if err := clock.Sleep(localCtx, cfg.Settle); err != nil {
		return Result{}, err
	}

	emissions, err := paced.Timed(localCtx, timed, nPrimed)
	if err != nil {
		return Result{}, fmt.Errorf("timed phase failed: %w", err)
	}
	if err := writer.Stop(localCtx); err != nil {
		return Result{}, fmt.Errorf("failed to stop writer: %w", err)
	}
	logger.Info().Str("elapsed", miscutils.FormatDuration(time.Since(writeStart))).Msg("writer stopped")

	if !cfg.ReadSimultaneously {
		if err := clock.Sleep(localCtx, cfg.Settle); err != nil {
			return Result{}, err
		}
		if err := launchAll(); err != nil {
			return Result{}, err
		}
	}

	if err := join(cancel, handles); err != nil {
		return Result{}, err
	}
	logger.Info().Msg("all readers finished")

	if err := session.Delete(ctx, name); err != nil {
		return Result{}, fmt.Errorf("failed to delete stream: %w", err)
	}

	arrivals, err := Collect(cfg.SnapshotDir, name, cfg.NumReaders)
	if err != nil {
		return Result{}, err
	}

	params := cfg.Params()
	return Result{
		StreamName: name,
		Params:     params,
		Primed:     nPrimed,
		Timed:      len(timed),
		Rows:       Merge(emissions, arrivals, params),
	}, nil
}

// join waits for every reader. The first failure cancels the others.
func join(cancel context.CancelFunc, handles []ReaderHandle) error {
	var group errgroup.Group
	for _, h := range handles {
		group.Go(func() error {
			if err := h.Wait(); err != nil {
				cancel()
				return err
			}
			return nil
		})
	}
	return group.Wait()
}

// teardown deletes the stream and any snapshots left by a failed run.
func teardown(ctx context.Context, session transport.Session, cfg Config, name string, logger zerolog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := session.Delete(cleanupCtx, name); err != nil {
		logger.Warn().Err(err).Msg("failed to delete stream after failed run")
	}
	for id := range cfg.NumReaders {
		path := snapshot.Path(cfg.SnapshotDir, name, id)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", path).Msg("failed to remove snapshot")
		}
	}
}
