package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shivanshkc/streamlat/pkg/clock"
	"github.com/shivanshkc/streamlat/pkg/gcpause"
	"github.com/shivanshkc/streamlat/pkg/samples"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

// MaxPrimingBatches caps the number of batches written before measurement starts.
const MaxPrimingBatches = 100

// PrimingCount returns the number of priming batches for a run of nBatches.
func PrimingCount(nBatches int) int {
	return min(nBatches, MaxPrimingBatches)
}

// Emission is the writer-side record of one timed batch.
type Emission struct {
	// SampleIndex is the batch's position in the stream, counting priming batches.
	SampleIndex int64
	// WrittenAt is the monotonic time taken immediately before the write call.
	WrittenAt float64
}

// PacedWriter writes batches at a fixed target interval.
//
// Each phase captures its start time once. Batch i has the absolute deadline
// start + (i+1)*DT; after its write returns the writer sleeps until that
// deadline, or continues at once if the deadline has already passed. A slow
// write therefore shortens the following gaps instead of shifting every later
// batch.
type PacedWriter struct {
	Writer transport.Writer
	// DT is the target interval between batches. Zero writes back to back.
	DT     time.Duration
	Logger zerolog.Logger

	// Now and Sleep default to the monotonic clock and clock.Sleep.
	Now   func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// Prime writes the priming batches. No timestamps are kept.
func (p *PacedWriter) Prime(ctx context.Context, batches []samples.Batch) error {
	p.Logger.Debug().Int("batches", len(batches)).Msg("priming")
	return p.pace(ctx, batches, nil)
}

// Timed writes the measured batches and returns one emission per batch.
// Batch i is recorded as sample index firstIndex + i.
//
// Automatic garbage collection is paused for the duration of the phase.
func (p *PacedWriter) Timed(ctx context.Context, batches []samples.Batch, firstIndex int) ([]Emission, error) {
	p.Logger.Debug().Int("batches", len(batches)).Int("first_index", firstIndex).Msg("timed phase")

	emissions := make([]Emission, len(batches))

	guard := gcpause.Acquire()
	defer guard.Release()

	err := p.pace(ctx, batches, func(i int, writtenAt float64) {
		emissions[i] = Emission{SampleIndex: int64(firstIndex + i), WrittenAt: writtenAt}
	})
	if err != nil {
		return nil, err
	}
	return emissions, nil
}

// pace runs one phase. record, if non-nil, receives each batch's write time.
func (p *PacedWriter) pace(ctx context.Context, batches []samples.Batch, record func(i int, writtenAt float64)) error {
	now, sleep := p.Now, p.Sleep
	if now == nil {
		now = clock.Now
	}
	if sleep == nil {
		sleep = clock.Sleep
	}
	dt := clock.Seconds(p.DT)

	start := now()
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		writtenAt := now()
		if err := p.Writer.Write(ctx, batch.Samples); err != nil {
			return fmt.Errorf("failed to write batch %d: %w", batch.Index, err)
		}
		if record != nil {
			record(i, writtenAt)
		}

		deadline := start + float64(i+1)*dt
		if current := now(); current < deadline {
			if err := sleep(ctx, clock.Duration(deadline-current)); err != nil {
				return err
			}
		}
	}
	return nil
}
