package bench

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/shivanshkc/streamlat/pkg/clock"
	"github.com/shivanshkc/streamlat/pkg/gcpause"
	"github.com/shivanshkc/streamlat/pkg/snapshot"
	"github.com/shivanshkc/streamlat/pkg/transport"
	"github.com/shivanshkc/streamlat/pkg/utils/miscutils"
)

// Outcome summarizes one reader's run.
type Outcome struct {
	// Reads is the number of read calls that returned data.
	Reads int
	// Samples is the total number of samples those reads carried.
	Samples int
	// EndOfStream is true when the loop ended on the writer's stop marker.
	EndOfStream bool
	// ReadErr is the failure that ended the loop early, if any.
	ReadErr error
	// SnapshotPath is where the arrival record was written.
	SnapshotPath string
}

// Recorder consumes a stream and timestamps every read that returns data.
//
// The arrival record is always written to the snapshot path when the loop ends,
// whether it ended on end of stream, a read error or cancellation.
type Recorder struct {
	Dial       transport.DialFunc
	StreamName string
	ReaderID   int
	// BatchSize is the capacity of the read buffer.
	BatchSize   int
	SnapshotDir string
	Logger      zerolog.Logger

	// Now defaults to the monotonic clock.
	Now func() float64
}

// Run opens a dedicated session and reader, polls until the loop ends and
// persists the snapshot. Errors are returned only when the recorder could not
// start or the snapshot could not be written; read failures end up in Outcome.
func (r *Recorder) Run(ctx context.Context) (Outcome, error) {
	now := r.Now
	if now == nil {
		now = clock.Now
	}
	logger := r.Logger.With().Int("reader_id", r.ReaderID).Logger()

	session, err := r.Dial(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("reader %d failed to dial: %w", r.ReaderID, err)
	}
	defer func() { _ = session.Close() }()

	reader, err := session.NewReader(ctx, r.StreamName)
	if err != nil {
		return Outcome{}, fmt.Errorf("reader %d failed to open stream: %w", r.ReaderID, err)
	}
	defer func() { _ = reader.Close() }()

	if reporter, ok := reader.(transport.ClockOffsetReporter); ok {
		logger.Debug().Dur("clock_offset", reporter.ClockOffset()).Msg("writer clock offset against broker")
	}

	outcome, arrivals := r.poll(ctx, reader, now)
	if outcome.ReadErr != nil {
		logger.Error().Err(outcome.ReadErr).Int("reads", outcome.Reads).Msg("read loop ended early")
	}

	outcome.SnapshotPath = snapshot.Path(r.SnapshotDir, r.StreamName, r.ReaderID)
	if err := snapshot.Write(outcome.SnapshotPath, snapshot.FromArrivals(arrivals)); err != nil {
		return outcome, fmt.Errorf("reader %d failed to persist snapshot: %w", r.ReaderID, err)
	}

	var span float64
	if len(arrivals) > 0 {
		span = arrivals[len(arrivals)-1] - arrivals[0]
	}
	logger.Debug().Int("reads", outcome.Reads).Int("samples", outcome.Samples).Str("span", miscutils.FormatSeconds(span)).
		Bool("end_of_stream", outcome.EndOfStream).Str("snapshot", outcome.SnapshotPath).Msg("reader done")
	return outcome, nil
}

// poll busy-polls the reader. Empty reads yield the processor and are not timestamped.
// A panicking reader ends the loop like a read error, keeping the arrivals so far.
func (r *Recorder) poll(ctx context.Context, reader transport.Reader, now func() float64) (outcome Outcome, arrivals []float64) {
	buf := transport.NewBuffer(r.BatchSize)

	guard := gcpause.Acquire()
	defer guard.Release()

	defer func() {
		if p := recover(); p != nil {
			outcome.ReadErr = fmt.Errorf("reader panicked: %v", p)
		}
	}()

	for {
		n, err := reader.Read(ctx, buf)
		if err != nil {
			if errors.Is(err, transport.ErrEndOfStream) {
				outcome.EndOfStream = true
			} else {
				outcome.ReadErr = err
			}
			break
		}
		if n == 0 {
			runtime.Gosched()
			continue
		}

		arrivals = append(arrivals, now())
		outcome.Reads++
		outcome.Samples += n
	}

	return outcome, arrivals
}
