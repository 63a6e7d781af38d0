package bench_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivanshkc/streamlat/pkg/bench"
	"github.com/shivanshkc/streamlat/pkg/clock"
)

func TestPrimingCount(t *testing.T) {
	// --- Test Cases ---
	testCases := []struct {
		nBatches int
		expected int
	}{
		{nBatches: 0, expected: 0},
		{nBatches: 1, expected: 1},
		{nBatches: 99, expected: 99},
		{nBatches: 100, expected: 100},
		{nBatches: 101, expected: 100},
		{nBatches: 1000, expected: 100},
	}

	// --- Test Runner ---
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, bench.PrimingCount(tc.nBatches), "nBatches: %d", tc.nBatches)
	}
}

func TestPacedWriter_Timed(t *testing.T) {
	// --- Test Cases ---
	testCases := []struct {
		name string
		// writeCost is how long each write takes, per call.
		writeCost []float64
		expected  []float64
	}{
		{
			name:      "Instant Writes",
			writeCost: []float64{0, 0, 0, 0, 0},
			expected:  []float64{0, 0.01, 0.02, 0.03, 0.04},
		},
		{
			name:      "Slow Write Is Absorbed By Later Deadlines",
			writeCost: []float64{0, 0.025, 0, 0, 0},
			expected:  []float64{0, 0.01, 0.035, 0.035, 0.04},
		},
		{
			name:      "Every Write Slower Than DT",
			writeCost: []float64{0.02, 0.02, 0.02},
			expected:  []float64{0, 0.02, 0.04},
		},
	}

	// --- Test Runner ---
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClock{}
			writer := &mockWriter{onWrite: func(call int) error {
				fc.t += tc.writeCost[call]
				return nil
			}}

			paced := &bench.PacedWriter{Writer: writer, DT: 10 * time.Millisecond, Now: fc.Now, Sleep: fc.Sleep}
			emissions, err := paced.Timed(context.Background(), makeBatches(len(tc.writeCost)), 100)
			require.NoError(t, err)
			require.Len(t, emissions, len(tc.expected))

			for i, e := range emissions {
				assert.Equal(t, int64(100+i), e.SampleIndex)
				assert.InDelta(t, tc.expected[i], e.WrittenAt, 1e-9, "emission %d", i)
			}
		})
	}
}

func TestPacedWriter_Prime(t *testing.T) {
	fc := &fakeClock{}
	writer := &mockWriter{}
	paced := &bench.PacedWriter{Writer: writer, DT: 10 * time.Millisecond, Now: fc.Now, Sleep: fc.Sleep}

	require.NoError(t, paced.Prime(context.Background(), makeBatches(3)))
	assert.Len(t, writer.batches, 3)
	assert.InDelta(t, 0.03, fc.t, 1e-9, "Priming must be paced like the timed phase.")
}

func TestPacedWriter_WriteError(t *testing.T) {
	errMock := errors.New("mock error")
	writer := &mockWriter{onWrite: func(call int) error {
		if call == 2 {
			return errMock
		}
		return nil
	}}

	paced := &bench.PacedWriter{Writer: writer, DT: time.Millisecond}
	emissions, err := paced.Timed(context.Background(), makeBatches(5), 0)
	assert.ErrorIs(t, err, errMock)
	assert.Nil(t, emissions)
	assert.Len(t, writer.batches, 3, "No write may follow a failure.")
}

func TestPacedWriter_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := &mockWriter{}
	paced := &bench.PacedWriter{Writer: writer, DT: time.Hour}
	err := paced.Prime(ctx, makeBatches(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, writer.batches)
}

func TestPacedWriter_RealClock(t *testing.T) {
	dt := 5 * time.Millisecond
	n := 20
	paced := &bench.PacedWriter{Writer: &mockWriter{}, DT: dt}

	// The phase start is taken inside Timed, so this is a lower bound for it.
	start := clock.Now()
	emissions, err := paced.Timed(context.Background(), makeBatches(n), 0)
	require.NoError(t, err)
	require.Len(t, emissions, n)

	// Timer overruns are absorbed by the next deadline, so a gap may be shorter
	// than dt by exactly the previous emission's lateness.
	epsilon := 2e-3
	for i, e := range emissions {
		due := start + float64(i)*dt.Seconds()
		assert.GreaterOrEqual(t, e.WrittenAt, due-epsilon, "emission %d is early", i)
		if i > 0 {
			prevLateness := emissions[i-1].WrittenAt - (start + float64(i-1)*dt.Seconds())
			gap := e.WrittenAt - emissions[i-1].WrittenAt
			assert.GreaterOrEqual(t, gap, dt.Seconds()-prevLateness-epsilon, "gap before emission %d", i)
		}
	}

	// Deadlines are absolute, so lateness does not accumulate over the phase.
	last := emissions[n-1].WrittenAt
	assert.Less(t, last, start+float64(n)*dt.Seconds()+0.25, "pacing drifted")
}

func TestProperty_PacingNeverEarly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("emission i is never before start + i*dt", prop.ForAll(
		func(costsMicros []int, dtMicros int) bool {
			fc := &fakeClock{t: 42}
			writer := &mockWriter{onWrite: func(call int) error {
				fc.t += float64(costsMicros[call]) / 1e6
				return nil
			}}

			dt := time.Duration(dtMicros) * time.Microsecond
			paced := &bench.PacedWriter{Writer: writer, DT: dt, Now: fc.Now, Sleep: fc.Sleep}
			emissions, err := paced.Timed(context.Background(), makeBatches(len(costsMicros)), 0)
			if err != nil || len(emissions) != len(costsMicros) {
				return false
			}

			for i, e := range emissions {
				if e.WrittenAt < 42+float64(i)*dt.Seconds()-1e-9 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 30_000)),
		gen.IntRange(0, 20_000),
	))

	properties.TestingRun(t)
}
