package samples_test

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivanshkc/streamlat/pkg/samples"
)

func TestBuild(t *testing.T) {
	// testCase defines the structure for our table-driven tests.
	type testCase struct {
		name        string
		n, size     int
		expectedErr bool
	}

	// --- Test Cases ---
	testCases := []testCase{
		{name: "Typical Set", n: 1000, size: 16},
		{name: "Single Byte Samples", n: 300, size: 1},
		{name: "Empty Set", n: 0, size: 8},
		{name: "Zero Sample Size", n: 10, size: 0, expectedErr: true},
		{name: "Negative Sample Count", n: -1, size: 8, expectedErr: true},
	}

	// --- Test Runner ---
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := samples.Build(tc.n, tc.size)
			if tc.expectedErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, samples.ErrInvalidSize)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.n, set.Len())
			assert.Equal(t, tc.size, set.SampleSize())
			for i := 0; i < set.Len(); i++ {
				require.Len(t, set.At(i), tc.size)
				require.Equal(t, samples.Pattern(i, tc.size), set.At(i))
			}
		})
	}
}

func TestBuild_Idempotent(t *testing.T) {
	first, err := samples.Build(5000, 24)
	require.NoError(t, err)
	second, err := samples.Build(5000, 24)
	require.NoError(t, err)

	for i := 0; i < first.Len(); i++ {
		require.True(t, bytes.Equal(first.At(i), second.At(i)), "Sample %d differs between builds.", i)
	}
}

func TestPattern(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2, 2, 2}, samples.Pattern(258, 10))
	assert.Equal(t, []byte{0x02}, samples.Pattern(258, 1), "Narrow samples keep the low-order byte.")
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 65}, samples.Pattern(65, 8))
	assert.Nil(t, samples.Pattern(1, 0))
}

func TestPattern_DistinctIndices(t *testing.T) {
	seen := make(map[string]int)
	for i := 0; i < 10000; i++ {
		key := string(samples.Pattern(i, 8))
		if prev, ok := seen[key]; ok {
			t.Fatalf("Samples %d and %d share a payload.", prev, i)
		}
		seen[key] = i
	}
}

func TestPartition_Cases(t *testing.T) {
	assert.Equal(t, []samples.Span{{0, 10}, {10, 20}, {20, 25}}, samples.Partition(25, 10))
	assert.Equal(t, []samples.Span{{0, 5}}, samples.Partition(5, 10))
	assert.Empty(t, samples.Partition(0, 10))
	assert.Empty(t, samples.Partition(10, 0))
	assert.Equal(t, 100, samples.Count(1000, 10))
	assert.Equal(t, 1000, samples.Count(1000, 1))
}

// TestProperty_Partition validates the batch partition invariants: complete,
// ordered, non-overlapping, and only the last batch may be short.
func TestProperty_Partition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("spans cover [0, n) exactly once and in order", prop.ForAll(
		func(n, batchSize int) bool {
			spans := samples.Partition(n, batchSize)
			if len(spans) != samples.Count(n, batchSize) {
				return false
			}

			next, total := 0, 0
			for i, span := range spans {
				if span.Start != next || span.Len() <= 0 || span.Len() > batchSize {
					return false
				}
				if i < len(spans)-1 && span.Len() != batchSize {
					return false
				}
				next = span.End
				total += span.Len()
			}
			return total == n && next == n
		},
		gen.IntRange(0, 5000),
		gen.IntRange(1, 512),
	))

	properties.Property("batches carry the samples of their span", prop.ForAll(
		func(n, batchSize int) bool {
			set, err := samples.Build(n, 4)
			if err != nil {
				return false
			}

			expected := 0
			for i, batch := range set.Batches(batchSize) {
				if batch.Index != i || len(batch.Samples) != batch.Span.Len() {
					return false
				}
				for _, sample := range batch.Samples {
					if !bytes.Equal(sample, samples.Pattern(expected, 4)) {
						return false
					}
					expected++
				}
			}
			return expected == n
		},
		gen.IntRange(0, 600),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
