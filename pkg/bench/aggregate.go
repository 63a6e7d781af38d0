package bench

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/shivanshkc/streamlat/pkg/snapshot"
)

// RunParams are the run parameters attached to every result row.
type RunParams struct {
	// DT is the target inter-batch interval in seconds.
	DT              float64
	BatchSize       int
	NSamples        int
	SampleSizeBytes int
	NumReaders      int
}

// Row is one sample index present in both the writer and reader records.
type Row struct {
	SampleIndex int64
	// SampleWrittenAt is the monotonic time just before the batch was written.
	SampleWrittenAt float64
	// SampleReceivedAt is the latest arrival of the batch across all readers.
	SampleReceivedAt float64
	// Latency is SampleReceivedAt - SampleWrittenAt in seconds.
	Latency   float64
	LatencyMS float64

	RunParams
}

// Arrivals is one reader's arrival record, tagged with the reader that produced it.
type Arrivals struct {
	ReaderID int
	snapshot.Snapshot
}

// Merge joins the writer record with every reader's arrivals.
//
// For each sample index, the received time is the maximum across readers, so a
// row reflects the slowest reader. Only indices present on both sides produce a
// row; rows are ordered by sample index.
func Merge(emissions []Emission, arrivals []Arrivals, params RunParams) []Row {
	latest := make(map[int64]float64)
	for _, a := range arrivals {
		for i, index := range a.SampleIndex {
			receivedAt := a.SampleReceivedAt[i]
			if prev, ok := latest[index]; !ok || receivedAt > prev {
				latest[index] = receivedAt
			}
		}
	}

	rows := make([]Row, 0, min(len(emissions), len(latest)))
	for _, e := range emissions {
		receivedAt, ok := latest[e.SampleIndex]
		if !ok {
			continue
		}

		latency := receivedAt - e.WrittenAt
		rows = append(rows, Row{
			SampleIndex:      e.SampleIndex,
			SampleWrittenAt:  e.WrittenAt,
			SampleReceivedAt: receivedAt,
			Latency:          latency,
			LatencyMS:        latency * 1000,
			RunParams:        params,
		})
	}

	slices.SortFunc(rows, func(a, b Row) int {
		switch {
		case a.SampleIndex < b.SampleIndex:
			return -1
		case a.SampleIndex > b.SampleIndex:
			return 1
		default:
			return 0
		}
	})
	return rows
}

// Collect loads the snapshot of every reader of a stream and removes the files.
// Reader ids are 0..numReaders-1. A missing or corrupt snapshot fails the whole
// collection and leaves every file in place.
func Collect(dir, streamName string, numReaders int) ([]Arrivals, error) {
	arrivals := make([]Arrivals, 0, numReaders)
	paths := make([]string, 0, numReaders)

	for id := range numReaders {
		path := snapshot.Path(dir, streamName, id)
		snap, err := snapshot.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot of reader %d: %w", id, err)
		}
		arrivals = append(arrivals, Arrivals{ReaderID: id, Snapshot: snap})
		paths = append(paths, path)
	}

	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return arrivals, fmt.Errorf("failed to remove snapshots: %w", err)
	}
	return arrivals, nil
}
