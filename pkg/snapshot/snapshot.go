// Package snapshot persists a reader's arrival record as a small columnar file.
//
// A snapshot has exactly two equal-length columns, sample_index and
// sample_received_at, encoded as a msgpack map of arrays and compressed with
// snappy. One file exists per (stream, reader) pair at a predictable path, so
// the aggregator can find it without any other coordination.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

//go:generate msgp -tests=false

// Column names, shared with downstream analysis tooling.
const (
	ColumnSampleIndex      = "sample_index"
	ColumnSampleReceivedAt = "sample_received_at"
)

// ErrCorrupt is returned when a snapshot file cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

// Snapshot is the arrival record of a single reader.
type Snapshot struct {
	SampleIndex      []int64   `msg:"sample_index"`
	SampleReceivedAt []float64 `msg:"sample_received_at"`
}

// FromArrivals builds a snapshot whose sample_index column is the local read
// order 0..len(receivedAt)-1.
func FromArrivals(receivedAt []float64) Snapshot {
	indices := make([]int64, len(receivedAt))
	for i := range indices {
		indices[i] = int64(i)
	}
	return Snapshot{SampleIndex: indices, SampleReceivedAt: receivedAt}
}

// Len returns the number of rows.
func (s Snapshot) Len() int { return len(s.SampleIndex) }

// Path returns the snapshot location for the given stream and reader.
func Path(dir, streamName string, readerID int) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("%s_reader_%d.snap", streamName, readerID))
}

// Write encodes the snapshot to path, replacing any existing file.
func Write(path string, s Snapshot) error {
	if len(s.SampleIndex) != len(s.SampleReceivedAt) {
		return fmt.Errorf("column length mismatch: %d indices, %d timestamps",
			len(s.SampleIndex), len(s.SampleReceivedAt))
	}

	encoded, err := s.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Write to a sibling file first so a crash never leaves a truncated snapshot behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, snappy.Encode(nil, encoded), 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// Read decodes the snapshot at path.
func Read(path string) (Snapshot, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	encoded, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	var s Snapshot
	if _, err := s.UnmarshalMsg(encoded); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if len(s.SampleIndex) != len(s.SampleReceivedAt) {
		return Snapshot{}, fmt.Errorf("%w: %s: column length mismatch", ErrCorrupt, path)
	}
	return s, nil
}
