// Package samples builds the deterministic payload written during a latency
// run and partitions it into batches.
package samples

import (
	"errors"
	"fmt"
)

// ErrInvalidSize is returned when a sample set cannot be constructed.
var ErrInvalidSize = errors.New("invalid sample set size")

// Set is an ordered sequence of fixed-width samples stored contiguously.
type Set struct {
	size int
	data []byte
}

// Build returns n samples of size bytes each. Sample i holds Pattern(i, size).
func Build(n, size int) (*Set, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: sample size must be at least 1 byte, got %d", ErrInvalidSize, size)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: sample count must not be negative, got %d", ErrInvalidSize, n)
	}

	data := make([]byte, n*size)
	for i := 0; i < n; i++ {
		fillPattern(data[i*size:(i+1)*size], i)
	}

	return &Set{size: size, data: data}, nil
}

// Len returns the number of samples.
func (s *Set) Len() int { return len(s.data) / s.size }

// SampleSize returns the width of every sample in bytes.
func (s *Set) SampleSize() int { return s.size }

// At returns sample i. The returned slice aliases the set and must not be modified.
func (s *Set) At(i int) []byte {
	return s.data[i*s.size : (i+1)*s.size : (i+1)*s.size]
}

// Batches partitions the set into batches of at most batchSize samples.
func (s *Set) Batches(batchSize int) []Batch {
	spans := Partition(s.Len(), batchSize)
	batches := make([]Batch, len(spans))
	for i, span := range spans {
		list := make([][]byte, 0, span.Len())
		for j := span.Start; j < span.End; j++ {
			list = append(list, s.At(j))
		}
		batches[i] = Batch{Index: i, Span: span, Samples: list}
	}
	return batches
}

// Pattern returns the payload of sample i for the given width.
//
// The first min(size, 8) bytes hold the big-endian low-order bytes of i, so a
// sample can be traced back to its index; the remaining bytes repeat i % 64.
func Pattern(i, size int) []byte {
	if size < 1 {
		return nil
	}
	out := make([]byte, size)
	fillPattern(out, i)
	return out
}

func fillPattern(dst []byte, i int) {
	head := len(dst)
	if head > 8 {
		head = 8
	}

	// Big-endian index truncated to the available width.
	v := uint64(i)
	for j := head - 1; j >= 0; j-- {
		dst[j] = byte(v)
		v >>= 8
	}

	filler := byte(i % 64)
	for j := head; j < len(dst); j++ {
		dst[j] = filler
	}
}
