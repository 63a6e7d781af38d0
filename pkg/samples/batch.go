package samples

// Span is the half-open sample index range [Start, End) covered by one batch.
type Span struct {
	Start, End int
}

// Len returns the number of samples in the span.
func (s Span) Len() int { return s.End - s.Start }

// Batch is a contiguous group of samples written in a single channel operation.
type Batch struct {
	// Index is the position of the batch in the run.
	Index int
	// Span is the range of sample indices the batch carries.
	Span Span
	// Samples alias the owning Set.
	Samples [][]byte
}

// Count returns the number of batches needed to carry n samples.
func Count(n, batchSize int) int {
	if n <= 0 || batchSize <= 0 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}

// Partition splits n samples into consecutive spans of batchSize. Only the last
// span may be shorter. A non-positive batchSize yields no spans.
func Partition(n, batchSize int) []Span {
	count := Count(n, batchSize)
	spans := make([]Span, 0, count)
	for start := 0; start < n && batchSize > 0; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}
