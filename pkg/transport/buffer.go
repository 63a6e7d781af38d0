package transport

// Buffer is a reusable destination for Reader.Read.
//
// Samples held by the buffer are only valid until the next Read into it.
type Buffer struct {
	slots [][]byte
	n     int
}

// NewBuffer returns a buffer able to hold capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{slots: make([][]byte, capacity)}
}

// Cap returns the maximum number of samples one read can deliver.
func (b *Buffer) Cap() int { return len(b.slots) }

// Len returns the number of samples delivered by the last read.
func (b *Buffer) Len() int { return b.n }

// Samples returns the samples delivered by the last read.
func (b *Buffer) Samples() [][]byte { return b.slots[:b.n] }

// Reset empties the buffer.
func (b *Buffer) Reset() {
	for i := 0; i < b.n; i++ {
		b.slots[i] = nil
	}
	b.n = 0
}

// Fill replaces the buffer contents with up to Cap() samples from src and
// returns how many were taken.
func (b *Buffer) Fill(src [][]byte) int {
	b.Reset()
	return b.Append(src)
}

// Append adds samples from src until the buffer is full and returns how many were taken.
func (b *Buffer) Append(src [][]byte) int {
	taken := copy(b.slots[b.n:], src)
	b.n += taken
	return taken
}

// Full reports whether no more samples fit.
func (b *Buffer) Full() bool { return b.n == len(b.slots) }
