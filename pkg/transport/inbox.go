package transport

import (
	"context"
	"sync"
)

// Inbox adapts a push-style consumer (a broker callback or a blocking receive
// loop) to the non-blocking Reader.Read contract.
//
// A single producer goroutine calls Deliver, EndOfStream or Fail; the reader
// calls Read. Each delivered batch is handed out by as few reads as the buffer
// allows, and two batches are never merged into one read, which keeps read
// counts aligned with writer batches.
type Inbox struct {
	entries chan inboxEntry
	closed  chan struct{}
	once    sync.Once

	head *inboxEntry
	off  int
	done error
}

type inboxEntry struct {
	batch [][]byte
	err   error
}

// NewInbox returns an inbox that buffers up to depth undelivered batches.
func NewInbox(depth int) *Inbox {
	if depth < 1 {
		depth = 1
	}
	return &Inbox{entries: make(chan inboxEntry, depth), closed: make(chan struct{})}
}

// Deliver queues a batch. It blocks while the inbox is full and returns false
// if ctx is done or the inbox was closed first.
func (in *Inbox) Deliver(ctx context.Context, batch [][]byte) bool {
	return in.push(ctx, inboxEntry{batch: batch})
}

// EndOfStream queues the end-of-stream marker.
func (in *Inbox) EndOfStream(ctx context.Context) bool {
	return in.push(ctx, inboxEntry{err: ErrEndOfStream})
}

// Fail queues a terminal error.
func (in *Inbox) Fail(ctx context.Context, err error) bool {
	return in.push(ctx, inboxEntry{err: err})
}

func (in *Inbox) push(ctx context.Context, e inboxEntry) bool {
	select {
	case <-ctx.Done():
		return false
	case <-in.closed:
		return false
	case in.entries <- e:
		return true
	}
}

// Read implements the Reader.Read contract on top of the queued entries.
func (in *Inbox) Read(ctx context.Context, buf *Buffer) (int, error) {
	if in.done != nil {
		return 0, in.done
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if in.head == nil {
		select {
		case e := <-in.entries:
			if e.err != nil {
				in.done = e.err
				return 0, e.err
			}
			in.head, in.off = &e, 0
		default:
			buf.Reset()
			return 0, nil
		}
	}

	n := buf.Fill(in.head.batch[in.off:])
	in.off += n
	if in.off >= len(in.head.batch) {
		in.head, in.off = nil, 0
	}
	return n, nil
}

// Close unblocks any pending Deliver call.
func (in *Inbox) Close() {
	in.once.Do(func() { close(in.closed) })
}
