// Package memory is an in-process loopback transport.
//
// Every session dialed from the same Broker shares its streams. Each written
// batch becomes visible to readers a fixed delay after the write, which lets
// tests inject a known delivery latency. Readers only observe a broker in their
// own process, so this transport is limited to thread-mode readers.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shivanshkc/streamlat/pkg/clock"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

// Broker owns the streams of one process.
type Broker struct {
	delay float64

	mu      sync.Mutex
	streams map[string]*stream
}

// stream is an append-only log of batches. Entries are retained until the
// stream is deleted, so late readers still start from the head.
type stream struct {
	schema transport.Schema

	mu      sync.RWMutex
	entries []entry
	stopped bool
}

type entry struct {
	batch     [][]byte
	visibleAt float64
	eof       bool
}

// NewBroker returns a broker delivering every batch after delay.
func NewBroker(delay time.Duration) *Broker {
	return &Broker{delay: clock.Seconds(delay), streams: make(map[string]*stream)}
}

// Dial returns a DialFunc whose sessions all share this broker.
func (b *Broker) Dial() transport.DialFunc {
	return func(context.Context) (transport.Session, error) {
		return &session{broker: b}, nil
	}
}

func (b *Broker) lookup(name string) (*stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrStreamNotFound, name)
	}
	return s, nil
}

// session is a view of the broker. Closing it does not affect other sessions.
type session struct {
	broker *Broker
}

func (s *session) Create(_ context.Context, name string, schema transport.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if _, exists := s.broker.streams[name]; exists {
		return fmt.Errorf("%w: %s", transport.ErrStreamExists, name)
	}
	s.broker.streams[name] = &stream{schema: schema}
	return nil
}

func (s *session) Delete(_ context.Context, name string) error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	delete(s.broker.streams, name)
	return nil
}

func (s *session) NewWriter(_ context.Context, name string) (transport.Writer, error) {
	st, err := s.broker.lookup(name)
	if err != nil {
		return nil, err
	}
	return &writer{stream: st, delay: s.broker.delay}, nil
}

func (s *session) NewReader(_ context.Context, name string) (transport.Reader, error) {
	st, err := s.broker.lookup(name)
	if err != nil {
		return nil, err
	}
	return &reader{stream: st}, nil
}

func (s *session) Close() error { return nil }

type writer struct {
	stream *stream
	delay  float64
}

func (w *writer) Write(_ context.Context, batch [][]byte) error {
	// Copy, since the caller may reuse its sample slices.
	owned := make([][]byte, len(batch))
	for i, sample := range batch {
		owned[i] = append([]byte(nil), sample...)
	}
	return w.append(entry{batch: owned})
}

func (w *writer) Stop(context.Context) error {
	return w.append(entry{eof: true})
}

func (w *writer) append(e entry) error {
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()

	if w.stream.stopped {
		return transport.ErrStopped
	}
	e.visibleAt = clock.Now() + w.delay
	w.stream.entries = append(w.stream.entries, e)
	w.stream.stopped = e.eof
	return nil
}

func (w *writer) Close() error { return nil }

// reader keeps a private cursor into the shared log.
type reader struct {
	stream *stream
	cursor int
	off    int
	eof    bool
}

func (r *reader) Read(ctx context.Context, buf *transport.Buffer) (int, error) {
	if r.eof {
		return 0, transport.ErrEndOfStream
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.stream.mu.RLock()
	if r.cursor >= len(r.stream.entries) {
		r.stream.mu.RUnlock()
		buf.Reset()
		return 0, nil
	}
	e := r.stream.entries[r.cursor]
	r.stream.mu.RUnlock()

	if clock.Now() < e.visibleAt {
		buf.Reset()
		return 0, nil
	}
	if e.eof {
		r.eof = true
		return 0, transport.ErrEndOfStream
	}

	n := buf.Fill(e.batch[r.off:])
	r.off += n
	if r.off >= len(e.batch) {
		r.cursor, r.off = r.cursor+1, 0
	}
	return n, nil
}

func (r *reader) Close() error { return nil }
