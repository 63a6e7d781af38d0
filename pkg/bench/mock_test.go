package bench_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shivanshkc/streamlat/pkg/bench"
	"github.com/shivanshkc/streamlat/pkg/samples"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

// fakeClock is a virtual monotonic clock. Sleeping advances it instantly.
type fakeClock struct {
	t      float64
	sleeps []float64
}

func (f *fakeClock) Now() float64 { return f.t }

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d.Seconds())
	f.t += d.Seconds()
	return nil
}

// mockWriter implements transport.Writer for testing.
type mockWriter struct {
	mu      sync.Mutex
	batches [][][]byte
	stopped bool

	// onWrite, if set, runs for every write with the 0-based call number.
	onWrite func(call int) error
}

func (m *mockWriter) Write(_ context.Context, batch [][]byte) error {
	m.mu.Lock()
	call := len(m.batches)
	m.batches = append(m.batches, batch)
	m.mu.Unlock()

	if m.onWrite != nil {
		return m.onWrite(call)
	}
	return nil
}

func (m *mockWriter) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockWriter) Close() error { return nil }

// failingReader implements transport.Reader, returning data a few times before failing.
type failingReader struct {
	dataReads int
	err       error
}

func (f *failingReader) Read(_ context.Context, buf *transport.Buffer) (int, error) {
	if f.dataReads == 0 {
		return 0, f.err
	}
	f.dataReads--
	return buf.Fill([][]byte{{1}}), nil
}

func (f *failingReader) Close() error { return nil }

// panickingReader implements transport.Reader, returning data a few times before panicking.
type panickingReader struct {
	dataReads int
}

func (p *panickingReader) Read(_ context.Context, buf *transport.Buffer) (int, error) {
	if p.dataReads == 0 {
		panic("connection state corrupted")
	}
	p.dataReads--
	return buf.Fill([][]byte{{1}}), nil
}

func (p *panickingReader) Close() error { return nil }

// offsetReader is a failingReader that also reports a writer clock offset.
type offsetReader struct {
	failingReader
	offset time.Duration
}

func (o *offsetReader) ClockOffset() time.Duration { return o.offset }

// readerSession implements transport.Session, handing out a fixed reader.
type readerSession struct {
	reader transport.Reader
}

func (s *readerSession) Create(context.Context, string, transport.Schema) error { return nil }
func (s *readerSession) Delete(context.Context, string) error                   { return nil }
func (s *readerSession) NewWriter(context.Context, string) (transport.Writer, error) {
	return nil, errors.New("not supported")
}
func (s *readerSession) NewReader(context.Context, string) (transport.Reader, error) {
	return s.reader, nil
}
func (s *readerSession) Close() error { return nil }

// failedHandle implements bench.ReaderHandle for a reader that fails immediately.
type failedHandle struct{ err error }

func (f failedHandle) Wait() error { return f.err }

// failingLauncher implements bench.Launcher, failing every reader.
type failingLauncher struct{ err error }

func (f failingLauncher) Launch(context.Context, bench.ReaderJob) (bench.ReaderHandle, error) {
	return failedHandle{err: f.err}, nil
}

// failingDial is a transport.DialFunc that always fails.
func failingDial(context.Context) (transport.Session, error) {
	return nil, errors.New("dial refused")
}

// makeBatches returns n single-sample batches.
func makeBatches(n int) []samples.Batch {
	set, err := samples.Build(n, 1)
	if err != nil {
		panic(err)
	}
	return set.Batches(1)
}
