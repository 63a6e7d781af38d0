package redisstream_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivanshkc/streamlat/pkg/transport"
	"github.com/shivanshkc/streamlat/pkg/transport/redisstream"
)

// newSession starts an in-memory Redis server and dials it.
func newSession(t *testing.T, initTimeout time.Duration) (*miniredis.Miniredis, transport.DialFunc, transport.Session) {
	t.Helper()

	server := miniredis.RunT(t)
	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)

	dial := redisstream.Dial(transport.Connection{Host: server.Host(), Port: port, InitTimeout: initTimeout})
	session, err := dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return server, dial, session
}

// drain reads until end of stream and returns the size of every non-empty read.
func drain(t *testing.T, r transport.Reader, buf *transport.Buffer) ([]int, [][]byte) {
	t.Helper()

	var sizes []int
	var samples [][]byte
	for i := 0; i < 10_000; i++ {
		n, err := r.Read(context.Background(), buf)
		if err == transport.ErrEndOfStream {
			return sizes, samples
		}
		require.NoError(t, err)
		if n > 0 {
			sizes = append(sizes, n)
			for _, s := range buf.Samples() {
				samples = append(samples, append([]byte(nil), s...))
			}
		}
	}
	t.Fatal("Reader never reached end of stream.")
	return nil, nil
}

func TestSession_CreateWritesRiverMetadata(t *testing.T) {
	ctx := context.Background()
	server, _, session := newSession(t, 0)

	require.NoError(t, session.Create(ctx, "run", transport.FixedWidthSchema(4)))
	assert.ErrorIs(t, session.Create(ctx, "run", transport.FixedWidthSchema(4)), transport.ErrStreamExists)

	assert.Equal(t, "run-0", server.HGet("run-metadata", "first_stream_key"))
	assert.Equal(t, "{}", server.HGet("run-metadata", "user_metadata"))
	assert.NotEmpty(t, server.HGet("run-metadata", "initialized_at_us"))

	schema, err := transport.ParseSchema(server.HGet("run-metadata", "schema"))
	require.NoError(t, err)
	assert.Equal(t, 4, schema.SampleSize())

	_, err = strconv.ParseInt(server.HGet("run-metadata", "local_minus_server_clock_us"), 10, 64)
	assert.NoError(t, err, "Clock offset should be recorded in microseconds.")
}

func TestReader_ClockOffset(t *testing.T) {
	// --- Test Cases ---
	testCases := []struct {
		name     string
		recorded string
		expected time.Duration
		wantErr  bool
	}{
		{name: "Recorded Offset", recorded: "1500", expected: 1500 * time.Microsecond},
		{name: "Negative Offset", recorded: "-250", expected: -250 * time.Microsecond},
		{name: "Missing Offset", recorded: "", expected: 0},
		{name: "Invalid Offset", recorded: "soon", wantErr: true},
	}

	// --- Test Runner ---
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			server, _, session := newSession(t, 0)
			require.NoError(t, session.Create(ctx, "run", transport.FixedWidthSchema(1)))

			if tc.recorded == "" {
				server.HDel("run-metadata", "local_minus_server_clock_us")
			} else {
				server.HSet("run-metadata", "local_minus_server_clock_us", tc.recorded)
			}

			reader, err := session.NewReader(ctx, "run")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = reader.Close() }()

			reporter, ok := reader.(transport.ClockOffsetReporter)
			require.True(t, ok, "Redis readers should report the recorded clock offset.")
			assert.Equal(t, tc.expected, reporter.ClockOffset())
		})
	}
}

func TestSession_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	server, dial, session := newSession(t, 0)
	require.NoError(t, session.Create(ctx, "run", transport.FixedWidthSchema(2)))

	writer, err := session.NewWriter(ctx, "run")
	require.NoError(t, err)
	require.NoError(t, writer.Write(ctx, [][]byte{{0, 0}, {0, 1}}))
	require.NoError(t, writer.Write(ctx, [][]byte{{0, 2}, {0, 3}}))
	require.NoError(t, writer.Write(ctx, [][]byte{{0, 4}}))
	require.NoError(t, writer.Stop(ctx))
	assert.ErrorIs(t, writer.Write(ctx, [][]byte{{0, 5}}), transport.ErrStopped)

	// One entry per sample plus the stop marker.
	entries, err := server.Stream("run-0")
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, []string{"i", "0", "val", "\x00\x00"}, entries[0].Values)
	assert.Equal(t, []string{"eof", "1", "sample_index", "5"}, entries[5].Values)

	// Each reader has its own session and starts at the head.
	for i := 0; i < 2; i++ {
		other, err := dial(ctx)
		require.NoError(t, err)
		reader, err := other.NewReader(ctx, "run")
		require.NoError(t, err)

		sizes, samples := drain(t, reader, transport.NewBuffer(2))
		assert.Equal(t, []int{2, 2, 1}, sizes)
		assert.Equal(t, [][]byte{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}, samples)
		require.NoError(t, other.Close())
	}

	require.NoError(t, session.Delete(ctx, "run"))
	assert.False(t, server.Exists("run-0"))
	assert.False(t, server.Exists("run-metadata"))
}

func TestReader_WaitsForFullBuffer(t *testing.T) {
	ctx := context.Background()
	_, _, session := newSession(t, 0)
	require.NoError(t, session.Create(ctx, "partial", transport.FixedWidthSchema(1)))

	writer, err := session.NewWriter(ctx, "partial")
	require.NoError(t, err)
	reader, err := session.NewReader(ctx, "partial")
	require.NoError(t, err)

	buf := transport.NewBuffer(3)
	n, err := reader.Read(ctx, buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, writer.Write(ctx, [][]byte{{1}, {2}}))
	n, err = reader.Read(ctx, buf)
	require.NoError(t, err)
	assert.Zero(t, n, "Partial buffers are held back until full.")

	require.NoError(t, writer.Write(ctx, [][]byte{{3}}))
	n, err = reader.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]byte{{1}, {2}, {3}}, buf.Samples())
}

func TestReader_StreamMissing(t *testing.T) {
	ctx := context.Background()
	_, _, session := newSession(t, 30*time.Millisecond)

	_, err := session.NewReader(ctx, "nope")
	assert.ErrorIs(t, err, transport.ErrStreamNotFound)

	_, err = session.NewWriter(ctx, "nope")
	assert.ErrorIs(t, err, transport.ErrStreamNotFound)
}

func TestReader_WaitsForLateStream(t *testing.T) {
	ctx := context.Background()
	_, _, session := newSession(t, 2*time.Second)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = session.Create(ctx, "late", transport.FixedWidthSchema(1))
	}()

	reader, err := session.NewReader(ctx, "late")
	require.NoError(t, err)
	assert.NoError(t, reader.Close())
}

func TestReader_RejectsWrongSampleSize(t *testing.T) {
	ctx := context.Background()
	server, _, session := newSession(t, 0)
	require.NoError(t, session.Create(ctx, "sized", transport.FixedWidthSchema(4)))

	_, err := server.XAdd("sized-0", "*", []string{"i", "0", "val", "ab"})
	require.NoError(t, err)

	reader, err := session.NewReader(ctx, "sized")
	require.NoError(t, err)
	_, err = reader.Read(ctx, transport.NewBuffer(1))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, transport.ErrEndOfStream)
}
