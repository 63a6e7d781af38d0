package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivanshkc/streamlat/pkg/transport"
)

func TestConnection(t *testing.T) {
	conn := transport.Connection{Host: "localhost", Port: 6379, Credential: "admin:s3cret"}
	assert.Equal(t, "localhost:6379", conn.Address())

	user, password := conn.UserPassword()
	assert.Equal(t, "admin", user)
	assert.Equal(t, "s3cret", password)

	user, password = transport.Connection{Credential: "token-only"}.UserPassword()
	assert.Empty(t, user)
	assert.Equal(t, "token-only", password)
}

func TestSchema(t *testing.T) {
	schema := transport.FixedWidthSchema(16)
	require.NoError(t, schema.Validate())
	assert.Equal(t, 16, schema.SampleSize())

	raw, err := schema.MarshalJSONString()
	require.NoError(t, err)
	assert.Contains(t, raw, `"field_definitions"`)
	assert.Contains(t, raw, `"FIXED_WIDTH_BYTES"`)

	parsed, err := transport.ParseSchema(raw)
	require.NoError(t, err)
	assert.Equal(t, schema, parsed)

	_, err = transport.ParseSchema(`{"field_definitions":[]}`)
	assert.Error(t, err, "A schema without fields is invalid.")

	_, err = transport.ParseSchema(`{"field_definitions":[{"name":"x","size":4,"type":"DOUBLE"}]}`)
	assert.Error(t, err, "Only fixed-width byte fields are supported.")
}

func TestBuffer(t *testing.T) {
	buf := transport.NewBuffer(3)
	assert.Equal(t, 3, buf.Cap())
	assert.Equal(t, 0, buf.Len())

	n := buf.Fill([][]byte{{1}, {2}, {3}, {4}})
	assert.Equal(t, 3, n, "Fill takes at most Cap() samples.")
	assert.True(t, buf.Full())
	assert.Equal(t, [][]byte{{1}, {2}, {3}}, buf.Samples())

	buf.Reset()
	assert.Equal(t, 0, buf.Len())

	assert.Equal(t, 1, buf.Append([][]byte{{9}}))
	assert.Equal(t, 2, buf.Append([][]byte{{8}, {7}, {6}}))
	assert.Equal(t, [][]byte{{9}, {8}, {7}}, buf.Samples())

	assert.Equal(t, 1, transport.NewBuffer(0).Cap(), "Capacity is clamped to one.")
}

func TestFrames(t *testing.T) {
	t.Run("Batch Frame", func(t *testing.T) {
		batch := [][]byte{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9, 10, 11}}
		frame := transport.EncodeBatch(nil, batch)

		decoded, eof, err := transport.DecodeFrame(frame)
		require.NoError(t, err)
		assert.False(t, eof)
		assert.Equal(t, batch, decoded)
	})

	t.Run("End of Stream Frame", func(t *testing.T) {
		decoded, eof, err := transport.DecodeFrame(transport.EncodeEndOfStream(nil))
		require.NoError(t, err)
		assert.True(t, eof)
		assert.Nil(t, decoded)
	})

	t.Run("Malformed Frame", func(t *testing.T) {
		_, _, err := transport.DecodeFrame([]byte{0xc1})
		assert.Error(t, err)

		frame := transport.EncodeBatch(nil, [][]byte{{1, 2, 3, 4}})
		_, _, err = transport.DecodeFrame(frame[:len(frame)-2])
		assert.Error(t, err, "A truncated sample must be rejected.")
	})
}

func TestInbox(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty Inbox Reads Zero Without Blocking", func(t *testing.T) {
		inbox := transport.NewInbox(4)
		buf := transport.NewBuffer(2)

		start := time.Now()
		n, err := inbox.Read(ctx, buf)
		assert.NoError(t, err)
		assert.Zero(t, n)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("Batches Are Never Merged", func(t *testing.T) {
		inbox := transport.NewInbox(4)
		require.True(t, inbox.Deliver(ctx, [][]byte{{1}, {2}}))
		require.True(t, inbox.Deliver(ctx, [][]byte{{3}, {4}, {5}}))
		require.True(t, inbox.EndOfStream(ctx))

		buf := transport.NewBuffer(10)
		n, err := inbox.Read(ctx, buf)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, [][]byte{{1}, {2}}, buf.Samples())

		n, err = inbox.Read(ctx, buf)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		_, err = inbox.Read(ctx, buf)
		assert.ErrorIs(t, err, transport.ErrEndOfStream)
		_, err = inbox.Read(ctx, buf)
		assert.ErrorIs(t, err, transport.ErrEndOfStream, "End of stream is sticky.")
	})

	t.Run("Large Batch Is Split Across Reads", func(t *testing.T) {
		inbox := transport.NewInbox(1)
		require.True(t, inbox.Deliver(ctx, [][]byte{{1}, {2}, {3}, {4}, {5}}))

		buf := transport.NewBuffer(2)
		var counts []int
		for i := 0; i < 3; i++ {
			n, err := inbox.Read(ctx, buf)
			require.NoError(t, err)
			counts = append(counts, n)
		}
		assert.Equal(t, []int{2, 2, 1}, counts)
	})

	t.Run("Failure Is Distinct From End of Stream", func(t *testing.T) {
		inbox := transport.NewInbox(1)
		failure := errors.New("broker went away")
		require.True(t, inbox.Fail(ctx, failure))

		_, err := inbox.Read(ctx, transport.NewBuffer(1))
		assert.ErrorIs(t, err, failure)
		assert.NotErrorIs(t, err, transport.ErrEndOfStream)
	})

	t.Run("Close Unblocks a Full Inbox", func(t *testing.T) {
		inbox := transport.NewInbox(1)
		require.True(t, inbox.Deliver(ctx, [][]byte{{1}}))

		result := make(chan bool, 1)
		go func() { result <- inbox.Deliver(ctx, [][]byte{{2}}) }()

		inbox.Close()
		select {
		case ok := <-result:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("Deliver should unblock after Close.")
		}
	})

	t.Run("Canceled Context", func(t *testing.T) {
		inbox := transport.NewInbox(1)
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := inbox.Read(canceled, transport.NewBuffer(1))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
