// Package redisstream carries streams over Redis streams.
//
// The key layout follows the river format: samples live in the stream key
// "<name>-0" as one entry per sample with fields "i" (sample index) and "val"
// (raw bytes), and the hash "<name>-metadata" holds the schema and bookkeeping.
// The writer's stop marker is an entry with "eof" set.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shivanshkc/streamlat/pkg/retry"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

const (
	fieldIndex       = "i"
	fieldValue       = "val"
	fieldEOF         = "eof"
	fieldSampleIndex = "sample_index"

	metaFirstStreamKey = "first_stream_key"
	metaSchema         = "schema"
	metaClockOffset    = "local_minus_server_clock_us"
	metaInitializedAt  = "initialized_at_us"
	metaUserMetadata   = "user_metadata"
)

// pollDelay is the wait between metadata lookups while a reader waits for its stream.
const pollDelay = 10 * time.Millisecond

// StreamKey returns the key holding the samples of a stream.
func StreamKey(name string) string { return name + "-0" }

// MetadataKey returns the key holding the metadata of a stream.
func MetadataKey(name string) string { return name + "-metadata" }

// Dial returns a DialFunc connecting to the Redis server described by conn.
func Dial(conn transport.Connection) transport.DialFunc {
	return func(ctx context.Context) (transport.Session, error) {
		user, password := conn.UserPassword()
		client := redis.NewClient(&redis.Options{
			Addr:     conn.Address(),
			Username: user,
			Password: password,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis at %s: %w", conn.Address(), err)
		}
		return &session{client: client, initTimeout: conn.InitTimeout}, nil
	}
}

type session struct {
	client      *redis.Client
	initTimeout time.Duration
}

func (s *session) Create(ctx context.Context, name string, schema transport.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	encodedSchema, err := schema.MarshalJSONString()
	if err != nil {
		return err
	}

	serverTime, err := s.client.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to read server time: %w", err)
	}
	now := time.Now()

	// first_stream_key doubles as the existence marker.
	claimed, err := s.client.HSetNX(ctx, MetadataKey(name), metaFirstStreamKey, StreamKey(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to claim stream metadata: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: %s", transport.ErrStreamExists, name)
	}

	err = s.client.HSet(ctx, MetadataKey(name),
		metaSchema, encodedSchema,
		metaClockOffset, now.Sub(serverTime).Microseconds(),
		metaInitializedAt, now.UnixMicro(),
		metaUserMetadata, "{}",
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write stream metadata: %w", err)
	}
	return nil
}

func (s *session) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, StreamKey(name), MetadataKey(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete stream keys: %w", err)
	}
	return nil
}

func (s *session) NewWriter(ctx context.Context, name string) (transport.Writer, error) {
	exists, err := s.client.Exists(ctx, MetadataKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check stream metadata: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", transport.ErrStreamNotFound, name)
	}
	return &writer{client: s.client, key: StreamKey(name)}, nil
}

func (s *session) NewReader(ctx context.Context, name string) (transport.Reader, error) {
	var meta map[string]string

	attempts := retry.Attempts(s.initTimeout, pollDelay)
	err := retry.Do(ctx, attempts, pollDelay, func(ctx context.Context) error {
		fields, err := s.client.HGetAll(ctx, MetadataKey(name)).Result()
		if err != nil {
			return retry.Stop(fmt.Errorf("failed to read stream metadata: %w", err))
		}
		// The schema is written right after first_stream_key, so wait for both.
		if fields[metaFirstStreamKey] == "" || fields[metaSchema] == "" {
			return fmt.Errorf("%w: %s", transport.ErrStreamNotFound, name)
		}
		meta = fields
		return nil
	})
	if err != nil {
		return nil, err
	}

	schema, err := transport.ParseSchema(meta[metaSchema])
	if err != nil {
		return nil, fmt.Errorf("invalid schema in stream metadata: %w", err)
	}
	offset, err := parseClockOffset(meta[metaClockOffset])
	if err != nil {
		return nil, err
	}

	return &reader{
		client:     s.client,
		key:        meta[metaFirstStreamKey],
		lastID:     "0",
		sampleSize: schema.SampleSize(),
		offset:     offset,
	}, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

type writer struct {
	client  *redis.Client
	key     string
	written int64
	stopped bool
}

func (w *writer) Write(ctx context.Context, batch [][]byte) error {
	if w.stopped {
		return transport.ErrStopped
	}

	// One round trip per batch, one entry per sample.
	_, err := w.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sample := range batch {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: w.key,
				Values: []any{fieldIndex, w.written + int64(i), fieldValue, sample},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append batch: %w", err)
	}

	w.written += int64(len(batch))
	return nil
}

func (w *writer) Stop(ctx context.Context) error {
	if w.stopped {
		return transport.ErrStopped
	}

	err := w.client.XAdd(ctx, &redis.XAddArgs{
		Stream: w.key,
		Values: []any{fieldEOF, 1, fieldSampleIndex, w.written},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append stop marker: %w", err)
	}

	w.stopped = true
	return nil
}

func (w *writer) Close() error { return nil }

// reader hands out full buffers only, like the river reader. A partially
// filled buffer is kept across calls and returned early only at end of stream.
type reader struct {
	client     *redis.Client
	key        string
	lastID     string
	sampleSize int
	offset     time.Duration

	pending    int
	eofPending bool
	eof        bool
}

func (r *reader) Read(ctx context.Context, buf *transport.Buffer) (int, error) {
	if r.eof {
		return 0, transport.ErrEndOfStream
	}
	if r.eofPending {
		r.eof = true
		return 0, transport.ErrEndOfStream
	}
	if r.pending == 0 {
		buf.Reset()
	}

	streams, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.key, r.lastID},
		Count:   int64(buf.Cap() - buf.Len()),
		// A negative block duration omits BLOCK, making the call non-blocking.
		Block: -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			r.lastID = msg.ID

			if _, isEOF := msg.Values[fieldEOF]; isEOF {
				return r.finish()
			}

			sample, err := r.decode(msg)
			if err != nil {
				return 0, err
			}
			buf.Append([][]byte{sample})
			r.pending++
		}
	}

	if !buf.Full() {
		return 0, nil
	}
	n := r.pending
	r.pending = 0
	return n, nil
}

// finish flushes a partial buffer before reporting end of stream.
func (r *reader) finish() (int, error) {
	if r.pending == 0 {
		r.eof = true
		return 0, transport.ErrEndOfStream
	}

	n := r.pending
	r.pending = 0
	r.eofPending = true
	return n, nil
}

func (r *reader) decode(msg redis.XMessage) ([]byte, error) {
	raw, ok := msg.Values[fieldValue].(string)
	if !ok {
		return nil, fmt.Errorf("entry %s has no %q field", msg.ID, fieldValue)
	}
	if len(raw) != r.sampleSize {
		return nil, fmt.Errorf("entry %s has %d bytes, schema expects %d", msg.ID, len(raw), r.sampleSize)
	}
	return []byte(raw), nil
}

func (r *reader) Close() error { return nil }

// ClockOffset returns the local-minus-server clock offset recorded when the
// stream was created.
func (r *reader) ClockOffset() time.Duration { return r.offset }

// parseClockOffset decodes the recorded offset. Streams created by other
// writers may omit it, which reads as zero.
func parseClockOffset(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	us, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid clock offset %q: %w", raw, err)
	}
	return time.Duration(us) * time.Microsecond, nil
}
