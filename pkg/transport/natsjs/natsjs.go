// Package natsjs carries streams over NATS JetStream.
//
// A stream "<name>" captures the subject "streamlat.<name>". Each batch is one
// message holding a transport frame. Readers use ordered consumers delivering
// from the first message, so every reader sees the whole stream in order.
package natsjs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/shivanshkc/streamlat/pkg/retry"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

const (
	// subjectPrefix namespaces the subjects used by the harness.
	subjectPrefix = "streamlat."
	// metaSchema is the stream metadata key holding the schema JSON.
	metaSchema = "schema"

	inboxDepth = 1024
	pollDelay  = 10 * time.Millisecond
)

// Subject returns the subject a stream captures.
func Subject(name string) string { return subjectPrefix + name }

// Dial returns a DialFunc connecting to the NATS server described by conn.
func Dial(conn transport.Connection) transport.DialFunc {
	return func(ctx context.Context) (transport.Session, error) {
		opts := []nats.Option{nats.Name("streamlat")}
		switch user, password := conn.UserPassword(); {
		case user != "":
			opts = append(opts, nats.UserInfo(user, password))
		case password != "":
			opts = append(opts, nats.Token(password))
		}

		nc, err := nats.Connect("nats://"+conn.Address(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats at %s: %w", conn.Address(), err)
		}

		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to init jetstream: %w", err)
		}
		return &session{nc: nc, js: js, initTimeout: conn.InitTimeout}, nil
	}
}

type session struct {
	nc          *nats.Conn
	js          jetstream.JetStream
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

	// CreateStream is idempotent for identical configs, so check first.
	if _, err := s.js.Stream(ctx, name); err == nil {
		return fmt.Errorf("%w: %s", transport.ErrStreamExists, name)
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{Subject(name)},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.MemoryStorage,
		Metadata:  map[string]string{metaSchema: encodedSchema},
	})
	if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("%w: %s", transport.ErrStreamExists, name)
	}
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

func (s *session) Delete(ctx context.Context, name string) error {
	err := s.js.DeleteStream(ctx, name)
	if err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to delete stream %s: %w", name, err)
	}
	return nil
}

// stream looks up a stream, mapping a missing stream to ErrStreamNotFound.
func (s *session) stream(ctx context.Context, name string) (jetstream.Stream, error) {
	stream, err := s.js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, fmt.Errorf("%w: %s", transport.ErrStreamNotFound, name)
	}
	if err != nil {
		return nil, retry.Stop(fmt.Errorf("failed to look up stream: %w", err))
	}
	return stream, nil
}

func (s *session) NewWriter(ctx context.Context, name string) (transport.Writer, error) {
	if _, err := s.stream(ctx, name); err != nil {
		return nil, err
	}
	return &writer{js: s.js, subject: Subject(name)}, nil
}

func (s *session) NewReader(ctx context.Context, name string) (transport.Reader, error) {
	var stream jetstream.Stream

	attempts := retry.Attempts(s.initTimeout, pollDelay)
	err := retry.Do(ctx, attempts, pollDelay, func(ctx context.Context) error {
		var err error
		stream, err = s.stream(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ordered consumer: %w", err)
	}

	r := &reader{Inbox: transport.NewInbox(inboxDepth)}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.consume, err = consumer.Consume(r.handle)
	if err != nil {
		r.cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return r, nil
}

func (s *session) Close() error {
	s.nc.Close()
	return nil
}

type writer struct {
	js      jetstream.JetStream
	subject string
	scratch []byte
	stopped bool
}

func (w *writer) Write(ctx context.Context, batch [][]byte) error {
	if w.stopped {
		return transport.ErrStopped
	}
	w.scratch = transport.EncodeBatch(w.scratch[:0], batch)
	return w.publish(ctx, w.scratch)
}

func (w *writer) Stop(ctx context.Context) error {
	if w.stopped {
		return transport.ErrStopped
	}
	if err := w.publish(ctx, transport.EncodeEndOfStream(nil)); err != nil {
		return err
	}
	w.stopped = true
	return nil
}

func (w *writer) publish(ctx context.Context, data []byte) error {
	if _, err := w.js.Publish(ctx, w.subject, data); err != nil {
		return fmt.Errorf("failed to publish batch: %w", err)
	}
	return nil
}

func (w *writer) Close() error { return nil }

type reader struct {
	*transport.Inbox

	ctx     context.Context
	cancel  context.CancelFunc
	consume jetstream.ConsumeContext
	done    atomic.Bool
}

// handle runs on the consumer's delivery goroutine.
func (r *reader) handle(msg jetstream.Msg) {
	if r.done.Load() {
		return
	}

	batch, eof, err := transport.DecodeFrame(msg.Data())
	switch {
	case err != nil:
		r.done.Store(true)
		r.Fail(r.ctx, err)
	case eof:
		r.done.Store(true)
		r.EndOfStream(r.ctx)
	default:
		r.Deliver(r.ctx, batch)
	}
}

func (r *reader) Close() error {
	r.cancel()
	r.Inbox.Close()
	r.consume.Stop()
	return nil
}
