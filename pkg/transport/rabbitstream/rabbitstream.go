// Package rabbitstream carries streams over RabbitMQ stream queues via AMQP 0.9.1.
//
// A stream is a durable queue declared with x-queue-type "stream". Every batch
// is one message holding a transport frame, published to the default exchange.
// Stream queues are non-destructive, so each reader consumes from offset
// "first" and sees the whole stream regardless of when it joins.
package rabbitstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/shivanshkc/streamlat/pkg/retry"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

const (
	// prefetch is the consumer credit; stream queues require a non-zero value.
	prefetch   = 1024
	inboxDepth = 1024
	pollDelay  = 10 * time.Millisecond
)

// Dial returns a DialFunc connecting to the broker described by conn.
func Dial(conn transport.Connection) transport.DialFunc {
	return func(context.Context) (transport.Session, error) {
		dialCfg := amqp091.Config{}
		if user, password := conn.UserPassword(); user != "" {
			dialCfg.SASL = []amqp091.Authentication{&amqp091.PlainAuth{Username: user, Password: password}}
		}

		amqpConn, err := amqp091.DialConfig("amqp://"+conn.Address()+"/", dialCfg)
		if err != nil {
			return nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		return &session{conn: amqpConn, initTimeout: conn.InitTimeout}, nil
	}
}

// isNotFound reports whether err is the broker's 404 channel exception.
func isNotFound(err error) bool {
	var amqpErr *amqp091.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp091.NotFound
}

type session struct {
	conn        *amqp091.Connection
	initTimeout time.Duration
}

// withChannel runs fn on a short-lived channel. Failed passive declarations
// close their channel, so channels are not shared between operations.
func (s *session) withChannel(fn func(ch *amqp091.Channel) error) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()
	return fn(ch)
}

// exists checks that the stream queue has been declared.
func (s *session) exists(name string) error {
	return s.withChannel(func(ch *amqp091.Channel) error {
		_, err := ch.QueueDeclarePassive(name, true, false, false, false, streamArgs())
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", transport.ErrStreamNotFound, name)
		}
		if err != nil {
			return retry.Stop(fmt.Errorf("inspect queue: %w", err))
		}
		return nil
	})
}

func streamArgs() amqp091.Table {
	return amqp091.Table{"x-queue-type": "stream"}
}

func (s *session) Create(_ context.Context, name string, schema transport.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	// QueueDeclare succeeds for an identical existing queue, so check first.
	err := s.exists(name)
	if err == nil {
		return fmt.Errorf("%w: %s", transport.ErrStreamExists, name)
	}
	if !errors.Is(err, transport.ErrStreamNotFound) {
		return err
	}

	return s.withChannel(func(ch *amqp091.Channel) error {
		if _, err := ch.QueueDeclare(name, true, false, false, false, streamArgs()); err != nil {
			return fmt.Errorf("declare stream queue: %w", err)
		}
		return nil
	})
}

func (s *session) Delete(_ context.Context, name string) error {
	return s.withChannel(func(ch *amqp091.Channel) error {
		if _, err := ch.QueueDelete(name, false, false, false); err != nil && !isNotFound(err) {
			return fmt.Errorf("delete stream queue: %w", err)
		}
		return nil
	})
}

func (s *session) NewWriter(_ context.Context, name string) (transport.Writer, error) {
	if err := s.exists(name); err != nil {
		return nil, err
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &writer{ch: ch, queue: name}, nil
}

func (s *session) NewReader(ctx context.Context, name string) (transport.Reader, error) {
	attempts := retry.Attempts(s.initTimeout, pollDelay)
	if err := retry.Do(ctx, attempts, pollDelay, func(context.Context) error { return s.exists(name) }); err != nil {
		return nil, err
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	tag := "streamlat-" + uuid.NewString()
	deliveries, err := ch.Consume(name, tag, false, false, false, false, amqp091.Table{"x-stream-offset": "first"})
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume stream queue: %w", err)
	}

	r := &reader{Inbox: transport.NewInbox(inboxDepth), ch: ch, tag: tag}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.pump(deliveries)
	return r, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

type writer struct {
	ch      *amqp091.Channel
	queue   string
	stopped bool
}

func (w *writer) Write(ctx context.Context, batch [][]byte) error {
	if w.stopped {
		return transport.ErrStopped
	}
	return w.publish(ctx, transport.EncodeBatch(nil, batch))
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

func (w *writer) publish(ctx context.Context, body []byte) error {
	msg := amqp091.Publishing{ContentType: "application/msgpack", Body: body}
	if err := w.ch.PublishWithContext(ctx, "", w.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

func (w *writer) Close() error {
	return w.ch.Close()
}

type reader struct {
	*transport.Inbox

	ch     *amqp091.Channel
	tag    string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pump moves deliveries into the inbox until end of stream or Close.
func (r *reader) pump(deliveries <-chan amqp091.Delivery) {
	defer r.wg.Done()

	for d := range deliveries {
		batch, eof, err := transport.DecodeFrame(d.Body)
		if ackErr := d.Ack(false); ackErr != nil && err == nil {
			err = fmt.Errorf("ack delivery: %w", ackErr)
		}

		switch {
		case err != nil:
			r.Fail(r.ctx, err)
			return
		case eof:
			r.EndOfStream(r.ctx)
			return
		case !r.Deliver(r.ctx, batch):
			return
		}
	}

	if r.ctx.Err() == nil {
		r.Fail(r.ctx, errors.New("delivery channel closed"))
	}
}

func (r *reader) Close() error {
	r.cancel()
	r.Inbox.Close()
	_ = r.ch.Cancel(r.tag, false)
	err := r.ch.Close()
	r.wg.Wait()
	return err
}
