// Package kafka carries streams over a single-partition Kafka topic.
//
// Each batch is one record whose value is a transport frame, so a reader sees
// exactly the batches the writer produced, in order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/shivanshkc/streamlat/pkg/retry"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

const (
	// inboxDepth bounds the batches fetched ahead of the reader.
	inboxDepth = 1024
	// pollDelay is the wait between metadata lookups while a reader waits for its topic.
	pollDelay = 10 * time.Millisecond
)

// Dial returns a DialFunc connecting to the Kafka cluster described by conn.
func Dial(conn transport.Connection) transport.DialFunc {
	return func(ctx context.Context) (transport.Session, error) {
		client, err := kgo.NewClient(clientOptions(conn)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping kafka at %s: %w", conn.Address(), err)
		}
		return &session{client: client, conn: conn}, nil
	}
}

// clientOptions returns the options shared by admin, producer and consumer clients.
func clientOptions(conn transport.Connection, extra ...kgo.Opt) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(conn.Address()),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.DisableIdempotentWrite(),
		kgo.ProducerLinger(0),
		kgo.ProducerBatchCompression(kgo.NoCompression()),
		kgo.FetchMaxWait(10 * time.Millisecond),
	}

	if user, password := conn.UserPassword(); user != "" {
		opts = append(opts, kgo.SASL(scram.Auth{User: user, Pass: password}.AsSha256Mechanism()))
	}
	return append(opts, extra...)
}

type session struct {
	client *kgo.Client
	conn   transport.Connection
}

func (s *session) Create(ctx context.Context, name string, schema transport.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	req := kmsg.NewCreateTopicsRequest()
	reqTopic := kmsg.NewCreateTopicsRequestTopic()
	reqTopic.Topic = name
	reqTopic.NumPartitions = 1
	// -1 defers to the broker's default replication factor.
	reqTopic.ReplicationFactor = -1
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to send create topic request: %w", err)
	}

	for _, topic := range resp.Topics {
		if topic.Topic != name {
			continue
		}
		if err := kerr.ErrorForCode(topic.ErrorCode); err != nil {
			if errors.Is(err, kerr.TopicAlreadyExists) {
				return fmt.Errorf("%w: %s", transport.ErrStreamExists, name)
			}
			return fmt.Errorf("failed to create topic %s: %w", name, err)
		}
	}
	return nil
}

func (s *session) Delete(ctx context.Context, name string) error {
	req := kmsg.NewDeleteTopicsRequest()
	req.TopicNames = append(req.TopicNames, name)

	resp, err := req.RequestWith(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to send delete topic request: %w", err)
	}

	for _, topic := range resp.Topics {
		err := kerr.ErrorForCode(topic.ErrorCode)
		if err != nil && !errors.Is(err, kerr.UnknownTopicOrPartition) {
			return fmt.Errorf("failed to delete topic %s: %w", name, err)
		}
	}
	return nil
}

// exists reports whether the topic is known to the cluster.
func (s *session) exists(ctx context.Context, name string) error {
	req := kmsg.NewMetadataRequest()
	reqTopic := kmsg.NewMetadataRequestTopic()
	reqTopic.Topic = kmsg.StringPtr(name)
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, s.client)
	if err != nil {
		return retry.Stop(fmt.Errorf("failed to send metadata request: %w", err))
	}

	for _, topic := range resp.Topics {
		if topic.Topic == nil || *topic.Topic != name {
			continue
		}
		if topic.ErrorCode == 0 && len(topic.Partitions) > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", transport.ErrStreamNotFound, name)
}

func (s *session) NewWriter(ctx context.Context, name string) (transport.Writer, error) {
	if err := s.exists(ctx, name); err != nil {
		return nil, err
	}
	return &writer{client: s.client, topic: name}, nil
}

func (s *session) NewReader(ctx context.Context, name string) (transport.Reader, error) {
	attempts := retry.Attempts(s.conn.InitTimeout, pollDelay)
	if err := retry.Do(ctx, attempts, pollDelay, func(ctx context.Context) error { return s.exists(ctx, name) }); err != nil {
		return nil, err
	}

	consumer, err := kgo.NewClient(clientOptions(s.conn,
		kgo.ConsumeTopics(name),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	r := &reader{Inbox: transport.NewInbox(inboxDepth), client: consumer, cancel: cancel}

	r.wg.Add(1)
	go r.pump(pumpCtx)
	return r, nil
}

func (s *session) Close() error {
	s.client.Close()
	return nil
}

type writer struct {
	client  *kgo.Client
	topic   string
	scratch []byte
	stopped bool
}

func (w *writer) Write(ctx context.Context, batch [][]byte) error {
	if w.stopped {
		return transport.ErrStopped
	}
	// ProduceSync waits for the ack, so the scratch frame can be reused afterwards.
	w.scratch = transport.EncodeBatch(w.scratch[:0], batch)
	return w.produce(ctx, w.scratch)
}

func (w *writer) Stop(ctx context.Context) error {
	if w.stopped {
		return transport.ErrStopped
	}
	if err := w.produce(ctx, transport.EncodeEndOfStream(nil)); err != nil {
		return err
	}
	w.stopped = true
	return nil
}

func (w *writer) produce(ctx context.Context, value []byte) error {
	record := &kgo.Record{Topic: w.topic, Value: value}
	if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce record: %w", err)
	}
	return nil
}

func (w *writer) Close() error { return nil }

type reader struct {
	*transport.Inbox

	client *kgo.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pump moves fetched records into the inbox until end of stream or Close.
func (r *reader) pump(ctx context.Context) {
	defer r.wg.Done()

	for {
		fetches := r.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			r.Fail(ctx, fmt.Errorf("failed to fetch from %s: %w", errs[0].Topic, errs[0].Err))
			return
		}

		done := false
		fetches.EachRecord(func(record *kgo.Record) {
			if done {
				return
			}
			batch, eof, err := transport.DecodeFrame(record.Value)
			switch {
			case err != nil:
				r.Fail(ctx, err)
				done = true
			case eof:
				r.EndOfStream(ctx)
				done = true
			default:
				done = !r.Deliver(ctx, batch)
			}
		})
		if done {
			return
		}
	}
}

func (r *reader) Close() error {
	r.cancel()
	r.Inbox.Close()
	r.wg.Wait()
	r.client.Close()
	return nil
}
