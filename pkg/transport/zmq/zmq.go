// Package zmq carries streams over ZeroMQ without a broker.
//
// The writer binds a ROUTER socket at the configured address and keeps every
// frame it sends. A reader connects with a DEALER socket and greets the writer
// with the stream name; the writer then replays the retained frames from the
// head and forwards new ones as they are written. Creating and deleting a
// stream only validate input, since nothing outlives the writer.
//
// The writer must stay open until every reader has finished.
package zmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/shivanshkc/streamlat/pkg/retry"
	"github.com/shivanshkc/streamlat/pkg/transport"
)

const (
	inboxDepth = 1024
	pollDelay  = 50 * time.Millisecond
)

// Dial returns a DialFunc for a writer bound at conn's address.
func Dial(conn transport.Connection) transport.DialFunc {
	return func(context.Context) (transport.Session, error) {
		return &session{conn: conn}, nil
	}
}

type session struct {
	conn transport.Connection
}

func (s *session) endpoint() string { return "tcp://" + s.conn.Address() }

func (s *session) Create(_ context.Context, _ string, schema transport.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return nil
}

func (s *session) Delete(context.Context, string) error { return nil }

func (s *session) NewWriter(ctx context.Context, name string) (transport.Writer, error) {
	sock := zmq4.NewRouter(context.Background())
	if err := sock.Listen(s.endpoint()); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", s.endpoint(), err)
	}

	w := &writer{sock: sock, name: name}
	w.wg.Add(1)
	go w.serve()
	return w, nil
}

func (s *session) NewReader(ctx context.Context, name string) (transport.Reader, error) {
	sock := zmq4.NewDealer(context.Background(), zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())))

	attempts := retry.Attempts(s.conn.InitTimeout, pollDelay)
	err := retry.Do(ctx, attempts, pollDelay, func(context.Context) error {
		return sock.Dial(s.endpoint())
	})
	if err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", s.endpoint(), err)
	}

	if err := sock.Send(zmq4.NewMsgString(name)); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("failed to greet writer: %w", err)
	}

	r := &reader{Inbox: transport.NewInbox(inboxDepth), sock: sock}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.pump()
	return r, nil
}

func (s *session) Close() error { return nil }

type writer struct {
	sock zmq4.Socket
	name string
	wg   sync.WaitGroup

	mu      sync.Mutex
	frames  [][]byte
	peers   [][]byte
	stopped bool
}

// serve registers greeting readers and replays the retained frames to them.
func (w *writer) serve() {
	defer w.wg.Done()

	for {
		msg, err := w.sock.Recv()
		if err != nil {
			return
		}
		if len(msg.Frames) < 2 || string(msg.Frames[1]) != w.name {
			continue
		}
		peer := append([]byte(nil), msg.Frames[0]...)

		w.mu.Lock()
		if w.replay(peer) {
			w.peers = append(w.peers, peer)
		}
		w.mu.Unlock()
	}
}

// replay sends every retained frame to peer. The caller holds mu.
func (w *writer) replay(peer []byte) bool {
	for _, frame := range w.frames {
		if err := w.sock.Send(zmq4.NewMsgFrom(peer, frame)); err != nil {
			return false
		}
	}
	return true
}

func (w *writer) Write(_ context.Context, batch [][]byte) error {
	return w.append(transport.EncodeBatch(nil, batch), false)
}

func (w *writer) Stop(context.Context) error {
	return w.append(transport.EncodeEndOfStream(nil), true)
}

func (w *writer) append(frame []byte, stop bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return transport.ErrStopped
	}
	w.frames = append(w.frames, frame)
	w.stopped = stop

	// A peer that cannot be reached is dropped; its reader will fail on its own.
	live := w.peers[:0]
	for _, peer := range w.peers {
		if err := w.sock.Send(zmq4.NewMsgFrom(peer, frame)); err == nil {
			live = append(live, peer)
		}
	}
	w.peers = live
	return nil
}

func (w *writer) Close() error {
	err := w.sock.Close()
	w.wg.Wait()
	return err
}

type reader struct {
	*transport.Inbox

	sock   zmq4.Socket
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pump moves received frames into the inbox until end of stream or Close.
func (r *reader) pump() {
	defer r.wg.Done()

	for {
		msg, err := r.sock.Recv()
		if err != nil {
			if r.ctx.Err() == nil {
				r.Fail(r.ctx, fmt.Errorf("failed to receive: %w", err))
			}
			return
		}
		if len(msg.Frames) == 0 {
			continue
		}

		batch, eof, err := transport.DecodeFrame(msg.Frames[len(msg.Frames)-1])
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
}

func (r *reader) Close() error {
	r.cancel()
	r.Inbox.Close()
	err := r.sock.Close()
	r.wg.Wait()
	return err
}
