// Package transport defines the stream channel the latency harness drives.
//
// The harness treats the transport as a black box: a Session creates and
// deletes named streams and hands out one Writer and any number of Readers.
// Implementations live in the sub-packages, one per broker.
//
// Every implementation must deliver batches to each reader in the order they
// were written, starting from the head of the stream. The harness correlates
// writer and reader records purely by position and has no way to detect a
// violation of this contract.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEndOfStream is returned by Reader.Read once the writer's stop marker
	// has been consumed.
	ErrEndOfStream = errors.New("end of stream")
	// ErrStreamExists is returned by Session.Create for a name already in use.
	ErrStreamExists = errors.New("stream already exists")
	// ErrStreamNotFound is returned when opening a reader or writer for a
	// stream that has not been created.
	ErrStreamNotFound = errors.New("stream does not exist")
	// ErrStopped is returned by Writer.Write after Stop.
	ErrStopped = errors.New("writer already stopped")
)

// Connection holds the parameters needed to reach a broker.
type Connection struct {
	Host string
	Port int
	// Credential is either "user:password" or a bare secret.
	Credential string
	// InitTimeout bounds how long a new reader waits for its stream to become visible.
	InitTimeout time.Duration
}

// Address returns host:port.
func (c Connection) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UserPassword splits the credential. A bare secret yields an empty user.
func (c Connection) UserPassword() (user, password string) {
	if before, after, found := strings.Cut(c.Credential, ":"); found {
		return before, after
	}
	return "", c.Credential
}

// Session is one connection to a broker.
type Session interface {
	// Create registers a new stream with the given schema.
	Create(ctx context.Context, name string, schema Schema) error
	// Delete removes every broker-side resource of the stream.
	Delete(ctx context.Context, name string) error
	// NewWriter opens the single writer of a stream.
	NewWriter(ctx context.Context, name string) (Writer, error)
	// NewReader opens an independent reader positioned at the head of the stream.
	NewReader(ctx context.Context, name string) (Reader, error)
	// Close releases the session.
	Close() error
}

// Writer appends batches to a stream.
type Writer interface {
	// Write appends one batch. Samples may be reused by the caller after return.
	Write(ctx context.Context, batch [][]byte) error
	// Stop appends the end-of-stream marker. Further writes fail with ErrStopped.
	Stop(ctx context.Context) error
	// Close releases the writer without stopping the stream.
	Close() error
}

// Reader consumes a stream.
type Reader interface {
	// Read fills buf with the next available samples and returns their count.
	// It returns 0 without blocking for long when nothing is available yet,
	// and ErrEndOfStream after the stop marker. Any other error is a failure.
	Read(ctx context.Context, buf *Buffer) (int, error)
	// Close releases the reader.
	Close() error
}

// ClockOffsetReporter is implemented by readers of transports that record the
// writer's clock offset against the broker when the stream is created.
type ClockOffsetReporter interface {
	// ClockOffset is the writer's local clock minus the broker clock.
	ClockOffset() time.Duration
}

// DialFunc opens a new session. Each reader dials its own.
type DialFunc func(ctx context.Context) (Session, error)
