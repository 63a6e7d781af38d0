package bench

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/shivanshkc/streamlat/pkg/transport"
)

// ReaderJob identifies one reader of a run.
type ReaderJob struct {
	StreamName  string
	ReaderID    int
	BatchSize   int
	SnapshotDir string
}

// Launcher starts readers in isolation from the writer.
type Launcher interface {
	// Launch starts one reader. The reader stops when ctx is canceled.
	Launch(ctx context.Context, job ReaderJob) (ReaderHandle, error)
}

// ReaderHandle tracks a started reader.
type ReaderHandle interface {
	// Wait blocks until the reader has exited and its snapshot is on disk.
	Wait() error
}

// ProcessLauncher runs every reader in its own OS process.
type ProcessLauncher struct {
	// Command builds the command that runs one recorder to completion.
	Command func(ctx context.Context, job ReaderJob) *exec.Cmd
	// GracePeriod is how long a canceled reader may take to write its snapshot
	// after being interrupted, before it is killed.
	GracePeriod time.Duration
}

// Launch starts the reader process.
func (l ProcessLauncher) Launch(ctx context.Context, job ReaderJob) (ReaderHandle, error) {
	cmd := l.Command(ctx, job)
	// Interrupt first, so the reader can still persist what it recorded.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = l.GracePeriod

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start reader %d: %w", job.ReaderID, err)
	}
	return &processHandle{cmd: cmd, id: job.ReaderID}, nil
}

type processHandle struct {
	cmd *exec.Cmd
	id  int
}

func (h *processHandle) Wait() error {
	if err := h.cmd.Wait(); err != nil {
		return fmt.Errorf("reader %d process failed: %w", h.id, err)
	}
	return nil
}

// ThreadLauncher runs every reader on its own goroutine, locked to its own OS
// thread, with its own transport session. Readers still share the process and
// its garbage collector, so isolation is weaker than with ProcessLauncher.
type ThreadLauncher struct {
	Dial   transport.DialFunc
	Logger zerolog.Logger
}

// Launch starts the reader goroutine.
func (l ThreadLauncher) Launch(ctx context.Context, job ReaderJob) (ReaderHandle, error) {
	h := &threadHandle{done: make(chan struct{})}

	go func() {
		defer close(h.done)

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		recorder := &Recorder{
			Dial:        l.Dial,
			StreamName:  job.StreamName,
			ReaderID:    job.ReaderID,
			BatchSize:   job.BatchSize,
			SnapshotDir: job.SnapshotDir,
			Logger:      l.Logger,
		}
		_, h.err = recorder.Run(ctx)
	}()

	return h, nil
}

type threadHandle struct {
	done chan struct{}
	err  error
}

func (h *threadHandle) Wait() error {
	<-h.done
	return h.err
}
