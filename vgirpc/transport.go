// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Conn carries the byte exchange of a single call.
type Conn interface {
	io.Reader
	io.Writer
	// Lockstep reports whether producer streams are driven by client ticks
	// on this connection. HTTP connections return the whole stream at once.
	Lockstep() bool
	// Close ends the call and releases the connection.
	Close() error
}

// Transport opens per-call connections to an engine.
type Transport interface {
	Open(ctx context.Context, method string, stream bool) (Conn, error)
	Close() error
}

// PipeTransport runs calls over a single duplex byte stream, one at a time.
// Cancelling a call's context mid-exchange tears the stream down, after which
// every call fails with ErrTransportClosed.
type PipeTransport struct {
	mu      sync.Mutex
	r       io.Reader
	w       io.Writer
	closeFn func() error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewPipeTransport wraps a reader/writer pair. closeFn, if non-nil, is called
// once when the transport is closed or aborted.
func NewPipeTransport(r io.Reader, w io.Writer, closeFn func() error) *PipeTransport {
	return &PipeTransport{r: r, w: w, closeFn: closeFn}
}

// DialUnix connects to an engine listening on a unix domain socket.
func DialUnix(ctx context.Context, path string) (*PipeTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return NewPipeTransport(conn, conn, conn.Close), nil
}

// StartProcess launches an engine subprocess speaking the protocol on its
// stdin/stdout. Its stderr is forwarded line by line to logger.
func StartProcess(command string, args []string, logger *slog.Logger) (*PipeTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Info("engine", "pid", cmd.Process.Pid, "line", scanner.Text())
		}
	}()

	closeFn := func() error {
		_ = stdin.Close()
		done := make(chan error, 1)
		go func() {
			<-stderrDone
			done <- cmd.Wait()
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			return <-done
		}
	}
	return NewPipeTransport(stdout, stdin, closeFn), nil
}

// Open takes the transport for one call.
func (t *PipeTransport) Open(ctx context.Context, method string, stream bool) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	// ctx may have ended while waiting for the lock. Nothing was written yet,
	// so the transport stays usable.
	if err := ctx.Err(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	c := &pipeConn{t: t}
	c.stop = context.AfterFunc(ctx, func() { _ = t.shutdown() })
	return c, nil
}

// Close shuts the transport down. Subsequent calls fail with ErrTransportClosed.
func (t *PipeTransport) Close() error {
	return t.shutdown()
}

func (t *PipeTransport) shutdown() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.closeFn != nil {
			t.closeErr = t.closeFn()
		}
	})
	return t.closeErr
}

type pipeConn struct {
	t    *PipeTransport
	stop func() bool
	once sync.Once
}

func (c *pipeConn) Read(p []byte) (int, error) {
	if c.t.closed.Load() {
		return 0, ErrTransportClosed
	}
	return c.t.r.Read(p)
}

func (c *pipeConn) Write(p []byte) (int, error) {
	if c.t.closed.Load() {
		return 0, ErrTransportClosed
	}
	return c.t.w.Write(p)
}

func (c *pipeConn) Lockstep() bool { return true }

func (c *pipeConn) Close() error {
	c.once.Do(func() {
		c.stop()
		c.t.mu.Unlock()
	})
	return nil
}
