// Package iostream implements the in-memory duplex stream that bridges one
// HTTP exchange to the MCP engine's stream-oriented run loop.
//
// The engine is written against long-lived blocking streams; a Buffer mimics
// one side of such a stream over a plain byte backlog. Two rules govern every
// read path:
//
//   - never report EOF while more bytes may legitimately arrive (a false EOF
//     truncates a message mid-frame), and
//   - never block forever (a producer that never writes must not hang the
//     exchange) — reads wait on a condition variable with a bounded total
//     budget and fail with ErrStalled once it is exhausted.
package iostream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Write after CloseWrite has been called.
	ErrClosed = errors.New("iostream: write on closed buffer")

	// ErrStalled is returned by a read when no data arrived within the wait
	// budget and the buffer is still open. The caller can observe that the
	// producer has gone quiet without hanging the exchange.
	ErrStalled = errors.New("iostream: no data within wait budget")
)

const (
	defaultWaitStep   = 10 * time.Millisecond
	defaultWaitBudget = 5 * time.Second
)

// Buffer is one direction of an in-memory stream pair: an ordered byte
// backlog plus an end-of-write flag. It is safe for exactly one concurrent
// writer and one concurrent reader.
type Buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool

	waitStep   time.Duration
	waitBudget time.Duration
}

// New returns an empty Buffer with the default wait policy.
func New() *Buffer {
	return NewWithWait(defaultWaitStep, defaultWaitBudget)
}

// NewWithWait returns an empty Buffer with an explicit wait step and total
// wait budget. Tests use short budgets to exercise stall handling quickly.
func NewWithWait(step, budget time.Duration) *Buffer {
	b := &Buffer{waitStep: step, waitBudget: budget}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends p to the backlog. It never blocks. Once CloseWrite has been
// called no further bytes may be appended.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	b.buf = append(b.buf, p...)
	b.cond.Broadcast()
	return len(p), nil
}

// WriteString appends s to the backlog, with Write's semantics.
func (b *Buffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// CloseWrite marks end-of-stream. It is idempotent and wakes all outstanding
// reads so they terminate instead of hanging.
func (b *Buffer) CloseWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Read fills p with up to len(p) buffered bytes. With at least one byte
// available it returns immediately; with none it waits (bounded) for the
// writer, returning io.EOF once the stream is closed and drained, or
// ErrStalled when the wait budget runs out while the stream is still open.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	deadline := time.Now().Add(b.waitBudget)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if len(b.buf) > 0 {
			n := copy(p, b.buf)
			b.buf = b.buf[n:]
			return n, nil
		}
		if b.closed {
			return 0, io.EOF
		}
		if !time.Now().Before(deadline) {
			return 0, ErrStalled
		}
		b.waitLocked()
	}
}

// ReadFull reads exactly n bytes, accumulating across short reads. Reaching
// end-of-stream first yields an error wrapping io.ErrUnexpectedEOF; the
// caller never receives a silently truncated result.
func (b *Buffer) ReadFull(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	tmp := make([]byte, n)
	for len(out) < n {
		k, err := b.Read(tmp[:n-len(out)])
		out = append(out, tmp[:k]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, fmt.Errorf("iostream: short read (%d of %d bytes): %w", len(out), n, io.ErrUnexpectedEOF)
			}
			return out, err
		}
	}
	return out, nil
}

// ReadLine returns the next line including its '\n' terminator. When the
// stream is closed with no terminator pending it returns the remaining tail
// exactly once, then io.EOF. When the stream is open it waits (bounded) for
// the terminator rather than reporting a false EOF.
func (b *Buffer) ReadLine() ([]byte, error) {
	deadline := time.Now().Add(b.waitBudget)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if i := bytes.IndexByte(b.buf, '\n'); i >= 0 {
			line := b.buf[:i+1]
			b.buf = b.buf[i+1:]
			return line, nil
		}
		if b.closed {
			if len(b.buf) > 0 {
				tail := b.buf
				b.buf = nil
				return tail, nil
			}
			return nil, io.EOF
		}
		if !time.Now().Before(deadline) {
			return nil, ErrStalled
		}
		b.waitLocked()
	}
}

// TakeAll drains and returns everything currently buffered without waiting.
// The SSE drain loop uses it to forward engine output incrementally.
func (b *Buffer) TakeAll() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	out := b.buf
	b.buf = nil
	return out
}

// Len reports the number of buffered, unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Closed reports whether end-of-stream has been marked.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// waitLocked blocks on the condition variable for at most one wait step.
// Callers must hold b.mu; a timer broadcast guarantees the wait is bounded
// even when the writer never shows up. The timer takes the mutex so its
// broadcast cannot fire before Wait has suspended.
func (b *Buffer) waitLocked() {
	t := time.AfterFunc(b.waitStep, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	b.cond.Wait()
	t.Stop()
}
