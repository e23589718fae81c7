package iostream_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/markbridge/internal/bridge/iostream"
)

// fastBuffer returns a buffer with a short wait budget so stall paths finish
// quickly in tests.
func fastBuffer() *iostream.Buffer {
	return iostream.NewWithWait(time.Millisecond, 100*time.Millisecond)
}

// --- Read --------------------------------------------------------------------

func TestReadReturnsAvailableBytesImmediately(t *testing.T) {
	b := iostream.New()
	b.WriteString("abc")

	p := make([]byte, 10)
	n, err := b.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || string(p[:n]) != "abc" {
		t.Errorf("expected 3 bytes %q, got %d bytes %q", "abc", n, p[:n])
	}
}

func TestReadEOFAfterCloseAndDrain(t *testing.T) {
	b := iostream.New()
	b.WriteString("x")
	b.CloseWrite()

	p := make([]byte, 4)
	n, err := b.Read(p)
	if err != nil || n != 1 {
		t.Fatalf("first read: n=%d err=%v", n, err)
	}
	if _, err := b.Read(p); err != io.EOF {
		t.Errorf("expected io.EOF after drain, got %v", err)
	}
}

func TestReadStallsOnSilentProducer(t *testing.T) {
	b := fastBuffer()

	start := time.Now()
	n, err := b.Read(make([]byte, 1))
	if n != 0 || !errors.Is(err, iostream.ErrStalled) {
		t.Fatalf("expected ErrStalled, got n=%d err=%v", n, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stall took %v, wait budget not bounded", elapsed)
	}
}

func TestReadWaitsForLateWriter(t *testing.T) {
	b := iostream.New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.WriteString("late")
	}()

	p := make([]byte, 10)
	n, err := b.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(p[:n]) != "late" {
		t.Errorf("expected %q, got %q", "late", p[:n])
	}
}

// --- ReadLine ----------------------------------------------------------------

func TestReadLineIncludesTerminator(t *testing.T) {
	b := iostream.New()
	b.WriteString("hello\nworld\n")

	line, err := b.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "hello\n" {
		t.Errorf("expected %q, got %q", "hello\n", line)
	}
}

func TestReadLineTailOnceAfterClose(t *testing.T) {
	b := iostream.New()
	b.WriteString("no terminator")
	b.CloseWrite()

	line, err := b.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "no terminator" {
		t.Errorf("expected tail %q, got %q", "no terminator", line)
	}
	if _, err := b.ReadLine(); err != io.EOF {
		t.Errorf("expected io.EOF after tail, got %v", err)
	}
}

func TestReadLineWaitsForTerminator(t *testing.T) {
	b := iostream.New()
	b.WriteString("par")
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.WriteString("tial\n")
	}()

	line, err := b.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "partial\n" {
		t.Errorf("expected %q, got %q", "partial\n", line)
	}
}

func TestReadLineStallsWithoutFalseEOF(t *testing.T) {
	b := fastBuffer()
	b.WriteString("open-ended")

	_, err := b.ReadLine()
	if !errors.Is(err, iostream.ErrStalled) {
		t.Fatalf("expected ErrStalled on open stream, got %v", err)
	}
	// The partial data must survive the stall.
	b.WriteString("\n")
	line, err := b.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine after stall: %v", err)
	}
	if string(line) != "open-ended\n" {
		t.Errorf("expected %q, got %q", "open-ended\n", line)
	}
}

// --- ReadFull ----------------------------------------------------------------

func TestReadFullShortRead(t *testing.T) {
	b := iostream.New()
	b.WriteString("ab")
	b.CloseWrite()

	_, err := b.ReadFull(5)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFullAccumulatesAcrossWrites(t *testing.T) {
	b := iostream.New()
	go func() {
		for _, chunk := range []string{"ab", "cd", "ef"} {
			b.WriteString(chunk)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	data, err := b.ReadFull(6)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(data) != "abcdef" {
		t.Errorf("expected %q, got %q", "abcdef", data)
	}
}

// --- Write / CloseWrite ------------------------------------------------------

func TestWriteAfterCloseWrite(t *testing.T) {
	b := iostream.New()
	b.CloseWrite()
	b.CloseWrite() // idempotent

	if _, err := b.WriteString("x"); !errors.Is(err, iostream.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestTakeAllDrains(t *testing.T) {
	b := iostream.New()
	b.WriteString("abc")

	if got := string(b.TakeAll()); got != "abc" {
		t.Errorf("TakeAll = %q, want %q", got, "abc")
	}
	if b.Len() != 0 {
		t.Errorf("Len after TakeAll = %d, want 0", b.Len())
	}
	if got := b.TakeAll(); got != nil {
		t.Errorf("second TakeAll = %q, want nil", got)
	}
}

// --- concurrency -------------------------------------------------------------

func TestConcurrentProducerConsumerPreservesOrder(t *testing.T) {
	b := iostream.New()
	const lines = 200

	go func() {
		for i := 0; i < lines; i++ {
			b.WriteString(strings.Repeat("x", i%7) + "\n")
			if i%13 == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		b.CloseWrite()
	}()

	var got int
	for {
		line, err := b.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		want := strings.Repeat("x", got%7) + "\n"
		if string(line) != want {
			t.Fatalf("line %d = %q, want %q", got, line, want)
		}
		got++
	}
	if got != lines {
		t.Errorf("read %d lines, want %d", got, lines)
	}
}
