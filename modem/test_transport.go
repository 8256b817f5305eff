package modem

import (
	"io"
	"strings"
	"sync"
	"time"

	"i4.energy/across/cidmodem/at"
)

// TestTransport is a test helper that simulates a serial port using channels.
// This is needed because the Loop's reader goroutine continuously reads from the transport,
// and we need reads to block until data is available or the read timeout expires
// (like a real serial port would). An expired timeout is reported as (0, nil).
type TestTransport struct {
	mu        sync.Mutex
	readChan  chan []byte
	done      chan struct{}
	pending   []byte
	closed    bool
	timeout   time.Duration
	timeouts  []time.Duration
	writes    []string
	written   []time.Time
	responder func(cmd string) string
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
		done:     make(chan struct{}),
		timeout:  IdleTimeout,
	}
}

// Write records p. If a responder is set, its reply to the command is queued
// for reading.
func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	t.writes = append(t.writes, string(p))
	t.written = append(t.written, time.Now())
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		if reply := responder(strings.TrimSuffix(string(p), at.CRLF)); reply != "" {
			t.SendData(reply)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		n = copy(p, t.pending)
		t.pending = t.pending[n:]
		t.mu.Unlock()
		return n, nil
	}
	timeout := t.timeout
	t.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data := <-t.readChan:
		n = copy(p, data)
		if n < len(data) {
			t.mu.Lock()
			t.pending = append(t.pending, data[n:]...)
			t.mu.Unlock()
		}
		return n, nil
	case <-expired:
		return 0, nil
	case <-t.done:
		return 0, io.EOF
	}
}

func (t *TestTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
	t.timeouts = append(t.timeouts, d)
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// SetResponder installs a function that produces modem output for each
// written command. Returning "" queues nothing.
func (t *TestTransport) SetResponder(fn func(cmd string) string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
}

// Writes returns every write so far, terminators included.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// WriteTimes returns when each write in Writes happened.
func (t *TestTransport) WriteTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.written...)
}

// Timeouts returns every read timeout applied so far.
func (t *TestTransport) Timeouts() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.timeouts...)
}
