package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/cidmodem/at"
)

// Modem represents a voice modem that reports caller ID and places calls
// via AT commands. A single reader loop owns every transport read and the
// read timeout; commands may be sent from any goroutine.
type Modem struct {
	// transport provides the physical connection to the modem
	transport Transport
	// config contains the modem configuration settings
	config  Config
	logger  *slog.Logger
	metrics *Metrics
	// session tracks call state, the pending caller ID frame and the last result
	session *Session

	// writeMu keeps concurrent commands from interleaving on the wire
	writeMu sync.Mutex

	// mu guards the fields below
	mu          sync.Mutex
	closed      bool
	loopRunning bool
	handler     Handler

	// loopCtx is cancelled by Close to stop a running Loop and the reader
	loopCtx    context.Context
	loopCancel context.CancelFunc

	// The reader goroutine is started by the first Loop and outlives it, so
	// a restarted Loop picks up where the previous one stopped.
	readerOnce sync.Once
	lines      chan readResult
	timeouts   chan time.Duration
	readerDone chan struct{}
	// readErr is written by the reader before readerDone is closed
	readErr error
}

// readResult is one ReadLine outcome handed from the reader goroutine to Loop.
type readResult struct {
	line     string
	timedOut bool
}

// New creates a new Modem instance with the given configuration.
// It opens the transport, writes the init sequence (reset, echo off,
// region and caller ID reporting) and prepares the event loop context.
// The replies to the init sequence are consumed by Loop.
//
// Returns an error if the transport cannot be opened or written.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("initialize modem: %w", ErrNotInitialized)
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
		metrics:   config.metrics,
		session:   NewSession(config.ringTimeout),

		lines:      make(chan readResult),
		timeouts:   make(chan time.Duration, 1),
		readerDone: make(chan struct{}),
	}
	m.loopCtx, m.loopCancel = context.WithCancel(context.Background())
	m.SetNotify(config.required, config.handler)

	m.logger.Debug("initializing modem", "commands", config.initCommands)
	for _, cmd := range config.initCommands {
		if err := m.write(cmd); err != nil {
			m.loopCancel()
			transport.Close()
			return nil, fmt.Errorf("initialize modem: %w", err)
		}
	}

	return m, nil
}

// Loop is the event loop. Call it after New, usually in its own goroutine.
// It takes lines from the modem's reader, classifies them, drives the
// Session, hands the read timeout for the resulting state back to the reader
// and invokes the notification handler when a caller ID frame completes.
//
// Only one Loop runs at a time. Malformed lines never stop it. It returns
// when ctx is cancelled or the modem is closed (context.Canceled), when the
// transport reports EOF (io.EOF) or when a read fails (wrapped error).
//
// A Loop stopped through ctx may be started again: the single reader keeps
// running until Close, and a line read in between is handled by the next
// Loop. After a transport failure every Loop returns that failure.
func (m *Modem) Loop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.loopRunning {
		m.mu.Unlock()
		return ErrLoopRunning
	}
	m.loopRunning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loopRunning = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.loopCtx, cancel)
	defer stop()

	m.readerOnce.Do(func() {
		go m.read(m.loopCtx)
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.readerDone:
			return m.readerErr()

		case r := <-m.lines:
			// The reader waits for exactly one timeout per line, so the
			// buffered send never blocks.
			m.timeouts <- m.handleLine(r.line, r.timedOut)
		}
	}
}

// readerErr reports why the reader stopped. Only valid after readerDone.
func (m *Modem) readerErr() error {
	if err := m.loopCtx.Err(); err != nil {
		return err
	}
	if errors.Is(m.readErr, io.EOF) {
		m.logger.Info("modem transport closed")
		return io.EOF
	}
	m.logger.Error("modem read failed", "error", m.readErr)
	return fmt.Errorf("read error: %w", m.readErr)
}

// read is the only code that reads from the transport or changes its read
// timeout. After each line it waits for Loop to hand back the timeout for
// the next read. It runs until the transport fails or ctx is cancelled.
func (m *Modem) read(ctx context.Context) {
	defer close(m.readerDone)

	lr := newLineReader(m.transport)
	timeout := m.config.ringTimeout
	current := time.Duration(0)
	applied := false

	for {
		if !applied || timeout != current {
			m.logger.Debug("set read timeout", "timeout", timeout)
			if err := m.transport.SetReadTimeout(timeout); err != nil {
				m.logger.Warn("could not set read timeout", "timeout", timeout, "error", err)
			}
			current, applied = timeout, true
		}

		line, timedOut, err := lr.ReadLine()
		if errors.Is(err, ErrLineTooLong) {
			m.logger.Warn("discarding oversized response line", "limit", maxLineLength)
			continue
		}
		if err != nil {
			m.readErr = err
			return
		}

		select {
		case m.lines <- readResult{line: line, timedOut: timedOut}:
		case <-ctx.Done():
			return
		}

		select {
		case timeout = <-m.timeouts:
		case <-ctx.Done():
			return
		}
	}
}

// handleLine feeds one line through the classifier and the session and
// returns the read timeout for the next line.
func (m *Modem) handleLine(line string, timedOut bool) time.Duration {
	resp := at.Classify(line)
	t := m.session.Step(resp, timedOut)

	kind := resp.Kind.String()
	if timedOut {
		kind = "timeout"
	}
	m.metrics.line(kind)
	m.metrics.state(t.State)

	switch {
	case timedOut:
		m.logger.Debug("read timeout, session idle")
	case resp.Kind == at.KindResult:
		m.logger.Debug("command result", "result", resp.Code)
	case resp.Kind == at.KindRing:
		m.logger.Debug("incoming ring")
	case resp.Kind == at.KindCID:
		m.logger.Debug("caller ID field", "key", resp.Key, "value", resp.Value)
	case resp.Kind == at.KindUnknown:
		m.logger.Warn("unknown response", "response", resp.Text)
	}

	if t.Err != nil {
		m.logger.Error("could not store caller ID field", "key", resp.Key, "error", t.Err)
	}
	if t.Notify != nil {
		m.metrics.notified()
		m.notify(*t.Notify)
	}
	return t.Timeout
}

func (m *Modem) notify(cid CallerID) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("caller ID handler panicked", "panic", r)
		}
	}()
	h(cid)
}

// SetNotify configures caller ID notification. h is called once per frame,
// as soon as every field in required has a value. Names other than NMBR,
// NAME, DATE and TIME are dropped with a warning. A nil h logs the frame
// instead.
func (m *Modem) SetNotify(required []string, h Handler) {
	fields, invalid := ParseFields(required)
	for _, name := range invalid {
		m.logger.Warn("invalid caller ID field, ignored", "field", name)
	}
	if h == nil {
		m.logger.Warn("no caller ID handler, logging frames instead")
		h = m.logCallerID
	}

	m.session.Require(fields)
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *Modem) logCallerID(cid CallerID) {
	m.logger.Warn("caller ID",
		"number", cid.Number(),
		"name", cid.Name(),
		"date", cid.Date(),
		"time", cid.Time(),
	)
}

// Send writes cmd followed by CRLF. Concurrent calls never interleave.
// It returns ErrNotInitialized without a transport and ErrAlreadyClosed
// after Close; failures are also logged.
func (m *Modem) Send(cmd string) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.logger.Error("cannot send command, modem closed", "cmd", cmd)
		return ErrAlreadyClosed
	}
	return m.write(cmd)
}

func (m *Modem) write(cmd string) error {
	if m.transport == nil {
		m.logger.Error("cannot send command, transport not open", "cmd", cmd)
		return ErrNotInitialized
	}

	wire := cmd + at.CRLF
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := m.transport.Write([]byte(wire)); err != nil {
		m.logger.Error("could not send command", "cmd", cmd, "error", err)
		return fmt.Errorf("write command %q: %w", cmd, err)
	}
	m.logger.Debug("sent command", "cmd", cmd)
	return nil
}

// LastResult returns the last command result or unrecognised line, or ""
// if none arrived since it was last cleared.
func (m *Modem) LastResult() string {
	return m.session.LastResult()
}

// State returns whether a call is in progress.
func (m *Modem) State() State {
	return m.session.State()
}

// Pending returns the caller ID fields received for the frame in progress.
func (m *Modem) Pending() CallerID {
	return m.session.Pending()
}

// Required returns the fields a frame needs before it is reported.
func (m *Modem) Required() []Field {
	return m.session.Required()
}

// Close resets the modem, stops the Loop and closes the transport, which
// unblocks a pending read. After calling Close, the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Debug("closing modem")
	if m.transport != nil {
		_ = m.write(at.CmdReset)
	}

	if m.loopCancel != nil {
		m.loopCancel()
	}

	if m.transport != nil {
		return m.transport.Close()
	}

	return nil
}
