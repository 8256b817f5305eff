package modem

import (
	"slices"
	"sync"
	"time"

	"go.bug.st/serial"
	"i4.energy/across/cidmodem/at"
)

// State is the implicit call state the modem output puts the session in.
type State int

const (
	// StateIdle waits indefinitely for the next line.
	StateIdle State = iota
	// StateRinging reads with a bounded timeout because a call or a caller
	// ID frame is in progress.
	StateRinging
)

func (s State) String() string {
	if s == StateRinging {
		return "ringing"
	}
	return "idle"
}

// IdleTimeout is the read timeout applied in StateIdle.
var IdleTimeout = serial.NoTimeout

// Transition is the outcome of feeding one line into a Session.
type Transition struct {
	// State is the session state after the line.
	State State
	// Timeout is the read timeout the transport must use for the next line.
	Timeout time.Duration
	// Notify holds the completed caller ID frame, if this line completed one.
	Notify *CallerID
	// Err reports a line that could not be applied. The session state is
	// still updated.
	Err error
}

// Session tracks what the modem is doing from the lines it emits. It owns
// the in-progress caller ID record and the last command result. All methods
// are safe for concurrent use; only the reader loop should call Step.
type Session struct {
	mu          sync.Mutex
	state       State
	record      Record
	lastResult  string
	required    []Field
	ringTimeout time.Duration
}

// NewSession returns an idle session that waits for DefaultRequiredFields.
func NewSession(ringTimeout time.Duration) *Session {
	return &Session{
		ringTimeout: ringTimeout,
		required:    slices.Clone(DefaultRequiredFields),
	}
}

// Require replaces the set of fields a frame needs before it is reported.
func (s *Session) Require(fields []Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.required = slices.Clone(fields)
}

// Required returns the configured field set.
func (s *Session) Required() []Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.required)
}

// Step applies one classified line. timedOut must be true only when the
// transport gave up waiting, as opposed to delivering a blank line.
func (s *Session) Step(resp at.Response, timedOut bool) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Transition

	switch {
	case timedOut:
		s.state = StateIdle
		s.lastResult = ""
		s.record.Reset()

	case resp.Kind == at.KindEmpty:
		// Blank separators inside a caller ID block.
		s.state = StateRinging

	case resp.Kind == at.KindResult:
		s.lastResult = resp.Code
		s.state = StateIdle
		s.record.Reset()

	case resp.Kind == at.KindRing:
		s.state = StateRinging
		s.lastResult = ""

	case resp.Kind == at.KindCID:
		if err := s.record.Set(Field(resp.Key), resp.Value); err != nil {
			t.Err = err
		} else if s.record.Complete(s.required) {
			cid := s.record.Snapshot()
			t.Notify = &cid
			s.record.Reset()
		}
		s.lastResult = ""
		s.state = StateRinging

	default:
		s.lastResult = resp.Text
		s.state = StateIdle
	}

	t.State = s.state
	t.Timeout = s.timeoutLocked()
	return t
}

// LastResult returns the last result line seen, or "" when none arrived
// since the last send, ring or caller ID line.
func (s *Session) LastResult() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// ClearLastResult forgets the last result so a following poll only sees
// responses to commands sent afterwards.
func (s *Session) ClearLastResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = ""
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Timeout returns the read timeout for the current state.
func (s *Session) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutLocked()
}

func (s *Session) timeoutLocked() time.Duration {
	if s.state == StateRinging {
		return s.ringTimeout
	}
	return IdleTimeout
}

// Pending returns the caller ID fields accumulated so far.
func (s *Session) Pending() CallerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Snapshot()
}
