package modem_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"i4.energy/across/cidmodem/at"
	"i4.energy/across/cidmodem/modem"
)

const ringTimeout = 10 * time.Second

// feed classifies and applies each line, collecting notifications.
func feed(s *modem.Session, lines ...string) []modem.CallerID {
	var got []modem.CallerID
	for _, line := range lines {
		if tr := s.Step(at.Classify(line), false); tr.Notify != nil {
			got = append(got, *tr.Notify)
		}
	}
	return got
}

func TestSessionTransitions(t *testing.T) {
	t.Run("Starts idle", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		assert.Equal(t, modem.StateIdle, s.State())
		assert.Equal(t, modem.IdleTimeout, s.Timeout())
		assert.Equal(t, []modem.Field{modem.FieldNumber}, s.Required())
	})

	t.Run("Idle waits without a deadline", func(t *testing.T) {
		assert.Equal(t, serial.NoTimeout, modem.IdleTimeout)
	})

	t.Run("Read timeout returns to idle and clears everything", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		feed(s, "RING", "DATE = 1120", "TIME = 1748", "BUSY")
		require.Equal(t, "BUSY", s.LastResult())
		require.Equal(t, "1120", s.Pending().Date())

		tr := s.Step(at.Classify(""), true)
		assert.Equal(t, modem.StateIdle, tr.State)
		assert.Equal(t, modem.IdleTimeout, tr.Timeout)
		assert.Nil(t, tr.Notify)
		assert.Equal(t, "", s.LastResult())
		assert.True(t, s.Pending().IsZero())
	})

	t.Run("Blank line keeps ringing and changes nothing else", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Step(at.Classify("OK"), false)

		tr := s.Step(at.Classify(""), false)
		assert.Equal(t, modem.StateRinging, tr.State)
		assert.Equal(t, ringTimeout, tr.Timeout)
		assert.Equal(t, "OK", s.LastResult())
	})

	t.Run("Result is recorded and discards partial caller ID", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Require([]modem.Field{modem.FieldNumber, modem.FieldDate})

		got := feed(s, "RING", "DATE = 0101", "OK", "NMBR = 555")
		assert.Empty(t, got, "a result line must not complete a frame")

		tr := s.Step(at.Classify("ERROR"), false)
		assert.Equal(t, modem.StateIdle, tr.State)
		assert.Equal(t, modem.IdleTimeout, tr.Timeout)
		assert.Equal(t, "ERROR", s.LastResult())
		assert.True(t, s.Pending().IsZero())
	})

	t.Run("Ring clears the last result", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Step(at.Classify("NO CARRIER"), false)
		require.Equal(t, "NO CARRIER", s.LastResult())

		tr := s.Step(at.Classify("RING"), false)
		assert.Equal(t, modem.StateRinging, tr.State)
		assert.Equal(t, ringTimeout, tr.Timeout)
		assert.Equal(t, "", s.LastResult())
	})

	t.Run("Caller ID line clears the last result", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Require([]modem.Field{modem.FieldName})
		s.Step(at.Classify("OK"), false)

		tr := s.Step(at.Classify("DATE = 1120"), false)
		assert.Equal(t, modem.StateRinging, tr.State)
		assert.Nil(t, tr.Notify)
		assert.Equal(t, "", s.LastResult())
		assert.Equal(t, "1120", s.Pending().Date())
	})

	t.Run("Unknown line is kept as the last result", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Step(at.Classify("RING"), false)

		tr := s.Step(at.Classify("CONNECT 9600"), false)
		assert.Equal(t, modem.StateIdle, tr.State)
		assert.Equal(t, modem.IdleTimeout, tr.Timeout)
		assert.Equal(t, "CONNECT 9600", s.LastResult())
	})

	t.Run("ClearLastResult", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Step(at.Classify("OK"), false)
		s.ClearLastResult()
		assert.Equal(t, "", s.LastResult())
	})
}

func TestSessionNotify(t *testing.T) {
	t.Run("Number alone completes the default frame", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)

		tr := s.Step(at.Classify("NMBR = 5551234"), false)
		require.NotNil(t, tr.Notify)
		assert.Equal(t, modem.NewCallerID("5551234", "", "", ""), *tr.Notify)
		assert.True(t, s.Pending().IsZero(), "record resets after notification")
	})

	t.Run("Waits for every required field", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Require([]modem.Field{modem.FieldNumber, modem.FieldDate})

		tr := s.Step(at.Classify("DATE = 0101"), false)
		assert.Nil(t, tr.Notify)

		tr = s.Step(at.Classify("NMBR = 555"), false)
		require.NotNil(t, tr.Notify)
		assert.Equal(t, "555", tr.Notify.Number())
		assert.Equal(t, "0101", tr.Notify.Date())
	})

	t.Run("Repeated timeouts never notify or record", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		for range 5 {
			tr := s.Step(at.Classify(""), true)
			assert.Nil(t, tr.Notify)
			assert.Equal(t, modem.StateIdle, tr.State)
			assert.True(t, s.Pending().IsZero())
			assert.Equal(t, "", s.LastResult())
		}
	})

	t.Run("Caller ID block between rings", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)

		got := feed(s, "RING", "", "DATE = 1120", "TIME = 1748", "NMBR = 186XXXXXXXX", "RING")
		require.Len(t, got, 1)
		assert.Equal(t, modem.NewCallerID("186XXXXXXXX", "", "1120", "1748"), got[0])
		assert.Equal(t, modem.StateRinging, s.State())
	})

	t.Run("Notification fires on the completing line", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		lines := []string{"RING", "", "DATE = 1120", "TIME = 1748", "NMBR = 186XXXXXXXX", "RING"}

		for i, line := range lines {
			tr := s.Step(at.Classify(line), false)
			if i == 4 {
				assert.NotNil(t, tr.Notify, "line %q", line)
			} else {
				assert.Nil(t, tr.Notify, "line %q", line)
			}
		}
	})

	t.Run("Empty requirement notifies on every field", func(t *testing.T) {
		s := modem.NewSession(ringTimeout)
		s.Require(nil)

		got := feed(s, "DATE = 1120", "TIME = 1748")
		require.Len(t, got, 2)
		assert.Equal(t, "1120", got[0].Date())
		assert.Equal(t, "", got[1].Date(), "second frame starts from a reset record")
		assert.Equal(t, "1748", got[1].Time())
	})
}
