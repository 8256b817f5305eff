package modem

import (
	"fmt"
	"strings"
	"time"

	"i4.energy/across/cidmodem/at"
)

// DialResult describes how an outbound call went.
type DialResult struct {
	Number string
	// Response is the first result line seen after dialling, or "".
	Response string
	// TimedOut is set when no result arrived within the wait bound.
	TimedOut bool
	// Polls is how many ticks were spent waiting for a result.
	Polls int
}

// Callout places a voice call to number and hangs up again.
//
// It forces a hang-up, waits one tick for the line to settle, dials
// "ATD<number>;" and polls the last result once per tick for at most maxWait
// ticks. A hang-up is always sent at the end. Blank numbers are rejected
// without touching the transport.
//
// Callout never fails: problems are logged and reflected in the returned
// DialResult. It cannot be cancelled once started.
func (m *Modem) Callout(number string, maxWait int) DialResult {
	number = strings.TrimSpace(number)
	res := DialResult{Number: number}
	if number == "" {
		m.logger.Warn("call to empty number cancelled")
		m.metrics.call("rejected")
		return res
	}

	logger := m.logger.With("number", number)
	tick := m.config.tick

	_ = m.Send(at.CmdHangUp)
	time.Sleep(tick)

	m.session.ClearLastResult()
	if err := m.Send(fmt.Sprintf(at.CmdDialVoice, number)); err != nil {
		logger.Error("dial failed", "error", err)
		_ = m.Send(at.CmdHangUp)
		m.metrics.call("failed")
		return res
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for res.Polls < maxWait {
		<-ticker.C
		res.Polls++
		if r := m.session.LastResult(); r != "" {
			res.Response = r
			break
		}
	}

	if res.Response == "" {
		res.TimedOut = true
		logger.Info("call timed out", "max_wait", maxWait)
		m.metrics.call("timeout")
	} else {
		m.metrics.call("result")
	}
	logger.Info("call done", "response", res.Response)

	_ = m.Send(at.CmdHangUp)
	return res
}
