// Package notify delivers completed caller ID frames outside the process.
//
// Handlers built here satisfy modem.Handler and never block the modem's
// reader loop.
package notify

import (
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"i4.energy/across/cidmodem/modem"
)

// Event is the published form of a caller ID frame.
type Event struct {
	// ID is a ULID, sortable by ReceivedAt.
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Number     string    `json:"number"`
	Name       string    `json:"name"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
}

// NewEvent stamps cid with an ID and the time it was received.
func NewEvent(cid modem.CallerID, receivedAt time.Time) Event {
	return Event{
		ID:         ulid.MustNew(ulid.Timestamp(receivedAt), rand.Reader).String(),
		ReceivedAt: receivedAt.UTC(),
		Number:     cid.Number(),
		Name:       cid.Name(),
		Date:       cid.Date(),
		Time:       cid.Time(),
	}
}

// LogHandler returns a handler that only logs each frame.
func LogHandler(logger *slog.Logger) modem.Handler {
	return func(cid modem.CallerID) {
		logger.Info("incoming call",
			"number", cid.Number(),
			"name", cid.Name(),
			"date", cid.Date(),
			"time", cid.Time(),
		)
	}
}
