package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"i4.energy/across/cidmodem/at"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to a modem.
//
// A Transport is assumed to be already connected and ready for use. Besides
// plain I/O it must let the reader retune its read timeout. A Read that gives
// up because the timeout expired returns (0, nil), which is how
// go.bug.st/serial ports behave. Typical implementations include serial
// ports or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds how long a Read waits for data. IdleTimeout
	// (serial.NoTimeout) waits forever.
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a Transport to a modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is intended to be used during modem
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is used when a SerialDialer has neither Mode nor BaudRate.
const DefaultBaudRate = 115200

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyACM0 or COM9.
	PortName string
	// BaudRate is used to build an 8N1 mode when Mode is nil.
	BaudRate int
	// Mode overrides the serial line settings.
	Mode *serial.Mode
}

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s at %d baud: %w", d.PortName, mode.BaudRate, err)
	}
	return port, nil
}

// maxLineLength bounds a single response line.
const maxLineLength = 4096

// lineReader splits a Transport's byte stream into CRLF-terminated lines
// and tells read timeouts apart from blank lines.
type lineReader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	err   error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r:     r,
		chunk: make([]byte, 256),
	}
}

// ReadLine returns the next line without its terminator. timedOut is true
// when the transport's read timeout expired with nothing buffered. If part
// of a line was buffered when the timeout expired, that part is returned as
// a line. err is non-nil once the transport fails or is closed.
func (lr *lineReader) ReadLine() (line string, timedOut bool, err error) {
	for {
		if advance, token, _ := at.Splitter(lr.buf, false); advance > 0 {
			// A timeout between CR and LF leaves the LF at the head of the
			// next token.
			line = strings.Trim(string(token), at.CRLF)
			lr.buf = append(lr.buf[:0], lr.buf[advance:]...)
			return line, false, nil
		}

		if lr.err != nil {
			if len(lr.buf) > 0 {
				line = strings.TrimRight(string(lr.buf), at.CRLF)
				lr.buf = lr.buf[:0]
				return line, false, nil
			}
			return "", false, lr.err
		}

		if len(lr.buf) > maxLineLength {
			lr.buf = lr.buf[:0]
			return "", false, ErrLineTooLong
		}

		n, err := lr.r.Read(lr.chunk)
		if n > 0 {
			lr.buf = append(lr.buf, lr.chunk[:n]...)
		}
		if err != nil {
			lr.err = err
			continue
		}
		if n == 0 {
			if len(lr.buf) > 0 {
				line = strings.TrimRight(string(lr.buf), at.CRLF)
				lr.buf = lr.buf[:0]
				return line, false, nil
			}
			return "", true, nil
		}
	}
}
