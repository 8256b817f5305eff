package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Result Codes
	OK        = "OK"
	ERROR     = "ERROR"
	NoCarrier = "NO CARRIER"

	// URCs (Unsolicited Result Codes)
	UrcRing = "RING"

	// Caller ID keys, as formatted by AT+VCID=1
	CidNumber = "NMBR"
	CidName   = "NAME"
	CidDate   = "DATE"
	CidTime   = "TIME"

	// Commands
	CmdReset     = "ATZ"
	CmdEchoOff   = "ATE0"
	CmdRegion    = "AT+GCI=B5"
	CmdCallerID  = "AT+VCID=1"
	CmdHangUp    = "ATH"
	CmdDialVoice = "ATD%s;"
)

// InitCommands is the sequence written to a freshly opened modem. The region
// code is required by some modems before they report caller ID at all.
var InitCommands = []string{CmdReset, CmdEchoOff, CmdRegion, CmdCallerID}

type Kind int

const (
	KindEmpty   Kind = iota // blank line or read timeout
	KindResult              // OK, ERROR, NO CARRIER
	KindRing                // incoming call
	KindCID                 // KEY = VALUE caller ID line
	KindUnknown             // anything else
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindResult:
		return "result"
	case KindRing:
		return "ring"
	case KindCID:
		return "cid"
	default:
		return "unknown"
	}
}

// Response is a classified modem line. Only the fields relevant to Kind are
// set: Code for results, Key and Value for caller ID lines, Text otherwise.
type Response struct {
	Kind  Kind
	Code  string
	Key   string
	Value string
	Text  string
}
