package at

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings. Empty lines are returned as empty
// tokens: caller ID blocks are separated by blank lines and the session
// state depends on seeing them.
//
// Important: This splitter assumes "No Echo" mode (ATE0).
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

var cidPattern = regexp.MustCompile(`^(` + CidName + `|` + CidNumber + `|` + CidDate + `|` + CidTime + `)\s*=\s*(.*)$`)

// Classify identifies the nature of a single modem line. The line must
// already be stripped of its CRLF terminator. Classify never fails: anything
// it does not recognise is reported as KindUnknown with the text verbatim.
func Classify(line string) Response {
	if line == "" {
		return Response{Kind: KindEmpty}
	}

	switch line {
	case OK, ERROR, NoCarrier:
		return Response{Kind: KindResult, Code: line}
	case UrcRing:
		return Response{Kind: KindRing}
	}

	if m := cidPattern.FindStringSubmatch(line); m != nil {
		return Response{Kind: KindCID, Key: m[1], Value: strings.TrimSpace(m[2])}
	}

	return Response{Kind: KindUnknown, Text: line}
}

// IsCidKey reports whether key is one of the four caller ID keys.
func IsCidKey(key string) bool {
	switch key {
	case CidNumber, CidName, CidDate, CidTime:
		return true
	}
	return false
}
