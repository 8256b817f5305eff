package modem

import (
	"fmt"

	"i4.energy/across/cidmodem/at"
)

// Field names one of the caller ID values. Its value is the key the modem
// uses on the wire.
type Field string

const (
	FieldNumber Field = at.CidNumber
	FieldName   Field = at.CidName
	FieldDate   Field = at.CidDate
	FieldTime   Field = at.CidTime
)

// DefaultRequiredFields is the field set a notification waits for unless
// configured otherwise.
var DefaultRequiredFields = []Field{FieldNumber}

// ParseFields converts names into fields, dropping anything that is not a
// caller ID key and collapsing duplicates. The dropped names are returned so
// the caller can report them.
func ParseFields(names []string) (fields []Field, invalid []string) {
	seen := make(map[Field]bool, len(names))
	for _, name := range names {
		if !at.IsCidKey(name) {
			invalid = append(invalid, name)
			continue
		}
		f := Field(name)
		if seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, invalid
}

// CallerID is an immutable snapshot of a caller ID frame.
type CallerID struct {
	number string
	name   string
	date   string
	time   string
}

// NewCallerID builds a snapshot from explicit values.
func NewCallerID(number, name, date, time string) CallerID {
	return CallerID{number: number, name: name, date: date, time: time}
}

func (c CallerID) Number() string { return c.number }
func (c CallerID) Name() string   { return c.name }
func (c CallerID) Date() string   { return c.date }
func (c CallerID) Time() string   { return c.time }

// Get returns the value of f, or "" for an unknown field.
func (c CallerID) Get(f Field) string {
	switch f {
	case FieldNumber:
		return c.number
	case FieldName:
		return c.name
	case FieldDate:
		return c.date
	case FieldTime:
		return c.time
	}
	return ""
}

// IsZero reports whether no field is set.
func (c CallerID) IsZero() bool {
	return c == CallerID{}
}

func (c CallerID) String() string {
	return fmt.Sprintf("NMBR=%q NAME=%q DATE=%q TIME=%q", c.number, c.name, c.date, c.time)
}

// Record accumulates caller ID fields as they arrive between rings.
// It is not safe for concurrent use; Session serialises access to it.
type Record struct {
	cid CallerID
}

// Reset clears every field.
func (r *Record) Reset() {
	r.cid = CallerID{}
}

// Set stores value under key. Keys other than the four caller ID keys are
// rejected with ErrUnknownField and nothing is stored.
func (r *Record) Set(key Field, value string) error {
	switch key {
	case FieldNumber:
		r.cid.number = value
	case FieldName:
		r.cid.name = value
	case FieldDate:
		r.cid.date = value
	case FieldTime:
		r.cid.time = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, string(key))
	}
	return nil
}

// Complete reports whether every required field holds a non-empty value.
func (r *Record) Complete(required []Field) bool {
	for _, f := range required {
		if r.cid.Get(f) == "" {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the record that later mutation cannot reach.
func (r *Record) Snapshot() CallerID {
	return r.cid
}
