package modem_test

import (
	"context"

	"i4.energy/across/cidmodem/at"
	"i4.energy/across/cidmodem/modem"
)

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Command expects cmd to be written with its CRLF terminator.
func (b *MockSequenceBuilder) Command(cmd string) *MockSequenceBuilder {
	wire := []byte(cmd + at.CRLF)
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
	)
	return b
}

func (b *MockSequenceBuilder) Reset() *MockSequenceBuilder {
	return b.Command("ATZ")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Command("ATE0")
}

func (b *MockSequenceBuilder) Region() *MockSequenceBuilder {
	return b.Command("AT+GCI=B5")
}

func (b *MockSequenceBuilder) CallerID() *MockSequenceBuilder {
	return b.Command("AT+VCID=1")
}

func (b *MockSequenceBuilder) Close(err error) *MockSequenceBuilder {
	b.Reset()
	b.calls = append(b.calls, b.transport.EXPECT().Close().Return(err))
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls expects the init sequence New writes to a fresh modem.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).
		Reset().
		EchoOff().
		Region().
		CallerID().
		Build()
}

// closeMockCalls expects the reset and close performed by Close.
func closeMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).Close(nil).Build()
}

type dialerFunc func(ctx context.Context) (modem.Transport, error)

func (f dialerFunc) Dial(ctx context.Context) (modem.Transport, error) {
	return f(ctx)
}

// transportDialer hands out an already open transport.
func transportDialer(t modem.Transport) modem.Dialer {
	return dialerFunc(func(context.Context) (modem.Transport, error) {
		return t, nil
	})
}
