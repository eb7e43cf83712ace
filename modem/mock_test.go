package modem_test

import (
	"io"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/cellular/modem"
)

// MockSequenceBuilder scripts a MockTransport. The channel's reader goroutine
// reads at any time, so Read is expected any number of times and blocks until
// a scripted Write queues the device's answer.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	replies   chan []byte
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	b := &MockSequenceBuilder{
		transport: transport,
		replies:   make(chan []byte, 16),
		calls:     []any{},
	}
	transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		data, ok := <-b.replies
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	}).AnyTimes()
	return b
}

// Exchange expects cmd to be written and answers it with reply.
func (b *MockSequenceBuilder) Exchange(cmd, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd+"\r")).DoAndReturn(func(p []byte) (int, error) {
			b.replies <- []byte(reply)
			return len(p), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Exchange("AT", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Exchange("ATE0", "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) VerboseErrors() *MockSequenceBuilder {
	return b.Exchange("AT+CMEE=2", "OK\r\n")
}

func (b *MockSequenceBuilder) Info() *MockSequenceBuilder {
	return b.Exchange("ATI", "Quectel\r\nEG25\r\nRevision: EG25GGBR07A08M2G\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?", "+CPIN: SIM PIN\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?", "+CPIN: READY\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EnterPIN(pin string) *MockSequenceBuilder {
	return b.Exchange(`AT+CPIN="`+pin+`"`, "OK\r\n")
}

func (b *MockSequenceBuilder) SMSTextMode() *MockSequenceBuilder {
	return b.Exchange("AT+CMGF=1", "OK\r\n").
		Exchange(`AT+CSCS="GSM"`, "OK\r\n").
		Exchange("AT+CNMI=2,1,0,0,0", "OK\r\n")
}

// Payload expects a prompt exchange for cmd followed by payload, Ctrl-Z and
// a flush, answered with reply.
func (b *MockSequenceBuilder) Payload(cmd, payload, reply string) *MockSequenceBuilder {
	b.Exchange(cmd, "\r\n> ")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(payload+"\x1a")).DoAndReturn(func(p []byte) (int, error) {
			b.replies <- []byte(reply)
			return len(p), nil
		}),
		b.transport.EXPECT().Flush().Return(nil),
	)
	return b
}

// Close expects the transport to be closed, which ends the reader.
func (b *MockSequenceBuilder) Close(err error) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Close().DoAndReturn(func() error {
			close(b.replies)
			return err
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// Next starts a new sequence on the same transport and reply queue.
func (b *MockSequenceBuilder) Next() *MockSequenceBuilder {
	b.calls = []any{}
	return b
}

// initMockCalls returns the successful initialization sequence.
func initMockCalls(b *MockSequenceBuilder) *MockSequenceBuilder {
	return b.AT().
		EchoOff().
		VerboseErrors().
		Info().
		SimReady().
		SMSTextMode()
}
