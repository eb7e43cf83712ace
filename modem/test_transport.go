package modem

import (
	"io"
	"strings"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using channels.
// This is needed because the Channel's reader goroutine continuously reads from the transport,
// and we need reads to block until data is available (like a real serial port would).
//
// Replies registered with Respond are queued for reading whenever the
// matching command is written.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	replies  map[string][]string
	writes   []string
	flushes  int
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
		replies:  make(map[string][]string),
	}
}

// Respond registers the replies to a written command, matched without the
// trailing carriage return. Successive writes consume successive replies and
// the last one repeats.
func (t *TestTransport) Respond(cmd string, replies ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = replies
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	cmd := strings.TrimSuffix(string(p), "\r")
	t.writes = append(t.writes, cmd)

	replies := t.replies[cmd]
	if len(replies) == 0 {
		return len(p), nil
	}
	if len(replies) > 1 {
		t.replies[cmd] = replies[1:]
	}
	if replies[0] != "" {
		t.readChan <- []byte(replies[0])
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushes++
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes returns every write so far without its trailing carriage return.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Flushes returns the number of Flush calls.
func (t *TestTransport) Flushes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushes
}
