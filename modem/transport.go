package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to a cellular modem.
//
// A Transport is assumed to be already connected and ready for use. Read
// returns whatever bytes are available and may return (0, nil) when nothing
// arrived within the transport's own read timeout. A Read error ends the
// session; io.EOF means the stream was closed. Flush blocks until written
// bytes have been handed to the device.
type Transport interface {
	io.ReadWriteCloser
	Flush() error
}

// Dialer opens a Transport to a cellular modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultReadTimeout bounds a single serial read so that the reader can
// observe shutdown.
const DefaultReadTimeout = 100 * time.Millisecond

// SerialDialer opens a cellular modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB2".
	PortName string
	// BaudRate is used when Mode is nil. Defaults to 115200.
	BaudRate int
	// Mode overrides the complete serial configuration.
	Mode *serial.Mode
	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Dial implements Dialer.
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
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", d.PortName, err)
	}

	return &serialTransport{port: port}, nil
}

// serialTransport adapts a serial.Port to Transport.
type serialTransport struct {
	port serial.Port
}

func (s *serialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if isPortClosed(err) {
		return n, io.EOF
	}
	return n, err
}

func (s *serialTransport) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if isPortClosed(err) {
		return n, io.EOF
	}
	return n, err
}

func (s *serialTransport) Flush() error {
	return s.port.Drain()
}

func (s *serialTransport) Close() error {
	return s.port.Close()
}

func isPortClosed(err error) bool {
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}
