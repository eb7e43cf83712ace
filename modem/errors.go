package modem

import (
	"errors"

	"i4.energy/across/cellular/at"
	"i4.energy/across/cellular/mux"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if initialization failed or if the Modem was not created
	// via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrInvalidSocketCount is returned by the config builder when the socket
	// count does not fit the multiplexing bitmap.
	ErrInvalidSocketCount = errors.New("invalid socket count")

	// ErrTransportClosed is returned when the underlying stream reports
	// closure. The wrapped error carries the transport's own cause.
	ErrTransportClosed = errors.New("transport closed")

	// ErrTimeout is returned when no terminator was seen before the command
	// timeout elapsed. The partial response is discarded.
	ErrTimeout = errors.New("command timeout")

	// ErrProtocolRejected is returned when the device answered a command that
	// was expected to succeed with ERROR, +CME ERROR or +CMS ERROR.
	ErrProtocolRejected = errors.New("command rejected by device")

	// ErrExchangeDone is returned when a payload exchange is used after it
	// was submitted or aborted.
	ErrExchangeDone = errors.New("payload exchange already finished")

	// ErrSimLocked is returned by Connect when the SIM waits for a PIN.
	ErrSimLocked = errors.New("SIM locked")

	// ErrSimNotReady is returned by Connect when the SIM is missing, failed
	// or locked to another device.
	ErrSimNotReady = errors.New("SIM not ready")

	// ErrRegistrationTimeout is returned by Connect when the network
	// registration did not complete in time.
	ErrRegistrationTimeout = errors.New("network registration timeout")

	// Parser and socket pool errors, re-exported for callers of this package.
	ErrMalformedResponse  = at.ErrMalformedResponse
	ErrMalformedTimestamp = at.ErrMalformedTimestamp
	ErrResourceExhausted  = mux.ErrResourceExhausted
	ErrInvalidParameter   = at.ErrInvalidParameter
)
