package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/atomic"
	"i4.energy/across/cellular/at"
	"i4.energy/across/cellular/mux"
)

// Model identifies the modem variant reported by ATI.
type Model int

const (
	ModelUnsupported Model = iota
	ModelEC200
	ModelEG25
)

func (m Model) String() string {
	switch m {
	case ModelEC200:
		return "EC200"
	case ModelEG25:
		return "EG25"
	default:
		return "unsupported"
	}
}

// Modem represents a cellular modem that communicates via AT commands.
// It owns the command channel to the device, the pool of socket
// identifiers multiplexed over it and the connectivity state machine.
//
// The command channel runs one exchange at a time; concurrent callers are
// queued in call order.
type Modem struct {
	// channel carries every command to the device
	channel *Channel
	// sockets hands out connect IDs for logical connections
	sockets *mux.Pool
	// network drives SIM, registration and packet data state
	network *Connectivity
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger
	// model is detected during initialization
	model Model
	// closed indicates if the modem has been shut down
	closed atomic.Bool
}

// pollConfig defines configuration for polling operations like waiting for SIM readiness.
type pollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection and runs the initialization
// sequence: echo off, verbose errors, model detection, SIM unlock with the
// configured PIN and SMS text mode.
//
// Returns an error if the transport connection or modem initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	sockets, err := mux.NewPool(config.socketCount)
	if err != nil {
		transport.Close()
		return nil, err
	}

	channel := NewChannel(transport, config.logger.With("component", "channel"))
	m := &Modem{
		channel: channel,
		sockets: sockets,
		config:  config,
		logger:  config.logger,
		network: NewConnectivity(channel, ConnectivityConfig{
			CommandTimeout: config.atTimeout,
			AttachTimeout:  config.attachTimeout,
			Registration: RegistrationPoll{
				Timeout:  config.registration.Timeout,
				Interval: config.registration.Interval,
				OnPoll:   config.liveness,
			},
			AttachRetryDelay: config.attachRetryDelay,
			DNSPrimary:       config.dnsPrimary,
			DNSSecondary:     config.dnsSecondary,
			Logger:           config.logger.With("component", "connectivity"),
		}),
	}

	initCtx := ctx
	if config.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.initTimeout)
		defer cancel()
	}

	if err := m.init(initCtx); err != nil {
		channel.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// Close shuts down the modem and releases all resources.
// It closes the command channel together with its transport. After calling
// Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	return m.channel.Close()
}

// Model returns the modem variant detected during initialization.
func (m *Modem) Model() Model {
	return m.model
}

func (m *Modem) String() string {
	return fmt.Sprintf("modem(%s, %d sockets)", m.model, m.sockets.Cap())
}

// Command sends a raw AT command and returns its response. A zero timeout
// uses the configured AT timeout.
func (m *Modem) Command(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	if timeout == 0 {
		timeout = m.config.atTimeout
	}
	return m.exec(ctx, cmd, timeout)
}

// SimState queries the SIM card state.
func (m *Modem) SimState(ctx context.Context) (SimState, error) {
	if err := m.ready(); err != nil {
		return SimError, err
	}
	return m.network.QuerySimState(ctx)
}

// UnlockSIM enters pin when the SIM is locked. See Connectivity.Unlock.
func (m *Modem) UnlockSIM(ctx context.Context, pin string) (bool, error) {
	if err := m.ready(); err != nil {
		return false, err
	}
	return m.network.Unlock(ctx, pin)
}

// IsRegistered reports whether the modem is registered to a network.
func (m *Modem) IsRegistered(ctx context.Context) (bool, error) {
	if err := m.ready(); err != nil {
		return false, err
	}
	return m.network.IsRegistered(ctx)
}

// Connect brings the modem online. See Connectivity.Connect.
func (m *Modem) Connect(ctx context.Context, params ConnectParams) (Outcome, error) {
	if err := m.ready(); err != nil {
		return OutcomeNone, err
	}
	return m.network.Connect(ctx, params)
}

// ConnectivityState returns the current connectivity state and the outcome
// of the last Connect.
func (m *Modem) ConnectivityState() (string, Outcome) {
	return m.network.State(), m.network.Outcome()
}

// SignalQuality returns the received signal strength indicator (0-31, 99
// unknown) and bit error rate.
func (m *Modem) SignalQuality(ctx context.Context) (rssi, ber int, err error) {
	resp, err := m.expectOK(ctx, at.CmdSignal, m.config.atTimeout)
	if err != nil {
		return 0, 0, err
	}
	return at.ParseSignalQuality(resp.Text)
}

// NetworkTime returns the modem clock, which the network sets after
// registration.
func (m *Modem) NetworkTime(ctx context.Context) (at.Timestamp, error) {
	resp, err := m.expectOK(ctx, at.CmdClock, m.config.atTimeout)
	if err != nil {
		return at.Timestamp{}, err
	}
	return at.ParseClock(resp.Text)
}

// PacketDataAttached reports whether the modem is attached to the packet
// domain.
func (m *Modem) PacketDataAttached(ctx context.Context) (bool, error) {
	resp, err := m.expectOK(ctx, at.CmdAttachStatus, m.config.atTimeout)
	if err != nil {
		return false, err
	}
	return at.ParseAttached(resp.Text)
}

// IPAddress returns the address of the packet data context, or "" when the
// context has none.
func (m *Modem) IPAddress(ctx context.Context) (string, error) {
	resp, err := m.expectOK(ctx, at.CmdPDPAddress, m.config.atTimeout)
	if err != nil {
		return "", err
	}
	return at.ParsePDPAddress(resp.Text)
}

// SendUSSD submits a USSD code and returns the network's reply text.
func (m *Modem) SendUSSD(ctx context.Context, code string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	if err := at.CheckParam(code); err != nil {
		return "", fmt.Errorf("USSD code: %w", err)
	}
	resp, err := m.channel.SendUntil(ctx, at.USSD(code), m.config.smsTimeout,
		at.PrefixUSSD, at.TermError, at.CmeError, at.CmsError)
	if err != nil {
		return "", err
	}
	if resp.Rejected() {
		return "", fmt.Errorf("%w: USSD %s: %s", ErrProtocolRejected, code, resp.rejection())
	}
	return at.ParseUSSD(resp.Text)
}

// init performs the initial setup sequence for the modem hardware.
// This method is called during New() and must complete successfully
// before the modem can be used.
func (m *Modem) init(ctx context.Context) error {
	if _, err := m.expectOK(ctx, at.CmdAt, m.config.atTimeout); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if _, err := m.expectOK(ctx, at.CmdEchoOff, m.config.atTimeout); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	if _, err := m.expectOK(ctx, at.CmdVerboseErrors, m.config.atTimeout); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}

	info, err := m.expectOK(ctx, at.CmdInfo, m.config.atTimeout)
	if err != nil {
		return fmt.Errorf("query modem info: %w", err)
	}
	m.model = detectModel(info.Text)

	simState, err := m.network.QuerySimState(ctx)
	if err != nil {
		return err
	}

	switch simState {
	case SimReady:
		// OK

	case SimLocked:
		if m.config.simPIN == "" {
			return ErrSIMPinRequired
		}
		accepted, err := m.network.Unlock(ctx, m.config.simPIN)
		if err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		if !accepted {
			return fmt.Errorf("enter SIM PIN: %w", ErrProtocolRejected)
		}

		if err := m.waitForSIMReady(ctx, m.config.simReady); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %s", ErrSimNotReady, simState)
	}

	if _, err := m.expectOK(ctx, at.CmdSetTextMode, m.config.atTimeout); err != nil {
		return fmt.Errorf("set SMS text mode: %w", err)
	}

	if _, err := m.expectOK(ctx, at.CmdCharsetGSM, m.config.atTimeout); err != nil {
		return fmt.Errorf("set GSM character set: %w", err)
	}

	if _, err := m.expectOK(ctx, at.CmdNewMsgNotify, m.config.atTimeout); err != nil {
		return fmt.Errorf("enable new message indications: %w", err)
	}

	m.logger.Info("Modem initialized", "model", m.model)
	return nil
}

func detectModel(info string) Model {
	switch {
	case strings.Contains(info, "EC200A"):
		return ModelEC200
	case strings.Contains(info, "EG25"):
		return ModelEG25
	default:
		return ModelUnsupported
	}
}

func (m *Modem) ready() error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if m.channel == nil {
		return ErrNotInitialized
	}
	return nil
}

// exec sends an AT command to the modem and waits for the response.
func (m *Modem) exec(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	if err := m.ready(); err != nil {
		return Response{}, err
	}
	return m.channel.Send(ctx, cmd, timeout)
}

// expectOK executes an AT command and validates that the response
// ends with "OK".
func (m *Modem) expectOK(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	resp, err := m.exec(ctx, cmd, timeout)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, fmt.Errorf("%w: %s: %s", ErrProtocolRejected, cmd, resp.rejection())
	}
	return resp, nil
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational. Uses configurable polling interval
// and retry limits to avoid infinite waiting.
func (m *Modem) waitForSIMReady(ctx context.Context, config pollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	for retries := 0; ; retries++ {
		state, err := m.network.QuerySimState(ctx)
		if err != nil {
			// Fail fast on critical errors
			if errors.Is(err, ErrTransportClosed) {
				return fmt.Errorf("SIM status check failed: %w", err)
			}
		} else if state == SimReady {
			return nil
		}

		if retries >= maxRetries {
			return fmt.Errorf("%w after %d retries", ErrSimNotReady, maxRetries)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return fmt.Errorf("SIM not ready: %w", err)
		}
	}
}
