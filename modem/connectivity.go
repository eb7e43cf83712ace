package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/atomic"
	"i4.energy/across/cellular/at"
)

// SimState is the state of the SIM card. The values match the status codes
// reported by the modem, and unknown codes map to SimError.
type SimState int

const (
	SimError           SimState = at.SimCodeError
	SimReady           SimState = at.SimCodeReady
	SimLocked          SimState = at.SimCodeLocked
	SimAntiTheftLocked SimState = at.SimCodeAntiTheft
)

// SimStateFromCode maps a modem SIM status code to a SimState.
func SimStateFromCode(code int) SimState {
	switch s := SimState(code); s {
	case SimReady, SimLocked, SimAntiTheftLocked:
		return s
	default:
		return SimError
	}
}

func (s SimState) String() string {
	switch s {
	case SimReady:
		return "ready"
	case SimLocked:
		return "locked"
	case SimAntiTheftLocked:
		return "anti-theft locked"
	default:
		return "error"
	}
}

// Outcome is the result of Connect. Each failure point has its own value.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeConnected
	OutcomeSimLocked
	OutcomeSimNotReady
	OutcomeRegistrationTimeout
	OutcomeGprsFailed
	OutcomeDNSConfigFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeSimLocked:
		return "sim locked"
	case OutcomeSimNotReady:
		return "sim not ready"
	case OutcomeRegistrationTimeout:
		return "registration timeout"
	case OutcomeGprsFailed:
		return "gprs failed"
	case OutcomeDNSConfigFailed:
		return "dns config failed"
	default:
		return "none"
	}
}

// Connectivity states.
const (
	StateUnregistered         = "unregistered"
	StateSimCheck             = "sim_check"
	StateSimLocked            = "sim_locked"
	StateSimReady             = "sim_ready"
	StateAwaitingRegistration = "awaiting_registration"
	StateRegistered           = "registered"
	StateNoAPNRequested       = "no_apn_requested"
	StateAttachingGprs        = "attaching_gprs"
	StateGprsAttached         = "gprs_attached"
	StateConfiguringDNS       = "configuring_dns"
	StateConnected            = "connected"
	StateFailed               = "failed"
)

const (
	evCheckSim          = "check_sim"
	evSimLocked         = "sim_locked"
	evSimReady          = "sim_ready"
	evAwaitRegistration = "await_registration"
	evRegistered        = "registered"
	evSkipAPN           = "skip_apn"
	evAttach            = "attach"
	evAttached          = "attached"
	evConfigureDNS      = "configure_dns"
	evConnected         = "connected"
	evFail              = "fail"
)

// RegistrationPoll controls AwaitRegistration.
type RegistrationPoll struct {
	// Timeout bounds the wait unless WaitForever is set.
	Timeout time.Duration
	// Interval is the delay between registration queries.
	Interval time.Duration
	// WaitForever ignores Timeout; only the context ends the wait.
	WaitForever bool
	// OnPoll is called once per unsuccessful poll.
	OnPoll func()
}

// ConnectParams are the arguments of Connect. An empty APN stops after
// network registration, which is enough for SMS.
type ConnectParams struct {
	APN         string
	User        string
	Password    string
	WaitForever bool
}

// ConnectivityConfig tunes a Connectivity. Zero values are replaced by the
// defaults of Config.
type ConnectivityConfig struct {
	CommandTimeout   time.Duration
	AttachTimeout    time.Duration
	Registration     RegistrationPoll
	AttachRetryDelay time.Duration
	DNSPrimary       string
	DNSSecondary     string
	Logger           *slog.Logger
}

// Connectivity sequences SIM check, network registration, packet data
// attach and DNS configuration over a Commander.
type Connectivity struct {
	cmd    Commander
	config ConnectivityConfig
	logger *slog.Logger

	// mu serializes Connect attempts.
	mu      sync.Mutex
	machine *fsm.FSM
	outcome atomic.Int32
}

// NewConnectivity creates a state machine in StateUnregistered.
func NewConnectivity(cmd Commander, config ConnectivityConfig) *Connectivity {
	defaults := Config{}
	defaults.setDefaults()
	if config.CommandTimeout == 0 {
		config.CommandTimeout = defaults.atTimeout
	}
	if config.AttachTimeout == 0 {
		config.AttachTimeout = defaults.attachTimeout
	}
	if config.Registration.Timeout == 0 {
		config.Registration.Timeout = defaults.registration.Timeout
	}
	if config.Registration.Interval == 0 {
		config.Registration.Interval = defaults.registration.Interval
	}
	if config.AttachRetryDelay == 0 {
		config.AttachRetryDelay = defaults.attachRetryDelay
	}
	if config.DNSPrimary == "" {
		config.DNSPrimary = defaults.dnsPrimary
	}
	if config.DNSSecondary == "" {
		config.DNSSecondary = defaults.dnsSecondary
	}
	if config.Logger == nil {
		config.Logger = defaults.logger
	}

	c := &Connectivity{
		cmd:    cmd,
		config: config,
		logger: config.Logger,
	}

	active := []string{
		StateUnregistered, StateSimCheck, StateSimLocked, StateSimReady,
		StateAwaitingRegistration, StateRegistered, StateNoAPNRequested,
		StateAttachingGprs, StateGprsAttached, StateConfiguringDNS,
	}
	c.machine = fsm.NewFSM(
		StateUnregistered,
		fsm.Events{
			{Name: evCheckSim, Src: []string{StateUnregistered}, Dst: StateSimCheck},
			{Name: evSimLocked, Src: []string{StateSimCheck}, Dst: StateSimLocked},
			{Name: evSimReady, Src: []string{StateSimCheck}, Dst: StateSimReady},
			{Name: evAwaitRegistration, Src: []string{StateSimReady}, Dst: StateAwaitingRegistration},
			{Name: evRegistered, Src: []string{StateAwaitingRegistration}, Dst: StateRegistered},
			{Name: evSkipAPN, Src: []string{StateRegistered}, Dst: StateNoAPNRequested},
			{Name: evAttach, Src: []string{StateRegistered}, Dst: StateAttachingGprs},
			{Name: evAttached, Src: []string{StateAttachingGprs}, Dst: StateGprsAttached},
			{Name: evConfigureDNS, Src: []string{StateGprsAttached}, Dst: StateConfiguringDNS},
			{Name: evConnected, Src: []string{StateConfiguringDNS, StateNoAPNRequested}, Dst: StateConnected},
			{Name: evFail, Src: active, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Info("Connectivity state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
	return c
}

// State returns the current state name.
func (c *Connectivity) State() string {
	return c.machine.Current()
}

// Outcome returns the result of the last finished Connect, or OutcomeNone.
func (c *Connectivity) Outcome() Outcome {
	return Outcome(c.outcome.Load())
}

// QuerySimState issues one SIM status query.
func (c *Connectivity) QuerySimState(ctx context.Context) (SimState, error) {
	resp, err := c.cmd.Send(ctx, at.CmdSimStatus, c.config.CommandTimeout)
	if err != nil {
		return SimError, fmt.Errorf("query SIM status: %w", err)
	}
	code, err := at.ParseSimCode(resp.Text)
	if err != nil {
		return SimError, fmt.Errorf("query SIM status: %w", err)
	}
	return SimStateFromCode(code), nil
}

// Unlock enters pin when the SIM is locked and reports whether the device
// accepted it. A ready SIM reports true without sending the PIN. A failed or
// anti-theft locked SIM reports false without sending the PIN.
func (c *Connectivity) Unlock(ctx context.Context, pin string) (bool, error) {
	if err := at.CheckParam(pin); err != nil {
		return false, fmt.Errorf("unlock SIM: %w", err)
	}
	state, err := c.QuerySimState(ctx)
	if err != nil {
		return false, err
	}

	switch state {
	case SimReady:
		return true, nil
	case SimLocked:
	default:
		c.logger.Warn("Refusing to unlock SIM", "state", state)
		return false, nil
	}

	c.logger.Info("Unlocking SIM")
	resp, err := c.cmd.Send(ctx, at.UnlockSim(pin), c.config.CommandTimeout)
	if err != nil {
		return false, fmt.Errorf("unlock SIM: %w", err)
	}
	return resp.OK(), nil
}

// IsRegistered queries the EPS, GPRS and CS registration status in turn and
// reports whether any of them is home or roaming.
func (c *Connectivity) IsRegistered(ctx context.Context) (bool, error) {
	queries := []struct{ cmd, prefix string }{
		{at.CmdCEREG, at.PrefixCEREG},
		{at.CmdCGREG, at.PrefixCGREG},
		{at.CmdCREG, at.PrefixCREG},
	}
	for _, q := range queries {
		resp, err := c.cmd.Send(ctx, q.cmd, c.config.CommandTimeout)
		if err != nil {
			return false, err
		}
		if !resp.OK() {
			continue
		}
		stat, err := at.ParseRegistration(resp.Text, q.prefix)
		if err != nil {
			c.logger.Debug("Unparsable registration status", "cmd", q.cmd, "error", err)
			continue
		}
		if stat.Registered() {
			return true, nil
		}
	}
	return false, nil
}

// AwaitRegistration polls the registration status every poll.Interval until
// the modem is registered or poll.Timeout elapses. With poll.WaitForever
// only ctx ends the wait. Zero fields of poll fall back to the configured
// defaults.
//
// It returns false without error on timeout. Command timeouts are retried;
// a closed transport or a cancelled ctx ends the wait with an error.
func (c *Connectivity) AwaitRegistration(ctx context.Context, poll RegistrationPoll) (bool, error) {
	if poll.Timeout == 0 {
		poll.Timeout = c.config.Registration.Timeout
	}
	if poll.Interval <= 0 {
		poll.Interval = c.config.Registration.Interval
	}
	if poll.OnPoll == nil {
		poll.OnPoll = c.config.Registration.OnPoll
	}

	c.logger.Info("Waiting for network registration", "timeout", poll.Timeout, "wait_forever", poll.WaitForever)

	var deadline <-chan time.Time
	if !poll.WaitForever {
		timer := time.NewTimer(max(poll.Timeout, 0))
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(poll.Interval)
	defer ticker.Stop()

	for {
		ok, err := c.IsRegistered(ctx)
		switch {
		case err == nil && ok:
			return true, nil
		case errors.Is(err, ErrTransportClosed):
			return false, err
		case err != nil:
			c.logger.Debug("Registration query failed", "error", err)
		}

		if poll.OnPoll != nil {
			poll.OnPoll()
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline:
			return false, nil
		case <-ticker.C:
		}
	}
}

// AttachPacketData configures the PDP context and activates it, retrying
// every AttachRetryDelay until the device accepts. It blocks until success,
// a closed transport or the end of ctx; callers wanting a bound wrap ctx
// with a deadline.
func (c *Connectivity) AttachPacketData(ctx context.Context, apn, user, pass string) (bool, error) {
	if err := checkParams(apn, user, pass); err != nil {
		return false, fmt.Errorf("attach packet data: %w", err)
	}
	c.logger.Info("Attaching packet data", "apn", apn)

	for attempt := 1; ; attempt++ {
		err := c.attachOnce(ctx, apn, user, pass)
		if err == nil {
			c.logger.Info("Packet data attached", "attempts", attempt)
			return true, nil
		}
		if errors.Is(err, ErrTransportClosed) {
			return false, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.logger.Debug("Packet data attach failed, retrying", "attempt", attempt, "error", err)

		if c.config.Registration.OnPoll != nil {
			c.config.Registration.OnPoll()
		}
		if err := sleep(ctx, c.config.AttachRetryDelay); err != nil {
			return false, err
		}
	}
}

func (c *Connectivity) attachOnce(ctx context.Context, apn, user, pass string) error {
	// a context left active by an earlier session makes QIACT fail
	if _, err := c.cmd.Send(ctx, at.CmdDeactivatePDP, c.config.AttachTimeout); err != nil {
		return err
	}
	if err := expectOK(ctx, c.cmd, at.PDPContext(apn, user, pass), c.config.CommandTimeout); err != nil {
		return err
	}
	if err := expectOK(ctx, c.cmd, at.CmdActivatePDP, c.config.AttachTimeout); err != nil {
		return err
	}
	return expectOK(ctx, c.cmd, at.CmdAttach, c.config.AttachTimeout)
}

// ConfigureDNS sets the DNS servers and reports whether the device answered OK.
func (c *Connectivity) ConfigureDNS(ctx context.Context, primary, secondary string) (bool, error) {
	if err := checkParams(primary, secondary); err != nil {
		return false, fmt.Errorf("configure DNS: %w", err)
	}
	resp, err := c.cmd.Send(ctx, at.DNSConfig(primary, secondary), c.config.CommandTimeout)
	if err != nil {
		return false, fmt.Errorf("configure DNS: %w", err)
	}
	return resp.OK(), nil
}

// Connect runs SIM check, registration, packet data attach and DNS
// configuration in order and stops at the first failure. A new attempt
// may be made from any state.
//
// The SIM is never unlocked here; a locked SIM yields OutcomeSimLocked and
// callers use Unlock before trying again. Parameters that cannot be sent
// to the device fail with ErrInvalidParameter before any command is issued.
func (c *Connectivity) Connect(ctx context.Context, params ConnectParams) (Outcome, error) {
	if err := checkParams(params.APN, params.User, params.Password); err != nil {
		return OutcomeNone, fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.machine.SetState(StateUnregistered)
	c.outcome.Store(int32(OutcomeNone))

	c.event(ctx, evCheckSim)
	state, err := c.QuerySimState(ctx)
	if err != nil {
		return c.fail(ctx, OutcomeSimNotReady, err)
	}
	switch state {
	case SimReady:
		c.event(ctx, evSimReady)
	case SimLocked:
		c.event(ctx, evSimLocked)
		return c.fail(ctx, OutcomeSimLocked, ErrSimLocked)
	default:
		return c.fail(ctx, OutcomeSimNotReady, fmt.Errorf("%w: %s", ErrSimNotReady, state))
	}

	c.event(ctx, evAwaitRegistration)
	poll := c.config.Registration
	poll.WaitForever = params.WaitForever
	registered, err := c.AwaitRegistration(ctx, poll)
	if !registered {
		if err == nil {
			err = ErrRegistrationTimeout
		}
		return c.fail(ctx, OutcomeRegistrationTimeout, err)
	}
	c.event(ctx, evRegistered)

	if params.APN == "" {
		c.logger.Info("No APN specified, skipping packet data attach")
		c.event(ctx, evSkipAPN)
		return c.succeed(ctx)
	}

	c.event(ctx, evAttach)
	if _, err := c.AttachPacketData(ctx, params.APN, params.User, params.Password); err != nil {
		return c.fail(ctx, OutcomeGprsFailed, err)
	}
	c.event(ctx, evAttached)

	c.event(ctx, evConfigureDNS)
	ok, err := c.ConfigureDNS(ctx, c.config.DNSPrimary, c.config.DNSSecondary)
	if err != nil {
		return c.fail(ctx, OutcomeDNSConfigFailed, err)
	}
	if !ok {
		return c.fail(ctx, OutcomeDNSConfigFailed, fmt.Errorf("%w: DNS configuration", ErrProtocolRejected))
	}

	return c.succeed(ctx)
}

func (c *Connectivity) succeed(ctx context.Context) (Outcome, error) {
	c.event(ctx, evConnected)
	c.outcome.Store(int32(OutcomeConnected))
	return OutcomeConnected, nil
}

func (c *Connectivity) fail(ctx context.Context, outcome Outcome, err error) (Outcome, error) {
	c.event(ctx, evFail)
	c.outcome.Store(int32(outcome))
	c.logger.Warn("Connect failed", "outcome", outcome, "error", err)
	return outcome, err
}

// event fires a transition. Transitions are bookkeeping only, so they run
// even when ctx is already cancelled.
func (c *Connectivity) event(ctx context.Context, name string) {
	if err := c.machine.Event(context.WithoutCancel(ctx), name); err != nil {
		c.logger.Error("Invalid connectivity transition", "event", name, "state", c.machine.Current(), "error", err)
	}
}

// expectOK sends cmd and turns a failure terminator into ErrProtocolRejected.
func expectOK(ctx context.Context, commander Commander, cmd string, timeout time.Duration) error {
	resp, err := commander.Send(ctx, cmd, timeout)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s: %s", ErrProtocolRejected, cmd, resp.rejection())
	}
	return nil
}

func checkParams(values ...string) error {
	for _, v := range values {
		if err := at.CheckParam(v); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
