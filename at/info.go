package at

import (
	"fmt"
	"strconv"
	"strings"
)

// SIM status codes reported by the modem driver layer.
const (
	SimCodeError     = 0
	SimCodeReady     = 1
	SimCodeLocked    = 2
	SimCodeAntiTheft = 3
)

// ParseSimCode maps an AT+CPIN? response to its integer status code.
// A "+CME ERROR" response (for example no SIM inserted) is reported as
// SimCodeError rather than as a parse failure.
func ParseSimCode(text string) (int, error) {
	if line, ok := ResponseError(text); ok {
		if strings.HasPrefix(line, CmeError) {
			return SimCodeError, nil
		}
	}

	for _, line := range Lines(text) {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), PrefixSim)
		if !ok {
			continue
		}
		state := strings.TrimSpace(rest)
		switch {
		case strings.HasPrefix(state, PrefixSimReady):
			return SimCodeReady, nil
		case strings.HasPrefix(state, PrefixPhoneSimPin), strings.HasPrefix(state, PrefixPhoneSimPuk):
			return SimCodeAntiTheft, nil
		case strings.HasPrefix(state, PrefixSimPin), strings.HasPrefix(state, PrefixSimPuk):
			return SimCodeLocked, nil
		default:
			// NOT READY, NOT INSERTED and vendor specific states
			return SimCodeError, nil
		}
	}
	return SimCodeError, fmt.Errorf("%w: no %s line in %q", ErrMalformedResponse, PrefixSim, text)
}

// RegStatus is the <stat> value of a network registration response.
type RegStatus int

const (
	RegNotRegistered RegStatus = 0
	RegHome          RegStatus = 1
	RegSearching     RegStatus = 2
	RegDenied        RegStatus = 3
	RegUnknown       RegStatus = 4
	RegRoaming       RegStatus = 5
)

// Registered reports whether the status means attached to a home or
// roaming network.
func (s RegStatus) Registered() bool {
	return s == RegHome || s == RegRoaming
}

func (s RegStatus) String() string {
	switch s {
	case RegNotRegistered:
		return "not registered"
	case RegHome:
		return "home"
	case RegSearching:
		return "searching"
	case RegDenied:
		return "denied"
	case RegRoaming:
		return "roaming"
	default:
		return "unknown"
	}
}

// ParseRegistration reads the status of a "+CREG:", "+CGREG:" or "+CEREG:"
// line. Both the query form (<n>,<stat>,...) and the unsolicited form
// (<stat>,...) are accepted.
func ParseRegistration(text, prefix string) (RegStatus, error) {
	fields, err := infoFields(text, prefix)
	if err != nil {
		return RegUnknown, err
	}

	idx := 0
	if len(fields) >= 2 && !fields[1].quoted {
		idx = 1
	}
	stat, err := strconv.Atoi(fields[idx].value)
	if err != nil || stat < 0 {
		return RegUnknown, fmt.Errorf("%w: registration status %q", ErrMalformedResponse, fields[idx].value)
	}
	return RegStatus(stat), nil
}

// ParseSignalQuality reads "+CSQ: <rssi>,<ber>". An rssi of 99 means unknown.
func ParseSignalQuality(text string) (rssi, ber int, err error) {
	fields, err := infoFields(text, PrefixSignal)
	if err != nil {
		return 0, 0, err
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %d fields in %s line", ErrMalformedResponse, len(fields), PrefixSignal)
	}
	if rssi, err = strconv.Atoi(fields[0].value); err != nil {
		return 0, 0, fmt.Errorf("%w: rssi %q", ErrMalformedResponse, fields[0].value)
	}
	if ber, err = strconv.Atoi(fields[1].value); err != nil {
		return 0, 0, fmt.Errorf("%w: ber %q", ErrMalformedResponse, fields[1].value)
	}
	return rssi, ber, nil
}

// ParseUSSD returns the text of a "+CUSD: <m>,"<str>",<dcs>" line.
func ParseUSSD(text string) (string, error) {
	fields, err := infoFields(text, PrefixUSSD)
	if err != nil {
		return "", err
	}
	if len(fields) < 2 || !fields[1].quoted {
		return "", fmt.Errorf("%w: no text in %s line", ErrMalformedResponse, PrefixUSSD)
	}
	return fields[1].value, nil
}

// ParseClock reads the real time clock from `+CCLK: "YY/MM/DD,HH:MM:SS±OO"`.
func ParseClock(text string) (Timestamp, error) {
	fields, err := infoFields(text, PrefixClock)
	if err != nil {
		return Timestamp{}, err
	}
	if len(fields) != 1 {
		return Timestamp{}, fmt.Errorf("%w: %d fields in %s line", ErrMalformedResponse, len(fields), PrefixClock)
	}
	return ParseTimestamp(fields[0].value)
}

// ParseAttached reads "+CGATT: <state>" and reports whether packet data is
// attached.
func ParseAttached(text string) (bool, error) {
	fields, err := infoFields(text, PrefixAttach)
	if err != nil {
		return false, err
	}
	switch fields[0].value {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: attach state %q", ErrMalformedResponse, fields[0].value)
	}
}

// ParsePDPAddress returns the address of `+CGPADDR: <cid>,"<address>"`. A
// context without an address yields "".
func ParsePDPAddress(text string) (string, error) {
	fields, err := infoFields(text, PrefixPDPAddress)
	if err != nil {
		return "", err
	}
	if _, err := strconv.Atoi(fields[0].value); err != nil {
		return "", fmt.Errorf("%w: context id %q", ErrMalformedResponse, fields[0].value)
	}
	if len(fields) < 2 {
		return "", nil
	}
	switch addr := fields[1].value; addr {
	case "0.0.0.0", "0:0:0:0:0:0:0:0":
		return "", nil
	default:
		return addr, nil
	}
}
