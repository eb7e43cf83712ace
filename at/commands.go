package at

import (
	"bytes"
	"fmt"
	"strconv"
)

// CheckParam reports ErrInvalidParameter when s cannot be sent inside a
// quoted command parameter: it contains a quote or a control character.
// Values are never escaped, so every caller supplied string must pass this
// check before it reaches a command builder.
func CheckParam(s string) error {
	for i := 0; i < len(s); i++ {
		if b := s[i]; b == '"' || b < 0x20 || b == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidParameter, s)
		}
	}
	return nil
}

// CheckPayload reports ErrInvalidParameter when payload contains Ctrl-Z or
// Esc, which would end or abort the payload early.
func CheckPayload(payload []byte) error {
	if i := bytes.IndexAny(payload, CtrlZ+Esc); i >= 0 {
		return fmt.Errorf("%w: control byte %#x at offset %d of payload", ErrInvalidParameter, payload[i], i)
	}
	return nil
}

// UnlockSim builds the command that enters the SIM PIN.
func UnlockSim(pin string) string {
	return fmt.Sprintf(`AT+CPIN="%s"`, pin)
}

// PDPContext builds the BG96 context configuration command for context 1
// with an IPv4 APN.
func PDPContext(apn, user, pass string) string {
	return fmt.Sprintf(`AT+QICSGP=1,1,"%s","%s","%s"`, apn, user, pass)
}

// DNSConfig builds the command that sets the DNS servers of context 1.
func DNSConfig(primary, secondary string) string {
	return fmt.Sprintf(`AT+QIDNSCFG=1,"%s","%s"`, primary, secondary)
}

// SendMessage builds the command that opens the text mode SMS prompt.
func SendMessage(recipient string) string {
	return fmt.Sprintf(`AT+CMGS="%s"`, recipient)
}

// ListMessages builds the text mode listing command for the given status filter.
func ListMessages(status string) string {
	return fmt.Sprintf(`AT+CMGL="%s"`, status)
}

func DeleteMessage(index int) string {
	return "AT+CMGD=" + strconv.Itoa(index)
}

func CloseSocket(id int) string {
	return "AT+QICLOSE=" + strconv.Itoa(id)
}

// USSD builds the command that submits a USSD code with the default
// data coding scheme.
func USSD(code string) string {
	return fmt.Sprintf(`AT+CUSD=1,"%s",15`, code)
}
