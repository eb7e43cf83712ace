package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"
	Esc    = "\x1b"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcMessageReport  = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"

	// Response prefixes
	PrefixList        = "+CMGL:"
	PrefixSim         = "+CPIN:"
	PrefixCREG        = "+CREG:"
	PrefixCGREG       = "+CGREG:"
	PrefixCEREG       = "+CEREG:"
	PrefixSignal      = "+CSQ:"
	PrefixSendResult  = "+CMGS:"
	PrefixUSSD        = "+CUSD:"
	PrefixClock       = "+CCLK:"
	PrefixAttach      = "+CGATT:"
	PrefixPDPAddress  = "+CGPADDR:"
	PrefixSimReady    = "READY"
	PrefixSimPin      = "SIM PIN"
	PrefixSimPuk      = "SIM PUK"
	PrefixPhoneSimPin = "PH_SIM PIN"
	PrefixPhoneSimPuk = "PH_SIM PUK"
)

// Terminators recognized in an accumulated response buffer.
const (
	TermOK     = OK + CRLF
	TermError  = ERROR + CRLF
	TermPrompt = ">"
)

// Commands
const (
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdInfo          = "ATI"
	CmdSimStatus     = "AT+CPIN?"
	CmdSetTextMode   = "AT+CMGF=1"
	CmdCharsetGSM    = `AT+CSCS="GSM"`
	CmdNewMsgNotify  = "AT+CNMI=2,1,0,0,0"
	CmdCREG          = "AT+CREG?"
	CmdCGREG         = "AT+CGREG?"
	CmdCEREG         = "AT+CEREG?"
	CmdActivatePDP   = "AT+QIACT=1"
	CmdDeactivatePDP = "AT+QIDEACT=1"
	CmdAttach        = "AT+CGATT=1"
	CmdSignal        = "AT+CSQ"
	CmdClock         = "AT+CCLK?"
	CmdAttachStatus  = "AT+CGATT?"
	CmdPDPAddress    = "AT+CGPADDR=1"
)

// Message storage filters accepted by AT+CMGL in text mode.
const (
	StatusUnread = "REC UNREAD"
	StatusRead   = "REC READ"
	StatusUnsent = "STO UNSENT"
	StatusSent   = "STO SENT"
	StatusAll    = "ALL"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)
