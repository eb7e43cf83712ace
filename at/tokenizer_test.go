package at_test

import (
	"bufio"
	"strings"
	"testing"

	"i4.energy/across/cellular/at"
)

func TestSplitter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Simple AT command response",
			input:    "AT+CSQ\r\n+CSQ: 15,99\r\nOK\r\n",
			expected: []string{"AT+CSQ", "+CSQ: 15,99", "OK"},
		},
		{
			name:     "AT command with error",
			input:    "AT+CPIN?\r\n+CME ERROR: 10\r\n",
			expected: []string{"AT+CPIN?", "+CME ERROR: 10"},
		},
		{
			name:     "SMS sending sequence",
			input:    "AT+CMGS=\"+1234567890\"\r\n> Hello World!\x1A\r\n+CMGS: 123\r\nOK\r\n",
			expected: []string{"AT+CMGS=\"+1234567890\"", "> ", "Hello World!\x1A", "+CMGS: 123", "OK"},
		},
		{
			name:     "Network registration check",
			input:    "AT+CREG?\r\n+CREG: 0,1\r\nOK\r\n",
			expected: []string{"AT+CREG?", "+CREG: 0,1", "OK"},
		},
		{
			name:     "Multiple AT commands",
			input:    "ATI\r\nQuectel\r\nBG96\r\nRevision: BG96MAR02A07M1G\r\nOK\r\n",
			expected: []string{"ATI", "Quectel", "BG96", "Revision: BG96MAR02A07M1G", "OK"},
		},
		{
			name:     "URC mixed with AT response",
			input:    "AT+CSQ\r\n+CMTI: \"SM\",1\r\n+CSQ: 20,99\r\nOK\r\n",
			expected: []string{"AT+CSQ", "+CMTI: \"SM\",1", "+CSQ: 20,99", "OK"},
		},
		{
			name:     "SMS prompt only",
			input:    "> ",
			expected: []string{"> "},
		},
		{
			name:     "Empty lines handling",
			input:    "\r\n\r\nAT\r\nOK\r\n\r\n",
			expected: []string{"", "", "AT", "OK", ""},
		},
		{
			name:     "Multiple URCs",
			input:    "+CMTI: \"SM\",1\r\n+CMTI: \"SM\",2\r\nRING\r\n+CMTI: \"SM\",3\r\n",
			expected: []string{"+CMTI: \"SM\",1", "+CMTI: \"SM\",2", "RING", "+CMTI: \"SM\",3"},
		},
		{
			name:     "Call flow with RING",
			input:    "ATD+1234567890;\r\nOK\r\nRING\r\nRING\r\nNO CARRIER\r\n",
			expected: []string{"ATD+1234567890;", "OK", "RING", "RING", "NO CARRIER"},
		},
		// EOF scenarios - testing atEOF functionality
		{
			name:     "Incomplete command at EOF",
			input:    "AT+CSQ\r\n+CSQ: 15,99",
			expected: []string{"AT+CSQ", "+CSQ: 15,99"},
		},
		{
			name:     "Command without CRLF at EOF",
			input:    "AT+CPIN",
			expected: []string{"AT+CPIN"},
		},
		{
			name:     "SMS text without terminator at EOF",
			input:    "AT+CMGS=\"+123\"\r\n> Hello World",
			expected: []string{"AT+CMGS=\"+123\"", "> ", "Hello World"},
		},
		{
			name:     "Response cut off mid-stream at EOF",
			input:    "AT+CSQ\r\n+CSQ: 15,99\r\nOK\r\n+CMTI: \"SM\",1",
			expected: []string{"AT+CSQ", "+CSQ: 15,99", "OK", "+CMTI: \"SM\",1"},
		},
		{
			name:     "Partial SMS prompt at EOF",
			input:    "AT+CMGS=\"+123\"\r\n>",
			expected: []string{"AT+CMGS=\"+123\"", ">"},
		},
		{
			name:     "Mixed complete and incomplete at EOF",
			input:    "ATI\r\nQuectel\r\nBG96",
			expected: []string{"ATI", "Quectel", "BG96"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tokens []string
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Split(at.Splitter)

			for scanner.Scan() {
				tokens = append(tokens, scanner.Text())
			}

			if err := scanner.Err(); err != nil {
				t.Fatalf("Scanner error: %v", err)
			}

			if len(tokens) != len(tt.expected) {
				t.Fatalf("Expected %d tokens, got %d.\nExpected: %v\nGot: %v",
					len(tt.expected), len(tokens), tt.expected, tokens)
			}

			for i, expected := range tt.expected {
				if tokens[i] != expected {
					t.Errorf("Token %d: expected %q, got %q", i, expected, tokens[i])
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected at.ResponseType
	}{
		// Final responses
		{name: "OK response", input: "OK", expected: at.TypeFinal},
		{name: "ERROR response", input: "ERROR", expected: at.TypeFinal},
		{name: "CME Error", input: "+CME ERROR: 30", expected: at.TypeFinal},
		{name: "CMS Error", input: "+CMS ERROR: 500", expected: at.TypeFinal},
		// {name: "NO CARRIER", input: "NO CARRIER", expected: at.TypeFinal},

		// URCs
		{name: "New message URC", input: "+CMTI: \"SM\",1", expected: at.TypeURC},
		{name: "Incoming call URC", input: "RING", expected: at.TypeURC},

		// Data responses
		{name: "AT command", input: "AT+CSQ", expected: at.TypeData},
		{name: "Signal quality response", input: "+CSQ: 15,99", expected: at.TypeData},
		{name: "PIN status", input: "+CPIN: READY", expected: at.TypeData},
		{name: "Network registration", input: "+CREG: 0,1", expected: at.TypeData},
		{name: "SMS send result", input: "+CMGS: 123", expected: at.TypeData},
		{name: "Device info", input: "Quectel", expected: at.TypeData},

		// Prompt
		{name: "SMS input prompt", input: "> ", expected: at.TypePrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := at.Classify(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v for input %q", tt.expected, result, tt.input)
			}
		})
	}
}

func TestFindTerminator(t *testing.T) {
	tests := []struct {
		name  string
		input string
		terms []string
		end   int
		term  string
		ok    bool
	}{
		{name: "OK", input: "\r\nOK\r\n", terms: at.DefaultTerminators, end: 6, term: at.TermOK, ok: true},
		{name: "OK without line ending", input: "\r\nOK", terms: at.DefaultTerminators},
		{name: "earliest wins", input: "ERROR\r\nOK\r\n", terms: at.DefaultTerminators, end: 7, term: at.TermError, ok: true},
		{name: "residue after OK", input: "OK\r\nRING\r\n", terms: at.DefaultTerminators, end: 4, term: at.TermOK, ok: true},
		{name: "CME error waits for line end", input: "+CME ERROR: 10", terms: at.DefaultTerminators},
		{name: "CME error with line end", input: "+CME ERROR: 10\r\nOK\r\n", terms: at.DefaultTerminators, end: 16, term: at.CmeError, ok: true},
		{name: "CMS error text contains ERROR", input: "+CMS ERROR: SMSC ERROR\r\n", terms: at.DefaultTerminators, end: 24, term: at.CmsError, ok: true},
		{name: "prompt", input: "\r\n> ", terms: []string{at.TermPrompt, at.TermError}, end: 3, term: at.TermPrompt, ok: true},
		{name: "no terminator", input: "+CSQ: 15,99\r\n", terms: at.DefaultTerminators},
		{name: "empty term ignored", input: "OK\r\n", terms: []string{"", at.TermOK}, end: 4, term: at.TermOK, ok: true},
		{name: "OK ending a body line", input: "+CMGL: 1,\"REC READ\",\"+1\"\r\nReply OK\r\n", terms: at.DefaultTerminators},
		{name: "OK after a body ending in OK", input: "Reply OK\r\n\r\nOK\r\n", terms: at.DefaultTerminators, end: 16, term: at.TermOK, ok: true},
		{name: "ERROR inside a line", input: "+CUSD: 0,\"NO ERROR\r\n", terms: at.DefaultTerminators},
		{name: "CME error inside a line", input: "text +CME ERROR: 10\r\n", terms: at.DefaultTerminators},
		{name: "prompt inside a line", input: "a > b", terms: []string{at.TermPrompt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, term, ok := at.FindTerminator([]byte(tt.input), tt.terms)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if end != tt.end || term != tt.term {
				t.Errorf("expected (%d, %q), got (%d, %q)", tt.end, tt.term, end, term)
			}
		})
	}
}

func TestResponseError(t *testing.T) {
	tests := []struct {
		input string
		line  string
		ok    bool
	}{
		{input: "\r\nOK\r\n"},
		{input: "\r\nERROR\r\n", line: "ERROR", ok: true},
		{input: "+CME ERROR: incorrect password\r\n", line: "+CME ERROR: incorrect password", ok: true},
		{input: "\r\n+CMS ERROR: 500\r\n", line: "+CMS ERROR: 500", ok: true},
	}

	for _, tt := range tests {
		line, ok := at.ResponseError(tt.input)
		if ok != tt.ok || line != tt.line {
			t.Errorf("ResponseError(%q) = %q, %v; want %q, %v", tt.input, line, ok, tt.line, tt.ok)
		}
	}
}
