package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings and also
// recognizes the SMS input prompt ("> ").
//
// Important: This splitter assumes "No Echo" mode (ATE0). If echo is enabled,
// it would need modification to handle command echoes that precede the actual
// response.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}

// Lines splits a raw response into its CRLF delimited lines using Splitter.
// Empty lines are dropped.
func Lines(text string) []string {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Split(Splitter)

	var lines []string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// DefaultTerminators end an ordinary command exchange.
var DefaultTerminators = []string{TermOK, TermError, CmeError, CmsError}

// FindTerminator locates the earliest terminator of terms in buf and returns
// the offset just past it. A terminator only counts at the start of a line,
// so "OK" ending a message body does not end the response. A term ending in
// ':' (such as "+CME ERROR:") is a line prefix and only matches once the
// rest of its line, including CRLF, has arrived.
func FindTerminator(buf []byte, terms []string) (end int, term string, ok bool) {
	start := -1
	for _, t := range terms {
		if t == "" {
			continue
		}
		i, e, found := lineStartIndex(buf, t)
		if !found {
			continue
		}
		if start < 0 || i < start {
			start, end, term = i, e, t
		}
	}
	return end, term, start >= 0
}

// lineStartIndex returns the first complete occurrence of t that begins a
// line of buf.
func lineStartIndex(buf []byte, t string) (start, end int, ok bool) {
	for off := 0; off < len(buf); {
		i := bytes.Index(buf[off:], []byte(t))
		if i < 0 {
			return 0, 0, false
		}
		i += off
		off = i + 1
		if i > 0 && buf[i-1] != '\n' {
			continue
		}
		e := i + len(t)
		if strings.HasSuffix(t, ":") {
			nl := bytes.Index(buf[e:], []byte(CRLF))
			if nl < 0 {
				return 0, 0, false
			}
			e += nl + len(CRLF)
		}
		return i, e, true
	}
	return 0, 0, false
}

// ResponseError returns the first failure line of a response, if any.
func ResponseError(text string) (string, bool) {
	for _, line := range Lines(text) {
		line = strings.TrimSpace(line)
		if line == ERROR || strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError) {
			return line, true
		}
	}
	return "", false
}
