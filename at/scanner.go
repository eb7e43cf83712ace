package at

import (
	"fmt"
	"strings"
)

// fieldScanner walks a string one byte at a time. Every method either
// consumes what it was asked for or leaves the position untouched.
type fieldScanner struct {
	s   string
	pos int
}

func (sc *fieldScanner) done() bool {
	return sc.pos >= len(sc.s)
}

func (sc *fieldScanner) peek() (byte, bool) {
	if sc.done() {
		return 0, false
	}
	return sc.s[sc.pos], true
}

func (sc *fieldScanner) skip(c byte) bool {
	if b, ok := sc.peek(); ok && b == c {
		sc.pos++
		return true
	}
	return false
}

func (sc *fieldScanner) skipSpaces() {
	for {
		if b, ok := sc.peek(); !ok || b != ' ' {
			return
		}
		sc.pos++
	}
}

// number reads between min and max decimal digits.
func (sc *fieldScanner) number(min, max int) (int, bool) {
	start, n := sc.pos, 0
	for sc.pos-start < max {
		b, ok := sc.peek()
		if !ok || b < '0' || b > '9' {
			break
		}
		n = n*10 + int(b-'0')
		sc.pos++
	}
	if sc.pos-start < min {
		sc.pos = start
		return 0, false
	}
	return n, true
}

// field is one comma separated value of an information response.
type field struct {
	value  string
	quoted bool
}

// splitFields tokenizes the comma separated values of an information
// response such as `1,"REC READ","+123",,"24/03/05,13:45:30+08"`. Commas
// inside quotes belong to the value.
func splitFields(s string) ([]field, error) {
	sc := fieldScanner{s: s}
	var fields []field
	for {
		sc.skipSpaces()
		var f field
		if sc.skip('"') {
			end := strings.IndexByte(sc.s[sc.pos:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote in %q", ErrMalformedResponse, s)
			}
			f = field{value: sc.s[sc.pos : sc.pos+end], quoted: true}
			sc.pos += end + 1
			sc.skipSpaces()
		} else {
			end := strings.IndexByte(sc.s[sc.pos:], ',')
			if end < 0 {
				end = len(sc.s) - sc.pos
			}
			f = field{value: strings.TrimSpace(sc.s[sc.pos : sc.pos+end])}
			sc.pos += end
		}
		fields = append(fields, f)

		if sc.done() {
			return fields, nil
		}
		if !sc.skip(',') {
			return nil, fmt.Errorf("%w: expected ',' at offset %d in %q", ErrMalformedResponse, sc.pos, s)
		}
	}
}

// infoFields returns the tokenized fields of the first line starting with
// prefix, e.g. "+CREG:".
func infoFields(text, prefix string) ([]field, error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return splitFields(strings.TrimSpace(rest))
		}
	}
	return nil, fmt.Errorf("%w: no %s line", ErrMalformedResponse, prefix)
}
