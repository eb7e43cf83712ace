package at

import (
	"fmt"
	"strconv"
	"strings"
)

// ListEntry is one record of a message listing (AT+CMGL) response.
type ListEntry struct {
	Index     int
	Status    string // "REC UNREAD", "REC READ", "STO UNSENT", "STO SENT"
	Sender    string
	Alpha     string // phonebook name of the sender, usually empty
	Body      string
	Timestamp Timestamp // zero for stored outgoing messages
}

// ParseList parses a complete message listing response. Each record starts
// with a "+CMGL:" header line and owns every following line up to the next
// header or the end of the response, so bodies may be empty or span several
// lines. Body lines are joined with "\n".
//
// A header that cannot be tokenized fails the whole listing.
func ParseList(text string) ([]ListEntry, error) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	if len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	// strings.Split leaves an empty element after the final line break
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if n := len(lines); n > 0 && lines[n-1] == OK {
		lines = lines[:n-1]
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
	}

	var entries []ListEntry
	var current *ListEntry
	var body []string

	flush := func() {
		if current != nil {
			current.Body = strings.Join(body, "\n")
			entries = append(entries, *current)
		}
		current, body = nil, nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, PrefixList) {
			flush()
			entry, err := parseListHeader(line)
			if err != nil {
				return nil, err
			}
			current = &entry
			continue
		}
		if current == nil {
			// anything ahead of the first header (echo, blank lines) is not a record
			continue
		}
		body = append(body, line)
	}
	flush()

	return entries, nil
}

// parseListHeader reads `+CMGL: <index>,"<stat>","<sender>",["<alpha>"][,"<scts>"]`.
func parseListHeader(line string) (ListEntry, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, PrefixList))
	fields, err := splitFields(rest)
	if err != nil {
		return ListEntry{}, err
	}
	if len(fields) < 3 {
		return ListEntry{}, fmt.Errorf("%w: %d fields in list header %q", ErrMalformedResponse, len(fields), line)
	}

	index, err := strconv.Atoi(fields[0].value)
	if err != nil || fields[0].quoted || index < 0 {
		return ListEntry{}, fmt.Errorf("%w: index %q in list header", ErrMalformedResponse, fields[0].value)
	}
	if !fields[1].quoted || !fields[2].quoted {
		return ListEntry{}, fmt.Errorf("%w: unquoted status or sender in list header %q", ErrMalformedResponse, line)
	}

	entry := ListEntry{
		Index:  index,
		Status: fields[1].value,
		Sender: fields[2].value,
	}
	if len(fields) > 3 {
		entry.Alpha = fields[3].value
	}
	if len(fields) > 4 && fields[4].value != "" {
		ts, err := ParseTimestamp(fields[4].value)
		if err != nil {
			return ListEntry{}, fmt.Errorf("list entry %d: %w", index, err)
		}
		entry.Timestamp = ts
	}
	return entry, nil
}
