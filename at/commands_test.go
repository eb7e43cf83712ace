package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/cellular/at"
)

func TestCheckParam(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{input: "+491701234567", valid: true},
		{input: "*100#", valid: true},
		{input: "internet.provider.de", valid: true},
		{input: "", valid: true},
		{input: "+123\"\rAT+CFUN=0\r"},
		{input: "+123\""},
		{input: "1234\r"},
		{input: "1234\n"},
		{input: "12\x1a34"},
		{input: "\x7f"},
	}

	for _, tt := range tests {
		err := at.CheckParam(tt.input)
		if tt.valid && err != nil {
			t.Errorf("CheckParam(%q): unexpected error: %v", tt.input, err)
		}
		if !tt.valid && !errors.Is(err, at.ErrInvalidParameter) {
			t.Errorf("CheckParam(%q): expected ErrInvalidParameter, got: %v", tt.input, err)
		}
	}
}

func TestCheckPayload(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{input: "Hello World", valid: true},
		{input: "line one\r\nline two", valid: true},
		{input: "hello\x1aAT+CFUN=0\r"},
		{input: "\x1b"},
	}

	for _, tt := range tests {
		err := at.CheckPayload([]byte(tt.input))
		if tt.valid && err != nil {
			t.Errorf("CheckPayload(%q): unexpected error: %v", tt.input, err)
		}
		if !tt.valid && !errors.Is(err, at.ErrInvalidParameter) {
			t.Errorf("CheckPayload(%q): expected ErrInvalidParameter, got: %v", tt.input, err)
		}
	}
}
