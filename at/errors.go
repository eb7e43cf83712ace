package at

import "errors"

var (
	// ErrMalformedResponse is returned when a response does not contain the
	// delimiters or fields its parser expects.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMalformedTimestamp is returned when a timestamp is not of the form
	// YY/MM/DD,HH:MM:SS±OO or one of its components is out of range.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrInvalidParameter is returned when a value cannot be placed in a
	// command line or a payload without changing its meaning, for example a
	// quote or line break inside a phone number.
	ErrInvalidParameter = errors.New("invalid command parameter")
)
