package cookies

import (
	"errors"
	"fmt"
)

// Parse failure reasons.
const (
	ReasonEmptyInput  = "empty input"
	ReasonMalformed   = "malformed record"
	ReasonNoCookies   = "no cookies"
	ReasonUnreadable  = "unreadable file"
	ReasonUnsupported = "unsupported shape"
)

// ParseError reports why cookie input could not be turned into cookies.
// Callers may proceed without cookies.
type ParseError struct {
	Reason string
	// Index is the offending record position for ReasonMalformed, else -1.
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	msg := "cookies: " + e.Reason
	if e.Reason == ReasonMalformed {
		msg = fmt.Sprintf("%s at index %d", msg, e.Index)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsEmptyInput reports whether err means no cookie material was supplied.
func IsEmptyInput(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Reason == ReasonEmptyInput
}
