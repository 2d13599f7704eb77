package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies the pipeline stage a failure came from.
type Kind string

const (
	KindTransport     Kind = "TRANSPORT"
	KindEncode        Kind = "ENCODE"
	KindDecode        Kind = "DECODE"
	KindEmptyBody     Kind = "EMPTY_BODY"
	KindConfiguration Kind = "CONFIGURATION"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrTransport     = errors.New("transport failure")
	ErrEncode        = errors.New("command could not be encoded")
	ErrDecode        = errors.New("response could not be decoded")
	ErrEmptyBody     = errors.New("response body is empty")
	ErrConfiguration = errors.New("invalid client configuration")

	// ErrBadServerResponse is wrapped by transport errors caused by a status
	// code other than 200 or 204. Network failures do not match it.
	ErrBadServerResponse = errors.New("bad server response")
)

var kindSentinels = map[Kind]error{
	KindTransport:     ErrTransport,
	KindEncode:        ErrEncode,
	KindDecode:        ErrDecode,
	KindEmptyBody:     ErrEmptyBody,
	KindConfiguration: ErrConfiguration,
}

// Error is the concrete error returned by every stage of the request pipeline.
type Error struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int // set only when the server answered outside 200/204
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Method != "" || e.URL != "" {
		fmt.Fprintf(&b, ": %s %s", e.Method, e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// NewStatusError builds the transport error for a rejected status code.
func NewStatusError(method, url string, status int) *Error {
	return &Error{
		Kind:       KindTransport,
		Method:     method,
		URL:        url,
		StatusCode: status,
		Err:        ErrBadServerResponse,
	}
}

// StatusCode extracts the rejected HTTP status from err, or 0 when err was not
// caused by the status rule.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
