// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package fastcgi

import "fmt"

// Kind classifies a runtime error so callers can decide policy without
// string-matching.
type Kind int

const (
	// TransientIO is a short read/write against a non-ready socket;
	// ignored, retried by the reactor on the next readiness event.
	TransientIO Kind = iota
	// SocketFatal means a read/write failed outright; the socket is
	// marked invalid and removed, and every request on it is dropped.
	SocketFatal
	// ProtocolViolation means an inbound record's type didn't match the
	// request's current state; the request is terminated with
	// REQUEST_COMPLETE.
	ProtocolViolation
	// UnknownRole means BEGIN_REQUEST declared FILTER or an
	// unrecognized role; the request ends with protocol status
	// UNKNOWN_ROLE.
	UnknownRole
	// OversizePost means content_length exceeded the configured
	// max-post-size; bigPostErrorHandler runs, then END_REQUEST.
	OversizePost
	// BadContentType means the POST body declared a content-type the
	// built-in parser doesn't recognize and inProcessor() didn't claim
	// it either.
	BadContentType
	// EncoderFault means UTF-8 conversion of output text failed; the
	// offending buffered bytes are abandoned, the request continues.
	EncoderFault
	// FatalInit means a second Manager was constructed in this
	// process.
	FatalInit
)

func (k Kind) String() string {
	switch k {
	case TransientIO:
		return "TransientIO"
	case SocketFatal:
		return "SocketFatal"
	case ProtocolViolation:
		return "ProtocolViolation"
	case UnknownRole:
		return "UnknownRole"
	case OversizePost:
		return "OversizePost"
	case BadContentType:
		return "BadContentType"
	case EncoderFault:
		return "EncoderFault"
	case FatalInit:
		return "FatalInit"
	default:
		return "Unknown"
	}
}

// Error is a runtime error tagged with its Kind, so callers can test
// with errors.Is against the Kind-only sentinels below.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("fastcgi: %s: %s", e.Kind, e.Msg)
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, ErrProtocolViolation) works regardless of Msg.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel values for errors.Is comparisons against a Kind regardless of
// message.
var (
	ErrProtocolViolation = &Error{Kind: ProtocolViolation}
	ErrUnknownRole       = &Error{Kind: UnknownRole}
	ErrOversizePost      = &Error{Kind: OversizePost}
	ErrBadContentType    = &Error{Kind: BadContentType}
	ErrFatalInit         = &Error{Kind: FatalInit}
)
