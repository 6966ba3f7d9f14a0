package fastcgi

import "context"

// Handler is the one interface a user implements per application.
// Respond is invoked once the empty STDIN record completes the request
// body, and again for each delivered callback message; the empty PARAMS
// record only advances the state machine. done reports whether the
// request is now complete and should receive END_REQUEST.
type Handler interface {
	Respond(ctx context.Context, r *Request) (done bool, err error)
}

// InHandler is an optional interface a Handler may also implement to
// observe partial STDIN arrivals before the body is complete.
type InHandler interface {
	InHandler(bytesReceived int)
}

// InProcessor is an optional interface a Handler may implement to claim
// a POST body the built-in urlencoded/multipart parser does not
// recognize. InProcess returns true if it fully handled the buffer;
// false falls through to the BadContentType error policy.
type InProcessor interface {
	InProcess() (handled bool)
}

// ErrorHandler is an optional interface a Handler may implement to
// observe runtime errors raised while processing its request.
type ErrorHandler interface {
	HandleError(err error)
}

// BigPostErrorHandler is an optional interface a Handler may implement
// to write its own response when ContentLength exceeds the configured
// maximum; the default behavior writes a bare 413 status line.
type BigPostErrorHandler interface {
	HandleBigPost()
}

// HandlerFactory constructs the Handler for one newly accepted request.
// It is supplied to the Manager at construction and invoked exactly
// once per RequestId, the moment that id's BEGIN_REQUEST arrives.
type HandlerFactory func(id RequestId, role Role, keepAlive bool) Handler
