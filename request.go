package fastcgi

import (
	"context"
	"fmt"
	"sync"

	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/httpenv"
	"github.com/mapscape/gofastcgi/internal/protocol"
)

type reqState int

const (
	stateParams reqState = iota
	stateIn
	stateOut
)

// pendingRecord is one unit of work queued for a request: either a
// reassembled wire record (isWire true) or a callback Message a foreign
// goroutine pushed via Manager.Push.
type pendingRecord struct {
	isWire bool
	header protocol.Header
	body   []byte
	msg    Message
}

// Request is the one per-request handle a Handler is given. It owns the
// PARAMS/IN/OUT state machine, the parsed environment, and the two
// output streams; Handler.Respond and the optional Handler interfaces
// (InHandler, InProcessor, ErrorHandler, BigPostErrorHandler) are the
// only calls into user code.
type Request struct {
	id          RequestId
	role        Role
	keepAlive   bool
	maxPostSize int

	Env *httpenv.Environment
	Out *OutputStream
	Err *OutputStream

	handler Handler
	out     sender

	ctx    context.Context
	cancel context.CancelFunc

	// mu is try-locked by the manager's worker loop: at most one worker
	// ever runs handleWork() for a given request at a time.
	mu sync.Mutex

	queueMu sync.Mutex
	queue   []pendingRecord

	state reqState
	done  bool
}

func newRequest(out sender, id RequestId, role Role, keepAlive bool, maxPostSize int, handler Handler) *Request {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Request{
		id:          id,
		role:        role,
		keepAlive:   keepAlive,
		maxPostSize: maxPostSize,
		Env:         httpenv.NewEnvironment(),
		handler:     handler,
		out:         out,
		ctx:         ctx,
		cancel:      cancel,
	}
	r.Out = newOutputStream(out, id.Socket, id.FcgiID, protocol.Stdout)
	r.Err = newOutputStream(out, id.Socket, id.FcgiID, protocol.Stderr)
	return r
}

// enqueue appends a unit of work for this request. Safe to call from
// any goroutine; does not take mu.
func (r *Request) enqueue(rec pendingRecord) {
	r.queueMu.Lock()
	r.queue = append(r.queue, rec)
	r.queueMu.Unlock()
}

func (r *Request) pop() (pendingRecord, bool) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if len(r.queue) == 0 {
		return pendingRecord{}, false
	}
	rec := r.queue[0]
	r.queue = r.queue[1:]
	return rec, true
}

// handleWork drains the request's pending queue, running the FastCGI state
// machine (or re-invoking Respond for callback messages) until the
// queue is empty or the request completes. The caller must hold r.mu.
// It reports whether the request is now complete and should be erased
// from the registry.
func (r *Request) handleWork() bool {
	for {
		rec, ok := r.pop()
		if !ok {
			return r.done
		}
		if r.done {
			continue
		}
		if !rec.isWire {
			r.invokeRespond()
			continue
		}
		r.processWire(rec.header, rec.body)
	}
}

func (r *Request) processWire(h protocol.Header, body []byte) {
	if h.Type == protocol.AbortRequest {
		r.finish(protocol.RequestComplete)
		return
	}

	switch r.state {
	case stateParams:
		r.processParams(h, body)
	case stateIn:
		r.processIn(h, body)
	default:
		fastcgilog.L().Warnw("request: record after OUT transition",
			"requestId", fmt.Sprintf("%d", r.id.FcgiID), "type", h.Type)
		r.finish(protocol.RequestComplete)
	}
}

func (r *Request) processParams(h protocol.Header, body []byte) {
	if h.Type != protocol.Params {
		r.protocolError(h)
		return
	}

	if len(body) > 0 {
		for len(body) > 0 {
			pair, end, err := protocol.ParsePair(body)
			if err != nil {
				fastcgilog.L().Errorw("request: malformed PARAMS pair", "error", err)
				return
			}
			r.Env.SetParam(pair.Name, pair.Value)
			body = body[end:]
		}
		return
	}

	// Empty PARAMS body: role and max-post-size gates, then advance.
	if r.role != RoleResponder && r.role != RoleAuthorizer {
		r.finish(protocol.UnknownRole)
		return
	}
	if r.maxPostSize > 0 && r.Env.ContentLength > r.maxPostSize {
		if h, ok := r.handler.(BigPostErrorHandler); ok {
			h.HandleBigPost()
		} else {
			r.Out.WriteRaw([]byte("Status: 413 Request Entity Too Large\r\n\r\n"))
		}
		r.finish(protocol.RequestComplete)
		return
	}
	r.state = stateIn
}

func (r *Request) processIn(h protocol.Header, body []byte) {
	if h.Type != protocol.Stdin {
		r.protocolError(h)
		return
	}

	if len(body) > 0 {
		r.Env.AppendPostData(body)
		if ih, ok := r.handler.(InHandler); ok {
			ih.InHandler(len(body))
		}
		return
	}

	// Empty STDIN: body is complete. Give the handler first refusal,
	// then the built-in parser, then invoke Respond.
	handled := false
	if ip, ok := r.handler.(InProcessor); ok {
		handled = ip.InProcess()
	}
	if !handled {
		handled = r.Env.ParsePostBuffer()
	}
	if !handled && len(r.Env.PostBuffer()) > 0 {
		err := newError(BadContentType, "unrecognized content-type %q", r.Env.ContentType)
		r.reportError(err)
		r.finish(protocol.RequestComplete)
		return
	}

	r.state = stateOut
	r.invokeRespond()
}

func (r *Request) protocolError(h protocol.Header) {
	fastcgilog.L().Warnw("request: out-of-sequence record", "state", r.state, "type", h.Type)
	r.finish(protocol.RequestComplete)
}

func (r *Request) reportError(err error) {
	fastcgilog.L().Errorw("request: handler error", "requestId", r.id.FcgiID, "error", err)
	if eh, ok := r.handler.(ErrorHandler); ok {
		eh.HandleError(err)
	}
}

func (r *Request) invokeRespond() {
	if r.done {
		return
	}
	done, err := r.handler.Respond(r.ctx, r)
	if err != nil {
		r.reportError(err)
	}
	if done {
		r.finish(protocol.RequestComplete)
	}
}

// finish flushes both output streams, emits END_REQUEST, and marks the
// request complete. closeOnFlush is set on the END_REQUEST frame
// whenever the connection did not ask to be kept alive.
func (r *Request) finish(status protocol.ProtocolStatus) {
	if r.done {
		return
	}
	r.done = true
	r.cancel()

	r.Out.Flush()
	r.Err.Flush()

	body := protocol.EndRequestBody{AppStatus: 0, ProtocolStatus: status}
	bb := body.Marshal()
	h := protocol.Header{
		Version:       protocol.Version1,
		Type:          protocol.EndRequest,
		RequestID:     r.id.FcgiID,
		ContentLength: uint16(len(bb)),
	}
	hb := h.Marshal()

	frame := make([]byte, 0, protocol.HeaderLen+len(bb))
	frame = append(frame, hb[:]...)
	frame = append(frame, bb[:]...)

	r.out.send(r.id.Socket, frame, !r.keepAlive)
}
