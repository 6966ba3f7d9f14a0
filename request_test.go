// Copyright 2015 Google Inc. All Rights Reserved.

package fastcgi

import (
	"context"
	"testing"

	. "github.com/jacobsa/ogletest"

	"github.com/mapscape/gofastcgi/internal/protocol"
	"github.com/mapscape/gofastcgi/internal/socket"
)

func TestRequest(t *testing.T) { RunTests(t) }

// recordingSender captures every frame a Request/OutputStream ships,
// standing in for the manager's transceiver-backed send.
type recordingSender struct {
	frames [][]byte
	closed []bool
}

func (s *recordingSender) send(sock socket.Handle, data []byte, closeOnFlush bool) {
	frame := append([]byte(nil), data...)
	s.frames = append(s.frames, frame)
	s.closed = append(s.closed, closeOnFlush)
}

func (s *recordingSender) lastType() protocol.RecordType {
	f := s.frames[len(s.frames)-1]
	return protocol.RecordType(f[1])
}

// echoOnceHandler writes a fixed reply the first time Respond is
// invoked after STDIN completes, then reports done.
type echoOnceHandler struct {
	replied bool
}

func (h *echoOnceHandler) Respond(ctx context.Context, r *Request) (bool, error) {
	h.replied = true
	r.Out.WriteRaw([]byte("hello"))
	return true, nil
}

func params(pairs ...[2]string) []byte {
	var body []byte
	for _, p := range pairs {
		body = protocol.EncodePair(body, []byte(p[0]), []byte(p[1]))
	}
	return body
}

func wireRec(t protocol.RecordType, body []byte) pendingRecord {
	return pendingRecord{
		isWire: true,
		header: protocol.Header{Type: t, ContentLength: uint16(len(body))},
		body:   body,
	}
}

////////////////////////////////////////////////////////////////////
// RequestTest
////////////////////////////////////////////////////////////////////

type RequestTest struct {
	sender  *recordingSender
	handler *echoOnceHandler
	req     *Request
}

var _ SetUpInterface = &RequestTest{}

func init() { RegisterTestSuite(&RequestTest{}) }

func (t *RequestTest) SetUp(ti *TestInfo) {
	t.sender = &recordingSender{}
	t.handler = &echoOnceHandler{}
	sock := socket.New(3, func(int) error { return nil })
	id := RequestId{Socket: sock, FcgiID: 1}
	t.req = newRequest(t.sender, id, RoleResponder, false, 0, t.handler)
}

func (t *RequestTest) FullRoundTrip() {
	t.req.enqueue(wireRec(protocol.Params, params([2]string{"SCRIPT_NAME", "/x"})))
	AssertTrue(t.req.handleWork() == false)
	ExpectEq("/x", t.req.Env.ScriptName)
	ExpectEq(stateParams, t.req.state)

	// Empty PARAMS: role is RoleResponder and maxPostSize is 0 (no
	// ceiling), so the request should advance to stateIn.
	t.req.enqueue(wireRec(protocol.Params, nil))
	AssertFalse(t.req.handleWork())
	ExpectEq(stateIn, t.req.state)
	ExpectFalse(t.handler.replied)

	// Empty STDIN: body complete, handler.Respond runs and reports
	// done, so handleWork should report the request finished.
	t.req.enqueue(wireRec(protocol.Stdin, nil))
	done := t.req.handleWork()
	AssertTrue(done)
	ExpectTrue(t.handler.replied)
	ExpectTrue(t.req.done)

	// Last frame sent must be END_REQUEST.
	AssertTrue(len(t.sender.frames) > 0)
	ExpectEq(protocol.EndRequest, t.sender.lastType())
}

func (t *RequestTest) AbortRequestFinishesImmediately() {
	t.req.enqueue(pendingRecord{isWire: true, header: protocol.Header{Type: protocol.AbortRequest}})
	done := t.req.handleWork()
	AssertTrue(done)
	ExpectTrue(t.req.done)
	ExpectEq(protocol.EndRequest, t.sender.lastType())
}

func (t *RequestTest) UnknownRoleEndsRequest() {
	t.req.role = protocol.Role(99)
	t.req.enqueue(wireRec(protocol.Params, nil))
	done := t.req.handleWork()
	AssertTrue(done)

	f := t.sender.frames[len(t.sender.frames)-1]
	AssertEq(protocol.EndRequest, protocol.RecordType(f[1]))
	body, err := parseEndRequestBody(f)
	AssertEq(nil, err)
	ExpectEq(protocol.UnknownRole, body.ProtocolStatus)
}

func (t *RequestTest) OversizePostRejectsBeforeBody() {
	t.req.maxPostSize = 4
	t.req.enqueue(wireRec(protocol.Params, params([2]string{"CONTENT_LENGTH", "1000"})))
	t.req.handleWork()
	t.req.enqueue(wireRec(protocol.Params, nil))
	done := t.req.handleWork()
	AssertTrue(done)
	ExpectFalse(t.handler.replied)
}

func (t *RequestTest) OutOfSequenceRecordIsProtocolError() {
	// STDIN while still in stateParams is out of sequence.
	t.req.enqueue(wireRec(protocol.Stdin, []byte("x")))
	done := t.req.handleWork()
	AssertTrue(done)
	ExpectFalse(t.handler.replied)
}

func (t *RequestTest) CallbackAfterCompletionIsNoop() {
	t.req.enqueue(wireRec(protocol.Params, nil))
	t.req.handleWork()
	t.req.enqueue(wireRec(protocol.Stdin, nil))
	t.req.handleWork()
	AssertTrue(t.req.done)

	// Once done, further enqueued work (e.g. a stray callback message
	// racing the registry erase) must be a no-op rather than a second
	// Respond/END_REQUEST.
	before := len(t.sender.frames)
	t.req.enqueue(pendingRecord{isWire: false, msg: Message{Type: 1}})
	t.req.handleWork()
	ExpectEq(before, len(t.sender.frames))
}

// parseEndRequestBody extracts the 8-byte body from a marshaled
// END_REQUEST frame for assertions.
func parseEndRequestBody(frame []byte) (protocol.EndRequestBody, error) {
	h, err := protocol.ParseHeader(frame)
	if err != nil {
		return protocol.EndRequestBody{}, err
	}
	b := frame[protocol.HeaderLen : protocol.HeaderLen+int(h.ContentLength)]
	return protocol.EndRequestBody{
		AppStatus:      uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		ProtocolStatus: protocol.ProtocolStatus(b[4]),
	}, nil
}
