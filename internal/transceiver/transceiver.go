// Package transceiver owns the byte-level conversation with a reactor's
// sockets: it reassembles inbound records into complete
// header-plus-body messages and serializes outbound writes through a
// chunked ring buffer shared by every producing goroutine.
package transceiver

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/protocol"
	"github.com/mapscape/gofastcgi/internal/reactor"
	"github.com/mapscape/gofastcgi/internal/socket"
)

// Router receives a fully reassembled record. sock identifies which
// connection it arrived on; the manager derives the owning RequestId
// from sock and header.RequestID.
type Router interface {
	Route(sock socket.Handle, header protocol.Header, body []byte)
}

// AcceptRouter is notified when a listening descriptor accepts a new
// connection, so the manager can register the new socket if it wants to.
type AcceptRouter interface {
	Accepted(sock socket.Handle)
}

// SocketCloser is notified when the transceiver discovers a socket has
// gone away (read returned EOF or an error), so the manager can sweep
// every request still registered against it.
type SocketCloser interface {
	Closed(sock socket.Handle)
}

type inboundState struct {
	headerBuf  [protocol.HeaderLen]byte
	headerLen  int
	haveHeader bool
	header     protocol.Header
	body       []byte
	totalLen   int
}

// Transceiver drains one reactor's readiness events into a Router and
// flushes queued outbound frames opportunistically between events.
type Transceiver struct {
	reactor *reactor.Reactor
	out     *ringBuffer
	sendMu  sync.Mutex // held across each Send's RequestWrite/CommitWrite sequence
	router  Router
	accept  AcceptRouter

	mu sync.Mutex
	in map[socket.Handle]*inboundState

	stop      chan struct{}
	terminate chan struct{}
	done      chan struct{}
}

// New returns a Transceiver that drains r and delivers reassembled
// records to router. accept may be nil if the caller does not need
// Accepted notifications.
func New(r *reactor.Reactor, router Router, accept AcceptRouter) *Transceiver {
	return &Transceiver{
		reactor:   r,
		out:       newRingBuffer(),
		router:    router,
		accept:    accept,
		in:        make(map[socket.Handle]*inboundState),
		stop:      make(chan struct{}),
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Send enqueues data for sock, splitting it across ring-buffer chunks as
// needed. If closeOnFlush is set, the socket is closed once the very
// last byte of data has actually been written out.
func (t *Transceiver) Send(sock socket.Handle, data []byte, closeOnFlush bool) {
	t.sendMu.Lock()
	for len(data) > 0 {
		buf := t.out.RequestWrite(len(data))
		n := copy(buf, data)
		last := n == len(data)
		t.out.CommitWrite(n, sock, closeOnFlush && last)
		data = data[n:]
	}
	t.sendMu.Unlock()
	t.reactor.Wake()
}

// Stop requests a graceful shutdown: the handler loop finishes flushing
// queued output before Run returns.
func (t *Transceiver) Stop() {
	close(t.stop)
	t.reactor.Wake()
}

// Terminate requests an immediate shutdown: Run returns without
// flushing whatever remains queued.
func (t *Transceiver) Terminate() {
	close(t.terminate)
	t.reactor.Wake()
}

// Done is closed once Run has returned.
func (t *Transceiver) Done() <-chan struct{} {
	return t.done
}

// Run is the handler loop: flush pending output, block for one
// readiness event, drain whichever socket fired, repeat. It returns
// when Stop or Terminate has been called.
func (t *Transceiver) Run() {
	defer close(t.done)

	for {
		select {
		case <-t.terminate:
			return
		default:
		}

		t.flush()

		select {
		case <-t.terminate:
			return
		case <-t.stop:
			t.flush()
			return
		default:
		}

		h, listenFD, err := t.reactor.Poll(true)
		if err != nil {
			fastcgilog.L().Errorw("transceiver: poll failed", "error", err)
			continue
		}

		if listenFD >= 0 {
			sock, err := t.reactor.Accept(listenFD)
			if err != nil {
				fastcgilog.L().Debugw("transceiver: accept failed", "error", err)
				continue
			}
			if t.accept != nil {
				t.accept.Accepted(sock)
			}
			continue
		}

		if !h.Valid() {
			continue
		}

		t.drain(h)
	}
}

// flush writes as much queued outbound data as possible without
// blocking, stopping at the first short write or error.
func (t *Transceiver) flush() {
	for {
		data, sock, ok := t.out.RequestRead()
		if !ok {
			return
		}
		if !sock.Valid() {
			t.out.FreeRead(len(data))
			continue
		}

		n, err := unix.Write(sock.FD(), data)
		if n > 0 {
			t.out.FreeRead(n)
		}
		if err != nil || n < len(data) {
			return
		}
	}
}

// drain reads from sock until a short read, feeding every byte into its
// reassembly state machine. EAGAIN ends the drain like a short read. A
// zero-length read (EOF) or any other error invalidates the socket and
// tells the router, so it can evict whatever was registered against it.
func (t *Transceiver) drain(sock socket.Handle) {
	var buf [65536]byte
	for {
		n, err := unix.Read(sock.FD(), buf[:])
		if n > 0 {
			t.feed(sock, buf[:n])
		}
		if err == unix.EAGAIN {
			return
		}
		if err != nil || n == 0 {
			t.closeSocket(sock)
			return
		}
		if n < len(buf) {
			return
		}
	}
}

func (t *Transceiver) closeSocket(sock socket.Handle) {
	sock.Close()
	t.forget(sock)
	if sc, ok := t.router.(SocketCloser); ok {
		sc.Closed(sock)
	}
}

func (t *Transceiver) stateFor(sock socket.Handle) *inboundState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.in[sock]
	if !ok {
		st = &inboundState{}
		t.in[sock] = st
	}
	return st
}

// forget discards any partial reassembly buffer for sock, called when
// the socket is known to have become invalid.
func (t *Transceiver) forget(sock socket.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.in, sock)
}

// feed runs the reassembly state machine over data, emitting a Route
// call for each complete record it finds.
func (t *Transceiver) feed(sock socket.Handle, data []byte) {
	st := t.stateFor(sock)

	if !sock.Valid() {
		t.forget(sock)
		return
	}

	for len(data) > 0 {
		if !st.haveHeader {
			n := copy(st.headerBuf[st.headerLen:], data)
			st.headerLen += n
			data = data[n:]
			if st.headerLen < protocol.HeaderLen {
				return
			}

			h, err := protocol.ParseHeader(st.headerBuf[:])
			if err != nil {
				fastcgilog.L().Errorw("transceiver: bad header", "error", err)
				t.forget(sock)
				return
			}
			st.header = h
			st.haveHeader = true
			st.totalLen = int(h.ContentLength) + int(h.PaddingLength)
			st.body = make([]byte, 0, st.totalLen)
			continue
		}

		need := st.totalLen - len(st.body)
		n := need
		if n > len(data) {
			n = len(data)
		}
		st.body = append(st.body, data[:n]...)
		data = data[n:]

		if len(st.body) < st.totalLen {
			return
		}

		content := st.body[:st.header.ContentLength]
		if t.router != nil {
			t.router.Route(sock, st.header, content)
		}
		*st = inboundState{}
	}
}
