package fastcgi

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/protocol"
	"github.com/mapscape/gofastcgi/internal/reactor"
	"github.com/mapscape/gofastcgi/internal/socket"
	"github.com/mapscape/gofastcgi/internal/transceiver"
)

func defaultWorkerCount() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// managerConstructed enforces the process-wide singleton: a second
// Manager in the same process is a fatal configuration error.
var managerConstructed int32

// Manager owns the registry of in-flight requests, the FIFO task queue
// and worker pool that drain it, and the reactor/transceiver pair that
// talks to the kernel. Exactly one Manager may exist per process.
type Manager struct {
	cfg    Config
	clock  timeutil.Clock
	reactor *reactor.Reactor
	trans  *transceiver.Transceiver

	listenFD   int
	listenFile *os.File
	unixPath   string

	mu       syncutil.InvariantMutex // guards registry
	registry map[RequestId]*Request  // GUARDED_BY(mu)

	taskMu   sync.Mutex
	taskCond *sync.Cond
	tasks    []RequestId // GUARDED_BY(taskMu)
	draining bool        // GUARDED_BY(taskMu)
	hardStop bool        // GUARDED_BY(taskMu)

	wg sync.WaitGroup
}

// NewManager constructs the process's Manager. cfg.WithHandlerFactory
// is required. Constructing a second Manager in the same process
// returns ErrFatalInit.
func NewManager(cfg Config, clock timeutil.Clock) (*Manager, error) {
	if !atomic.CompareAndSwapInt32(&managerConstructed, 0, 1) {
		return nil, ErrFatalInit
	}
	if cfg.handler == nil {
		atomic.StoreInt32(&managerConstructed, 0)
		return nil, newError(FatalInit, "config has no handler factory")
	}

	r, err := reactor.New()
	if err != nil {
		atomic.StoreInt32(&managerConstructed, 0)
		return nil, fmt.Errorf("fastcgi: creating reactor: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		clock:    clock,
		reactor:  r,
		registry: make(map[RequestId]*Request),
	}
	m.mu = syncutil.NewInvariantMutex(m.checkInvariants)
	m.taskCond = sync.NewCond(&m.taskMu)
	m.trans = transceiver.New(r, m, m)

	fd, path, file, err := setupListener(cfg)
	if err != nil {
		r.Close()
		atomic.StoreInt32(&managerConstructed, 0)
		return nil, fmt.Errorf("fastcgi: setting up listener: %w", err)
	}
	m.listenFD = fd
	m.listenFile = file
	m.unixPath = path

	if err := r.Listen(fd); err != nil {
		r.Close()
		atomic.StoreInt32(&managerConstructed, 0)
		return nil, fmt.Errorf("fastcgi: registering listener: %w", err)
	}

	return m, nil
}

// checkInvariants validates the registry's internal consistency; it is
// run by the InvariantMutex around every Lock/Unlock pair in debug
// builds of that package.
func (m *Manager) checkInvariants() {
	for id, req := range m.registry {
		if req == nil || req.id != id {
			panic(fmt.Sprintf("fastcgi: registry entry %v has mismatched request", id))
		}
	}
}

// setupListener resolves cfg's listening configuration into a raw,
// non-blocking file descriptor the reactor can epoll. For Unix and TCP
// sockets it leans on net.Listen for address parsing and then recovers
// the descriptor via (*net.UnixListener).File / (*net.TCPListener).File
// — the returned *os.File must be kept alive for the lifetime of the
// Manager, since its finalizer would otherwise close the duplicated fd.
func setupListener(cfg Config) (fd int, unixPath string, keepAlive *os.File, err error) {
	switch cfg.listenKind {
	case ListenInheritedFD:
		return cfg.fd, "", nil, nil

	case ListenUnixSocket:
		_ = os.Remove(cfg.unixPath)
		ln, err := net.Listen("unix", cfg.unixPath)
		if err != nil {
			return -1, "", nil, err
		}
		if cfg.unixMode != 0 {
			if err := os.Chmod(cfg.unixPath, cfg.unixMode); err != nil {
				ln.Close()
				return -1, "", nil, fmt.Errorf("chmod %s: %w", cfg.unixPath, err)
			}
		}
		if cfg.unixOwner >= 0 || cfg.unixGroup >= 0 {
			if err := os.Chown(cfg.unixPath, cfg.unixOwner, cfg.unixGroup); err != nil {
				ln.Close()
				return -1, "", nil, fmt.Errorf("chown %s: %w", cfg.unixPath, err)
			}
		}
		f, err := ln.(*net.UnixListener).File()
		ln.Close()
		if err != nil {
			return -1, "", nil, err
		}
		return int(f.Fd()), cfg.unixPath, f, nil

	case ListenTCP:
		ln, err := net.Listen("tcp", cfg.tcpAddr)
		if err != nil {
			return -1, "", nil, err
		}
		f, err := ln.(*net.TCPListener).File()
		ln.Close()
		if err != nil {
			return -1, "", nil, err
		}
		return int(f.Fd()), "", f, nil

	default:
		return -1, "", nil, fmt.Errorf("fastcgi: unknown listen kind %d", cfg.listenKind)
	}
}

// Start spawns the configured number of worker goroutines and the
// transceiver's handler loop.
func (m *Manager) Start() {
	fastcgilog.L().Infow("manager: starting", "workers", m.cfg.workerCount)
	for i := 0; i < m.cfg.workerCount; i++ {
		m.wg.Add(1)
		go m.workerLoop()
	}
	go m.trans.Run()
}

// Stop requests a graceful shutdown: workers exit once the registry and
// task queue have drained, and the transceiver stops once its outbound
// queue empties.
func (m *Manager) Stop() {
	m.taskMu.Lock()
	m.draining = true
	m.taskCond.Broadcast()
	m.taskMu.Unlock()
	m.trans.Stop()
}

// Terminate requests an immediate shutdown: workers and the transceiver
// return without draining whatever remains queued.
func (m *Manager) Terminate() {
	m.taskMu.Lock()
	m.hardStop = true
	m.taskCond.Broadcast()
	m.taskMu.Unlock()
	m.trans.Terminate()
}

// Join waits for every worker and the transceiver to return, then
// releases the socket path (for a Unix listener) and the singleton
// slot, so a later process restart in-test can construct a fresh
// Manager.
func (m *Manager) Join() {
	m.wg.Wait()
	<-m.trans.Done()
	if m.listenFile != nil {
		m.listenFile.Close()
	}
	if m.unixPath != "" {
		_ = os.Remove(m.unixPath)
	}
	m.reactor.Close()
	atomic.StoreInt32(&managerConstructed, 0)
}

// send implements the sender interface OutputStream and Request use to
// enqueue outbound bytes; it is the one path through which the
// registry's per-request code touches the transceiver.
func (m *Manager) send(sock socket.Handle, data []byte, closeOnFlush bool) {
	m.trans.Send(sock, data, closeOnFlush)
}

// Accepted implements transceiver.AcceptRouter. Newly accepted
// connections need no registry entry until their first BEGIN_REQUEST
// arrives, so there is nothing to do here beyond the log line.
func (m *Manager) Accepted(sock socket.Handle) {
	fastcgilog.L().Debugw("manager: accepted connection", "fd", sock.FD())
}

// Closed implements transceiver.SocketCloser: sock has gone away, so
// every request still registered against it is dropped, mirroring the
// fcgi_id==0xFFFF sweep of the routing contract.
func (m *Manager) Closed(sock socket.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.registry {
		if id.Socket.Equal(sock) {
			delete(m.registry, id)
		}
	}
}

// Route implements transceiver.Router: a complete wire record has
// arrived on sock. It is handed to push as a type-0 Message.
func (m *Manager) Route(sock socket.Handle, header protocol.Header, body []byte) {
	id := RequestId{Socket: sock, FcgiID: header.RequestID}
	m.push(id, pendingRecord{isWire: true, header: header, body: append([]byte(nil), body...)})
}

// Push delivers a non-FastCGI callback Message to the request
// identified by id. Safe to call from any goroutine; this is the one
// entry point foreign (non-worker) goroutines use to wake a request
// that registered a callback.
func (m *Manager) Push(id RequestId, msg Message) {
	m.push(id, pendingRecord{isWire: false, msg: msg})
}

// push implements the routing contract: management traffic (fcgi_id 0)
// is handled inline (it never touches user code and need not wait on
// the worker pool); everything else is delivered to an existing
// request, or — if the record is a BEGIN_REQUEST for an id the
// registry has never seen — used to construct one via the configured
// HandlerFactory.
func (m *Manager) push(id RequestId, rec pendingRecord) {
	if id.FcgiID == 0 {
		m.handleManagement(id.Socket, rec)
		return
	}

	m.mu.Lock()
	req, ok := m.registry[id]
	if !ok {
		if !rec.isWire || rec.header.Type != protocol.BeginRequest {
			m.mu.Unlock()
			fastcgilog.L().Warnw("manager: record for unknown request", "requestId", id.FcgiID)
			return
		}
		begin, err := protocol.ParseBeginRequestBody(rec.body)
		if err != nil {
			m.mu.Unlock()
			fastcgilog.L().Errorw("manager: malformed BEGIN_REQUEST", "error", err)
			return
		}
		keepAlive := begin.Flags&protocol.KeepConn != 0
		handler := m.cfg.handler(id, begin.Role, keepAlive)
		req = newRequest(m, id, begin.Role, keepAlive, m.cfg.maxPostSize, handler)
		m.registry[id] = req
		m.mu.Unlock()
		m.enqueueTask(id)
		return
	}
	m.mu.Unlock()

	req.enqueue(rec)
	m.enqueueTask(id)
}

// handleManagement answers GET_VALUES with the pre-canned
// GET_VALUES_RESULT pairs, and anything else it doesn't recognize with
// UNKNOWN_TYPE.
func (m *Manager) handleManagement(sock socket.Handle, rec pendingRecord) {
	if !rec.isWire {
		return
	}

	switch rec.header.Type {
	case protocol.GetValues:
		var content []byte
		content = protocol.EncodePair(content, []byte(protocol.MaxConnsVar), []byte(protocol.MaxConnsValue))
		content = protocol.EncodePair(content, []byte(protocol.MaxReqsVar), []byte(protocol.MaxReqsValue))
		content = protocol.EncodePair(content, []byte(protocol.MpxsConnsVar), []byte(protocol.MpxsConnsValue))
		m.sendManagementRecord(sock, protocol.GetValuesResult, content)

	default:
		body := protocol.UnknownTypeBody{Type: rec.header.Type}
		bb := body.Marshal()
		m.sendManagementRecord(sock, protocol.UnknownType, bb[:])
	}
}

func (m *Manager) sendManagementRecord(sock socket.Handle, t protocol.RecordType, content []byte) {
	pad := protocol.PaddingLength(len(content))
	h := protocol.Header{
		Version:       protocol.Version1,
		Type:          t,
		ContentLength: uint16(len(content)),
		PaddingLength: pad,
	}
	hb := h.Marshal()
	frame := make([]byte, 0, protocol.HeaderLen+len(content)+int(pad))
	frame = append(frame, hb[:]...)
	frame = append(frame, content...)
	frame = append(frame, make([]byte, pad)...)
	m.send(sock, frame, false)
}

func (m *Manager) enqueueTask(id RequestId) {
	m.taskMu.Lock()
	m.tasks = append(m.tasks, id)
	m.taskCond.Signal()
	m.taskMu.Unlock()
}

// workerLoop is one worker: wait for a task, try-lock the named
// request, run its pending work, and erase it from the registry once
// complete.
func (m *Manager) workerLoop() {
	defer m.wg.Done()

	for {
		id, ok := m.nextTask()
		if !ok {
			return
		}
		if id.FcgiID == 0 {
			// Management records are answered inline in push and
			// never enqueued; an id-0 task has no request to run.
			continue
		}
		m.runTask(id)
	}
}

// nextTask blocks until a task is available or the manager is
// stopping. It reports false once shutdown means no further task will
// ever arrive.
func (m *Manager) nextTask() (RequestId, bool) {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()

	for len(m.tasks) == 0 {
		if m.hardStop {
			return RequestId{}, false
		}
		if m.draining && m.registrySize() == 0 {
			return RequestId{}, false
		}
		m.taskCond.Wait()
	}

	id := m.tasks[0]
	m.tasks = m.tasks[1:]
	return id, true
}

func (m *Manager) registrySize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}

func (m *Manager) runTask(id RequestId) {
	m.mu.Lock()
	req, ok := m.registry[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	if !req.mu.TryLock() {
		// Another worker already owns this request; requeue it so its
		// work is not lost, and pick up something else in the
		// meantime.
		m.enqueueTask(id)
		return
	}
	done := req.handleWork()
	req.mu.Unlock()

	if done || !id.Socket.Valid() {
		m.mu.Lock()
		delete(m.registry, id)
		m.mu.Unlock()
		if m.draining {
			m.taskMu.Lock()
			m.taskCond.Broadcast()
			m.taskMu.Unlock()
		}
	}
}
