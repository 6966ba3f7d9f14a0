// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reactor implements a poll-driven, edge-triggered readiness
// primitive: a single epoll set owns the listening and accepted
// descriptors, Poll blocks for exactly one readiness event, and Wake is
// safe to call concurrently to interrupt a blocked Poll.
//
// It talks to the kernel directly via golang.org/x/sys/unix rather than
// through net.Listener, since edge-triggered readiness and non-blocking
// accepted sockets are not something the stdlib net package exposes.
package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/socket"
)

// Reactor owns one epoll instance, a self-pipe for Wake, and the set of
// listening descriptors registered with it. It is not safe to call Poll
// concurrently with itself, nor concurrently with Listen; Wake is the one
// method safe to call from any goroutine at any time.
type Reactor struct {
	epfd int

	wakeR int
	wakeW int

	mu        sync.Mutex // guards listeners and sockets
	listeners map[int]struct{}
	sockets   map[int]socket.Handle
}

// New creates an epoll instance and registers its wake pipe.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	var pipeFDs [2]int
	if err := unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: pipe2: %w", err)
	}

	r := &Reactor{
		epfd:      epfd,
		wakeR:     pipeFDs[0],
		wakeW:     pipeFDs[1],
		listeners: make(map[int]struct{}),
		sockets:   make(map[int]socket.Handle),
	}

	if err := r.register(r.wakeR, unix.EPOLLIN); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: registering wake pipe: %w", err)
	}

	return r, nil
}

func (r *Reactor) register(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *Reactor) deregister(fd int) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Listen adds a listening socket to the reactor's set. Readiness on it is
// reported by Poll as an invalid socket.Handle (see Poll's doc comment);
// the caller is expected to call Accept itself in response.
func (r *Reactor) Listen(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.register(fd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("reactor: registering listener: %w", err)
	}
	r.listeners[fd] = struct{}{}
	return nil
}

// Accept performs a non-blocking accept on fd (which must have been passed
// to Listen), registers the resulting connection for read events, and
// returns a live socket.Handle for it.
func (r *Reactor) Accept(fd int) (socket.Handle, error) {
	connFD, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return socket.Invalid(), err
	}

	if err := r.register(connFD, unix.EPOLLIN); err != nil {
		unix.Close(connFD)
		return socket.Invalid(), fmt.Errorf("reactor: registering accepted socket: %w", err)
	}

	h := socket.New(connFD, func(fd int) error {
		r.forget(fd)
		return unix.Close(fd)
	})

	r.mu.Lock()
	r.sockets[connFD] = h
	r.mu.Unlock()

	return h, nil
}

func (r *Reactor) forget(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sockets[fd]; ok {
		r.deregister(fd)
		delete(r.sockets, fd)
	}
}

// Poll waits for exactly one readiness event.
//
// If block is true, Poll sleeps until a descriptor becomes ready or Wake
// is called; if false, it returns immediately (possibly with nothing
// ready) if nothing is ready.
//
// It returns a valid socket.Handle for an accepted connection that is
// readable or has hung up/errored (either way, the caller's next read on
// it will observe the condition directly); listenFD >= 0 when a
// listening descriptor fired instead (the caller should call
// Accept(listenFD)); both are zero-valued/-1 when the wake pipe fired or
// a socket was already removed by a racing Close.
func (r *Reactor) Poll(block bool) (h socket.Handle, listenFD int, err error) {
	timeout := 0
	if block {
		timeout = -1
	}

	var events [1]unix.EpollEvent
	for {
		n, pollErr := unix.EpollWait(r.epfd, events[:], timeout)
		if pollErr == unix.EINTR {
			continue
		}
		if pollErr != nil {
			return socket.Invalid(), -1, fmt.Errorf("reactor: epoll_wait: %w", pollErr)
		}
		if n == 0 {
			return socket.Invalid(), -1, nil
		}
		return r.handleEvent(events[0])
	}
}

func (r *Reactor) handleEvent(ev unix.EpollEvent) (socket.Handle, int, error) {
	fd := int(ev.Fd)

	if fd == r.wakeR {
		r.drainWake()
		return socket.Invalid(), -1, nil
	}

	r.mu.Lock()
	_, isListener := r.listeners[fd]
	h, isSocket := r.sockets[fd]
	r.mu.Unlock()

	if isListener {
		return socket.Invalid(), fd, nil
	}

	if !isSocket {
		// Already removed (e.g. a racing Close); nothing to report.
		return socket.Invalid(), -1, nil
	}

	if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		fastcgilog.L().Debugw("reactor: socket hangup/error", "fd", fd)
		// Leave the handle open and report it readable rather than
		// closing it here: the caller's next read will observe the
		// same EOF/error condition and go through the one path that
		// both closes the socket and notifies its router.
	}

	return h, -1, nil
}

func (r *Reactor) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Wake causes a goroutine currently blocked inside Poll to return promptly
// with the invalid sentinel. Safe to call from any goroutine, any number
// of times.
func (r *Reactor) Wake() {
	var b [1]byte
	_, _ = unix.Write(r.wakeW, b[:])
}

// Close tears down the epoll instance and the wake pipe. Registered
// sockets are not closed by this call; the owner is responsible for
// closing them (typically via socket.Handle.Close).
func (r *Reactor) Close() error {
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return unix.Close(r.epfd)
}
