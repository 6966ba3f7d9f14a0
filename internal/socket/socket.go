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

// Package socket defines the owning, cloneable socket handle shared by the
// reactor, the transceiver and the manager. It exists as its own package
// (rather than living inside the reactor, as the original C++ Sockets
// header does) so that the manager can key its registry on it without
// importing the reactor.
package socket

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// state is the shared state behind every clone of a Handle. Its address is the handle's identity for ordering/map-key
// purposes: ordering and equality are defined on the identity of this
// shared state, not on the file descriptor number.
type state struct {
	fd    int
	valid int32 // atomic bool; 0 once closed, never set back to 1
	mu    sync.Mutex
	close func(fd int) error
}

// Handle is a cheap, cloneable reference to a kernel file descriptor owned
// by a reactor. The zero value is not usable; construct with New.
//
// Handle is comparable (it embeds a pointer) and so can be used directly
// as a map key.
type Handle struct {
	s *state
}

// New wraps fd in a fresh, live Handle. closeFn is invoked exactly once,
// by the first Close on any clone; it should perform the actual syscall
// close.
func New(fd int, closeFn func(fd int) error) Handle {
	return Handle{s: &state{fd: fd, valid: 1, close: closeFn}}
}

// Invalid returns the zero-value sentinel handle: never valid, never
// equal to any real socket other than another Invalid().
func Invalid() Handle {
	return Handle{}
}

// FD returns the underlying file descriptor, or -1 if the handle is
// invalid (zero value or already closed).
func (h Handle) FD() int {
	if h.s == nil || atomic.LoadInt32(&h.s.valid) == 0 {
		return -1
	}
	return h.s.fd
}

// Valid reports whether reads/writes on this handle are still meaningful.
// Once false, it never becomes true again.
func (h Handle) Valid() bool {
	return h.s != nil && atomic.LoadInt32(&h.s.valid) != 0
}

// Clone returns a new reference to the same underlying descriptor. Clones
// share liveness: invalidating one (via Close) invalidates all of them,
// since they describe the same kernel object.
func (h Handle) Clone() Handle {
	return h
}

// Close marks the handle and every clone of it invalid and closes the
// underlying descriptor. Clones are not reference-counted: the first
// Close on any clone closes the descriptor, even while other clones are
// still held. It is safe to call multiple times and from multiple
// clones; only the first call performs the syscall.
func (h Handle) Close() error {
	if h.s == nil {
		return nil
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&h.s.valid, 1, 0) {
		return nil
	}
	if h.s.close == nil {
		return nil
	}
	return h.s.close(h.s.fd)
}

// Less orders handles so a Handle can be used as the socket component of
// a sorted RequestId key. Ordering is on the identity of the shared
// state, not on the file descriptor number (which the kernel may reuse
// once closed).
func (h Handle) Less(o Handle) bool {
	return uintptr(unsafe.Pointer(h.s)) < uintptr(unsafe.Pointer(o.s))
}

// Equal reports whether h and o reference the same underlying socket.
func (h Handle) Equal(o Handle) bool {
	return h.s == o.s
}
