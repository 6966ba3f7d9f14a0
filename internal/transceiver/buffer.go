package transceiver

import (
	"sync"

	"github.com/mapscape/gofastcgi/internal/socket"
)

// ChunkSize is the fixed size of one ring-buffer chunk.
const ChunkSize = 131072

// MinBlock is the minimum remaining space a chunk must have for
// CommitWrite to keep handing out spans from it; below this, a fresh
// chunk is appended at the tail.
const MinBlock = 256

type chunk struct {
	buf  [ChunkSize]byte
	wOff int
	rOff int
}

// frame records one committed write: its length, the socket it targets,
// and whether the socket should be closed once this frame is fully
// flushed.
type frame struct {
	size         int
	socket       socket.Handle
	closeOnFlush bool
}

// ringBuffer is the chunked, mutex-guarded outbound buffer shared by
// every request writing to a given transceiver. Producers call
// RequestWrite/CommitWrite; the handler loop drains it with
// RequestRead/FreeRead.
type ringBuffer struct {
	mu           sync.Mutex
	chunks       []*chunk
	frames       []frame
	headConsumed int
}

func newRingBuffer() *ringBuffer {
	return &ringBuffer{chunks: []*chunk{{}}}
}

func (b *ringBuffer) tail() *chunk {
	return b.chunks[len(b.chunks)-1]
}

// RequestWrite returns a writable subspan of at most size bytes in the
// current tail chunk, allocating a new tail chunk first if the current
// one is full.
func (b *ringBuffer) RequestWrite(size int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tail()
	remaining := ChunkSize - t.wOff
	if remaining == 0 {
		b.chunks = append(b.chunks, &chunk{})
		t = b.tail()
		remaining = ChunkSize
	}
	if size > remaining {
		size = remaining
	}
	return t.buf[t.wOff : t.wOff+size]
}

// CommitWrite advances the tail chunk's write cursor by n bytes (which
// must have been filled via the span RequestWrite returned), enqueues a
// frame describing that span, and rolls over to a fresh tail chunk if
// the remaining room has dropped below MinBlock.
func (b *ringBuffer) CommitWrite(n int, sock socket.Handle, closeOnFlush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tail()
	t.wOff += n
	b.frames = append(b.frames, frame{size: n, socket: sock, closeOnFlush: closeOnFlush})

	if ChunkSize-t.wOff < MinBlock {
		b.chunks = append(b.chunks, &chunk{})
	}
}

// RequestRead returns the unread span of the head frame, the socket it
// targets, and true; or ok=false if there is nothing queued.
func (b *ringBuffer) RequestRead() (data []byte, sock socket.Handle, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if len(b.frames) == 0 {
			return nil, socket.Invalid(), false
		}

		head := b.chunks[0]
		remaining := b.frames[0].size - b.headConsumed
		avail := head.wOff - head.rOff

		if avail == 0 {
			if remaining == 0 {
				return nil, socket.Invalid(), false
			}
			if len(b.chunks) > 1 {
				b.chunks = b.chunks[1:]
				continue
			}
			return nil, socket.Invalid(), false
		}

		n := remaining
		if avail < n {
			n = avail
		}
		return head.buf[head.rOff : head.rOff+n], b.frames[0].socket, true
	}
}

// FreeRead advances the read cursor by n bytes, which must have actually
// been transmitted. When the head frame becomes fully drained, its
// socket is closed if closeOnFlush was set. A fully drained head chunk
// is dropped once a later chunk exists to take its place.
func (b *ringBuffer) FreeRead(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return
	}

	head := b.chunks[0]
	head.rOff += n
	b.headConsumed += n

	if b.headConsumed >= b.frames[0].size {
		fr := b.frames[0]
		b.frames = b.frames[1:]
		b.headConsumed = 0
		if fr.closeOnFlush {
			fr.socket.Close()
		}
	}

	if head.rOff >= ChunkSize && len(b.chunks) > 1 {
		b.chunks = b.chunks[1:]
	}
}
