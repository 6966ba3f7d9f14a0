package fastcgi

import (
	"unicode/utf8"

	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/protocol"
	"github.com/mapscape/gofastcgi/internal/socket"
	"github.com/mapscape/gofastcgi/internal/textenc"
)

// streamBufSize is the internal buffering threshold before an
// OutputStream converts and ships a record.
const streamBufSize = 8192

// maxRecordContent is the largest content a single OUT/ERR record may
// carry; longer writes are split across multiple records.
const maxRecordContent = 65535

// sender is the write-side surface an OutputStream needs from the
// manager: enqueue bytes for a socket, optionally closing it once every
// queued byte has actually gone out.
type sender interface {
	send(sock socket.Handle, data []byte, closeOnFlush bool)
}

// OutputStream is one of a request's two record-framed output
// surfaces (STDOUT or STDERR). Writes are buffered up to streamBufSize;
// Flush (called automatically on overflow, and by the request at
// completion) splits the buffer into records of at most
// maxRecordContent bytes, pads each to an 8-byte boundary, and hands
// them to the transceiver.
type OutputStream struct {
	out       sender
	sock      socket.Handle
	fcgiID    uint16
	recType   protocol.RecordType
	mode      textenc.Mode
	buf       []byte
}

func newOutputStream(out sender, sock socket.Handle, fcgiID uint16, recType protocol.RecordType) *OutputStream {
	return &OutputStream{
		out:     out,
		sock:    sock,
		fcgiID:  fcgiID,
		recType: recType,
		buf:     make([]byte, 0, streamBufSize),
	}
}

// SetMode sets the entity-encoding mode applied to subsequent Write
// calls. It does not affect bytes already buffered.
func (s *OutputStream) SetMode(mode textenc.Mode) {
	s.mode = mode
}

// Write encodes p under the stream's current mode and buffers it,
// flushing whenever the internal buffer crosses streamBufSize. It
// always returns len(p), nil: in an encoding mode, bytes that are not
// valid UTF-8 are logged and dropped rather than propagated, per the
// runtime's EncoderFault policy.
func (s *OutputStream) Write(p []byte) (int, error) {
	if s.mode == textenc.ModeNone {
		s.append(p)
		return len(p), nil
	}

	for rest := p; len(rest) > 0; {
		r, size := utf8.DecodeRune(rest)
		if r == utf8.RuneError && size == 1 {
			fastcgilog.L().Warnw("outputstream: dropping invalid UTF-8 byte", "byte", rest[0])
			rest = rest[1:]
			continue
		}
		if exp, ok := textenc.Expand(s.mode, r); ok {
			s.append([]byte(exp))
		} else {
			s.append(rest[:size])
		}
		rest = rest[size:]
	}
	return len(p), nil
}

func (s *OutputStream) append(p []byte) {
	s.buf = append(s.buf, p...)
	if len(s.buf) >= streamBufSize {
		s.Flush()
	}
}

// WriteRaw ships p directly as one or more records, bypassing the
// entity encoder entirely. Used for binary payloads the encoding modes
// must never touch (images, other non-text bodies).
func (s *OutputStream) WriteRaw(p []byte) {
	s.Flush()
	s.emit(p)
}

// Flush ships any buffered bytes as records and resets the buffer.
func (s *OutputStream) Flush() {
	if len(s.buf) == 0 {
		return
	}
	s.emit(s.buf)
	s.buf = s.buf[:0]
}

// emit splits p into maxRecordContent-sized records, pads each to an
// 8-byte boundary and enqueues it on the stream's socket.
func (s *OutputStream) emit(p []byte) {
	for len(p) > 0 {
		n := len(p)
		if n > maxRecordContent {
			n = maxRecordContent
		}
		chunk := p[:n]
		p = p[n:]

		pad := protocol.PaddingLength(n)
		h := protocol.Header{
			Version:       protocol.Version1,
			Type:          s.recType,
			RequestID:     s.fcgiID,
			ContentLength: uint16(n),
			PaddingLength: pad,
		}

		frame := make([]byte, 0, protocol.HeaderLen+n+int(pad))
		hb := h.Marshal()
		frame = append(frame, hb[:]...)
		frame = append(frame, chunk...)
		frame = append(frame, make([]byte, pad)...)

		s.out.send(s.sock, frame, false)
	}
}
