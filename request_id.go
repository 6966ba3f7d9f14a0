package fastcgi

import "github.com/mapscape/gofastcgi/internal/socket"

// RequestId identifies one multiplexed request: a socket plus the
// fcgi_id the web server assigned it on that connection. It orders by
// socket identity first, then fcgi_id, so the manager's registry can be
// a sorted map.
type RequestId struct {
	Socket socket.Handle
	FcgiID uint16
}

// Less orders RequestIds by socket identity, then by fcgi_id.
func (id RequestId) Less(other RequestId) bool {
	if id.Socket != other.Socket {
		return id.Socket.Less(other.Socket)
	}
	return id.FcgiID < other.FcgiID
}
