package fastcgi

import (
	"os"

	"github.com/mapscape/gofastcgi/internal/protocol"
)

// Role is the FastCGI application role a BEGIN_REQUEST declared.
type Role = protocol.Role

const (
	RoleResponder = protocol.RoleResponder
	RoleAuthorizer = protocol.RoleAuthorizer
	RoleFilter     = protocol.RoleFilter
)

// ListenKind selects how the Manager obtains its listening socket.
type ListenKind int

const (
	// ListenInheritedFD uses the descriptor the host server already
	// bound and passed down (the traditional FastCGI launch contract).
	ListenInheritedFD ListenKind = iota
	// ListenUnixSocket binds a named Unix-domain socket path.
	ListenUnixSocket
	// ListenTCP binds an (interface, service) TCP pair.
	ListenTCP
)

// Config configures a Manager. Build one with NewConfig and Option
// functions rather than constructing the struct literal directly, so
// future fields have sane zero-cost defaults.
type Config struct {
	listenKind ListenKind
	fd         int

	unixPath  string
	unixMode  os.FileMode
	unixOwner int
	unixGroup int

	tcpAddr string

	workerCount int
	maxPostSize int

	handler HandlerFactory
}

// Option mutates a Config during NewConfig.
type Option func(*Config)

// WithInheritedFD configures the Manager to listen on the descriptor
// inherited from the host server, conventionally file descriptor 0.
func WithInheritedFD(fd int) Option {
	return func(c *Config) {
		c.listenKind = ListenInheritedFD
		c.fd = fd
	}
}

// WithUnixSocket configures a named Unix-domain socket, created with
// the given mode and, if non-negative, chowned to owner:group.
func WithUnixSocket(path string, mode os.FileMode, owner, group int) Option {
	return func(c *Config) {
		c.listenKind = ListenUnixSocket
		c.unixPath = path
		c.unixMode = mode
		c.unixOwner = owner
		c.unixGroup = group
	}
}

// WithTCP configures a TCP listener on the given "host:port" address.
func WithTCP(addr string) Option {
	return func(c *Config) {
		c.listenKind = ListenTCP
		c.tcpAddr = addr
	}
}

// WithWorkers overrides the default worker count (runtime.NumCPU()).
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.workerCount = n
	}
}

// WithMaxPostSize sets the content-length ceiling past which a
// request's body is rejected via BigPostErrorHandler/the default 413.
func WithMaxPostSize(n int) Option {
	return func(c *Config) {
		c.maxPostSize = n
	}
}

// WithHandlerFactory registers the application's HandlerFactory. This
// option is required; NewManager returns an error without it.
func WithHandlerFactory(f HandlerFactory) Option {
	return func(c *Config) {
		c.handler = f
	}
}

// NewConfig builds a Config from the inherited-fd default (descriptor
// 0) plus any Options, in order.
func NewConfig(opts ...Option) Config {
	c := Config{
		listenKind:  ListenInheritedFD,
		fd:          0,
		workerCount: defaultWorkerCount(),
		maxPostSize: 1 << 20,
		unixOwner:   -1,
		unixGroup:   -1,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
