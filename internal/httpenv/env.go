package httpenv

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/textenc"
)

// Method is the enumerated HTTP request method. An unrecognized method
// name decodes to MethodError rather than failing the parse.
type Method int

const (
	MethodError Method = iota
	MethodHead
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodTrace
	MethodOptions
	MethodConnect
)

func (m Method) String() string {
	switch m {
	case MethodHead:
		return "HEAD"
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodTrace:
		return "TRACE"
	case MethodOptions:
		return "OPTIONS"
	case MethodConnect:
		return "CONNECT"
	default:
		return "ERROR"
	}
}

// parseMethod dispatches on length then the exact bytes, mirroring the
// name-lookup discipline used for PARAMS names below.
func parseMethod(s string) Method {
	switch len(s) {
	case 3:
		switch s {
		case "GET":
			return MethodGet
		case "PUT":
			return MethodPut
		}
	case 4:
		switch s {
		case "HEAD":
			return MethodHead
		case "POST":
			return MethodPost
		}
	case 5:
		if s == "TRACE" {
			return MethodTrace
		}
	case 6:
		if s == "DELETE" {
			return MethodDelete
		}
	case 7:
		switch s {
		case "OPTIONS":
			return MethodOptions
		case "CONNECT":
			return MethodConnect
		}
	}
	return MethodError
}

// Environment is the parsed HTTP-over-FastCGI request environment: every
// PARAMS name the runtime recognizes, plus the request body once decoded.
type Environment struct {
	Host            string
	UserAgent       string
	Accept          string
	AcceptLanguage  string
	AcceptCharset   string
	AcceptsGzip     bool
	Referer         string
	ContentType     string
	Boundary        string
	DocumentRoot    string
	ScriptName      string
	Method          Method
	RequestURI      string
	PathInfo        []string
	ContentLength   int
	ServerAddr      Addr16
	RemoteAddr      Addr16
	ServerPort      uint16
	RemotePort      uint16
	IfModifiedSince time.Time
	Etag            string
	KeepAlive       bool

	Cookies *MultiMap
	Gets    *MultiMap
	Posts   *MultiMap
	Files   map[string][]UploadedFile

	// Extra holds every HTTP_* param this runtime does not otherwise
	// surface as a typed field, keyed by the original CGI name.
	Extra map[string][]byte

	postBuf []byte
}

// NewEnvironment returns an Environment with its multimaps initialized.
func NewEnvironment() *Environment {
	return &Environment{
		Cookies: NewMultiMap(),
		Gets:    NewMultiMap(),
		Posts:   NewMultiMap(),
		Files:   make(map[string][]UploadedFile),
		Extra:   make(map[string][]byte),
	}
}

// SetParam ingests one decoded PARAMS name/value pair. Dispatch is by
// name length then exact bytewise comparison; unrecognized names that
// start with "HTTP_" are retained verbatim in Extra, anything else is
// silently ignored.
func (e *Environment) SetParam(name, value []byte) {
	v := string(value)
	switch string(name) {
	case "HTTP_HOST":
		e.Host = v
	case "HTTP_USER_AGENT":
		e.UserAgent = v
	case "HTTP_ACCEPT":
		e.Accept = v
	case "HTTP_ACCEPT_LANGUAGE":
		e.AcceptLanguage = v
	case "HTTP_ACCEPT_CHARSET":
		e.AcceptCharset = v
	case "HTTP_ACCEPT_ENCODING":
		e.AcceptsGzip = strings.Contains(v, "gzip")
	case "HTTP_REFERER":
		e.Referer = v
	case "HTTP_COOKIE":
		DecodeFieldList(e.Cookies, v, ';')
	case "HTTP_KEEP_ALIVE":
		e.KeepAlive = v != "" && v != "0"
	case "HTTP_IF_NONE_MATCH":
		e.Etag = v
	case "HTTP_IF_MODIFIED_SINCE":
		if t, err := http.ParseTime(v); err == nil {
			e.IfModifiedSince = t
		}
	case "CONTENT_TYPE":
		e.ContentType, e.Boundary = splitContentType(v)
	case "CONTENT_LENGTH":
		if n, err := strconv.Atoi(v); err == nil {
			e.ContentLength = n
		}
	case "DOCUMENT_ROOT":
		e.DocumentRoot = v
	case "SCRIPT_NAME":
		e.ScriptName = v
	case "REQUEST_METHOD":
		e.Method = parseMethod(v)
	case "REQUEST_URI":
		e.RequestURI = v
		e.PathInfo = splitPathInfo(v)
	case "QUERY_STRING":
		DecodeFieldList(e.Gets, v, '&')
	case "SERVER_ADDR":
		if a, err := ParseAddr(v); err == nil {
			e.ServerAddr = a
		} else {
			fastcgilog.L().Warnw("httpenv: bad SERVER_ADDR", "value", v, "error", err)
		}
	case "REMOTE_ADDR":
		if a, err := ParseAddr(v); err == nil {
			e.RemoteAddr = a
		} else {
			fastcgilog.L().Warnw("httpenv: bad REMOTE_ADDR", "value", v, "error", err)
		}
	case "SERVER_PORT":
		if n, err := strconv.Atoi(v); err == nil {
			e.ServerPort = uint16(n)
		}
	case "REMOTE_PORT":
		if n, err := strconv.Atoi(v); err == nil {
			e.RemotePort = uint16(n)
		}
	default:
		if isExtraParam(string(name)) {
			e.Extra[string(name)] = append([]byte(nil), value...)
		}
	}
}

// extraParamNames are recognized-but-not-typed-field PARAMS names that
// still get surfaced via Extra rather than silently dropped.
var extraParamNames = map[string]bool{
	"SERVER_NAME":        true,
	"SERVER_PROTOCOL":    true,
	"SERVER_SOFTWARE":    true,
	"GATEWAY_INTERFACE":  true,
	"HTTPS":              true,
}

func isExtraParam(name string) bool {
	return strings.HasPrefix(name, "HTTP_") || extraParamNames[name]
}

// splitContentType returns the bare media type (before the first ';')
// and the boundary= parameter value, if any, retained verbatim.
func splitContentType(v string) (mediaType, boundary string) {
	semi := strings.IndexByte(v, ';')
	if semi < 0 {
		return v, ""
	}
	mediaType = v[:semi]
	if idx := strings.Index(v[semi:], "boundary="); idx >= 0 {
		rest := v[semi+idx+len("boundary="):]
		rest = strings.TrimSpace(rest)
		rest = strings.Trim(rest, `"`)
		if end := strings.IndexByte(rest, ';'); end >= 0 {
			rest = rest[:end]
		}
		boundary = rest
	}
	return mediaType, boundary
}

// splitPathInfo splits uri on '/', percent-decodes every non-empty
// segment, and drops empty segments.
func splitPathInfo(uri string) []string {
	path := uri
	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, textenc.PercentDecode(p))
	}
	return out
}

// AppendPostData grows the post body buffer with a STDIN chunk.
func (e *Environment) AppendPostData(b []byte) {
	e.postBuf = append(e.postBuf, b...)
}

// PostBuffer returns the accumulated STDIN body.
func (e *Environment) PostBuffer() []byte {
	return e.postBuf
}

// ParsePostBuffer dispatches the accumulated STDIN body to the
// urlencoded or multipart decoder based on ContentType. It reports
// whether a recognized body format was decoded; a false result means
// the caller owns interpreting PostBuffer itself.
func (e *Environment) ParsePostBuffer() bool {
	switch e.ContentType {
	case "application/x-www-form-urlencoded":
		DecodeFieldList(e.Posts, string(e.postBuf), '&')
		return true
	case "multipart/form-data":
		parseMultipart(e, e.postBuf, e.Boundary)
		return true
	default:
		return false
	}
}
