package httpenv

import "testing"

func TestSetParamBasics(t *testing.T) {
	env := NewEnvironment()
	params := map[string]string{
		"HTTP_HOST":        "example.com",
		"REQUEST_METHOD":   "POST",
		"CONTENT_LENGTH":   "42",
		"DOCUMENT_ROOT":    "/var/www",
		"SCRIPT_NAME":      "/index.fcgi",
		"REQUEST_URI":      "/a/b%20c/d?x=1",
		"SERVER_ADDR":      "::ffff:10.0.0.1",
		"REMOTE_ADDR":      "179.124.131.145",
		"SERVER_PORT":      "443",
		"REMOTE_PORT":      "51515",
		"HTTP_COOKIE":      "session=abc",
		"QUERY_STRING":     "x=1&y=2",
		"CONTENT_TYPE":     "multipart/form-data; boundary=----WebKitBoundary",
		"HTTP_X_CUSTOM":    "extra-value",
		"HTTP_ACCEPT":      "text/html",
		"HTTP_USER_AGENT":  "gotest/1.0",
	}
	for k, v := range params {
		env.SetParam([]byte(k), []byte(v))
	}

	if env.Host != "example.com" {
		t.Errorf("Host = %q", env.Host)
	}
	if env.Method != MethodPost {
		t.Errorf("Method = %v, want MethodPost", env.Method)
	}
	if env.ContentLength != 42 {
		t.Errorf("ContentLength = %d", env.ContentLength)
	}
	if want := []string{"a", "b c", "d"}; !equalSlices(env.PathInfo, want) {
		t.Errorf("PathInfo = %v, want %v", env.PathInfo, want)
	}
	if !env.RemoteAddr.IsV4Mapped() {
		t.Errorf("RemoteAddr not v4-mapped: %v", env.RemoteAddr)
	}
	if env.ServerPort != 443 {
		t.Errorf("ServerPort = %d", env.ServerPort)
	}
	if got, _ := env.Cookies.Get("session"); got != "abc" {
		t.Errorf("cookie session = %q", got)
	}
	if got, _ := env.Gets.Get("y"); got != "2" {
		t.Errorf("query y = %q", got)
	}
	if env.ContentType != "multipart/form-data" || env.Boundary != "----WebKitBoundary" {
		t.Errorf("ContentType/Boundary = %q / %q", env.ContentType, env.Boundary)
	}
	if got := env.Extra["HTTP_X_CUSTOM"]; string(got) != "extra-value" {
		t.Errorf("Extra[HTTP_X_CUSTOM] = %q", got)
	}
}

func TestSetParamUnknownMethodIsError(t *testing.T) {
	env := NewEnvironment()
	env.SetParam([]byte("REQUEST_METHOD"), []byte("PATCH"))
	if env.Method != MethodError {
		t.Errorf("Method = %v, want MethodError", env.Method)
	}
}

func TestParsePostBufferURLEncoded(t *testing.T) {
	env := NewEnvironment()
	env.ContentType = "application/x-www-form-urlencoded"
	env.AppendPostData([]byte("name=%E6%97%A5%E6%9C%AC%E8%AA%9E&count=3"))
	if !env.ParsePostBuffer() {
		t.Fatal("expected urlencoded body to be recognized")
	}
	if got, _ := env.Posts.Get("name"); got != "日本語" {
		t.Errorf("posts[name] = %q", got)
	}
	if got, _ := env.Posts.Get("count"); got != "3" {
		t.Errorf("posts[count] = %q", got)
	}
}

func TestParsePostBufferUnknownContentType(t *testing.T) {
	env := NewEnvironment()
	env.ContentType = "application/octet-stream"
	env.AppendPostData([]byte{0x01, 0x02, 0x03})
	if env.ParsePostBuffer() {
		t.Fatal("expected unrecognized content type to return false")
	}
	if len(env.PostBuffer()) != 3 {
		t.Errorf("PostBuffer() len = %d, want 3", len(env.PostBuffer()))
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
