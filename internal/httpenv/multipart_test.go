package httpenv

import "testing"

func TestParseMultipartFileAndFields(t *testing.T) {
	boundary := "----gofastcgiBoundary"
	binary := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01, 0x02}

	var body []byte
	body = append(body, "--"+boundary+"\r\n"...)
	body = append(body, "Content-Disposition: form-data; name=\"title\"\r\n\r\n"...)
	body = append(body, "hello world\r\n"...)
	body = append(body, "--"+boundary+"\r\n"...)
	body = append(body, "Content-Disposition: form-data; name=\"aFile\"; filename=\"gnu.png\"\r\n"...)
	body = append(body, "Content-Type: image/png\r\n\r\n"...)
	body = append(body, binary...)
	body = append(body, "\r\n--"+boundary+"--\r\n"...)

	env := NewEnvironment()
	env.AppendPostData(body)
	env.ContentType = "multipart/form-data"
	env.Boundary = boundary
	if !env.ParsePostBuffer() {
		t.Fatal("ParsePostBuffer returned false for multipart body")
	}

	if got, ok := env.Posts.Get("title"); !ok || got != "hello world" {
		t.Errorf("posts[title] = %q, %v; want %q, true", got, ok, "hello world")
	}

	files := env.Files["aFile"]
	if len(files) != 1 {
		t.Fatalf("len(files[aFile]) = %d, want 1", len(files))
	}
	f := files[0]
	if f.Filename != "gnu.png" {
		t.Errorf("Filename = %q, want gnu.png", f.Filename)
	}
	if f.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", f.ContentType)
	}
	if f.Size() != len(binary) {
		t.Errorf("Size() = %d, want %d", f.Size(), len(binary))
	}
	for i := range binary {
		if f.Data[i] != binary[i] {
			t.Fatalf("Data mismatch at byte %d: got %x, want %x", i, f.Data[i], binary[i])
		}
	}
}

func TestParseMultipartNoBoundaryIsNoop(t *testing.T) {
	env := NewEnvironment()
	env.AppendPostData([]byte("irrelevant"))
	env.ContentType = "multipart/form-data"
	env.Boundary = ""
	env.ParsePostBuffer()
	if len(env.Files) != 0 || len(env.Posts.Keys()) != 0 {
		t.Fatal("expected no parts parsed without a boundary")
	}
}
