package httpenv

// UploadedFile is a single multipart/form-data part that declared a
// filename, and so is routed into the files multimap rather than posts.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the number of bytes of uploaded content.
func (f UploadedFile) Size() int {
	return len(f.Data)
}
