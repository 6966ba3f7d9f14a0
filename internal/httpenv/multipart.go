package httpenv

import "bytes"

// multipart parser states.
const (
	mpHeader = iota
	mpName
	mpFilename
	mpContentType
	mpBody
)

// parseMultipart scans a multipart/form-data body for boundary-delimited
// parts. Each part's headers are scanned byte-by-byte for the literal
// prefixes "name=\"", "filename=\"" and "Content-Type: ", and for the
// "\r\n\r\n" header/body separator; whichever is seen first drives the
// state transition. The body of a part runs until the next boundary
// occurrence, trimming a trailing "\r\n". A part with a filename becomes
// a File entry; otherwise it is a plain post value.
func parseMultipart(env *Environment, body []byte, boundary string) {
	if boundary == "" {
		return
	}
	delim := append([]byte("--"), boundary...)

	pos := 0
	for {
		start := bytes.Index(body[pos:], delim)
		if start < 0 {
			return
		}
		pos += start + len(delim)

		// Terminal boundary: "--boundary--".
		if pos+1 < len(body) && body[pos] == '-' && body[pos+1] == '-' {
			return
		}
		if pos < len(body) && (body[pos] == '\r' || body[pos] == '\n') {
			pos = skipCRLF(body, pos)
		}

		name, filename, contentType, headerEnd, ok := scanPartHeader(body, pos)
		if !ok {
			return
		}

		next := bytes.Index(body[headerEnd:], delim)
		var bodyEnd int
		if next < 0 {
			bodyEnd = len(body)
		} else {
			bodyEnd = headerEnd + next
		}
		data := trimTrailingCRLF(body[headerEnd:bodyEnd])

		if filename != "" {
			env.Files[name] = append(env.Files[name], UploadedFile{
				Filename:    filename,
				ContentType: contentType,
				Data:        append([]byte(nil), data...),
			})
		} else {
			env.Posts.Add(name, string(data))
		}

		if next < 0 {
			return
		}
		pos = bodyEnd
	}
}

// scanPartHeader runs the HEADER/NAME/FILENAME/CONTENT_TYPE state machine
// over one part's headers, starting at offset start, and returns the
// captured name, filename, content-type, and the offset of the part body.
func scanPartHeader(body []byte, start int) (name, filename, contentType string, bodyStart int, ok bool) {
	const (
		namePrefix = `name="`
		filePrefix = `filename="`
		ctPrefix   = "Content-Type: "
	)

	state := mpHeader
	i := start
	var field []byte

	for i < len(body) {
		switch state {
		case mpHeader:
			switch {
			case hasPrefixAt(body, i, "\r\n\r\n"):
				return name, filename, contentType, i + 4, true
			case hasPrefixAt(body, i, "\n\n"):
				return name, filename, contentType, i + 2, true
			case hasPrefixAt(body, i, namePrefix):
				i += len(namePrefix)
				state = mpName
				field = field[:0]
			case hasPrefixAt(body, i, filePrefix):
				i += len(filePrefix)
				state = mpFilename
				field = field[:0]
			case hasPrefixAt(body, i, ctPrefix):
				i += len(ctPrefix)
				state = mpContentType
				field = field[:0]
			default:
				i++
			}

		case mpName:
			if body[i] == '"' {
				name = string(field)
				state = mpHeader
				i++
			} else {
				field = append(field, body[i])
				i++
			}

		case mpFilename:
			if body[i] == '"' {
				filename = string(field)
				state = mpHeader
				i++
			} else {
				field = append(field, body[i])
				i++
			}

		case mpContentType:
			if body[i] == '\r' || body[i] == '\n' {
				contentType = string(field)
				state = mpHeader
			} else {
				field = append(field, body[i])
				i++
			}
		}
	}
	return "", "", "", 0, false
}

func hasPrefixAt(b []byte, i int, prefix string) bool {
	if i+len(prefix) > len(b) {
		return false
	}
	return string(b[i:i+len(prefix)]) == prefix
}

func skipCRLF(b []byte, i int) int {
	if i < len(b) && b[i] == '\r' {
		i++
	}
	if i < len(b) && b[i] == '\n' {
		i++
	}
	return i
}

func trimTrailingCRLF(b []byte) []byte {
	if len(b) >= 2 && b[len(b)-2] == '\r' && b[len(b)-1] == '\n' {
		return b[:len(b)-2]
	}
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}
