package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
)

// Body is a request payload. Implementations are JSON, Multipart and Raw.
type Body interface {
	// open returns a fresh reader and its Content-Type.
	open() (io.ReadCloser, string, error)
}

type jsonBody struct{ v any }

// JSON encodes v as application/json.
func JSON(v any) Body { return jsonBody{v: v} }

func (b jsonBody) open() (io.ReadCloser, string, error) {
	buf, err := json.Marshal(b.v)
	if err != nil {
		return nil, "", fmt.Errorf("transport: encode json body: %w", err)
	}
	return io.NopCloser(bytes.NewReader(buf)), "application/json", nil
}

// File is one file part of a multipart body.
type File struct {
	Field       string
	Name        string
	ContentType string // optional; defaults to application/octet-stream
	Reader      io.Reader
}

type multipartBody struct {
	fields map[string]string
	files  []File
}

// Multipart streams a multipart/form-data body.
// The Content-Type always carries the generated boundary.
func Multipart(fields map[string]string, files ...File) Body {
	return multipartBody{fields: fields, files: files}
}

func (b multipartBody) open() (io.ReadCloser, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()

	go func() {
		pw.CloseWithError(b.write(mw))
	}()

	return pr, contentType, nil
}

func (b multipartBody) write(mw *multipart.Writer) error {
	keys := make([]string, 0, len(b.fields))
	for k := range b.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := mw.WriteField(k, b.fields[k]); err != nil {
			return err
		}
	}

	for _, f := range b.files {
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(f.Field), escapeQuotes(f.Name)))
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if f.Reader != nil {
			if _, err := io.Copy(part, f.Reader); err != nil {
				return err
			}
		}
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

type rawBody struct {
	contentType string
	data        []byte
}

// Raw sends data with the given Content-Type.
func Raw(contentType string, data []byte) Body {
	return rawBody{contentType: contentType, data: data}
}

func (b rawBody) open() (io.ReadCloser, string, error) {
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}
