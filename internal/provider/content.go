package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gcsdrive/gcsdrive-go/internal/gcsclient"
)

// ContentReader streams an object's media body with line-oriented reads
// and a Seek that maps onto the store's ranged reads.
type ContentReader struct {
	ctx    context.Context
	client StorageClient
	bucket string
	key    string
	object *gcsclient.Object
	body   io.ReadCloser
	br     *bufio.Reader
	pos    int64
}

// OpenReader implements the open-read-stream operation: one metadata GET,
// then the media body.
func (p *Provider) OpenReader(ctx context.Context, path string) (*ContentReader, error) {
	parsed := ParsePath(path)
	if parsed.Type() != PathTypeObject {
		return nil, fmt.Errorf("content operations require an object path, got %s", parsed.Type())
	}

	obj, err := p.client.GetObject(ctx, parsed.Bucket, parsed.Key)
	if err != nil {
		return nil, err
	}
	body, err := p.client.NewRangeReader(ctx, parsed.Bucket, parsed.Key, 0, -1)
	if err != nil {
		return nil, err
	}

	return &ContentReader{
		ctx:    ctx,
		client: p.client,
		bucket: parsed.Bucket,
		key:    parsed.Key,
		object: obj,
		body:   body,
		br:     bufio.NewReader(body),
	}, nil
}

// Object returns the metadata fetched when the reader was opened.
func (r *ContentReader) Object() *gcsclient.Object {
	return r.object
}

// Read passes through to the buffered media stream.
func (r *ContentReader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.pos += int64(n)
	return n, err
}

// ReadLines returns up to n lines without their line endings. n <= 0 reads
// to the end of the stream. Hitting EOF mid-count returns what was read
// with no error.
func (r *ContentReader) ReadLines(n int) ([]string, error) {
	var lines []string
	for n <= 0 || len(lines) < n {
		line, err := r.br.ReadString('\n')
		r.pos += int64(len(line))
		if len(line) > 0 {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if err == io.EOF {
				return lines, nil
			}
			return lines, err
		}
	}
	return lines, nil
}

// Seek reopens the media stream at the requested position.
func (r *ContentReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.object.Size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("cannot seek before start of object")
	}

	r.body.Close()
	body, err := r.client.NewRangeReader(r.ctx, r.bucket, r.key, abs, -1)
	if err != nil {
		return 0, err
	}
	r.body = body
	r.br.Reset(body)
	r.pos = abs
	return abs, nil
}

// Close releases the media stream.
func (r *ContentReader) Close() error {
	return r.body.Close()
}

// ContentWriter feeds an asynchronous streaming upload through a pipe.
// Written bytes flow to the store as they arrive; Close finishes the
// upload and reports its error.
type ContentWriter struct {
	pw     *io.PipeWriter
	done   chan struct{}
	object *gcsclient.Object
	err    error
	closed bool
}

// OpenWriter implements the open-write-stream operation. The bucket's
// content model is invalidated immediately: a read racing the in-progress
// write may see either state, which is accepted rather than prevented.
func (p *Provider) OpenWriter(ctx context.Context, path, contentType string) (*ContentWriter, error) {
	parsed := ParsePath(path)
	if parsed.Type() != PathTypeObject {
		return nil, fmt.Errorf("content operations require an object path, got %s", parsed.Type())
	}
	if contentType == "" {
		contentType = DefaultTextContentType
	}

	p.invalidateModel(parsed.Bucket)

	pr, pw := io.Pipe()
	w := &ContentWriter{pw: pw, done: make(chan struct{})}
	go func() {
		obj, err := p.client.Upload(ctx, parsed.Bucket, parsed.Key, contentType, pr)
		if err != nil {
			// Fail pending and future writes on the other end of
			// the pipe.
			pr.CloseWithError(err)
		}
		w.object, w.err = obj, err
		close(w.done)
	}()
	return w, nil
}

// Write streams raw bytes into the upload.
func (w *ContentWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// WriteLine writes one item as one line.
func (w *ContentWriter) WriteLine(s string) error {
	_, err := io.WriteString(w.pw, s+"\n")
	return err
}

// Close completes the upload and surfaces any error captured on the
// asynchronous side.
func (w *ContentWriter) Close() error {
	if !w.closed {
		w.closed = true
		w.pw.Close()
	}
	<-w.done
	return w.err
}

// Object returns the uploaded object's metadata. Only valid after Close.
func (w *ContentWriter) Object() *gcsclient.Object {
	return w.object
}
