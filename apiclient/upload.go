package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultUploadField is the multipart field the file is sent under.
const DefaultUploadField = "file"

// FileUpload is one file to send as multipart/form-data.
type FileUpload struct {
	// FieldName defaults to DefaultUploadField.
	FieldName   string
	FileName    string
	ContentType string
	Content     io.Reader
}

type uploadOptions struct {
	fields   map[string]any
	progress func(percent int)
	header   http.Header
}

// UploadOption configures Upload.
type UploadOption func(*uploadOptions)

// WithProgress reports integer upload percentages in [0, 100]. The callback
// runs on the sending goroutine; values never decrease and 100 is reported
// once the upload succeeds.
func WithProgress(fn func(percent int)) UploadOption {
	return func(o *uploadOptions) {
		o.progress = fn
	}
}

// WithFields adds form fields next to the file. Values are formatted with fmt.Sprint.
func WithFields(fields map[string]any) UploadOption {
	return func(o *uploadOptions) {
		if o.fields == nil {
			o.fields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			o.fields[k] = v
		}
	}
}

func WithUploadHeader(key, value string) UploadOption {
	return func(o *uploadOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

// Upload POSTs file to path as multipart/form-data through the same pipeline
// as Do. Being a POST, it is retried on network errors only.
func (c *Client) Upload(ctx context.Context, path string, file FileUpload, opts ...UploadOption) (*Response[json.RawMessage], error) {
	var o uploadOptions
	for _, opt := range opts {
		opt(&o)
	}

	body, contentType, err := encodeMultipart(file, o.fields)
	if err != nil {
		c.metrics.observe(http.MethodPost, err)
		return nil, err
	}

	header := o.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", contentType)

	d, err := c.describe(Request{Method: http.MethodPost, Path: path, Header: header})
	if err != nil {
		c.metrics.observe(http.MethodPost, err)
		return nil, err
	}
	d.body = body
	if o.progress != nil {
		d.progress = newProgressTracker(int64(len(body)), o.progress)
	}

	resp, err := c.run(ctx, d)
	if err != nil {
		return nil, err
	}
	d.progress.done()
	return resp, nil
}

func encodeMultipart(file FileUpload, fields map[string]any) ([]byte, string, error) {
	if file.Content == nil {
		return nil, "", &ValidationError{Field: "file", Message: "content is required"}
	}
	field := file.FieldName
	if field == "" {
		field = DefaultUploadField
	}
	name := file.FileName
	if name == "" {
		name = uuid.NewString()
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Sorted for a deterministic body.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fmt.Sprint(fields[k])); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %q: %w", k, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(name)))
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, "", &ValidationError{Field: "file", Message: "read failed: " + err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressTracker turns bytes read by the transport into percentages.
// A retried attempt counts from zero again but reporting stays monotonic.
type progressTracker struct {
	total int64
	fn    func(int)

	mu   sync.Mutex
	last int
}

func newProgressTracker(total int64, fn func(int)) *progressTracker {
	return &progressTracker{total: total, fn: fn, last: -1}
}

func (p *progressTracker) wrap(r io.Reader) io.Reader {
	return &countingReader{r: r, tracker: p}
}

func (p *progressTracker) report(loaded int64) {
	percent := 100
	if p.total > 0 {
		// Round half up.
		percent = int((loaded*100 + p.total/2) / p.total)
	}
	percent = min(max(percent, 0), 100)

	p.mu.Lock()
	if percent <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = percent
	p.mu.Unlock()

	p.fn(percent)
}

func (p *progressTracker) done() {
	if p == nil {
		return
	}
	p.report(p.total)
}

type countingReader struct {
	r       io.Reader
	tracker *progressTracker
	loaded  int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.loaded += int64(n)
		c.tracker.report(c.loaded)
	}
	return n, err
}
