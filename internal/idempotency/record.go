package idempotency

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// HeaderEntry is one response header pair. Names are not unique: a response
// may carry repeated headers (e.g. multiple Set-Cookie), so captured headers
// are an ordered slice of entries, never a map.
type HeaderEntry struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// Response is an in-memory capture of an HTTP-shaped response: status code,
// ordered header list and a fully materialized body. Stored once and
// replayed byte-identical to every retry.
type Response struct {
	StatusCode int
	Headers    []HeaderEntry
	Body       []byte
}

// Record is the storage encoding of a Response: a smallint status, headers
// as a JSON array preserving order and duplicates, and the raw body.
type Record struct {
	StatusCode int16
	Headers    []byte
	Body       []byte
}

// CaptureResponse buffers res into a replayable Response. The body is read
// to completion here: a streamed body cannot be replayed twice, so this
// buffered form becomes the single source of truth for both the immediate
// reply and the stored copy. The body reader is closed.
//
// http.Header is a map, so ordering across distinct names is not defined;
// names are captured in sorted order with per-name value order intact.
// Handlers that need exact cross-name ordering build a Response directly.
func CaptureResponse(res *http.Response) (*Response, error) {
	captured := &Response{StatusCode: res.StatusCode}

	names := make([]string, 0, len(res.Header))
	for name := range res.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range res.Header[name] {
			captured.Headers = append(captured.Headers, HeaderEntry{Name: name, Value: []byte(value)})
		}
	}

	if res.Body != nil {
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("buffer response body: %w", err)
		}
		if err := res.Body.Close(); err != nil {
			return nil, fmt.Errorf("close response body: %w", err)
		}
		captured.Body = body
	}

	return captured, nil
}

// Encode converts the response into its storage form.
func (r *Response) Encode() (Record, error) {
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return Record{}, fmt.Errorf("encode response headers: %w", err)
	}

	return Record{
		StatusCode: int16(r.StatusCode),
		Headers:    headers,
		Body:       r.Body,
	}, nil
}

// DecodeRecord reconstructs a Response from its stored form. The status
// code is validated against the HTTP range as a guard against storage
// corruption.
func DecodeRecord(rec Record) (*Response, error) {
	status := int(rec.StatusCode)
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatusCode, status)
	}

	var headers []HeaderEntry
	if len(rec.Headers) > 0 {
		if err := json.Unmarshal(rec.Headers, &headers); err != nil {
			return nil, fmt.Errorf("decode response headers: %w", err)
		}
	}

	return &Response{
		StatusCode: status,
		Headers:    headers,
		Body:       rec.Body,
	}, nil
}

// Write replays the response verbatim: headers in stored order, duplicates
// included, then the status line, then the body bytes.
func (r *Response) Write(w http.ResponseWriter) error {
	for _, h := range r.Headers {
		w.Header().Add(h.Name, string(h.Value))
	}
	w.WriteHeader(r.StatusCode)
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("write response body: %w", err)
	}
	return nil
}
