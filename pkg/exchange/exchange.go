// Package exchange captures what is needed to describe one HTTP request and
// its outcome, leaving the original messages usable by the caller.
package exchange

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/netdumpsystems/netdump-go/pkg/classify"
)

// overridden in tests
var Clock = time.Now

var (
	// ErrNilBody describes a response that was returned without a body.
	ErrNilBody = errors.New("response body is nil")
	// ErrNilResponse describes a transport that returned neither a response
	// nor an error.
	ErrNilResponse = errors.New("response is nil")
)

// Body is a message body as seen by the logger.
type Body struct {
	ContentType string
	// ContentLength is the declared length, -1 if unknown.
	ContentLength int64
	// Encoded is set when a content coding other than identity is declared.
	Encoded bool

	// Captured reports whether Bytes and Err hold the body contents.
	Captured bool
	Bytes    []byte
	// Err is the error that ended reading the body, if any.
	Err error
}

// Request is the recorded side of an outgoing request.
type Request struct {
	ID          string
	Method      string
	URL         string
	Proto       string
	Header      http.Header
	HasBody     bool
	Body        Body
	RequestedAt time.Time
	// SentAt is when the request was handed to the next transport, after
	// its body was buffered. Zero means RequestedAt.
	SentAt time.Time
}

// Response is the recorded side of the answer to a Request.
type Response struct {
	Code        int
	Message     string
	URL         string
	Header      http.Header
	HasBody     bool
	Body        Body
	RespondedAt time.Time
	Elapsed     time.Duration
}

// Exchange is one request and its outcome. Exactly one of Response and Err
// is set.
type Exchange struct {
	Request  *Request
	Response *Response
	Err      error
}

// NewRequest describes r. When capture is set and r has a readable body,
// the body is read in full and the returned request is a clone of r whose
// body replays the same bytes and read error. Otherwise r itself is
// returned.
func NewRequest(id string, r *http.Request, capture bool) (*Request, *http.Request) {
	/*
		Requests built by hand or parsed from the wire may carry only a
		request URI, in which case the host is the best available URL.
	*/
	var url string
	if r.URL != nil {
		url = r.URL.String()
	}
	if url == "" {
		url = r.Host
	}

	req := &Request{
		ID:          id,
		Method:      r.Method,
		URL:         url,
		Proto:       r.Proto,
		Header:      r.Header.Clone(),
		HasBody:     r.Body != nil && r.Body != http.NoBody,
		RequestedAt: Clock(),
		Body: Body{
			ContentType:   r.Header.Get("Content-Type"),
			ContentLength: r.ContentLength,
			Encoded:       classify.BodyEncoded(r.Header),
		},
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	// a client request with a body and zero length has an unknown length
	if req.HasBody && r.ContentLength == 0 {
		req.Body.ContentLength = -1
	}

	if !capture || !req.HasBody || req.Body.Encoded {
		return req, r
	}

	b, rc, err := duplicateBody(r.Body)
	req.Body.Captured = true
	req.Body.Bytes = b
	req.Body.Err = err

	out := r.Clone(r.Context())
	out.Body = rc
	if err == nil {
		out.GetBody = func() (io.ReadCloser, error) {
			return replay(b), nil
		}
	}
	return req, out
}

// NewResponse describes res, the answer to req. When capture is set and res
// has a readable body, res.Body is replaced by a reader that replays the
// bytes read and the error that ended the read.
func NewResponse(req *Request, res *http.Response, capture bool) *Response {
	now := Clock()
	start := req.SentAt
	if start.IsZero() {
		start = req.RequestedAt
	}
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	url := req.URL
	if res.Request != nil && res.Request.URL != nil {
		url = res.Request.URL.String()
	}

	resp := &Response{
		Code:        res.StatusCode,
		Message:     statusMessage(res),
		URL:         url,
		Header:      res.Header.Clone(),
		HasBody:     HasBody(req.Method, res),
		RespondedAt: now,
		Elapsed:     elapsed,
		Body: Body{
			ContentType:   res.Header.Get("Content-Type"),
			ContentLength: res.ContentLength,
			Encoded:       classify.BodyEncoded(res.Header),
		},
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}

	if !capture || !resp.HasBody || resp.Body.Encoded || res.Body == nil {
		return resp
	}

	b, rc, err := duplicateBody(res.Body)
	resp.Body.Captured = true
	resp.Body.Bytes = b
	resp.Body.Err = err
	res.Body = rc
	return resp
}

func statusMessage(res *http.Response) string {
	code := strconv.Itoa(res.StatusCode)
	if msg := strings.TrimSpace(strings.TrimPrefix(res.Status, code)); msg != "" {
		return msg
	}
	return http.StatusText(res.StatusCode)
}

// HasBody reports whether res carries a body according to HTTP semantics.
// Responses to HEAD never do, 1xx, 204 and 304 responses only when they
// declare a length or chunked framing.
func HasBody(method string, res *http.Response) bool {
	if method == http.MethodHead {
		return false
	}
	code := res.StatusCode
	if (code < 100 || code >= 200) && code != http.StatusNoContent && code != http.StatusNotModified {
		return true
	}
	if res.Header.Get("Content-Length") != "" {
		return true
	}
	if strings.EqualFold(res.Header.Get("Transfer-Encoding"), "chunked") {
		return true
	}
	for _, te := range res.TransferEncoding {
		if strings.EqualFold(te, "chunked") {
			return true
		}
	}
	return false
}
