// Package transcript renders an exchange as a plain text transcript.
//
// A transcript at LevelBody looks like:
//
//	--> POST https://example.com/api HTTP/1.1
//	Content-Type: application/json
//	Content-Length: 7
//	Accept: */*
//
//	{"a":1}
//	--> END POST (7-byte body)
//	<-- 200 OK https://example.com/api (12ms)
//	Content-Type: application/json
//
//	{"ok":true}
//	<-- END HTTP (11-byte body)
//
// Every line, including the last, ends in a newline.
package transcript

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/netdumpsystems/netdump-go/pkg/classify"
	"github.com/netdumpsystems/netdump-go/pkg/exchange"
	"github.com/netdumpsystems/netdump-go/pkg/redact"
)

const defaultProto = "HTTP/1.1"

// Renderer turns exchanges into transcripts. The zero value renders
// nothing.
type Renderer struct {
	Level Level
	// Redact, if set, hides sensitive headers and body keys.
	Redact *redact.Rules
}

type writer struct {
	strings.Builder
}

func (w *writer) line(format string, args ...any) {
	fmt.Fprintf(w, format, args...)
	w.WriteByte('\n')
}

// Render returns the transcript of ex.
func (r Renderer) Render(ex *exchange.Exchange) string {
	if r.Level <= LevelNone || ex == nil || ex.Request == nil {
		return ""
	}
	w := &writer{}
	r.renderRequest(w, ex.Request)

	switch {
	case ex.Err != nil:
		w.line("<-- HTTP FAILED: %v", ex.Err)
	case ex.Response == nil:
		w.line("<-- HTTP FAILED: %v", exchange.ErrNilResponse)
	default:
		r.renderResponse(w, ex.Request, ex.Response)
	}
	return w.String()
}

func (r Renderer) renderRequest(w *writer, req *exchange.Request) {
	logHeaders := r.Level >= LevelHeaders
	logBody := r.Level >= LevelBody

	proto := req.Proto
	if proto == "" {
		proto = defaultProto
	}
	start := fmt.Sprintf("--> %s %s %s", req.Method, req.URL, proto)
	if !logHeaders && req.HasBody {
		start += fmt.Sprintf(" (%d-byte body)", req.Body.ContentLength)
	}
	w.line("%s", start)

	if !logHeaders {
		return
	}

	if req.HasBody {
		if req.Body.ContentType != "" {
			w.line("Content-Type: %s", r.Redact.Header("Content-Type", req.Body.ContentType))
		}
		if req.Body.ContentLength >= 0 {
			w.line("Content-Length: %d", req.Body.ContentLength)
		}
	}
	r.renderHeaders(w, req.Header, "Content-Type", "Content-Length")

	body := req.Body
	switch {
	case !logBody || !req.HasBody || (!body.Captured && !body.Encoded):
		w.line("--> END %s", req.Method)
	case body.Encoded:
		w.line("--> END %s (encoded body omitted)", req.Method)
	case body.Err != nil:
		w.line("--> END %s (unreadable body: %v)", req.Method, body.Err)
	default:
		text, plain := r.bodyText(body, r.Redact.RequestBody)
		w.line("")
		if !plain {
			w.line("--> END %s (binary %d-byte body omitted)", req.Method, len(body.Bytes))
			return
		}
		w.line("%s", text)
		w.line("--> END %s (%d-byte body)", req.Method, len(body.Bytes))
	}
}

func (r Renderer) renderResponse(w *writer, req *exchange.Request, res *exchange.Response) {
	logHeaders := r.Level >= LevelHeaders
	logBody := r.Level >= LevelBody

	status := fmt.Sprint(res.Code)
	if res.Message != "" {
		status += " " + res.Message
	}
	size := ""
	if !logHeaders {
		if res.Body.ContentLength >= 0 {
			size = fmt.Sprintf(", %d-byte body", res.Body.ContentLength)
		} else {
			size = ", unknown-length body"
		}
	}
	w.line("<-- %s %s (%dms%s)", status, res.URL, res.Elapsed.Milliseconds(), size)

	if !logHeaders {
		return
	}
	r.renderHeaders(w, res.Header)

	body := res.Body
	switch {
	case !logBody || !res.HasBody || (!body.Captured && !body.Encoded):
		w.line("<-- END HTTP")
	case body.Encoded:
		w.line("<-- END HTTP (encoded body omitted)")
	case body.Err != nil:
		w.line("<-- END HTTP (unreadable body: %v)", body.Err)
	default:
		text, plain := r.bodyText(body, r.Redact.ResponseBody)
		if !plain {
			w.line("")
			w.line("<-- END HTTP (binary %d-byte body omitted)", len(body.Bytes))
			return
		}
		if len(body.Bytes) > 0 {
			w.line("")
			w.line("%s", text)
		}
		w.line("<-- END HTTP (%d-byte body)", len(body.Bytes))
	}
}

// renderHeaders writes h sorted by name, one line per value, leaving out
// the names in skip.
func (r Renderer) renderHeaders(w *writer, h http.Header, skip ...string) {
	names := make([]string, 0, len(h))
	for name := range h {
		if !containsFold(skip, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			w.line("%s: %s", name, r.Redact.Header(name, v))
		}
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// bodyText decodes a captured body. plain is false for binary content. An
// unsupported charset yields a notice in place of the text.
func (r Renderer) bodyText(body exchange.Body, redactBody func(string) string) (text string, plain bool) {
	cs, ok := classify.Resolve(body.ContentType)
	check := cs
	if !ok {
		check = classify.UTF8
	}
	if !classify.IsPlaintext(body.Bytes, check) {
		return "", false
	}
	if !ok {
		return fmt.Sprintf("charset %s unresolved, body text omitted", cs.Name), true
	}
	decoded, err := classify.Decode(body.Bytes, cs)
	if err != nil {
		return fmt.Sprintf("charset %s unresolved, body text omitted", cs.Name), true
	}
	return redactBody(decoded), true
}
