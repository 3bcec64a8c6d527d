// Package classify decides whether a buffered body is printable text and which
// charset should be used to decode it.
//
// The text/binary decision is a heuristic. Misclassification is possible in both
// directions and is never an error.
package classify

import (
	"mime"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	xunicode "golang.org/x/text/encoding/unicode"
)

const (
	// SniffLen is the maximum number of bytes inspected by IsPlaintext.
	SniffLen = 64 << 10

	// controlScanRunes is how many leading code points are checked for
	// non-whitespace control characters.
	controlScanRunes = 16
)

// Charset is a resolved character set. The zero value is UTF-8.
type Charset struct {
	// Name is the charset name as declared by the media type, or "utf-8".
	Name string

	enc encoding.Encoding
}

// UTF8 is the fallback charset.
var UTF8 = Charset{Name: "utf-8"}

// IsUTF8 reports whether text in this charset can be used without transcoding.
func (c Charset) IsUTF8() bool {
	return c.enc == nil
}

// Resolve returns the charset declared by contentType. A missing or unparseable
// media type, or one without a charset parameter, resolves to UTF-8. ok is false
// only when a charset is declared but not supported.
func Resolve(contentType string) (cs Charset, ok bool) {
	if contentType == "" {
		return UTF8, true
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil && params == nil {
		return UTF8, true
	}
	name := strings.TrimSpace(params["charset"])
	if name == "" {
		return UTF8, true
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(name)
		if err != nil || enc == nil {
			return Charset{Name: name}, false
		}
	}
	if enc == xunicode.UTF8 || enc == encoding.Nop {
		return Charset{Name: name}, true
	}
	if canonical, err := htmlindex.Name(enc); err == nil && canonical == "utf-8" {
		return Charset{Name: name}, true
	}
	return Charset{Name: name, enc: enc}, true
}

// IsPlaintext reports whether b probably contains human readable text in cs.
// Only the first SniffLen bytes are examined.
func IsPlaintext(b []byte, cs Charset) bool {
	prefix := b
	truncated := false
	if len(prefix) > SniffLen {
		prefix = prefix[:SniffLen]
		truncated = true
	}

	if cs.IsUTF8() {
		return scanUTF8(prefix, truncated)
	}

	decoded, err := cs.enc.NewDecoder().Bytes(prefix)
	if err != nil {
		return false
	}
	return scanDecoded(decoded)
}

func scanUTF8(b []byte, truncated bool) bool {
	runes := 0
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			// a sequence cut by the sniff window is not evidence of binary data
			if truncated && !utf8.FullRune(b[i:]) {
				return true
			}
			return false
		}
		if runes < controlScanRunes && isBinaryControl(r) {
			return false
		}
		runes++
		i += size
	}
	return true
}

func scanDecoded(b []byte) bool {
	runes := 0
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError {
			return false
		}
		if runes < controlScanRunes && isBinaryControl(r) {
			return false
		}
		runes++
		i += size
	}
	return true
}

func isBinaryControl(r rune) bool {
	return unicode.IsControl(r) && !unicode.IsSpace(r)
}

// Decode converts b to a Go string. UTF-8 content is returned verbatim.
func Decode(b []byte, cs Charset) (string, error) {
	if cs.IsUTF8() {
		return string(b), nil
	}
	out, err := cs.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// BodyEncoded reports whether h declares a content coding other than identity.
func BodyEncoded(h http.Header) bool {
	ce := h.Get("Content-Encoding")
	return ce != "" && !strings.EqualFold(ce, "identity")
}
