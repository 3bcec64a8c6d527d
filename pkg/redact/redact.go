// Package redact hides sensitive header values and JSON body fields before a
// transcript is written.
//
// Redacted values are replaced by "redacted:" followed by the hex SHA-1 of the
// original value, so equal secrets can still be correlated across
// transcripts without being readable.
//
// Body keys use gjson path syntax. A "[]" suffix on a path element applies the
// rest of the path to every element of that array, e.g. "cards[].number".
package redact

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const arrayMarker = "[]"

// Rules lists what to redact. A nil *Rules redacts nothing.
type Rules struct {
	// Headers holds lowercase header names.
	Headers map[string]bool

	RequestBodyKeys  []string
	ResponseBodyKeys []string
}

// New builds Rules from header names in any case and body key paths. An
// error is returned for malformed key paths.
func New(headers, requestBodyKeys, responseBodyKeys []string) (*Rules, error) {
	r := &Rules{Headers: map[string]bool{}}
	for _, h := range headers {
		r.Headers[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, keys := range [][]string{requestBodyKeys, responseBodyKeys} {
		for _, k := range keys {
			if err := validateKeyPath(k); err != nil {
				return nil, err
			}
		}
	}
	r.RequestBodyKeys = append(r.RequestBodyKeys, requestBodyKeys...)
	r.ResponseBodyKeys = append(r.ResponseBodyKeys, responseBodyKeys...)
	return r, nil
}

func validateKeyPath(path string) error {
	if path == "" {
		return fmt.Errorf("redact: empty key path")
	}
	for _, part := range strings.Split(path, ".") {
		if strings.TrimSuffix(part, arrayMarker) == "" && part != arrayMarker {
			return fmt.Errorf("redact: invalid key path %q", path)
		}
	}
	return nil
}

// Hash returns the marker that replaces a redacted value.
func Hash(v string) string {
	sha := sha1.Sum([]byte(v))
	return "redacted:" + hex.EncodeToString(sha[:])
}

// Header returns the value to render for header name.
func (r *Rules) Header(name, value string) string {
	if r == nil || !r.Headers[strings.ToLower(name)] {
		return value
	}
	return Hash(value)
}

// RequestBody redacts the request body keys in text. Text that is not JSON
// is returned as is.
func (r *Rules) RequestBody(text string) string {
	if r == nil {
		return text
	}
	return redactJSON(text, r.RequestBodyKeys)
}

// ResponseBody redacts the response body keys in text. Text that is not JSON
// is returned as is.
func (r *Rules) ResponseBody(text string) string {
	if r == nil {
		return text
	}
	return redactJSON(text, r.ResponseBodyKeys)
}

func redactJSON(text string, paths []string) string {
	if len(paths) == 0 || !gjson.Valid(text) {
		return text
	}
	out := text
	for _, path := range paths {
		for _, p := range expandPath(out, path) {
			res := gjson.Get(out, p)
			if !res.Exists() {
				continue
			}
			v := res.Raw
			if res.Type == gjson.String {
				v = res.Str
			}
			if replaced, err := sjson.Set(out, p, Hash(v)); err == nil {
				out = replaced
			}
		}
	}
	return out
}

// expandPath resolves every "[]" in path against the arrays present in json,
// e.g. "a[].b" becomes "a.0.b", "a.1.b".
func expandPath(json, path string) []string {
	head, tail, found := strings.Cut(path, arrayMarker)
	if !found {
		return []string{path}
	}
	head = strings.TrimSuffix(head, ".")
	tail = strings.TrimPrefix(tail, ".")

	countPath := "#"
	if head != "" {
		countPath = head + ".#"
	}
	n := int(gjson.Get(json, countPath).Int())

	var paths []string
	for i := 0; i < n; i++ {
		p := strconv.Itoa(i)
		if head != "" {
			p = head + "." + p
		}
		if tail != "" {
			p += "." + tail
		}
		paths = append(paths, expandPath(json, p)...)
	}
	return paths
}
