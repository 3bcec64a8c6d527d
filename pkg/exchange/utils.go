package exchange

import (
	"bytes"
	"io"
)

type readCloser struct {
	c io.ReadCloser
	r *bytes.Reader
	e error
}

func (rc *readCloser) Read(b []byte) (int, error) {
	n, err := rc.r.Read(b)
	if err == io.EOF && rc.e != nil {
		return n, rc.e
	}
	return n, err
}

func (rc *readCloser) Close() error {
	if rc.c == nil {
		return nil
	}
	return rc.c.Close()
}

func replay(b []byte) io.ReadCloser {
	return &readCloser{r: bytes.NewReader(b)}
}

// duplicateBody reads r to the end and returns the bytes, a reader that
// reproduces them, and the error that stopped the read. The reader returns
// the same error once the bytes are exhausted.
func duplicateBody(r io.ReadCloser) ([]byte, io.ReadCloser, error) {
	b, err := io.ReadAll(r)
	return b, &readCloser{c: r, r: bytes.NewReader(b), e: err}, err
}
