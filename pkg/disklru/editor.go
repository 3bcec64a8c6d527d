package disklru

import (
	"fmt"
	"os"
	"sync"
)

// Editor writes a new value for one key. Nothing is visible to readers
// until Commit. An Editor is not safe for concurrent use.
type Editor struct {
	c       *Cache
	e       *entry
	f       *os.File
	written int64
	err     error
	done    bool
}

// Key returns the key being edited.
func (ed *Editor) Key() string {
	return ed.e.key
}

func (ed *Editor) Write(p []byte) (int, error) {
	if ed.done {
		return 0, ErrEditorDone
	}
	if ed.err != nil {
		return 0, ed.err
	}
	if ed.f == nil {
		if err := ed.open(); err != nil {
			return 0, err
		}
	}
	n, err := ed.f.Write(p)
	ed.written += int64(n)
	if err != nil {
		ed.err = fmt.Errorf("%w: write %s: %v", ErrStorage, ed.e.key, err)
		return n, ed.err
	}
	return n, nil
}

func (ed *Editor) open() error {
	f, err := os.OpenFile(ed.c.dirtyPath(ed.e.key), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		ed.err = fmt.Errorf("%w: create %s: %v", ErrStorage, ed.e.key, err)
		return ed.err
	}
	ed.f = f
	return nil
}

// Commit publishes the written bytes as the value for the key. On failure
// the previous value, if any, is kept.
func (ed *Editor) Commit() error {
	if ed.done {
		return ErrEditorDone
	}
	ed.done = true

	if ed.err == nil && ed.f == nil {
		// empty value
		_ = ed.open()
	}
	if ed.f != nil {
		var err error
		if ed.c.sync && ed.err == nil {
			err = ed.f.Sync()
		}
		if cerr := ed.f.Close(); err == nil {
			err = cerr
		}
		if err != nil && ed.err == nil {
			ed.err = fmt.Errorf("%w: close %s: %v", ErrStorage, ed.e.key, err)
		}
	}

	if ed.err != nil {
		_ = ed.c.completeEdit(ed, false)
		return ed.err
	}
	return ed.c.completeEdit(ed, true)
}

// Abort discards the written bytes. The previous value, if any, is kept.
func (ed *Editor) Abort() error {
	if ed.done {
		return ErrEditorDone
	}
	ed.done = true
	if ed.f != nil {
		_ = ed.f.Close()
	}
	return ed.c.completeEdit(ed, false)
}

// Snapshot is an open value. Closing it releases the entry for eviction.
type Snapshot struct {
	c    *Cache
	e    *entry
	f    *os.File
	size int64
	once sync.Once
}

func (s *Snapshot) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

// Key returns the key of the value.
func (s *Snapshot) Key() string {
	return s.e.key
}

// Size returns the length of the value in bytes.
func (s *Snapshot) Size() int64 {
	return s.size
}

func (s *Snapshot) Close() error {
	var err error
	s.once.Do(func() {
		err = s.f.Close()
		s.c.release(s.e)
	})
	return err
}
