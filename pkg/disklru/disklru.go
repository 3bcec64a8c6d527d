// Package disklru is a size-bounded key/value store on disk with
// least-recently-used eviction.
//
// Each value lives in its own file named after its key. A journal records
// every edit, commit, read and removal so the index can be rebuilt after a
// restart. Values are written to a temporary file and renamed into place on
// commit, so a reader sees either the previous value or the new one, never a
// partial write. A process that dies between Edit and Commit leaves the
// previous value intact.
//
// Journal format:
//
//	netdump.disklru
//	1
//
//	DIRTY 1d3f6a...       an edit was started
//	CLEAN 1d3f6a... 4821  an edit was committed, value is 4821 bytes
//	READ 1d3f6a...        the value was read
//	REMOVE 1d3f6a...      the value was removed or evicted
//	SIZE 93112            total size when the journal was compacted
package disklru

import (
	"bufio"
	"container/list"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/netdumpsystems/netdump-go/pkg/metrics"
)

const (
	journalFile       = "journal"
	journalFileTmp    = "journal.tmp"
	journalFileBackup = "journal.bkp"

	magic   = "netdump.disklru"
	version = "1"

	opClean  = "CLEAN"
	opDirty  = "DIRTY"
	opRemove = "REMOVE"
	opRead   = "READ"
	opSize   = "SIZE"

	dirtySuffix = ".tmp"

	// the journal is compacted once it holds this many redundant lines and
	// more redundant lines than live entries
	compactThreshold = 2000
)

var (
	// ErrStorage wraps every failure of the underlying file system.
	ErrStorage = errors.New("disklru: storage failure")
	// ErrEditInProgress is returned by Edit when the key is already being
	// written or is waiting for its readers before removal.
	ErrEditInProgress = errors.New("disklru: key is busy")
	// ErrInvalidKey is returned for keys that are not usable as file names.
	ErrInvalidKey = errors.New("disklru: invalid key")
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = errors.New("disklru: not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("disklru: cache closed")
	// ErrEditorDone is returned when an Editor is used after Commit or Abort.
	ErrEditorDone = errors.New("disklru: editor already completed")

	errCorruptJournal = errors.New("disklru: corrupt journal")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,120}$`)

// ValidKey reports whether key can be stored.
func ValidKey(key string) bool {
	return key != journalFile && keyPattern.MatchString(key)
}

// Options configure a Cache. The zero value is usable.
type Options struct {
	// Logger receives recovery and storage warnings
	// (defaults to a disabled logger)
	Logger *zerolog.Logger

	// Metrics, if set, is updated as the cache changes.
	Metrics *metrics.Store

	// Sync fsyncs each value before it is renamed into place and the
	// directory after the rename.
	Sync bool

	// KeepOversized leaves stored values in place when they exceed maxSize
	// at Open. They are evicted by the next commit or SetMaxSize.
	KeepOversized bool
}

// EntryInfo describes a stored value.
type EntryInfo struct {
	Key  string
	Size int64
}

type entry struct {
	key      string
	size     int64
	readable bool
	readers  int
	doomed   bool
	elem     *list.Element
}

// Cache is a bounded on-disk LRU store. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	size    int64
	// bytes held by doomed entries that wait for their readers
	pending int64

	entries map[string]*entry
	// front is least recently used
	lru     *list.List
	editing map[string]struct{}

	journal      *os.File
	jw           *bufio.Writer
	journalErr   error
	redundantOps int
	closed       bool

	log     zerolog.Logger
	metrics *metrics.Store
	sync    bool
}

// Open opens the cache stored in dir, creating it if needed.
//
// An error is returned if dir cannot be created or written. A journal that
// cannot be parsed is not an error: the stored values are discarded and the
// cache starts empty.
func Open(dir string, maxSize int64, opts *Options) (*Cache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("disklru: maxSize must be positive, got %d", maxSize)
	}
	if opts == nil {
		opts = &Options{}
	}

	c := &Cache{
		dir:     dir,
		maxSize: maxSize,
		metrics: opts.Metrics,
		sync:    opts.Sync,
		log:     zerolog.Nop(),
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "disklru").Logger()
	}
	c.reset()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStorage, dir, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.recoverBackup(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := c.readJournal(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn().Err(err).Str("dir", dir).Msg("discarding unreadable journal and stored values")
			c.reset()
			if err := c.removeContents(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
	} else {
		c.processJournal()
	}

	if err := c.rebuildJournal(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !opts.KeepOversized {
		c.trim()
	}
	c.updateMetrics()
	return c, nil
}

func (c *Cache) reset() {
	c.entries = map[string]*entry{}
	c.lru = list.New()
	c.editing = map[string]struct{}{}
	c.size = 0
	c.pending = 0
	c.redundantOps = 0
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *Cache) cleanPath(key string) string {
	return c.path(key)
}

func (c *Cache) dirtyPath(key string) string {
	return c.path(key + dirtySuffix)
}

// recoverBackup restores journal.bkp if a compaction was interrupted after
// the old journal was moved aside.
func (c *Cache) recoverBackup() error {
	bkp := c.path(journalFileBackup)
	if _, err := os.Stat(bkp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if _, err := os.Stat(c.path(journalFile)); err == nil {
		return os.Remove(bkp)
	}
	return os.Rename(bkp, c.path(journalFile))
}

func (c *Cache) readJournal() error {
	data, err := os.ReadFile(c.path(journalFile))
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	// the last element is empty, or a line cut short by a crash
	lines = lines[:len(lines)-1]
	if len(lines) < 3 || lines[0] != magic || lines[1] != version || lines[2] != "" {
		return fmt.Errorf("%w: unexpected header", errCorruptJournal)
	}

	for i, line := range lines[3:] {
		if err := c.readJournalLine(line); err != nil {
			return fmt.Errorf("line %d: %w", i+4, err)
		}
	}
	c.redundantOps = len(lines) - 3 - len(c.entries)
	return nil
}

func (c *Cache) readJournalLine(line string) error {
	op, rest, _ := strings.Cut(line, " ")
	if op == opSize {
		declared, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || declared < 0 {
			return fmt.Errorf("%w: %q", errCorruptJournal, line)
		}
		var total int64
		for _, e := range c.entries {
			if e.readable {
				total += e.size
			}
		}
		if total != declared {
			c.log.Warn().Int64("journal", declared).Int64("entries", total).Msg("journal size snapshot does not match entries")
		}
		return nil
	}

	key, arg, _ := strings.Cut(rest, " ")
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", errCorruptJournal, line)
	}

	switch op {
	case opRemove:
		if e, ok := c.entries[key]; ok {
			c.lru.Remove(e.elem)
			delete(c.entries, key)
		}
	case opDirty:
		c.touchForReplay(key)
		c.editing[key] = struct{}{}
	case opClean:
		size, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("%w: %q", errCorruptJournal, line)
		}
		e := c.touchForReplay(key)
		e.readable = true
		e.size = size
		delete(c.editing, key)
	case opRead:
		if e, ok := c.entries[key]; ok {
			c.lru.MoveToBack(e.elem)
		}
	default:
		return fmt.Errorf("%w: %q", errCorruptJournal, line)
	}
	return nil
}

func (c *Cache) touchForReplay(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key}
		e.elem = c.lru.PushBack(e)
		c.entries[key] = e
		return e
	}
	c.lru.MoveToBack(e.elem)
	return e
}

// processJournal drops unfinished edits and computes the total size from
// the files actually present.
func (c *Cache) processJournal() {
	for key := range c.editing {
		_ = os.Remove(c.dirtyPath(key))
	}
	c.editing = map[string]struct{}{}

	c.size = 0
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		info, err := os.Stat(c.cleanPath(e.key))
		if !e.readable || err != nil {
			_ = os.Remove(c.cleanPath(e.key))
			c.lru.Remove(el)
			delete(c.entries, e.key)
		} else {
			e.size = info.Size()
			c.size += e.size
		}
		el = next
	}
}

// rebuildJournal writes a compact journal that reflects the current index
// and swaps it in place of the old one.
func (c *Cache) rebuildJournal() error {
	if c.journal != nil {
		_ = c.jw.Flush()
		_ = c.journal.Close()
		c.journal = nil
		c.jw = nil
	}

	tmp, err := os.OpenFile(c.path(journalFileTmp), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "%s\n%s\n\n", magic, version)
	var total int64
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if _, editing := c.editing[e.key]; editing {
			fmt.Fprintf(w, "%s %s\n", opDirty, e.key)
			if !e.readable {
				continue
			}
		}
		if e.readable {
			fmt.Fprintf(w, "%s %s %d\n", opClean, e.key, e.size)
			total += e.size
		}
	}
	fmt.Fprintf(w, "%s %d\n", opSize, total)
	err = w.Flush()
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if _, err := os.Stat(c.path(journalFile)); err == nil {
		if err := os.Rename(c.path(journalFile), c.path(journalFileBackup)); err != nil {
			return err
		}
	}
	if err := os.Rename(c.path(journalFileTmp), c.path(journalFile)); err != nil {
		return err
	}
	_ = os.Remove(c.path(journalFileBackup))

	f, err := os.OpenFile(c.path(journalFile), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	c.journal = f
	c.jw = bufio.NewWriter(f)
	c.journalErr = nil
	c.redundantOps = 0
	return nil
}

func (c *Cache) compactIfNeeded() {
	if c.redundantOps < compactThreshold || c.redundantOps < len(c.entries) {
		return
	}
	if err := c.rebuildJournal(); err != nil {
		c.journalErr = err
		c.log.Warn().Err(err).Msg("journal compaction failed")
	}
}

// appendLine writes one journal line. Lines are buffered until flush is set
// or Flush is called.
func (c *Cache) appendLine(flush bool, fields ...string) error {
	if c.closed {
		return ErrClosed
	}
	if c.journalErr != nil {
		// the failed journal may hold a partial line, so start a fresh one
		if err := c.rebuildJournal(); err != nil {
			c.journalErr = err
			return fmt.Errorf("%w: journal: %v", ErrStorage, err)
		}
		c.log.Info().Msg("journal rebuilt after a failed write")
	}
	_, err := c.jw.WriteString(strings.Join(fields, " ") + "\n")
	if err == nil && flush {
		err = c.jw.Flush()
	}
	if err != nil {
		c.journalErr = err
		return fmt.Errorf("%w: journal: %v", ErrStorage, err)
	}
	return nil
}

// Edit starts writing the value for key. It never waits: if the key is
// already being written ErrEditInProgress is returned.
func (c *Cache) Edit(key string) (*Editor, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, busy := c.editing[key]; busy {
		return nil, ErrEditInProgress
	}
	e := c.entries[key]
	if e != nil && e.doomed {
		return nil, ErrEditInProgress
	}

	// the DIRTY line must be durable before the temporary file exists
	if err := c.appendLine(true, opDirty, key); err != nil {
		return nil, err
	}
	if e == nil {
		e = &entry{key: key}
		e.elem = c.lru.PushBack(e)
		c.entries[key] = e
	} else {
		c.lru.MoveToBack(e.elem)
	}
	c.editing[key] = struct{}{}
	return &Editor{c: c, e: e}, nil
}

func (c *Cache) completeEdit(ed *Editor, success bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := ed.e
	delete(c.editing, e.key)

	if c.closed {
		_ = os.Remove(c.dirtyPath(e.key))
		if success {
			return ErrClosed
		}
		return nil
	}

	var commitErr error
	if success {
		if err := os.Rename(c.dirtyPath(e.key), c.cleanPath(e.key)); err != nil {
			commitErr = fmt.Errorf("%w: commit %s: %v", ErrStorage, e.key, err)
		} else {
			if c.sync {
				if err := syncDir(c.dir); err != nil {
					c.log.Debug().Err(err).Msg("directory sync failed")
				}
			}
			if e.readable {
				c.size -= e.size
			}
			e.size = ed.written
			e.readable = true
			c.size += e.size
			c.lru.MoveToBack(e.elem)
			c.redundantOps++
			c.metrics.RecordCommit()
			err := c.appendLine(false, opClean, e.key, strconv.FormatInt(e.size, 10))
			c.trim()
			c.compactIfNeeded()
			c.updateMetrics()
			return err
		}
	}

	_ = os.Remove(c.dirtyPath(e.key))
	c.redundantOps++
	var err error
	if e.readable {
		err = c.appendLine(false, opClean, e.key, strconv.FormatInt(e.size, 10))
	} else {
		c.lru.Remove(e.elem)
		delete(c.entries, e.key)
		err = c.appendLine(false, opRemove, e.key)
	}
	c.compactIfNeeded()
	if commitErr != nil {
		return commitErr
	}
	return err
}

// Get opens the value for key. The returned Snapshot must be closed; while
// it is open the entry is not deleted.
func (c *Cache) Get(key string) (*Snapshot, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	e := c.entries[key]
	if e == nil || !e.readable || e.doomed {
		return nil, ErrNotFound
	}

	f, err := os.Open(c.cleanPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.remove(e, false)
			c.updateMetrics()
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, key, err)
	}

	e.readers++
	c.lru.MoveToBack(e.elem)
	c.redundantOps++
	if err := c.appendLine(false, opRead, key); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("read not journaled")
	}
	c.compactIfNeeded()
	return &Snapshot{c: c, e: e, f: f, size: e.size}, nil
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.readers--
	if e.readers > 0 || !e.doomed {
		return
	}
	c.remove(e, false)
	if !c.closed {
		c.trim()
		c.compactIfNeeded()
	}
	c.updateMetrics()
}

// remove deletes e, or dooms it if it is being read. It reports false if e
// is being written.
func (c *Cache) remove(e *entry, evicted bool) bool {
	if _, editing := c.editing[e.key]; editing {
		return false
	}
	if evicted {
		c.metrics.RecordEviction()
	}
	if e.readers > 0 {
		if !e.doomed {
			e.doomed = true
			c.pending += e.size
		}
		return true
	}

	if err := os.Remove(c.cleanPath(e.key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Warn().Err(err).Str("key", e.key).Msg("failed to delete value")
	}
	if e.doomed {
		c.pending -= e.size
	}
	if e.readable {
		c.size -= e.size
	}
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	c.redundantOps++
	if err := c.appendLine(false, opRemove, e.key); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Debug().Err(err).Str("key", e.key).Msg("removal not journaled")
	}
	return true
}

// trim evicts least recently used entries until the cache fits. Entries
// being written are skipped; entries being read are doomed and deleted once
// their last reader closes.
func (c *Cache) trim() {
	for el := c.lru.Front(); el != nil && c.size-c.pending > c.maxSize; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.readable && !e.doomed {
			c.remove(e, true)
		}
		el = next
	}
}

func (c *Cache) updateMetrics() {
	if c.metrics == nil {
		return
	}
	c.metrics.UpdateSize(c.len(), c.size-c.pending)
}

// Remove deletes the value for key. It reports false if there is no value
// or the key is being written.
func (c *Cache) Remove(key string) (bool, error) {
	if !ValidKey(key) {
		return false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	e := c.entries[key]
	if e == nil || !e.readable || e.doomed {
		return false, nil
	}
	removed := c.remove(e, false)
	c.compactIfNeeded()
	c.updateMetrics()
	return removed, nil
}

// Flush makes all completed operations durable. If an earlier journal write
// failed, Flush rebuilds the journal from the in-memory index.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.journalErr != nil {
		if err := c.rebuildJournal(); err != nil {
			c.journalErr = err
			return fmt.Errorf("%w: rebuild journal: %v", ErrStorage, err)
		}
		return nil
	}
	if err := c.jw.Flush(); err != nil {
		c.journalErr = err
		return fmt.Errorf("%w: flush journal: %v", ErrStorage, err)
	}
	if err := c.journal.Sync(); err != nil {
		return fmt.Errorf("%w: sync journal: %v", ErrStorage, err)
	}
	return nil
}

// Close flushes and closes the journal. In-flight edits fail on Commit and
// open snapshots stay readable.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.journal == nil {
		return nil
	}
	err := c.journalErr
	if err == nil {
		err = c.jw.Flush()
	}
	if cerr := c.journal.Close(); err == nil {
		err = cerr
	}
	c.journal = nil
	c.jw = nil
	if err != nil {
		return fmt.Errorf("%w: close journal: %v", ErrStorage, err)
	}
	return nil
}

// Delete closes the cache and removes every stored value and the journal.
func (c *Cache) Delete() error {
	if err := c.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close before delete failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	if err := c.removeContents(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// removeContents deletes the files this package owns and leaves anything
// else in the directory alone.
func (c *Cache) removeContents() error {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, de := range des {
		name := de.Name()
		owned := name == journalFile || name == journalFileTmp || name == journalFileBackup ||
			ValidKey(name) || (strings.HasSuffix(name, dirtySuffix) && ValidKey(strings.TrimSuffix(name, dirtySuffix)))
		if !owned || de.IsDir() {
			continue
		}
		if err := os.Remove(c.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Dir returns the directory holding the cache.
func (c *Cache) Dir() string {
	return c.dir
}

// Size returns the total size of the stored values.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size - c.pending
}

// MaxSize returns the capacity in bytes.
func (c *Cache) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the capacity and evicts entries if needed.
func (c *Cache) SetMaxSize(maxSize int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxSize <= 0 {
		return
	}
	c.maxSize = maxSize
	if !c.closed {
		c.trim()
		c.compactIfNeeded()
	}
	c.updateMetrics()
}

// Len returns the number of stored values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.len()
}

func (c *Cache) len() int {
	n := 0
	for _, e := range c.entries {
		if e.readable && !e.doomed {
			n++
		}
	}
	return n
}

// Entries lists the stored values, least recently used first.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryInfo, 0, len(c.entries))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.readable && !e.doomed {
			out = append(out, EntryInfo{Key: e.key, Size: e.size})
		}
	}
	return out
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
