// Package page implements C1: a fixed-size page file abstraction over one
// on-disk file per database. Pages are numbered from 0; page 0 is reserved
// for the database header (magic, page size, next-page-id counter).
//
// The single-writer guarantee is grounded on the teacher's
// internal/lockfile flock wrappers (storage/dolt/access_lock.go): an
// exclusive advisory lock on a `<dbPath>.lock` file beside the paged file prevents two engine
// instances from opening the same paged file concurrently.
package page

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/lockfile"
)

const (
	// DefaultSize is the default page size in bytes (spec.md §3).
	DefaultSize = 4096

	headerMagic = uint32(0x52444221) // "RDB!"
	headerPage  = uint64(0)
)

// ID identifies a page within a single database file.
type ID = uint64

// File is the paged-file abstraction for a single database. It owns an
// exclusive advisory lock on its `<dbPath>.lock` file for as long as it is
// open, guaranteeing single-writer semantics per spec.md §4.1.
type File struct {
	mu       sync.Mutex
	f        *os.File
	pageSize int
	nextID   ID
	lock     *lockfile.Lock
	poisoned error
}

// Open creates dbPath if absent (writing the header page) or opens it,
// acquiring an exclusive lock on dbPath + ".lock".
func Open(dbPath string, pageSize int) (*File, error) {
	if pageSize <= 0 {
		pageSize = DefaultSize
	}
	lk, err := lockfile.AcquireExclusive(dbPath + ".lock")
	if err != nil {
		return nil, errs.Wrap("page", errs.CodeConcurrencyConflict, errs.LevelError, "acquire database lock", err)
	}

	f, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		lk.Release()
		return nil, errs.Wrap("page", errs.CodeDiskIO, errs.LevelFatal, "open database file", err)
	}

	pf := &File{f: f, pageSize: pageSize, lock: lk}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		lk.Release()
		return nil, errs.Wrap("page", errs.CodeDiskIO, errs.LevelFatal, "stat database file", err)
	}
	if info.Size() == 0 {
		if err := pf.writeHeader(); err != nil {
			f.Close()
			lk.Release()
			return nil, err
		}
		pf.nextID = 1
	} else {
		n, err := pf.readHeader()
		if err != nil {
			f.Close()
			lk.Release()
			return nil, err
		}
		pf.nextID = n
	}
	return pf, nil
}

func (f *File) writeHeader() error {
	buf := make([]byte, f.pageSize)
	binary.BigEndian.PutUint32(buf[0:4], headerMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(f.pageSize))
	binary.BigEndian.PutUint64(buf[8:16], 1) // next page id starts at 1
	return f.writePageLocked(headerPage, buf)
}

// readHeader validates the magic/page-size and returns the persisted
// next-page-id counter so allocation resumes correctly across restarts.
func (f *File) readHeader() (ID, error) {
	buf, err := f.readPageLocked(headerPage)
	if err != nil {
		return 0, err
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != headerMagic {
		return 0, errs.New("page", errs.CodeChecksum, errs.LevelFatal, "corrupt database header", dbg(magic))
	}
	sz := binary.BigEndian.Uint32(buf[4:8])
	if int(sz) != f.pageSize {
		return 0, errs.New("page", errs.CodeInvalidParameter, errs.LevelFatal, "page size mismatch", dbg(sz))
	}
	return binary.BigEndian.Uint64(buf[8:16]), nil
}

func dbg(v uint32) string { return fmt.Sprintf("%d", v) }

// Allocate reserves and returns a new page id; the caller is responsible
// for writing its content (typically via the buffer pool, C3).
func (f *File) Allocate() (ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poisoned != nil {
		return 0, f.poisoned
	}
	id := f.nextID
	f.nextID++
	if err := f.persistNextIDLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

func (f *File) persistNextIDLocked() error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, f.nextID)
	if _, err := f.f.WriteAt(buf, int64(headerPage)*int64(f.pageSize)+8); err != nil {
		f.poisoned = errs.Wrap("page", errs.CodeDiskIO, errs.LevelFatal, "persist page counter", err)
		return f.poisoned
	}
	return nil
}

// ReadPage reads the raw bytes of a page.
func (f *File) ReadPage(id ID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poisoned != nil {
		return nil, f.poisoned
	}
	return f.readPageLocked(id)
}

func (f *File) readPageLocked(id ID) ([]byte, error) {
	buf := make([]byte, f.pageSize)
	_, err := f.f.ReadAt(buf, int64(id)*int64(f.pageSize))
	if err != nil {
		// A fresh page beyond EOF reads as zeroed, matching an allocate-then-
		// write-later workflow; only genuine I/O errors are fatal.
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		return nil, errs.Wrap("page", errs.CodeDiskIO, errs.LevelFatal, "read page", err)
	}
	return buf, nil
}

// WritePage writes the raw bytes of a page (must be exactly PageSize()).
func (f *File) WritePage(id ID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poisoned != nil {
		return f.poisoned
	}
	return f.writePageLocked(id, data)
}

func (f *File) writePageLocked(id ID, data []byte) error {
	if len(data) != f.pageSize {
		return errs.New("page", errs.CodeInvalidParameter, errs.LevelError, "page buffer size mismatch", fmt.Sprintf("%d != %d", len(data), f.pageSize))
	}
	if _, err := f.f.WriteAt(data, int64(id)*int64(f.pageSize)); err != nil {
		f.poisoned = errs.Wrap("page", errs.CodeDiskIO, errs.LevelFatal, "write page", err)
		return f.poisoned
	}
	return nil
}

// Flush fsyncs the underlying file, surfacing any I/O failure as FATAL and
// poisoning subsequent calls (spec.md §4.1).
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poisoned != nil {
		return f.poisoned
	}
	if err := f.f.Sync(); err != nil {
		f.poisoned = errs.Wrap("page", errs.CodeDiskIO, errs.LevelFatal, "fsync database file", err)
		return f.poisoned
	}
	return nil
}

// PageSize returns the fixed page size this file was opened with.
func (f *File) PageSize() int { return f.pageSize }

// Close flushes and releases the `<dbPath>.lock` lock.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.f.Sync()
	closeErr := f.f.Close()
	f.lock.Release()
	if err != nil {
		return errs.Wrap("page", errs.CodeDiskIO, errs.LevelError, "sync on close", err)
	}
	return closeErr
}
