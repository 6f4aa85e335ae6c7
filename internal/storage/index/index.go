// Package index implements C5: an ordered map from column value to row
// handles, one per indexed column. It is the engine's sole acceleration
// structure (spec.md §4.4) — DML maintains it synchronously within the same
// WAL-bounded transaction as the data change; there is no background index
// builder.
//
// No example in the retrieval pack implements an in-process ordered-map
// library (the teacher delegates indexing to SQLite/Dolt's own B-trees), so
// this is built directly against the standard library: a sorted slice of
// buckets gives O(log n) seek/range with simple, auditable code, which is
// the idiomatic choice absent a concrete ecosystem dependency to reach for.
package index

import (
	"sort"
	"sync"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/values"
)

// Entry is one (key, row handle) pair (spec.md §3).
type Entry struct {
	Key    values.Value
	Handle values.RowHandle
}

// bucket holds every handle currently stored under one key (non-unique
// indexes may have more than one).
type bucket struct {
	key     values.Value
	handles []values.RowHandle
}

// Index is an ordered map key -> []RowHandle, optionally UNIQUE.
type Index struct {
	mu      sync.RWMutex
	Name    string
	Unique  bool
	buckets []*bucket // kept sorted by key for range/seek
}

// New creates an empty index.
func New(name string, unique bool) *Index {
	return &Index{Name: name, Unique: unique}
}

// keyLess orders values the same way §4.7 orders them for comparisons:
// numeric when both parse as numbers, else lexicographic by rendered string.
func keyLess(a, b values.Value) bool {
	return values.Compare(a, values.OpLt, b)
}

func (ix *Index) find(key values.Value) (int, bool) {
	i := sort.Search(len(ix.buckets), func(i int) bool {
		return !keyLess(ix.buckets[i].key, key)
	})
	if i < len(ix.buckets) && !keyLess(key, ix.buckets[i].key) && !keyLess(ix.buckets[i].key, key) {
		return i, true
	}
	return i, false
}

// Insert adds an entry. A UNIQUE index rejects the insert if the key
// already exists with any row handle (spec.md §4.4).
func (ix *Index) Insert(key values.Value, handle values.RowHandle) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	i, ok := ix.find(key)
	if ok {
		if ix.Unique {
			return errs.New("index", errs.CodeUniqueViolation, errs.LevelError, "unique index violation", ix.Name)
		}
		ix.buckets[i].handles = append(ix.buckets[i].handles, handle)
		return nil
	}
	b := &bucket{key: key, handles: []values.RowHandle{handle}}
	ix.buckets = append(ix.buckets, nil)
	copy(ix.buckets[i+1:], ix.buckets[i:])
	ix.buckets[i] = b
	return nil
}

// Delete removes the (key, handle) pair. A no-op if not present.
func (ix *Index) Delete(key values.Value, handle values.RowHandle) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	i, ok := ix.find(key)
	if !ok {
		return nil
	}
	b := ix.buckets[i]
	for j, h := range b.handles {
		if h == handle {
			b.handles = append(b.handles[:j], b.handles[j+1:]...)
			break
		}
	}
	if len(b.handles) == 0 {
		ix.buckets = append(ix.buckets[:i], ix.buckets[i+1:]...)
	}
	return nil
}

// Search returns every entry whose key equals key.
func (ix *Index) Search(key values.Value) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.find(key)
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(ix.buckets[i].handles))
	for _, h := range ix.buckets[i].handles {
		out = append(out, Entry{Key: key, Handle: h})
	}
	return out
}

// Range returns every entry with lo <= key <= hi (either bound may be a
// zero Value to mean "open" on that side, signaled via hasLo/hasHi).
func (ix *Index) Range(lo values.Value, hasLo bool, hi values.Value, hasHi bool) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Entry
	for _, b := range ix.buckets {
		if hasLo && keyLess(b.key, lo) {
			continue
		}
		if hasHi && keyLess(hi, b.key) {
			continue
		}
		for _, h := range b.handles {
			out = append(out, Entry{Key: b.key, Handle: h})
		}
	}
	return out
}

// FirstKey/LastKey return the smallest/largest key currently present.
func (ix *Index) FirstKey() (values.Value, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.buckets) == 0 {
		return values.Value{}, false
	}
	return ix.buckets[0].key, true
}

func (ix *Index) LastKey() (values.Value, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.buckets) == 0 {
		return values.Value{}, false
	}
	return ix.buckets[len(ix.buckets)-1].key, true
}

// All returns every entry in key order (used for invariant checks, §8.2).
func (ix *Index) All() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Entry
	for _, b := range ix.buckets {
		for _, h := range b.handles {
			out = append(out, Entry{Key: b.key, Handle: h})
		}
	}
	return out
}

// Manager owns table_name -> column_name -> Index (spec.md §4.4).
type Manager struct {
	mu     sync.RWMutex
	tables map[string]map[string]*Index
}

func NewManager() *Manager {
	return &Manager{tables: make(map[string]map[string]*Index)}
}

// Create registers a new index on table.column. Returns errs.ErrAlreadyExists
// if one already exists there.
func (m *Manager) Create(table, column string, unique bool) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cols, ok := m.tables[table]
	if !ok {
		cols = make(map[string]*Index)
		m.tables[table] = cols
	}
	if _, exists := cols[column]; exists {
		return nil, errs.Wrapf(errs.ErrAlreadyExists, "index on %s.%s", table, column)
	}
	ix := New(table+"."+column, unique)
	cols[column] = ix
	return ix, nil
}

// Get returns the index on table.column, or (nil, false).
func (m *Manager) Get(table, column string) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cols, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	ix, ok := cols[column]
	return ix, ok
}

// Drop removes the index on table.column, if any.
func (m *Manager) Drop(table, column string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cols, ok := m.tables[table]; ok {
		delete(cols, column)
	}
}

// DropTable removes every index registered for table.
func (m *Manager) DropTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
}

// ColumnsIndexed returns the set of column names on table that have an index.
func (m *Manager) ColumnsIndexed(table string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cols, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	return out
}
