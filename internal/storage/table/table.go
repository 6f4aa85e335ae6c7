package table

import (
	"sort"
	"sync"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/bufpool"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
	"github.com/ridgedb/ridgedb/internal/values"
)

// Store is the C6 record manager for a single database: it owns table
// metadata and drives the buffer pool/WAL to implement slotted-page
// insert/update/delete/scan over a forward-linked chain of pages per table.
//
// Page 1 of the database file is reserved for the table directory: a chain
// of slotted pages, one slot per table, recording enough of each Metadata
// to rebuild the in-memory schema cache on restart without external
// bookkeeping (spec.md §4.6 "At startup the engine reads these tables to
// rebuild in-memory managers" applies one level down, to table.Store itself).
type Store struct {
	mu      sync.RWMutex
	file    *page.File
	pool    *bufpool.Pool
	wal     *wal.Manager
	tables  map[string]*Metadata
	dirPage page.ID
}

const directoryPageID page.ID = 1

// Open wires a record manager over an already-open page file, buffer pool,
// and WAL, formatting the directory page on first use or loading every
// table's Metadata from it on a subsequent open.
func Open(f *page.File, pool *bufpool.Pool, w *wal.Manager, txnID wal.TxnID) (*Store, error) {
	s := &Store{file: f, pool: pool, wal: w, tables: make(map[string]*Metadata), dirPage: directoryPageID}

	frame, err := pool.Fetch(directoryPageID)
	if err != nil {
		return nil, err
	}
	fresh := wrapPage(frame.Data).freeStart() == 0
	pool.Unpin(directoryPageID, false, 0)

	if fresh {
		id, err := f.Allocate()
		if err != nil {
			return nil, err
		}
		if id != directoryPageID {
			return nil, errs.New("table", errs.CodeInvalidParameter, errs.LevelFatal,
				"table directory must be the first page allocated in a fresh database file", "")
		}
		if err := s.initPageOnDisk(txnID, directoryPageID, 0); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := s.loadDirectory(); err != nil {
		return nil, err
	}
	return s, nil
}

// LastLSN returns this store's own WAL's current append cursor. The
// executor stamps a transaction's undo baseline with this at BEGIN and at
// each SAVEPOINT, since a transaction's physical undo is always scoped to
// one database's WAL, never to txn.Manager's own lifecycle WAL.
func (s *Store) LastLSN() wal.LSN {
	return s.wal.LastLSN()
}

// Undo reverts txnID's own page writes back to fromLSN, re-applying each
// MODIFY_PAGE before-image in reverse LSN order, then reloads the in-memory
// table cache from the (now-reverted) directory page. This is how ROLLBACK
// and ROLLBACK TO SAVEPOINT actually undo a transaction's writes: txn.Manager
// only tracks the target LSN, the page content itself is this store's
// responsibility (txn.Manager.RollbackToSavepoint's doc comment).
func (s *Store) Undo(txnID wal.TxnID, fromLSN wal.LSN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.wal.UndoSince(txnID, fromLSN)
	if err != nil {
		return err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		pageID, before, _, err := wal.DecodeModify(recs[i].Payload)
		if err != nil {
			return err
		}
		frame, err := s.pool.Fetch(page.ID(pageID))
		if err != nil {
			return err
		}
		copy(frame.Data, before)
		s.pool.Unpin(page.ID(pageID), true, recs[i].LSN)
	}

	s.tables = make(map[string]*Metadata)
	return s.loadDirectory()
}

// CreateTable allocates a root page for a new table, registers its schema in
// the in-memory cache, and persists it to the table directory (spec.md §4.5
// create_table). Returns errs.ErrAlreadyExists if name is taken.
func (s *Store) CreateTable(txnID wal.TxnID, dbID uint64, name string, cols []ColumnDef, cons []Constraint) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[name]; exists {
		return nil, errs.Wrapf(errs.ErrAlreadyExists, "table %s", name)
	}
	root, err := s.file.Allocate()
	if err != nil {
		return nil, err
	}
	if err := s.initPageOnDisk(txnID, root, 0); err != nil {
		return nil, err
	}
	md := newMetadata(nextTableID(), dbID, name, cols, cons, root)

	entry := encodeMetadataEntry(md)
	if _, _, err := s.appendToChain(txnID, s.dirPage, entry); err != nil {
		return nil, err
	}
	s.tables[name] = md

	if _, err := s.wal.CreateTable(txnID, encodeTableLog(md)); err != nil {
		return nil, err
	}
	return md, nil
}

var tableIDCounter struct {
	mu sync.Mutex
	n  uint64
}

func nextTableID() uint64 {
	tableIDCounter.mu.Lock()
	defer tableIDCounter.mu.Unlock()
	tableIDCounter.n++
	return tableIDCounter.n
}

// initPageOnDisk writes a freshly-initialized slotted page through the
// buffer pool, logging it as a MODIFY_PAGE so recovery can reconstruct it.
func (s *Store) initPageOnDisk(txnID wal.TxnID, id page.ID, next page.ID) error {
	frame, err := s.pool.Fetch(id)
	if err != nil {
		return err
	}
	before := append([]byte(nil), frame.Data...)
	sp := initPage(frame.Data)
	sp.setNextPage(uint64(next))
	lsn, err := s.wal.ModifyPage(txnID, uint64(id), before, frame.Data)
	if err != nil {
		s.pool.Unpin(id, false, 0)
		return err
	}
	s.pool.Unpin(id, true, lsn)
	return nil
}

// appendToChain inserts data into the first page in root's chain with room,
// growing the chain with a freshly allocated page when every existing page
// is full. Shared by InsertRecord and the table-directory writer.
func (s *Store) appendToChain(txnID wal.TxnID, root page.ID, data []byte) (page.ID, uint16, error) {
	id := root
	var lastID page.ID
	for {
		frame, err := s.pool.Fetch(id)
		if err != nil {
			return 0, 0, err
		}
		before := append([]byte(nil), frame.Data...)
		sp := wrapPage(frame.Data)
		if slot, ok := sp.insert(data); ok {
			lsn, err := s.wal.ModifyPage(txnID, uint64(id), before, frame.Data)
			if err != nil {
				s.pool.Unpin(id, false, 0)
				return 0, 0, err
			}
			s.pool.Unpin(id, true, lsn)
			return id, slot, nil
		}
		next := sp.nextPage()
		s.pool.Unpin(id, false, 0)
		if next == 0 {
			lastID = id
			break
		}
		id = next
	}

	newID, err := s.file.Allocate()
	if err != nil {
		return 0, 0, err
	}
	if err := s.initPageOnDisk(txnID, newID, 0); err != nil {
		return 0, 0, err
	}
	if err := s.linkNextPage(txnID, lastID, newID); err != nil {
		return 0, 0, err
	}

	frame, err := s.pool.Fetch(newID)
	if err != nil {
		return 0, 0, err
	}
	before := append([]byte(nil), frame.Data...)
	sp := wrapPage(frame.Data)
	slot, ok := sp.insert(data)
	if !ok {
		s.pool.Unpin(newID, false, 0)
		return 0, 0, errs.New("table", errs.CodeMemory, errs.LevelError, "record larger than a page", "")
	}
	lsn, err := s.wal.ModifyPage(txnID, uint64(newID), before, frame.Data)
	if err != nil {
		s.pool.Unpin(newID, false, 0)
		return 0, 0, err
	}
	s.pool.Unpin(newID, true, lsn)
	return newID, slot, nil
}

// chainEntry is one live slot discovered walking a page chain.
type chainEntry struct {
	PageID page.ID
	Slot   uint16
	Data   []byte
}

// scanChain walks root's page chain, returning every live slot in
// page/slot order. Shared by ScanTable and directory loading.
func (s *Store) scanChain(root page.ID) ([]chainEntry, error) {
	var out []chainEntry
	id := root
	for {
		frame, err := s.pool.Fetch(id)
		if err != nil {
			return nil, err
		}
		sp := wrapPage(frame.Data)
		for _, entry := range sp.allSlots() {
			data := append([]byte(nil), entry.Data...)
			out = append(out, chainEntry{PageID: id, Slot: entry.Slot, Data: data})
		}
		next := sp.nextPage()
		s.pool.Unpin(id, false, 0)
		if next == 0 {
			break
		}
		id = next
	}
	return out, nil
}

// DropTable removes a table's metadata and its table-directory entry. Its
// data pages are left allocated (spec.md does not require reclaiming freed
// space within a database file).
func (s *Store) DropTable(txnID wal.TxnID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return errs.Wrapf(errs.ErrNotFound, "table %s", name)
	}
	if err := s.removeDirectoryEntryLocked(txnID, name); err != nil {
		return err
	}
	delete(s.tables, name)
	_, err := s.wal.DropTable(txnID, []byte(name))
	return err
}

// GetMetadata returns the schema for name, or (nil, false).
func (s *Store) GetMetadata(name string) (*Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.tables[name]
	return md, ok
}

// TableNames lists every table registered in this database, for SHOW TABLES.
func (s *Store) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InsertRecord appends a new row to table (spec.md §4.5 insert_record).
func (s *Store) InsertRecord(txnID wal.TxnID, table string, row values.Row) (values.RowHandle, error) {
	md, ok := s.GetMetadata(table)
	if !ok {
		return values.RowHandle{}, errs.Wrapf(errs.ErrNotFound, "table %s", table)
	}
	rec := encodeRecord(md.Columns, row)
	id, slot, err := s.appendToChain(txnID, md.RootPage, rec)
	if err != nil {
		return values.RowHandle{}, err
	}
	handle := values.RowHandle{PageID: uint64(id), Slot: slot}
	if _, err := s.wal.InsertTuple(txnID, encodeHandleLog(table, handle, rec)); err != nil {
		return values.RowHandle{}, err
	}
	return handle, nil
}

func (s *Store) linkNextPage(txnID wal.TxnID, id, next page.ID) error {
	frame, err := s.pool.Fetch(id)
	if err != nil {
		return err
	}
	before := append([]byte(nil), frame.Data...)
	sp := wrapPage(frame.Data)
	sp.setNextPage(next)
	lsn, err := s.wal.ModifyPage(txnID, uint64(id), before, frame.Data)
	if err != nil {
		s.pool.Unpin(id, false, 0)
		return err
	}
	s.pool.Unpin(id, true, lsn)
	return nil
}

// GetRecord reads the row at handle (spec.md §4.5 get_record).
func (s *Store) GetRecord(table string, handle values.RowHandle) (values.Row, error) {
	md, ok := s.GetMetadata(table)
	if !ok {
		return values.Row{}, errs.Wrapf(errs.ErrNotFound, "table %s", table)
	}
	frame, err := s.pool.Fetch(page.ID(handle.PageID))
	if err != nil {
		return values.Row{}, err
	}
	defer s.pool.Unpin(page.ID(handle.PageID), false, 0)
	sp := wrapPage(frame.Data)
	data, ok := sp.get(handle.Slot)
	if !ok {
		return values.Row{}, errs.Wrapf(errs.ErrNotFound, "row %s in %s", handle, table)
	}
	return decodeRecord(md.Columns, data)
}

// UpdateRecord overwrites the row at handle. If the new encoding no longer
// fits the slot's existing footprint, the row moves: the old slot is
// tombstoned and the new encoding is inserted wherever InsertRecord would
// place it, returning the new handle (spec.md §4.5 update_record).
func (s *Store) UpdateRecord(txnID wal.TxnID, table string, handle values.RowHandle, newValues values.Row) (values.RowHandle, error) {
	md, ok := s.GetMetadata(table)
	if !ok {
		return values.RowHandle{}, errs.Wrapf(errs.ErrNotFound, "table %s", table)
	}
	rec := encodeRecord(md.Columns, newValues)

	id := page.ID(handle.PageID)
	frame, err := s.pool.Fetch(id)
	if err != nil {
		return values.RowHandle{}, err
	}
	before := append([]byte(nil), frame.Data...)
	sp := wrapPage(frame.Data)
	if sp.replace(handle.Slot, rec) {
		lsn, err := s.wal.ModifyPage(txnID, uint64(id), before, frame.Data)
		if err != nil {
			s.pool.Unpin(id, false, 0)
			return values.RowHandle{}, err
		}
		if _, err := s.wal.UpdateTuple(txnID, encodeHandleLog(table, handle, rec)); err != nil {
			s.pool.Unpin(id, true, lsn)
			return values.RowHandle{}, err
		}
		s.pool.Unpin(id, true, lsn)
		return handle, nil
	}
	s.pool.Unpin(id, false, 0)

	if err := s.DeleteRecord(txnID, table, handle); err != nil {
		return values.RowHandle{}, err
	}
	return s.InsertRecord(txnID, table, newValues)
}

// DeleteRecord tombstones the slot at handle (spec.md §4.5 delete_record).
func (s *Store) DeleteRecord(txnID wal.TxnID, table string, handle values.RowHandle) error {
	id := page.ID(handle.PageID)
	frame, err := s.pool.Fetch(id)
	if err != nil {
		return err
	}
	before := append([]byte(nil), frame.Data...)
	sp := wrapPage(frame.Data)
	sp.tombstone(handle.Slot)
	lsn, err := s.wal.ModifyPage(txnID, uint64(id), before, frame.Data)
	if err != nil {
		s.pool.Unpin(id, false, 0)
		return err
	}
	if _, err := s.wal.DeleteTuple(txnID, encodeHandleLog(table, handle, nil)); err != nil {
		s.pool.Unpin(id, true, lsn)
		return err
	}
	s.pool.Unpin(id, true, lsn)
	return nil
}

// Scanned is one row produced by ScanTable, paired with its physical handle
// so callers (index maintenance, cursors) can address it directly.
type Scanned struct {
	Handle values.RowHandle
	Row    values.Row
}

// ScanTable walks a table's entire page chain from its root, decoding every
// live slot in page/slot order (spec.md §4.5 scan_table).
func (s *Store) ScanTable(table string) ([]Scanned, error) {
	md, ok := s.GetMetadata(table)
	if !ok {
		return nil, errs.Wrapf(errs.ErrNotFound, "table %s", table)
	}
	entries, err := s.scanChain(md.RootPage)
	if err != nil {
		return nil, err
	}
	out := make([]Scanned, 0, len(entries))
	for _, e := range entries {
		row, err := decodeRecord(md.Columns, e.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, Scanned{Handle: values.RowHandle{PageID: uint64(e.PageID), Slot: e.Slot}, Row: row})
	}
	return out, nil
}

// encodeTableLog/encodeHandleLog are opaque payload framings for the WAL's
// CREATE_TABLE/INSERT/UPDATE/DELETE records; recovery only needs enough to
// redo the page-level change, which ModifyPage already carries, so these
// exist purely for diagnostics and are not re-parsed by Recover.
func encodeTableLog(md *Metadata) []byte {
	return []byte(md.Name)
}

func encodeHandleLog(table string, handle values.RowHandle, rec []byte) []byte {
	buf := make([]byte, 0, len(table)+1+16+len(rec))
	buf = append(buf, []byte(table)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(handle.String())...)
	buf = append(buf, 0)
	buf = append(buf, rec...)
	return buf
}
