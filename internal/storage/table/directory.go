package table

import (
	"encoding/binary"
	"fmt"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

// The table directory persists just enough of a Metadata to rebuild the
// schema cache on restart: table/database id, root page, name, and column
// defs. Constraints and column defaults are intentionally not persisted —
// the engine re-derives constraints from sys_constraints (C7) rather than
// duplicating them here, and AUTO_INCREMENT/PK/UNIQUE flags round-trip but
// literal DEFAULT expressions do not yet have a storage-layer encoding.

func putStr(buf []byte, s string) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func getStr(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("table: truncated directory string length")
	}
	l := binary.BigEndian.Uint16(data[:2])
	data = data[2:]
	if len(data) < int(l) {
		return "", nil, fmt.Errorf("table: truncated directory string payload")
	}
	return string(data[:l]), data[l:], nil
}

const (
	colFlagNullable = 1 << 0
	colFlagPK       = 1 << 1
	colFlagUnique   = 1 << 2
	colFlagAutoIncr = 1 << 3
)

func encodeMetadataEntry(md *Metadata) []byte {
	buf := make([]byte, 0, 64)
	var ids [24]byte
	binary.BigEndian.PutUint64(ids[0:8], md.TableID)
	binary.BigEndian.PutUint64(ids[8:16], md.DatabaseID)
	binary.BigEndian.PutUint64(ids[16:24], uint64(md.RootPage))
	buf = append(buf, ids[:]...)
	buf = putStr(buf, md.Name)

	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(md.Columns)))
	buf = append(buf, n[:]...)
	for _, c := range md.Columns {
		buf = putStr(buf, c.Name)
		buf = putStr(buf, c.Type)
		var flags byte
		if c.Nullable {
			flags |= colFlagNullable
		}
		if c.PK {
			flags |= colFlagPK
		}
		if c.Unique {
			flags |= colFlagUnique
		}
		if c.AutoIncr {
			flags |= colFlagAutoIncr
		}
		buf = append(buf, flags)
	}
	return buf
}

func decodeMetadataEntry(data []byte) (*Metadata, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("table: truncated directory entry")
	}
	tableID := binary.BigEndian.Uint64(data[0:8])
	dbID := binary.BigEndian.Uint64(data[8:16])
	root := page.ID(binary.BigEndian.Uint64(data[16:24]))
	rest := data[24:]

	name, rest, err := getStr(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) < 2 {
		return nil, fmt.Errorf("table: truncated directory column count")
	}
	n := binary.BigEndian.Uint16(rest[:2])
	rest = rest[2:]

	cols := make([]ColumnDef, n)
	for i := range cols {
		var colName, colType string
		colName, rest, err = getStr(rest)
		if err != nil {
			return nil, err
		}
		colType, rest, err = getStr(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) < 1 {
			return nil, fmt.Errorf("table: truncated directory column flags")
		}
		flags := rest[0]
		rest = rest[1:]
		cols[i] = ColumnDef{
			Name:     colName,
			Type:     colType,
			Nullable: flags&colFlagNullable != 0,
			PK:       flags&colFlagPK != 0,
			Unique:   flags&colFlagUnique != 0,
			AutoIncr: flags&colFlagAutoIncr != 0,
		}
	}
	return newMetadata(tableID, dbID, name, cols, nil, root), nil
}

// loadDirectory populates s.tables by scanning the directory chain and
// advances the package-level table-id counter past the largest id seen, so
// freshly created tables never collide with rehydrated ones.
func (s *Store) loadDirectory() error {
	entries, err := s.scanChain(s.dirPage)
	if err != nil {
		return err
	}
	for _, e := range entries {
		md, err := decodeMetadataEntry(e.Data)
		if err != nil {
			return err
		}
		s.tables[md.Name] = md
		tableIDCounter.mu.Lock()
		if md.TableID > tableIDCounter.n {
			tableIDCounter.n = md.TableID
		}
		tableIDCounter.mu.Unlock()
	}
	return nil
}

// removeDirectoryEntryLocked tombstones name's directory slot. Caller holds s.mu.
func (s *Store) removeDirectoryEntryLocked(txnID wal.TxnID, name string) error {
	entries, err := s.scanChain(s.dirPage)
	if err != nil {
		return err
	}
	for _, e := range entries {
		md, err := decodeMetadataEntry(e.Data)
		if err != nil {
			return err
		}
		if md.Name != name {
			continue
		}
		frame, err := s.pool.Fetch(e.PageID)
		if err != nil {
			return err
		}
		before := append([]byte(nil), frame.Data...)
		wrapPage(frame.Data).tombstone(e.Slot)
		lsn, err := s.wal.ModifyPage(txnID, uint64(e.PageID), before, frame.Data)
		if err != nil {
			s.pool.Unpin(e.PageID, false, 0)
			return err
		}
		s.pool.Unpin(e.PageID, true, lsn)
		return nil
	}
	return errs.Wrapf(errs.ErrNotFound, "directory entry %s", name)
}
