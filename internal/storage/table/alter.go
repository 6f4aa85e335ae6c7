package table

import (
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
	"github.com/ridgedb/ridgedb/internal/values"
)

// AlterAddColumn appends a new column to name's schema and rewrites every
// existing row to carry the column's default (NULL if none), so the record
// codec's fixed-column-count contract holds for rows written both before
// and after the change. There is no online/lazy variant: the rewrite
// happens synchronously within txnID, matching the DDL strategy's
// synchronous contract for every other schema change.
func (s *Store) AlterAddColumn(txnID wal.TxnID, name string, col ColumnDef) error {
	s.mu.Lock()
	oldMD, ok := s.tables[name]
	if !ok {
		s.mu.Unlock()
		return errs.Wrapf(errs.ErrNotFound, "table %s", name)
	}
	s.mu.Unlock()

	entries, err := s.scanChain(oldMD.RootPage)
	if err != nil {
		return err
	}
	type oldRow struct {
		handle values.RowHandle
		row    values.Row
	}
	rows := make([]oldRow, 0, len(entries))
	for _, e := range entries {
		row, err := decodeRecord(oldMD.Columns, e.Data)
		if err != nil {
			return err
		}
		rows = append(rows, oldRow{handle: values.RowHandle{PageID: uint64(e.PageID), Slot: e.Slot}, row: row})
	}

	newCols := append(append([]ColumnDef{}, oldMD.Columns...), col)
	newMD := newMetadata(oldMD.TableID, oldMD.DatabaseID, oldMD.Name, newCols, oldMD.Constraints, oldMD.RootPage)

	s.mu.Lock()
	s.tables[name] = newMD
	s.mu.Unlock()

	def := values.Null()
	if col.Default != nil {
		def = *col.Default
	}
	for _, r := range rows {
		newValues := append(append([]values.Value{}, r.row.Values...), def)
		if _, err := s.UpdateRecord(txnID, name, r.handle, values.Row{Values: newValues}); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.removeDirectoryEntryLocked(txnID, name); err != nil {
		return err
	}
	if _, _, err := s.appendToChain(txnID, s.dirPage, encodeMetadataEntry(newMD)); err != nil {
		return err
	}
	return nil
}

// RenameTable changes a table's name in both the in-memory cache and the
// on-disk directory, leaving its root page and data untouched.
func (s *Store) RenameTable(txnID wal.TxnID, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.tables[oldName]
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "table %s", oldName)
	}
	if _, exists := s.tables[newName]; exists {
		return errs.Wrapf(errs.ErrAlreadyExists, "table %s", newName)
	}
	if err := s.removeDirectoryEntryLocked(txnID, oldName); err != nil {
		return err
	}
	renamed := newMetadata(md.TableID, md.DatabaseID, newName, md.Columns, md.Constraints, md.RootPage)
	if _, _, err := s.appendToChain(txnID, s.dirPage, encodeMetadataEntry(renamed)); err != nil {
		return err
	}
	delete(s.tables, oldName)
	s.tables[newName] = renamed
	return nil
}
