// Package wal implements C2: an append-only log of typed records with LSN,
// checksum, and an fsync barrier. commit() returns only after
// flush_upto(lsn_of_commit_record) succeeds; recovery redoes committed
// transactions' records from the start of the log (a checkpoint is a flush
// barrier, not a starting point) and stops at the first checksum mismatch
// (spec.md §4.1).
//
// The manager's instance id is a google/uuid the way the teacher stamps
// session/txn ids in storage/dolt/store.go. It is held in memory and
// exposed by InstanceID; it is not written into records.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridgedb/ridgedb/internal/errs"
)

// Kind discriminates a WAL record (spec.md §3).
type Kind uint8

const (
	KindBegin Kind = iota
	KindCommit
	KindAbort
	KindModifyPage
	KindCreateTable
	KindDropTable
	KindInsertTuple
	KindUpdateTuple
	KindDeleteTuple
	KindCheckpoint
)

// TxnID identifies the transaction a record belongs to.
type TxnID = uint64

// LSN is a monotonically increasing log sequence number.
type LSN = uint64

// Record is one typed, checksummed WAL entry.
type Record struct {
	LSN       LSN
	TxnID     TxnID
	Kind      Kind
	Timestamp time.Time
	Payload   []byte // for MODIFY_PAGE: before||after framed by modifyPayload helpers
	Checksum  uint32
}

func computeChecksum(txnID TxnID, kind Kind, ts time.Time, payload []byte) uint32 {
	h := crc32.NewIEEE()
	var hdr [17]byte
	binary.BigEndian.PutUint64(hdr[0:8], txnID)
	hdr[8] = byte(kind)
	binary.BigEndian.PutUint64(hdr[9:17], uint64(ts.UnixNano()))
	h.Write(hdr[:])
	h.Write(payload)
	return h.Sum32()
}

// Manager is the WAL for a single database. One Manager per database file,
// sharing no state with other databases' managers.
type Manager struct {
	instanceID uuid.UUID

	mu       sync.Mutex
	f        *os.File
	w        *bufio.Writer
	nextLSN  LSN
	synced   LSN // highest LSN known durable on disk
	poisoned error

	sync bool // whether Flush fsyncs (spec.md allows disabling for test harnesses)
}

// Open opens (creating if absent) the append-only log file at path.
func Open(path string, syncOnFlush bool) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "open wal file", err)
	}
	m := &Manager{
		instanceID: uuid.New(),
		f:          f,
		w:          bufio.NewWriter(f),
		nextLSN:    1,
		sync:       syncOnFlush,
	}
	// Resume LSN numbering from whatever is already on disk.
	maxLSN, err := scanMaxLSN(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	m.nextLSN = maxLSN + 1
	m.synced = maxLSN
	return m, nil
}

func scanMaxLSN(path string) (LSN, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "open wal for scan", err)
	}
	defer f.Close()
	var max LSN
	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Stop at the first malformed record; prior records stand
			// (spec.md §4.1 failure semantics).
			break
		}
		if rec.LSN > max {
			max = rec.LSN
		}
	}
	return max, nil
}

func (m *Manager) append(txnID TxnID, kind Kind, payload []byte) (LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poisoned != nil {
		return 0, m.poisoned
	}
	lsn := m.nextLSN
	m.nextLSN++
	rec := Record{
		LSN:       lsn,
		TxnID:     txnID,
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	rec.Checksum = computeChecksum(txnID, kind, rec.Timestamp, payload)
	if err := writeRecord(m.w, rec); err != nil {
		m.poisoned = errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "append wal record", err)
		return 0, m.poisoned
	}
	return lsn, nil
}

// Begin appends a BEGIN record for txnID.
func (m *Manager) Begin(txnID TxnID) (LSN, error) { return m.append(txnID, KindBegin, nil) }

// ModifyPage appends a MODIFY_PAGE record carrying before/after images.
func (m *Manager) ModifyPage(txnID TxnID, pageID uint64, before, after []byte) (LSN, error) {
	payload := encodeModify(pageID, before, after)
	return m.append(txnID, KindModifyPage, payload)
}

// InsertTuple/UpdateTuple/DeleteTuple record DML-level intents alongside the
// page-level MODIFY_PAGE records, so recovery/rollback can reason about
// rows without re-deriving them from raw page bytes.
func (m *Manager) InsertTuple(txnID TxnID, payload []byte) (LSN, error) {
	return m.append(txnID, KindInsertTuple, payload)
}
func (m *Manager) UpdateTuple(txnID TxnID, payload []byte) (LSN, error) {
	return m.append(txnID, KindUpdateTuple, payload)
}
func (m *Manager) DeleteTuple(txnID TxnID, payload []byte) (LSN, error) {
	return m.append(txnID, KindDeleteTuple, payload)
}
func (m *Manager) CreateTable(txnID TxnID, payload []byte) (LSN, error) {
	return m.append(txnID, KindCreateTable, payload)
}
func (m *Manager) DropTable(txnID TxnID, payload []byte) (LSN, error) {
	return m.append(txnID, KindDropTable, payload)
}

// Commit appends COMMIT and blocks until it (and everything before it) is
// durable; spec.md §4.1 requires commit() to return only after that flush
// succeeds.
func (m *Manager) Commit(txnID TxnID) (LSN, error) {
	lsn, err := m.append(txnID, KindCommit, nil)
	if err != nil {
		return 0, err
	}
	if err := m.FlushUpto(lsn); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Abort appends an ABORT record for txnID.
func (m *Manager) Abort(txnID TxnID) (LSN, error) {
	return m.append(txnID, KindAbort, nil)
}

// Checkpoint appends a CHECKPOINT record after flushing everything prior,
// returning its LSN.
func (m *Manager) Checkpoint() (LSN, error) {
	m.mu.Lock()
	if m.poisoned != nil {
		err := m.poisoned
		m.mu.Unlock()
		return 0, err
	}
	if err := m.w.Flush(); err != nil {
		m.poisoned = errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "flush before checkpoint", err)
		m.mu.Unlock()
		return 0, m.poisoned
	}
	m.mu.Unlock()

	lsn, err := m.append(0, KindCheckpoint, nil)
	if err != nil {
		return 0, err
	}
	if err := m.FlushUpto(lsn); err != nil {
		return 0, err
	}
	return lsn, nil
}

// FlushUpto guarantees every record <= lsn is durable before returning.
// Because records are appended strictly in order, flushing the writer and
// fsyncing (when enabled) is sufficient: there is never a durable record
// beyond an unflushed one.
func (m *Manager) FlushUpto(lsn LSN) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poisoned != nil {
		return m.poisoned
	}
	if lsn <= m.synced {
		return nil
	}
	if err := m.w.Flush(); err != nil {
		m.poisoned = errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "flush wal buffer", err)
		return m.poisoned
	}
	if m.sync {
		if err := m.f.Sync(); err != nil {
			m.poisoned = errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "fsync wal file", err)
			return m.poisoned
		}
	}
	m.synced = m.nextLSN - 1
	return nil
}

// LastLSN returns the highest LSN appended so far (not necessarily durable).
func (m *Manager) LastLSN() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLSN - 1
}

// Close flushes and closes the underlying file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.w.Flush(); err != nil {
		return err
	}
	return m.f.Close()
}

func encodeModify(pageID uint64, before, after []byte) []byte {
	buf := make([]byte, 8+4+len(before)+4+len(after))
	binary.BigEndian.PutUint64(buf[0:8], pageID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(before)))
	copy(buf[12:12+len(before)], before)
	off := 12 + len(before)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(after)))
	copy(buf[off+4:], after)
	return buf
}

// DecodeModify splits a MODIFY_PAGE payload back into its page id and
// before/after images.
func DecodeModify(payload []byte) (pageID uint64, before, after []byte, err error) {
	if len(payload) < 12 {
		return 0, nil, nil, fmt.Errorf("wal: modify payload too short")
	}
	pageID = binary.BigEndian.Uint64(payload[0:8])
	beforeLen := binary.BigEndian.Uint32(payload[8:12])
	if len(payload) < 12+int(beforeLen)+4 {
		return 0, nil, nil, fmt.Errorf("wal: modify payload truncated")
	}
	before = payload[12 : 12+beforeLen]
	off := 12 + int(beforeLen)
	afterLen := binary.BigEndian.Uint32(payload[off : off+4])
	after = payload[off+4:]
	if uint32(len(after)) != afterLen {
		return 0, nil, nil, fmt.Errorf("wal: modify payload length mismatch")
	}
	return pageID, before, after, nil
}

func writeRecord(w *bufio.Writer, r Record) error {
	var hdr [1 + 8 + 8 + 8 + 4 + 4]byte // kind,lsn,txn,ts,payloadLen,checksum
	hdr[0] = byte(r.Kind)
	binary.BigEndian.PutUint64(hdr[1:9], r.LSN)
	binary.BigEndian.PutUint64(hdr[9:17], r.TxnID)
	binary.BigEndian.PutUint64(hdr[17:25], uint64(r.Timestamp.UnixNano()))
	binary.BigEndian.PutUint32(hdr[25:29], uint32(len(r.Payload)))
	binary.BigEndian.PutUint32(hdr[29:33], r.Checksum)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(r.Payload) > 0 {
		if _, err := w.Write(r.Payload); err != nil {
			return err
		}
	}
	return nil
}

func readRecord(r *bufio.Reader) (Record, error) {
	var hdr [33]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, err
	}
	kind := Kind(hdr[0])
	lsn := binary.BigEndian.Uint64(hdr[1:9])
	txn := binary.BigEndian.Uint64(hdr[9:17])
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(hdr[17:25])))
	payloadLen := binary.BigEndian.Uint32(hdr[25:29])
	checksum := binary.BigEndian.Uint32(hdr[29:33])
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Record{}, err
		}
	}
	want := computeChecksum(txn, kind, ts, payload)
	if want != checksum {
		return Record{}, errs.New("wal", errs.CodeChecksum, errs.LevelFatal, "checksum mismatch during replay", fmt.Sprintf("lsn=%d", lsn))
	}
	return Record{LSN: lsn, TxnID: txn, Kind: kind, Timestamp: ts, Payload: payload, Checksum: checksum}, nil
}

// ReplayFunc is invoked by Recover for every redo record of a committed
// transaction, from the start of the log, in LSN order, so the caller
// (typically the table/index managers via the engine) can redo committed work.
type ReplayFunc func(Record) error

// Recover scans the WAL from the start (checkpoints are a flush barrier,
// not a truncation point, since this engine keeps the whole log), tracking
// transaction outcomes, and invokes fn for every MODIFY_PAGE/INSERT/UPDATE/
// DELETE record belonging to a transaction that eventually committed.
// Replay stops at the first checksum mismatch; prior records stand
// (spec.md §4.1).
func (m *Manager) Recover(fn ReplayFunc) error {
	f, err := os.Open(m.f.Name())
	if err != nil {
		return errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "open wal for recovery", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []Record
	committed := map[TxnID]bool{}
	aborted := map[TxnID]bool{}
	for {
		rec, err := readRecord(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errs.IsFatal(err) {
				break // checksum mismatch: stop replay, prior records stand
			}
			return err
		}
		records = append(records, rec)
		switch rec.Kind {
		case KindCommit:
			committed[rec.TxnID] = true
		case KindAbort:
			aborted[rec.TxnID] = true
		}
	}

	for _, rec := range records {
		switch rec.Kind {
		case KindModifyPage, KindInsertTuple, KindUpdateTuple, KindDeleteTuple, KindCreateTable, KindDropTable:
			if committed[rec.TxnID] && !aborted[rec.TxnID] {
				if err := fn(rec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// UndoSince scans the log for txnID's own MODIFY_PAGE records with
// LSN > fromLSN, in ascending LSN order. The caller (table.Store) walks the
// result in reverse, re-applying each before-image, to undo a transaction's
// writes back to a savepoint or to the start of the transaction — the same
// before-image mechanism full rollback and crash recovery both rely on
// (spec.md §4.1, §4.3).
func (m *Manager) UndoSince(txnID TxnID, fromLSN LSN) ([]Record, error) {
	f, err := os.Open(m.f.Name())
	if err != nil {
		return nil, errs.Wrap("wal", errs.CodeDiskIO, errs.LevelFatal, "open wal for undo scan", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []Record
	for {
		rec, err := readRecord(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errs.IsFatal(err) {
				break
			}
			return nil, err
		}
		if rec.Kind == KindModifyPage && rec.TxnID == txnID && rec.LSN > fromLSN {
			out = append(out, rec)
		}
	}
	return out, nil
}

// InstanceID returns the manager's in-memory identity, for diagnostics.
func (m *Manager) InstanceID() uuid.UUID { return m.instanceID }
