// Package txn implements C4: striped key locks plus a transaction table
// with isolation-level semantics, deadlock detection via wait-for cycle
// checking, and WAL-backed commit/rollback.
//
// The lock-wait poll loop backs off between wait-for graph checks using
// cenkalti/backoff, grounded on the teacher's storage/dolt/transaction.go
// retry-with-backoff idiom — but unlike that code, this backoff governs an
// internal wait, never a retried *statement* (spec.md §4.3 has no
// automatic statement retry).
package txn

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

// Isolation is one of the five levels spec.md §3 names.
type Isolation string

const (
	ReadUncommitted Isolation = "READ_UNCOMMITTED"
	ReadCommitted   Isolation = "READ_COMMITTED"
	RepeatableRead  Isolation = "REPEATABLE_READ"
	Snapshot        Isolation = "SNAPSHOT"
	Serializable    Isolation = "SERIALIZABLE"
)

// Status is a transaction's lifecycle state.
type Status string

const (
	Active    Status = "ACTIVE"
	Committed Status = "COMMITTED"
	Aborted   Status = "ABORTED"
)

// ID identifies a transaction; generated as a uuid-derived integer the way
// the teacher stamps session ids, but kept as a plain uint64 for cheap
// striping arithmetic and WAL-header compatibility.
type ID = uint64

// Txn is one transaction's in-memory state (spec.md §3).
//
// LastLSN is opaque to Manager: it is never written or read from
// Manager's own lifecycle WAL. The executor stamps it, right after Begin,
// with the current database's own data-WAL cursor (table.Store.LastLSN),
// and reads it back as the baseline for a full ROLLBACK's physical undo
// (spec.md §4.1, §4.3) — the same per-database WAL namespace Savepoint's
// LSN argument below lives in.
type Txn struct {
	ID         ID
	Status     Status
	Isolation  Isolation
	LastLSN    wal.LSN
	SnapshotID uint64

	heldWrite map[int]bool // stripe indices held in write mode by this txn
	savepoints []savepoint
}

type savepoint struct {
	Name string
	LSN  wal.LSN
}

func newID() ID {
	u := uuid.New()
	// Fold the UUID down to a non-zero uint64; collisions are astronomically
	// unlikely and harmless even if they occurred (ids are used only for
	// diagnostics/striping, not security).
	var v uint64
	for i, b := range u[:8] {
		v |= uint64(b) << (8 * uint(i))
	}
	if v == 0 {
		v = 1
	}
	return v
}

// stripe is one RW-lock bucket in the key space (spec.md §4.3).
type stripe struct {
	mu sync.Mutex
	// writer, if non-zero, is the txn currently holding this stripe in
	// write mode.
	writer ID
	// readers counts concurrent readers (mutually exclusive with writer != 0
	// except for re-entrant access by the writer itself).
	readers map[ID]int
	waiters map[ID]bool // transactions currently blocked on this stripe
}

func newStripe() *stripe {
	return &stripe{readers: make(map[ID]int), waiters: make(map[ID]bool)}
}

// Manager is the striped lock + transaction manager shared by every
// database the engine opens.
type Manager struct {
	stripes []*stripe
	mask    uint64

	wal *wal.Manager

	mu          sync.Mutex
	txns        map[ID]*Txn
	snapshotSeq uint64

	deadlockInterval atomic.Int64 // nanoseconds; hot-reloadable (spec.md §4.1)
}

// New creates a Manager with numStripes stripes (must be a power of two).
func New(w *wal.Manager, numStripes int, deadlockInterval time.Duration) (*Manager, error) {
	if numStripes <= 0 || (numStripes&(numStripes-1)) != 0 {
		return nil, errs.New("txn", errs.CodeInvalidParameter, errs.LevelError, "stripe count must be a power of two", "")
	}
	m := &Manager{
		stripes: make([]*stripe, numStripes),
		mask:    uint64(numStripes - 1),
		wal:     w,
		txns:    make(map[ID]*Txn),
	}
	m.deadlockInterval.Store(int64(deadlockInterval))
	for i := range m.stripes {
		m.stripes[i] = newStripe()
	}
	return m, nil
}

// SetDeadlockInterval updates the lock-wait threshold that triggers a
// wait-for cycle check, live (spec.md §4.1 marks this knob "Mutable,
// hot-reloaded").
func (m *Manager) SetDeadlockInterval(d time.Duration) {
	m.deadlockInterval.Store(int64(d))
}

func stripeHash(key string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return h
}

func (m *Manager) stripeFor(key string) (*stripe, int) {
	idx := int(stripeHash(key) & m.mask)
	return m.stripes[idx], idx
}

// Begin starts a new transaction at the given isolation level. It logs a
// diagnostic BEGIN record to Manager's own lifecycle WAL (not re-parsed by
// Recover, like the other logical records); LastLSN is left zero here for
// the executor to stamp against the transaction's actual database.
func (m *Manager) Begin(isolation Isolation) (*Txn, error) {
	id := newID()
	if _, err := m.wal.Begin(id); err != nil {
		return nil, err
	}
	t := &Txn{
		ID:        id,
		Status:    Active,
		Isolation: isolation,
		heldWrite: make(map[int]bool),
	}
	m.mu.Lock()
	if isolation == Snapshot {
		m.snapshotSeq++
		t.SnapshotID = m.snapshotSeq
	}
	m.txns[id] = t
	m.mu.Unlock()
	return t, nil
}

// Status returns the current status of txn id, or an error if unknown.
func (m *Manager) Status(id ID) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return "", fmt.Errorf("txn %d: %w", id, errs.ErrNotFound)
	}
	return t.Status, nil
}

func (m *Manager) get(id ID) (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, fmt.Errorf("txn %d: %w", id, errs.ErrNotFound)
	}
	if t.Status != Active {
		return nil, fmt.Errorf("txn %d: %w", id, errs.ErrTerminalTxn)
	}
	return t, nil
}

// LockForWrite acquires (or re-enters) the stripe containing key in write
// mode for txn. Blocks, with deadlock detection, if another transaction
// holds it.
func (m *Manager) LockForWrite(txn *Txn, key string) error {
	s, idx := m.stripeFor(key)
	return m.acquire(txn, s, idx, key, true)
}

// LockForRead acquires the stripe containing key in read mode, per the
// isolation rules of spec.md §4.3 (READ_UNCOMMITTED/SNAPSHOT take no lock).
func (m *Manager) LockForRead(txn *Txn, key string) error {
	if txn.Isolation == ReadUncommitted || txn.Isolation == Snapshot {
		return nil
	}
	s, idx := m.stripeFor(key)
	return m.acquire(txn, s, idx, key, false)
}

// ReleaseReadLock releases a read lock early, used by READ_COMMITTED which
// releases immediately after each read rather than holding to commit.
func (m *Manager) ReleaseReadLock(txn *Txn, key string) {
	if txn.Isolation != ReadCommitted {
		return
	}
	s, _ := m.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.readers[txn.ID]; ok {
		if n <= 1 {
			delete(s.readers, txn.ID)
		} else {
			s.readers[txn.ID] = n - 1
		}
	}
}

func (m *Manager) acquire(txn *Txn, s *stripe, idx int, key string, write bool) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 20 * time.Millisecond
	deadline := time.Now().Add(time.Duration(m.deadlockInterval.Load()))

	for {
		s.mu.Lock()
		// Re-entrant: the owning transaction never waits on its own write lock.
		if s.writer == txn.ID {
			if write {
				s.mu.Unlock()
				txn.heldWrite[idx] = true
				return nil
			}
			s.readers[txn.ID]++
			s.mu.Unlock()
			return nil
		}
		if write {
			if s.writer == 0 && len(s.readers) == 0 {
				s.writer = txn.ID
				s.mu.Unlock()
				txn.heldWrite[idx] = true
				return nil
			}
		} else {
			if s.writer == 0 {
				s.readers[txn.ID]++
				s.mu.Unlock()
				return nil
			}
		}
		s.waiters[txn.ID] = true
		blocker := s.writer
		s.mu.Unlock()

		if time.Now().After(deadline) {
			if m.detectDeadlock(txn.ID, blocker) {
				m.clearWaiter(s, txn.ID)
				return m.abortForDeadlock(txn)
			}
			deadline = time.Now().Add(time.Duration(m.deadlockInterval.Load()))
		}
		time.Sleep(b.NextBackOff())
	}
}

func (m *Manager) clearWaiter(s *stripe, id ID) {
	s.mu.Lock()
	delete(s.waiters, id)
	s.mu.Unlock()
}

// detectDeadlock reports whether blocker is itself waiting on a stripe whose
// writer is waiter, i.e. a direct two-transaction cycle (spec.md §4.3). It
// scans every stripe for that one edge; cycles through three or more
// transactions are not detected.
func (m *Manager) detectDeadlock(waiter, blocker ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stripes {
		s.mu.Lock()
		if s.writer == waiter && s.waiters[blocker] {
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
	}
	return false
}

// abortForDeadlock rolls back the caller (the transaction that just hit the
// deadlock-detection threshold). It does not compare the ages of the
// transactions in the cycle; the other transaction keeps running.
func (m *Manager) abortForDeadlock(txn *Txn) error {
	_ = m.Rollback(txn)
	return errs.New("txn", errs.CodeDeadlockDetected, errs.LevelError, "deadlock detected", fmt.Sprintf("txn=%d", txn.ID))
}

// Savepoint records a named rollback point at lsn, the caller-supplied
// cursor of the database the transaction is currently writing against.
// Manager has no notion of "the current database" (it is one lock/lifecycle
// manager shared across every database the engine opens, per-database WAL
// files per spec.md §6), so it never computes this LSN itself — only stores
// and hands it back to whichever store later performs the physical undo.
func (m *Manager) Savepoint(txn *Txn, name string, lsn wal.LSN) {
	txn.savepoints = append(txn.savepoints, savepoint{Name: name, LSN: lsn})
}

// RollbackToSavepoint reports the LSN to undo MODIFY_PAGE records back to;
// the caller (table/index managers) performs the actual undo using WAL
// before-images, the same mechanism full rollback uses.
func (m *Manager) RollbackToSavepoint(txn *Txn, name string) (wal.LSN, error) {
	for i := len(txn.savepoints) - 1; i >= 0; i-- {
		if txn.savepoints[i].Name == name {
			lsn := txn.savepoints[i].LSN
			txn.savepoints = txn.savepoints[:i]
			return lsn, nil
		}
	}
	return 0, fmt.Errorf("savepoint %q: %w", name, errs.ErrNotFound)
}

// Commit writes COMMIT to the WAL, flushes, then releases all locks.
func (m *Manager) Commit(txn *Txn) error {
	if _, err := m.wal.Commit(txn.ID); err != nil {
		return err
	}
	txn.Status = Committed
	m.releaseAll(txn)
	m.mu.Lock()
	delete(m.txns, txn.ID)
	m.mu.Unlock()
	return nil
}

// Rollback writes ABORT to the WAL and releases all locks. Undoing
// MODIFY_PAGE entries via WAL before-images is the caller's responsibility
// (the table/index managers own page content); this manager only owns
// lock/transaction-table state.
func (m *Manager) Rollback(txn *Txn) error {
	if txn.Status != Active {
		return nil
	}
	if _, err := m.wal.Abort(txn.ID); err != nil {
		return err
	}
	txn.Status = Aborted
	m.releaseAll(txn)
	m.mu.Lock()
	delete(m.txns, txn.ID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) releaseAll(txn *Txn) {
	for idx := range txn.heldWrite {
		s := m.stripes[idx]
		s.mu.Lock()
		if s.writer == txn.ID {
			s.writer = 0
		}
		delete(s.waiters, txn.ID)
		s.mu.Unlock()
	}
	for _, s := range m.stripes {
		s.mu.Lock()
		if _, ok := s.readers[txn.ID]; ok {
			delete(s.readers, txn.ID)
		}
		delete(s.waiters, txn.ID)
		s.mu.Unlock()
	}
}
