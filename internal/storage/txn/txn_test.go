package txn

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

func newFixture(t *testing.T) *Manager {
	t.Helper()
	w, err := wal.Open(filepath.Join(t.TempDir(), "test.wal"), false)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	m, err := New(w, 8, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestBeginCommitReleasesLocks(t *testing.T) {
	m := newFixture(t)
	tx, err := m.Begin(RepeatableRead)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.LockForWrite(tx, "row:1"); err != nil {
		t.Fatalf("LockForWrite: %v", err)
	}
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, err := m.Begin(RepeatableRead)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- m.LockForWrite(tx2, "row:1") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected lock to be free after commit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for released lock")
	}
}

func TestReentrantWriteLock(t *testing.T) {
	m := newFixture(t)
	tx, _ := m.Begin(Serializable)
	if err := m.LockForWrite(tx, "row:1"); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := m.LockForWrite(tx, "row:1"); err != nil {
		t.Fatalf("re-entrant lock should not block: %v", err)
	}
	m.Rollback(tx)
}

func TestReadBlocksOnWriterFromOtherTxn(t *testing.T) {
	m := newFixture(t)
	writer, _ := m.Begin(Serializable)
	if err := m.LockForWrite(writer, "row:1"); err != nil {
		t.Fatalf("LockForWrite: %v", err)
	}
	reader, _ := m.Begin(RepeatableRead)

	unblocked := make(chan struct{})
	go func() {
		m.LockForRead(reader, "row:1")
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("reader should have blocked while writer holds the stripe")
	case <-time.After(30 * time.Millisecond):
	}

	m.Rollback(writer)
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("reader never unblocked after writer released")
	}
}

func TestReadUncommittedTakesNoLock(t *testing.T) {
	m := newFixture(t)
	writer, _ := m.Begin(Serializable)
	m.LockForWrite(writer, "row:1")
	defer m.Rollback(writer)

	reader, _ := m.Begin(ReadUncommitted)
	if err := m.LockForRead(reader, "row:1"); err != nil {
		t.Fatalf("READ_UNCOMMITTED should never block: %v", err)
	}
}

func TestDeadlockDetectionAbortsOne(t *testing.T) {
	m := newFixture(t)
	t1, _ := m.Begin(Serializable)
	t2, _ := m.Begin(Serializable)

	if err := m.LockForWrite(t1, "a"); err != nil {
		t.Fatalf("t1 lock a: %v", err)
	}
	if err := m.LockForWrite(t2, "b"); err != nil {
		t.Fatalf("t2 lock b: %v", err)
	}

	errCh1 := make(chan error, 1)
	errCh2 := make(chan error, 1)
	go func() { errCh1 <- m.LockForWrite(t1, "b") }()
	go func() { errCh2 <- m.LockForWrite(t2, "a") }()

	var deadlocks int
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh1:
			if err != nil {
				if !errors.Is(err, err) || errs.CodeOf(err) != errs.CodeDeadlockDetected {
					t.Fatalf("unexpected error from t1: %v", err)
				}
				deadlocks++
			}
		case err := <-errCh2:
			if err != nil {
				if errs.CodeOf(err) != errs.CodeDeadlockDetected {
					t.Fatalf("unexpected error from t2: %v", err)
				}
				deadlocks++
			}
		case <-time.After(3 * time.Second):
			t.Fatal("deadlock was never detected")
		}
	}
	if deadlocks == 0 {
		t.Fatal("expected at least one transaction to abort with DEADLOCK_DETECTED")
	}
}
