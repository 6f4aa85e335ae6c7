// Package engine wires every C1-C12 manager into one embeddable instance
// and drives the spec.md §4.6 bootstrap sequence, grounded loosely on the
// teacher's internal/storage/factory.go central-wiring pattern: one
// constructor that owns the lifetime of everything beneath it, rather than
// each caller assembling managers by hand the way the test harnesses do.
package engine

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/catalog"
	"github.com/ridgedb/ridgedb/internal/config"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/exec"
	"github.com/ridgedb/ridgedb/internal/storage/bufpool"
	"github.com/ridgedb/ridgedb/internal/storage/lockfile"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/txn"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

// bootstrapTxnID stamps every directory/catalog-table creation performed
// outside the unified executor pipeline (spec.md §4.6 bootstrap invariant).
// It is never committed or rolled back; it exists only so C6/C7's WAL
// writes have a txn id to tag, the same convention the test harnesses use.
const bootstrapTxnID wal.TxnID = 1

// Engine is one running instance of the database: it owns the system
// database, the engine-wide lock/transaction manager, every opened user
// database's storage, and the unified executor built on top of them.
type Engine struct {
	cfg config.EngineConfig
	log io.Writer

	dirLock *lockfile.Lock

	sysFile  *page.File
	sysWAL   *wal.Manager
	sysPool  *bufpool.Pool
	sysStore *table.Store

	cat    *catalog.Catalog
	am     *auth.Manager
	txnWAL *wal.Manager
	txns   *txn.Manager

	stores *stores

	Exec *exec.Executor

	checkpointStop chan struct{}
	checkpointWG   sync.WaitGroup
}

// Option configures optional Engine behavior at Open time.
type Option func(*Engine)

// WithLogWriter overrides the destination for errs.Logf diagnostics
// (defaults to os.Stderr, spec.md §7's format written straight to stderr
// the way the teacher's own storage layer does for retry diagnostics).
func WithLogWriter(w io.Writer) Option {
	return func(e *Engine) { e.log = w }
}

// Open bootstraps or resumes an engine instance rooted at cfg.DataDir:
// acquires the instance lock, opens (or creates) the system database and
// bootstraps its catalog, rehydrates auth from it, opens the engine-wide
// transaction manager, then reopens and rehydrates every database the
// catalog already knows about (spec.md §4.6: "At startup the engine reads
// these tables to rebuild in-memory managers").
func Open(cfg config.EngineConfig, opts ...Option) (e *Engine, err error) {
	e = &Engine{cfg: cfg, log: os.Stderr, checkpointStop: make(chan struct{})}
	for _, opt := range opts {
		opt(e)
	}

	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if err = os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errs.Wrap("engine", errs.CodeDiskIO, errs.LevelFatal, "create data directory", err)
	}
	e.dirLock, err = lockfile.AcquireExclusive(filepath.Join(cfg.DataDir, "LOCK"))
	if err != nil {
		return nil, errs.Wrap("engine", errs.CodeDiskIO, errs.LevelFatal, "acquire instance lock (another engine may be running against this data directory)", err)
	}

	if err = e.openSystemDatabase(); err != nil {
		return nil, err
	}

	e.cat = catalog.New(e.sysStore)
	if err = e.cat.Bootstrap(bootstrapTxnID); err != nil {
		return nil, errs.Wrap("engine", errs.CodeDiskIO, errs.LevelFatal, "bootstrap catalog", err)
	}
	e.am = auth.New(e.cat)
	if err = e.am.Rehydrate(); err != nil {
		return nil, errs.Wrap("engine", errs.CodeDiskIO, errs.LevelFatal, "rehydrate auth manager", err)
	}

	e.txnWAL, err = wal.Open(filepath.Join(cfg.DataDir, "txn.wal"), cfg.SyncWAL)
	if err != nil {
		return nil, err
	}
	e.txns, err = txn.New(e.txnWAL, cfg.LockStripes, cfg.DeadlockDetectInterval)
	if err != nil {
		return nil, errs.Wrap("engine", errs.CodeInvalidParameter, errs.LevelFatal, "create transaction manager", err)
	}

	e.stores = newStores(cfg.DataDir, cfg, e.log)
	for _, name := range e.cat.ListDatabases() {
		if name == catalog.SystemDatabase {
			continue
		}
		if err = e.stores.OpenDatabase(name); err != nil {
			return nil, err
		}
		if err = e.rehydrateIndexes(name); err != nil {
			return nil, err
		}
	}

	e.Exec = exec.New(e.cat, e.am, e.stores, e.txns)

	if cfg.CheckpointInterval > 0 {
		e.startCheckpointLoop()
	}

	errs.Logf(e.log, "engine", errs.LevelInfo, "opened %s (%d database(s))", cfg.DataDir, len(e.cat.ListDatabases()))
	return e, nil
}

func (e *Engine) openSystemDatabase() error {
	dir := filepath.Join(e.cfg.DataDir, catalog.SystemDatabase)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap("engine", errs.CodeDiskIO, errs.LevelFatal, "create system database directory", err)
	}
	pageSize := e.cfg.PageSize
	if pageSize == 0 {
		pageSize = page.DefaultSize
	}
	f, err := page.Open(filepath.Join(dir, "data.db"), pageSize)
	if err != nil {
		return err
	}
	e.sysFile = f

	w, err := wal.Open(filepath.Join(dir, "wal.log"), e.cfg.SyncWAL)
	if err != nil {
		return err
	}
	e.sysWAL = w

	pool, err := bufpool.New(f, w, e.cfg.BufferPoolShards, e.cfg.FramesPerShard)
	if err != nil {
		return err
	}
	e.sysPool = pool

	store, err := table.Open(f, pool, w, bootstrapTxnID)
	if err != nil {
		return err
	}
	e.sysStore = store
	return nil
}

// rehydrateIndexes rebuilds database's in-memory index.Manager from the
// catalog's sys_indexes rows plus a fresh table scan. Index content is
// never persisted (spec.md §4.4 C5 is purely in-memory); only the
// table/column/uniqueness triple survives in the catalog, the same
// information CREATE INDEX itself writes.
func (e *Engine) rehydrateIndexes(database string) error {
	specs, err := e.cat.IndexesForDatabase(database)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return nil
	}
	store, err := e.stores.Store(database)
	if err != nil {
		return err
	}
	idx := e.stores.Indexes(database)
	for _, spec := range specs {
		ix, err := idx.Create(spec.Table, spec.Column, spec.Unique)
		if err != nil {
			continue
		}
		md, ok := store.GetMetadata(spec.Table)
		if !ok {
			continue
		}
		ord, ok := md.Ordinal(spec.Column)
		if !ok {
			continue
		}
		rows, err := store.ScanTable(spec.Table)
		if err != nil {
			return err
		}
		for _, r := range rows {
			_ = ix.Insert(r.Row.Values[ord], r.Handle)
		}
	}
	return nil
}

// startCheckpointLoop runs a background checkpoint of every open WAL
// (system, transaction-lifecycle, and every user database) on
// cfg.CheckpointInterval, mirroring the teacher's background-goroutine
// maintenance style but scoped here to spec.md §4.2's periodic checkpoint.
func (e *Engine) startCheckpointLoop() {
	e.checkpointWG.Add(1)
	go func() {
		defer e.checkpointWG.Done()
		t := time.NewTicker(e.cfg.CheckpointInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if _, err := e.sysWAL.Checkpoint(); err != nil {
					errs.Logf(e.log, "engine", errs.LevelWarning, "system checkpoint failed: %v", err)
				}
				if _, err := e.txnWAL.Checkpoint(); err != nil {
					errs.Logf(e.log, "engine", errs.LevelWarning, "transaction WAL checkpoint failed: %v", err)
				}
				e.stores.checkpointAll()
			case <-e.checkpointStop:
				return
			}
		}
	}()
}

// ApplyConfig pushes a new deadlock-detect interval into the live
// transaction manager and records both mutable intervals in e.cfg. A
// checkpoint loop that is already running keeps the period it was started
// with; the new checkpoint interval takes effect at the next Open.
func (e *Engine) ApplyConfig(cfg config.EngineConfig) {
	e.txns.SetDeadlockInterval(cfg.DeadlockDetectInterval)
	e.cfg.DeadlockDetectInterval = cfg.DeadlockDetectInterval
	e.cfg.CheckpointInterval = cfg.CheckpointInterval
}

// Catalog exposes the catalog for callers (e.g. cmd/ridgedb init) that need
// to bootstrap a superuser or database before issuing statements through Exec.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Auth exposes the auth manager for the same bootstrap callers.
func (e *Engine) Auth() *auth.Manager { return e.am }

// Close releases every resource Open acquired, in reverse order.
func (e *Engine) Close() error {
	if e.checkpointStop != nil {
		select {
		case <-e.checkpointStop:
		default:
			close(e.checkpointStop)
		}
		e.checkpointWG.Wait()
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.stores != nil {
		record(e.stores.closeAll())
	}
	if e.txnWAL != nil {
		record(e.txnWAL.Close())
	}
	if e.sysWAL != nil {
		record(e.sysWAL.Close())
	}
	if e.sysFile != nil {
		record(e.sysFile.Close())
	}
	if e.dirLock != nil {
		record(e.dirLock.Release())
	}
	return firstErr
}
