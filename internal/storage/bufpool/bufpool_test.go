package bufpool

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

func openFixture(t *testing.T) (*page.File, *wal.Manager, *Pool) {
	t.Helper()
	dir := t.TempDir()
	f, err := page.Open(filepath.Join(dir, "db.pages"), page.DefaultSize)
	if err != nil {
		t.Fatalf("page.Open: %v", err)
	}
	w, err := wal.Open(filepath.Join(dir, "db.wal"), true)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	p, err := New(f, w, 4, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { f.Close(); w.Close() })
	return f, w, p
}

func TestShardAssignmentStable(t *testing.T) {
	_, _, p := openFixture(t)
	for id := page.ID(0); id < 100; id++ {
		want := int(id) % p.ShardCount()
		if got := p.ShardFor(id); got != want {
			t.Errorf("ShardFor(%d) = %d, want %d", id, got, want)
		}
	}
}

func TestFetchUnpinRoundTrip(t *testing.T) {
	f, w, p := openFixture(t)
	id, err := f.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	frame, err := p.Fetch(id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	copy(frame.Data, bytes.Repeat([]byte{0x42}, len(frame.Data)))
	lsn, err := w.Begin(1)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	p.Unpin(id, true, lsn)

	if err := p.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	onDisk, err := f.ReadPage(id)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(onDisk, frame.Data) {
		t.Errorf("flush did not persist dirty page")
	}
}

func TestConcurrentFetchDifferentShards(t *testing.T) {
	f, _, p := openFixture(t)
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		id, err := f.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		wg.Add(1)
		go func(id page.ID) {
			defer wg.Done()
			frame, err := p.Fetch(id)
			if err != nil {
				errs <- err
				return
			}
			p.Unpin(id, false, 0)
			_ = frame
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent fetch error: %v", err)
	}
}
