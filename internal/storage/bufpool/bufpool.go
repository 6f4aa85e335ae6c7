// Package bufpool implements C3: N independent buffer-pool shards keyed by
// hash(page_id) mod N, each owning its own frame table, hash map, LRU
// replacement list, and dirty frames. Shards share no mutable state;
// contention is local to whichever shard a page id hashes into
// (spec.md §4.2).
//
// flush_all/evict_clean fan out one goroutine per shard and join with
// golang.org/x/sync/errgroup, grounded on the teacher's internal/hooks
// concurrent-dispatch pattern.
package bufpool

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

// Frame is a cached page plus its buffer-pool bookkeeping.
type Frame struct {
	PageID page.ID
	Data   []byte
	Pinned int
	Dirty  bool
	LSN    wal.LSN // LSN of the last modification applied to this frame

	elem *list.Element // clock-policy ring position (we use LRU-via-list for determinism)
}

// shard is one independent buffer-pool partition.
type shard struct {
	mu     sync.Mutex
	frames map[page.ID]*Frame
	lru    *list.List // front = most recently used
	cap    int
}

func newShard(capacity int) *shard {
	return &shard{frames: make(map[page.ID]*Frame), lru: list.New(), cap: capacity}
}

// Pool is a sharded buffer pool over a single database's paged file and WAL.
type Pool struct {
	shards []*shard
	mask   page.ID
	file   *page.File
	wal    *wal.Manager
}

// New creates a pool with numShards shards (must be a power of two) each
// holding up to framesPerShard pages.
func New(file *page.File, w *wal.Manager, numShards, framesPerShard int) (*Pool, error) {
	if numShards <= 0 || (numShards&(numShards-1)) != 0 {
		return nil, errs.New("bufpool", errs.CodeInvalidParameter, errs.LevelError, "shard count must be a power of two", "")
	}
	p := &Pool{
		shards: make([]*shard, numShards),
		mask:   page.ID(numShards - 1),
		file:   file,
		wal:    w,
	}
	for i := range p.shards {
		p.shards[i] = newShard(framesPerShard)
	}
	return p, nil
}

// ShardFor returns the shard index a page id is owned by. Stable across the
// engine's lifetime (spec.md §8 invariant 4).
func (p *Pool) ShardFor(id page.ID) int { return int(id & p.mask) }

func (p *Pool) shardFor(id page.ID) *shard { return p.shards[p.ShardFor(id)] }

// Fetch returns a pinned frame for id, loading it from disk on a miss and
// evicting a victim from the same shard if necessary.
func (p *Pool) Fetch(id page.ID) (*Frame, error) {
	s := p.shardFor(id)
	s.mu.Lock()
	if f, ok := s.frames[id]; ok {
		f.Pinned++
		s.lru.MoveToFront(f.elem)
		s.mu.Unlock()
		return f, nil
	}
	if len(s.frames) >= s.cap {
		if err := p.evictLocked(s); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	data, err := p.file.ReadPage(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have loaded it while we read from disk.
	if f, ok := s.frames[id]; ok {
		f.Pinned++
		s.lru.MoveToFront(f.elem)
		return f, nil
	}
	f := &Frame{PageID: id, Data: data, Pinned: 1}
	f.elem = s.lru.PushFront(id)
	s.frames[id] = f
	return f, nil
}

// evictLocked finds an unpinned victim (preferring clean, then oldest
// dirty), flushing its WAL LSN and writing it through before reuse
// (spec.md §4.2). Caller holds s.mu.
func (p *Pool) evictLocked(s *shard) error {
	var victim *list.Element
	for e := s.lru.Back(); e != nil; e = e.Prev() {
		f := s.frames[e.Value.(page.ID)]
		if f.Pinned > 0 {
			continue
		}
		if !f.Dirty {
			victim = e
			break
		}
		if victim == nil {
			victim = e
		}
	}
	if victim == nil {
		return errs.New("bufpool", errs.CodeMemory, errs.LevelError, "no evictable frame: all frames pinned", "")
	}
	id := victim.Value.(page.ID)
	f := s.frames[id]
	if f.Dirty {
		if err := p.wal.FlushUpto(f.LSN); err != nil {
			return err
		}
		if err := p.file.WritePage(f.PageID, f.Data); err != nil {
			return err
		}
		f.Dirty = false
	}
	s.lru.Remove(victim)
	delete(s.frames, id)
	return nil
}

// Unpin releases a pin taken by Fetch, optionally marking the frame dirty
// with the LSN of the modification that dirtied it.
func (p *Pool) Unpin(id page.ID, dirty bool, lsn wal.LSN) {
	s := p.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[id]
	if !ok {
		return
	}
	if f.Pinned > 0 {
		f.Pinned--
	}
	if dirty {
		f.Dirty = true
		if lsn > f.LSN {
			f.LSN = lsn
		}
	}
}

// FlushAll writes every dirty frame through to disk, fsyncing the WAL up
// to each frame's LSN first. Shards are flushed concurrently via errgroup.
func (p *Pool) FlushAll() error {
	g, _ := errgroup.WithContext(context.Background())
	for _, s := range p.shards {
		s := s
		g.Go(func() error { return p.flushShard(s) })
	}
	return g.Wait()
}

func (p *Pool) flushShard(s *shard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		if !f.Dirty {
			continue
		}
		if err := p.wal.FlushUpto(f.LSN); err != nil {
			return err
		}
		if err := p.file.WritePage(f.PageID, f.Data); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}

// EvictClean drops every unpinned, clean frame from every shard, freeing
// capacity without any I/O. Concurrent across shards via errgroup.
func (p *Pool) EvictClean() error {
	g, _ := errgroup.WithContext(context.Background())
	for _, s := range p.shards {
		s := s
		g.Go(func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for e := s.lru.Front(); e != nil; {
				next := e.Next()
				id := e.Value.(page.ID)
				f := s.frames[id]
				if f.Pinned == 0 && !f.Dirty {
					s.lru.Remove(e)
					delete(s.frames, id)
				}
				e = next
			}
			return nil
		})
	}
	return g.Wait()
}

// ShardCount returns N, the number of shards (mostly for diagnostics/tests).
func (p *Pool) ShardCount() int { return len(p.shards) }
