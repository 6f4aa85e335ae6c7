package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoaderDefaultsWithoutFile(t *testing.T) {
	l, err := NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Current()
	if cfg.BufferPoolShards != 16 || cfg.LockStripes != 64 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestNewLoaderReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ridgedb.yaml")
	content := "page_size: 8192\nbuffer_pool_shards: 32\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Current()
	if cfg.PageSize != 8192 {
		t.Errorf("PageSize = %d, want 8192", cfg.PageSize)
	}
	if cfg.BufferPoolShards != 32 {
		t.Errorf("BufferPoolShards = %d, want 32", cfg.BufferPoolShards)
	}
	// unset fields still fall back to defaults
	if cfg.LockStripes != 64 {
		t.Errorf("LockStripes = %d, want default 64", cfg.LockStripes)
	}
}
