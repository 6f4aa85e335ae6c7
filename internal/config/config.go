// Package config loads and hot-reloads engine tuning parameters, grounded
// on the teacher's internal/config (yaml-backed local config struct read
// directly off disk, independent of any singleton) and internal/configfile
// (viper-layered defaults/file/env). RidgeDB uses viper the same way, with
// both yaml and toml decoders registered so either file extension works.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EngineConfig is the full set of tunables for one engine instance
// (spec.md §4.1-§4.4, §6 persisted layout).
type EngineConfig struct {
	// DataDir is the engine-instance root: one subdirectory per database,
	// each holding its paged file(s) and a single WAL file (spec.md §6).
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" toml:"data_dir"`

	// PageSize is the fixed page size in bytes (spec.md §3, default 4 KiB).
	PageSize int `mapstructure:"page_size" yaml:"page_size" toml:"page_size"`

	// BufferPoolShards is N in spec.md §4.2; must be a power of two.
	BufferPoolShards int `mapstructure:"buffer_pool_shards" yaml:"buffer_pool_shards" toml:"buffer_pool_shards"`

	// FramesPerShard bounds each shard's resident page count.
	FramesPerShard int `mapstructure:"frames_per_shard" yaml:"frames_per_shard" toml:"frames_per_shard"`

	// LockStripes is S in spec.md §4.3; must be a power of two.
	LockStripes int `mapstructure:"lock_stripes" yaml:"lock_stripes" toml:"lock_stripes"`

	// DefaultIsolation is the isolation level new transactions start with
	// absent an explicit SET TRANSACTION (spec.md §3).
	DefaultIsolation string `mapstructure:"default_isolation" yaml:"default_isolation" toml:"default_isolation"`

	// DeadlockDetectInterval is the lock-wait threshold that triggers a
	// wait-for cycle check (spec.md §4.3). Mutable, hot-reloaded.
	DeadlockDetectInterval time.Duration `mapstructure:"deadlock_detect_interval" yaml:"deadlock_detect_interval" toml:"deadlock_detect_interval"`

	// CheckpointInterval drives periodic C2 checkpoints. Mutable, hot-reloaded.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval" toml:"checkpoint_interval"`

	// SyncWAL, when true, fsyncs on every WAL flush (durable); when false,
	// relies on OS buffering (used only by tests that accept weaker durability).
	SyncWAL bool `mapstructure:"sync_wal" yaml:"sync_wal" toml:"sync_wal"`
}

// Default returns the out-of-the-box tuning, matching spec.md's stated
// defaults (N=16, S=64, page=4KiB).
func Default() EngineConfig {
	return EngineConfig{
		DataDir:                "./ridgedb-data",
		PageSize:               4096,
		BufferPoolShards:       16,
		FramesPerShard:         1024,
		LockStripes:            64,
		DefaultIsolation:       "READ_COMMITTED",
		DeadlockDetectInterval: 200 * time.Millisecond,
		CheckpointInterval:     30 * time.Second,
		SyncWAL:                true,
	}
}

// WriteDefault writes cfg to path as yaml, bypassing viper entirely the way
// the teacher's own LoadLocalConfig/SaveLocalConfig pair reads and writes
// config.yaml directly for callers that can't go through the viper
// singleton (here: `ridgedb init` scaffolding a fresh config file before
// anything has opened it for watching).
func WriteDefault(path string, cfg EngineConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Loader loads an EngineConfig from a file (yaml or toml, by extension) and
// can watch it for live edits to the mutable subset.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur EngineConfig

	onChange func(EngineConfig)
}

// NewLoader reads path (if it exists) over the Default() baseline. An
// absent file is not an error; Default() tuning is used as-is, the way the
// teacher's LoadLocalConfig returns an empty struct rather than failing.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("page_size", def.PageSize)
	v.SetDefault("buffer_pool_shards", def.BufferPoolShards)
	v.SetDefault("frames_per_shard", def.FramesPerShard)
	v.SetDefault("lock_stripes", def.LockStripes)
	v.SetDefault("default_isolation", def.DefaultIsolation)
	v.SetDefault("deadlock_detect_interval", def.DeadlockDetectInterval)
	v.SetDefault("checkpoint_interval", def.CheckpointInterval)
	v.SetDefault("sync_wal", def.SyncWAL)

	l := &Loader{v: v}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	var cfg EngineConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	l.mu.Lock()
	l.cur = cfg
	cb := l.onChange
	l.mu.Unlock()
	if cb != nil {
		cb(cfg)
	}
	return nil
}

// Current returns a snapshot of the live configuration.
func (l *Loader) Current() EngineConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func(EngineConfig)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Watch starts an fsnotify watch on the config file so edits to the
// mutable subset (deadlock/checkpoint intervals) take effect without a
// restart, mirroring the teacher's fsnotify-driven config reload.
func (l *Loader) Watch() error {
	cfgFile := l.v.ConfigFileUsed()
	if cfgFile == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(cfgFile); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", cfgFile, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := l.v.ReadInConfig(); err == nil {
						_ = l.reload()
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
