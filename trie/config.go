// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package trie

import "go.uber.org/zap"

const (
	// DefaultCacheCapacity is the per-shard entry limit of client-mode
	// node caches.
	DefaultCacheCapacity = 50_000
	// DefaultViewCacheCapacity is the per-shard entry limit of view-mode
	// node caches. View calls are rare and latency-insensitive, so their
	// caches are kept small.
	DefaultViewCacheCapacity = 1_000
	// DefaultMaxCachedValueSize is the size limit above which values are
	// not retained in node caches. Large values are cheap to re-read
	// relative to the cache space they would occupy.
	DefaultMaxCachedValueSize = 1_000
	// DefaultPrefetchWorkers is the number of background goroutines
	// serving prefetch requests per shard.
	DefaultPrefetchWorkers = 8
	// DefaultPrefetchQueueSize bounds the number of queued prefetch
	// requests per shard; further requests are dropped.
	DefaultPrefetchQueueSize = 1_024
)

// Config carries the tuning knobs of a ShardTries instance. The zero value
// is usable; all unset fields fall back to the defaults above, a nop
// logger and nop metrics.
type Config struct {
	// CacheCapacity is the per-shard entry limit of client-mode caches.
	CacheCapacity int
	// ViewCacheCapacity is the per-shard entry limit of view-mode caches.
	ViewCacheCapacity int
	// MaxCachedValueSize excludes values larger than this from caching.
	MaxCachedValueSize int

	// EnableReceiptPrefetching turns on background prefetching of state
	// referenced by incoming receipts, for client-mode tries.
	EnableReceiptPrefetching bool
	// PrefetchSenders and PrefetchReceivers form an allow-list pair for
	// account-targeted prefetching. Prefetching through the list is only
	// active when both lists are non-empty.
	PrefetchSenders   []string
	PrefetchReceivers []string
	// PrefetchWorkers is the number of background workers per shard.
	PrefetchWorkers int
	// PrefetchQueueSize bounds the per-shard prefetch request queue.
	PrefetchQueueSize int

	// Logger receives lifecycle and diagnostic events. Defaults to a nop
	// logger.
	Logger *zap.Logger
	// Metrics receives changeset application counters. Defaults to nop
	// metrics.
	Metrics Metrics
}

// withDefaults returns a copy of the config with all unset fields
// populated.
func (c Config) withDefaults() Config {
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.ViewCacheCapacity <= 0 {
		c.ViewCacheCapacity = DefaultViewCacheCapacity
	}
	if c.MaxCachedValueSize <= 0 {
		c.MaxCachedValueSize = DefaultMaxCachedValueSize
	}
	if c.PrefetchWorkers <= 0 {
		c.PrefetchWorkers = DefaultPrefetchWorkers
	}
	if c.PrefetchQueueSize <= 0 {
		c.PrefetchQueueSize = DefaultPrefetchQueueSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics()
	}
	return c
}

// prefetchingEnabled decides whether a prefetcher is attached to tries of
// the given access mode. View tries never prefetch: their latency does not
// matter, and the prefetch pipeline assumes a single client-mode user per
// shard.
func (c *Config) prefetchingEnabled(isView bool) bool {
	if isView {
		return false
	}
	return c.EnableReceiptPrefetching ||
		(len(c.PrefetchSenders) > 0 && len(c.PrefetchReceivers) > 0)
}
