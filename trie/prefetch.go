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

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
)

// PrefetchApi hands prefetch requests to a pool of background workers
// that pull the requested nodes from the store into the shard's cache
// ahead of the trie traversal needing them. The pipeline assumes a single
// client-mode user per shard; it is never attached to view tries.
type PrefetchApi struct {
	requests chan common.Hash
	stop     chan struct{}
	storage  *CachingStorage
	shard    ShardUId

	enableReceipts bool
	senders        []string
	receivers      []string
}

// PrefetchWorkers is the handle on the background goroutines of one
// shard's prefetcher. It is owned by the ShardTries instance that created
// it and torn down with it.
type PrefetchWorkers struct {
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// newPrefetchApi creates the prefetch handle for one shard and starts its
// worker pool.
func newPrefetchApi(store storage.Store, cache TrieCache, shard ShardUId, config Config) (*PrefetchApi, *PrefetchWorkers) {
	stop := make(chan struct{})
	api := &PrefetchApi{
		requests: make(chan common.Hash, config.PrefetchQueueSize),
		stop:     stop,
		// Workers share the main cache but bypass the prefetcher to keep
		// retrievals from re-entering the queue.
		storage:        NewCachingStorage(store, cache, shard, false, nil),
		shard:          shard,
		enableReceipts: config.EnableReceiptPrefetching,
		senders:        config.PrefetchSenders,
		receivers:      config.PrefetchReceivers,
	}
	workers := &PrefetchWorkers{stop: stop}
	log := config.Logger.With(zap.String("shard", shard.String()))
	log.Debug("starting prefetch workers", zap.Int("count", config.PrefetchWorkers))
	for i := 0; i < config.PrefetchWorkers; i++ {
		workers.wg.Add(1)
		go func() {
			defer workers.wg.Done()
			api.run(log)
		}()
	}
	return api, workers
}

// run serves prefetch requests until the worker pool is stopped.
func (p *PrefetchApi) run(log *zap.Logger) {
	for {
		select {
		case <-p.stop:
			return
		case hash := <-p.requests:
			if _, err := p.storage.Retrieve(hash); err != nil {
				// A missing node is no error here: the request may race
				// with a changeset that removed it.
				if !errors.Is(err, storage.ErrNotFound) {
					log.Warn("prefetch failed", zap.String("hash", hash.String()), zap.Error(err))
				}
			}
		}
	}
}

// Prefetch enqueues a node hash to be warmed into the shard cache. It
// never blocks; requests beyond the queue capacity are dropped and false
// is returned.
func (p *PrefetchApi) Prefetch(hash common.Hash) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	select {
	case p.requests <- hash:
		return true
	default:
		return false
	}
}

// PrefetchesReceipts reports whether state referenced by incoming receipts
// is prefetched unconditionally.
func (p *PrefetchApi) PrefetchesReceipts() bool {
	return p.enableReceipts
}

// AllowsSender reports whether transfers from the account participate in
// allow-list prefetching.
func (p *PrefetchApi) AllowsSender(accountID string) bool {
	return slices.Contains(p.senders, accountID)
}

// AllowsReceiver reports whether transfers to the account participate in
// allow-list prefetching.
func (p *PrefetchApi) AllowsReceiver(accountID string) bool {
	return slices.Contains(p.receivers, accountID)
}

// Stop terminates the worker pool and waits for all workers to exit.
// Requests still queued are discarded. Stop may be called multiple times.
func (w *PrefetchWorkers) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}
