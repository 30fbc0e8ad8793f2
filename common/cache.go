// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

// Cache is a fixed-capacity key/value cache with a least-recently-used
// eviction policy. It is not synchronized; concurrent users must provide
// their own locking.
type Cache[K comparable, V any] struct {
	entries  map[K]*cacheEntry[K, V]
	capacity int
	head     *cacheEntry[K, V]
	tail     *cacheEntry[K, V]
	onEvict  func(K, V)
}

// NewCache creates a cache retaining up to capacity entries. The onEvict
// callback, if not nil, is invoked for every entry dropped due to capacity
// pressure, but not for entries removed explicitly.
func NewCache[K comparable, V any](capacity int, onEvict func(K, V)) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		entries:  make(map[K]*cacheEntry[K, V], capacity),
		capacity: capacity,
		onEvict:  onEvict,
	}
}

// Get returns the value stored for the key, if present, and marks it as
// most recently used.
func (c *Cache[K, V]) Get(key K) (value V, exists bool) {
	item, exists := c.entries[key]
	if exists {
		value = item.val
		c.touch(item)
	}
	return
}

// Set associates the key with the given value. An existing entry is updated
// in place and marked as used. Inserting into a full cache evicts the least
// recently used entry.
func (c *Cache[K, V]) Set(key K, value V) {
	item, exists := c.entries[key]
	if !exists {
		if len(c.entries) >= c.capacity {
			c.dropLast()
		}
		item = &cacheEntry[K, V]{key: key}
		c.entries[key] = item

		item.next = c.head
		if c.head != nil {
			c.head.prev = item
		}
		c.head = item
		if c.tail == nil {
			c.tail = c.head
		}
	}
	item.val = value
	c.touch(item)
}

// Remove drops the entry for the key, returning the removed value and
// whether an entry was present. The onEvict callback is not invoked.
func (c *Cache[K, V]) Remove(key K) (value V, exists bool) {
	item, exists := c.entries[key]
	if !exists {
		return
	}
	value = item.val
	delete(c.entries, key)
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.tail = item.prev
	}
	return
}

// Clear drops all entries without invoking the onEvict callback.
func (c *Cache[K, V]) Clear() {
	clear(c.entries)
	c.head = nil
	c.tail = nil
}

// Len returns the number of entries currently retained.
func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}

// Iterate calls the callback for every entry in the cache, in no
// particular order. The cache must not be modified during the iteration.
func (c *Cache[K, V]) Iterate(callback func(K, V)) {
	for key, item := range c.entries {
		callback(key, item.val)
	}
}

// touch makes the entry the most recently used one.
func (c *Cache[K, V]) touch(item *cacheEntry[K, V]) {
	if item == c.head {
		return
	}
	item.prev.next = item.next
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.tail = item.prev
	}
	item.prev = nil
	item.next = c.head
	c.head.prev = item
	c.head = item
}

// dropLast evicts the least recently used entry.
func (c *Cache[K, V]) dropLast() {
	if c.tail == nil {
		return
	}
	if c.onEvict != nil {
		c.onEvict(c.tail.key, c.tail.val)
	}
	delete(c.entries, c.tail.key)
	c.tail = c.tail.prev
	if c.tail != nil {
		c.tail.next = nil
	} else {
		c.head = nil
	}
}

// cacheEntry is a cache item wrapping a key, a value and references to the
// neighboring elements of the LRU queue.
type cacheEntry[K comparable, V any] struct {
	key  K
	val  V
	prev *cacheEntry[K, V]
	next *cacheEntry[K, V]
}
