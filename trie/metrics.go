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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives counters about changeset applications, labeled by the
// shard they apply to. Implementations must be safe for concurrent use.
type Metrics interface {
	// AppliedInsertions counts refcount increments written for a shard.
	AppliedInsertions(shard ShardUId, count int)
	// AppliedDeletions counts refcount decrements written for a shard.
	AppliedDeletions(shard ShardUId, count int)
	// RevertedInsertions counts refcount increments undone during a
	// rollback, kept separate from forward deletions to distinguish
	// rollback traffic in dashboards.
	RevertedInsertions(shard ShardUId, count int)
}

// NopMetrics returns a Metrics implementation discarding all counts.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) AppliedInsertions(ShardUId, int)  {}
func (nopMetrics) AppliedDeletions(ShardUId, int)   {}
func (nopMetrics) RevertedInsertions(ShardUId, int) {}

// NewPrometheusMetrics creates a Metrics implementation exporting the
// counters through the given prometheus registerer.
func NewPrometheusMetrics(registerer prometheus.Registerer) (Metrics, error) {
	m := &prometheusMetrics{
		insertions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mosaic_applied_trie_insertions_total",
			Help: "Number of trie node insertions applied to the store, per shard.",
		}, []string{"shard_id"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mosaic_applied_trie_deletions_total",
			Help: "Number of trie node deletions applied to the store, per shard.",
		}, []string{"shard_id"}),
		reverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mosaic_reverted_trie_insertions_total",
			Help: "Number of trie node insertions reverted during rollbacks, per shard.",
		}, []string{"shard_id"}),
	}
	for _, collector := range []prometheus.Collector{m.insertions, m.deletions, m.reverted} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type prometheusMetrics struct {
	insertions *prometheus.CounterVec
	deletions  *prometheus.CounterVec
	reverted   *prometheus.CounterVec
}

func (m *prometheusMetrics) AppliedInsertions(shard ShardUId, count int) {
	m.insertions.WithLabelValues(shardLabel(shard)).Add(float64(count))
}

func (m *prometheusMetrics) AppliedDeletions(shard ShardUId, count int) {
	m.deletions.WithLabelValues(shardLabel(shard)).Add(float64(count))
}

func (m *prometheusMetrics) RevertedInsertions(shard ShardUId, count int) {
	m.reverted.WithLabelValues(shardLabel(shard)).Add(float64(count))
}

func shardLabel(shard ShardUId) string {
	return strconv.FormatUint(uint64(shard.ShardID), 10)
}
