// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"testing"

	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	m, err := New(registry)
	require.NoError(err)

	m.MarkProposalCreated()
	m.MarkProposalCreated()
	m.SetActiveMarkets(3)
	m.MarkProposalFinalized(0)
	m.MarkProposalFinalized(2)
	m.MarkProposalFinalized(1)
	m.MarkSwap(1, "asset", 40)
	m.MarkSwap(1, "stable", 20)
	m.MarkLeaderFlip()
	m.MarkSession(ResultCommit)
	m.MarkSession(ResultRollback)
	m.MarkSession(ResultRollback)

	families, err := registry.Gather()
	require.NoError(err)

	require.InDelta(2, sum(families, "proposals_created", nil), 0)
	require.InDelta(3, sum(families, "active_markets", nil), 0)
	require.InDelta(2, sum(families, "proposals_finalized", map[string]string{resultLabel: ResultAccept}), 0)
	require.InDelta(1, sum(families, "proposals_finalized", map[string]string{resultLabel: ResultReject}), 0)
	require.InDelta(2, sum(families, "swaps", map[string]string{outcomeLabel: "1"}), 0)
	require.InDelta(2, sum(families, "swap_impact_bps_count", nil), 0)
	require.InDelta(60, sum(families, "swap_impact_bps_sum", nil), 0)
	require.InDelta(1, sum(families, "leader_flips", nil), 0)
	require.InDelta(2, sum(families, "escrow_sessions", map[string]string{resultLabel: ResultRollback}), 0)
}

// sum adds the values of every metric in the named family whose labels
// include want.
func sum(families []*metric.MetricFamily, name string, want map[string]string) float64 {
	var total float64
	for _, family := range families {
		if family.Name != name {
			continue
		}
		for _, m := range family.Metrics {
			if matches(m.Labels, want) {
				total += m.Value.Value
			}
		}
	}
	return total
}

func matches(labels []metric.LabelPair, want map[string]string) bool {
	found := 0
	for _, label := range labels {
		if v, ok := want[label.Name]; ok {
			if v != label.Value {
				return false
			}
			found++
		}
	}
	return found == len(want)
}
