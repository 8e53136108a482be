// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package futarchyvm

import (
	"bytes"
	"time"

	"github.com/google/btree"
	"github.com/luxfi/ids"
)

const defaultTreeDegree = 2

var _ btree.LessFunc[deadline] = deadline.Less

// deadline is when a proposal's current stage expires.
type deadline struct {
	at time.Time
	id ids.ID
}

// Less orders deadlines by time, breaking ties by proposal id so that
// expirations are processed in the same order on every node.
func (d deadline) Less(than deadline) bool {
	if !d.at.Equal(than.at) {
		return d.at.Before(than.at)
	}
	return bytes.Compare(d.id[:], than.id[:]) < 0
}

// schedule orders proposal deadlines. Every proposal has at most one
// entry.
type schedule struct {
	tree    *btree.BTreeG[deadline]
	entries map[ids.ID]deadline
}

func newSchedule() *schedule {
	return &schedule{
		tree:    btree.NewG(defaultTreeDegree, deadline.Less),
		entries: make(map[ids.ID]deadline),
	}
}

// Set replaces id's deadline with at.
func (s *schedule) Set(id ids.ID, at time.Time) {
	s.Remove(id)
	d := deadline{at: at, id: id}
	s.tree.ReplaceOrInsert(d)
	s.entries[id] = d
}

func (s *schedule) Remove(id ids.ID) {
	if d, ok := s.entries[id]; ok {
		s.tree.Delete(d)
		delete(s.entries, id)
	}
}

func (s *schedule) Len() int { return s.tree.Len() }

// Due returns the ids whose deadline is at or before now, earliest first.
func (s *schedule) Due(now time.Time) []ids.ID {
	var due []ids.ID
	s.tree.Ascend(func(d deadline) bool {
		if d.at.After(now) {
			return false
		}
		due = append(due, d.id)
		return true
	})
	return due
}

// All returns every scheduled id, earliest deadline first.
func (s *schedule) All() []ids.ID {
	all := make([]ids.ID, 0, s.tree.Len())
	s.tree.Ascend(func(d deadline) bool {
		all = append(all, d.id)
		return true
	})
	return all
}
