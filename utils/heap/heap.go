// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package heap implements an array-backed binary max-heap.
//
// Unlike container/heap the items are typed and the ordering is a plain
// function, and callers that need to locate an item by identity can
// register a move hook that fires every time an item lands in a new slot.
package heap

// Parent returns the slot of i's parent. The root has no parent.
func Parent(i int) int { return (i - 1) / 2 }

// Left returns the slot of i's left child.
func Left(i int) int { return 2*i + 1 }

// Right returns the slot of i's right child.
func Right(i int) int { return 2*i + 2 }

// Max is a binary max-heap. Higher(a, b) reports whether a must sit above b.
// The zero value is not usable; use NewMax or BuildMax.
type Max[T any] struct {
	items  []T
	higher func(a, b T) bool
	onMove func(item T, slot int)
}

// Option configures a Max.
type Option[T any] func(*Max[T])

// WithMoveHook registers fn to be called with every item whenever it is
// written to a slot, including the initial placement.
func WithMoveHook[T any](fn func(item T, slot int)) Option[T] {
	return func(h *Max[T]) {
		h.onMove = fn
	}
}

// NewMax returns an empty heap ordered by higher.
func NewMax[T any](higher func(a, b T) bool, opts ...Option[T]) *Max[T] {
	h := &Max[T]{higher: higher}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// BuildMax heapifies items in O(n) using Floyd's bottom-up construction.
// The heap takes ownership of the slice.
func BuildMax[T any](items []T, higher func(a, b T) bool, opts ...Option[T]) *Max[T] {
	h := NewMax(higher, opts...)
	h.items = items
	for i := range h.items {
		h.moved(i)
	}
	for i := len(h.items)/2 - 1; i >= 0; i-- {
		h.down(i)
	}
	return h
}

// Len returns the number of items.
func (h *Max[T]) Len() int { return len(h.items) }

// At returns the item in slot i.
func (h *Max[T]) At(i int) T { return h.items[i] }

// Peek returns the root without removing it.
func (h *Max[T]) Peek() (T, bool) {
	if len(h.items) == 0 {
		var zero T
		return zero, false
	}
	return h.items[0], true
}

// Push inserts v in O(log n).
func (h *Max[T]) Push(v T) {
	h.items = append(h.items, v)
	last := len(h.items) - 1
	h.moved(last)
	h.up(last)
}

// Pop removes and returns the root in O(log n).
func (h *Max[T]) Pop() (T, bool) {
	n := len(h.items)
	if n == 0 {
		var zero T
		return zero, false
	}
	root := h.items[0]
	last := n - 1
	if last > 0 {
		h.swap(0, last)
	}
	var zero T
	h.items[last] = zero
	h.items = h.items[:last]
	if last > 0 {
		h.down(0)
	}
	return root, true
}

// Set overwrites the item in slot i and restores the heap property,
// moving the item either up or down but never both.
func (h *Max[T]) Set(i int, v T) {
	h.items[i] = v
	h.moved(i)
	h.Fix(i)
}

// Fix restores the heap property after the item in slot i changed.
// It returns the slot the item ended up in.
func (h *Max[T]) Fix(i int) int {
	if i > 0 && h.higher(h.items[i], h.items[Parent(i)]) {
		return h.up(i)
	}
	return h.down(i)
}

// Items returns the backing slice in slot order. It must not be modified.
func (h *Max[T]) Items() []T { return h.items }

// Valid reports whether every parent ranks at least as high as its
// children.
func (h *Max[T]) Valid() bool {
	for i := 1; i < len(h.items); i++ {
		if h.higher(h.items[i], h.items[Parent(i)]) {
			return false
		}
	}
	return true
}

func (h *Max[T]) up(i int) int {
	for i > 0 {
		p := Parent(i)
		if !h.higher(h.items[i], h.items[p]) {
			break
		}
		h.swap(i, p)
		i = p
	}
	return i
}

func (h *Max[T]) down(i int) int {
	n := len(h.items)
	for {
		top := i
		if l := Left(i); l < n && h.higher(h.items[l], h.items[top]) {
			top = l
		}
		if r := Right(i); r < n && h.higher(h.items[r], h.items[top]) {
			top = r
		}
		if top == i {
			return i
		}
		h.swap(i, top)
		i = top
	}
}

func (h *Max[T]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.moved(i)
	h.moved(j)
}

func (h *Max[T]) moved(i int) {
	if h.onMove != nil {
		h.onMove(h.items[i], i)
	}
}
