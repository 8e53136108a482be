// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package math provides overflow-checked unsigned arithmetic.
package math

import (
	"errors"
	"math/bits"
)

var (
	ErrOverflow     = errors.New("overflow")
	ErrUnderflow    = errors.New("underflow")
	ErrDivideByZero = errors.New("divide by zero")
)

// Unsigned is a constraint that permits any unsigned integer type.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// MaxUint returns the maximum value of an unsigned integer of type T.
func MaxUint[T Unsigned]() T {
	return ^T(0)
}

// Add returns a + b or ErrOverflow.
func Add[T Unsigned](a, b T) (T, error) {
	if a > MaxUint[T]()-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a - b or ErrUnderflow.
func Sub[T Unsigned](a, b T) (T, error) {
	if a < b {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// MulDiv returns floor(a * b / d) computed with a 128-bit intermediate.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}
