// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of value. Spot and conditional balances are counted in
// MicroLux, the base unit.
const (
	MicroLux uint64 = 1
	MilliLux uint64 = 1000 * MicroLux
	Lux      uint64 = 1000 * MilliLux
	KiloLux  uint64 = 1000 * Lux
	MegaLux  uint64 = 1000 * KiloLux
)
