// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package futarchyvm hosts futarchy proposals: conditional markets whose
// time-weighted prices decide whether a proposal's actions are adopted.
package futarchyvm

import (
	"github.com/luxfi/log"

	"github.com/luxfi/futarchy"
)

var (
	// VMID is the unique identifier for the futarchy VM
	VMID = [32]byte{'f', 'u', 't', 'a', 'r', 'c', 'h', 'y', 'v', 'm'}

	_ futarchy.Factory = (*Factory)(nil)
)

// Factory creates new futarchy VM instances.
type Factory struct{}

// New implements futarchy.Factory.
func (*Factory) New(logger log.Logger) (interface{}, error) {
	return New(logger), nil
}
