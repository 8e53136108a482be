// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json provides JSON types for config values that do not survive
// a round trip through float64 or are clearer written as strings.
package json

import (
	"strconv"
	"time"
)

const Null = "null"

// Uint64 is a uint64 that is JSON marshaled as a string. Unmarshaling
// accepts both the quoted and the bare form.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	str := unquote(string(b))
	if str == Null {
		return nil
	}
	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64(val)
	return nil
}

// Duration is a time.Duration that is JSON marshaled in time.Duration's
// string form ("36h", "90s"). Bare numbers are read as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if raw == Null {
		return nil
	}
	if str := unquote(raw); str != raw {
		val, err := time.ParseDuration(str)
		if err != nil {
			return err
		}
		*d = Duration(val)
		return nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*d = Duration(val)
	return nil
}

func unquote(str string) string {
	if len(str) >= 2 {
		if lastIndex := len(str) - 1; str[0] == '"' && str[lastIndex] == '"' {
			return str[1:lastIndex]
		}
	}
	return str
}
