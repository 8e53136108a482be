// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the futarchy VM.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	futjson "github.com/luxfi/futarchy/utils/json"
	"github.com/luxfi/futarchy/utils/units"
)

// MaxTradingPeriod caps how long any market may trade.
const MaxTradingPeriod = 30 * 24 * time.Hour

var (
	ErrOutcomeBounds       = errors.New("invalid outcome bounds")
	ErrTradingPeriod       = errors.New("invalid trading period")
	ErrReviewPeriod        = errors.New("invalid review period")
	ErrFeeBps              = errors.New("fee must be below 10000 bps")
	ErrToleranceBps        = errors.New("tolerance must not exceed 10000 bps")
	ErrThresholdBps        = errors.New("threshold must exceed -10000 bps")
	ErrSponsoredThreshold  = errors.New("sponsored threshold must not exceed the default threshold")
	ErrEarlyResolution     = errors.New("invalid early resolution settings")
	ErrBootstrapLiquidity  = errors.New("bootstrap liquidity must be positive")
	ErrRecordCacheSize     = errors.New("record cache size must be positive")
	ErrSponsorsWithoutFlag = errors.New("sponsors listed but sponsorship disabled")
)

// EarlyResolution gates ending trading before the trading period expires.
type EarlyResolution struct {
	Enabled bool `json:"enabled"`
	// MinTradingDuration is how long a market must trade before it may end
	// early.
	MinTradingDuration futjson.Duration `json:"minTradingDuration"`
	// MinTimeSinceFlip is how long the leader must have held.
	MinTimeSinceFlip futjson.Duration `json:"minTimeSinceFlip"`
	// FlipWindow and MaxFlipsInWindow bound how often the leader may have
	// changed recently.
	FlipWindow       futjson.Duration `json:"flipWindow"`
	MaxFlipsInWindow int              `json:"maxFlipsInWindow"`
	// MinSpreadBps is the lead the winner must hold over the runner-up,
	// relative to the winner's price.
	MinSpreadBps uint64 `json:"minSpreadBps"`
}

// Config contains configuration parameters for the futarchy VM.
type Config struct {
	// Proposal limits
	MinOutcomes int            `json:"minOutcomes"`
	MaxOutcomes int            `json:"maxOutcomes"`
	ProposalFee futjson.Uint64 `json:"proposalFee"`

	// Periods
	ReviewPeriod  futjson.Duration `json:"reviewPeriod"`
	TradingPeriod futjson.Duration `json:"tradingPeriod"`

	// AMM configuration
	AMMFeeBps             uint16         `json:"ammFeeBps"`
	MinBootstrapAsset     futjson.Uint64 `json:"minBootstrapAsset"`
	MinBootstrapStable    futjson.Uint64 `json:"minBootstrapStable"`
	BootstrapToleranceBps uint64         `json:"bootstrapToleranceBps"`
	TWAPStepMaxBps        uint64         `json:"twapStepMaxBps"`

	// Resolution
	TWAPThresholdBps      int64         `json:"twapThresholdBps"`
	SponsoredThresholdBps int64         `json:"sponsoredThresholdBps"`
	SponsorshipEnabled    bool          `json:"sponsorshipEnabled"`
	Sponsors              []ids.ShortID `json:"sponsors"`

	EarlyResolution EarlyResolution `json:"earlyResolution"`

	// RecordCacheSize is the number of decoded state records kept in memory
	RecordCacheSize int `json:"recordCacheSize"`
}

// DefaultConfig returns the default configuration for the futarchy VM.
func DefaultConfig() Config {
	return Config{
		MinOutcomes: 2,
		MaxOutcomes: 10,
		ProposalFee: futjson.Uint64(units.MilliLux),

		ReviewPeriod:  futjson.Duration(24 * time.Hour),
		TradingPeriod: futjson.Duration(72 * time.Hour),

		AMMFeeBps:             30, // 0.3%
		MinBootstrapAsset:     futjson.Uint64(units.MilliLux),
		MinBootstrapStable:    futjson.Uint64(units.MilliLux),
		BootstrapToleranceBps: 100, // 1%
		TWAPStepMaxBps:        300, // 3%

		TWAPThresholdBps:      0,
		SponsoredThresholdBps: -500,
		SponsorshipEnabled:    false,

		EarlyResolution: EarlyResolution{
			Enabled:            false,
			MinTradingDuration: futjson.Duration(24 * time.Hour),
			MinTimeSinceFlip:   futjson.Duration(12 * time.Hour),
			FlipWindow:         futjson.Duration(24 * time.Hour),
			MaxFlipsInWindow:   3,
			MinSpreadBps:       500,
		},

		RecordCacheSize: 1024,
	}
}

// Parse reads a JSON config on top of the defaults and verifies it. Empty
// input yields the defaults.
func Parse(b []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(b) > 0 {
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.Verify(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Verify checks that the configuration is internally consistent.
func (c *Config) Verify() error {
	switch {
	case c.MinOutcomes < 2 || c.MaxOutcomes < c.MinOutcomes:
		return fmt.Errorf("%w: min %d, max %d", ErrOutcomeBounds, c.MinOutcomes, c.MaxOutcomes)
	case c.TradingPeriod <= 0 || time.Duration(c.TradingPeriod) > MaxTradingPeriod:
		return fmt.Errorf("%w: %s", ErrTradingPeriod, time.Duration(c.TradingPeriod))
	case c.ReviewPeriod < 0:
		return fmt.Errorf("%w: %s", ErrReviewPeriod, time.Duration(c.ReviewPeriod))
	case c.AMMFeeBps >= 10_000:
		return fmt.Errorf("%w: %d", ErrFeeBps, c.AMMFeeBps)
	case c.MinBootstrapAsset == 0 || c.MinBootstrapStable == 0:
		return ErrBootstrapLiquidity
	case c.BootstrapToleranceBps > 10_000:
		return fmt.Errorf("%w: %d", ErrToleranceBps, c.BootstrapToleranceBps)
	case c.TWAPThresholdBps <= -10_000 || c.SponsoredThresholdBps <= -10_000:
		return fmt.Errorf("%w: %d/%d", ErrThresholdBps, c.TWAPThresholdBps, c.SponsoredThresholdBps)
	case c.SponsoredThresholdBps > c.TWAPThresholdBps:
		return fmt.Errorf("%w: %d > %d", ErrSponsoredThreshold, c.SponsoredThresholdBps, c.TWAPThresholdBps)
	case !c.SponsorshipEnabled && len(c.Sponsors) > 0:
		return ErrSponsorsWithoutFlag
	case c.RecordCacheSize <= 0:
		return fmt.Errorf("%w: %d", ErrRecordCacheSize, c.RecordCacheSize)
	}
	return c.EarlyResolution.Verify()
}

// Verify checks the early resolution settings. Disabled settings are not
// checked.
func (e *EarlyResolution) Verify() error {
	if !e.Enabled {
		return nil
	}
	switch {
	case e.MinTradingDuration < 0 || e.MinTimeSinceFlip < 0:
		return fmt.Errorf("%w: negative duration", ErrEarlyResolution)
	case e.FlipWindow <= 0:
		return fmt.Errorf("%w: flip window must be positive", ErrEarlyResolution)
	case e.MaxFlipsInWindow < 0:
		return fmt.Errorf("%w: negative flip limit", ErrEarlyResolution)
	case e.MinSpreadBps > 10_000:
		return fmt.Errorf("%w: spread %d bps", ErrEarlyResolution, e.MinSpreadBps)
	}
	return nil
}

// IsSponsor reports whether addr may sponsor proposals.
func (c *Config) IsSponsor(addr ids.ShortID) bool {
	return c.SponsorshipEnabled && set.Of(c.Sponsors...).Contains(addr)
}
