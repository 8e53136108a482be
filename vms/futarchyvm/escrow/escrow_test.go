// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func newRegistered(t *testing.T, n int) *Escrow {
	t.Helper()
	require := require.New(t)

	market := ids.GenerateTestID()
	e, err := New(market, n)
	require.NoError(err)

	assets, stables := NewAuthorities(market, n)
	for i := 0; i < n; i++ {
		require.NoError(e.Register(i, assets[i], stables[i]))
	}
	return e
}

func split(t *testing.T, e *Escrow, side Side, amount uint64) []*Token {
	t.Helper()
	require := require.New(t)

	p, err := e.StartSplit(NewCoin(side, amount))
	require.NoError(err)
	tokens := make([]*Token, 0, e.OutcomeCount())
	for i := 0; i < e.OutcomeCount(); i++ {
		tok, err := e.SplitStep(p, i)
		require.NoError(err)
		tokens = append(tokens, tok)
	}
	require.NoError(e.FinishSplit(p))
	require.NoError(e.Discard(p))
	return tokens
}

func TestNewRejectsEmptyMarket(t *testing.T) {
	_, err := New(ids.GenerateTestID(), 0)
	require.ErrorIs(t, err, ErrInvalidOutcomeSize)
}

func TestRegisterOrder(t *testing.T) {
	require := require.New(t)

	market := ids.GenerateTestID()
	e, err := New(market, 3)
	require.NoError(err)
	assets, stables := NewAuthorities(market, 3)

	err = e.Register(1, assets[1], stables[1])
	require.ErrorIs(err, ErrOutOfOrder)

	err = e.Register(3, assets[0], stables[0])
	require.ErrorIs(err, ErrOutcomeOutOfRange)

	err = e.Register(0, assets[1], stables[1])
	require.ErrorIs(err, ErrAuthorityMismatch)

	err = e.Register(0, stables[0], assets[0])
	require.ErrorIs(err, ErrAuthorityMismatch)

	err = e.Register(0, assets[0], nil)
	require.ErrorIs(err, ErrAuthorityMissing)

	for i := 0; i < 3; i++ {
		require.NoError(e.Register(i, assets[i], stables[i]))
	}
	require.Equal(3, e.RegisteredCount())

	err = e.Register(2, assets[2], stables[2])
	require.ErrorIs(err, ErrAlreadyRegistered)
}

func TestRegisterRejectsForeignMarket(t *testing.T) {
	require := require.New(t)

	e, err := New(ids.GenerateTestID(), 2)
	require.NoError(err)
	assets, stables := NewAuthorities(ids.GenerateTestID(), 2)

	err = e.Register(0, assets[0], stables[0])
	require.ErrorIs(err, ErrAuthorityMismatch)
}

func TestRegisterRejectsSupplyBehindSpot(t *testing.T) {
	require := require.New(t)

	market := ids.GenerateTestID()
	e, err := New(market, 2)
	require.NoError(err)
	assets, stables := NewAuthorities(market, 2)
	require.NoError(e.Register(0, assets[0], stables[0]))

	// An authority that already minted outside the escrow is out of step
	// with the pooled spot.
	_, err = assets[1].Mint(10)
	require.NoError(err)

	err = e.Register(1, assets[1], stables[1])
	require.ErrorIs(err, ErrInvariantViolated)
	require.Equal(1, e.RegisteredCount())
}

func TestSpotFrozenUntilFullyRegistered(t *testing.T) {
	require := require.New(t)

	market := ids.GenerateTestID()
	e, err := New(market, 2)
	require.NoError(err)
	assets, stables := NewAuthorities(market, 2)
	require.NoError(e.Register(0, assets[0], stables[0]))

	coin := NewCoin(Asset, 10)
	_, err = e.DepositAndMint(0, coin)
	require.ErrorIs(err, ErrAuthorityMissing)
	_, err = e.StartSplit(coin)
	require.ErrorIs(err, ErrAuthorityMissing)
	require.False(coin.Spent())
	require.Equal(uint64(10), coin.Value())
	require.Zero(e.SpotBalance(Asset))

	require.NoError(e.Register(1, assets[1], stables[1]))
	_, err = e.DepositAndMint(0, coin)
	require.NoError(err)
}

func TestDepositAndMint(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	split(t, e, Stable, 100)

	coin := NewCoin(Stable, 30)
	token, err := e.DepositAndMint(1, coin)
	require.NoError(err)
	require.True(coin.Spent())
	require.Zero(coin.Value())
	require.Equal(1, token.Outcome())
	require.Equal(Stable, token.Side())
	require.Equal(uint64(30), token.Value())
	require.False(token.Bound())

	require.Equal(uint64(130), e.SpotBalance(Stable))
	supply, err := e.Supply(1, Stable)
	require.NoError(err)
	require.Equal(uint64(130), supply)
	supply, err = e.Supply(0, Stable)
	require.NoError(err)
	require.Equal(uint64(100), supply)
	require.ErrorIs(e.CheckQuantumInvariant(), ErrInvariantViolated)

	_, err = e.DepositAndMint(1, coin)
	require.ErrorIs(err, ErrSpent)
	_, err = e.DepositAndMint(1, NewCoin(Stable, 0))
	require.ErrorIs(err, ErrZeroAmount)
	_, err = e.DepositAndMint(2, NewCoin(Stable, 1))
	require.ErrorIs(err, ErrOutcomeOutOfRange)
}

func TestSplitRecombineRoundTrip(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tokens := split(t, e, Asset, 100)
	require.Len(tokens, 2)
	for i, tok := range tokens {
		require.Equal(i, tok.Outcome())
		require.Equal(uint64(100), tok.Value())
		supply, err := e.Supply(i, Asset)
		require.NoError(err)
		require.Equal(uint64(100), supply)
	}
	asset, stable := e.SpotBalances()
	require.Equal(uint64(100), asset)
	require.Zero(stable)
	require.NoError(e.CheckQuantumInvariant())

	p, err := e.StartRecombine(tokens[0])
	require.NoError(err)
	require.Equal(1, p.Next())
	require.NoError(e.RecombineStep(p, 1, tokens[1]))
	require.True(p.Complete())

	coin, err := e.FinishRecombine(p)
	require.NoError(err)
	require.Equal(Asset, coin.Side())
	require.Equal(uint64(100), coin.Value())
	require.NoError(e.Discard(p))

	require.Zero(e.SpotBalance(Asset))
	for i := 0; i < 2; i++ {
		supply, err := e.Supply(i, Asset)
		require.NoError(err)
		require.Zero(supply)
	}
	require.True(tokens[0].Spent())
	require.True(tokens[1].Spent())
	require.NoError(e.CheckQuantumInvariant())
}

func TestInvariantHoldsAcrossSides(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 4)
	split(t, e, Asset, 70)
	split(t, e, Stable, 30)
	split(t, e, Asset, 5)
	require.NoError(e.CheckQuantumInvariant())

	asset, stable := e.SpotBalances()
	require.Equal(uint64(75), asset)
	require.Equal(uint64(30), stable)
	for i := 0; i < 4; i++ {
		s, err := e.Supply(i, Stable)
		require.NoError(err)
		require.Equal(stable, s)
	}
}

func TestSplitSequencing(t *testing.T) {
	for n := 1; n <= 4; n++ {
		e := newRegistered(t, n)
		require := require.New(t)

		p, err := e.StartSplit(NewCoin(Stable, 9))
		require.NoError(err)
		require.ErrorIs(e.CheckQuantumInvariant(), ErrPendingOperation)

		if n > 1 {
			_, err = e.SplitStep(p, 1)
			require.ErrorIs(err, ErrOutOfOrder)
		}
		require.ErrorIs(e.FinishSplit(p), ErrIncomplete)
		require.ErrorIs(e.Discard(p), ErrIncomplete)

		for i := 0; i < n; i++ {
			_, err := e.SplitStep(p, i)
			require.NoError(err)
		}
		_, err = e.SplitStep(p, n)
		require.ErrorIs(err, ErrAlreadyComplete)

		require.NoError(e.FinishSplit(p))
		require.ErrorIs(e.FinishSplit(p), ErrFinished)
		_, err = e.SplitStep(p, 0)
		require.ErrorIs(err, ErrFinished)
		require.Zero(e.Pending())
		require.NoError(e.CheckQuantumInvariant())
	}
}

func TestRecombineSequencing(t *testing.T) {
	for n := 2; n <= 4; n++ {
		e := newRegistered(t, n)
		require := require.New(t)

		tokens := split(t, e, Asset, 40)

		_, err := e.StartRecombine(tokens[1])
		require.ErrorIs(err, ErrOutOfOrder)

		p, err := e.StartRecombine(tokens[0])
		require.NoError(err)

		if n > 2 {
			err = e.RecombineStep(p, 2, tokens[2])
			require.ErrorIs(err, ErrOutOfOrder)
		}
		err = e.RecombineStep(p, 1, tokens[n-1])
		if n > 2 {
			require.ErrorIs(err, ErrWrongOutcome)
		} else {
			require.NoError(err)
		}

		if n > 2 {
			_, err = e.FinishRecombine(p)
			require.ErrorIs(err, ErrIncomplete)
			for i := 1; i < n; i++ {
				require.NoError(e.RecombineStep(p, i, tokens[i]))
			}
		}

		coin, err := e.FinishRecombine(p)
		require.NoError(err)
		require.Equal(uint64(40), coin.Value())
		require.NoError(e.CheckQuantumInvariant())
	}
}

func TestRecombineRequiresMatchingAmounts(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tokens := split(t, e, Asset, 100)

	part, err := tokens[1].Split(40)
	require.NoError(err)

	p, err := e.StartRecombine(tokens[0])
	require.NoError(err)
	err = e.RecombineStep(p, 1, part)
	require.ErrorIs(err, ErrAmountMismatch)

	require.NoError(tokens[1].Join(part))
	require.NoError(e.RecombineStep(p, 1, tokens[1]))
	_, err = e.FinishRecombine(p)
	require.NoError(err)
}

func TestRecombineRejectsWrongSide(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	assets := split(t, e, Asset, 10)
	stables := split(t, e, Stable, 10)

	p, err := e.StartRecombine(assets[0])
	require.NoError(err)
	err = e.RecombineStep(p, 1, stables[1])
	require.ErrorIs(err, ErrTokenMismatch)
}

func TestPartialRecombine(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 3)
	tokens := split(t, e, Stable, 90)

	parts := make([]*Token, 3)
	for i, tok := range tokens {
		part, err := tok.Split(30)
		require.NoError(err)
		parts[i] = part
	}

	p, err := e.StartRecombine(parts[0])
	require.NoError(err)
	for i := 1; i < 3; i++ {
		require.NoError(e.RecombineStep(p, i, parts[i]))
	}
	coin, err := e.FinishRecombine(p)
	require.NoError(err)
	require.Equal(uint64(30), coin.Value())
	require.Equal(uint64(60), e.SpotBalance(Stable))
	require.NoError(e.CheckQuantumInvariant())
}

func TestSplitRequiresRegistration(t *testing.T) {
	require := require.New(t)

	e, err := New(ids.GenerateTestID(), 2)
	require.NoError(err)

	_, err = e.StartSplit(NewCoin(Asset, 10))
	require.ErrorIs(err, ErrAuthorityMissing)

	_, err = e.StartSplit(NewCoin(Asset, 0))
	require.ErrorIs(err, ErrZeroAmount)
}

func TestSpentCoinRejected(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	coin := NewCoin(Asset, 10)
	p, err := e.StartSplit(coin)
	require.NoError(err)
	require.True(coin.Spent())

	_, err = e.StartSplit(coin)
	require.ErrorIs(err, ErrSpent)

	for i := 0; i < 2; i++ {
		_, err := e.SplitStep(p, i)
		require.NoError(err)
	}
	require.NoError(e.FinishSplit(p))
}

func TestRollbackRevertsSplit(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 3)
	split(t, e, Asset, 50)

	require.NoError(e.Begin())
	require.ErrorIs(e.Begin(), ErrSessionActive)

	coin := NewCoin(Asset, 25)
	p, err := e.StartSplit(coin)
	require.NoError(err)
	tok, err := e.SplitStep(p, 0)
	require.NoError(err)
	require.Equal(1, e.Pending())

	require.NoError(e.Rollback())
	require.False(e.InSession())

	require.Zero(e.Pending())
	require.False(coin.Spent())
	require.Equal(uint64(25), coin.Value())
	require.True(tok.Spent())
	require.Equal(uint64(50), e.SpotBalance(Asset))
	require.NoError(e.CheckQuantumInvariant())

	require.ErrorIs(e.Rollback(), ErrNoSession)
	require.ErrorIs(e.Commit(), ErrNoSession)
}

func TestRollbackRevertsRecombine(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tokens := split(t, e, Stable, 80)

	require.NoError(e.Begin())
	p, err := e.StartRecombine(tokens[0])
	require.NoError(err)
	require.NoError(e.RecombineStep(p, 1, tokens[1]))
	coin, err := e.FinishRecombine(p)
	require.NoError(err)
	require.NoError(e.Rollback())

	require.True(coin.Spent())
	require.False(tokens[0].Spent())
	require.False(tokens[1].Spent())
	require.Equal(uint64(80), tokens[0].Value())
	require.Equal(uint64(80), e.SpotBalance(Stable))
	require.NoError(e.CheckQuantumInvariant())

	// The restored tokens are usable again.
	p, err = e.StartRecombine(tokens[0])
	require.NoError(err)
	require.NoError(e.RecombineStep(p, 1, tokens[1]))
	_, err = e.FinishRecombine(p)
	require.NoError(err)
	require.NoError(e.CheckQuantumInvariant())
}

func TestCommitKeepsChanges(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	require.NoError(e.Begin())
	tokens := split(t, e, Asset, 12)
	require.True(tokens[0].Bound())
	require.NoError(e.Commit())

	require.Equal(uint64(12), e.SpotBalance(Asset))
	require.NoError(e.CheckQuantumInvariant())

	for _, tok := range tokens {
		require.False(tok.Bound())
	}
	part, err := tokens[0].Split(5)
	require.NoError(err)
	require.NoError(tokens[0].Join(part))
	require.Equal(uint64(12), tokens[0].Value())
}

func TestSessionTokensCannotBeDivided(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	held := split(t, e, Asset, 30)

	require.NoError(e.Begin())
	p, err := e.StartSplit(NewCoin(Asset, 100))
	require.NoError(err)
	minted, err := e.SplitStep(p, 0)
	require.NoError(err)
	require.True(minted.Bound())

	_, err = minted.Split(40)
	require.ErrorIs(err, ErrSessionBound)
	require.ErrorIs(held[0].Join(minted), ErrSessionBound)
	require.ErrorIs(minted.Join(held[0]), ErrSessionBound)
	require.Equal(uint64(100), minted.Value())
	require.Equal(uint64(30), held[0].Value())

	require.NoError(e.Rollback())
	require.True(minted.Spent())
	require.Zero(minted.Value())
	require.False(held[0].Bound())

	supply, err := e.Supply(0, Asset)
	require.NoError(err)
	require.Equal(uint64(30), supply)
	require.Equal(uint64(30), e.SpotBalance(Asset))
	require.NoError(e.CheckQuantumInvariant())
}

func TestSessionCoinsCannotBeDivided(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tokens := split(t, e, Stable, 100)

	require.NoError(e.Begin())
	p, err := e.StartRecombine(tokens[0])
	require.NoError(err)
	require.NoError(e.RecombineStep(p, 1, tokens[1]))
	coin, err := e.FinishRecombine(p)
	require.NoError(err)
	require.True(coin.Bound())

	_, err = coin.Split(100)
	require.ErrorIs(err, ErrSessionBound)
	require.ErrorIs(NewCoin(Stable, 1).Join(coin), ErrSessionBound)

	require.NoError(e.Rollback())
	require.True(coin.Spent())
	require.Zero(coin.Value())
	require.Equal(uint64(100), tokens[0].Value())
	require.Equal(uint64(100), tokens[1].Value())
	require.Equal(uint64(100), e.SpotBalance(Stable))
	require.NoError(e.CheckQuantumInvariant())
}

func TestSessionCoinCanBeDepositedBack(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tokens := split(t, e, Asset, 40)

	require.NoError(e.Begin())
	p, err := e.StartRecombine(tokens[0])
	require.NoError(err)
	require.NoError(e.RecombineStep(p, 1, tokens[1]))
	coin, err := e.FinishRecombine(p)
	require.NoError(err)
	require.NoError(e.Discard(p))

	sp, err := e.StartSplit(coin)
	require.NoError(err)
	require.True(coin.Spent())
	again := make([]*Token, 2)
	for i := range again {
		again[i], err = e.SplitStep(sp, i)
		require.NoError(err)
	}
	require.NoError(e.FinishSplit(sp))
	require.NoError(e.Commit())

	require.False(again[0].Bound())
	require.Equal(uint64(40), again[1].Value())
	require.Equal(uint64(40), e.SpotBalance(Asset))
	require.NoError(e.CheckQuantumInvariant())
}

func TestResolveAndRedeem(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 3)
	tokens := split(t, e, Asset, 60)

	_, err := e.RedeemWinning(tokens[2])
	require.ErrorIs(err, ErrNotResolved)

	require.ErrorIs(e.Resolve(3), ErrOutcomeOutOfRange)
	require.NoError(e.Resolve(2))
	require.ErrorIs(e.Resolve(1), ErrAlreadyResolved)

	winner, ok := e.Winner()
	require.True(ok)
	require.Equal(2, winner)

	_, err = e.RedeemWinning(tokens[0])
	require.ErrorIs(err, ErrLosingOutcome)

	_, err = e.StartSplit(NewCoin(Asset, 1))
	require.ErrorIs(err, ErrResolved)

	coin, err := e.RedeemWinning(tokens[2])
	require.NoError(err)
	require.Equal(uint64(60), coin.Value())
	require.Zero(e.SpotBalance(Asset))
	require.NoError(e.CheckQuantumInvariant())
}

func TestResolveBlockedByPendingSplit(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	p, err := e.StartSplit(NewCoin(Asset, 5))
	require.NoError(err)

	require.ErrorIs(e.Resolve(0), ErrPendingOperation)

	for i := 0; i < 2; i++ {
		_, err := e.SplitStep(p, i)
		require.NoError(err)
	}
	require.NoError(e.FinishSplit(p))
	require.NoError(e.Resolve(0))
}

func TestMintAndBurnConditional(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tok, err := e.MintConditional(1, Stable, 7)
	require.NoError(err)
	require.ErrorIs(e.CheckQuantumInvariant(), ErrInvariantViolated)

	_, err = e.BurnConditional(0, Stable, tok)
	require.ErrorIs(err, ErrWrongOutcome)

	v, err := e.BurnConditional(1, Stable, tok)
	require.NoError(err)
	require.Equal(uint64(7), v)
	require.NoError(e.CheckQuantumInvariant())

	_, err = e.MintConditional(0, Side(9), 1)
	require.ErrorIs(err, ErrInvalidSide)
	_, err = e.MintConditional(2, Asset, 1)
	require.ErrorIs(err, ErrOutcomeOutOfRange)
}

func TestTokenSplitJoin(t *testing.T) {
	require := require.New(t)

	e := newRegistered(t, 2)
	tokens := split(t, e, Asset, 10)

	part, err := tokens[0].Split(4)
	require.NoError(err)
	require.Equal(uint64(6), tokens[0].Value())

	require.ErrorIs(tokens[0].Join(tokens[0]), ErrSelfJoin)
	require.ErrorIs(tokens[0].Join(tokens[1]), ErrTokenMismatch)

	require.NoError(tokens[0].Join(part))
	require.Equal(uint64(10), tokens[0].Value())
	require.True(part.Spent())

	_, err = tokens[0].Split(11)
	require.ErrorIs(err, ErrInsufficientBalance)
}
