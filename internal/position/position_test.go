package position

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptive-trader/internal/regime"
	"adaptive-trader/internal/strategy"
	"adaptive-trader/pkg/types"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func basicProfile() strategy.RiskProfile {
	return strategy.RiskProfile{
		RiskPercentage:         2,
		TakeProfitPct:          2,
		StopLossPct:            1,
		MaxConcurrentPositions: 1,
	}
}

func trailingProfile() strategy.RiskProfile {
	return strategy.RiskProfile{
		RiskPercentage:         2,
		TakeProfitPct:          10,
		StopLossPct:            5,
		TrailingStop:           true,
		TrailingActivationPct:  2,
		TrailingCallbackPct:    0.5,
		MaxConcurrentPositions: 1,
	}
}

func ladderProfile() strategy.RiskProfile {
	return strategy.RiskProfile{
		RiskPercentage:         2,
		StopLossPct:            1,
		MaxConcurrentPositions: 1,
		TakeProfitLadder: []strategy.LadderRung{
			{TriggerPct: 1, Portion: 0.5},
			{TriggerPct: 2, Portion: 0.5},
		},
	}
}

func openLong(t *testing.T, entry, qty, leverage float64, profile strategy.RiskProfile) *Position {
	t.Helper()
	p, err := Open("BTCUSDT", types.SideBuy, regime.TrendingUp, entry, qty, leverage, profile, baseTime, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestOpen_SetsTargetsBySide(t *testing.T) {
	long := openLong(t, 100, 1, 1, basicProfile())
	assert.InDelta(t, 102.0, long.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 99.0, long.StopLossPrice, 1e-9)
	assert.Equal(t, StatusOpen, long.Status)
	assert.Equal(t, 100.0, long.HighestPrice)
	assert.Equal(t, 100.0, long.LowestPrice)

	short, err := Open("BTCUSDT", types.SideSell, regime.TrendingDown, 100, 1, 1, basicProfile(), baseTime, zerolog.Nop())
	require.NoError(t, err)
	assert.InDelta(t, 98.0, short.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 101.0, short.StopLossPrice, 1e-9)
}

func TestOpen_RejectsInvalidProfile(t *testing.T) {
	profile := basicProfile()
	profile.StopLossPct = 0

	_, err := Open("BTCUSDT", types.SideBuy, regime.Ranging, 100, 1, 1, profile, baseTime, zerolog.Nop())
	assert.ErrorIs(t, err, strategy.ErrInvalidRiskProfile)
}

func TestOpen_RejectsNonPositiveEntryAndQuantity(t *testing.T) {
	_, err := Open("BTCUSDT", types.SideBuy, regime.Ranging, 0, 1, 1, basicProfile(), baseTime, zerolog.Nop())
	assert.Error(t, err)

	_, err = Open("BTCUSDT", types.SideBuy, regime.Ranging, 100, 0, 1, basicProfile(), baseTime, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpen_FloorsLeverageAtOne(t *testing.T) {
	p := openLong(t, 100, 1, 0, basicProfile())
	assert.Equal(t, 1.0, p.Leverage)
}

func TestPosition_Update_StopLoss(t *testing.T) {
	p := openLong(t, 100, 2, 3, basicProfile())

	trades := p.Update(101, baseTime.Add(time.Minute))
	assert.Empty(t, trades)
	assert.True(t, p.IsOpen())

	trades = p.Update(99, baseTime.Add(2*time.Minute))
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, ReasonStopLoss, trade.Reason)
	assert.InDelta(t, 99.0, trade.ExitPrice, 1e-9)
	// 1% adverse move at 3x leverage.
	assert.InDelta(t, -3.0, trade.PnLPct, 1e-9)
	assert.InDelta(t, -3.0*100*2/100, trade.PnL, 1e-9)

	assert.False(t, p.IsOpen())
	assert.InDelta(t, -3.0, p.PnLPct, 1e-9)
	assert.Equal(t, ReasonStopLoss, p.ExitReason)
}

func TestPosition_Update_TakeProfit(t *testing.T) {
	p := openLong(t, 100, 1, 1, basicProfile())

	trades := p.Update(102.5, baseTime.Add(time.Minute))
	require.Len(t, trades, 1)

	// Fill is recorded at the target, not the traded-through price.
	assert.Equal(t, ReasonTakeProfit, trades[0].Reason)
	assert.InDelta(t, 102.0, trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 2.0, trades[0].PnLPct, 1e-9)
}

func TestPosition_Update_ShortTakeProfit(t *testing.T) {
	p, err := Open("ETHUSDT", types.SideSell, regime.TrendingDown, 100, 1, 2, basicProfile(), baseTime, zerolog.Nop())
	require.NoError(t, err)

	trades := p.Update(98, baseTime.Add(time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonTakeProfit, trades[0].Reason)
	assert.InDelta(t, 4.0, trades[0].PnLPct, 1e-9, "2%% favorable move at 2x")
}

func TestPosition_Update_TrailingStop(t *testing.T) {
	p := openLong(t, 100, 1, 1, trailingProfile())

	// Below the 2% activation threshold: stop stays unarmed.
	trades := p.Update(101, baseTime.Add(time.Minute))
	assert.Empty(t, trades)
	assert.Zero(t, p.TrailingStopPrice)

	// 102 clears activation; the stop arms at 102*(1-0.005).
	trades = p.Update(102, baseTime.Add(2*time.Minute))
	assert.Empty(t, trades)
	assert.InDelta(t, 101.49, p.TrailingStopPrice, 1e-9)

	// Pullback through the armed level closes at the level itself.
	trades = p.Update(101.4, baseTime.Add(3*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonTrailingStop, trades[0].Reason)
	assert.InDelta(t, 101.49, trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 1.49, trades[0].PnLPct, 1e-6)
}

func TestPosition_Update_TrailingRatchetsOnly(t *testing.T) {
	p := openLong(t, 100, 1, 1, trailingProfile())

	p.Update(105, baseTime.Add(time.Minute))
	armed := p.TrailingStopPrice
	assert.InDelta(t, 105*0.995, armed, 1e-9)

	// A lower high above the stop must not loosen it.
	p.Update(104.6, baseTime.Add(2*time.Minute))
	assert.Equal(t, armed, p.TrailingStopPrice)
	assert.Equal(t, 105.0, p.HighestPrice, "extremum never regresses")

	// A new high tightens it.
	p.Update(106, baseTime.Add(3*time.Minute))
	assert.InDelta(t, 106*0.995, p.TrailingStopPrice, 1e-9)
}

func TestPosition_Update_ShortTrailingStop(t *testing.T) {
	p, err := Open("BTCUSDT", types.SideSell, regime.TrendingDown, 100, 1, 1, trailingProfile(), baseTime, zerolog.Nop())
	require.NoError(t, err)

	p.Update(97, baseTime.Add(time.Minute))
	assert.InDelta(t, 97*1.005, p.TrailingStopPrice, 1e-9)

	trades := p.Update(97.6, baseTime.Add(2*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonTrailingStop, trades[0].Reason)
	assert.InDelta(t, 97*1.005, trades[0].ExitPrice, 1e-9)
	assert.Greater(t, trades[0].PnLPct, 0.0)
}

func TestPosition_Update_Ladder(t *testing.T) {
	p := openLong(t, 100, 1, 1, ladderProfile())
	assert.Zero(t, p.TakeProfitPrice, "ladder replaces the single target")

	// First rung: half of the open size at +1%, stop moves to break-even.
	trades := p.Update(101, baseTime.Add(time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonPartialTP, trades[0].Reason)
	assert.InDelta(t, 101.0, trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 0.5, trades[0].Quantity, 1e-9)
	assert.InDelta(t, 0.5, p.Remaining, 1e-9)
	assert.InDelta(t, 100.0, p.StopLossPrice, 1e-9)
	assert.True(t, p.IsOpen())

	// Second rung: half of what remains at +2%.
	trades = p.Update(102, baseTime.Add(2*time.Minute))
	require.Len(t, trades, 1)
	assert.InDelta(t, 0.25, trades[0].Quantity, 1e-9)
	assert.InDelta(t, 0.25, p.Remaining, 1e-9)
	assert.True(t, p.IsOpen())

	// Break-even stop closes the tail with zero further PnL.
	trades = p.Update(100, baseTime.Add(3*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonStopLoss, trades[0].Reason)
	assert.InDelta(t, 0.25, trades[0].Quantity, 1e-9)
	assert.InDelta(t, 0.0, trades[0].PnL, 1e-9)

	assert.False(t, p.IsOpen())
	// 0.5 qty at +1% plus 0.25 qty at +2%, on entry 100.
	assert.InDelta(t, 1.0, p.PnL, 1e-9)
	assert.InDelta(t, 1.0, p.PnLPct, 1e-9)
}

func TestPosition_Update_LadderGapFiresMultipleRungs(t *testing.T) {
	p := openLong(t, 100, 1, 1, ladderProfile())

	// A gap through both triggers fills both rungs, each at its own price.
	trades := p.Update(103, baseTime.Add(time.Minute))
	require.Len(t, trades, 2)
	assert.InDelta(t, 101.0, trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 102.0, trades[1].ExitPrice, 1e-9)
	assert.InDelta(t, 0.25, p.Remaining, 1e-9)
	assert.True(t, p.IsOpen())
}

func TestPosition_Update_LadderFullPortionClosesPosition(t *testing.T) {
	profile := ladderProfile()
	profile.TakeProfitLadder = []strategy.LadderRung{
		{TriggerPct: 1, Portion: 0.5},
		{TriggerPct: 2, Portion: 1.0},
	}
	p := openLong(t, 100, 1, 1, profile)

	p.Update(101, baseTime.Add(time.Minute))
	trades := p.Update(102, baseTime.Add(2*time.Minute))

	require.Len(t, trades, 1)
	assert.False(t, p.IsOpen())
	assert.Equal(t, ReasonPartialTP, p.ExitReason)
	assert.Zero(t, p.Remaining)
}

func TestPosition_Close_Idempotent(t *testing.T) {
	p := openLong(t, 100, 1, 1, basicProfile())

	first, err := p.Close(101, ReasonEndOfData, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, first.PnLPct, 1e-9)

	recordedPnL := p.PnL
	_, err = p.Close(90, ReasonStopLoss, baseTime.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrDoubleClose)

	// The failed second close leaves every recorded field alone.
	assert.Equal(t, recordedPnL, p.PnL)
	assert.Equal(t, ReasonEndOfData, p.ExitReason)
	assert.InDelta(t, 101.0, p.ExitPrice, 1e-9)
}

func TestPosition_Update_AfterCloseIsNoop(t *testing.T) {
	p := openLong(t, 100, 1, 1, basicProfile())
	_, err := p.Close(101, ReasonEndOfData, baseTime.Add(time.Minute))
	require.NoError(t, err)

	trades := p.Update(50, baseTime.Add(2*time.Minute))
	assert.Empty(t, trades)
	assert.Equal(t, ReasonEndOfData, p.ExitReason)
}

func TestPosition_Update_IgnoresNonPositivePrice(t *testing.T) {
	p := openLong(t, 100, 1, 1, basicProfile())

	trades := p.Update(0, baseTime.Add(time.Minute))
	assert.Empty(t, trades)
	assert.True(t, p.IsOpen())
	assert.Equal(t, 100.0, p.LowestPrice)
}

func TestPosition_JSONRoundTrip_PreservesLifecycle(t *testing.T) {
	p := openLong(t, 100, 1, 1, trailingProfile())
	p.Update(102, baseTime.Add(time.Minute))
	require.InDelta(t, 101.49, p.TrailingStopPrice, 1e-9)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var restored Position
	require.NoError(t, json.Unmarshal(raw, &restored))
	restored.SetLogger(zerolog.Nop())

	// The restored position exits exactly where the original would.
	trades := restored.Update(101.4, baseTime.Add(2*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonTrailingStop, trades[0].Reason)
	assert.InDelta(t, 101.49, trades[0].ExitPrice, 1e-9)
}
