package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trader/internal/regime"
	"adaptive-trader/internal/strategy"
	"adaptive-trader/pkg/types"
)

// ErrDoubleClose marks a close call on an already-closed position. The call
// is a no-op; recorded PnL and the ledger are unaffected.
var ErrDoubleClose = errors.New("position already closed")

// Exit reasons recorded on close. Exactly one reason per close.
const (
	ReasonTrailingStop = "trailing_stop"
	ReasonTakeProfit   = "take_profit"
	ReasonPartialTP    = "partial_take_profit"
	ReasonStopLoss     = "stop_loss"
	ReasonEndOfData    = "end_of_data"
)

// Status of a position. CLOSED is terminal.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
)

func (s Status) String() string {
	if s == StatusClosed {
		return "CLOSED"
	}
	return "OPEN"
}

// Trade is one realized exit, full or partial. Trades are appended to the
// caller's ledger and never mutated afterwards.
type Trade struct {
	Symbol     string       `json:"symbol"`
	Side       types.Side   `json:"side"`
	Regime     regime.Label `json:"regime"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	Quantity   float64      `json:"quantity"`
	Leverage   float64      `json:"leverage"`
	PnL        float64      `json:"pnl"`
	PnLPct     float64      `json:"pnl_pct"`
	Reason     string       `json:"reason"`
	EntryTime  time.Time    `json:"entry_time"`
	ExitTime   time.Time    `json:"exit_time"`
}

// Position is one open trade under a risk-profile snapshot. It is owned
// exclusively by the lifecycle manager that created it until closed.
type Position struct {
	Symbol    string               `json:"symbol"`
	Side      types.Side           `json:"side"`
	Regime    regime.Label         `json:"regime"`
	Entry     float64              `json:"entry_price"`
	Quantity  float64              `json:"quantity"`
	Remaining float64              `json:"remaining_quantity"`
	Leverage  float64              `json:"leverage"`
	EntryTime time.Time            `json:"entry_time"`
	Profile   strategy.RiskProfile `json:"risk_profile"`

	TakeProfitPrice   float64 `json:"take_profit_price"`
	StopLossPrice     float64 `json:"stop_loss_price"`
	TrailingStopPrice float64 `json:"trailing_stop_price"` // zero until armed
	HighestPrice      float64 `json:"highest_price"`
	LowestPrice       float64 `json:"lowest_price"`
	RungsFilled       int     `json:"rungs_filled"`

	Status     Status    `json:"status"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	PnLPct     float64   `json:"pnl_pct,omitempty"`

	log zerolog.Logger
}

// remainderEpsilon treats a ladder remainder below this share of the original
// quantity as exhausted.
const remainderEpsilon = 1e-9

// Open creates a position under a validated risk-profile snapshot.
func Open(symbol string, side types.Side, label regime.Label, entry, quantity, leverage float64, profile strategy.RiskProfile, entryTime time.Time, log zerolog.Logger) (*Position, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if entry <= 0 {
		return nil, fmt.Errorf("%w: entry price %.4f must be positive", strategy.ErrInvalidRiskProfile, entry)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %.8f must be positive", strategy.ErrInvalidRiskProfile, quantity)
	}
	if leverage < 1 {
		leverage = 1
	}

	p := &Position{
		Symbol:       symbol,
		Side:         side,
		Regime:       label,
		Entry:        entry,
		Quantity:     quantity,
		Remaining:    quantity,
		Leverage:     leverage,
		EntryTime:    entryTime,
		Profile:      profile,
		HighestPrice: entry,
		LowestPrice:  entry,
		Status:       StatusOpen,
		log:          log.With().Str("component", "position").Str("symbol", symbol).Logger(),
	}

	if side == types.SideBuy {
		p.TakeProfitPrice = entry * (1 + profile.TakeProfitPct/100)
		p.StopLossPrice = entry * (1 - profile.StopLossPct/100)
	} else {
		p.TakeProfitPrice = entry * (1 - profile.TakeProfitPct/100)
		p.StopLossPrice = entry * (1 + profile.StopLossPct/100)
	}
	if len(profile.TakeProfitLadder) > 0 {
		// Ladder replaces the single target.
		p.TakeProfitPrice = 0
	}

	return p, nil
}

// SetLogger re-attaches a logger, e.g. after reconstructing a snapshot.
func (p *Position) SetLogger(log zerolog.Logger) {
	p.log = log.With().Str("component", "position").Str("symbol", p.Symbol).Logger()
}

// IsOpen reports whether the position still holds size.
func (p *Position) IsOpen() bool { return p.Status == StatusOpen }

// Update advances the lifecycle by one tick. It updates the price extrema,
// arms and ratchets the trailing stop, and evaluates the exit rules in strict
// priority order: trailing stop, then take-profit, then stop-loss. Returned
// trades are the exits realized this tick, in fill order.
func (p *Position) Update(price float64, now time.Time) []Trade {
	if p.Status == StatusClosed || price <= 0 {
		return nil
	}

	p.updateExtrema(price)
	p.updateTrailing()

	// Trailing stop first: a hit implies the position was already favorable,
	// so it outranks a simultaneous take-profit touch.
	if p.trailingHit(price) {
		trade := p.close(p.TrailingStopPrice, ReasonTrailingStop, now)
		return appendTrade(nil, trade)
	}

	if len(p.Profile.TakeProfitLadder) > 0 {
		return p.updateLadder(price, now)
	}

	if p.takeProfitHit(price) {
		trade := p.close(p.TakeProfitPrice, ReasonTakeProfit, now)
		return appendTrade(nil, trade)
	}
	if p.stopLossHit(price) {
		trade := p.close(p.StopLossPrice, ReasonStopLoss, now)
		return appendTrade(nil, trade)
	}
	return nil
}

// Close closes the full remaining size at price. A second call is a warning
// and a no-op.
func (p *Position) Close(price float64, reason string, now time.Time) (Trade, error) {
	if p.Status == StatusClosed {
		p.log.Warn().Str("reason", reason).Msg("double close ignored")
		return Trade{}, ErrDoubleClose
	}
	return *p.close(price, reason, now), nil
}

// updateExtrema keeps the extrema monotone: the highest never regresses down
// and the lowest never regresses up.
func (p *Position) updateExtrema(price float64) {
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice {
		p.LowestPrice = price
	}
}

// updateTrailing arms the trailing stop once price clears the activation
// threshold and thereafter only ratchets it toward profit.
func (p *Position) updateTrailing() {
	if !p.Profile.TrailingStop {
		return
	}

	if p.Side == types.SideBuy {
		activation := p.Entry * (1 + p.Profile.TrailingActivationPct/100)
		if p.HighestPrice < activation {
			return
		}
		level := p.HighestPrice * (1 - p.Profile.TrailingCallbackPct/100)
		if level > p.TrailingStopPrice {
			p.TrailingStopPrice = level
		}
		return
	}

	activation := p.Entry * (1 - p.Profile.TrailingActivationPct/100)
	if p.LowestPrice > activation {
		return
	}
	level := p.LowestPrice * (1 + p.Profile.TrailingCallbackPct/100)
	if p.TrailingStopPrice == 0 || level < p.TrailingStopPrice {
		p.TrailingStopPrice = level
	}
}

func (p *Position) trailingHit(price float64) bool {
	if p.TrailingStopPrice == 0 {
		return false
	}
	if p.Side == types.SideBuy {
		return price <= p.TrailingStopPrice
	}
	return price >= p.TrailingStopPrice
}

func (p *Position) takeProfitHit(price float64) bool {
	if p.TakeProfitPrice == 0 {
		return false
	}
	if p.Side == types.SideBuy {
		return price >= p.TakeProfitPrice
	}
	return price <= p.TakeProfitPrice
}

func (p *Position) stopLossHit(price float64) bool {
	if p.Side == types.SideBuy {
		return price <= p.StopLossPrice
	}
	return price >= p.StopLossPrice
}

// updateLadder fires due rungs in order. Each rung closes a fixed share of
// the remaining size at its trigger price; the first fill moves the stop
// loss to break-even. Stop-loss still closes whatever remains.
func (p *Position) updateLadder(price float64, now time.Time) []Trade {
	var fills []Trade

	profit := p.profitPct(price)
	for p.RungsFilled < len(p.Profile.TakeProfitLadder) {
		rung := p.Profile.TakeProfitLadder[p.RungsFilled]
		if profit < rung.TriggerPct {
			break
		}

		fillPrice := p.rungPrice(rung.TriggerPct)
		qty := p.Remaining * rung.Portion
		p.Remaining -= qty
		p.RungsFilled++
		fills = append(fills, p.makeTrade(fillPrice, qty, ReasonPartialTP, now))

		if p.RungsFilled == 1 {
			p.StopLossPrice = p.Entry
		}

		if p.Remaining <= p.Quantity*remainderEpsilon {
			p.markClosed(fillPrice, ReasonPartialTP, now)
			return fills
		}
	}

	if p.stopLossHit(price) {
		trade := p.close(p.StopLossPrice, ReasonStopLoss, now)
		fills = appendTrade(fills, trade)
	}
	return fills
}

// profitPct is the favorable move from entry in percent, unleveraged.
func (p *Position) profitPct(price float64) float64 {
	if p.Side == types.SideBuy {
		return (price - p.Entry) / p.Entry * 100
	}
	return (p.Entry - price) / p.Entry * 100
}

func (p *Position) rungPrice(triggerPct float64) float64 {
	if p.Side == types.SideBuy {
		return p.Entry * (1 + triggerPct/100)
	}
	return p.Entry * (1 - triggerPct/100)
}

// close realizes the remaining size and transitions to CLOSED.
func (p *Position) close(price float64, reason string, now time.Time) *Trade {
	trade := p.makeTrade(price, p.Remaining, reason, now)
	p.Remaining = 0
	p.markClosed(price, reason, now)
	return &trade
}

func (p *Position) markClosed(price float64, reason string, now time.Time) {
	p.Status = StatusClosed
	p.ExitPrice = price
	p.ExitReason = reason
	p.ExitTime = now
	// PnL accumulated per fill; the percent is over the full original size so
	// ladder exits report the blended return.
	p.PnLPct = p.PnL / (p.Entry * p.Quantity) * 100
	p.log.Info().
		Str("reason", reason).
		Float64("exit", price).
		Float64("pnl", p.PnL).
		Msg("position closed")
}

func (p *Position) makeTrade(price, quantity float64, reason string, now time.Time) Trade {
	pct := p.pnlPct(price)
	p.PnL += pct * p.Entry * quantity / 100
	return Trade{
		Symbol:     p.Symbol,
		Side:       p.Side,
		Regime:     p.Regime,
		EntryPrice: p.Entry,
		ExitPrice:  price,
		Quantity:   quantity,
		Leverage:   p.Leverage,
		PnLPct:     pct,
		PnL:        pct * p.Entry * quantity / 100,
		Reason:     reason,
		EntryTime:  p.EntryTime,
		ExitTime:   now,
	}
}

// pnlPct is the signed leveraged return in percent.
func (p *Position) pnlPct(exit float64) float64 {
	pct := (exit - p.Entry) / p.Entry * 100 * p.Leverage
	if p.Side == types.SideSell {
		pct = -pct
	}
	return pct
}

func appendTrade(fills []Trade, trade *Trade) []Trade {
	if trade == nil {
		return fills
	}
	return append(fills, *trade)
}
