package game

import (
	"fmt"
	"math"
	mathrand "math/rand"
	"strings"
)

type EventType string

const (
	EventIncomeOpportunity EventType = "income_opportunity"
	EventUnexpectedExpense EventType = "unexpected_expense"
	EventMarketShift       EventType = "market_shift"
	EventWindfall          EventType = "windfall"
	EventOther             EventType = "other"
)

// EventPayload carries the type-specific parameters of a market event. Only
// the fields relevant to the event type are consulted; the payload is stored
// verbatim on the event row so replay sees exactly what was applied.
type EventPayload struct {
	// Fixed amount for unexpected_expense, windfall, and other. For
	// "other" the amount is signed; elsewhere it must be >= 0.
	AmountCents int64 `json:"amount_cents,omitempty"`
	// Percentage-of-cash alternative for unexpected_expense, in bps of the
	// player's current cash. Ignored when AmountCents is set.
	PercentOfCashBps int32 `json:"percent_of_cash_bps,omitempty"`
	// Draw an unexpected_expense from savings first, remainder from cash.
	FromSavings bool `json:"from_savings,omitempty"`
	// Target liability for market_shift.
	LiabilityName string `json:"liability_name,omitempty"`
	// Principal adjustment for market_shift, in signed bps.
	ValueShiftBps int32 `json:"value_shift_bps,omitempty"`
	// Recurring income added by income_opportunity.
	PassiveIncomeCents int64 `json:"passive_income_cents,omitempty"`
	// Upfront cost of an income_opportunity, taken from cash.
	UpfrontCostCents int64 `json:"upfront_cost_cents,omitempty"`
	// Free-text label, e.g. the headline shown to the player.
	Label string `json:"label,omitempty"`
}

func ParseEventType(s string) (EventType, error) {
	switch EventType(strings.ToLower(strings.TrimSpace(s))) {
	case EventIncomeOpportunity:
		return EventIncomeOpportunity, nil
	case EventUnexpectedExpense:
		return EventUnexpectedExpense, nil
	case EventMarketShift:
		return EventMarketShift, nil
	case EventWindfall:
		return EventWindfall, nil
	case EventOther:
		return EventOther, nil
	}
	return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, s)
}

func ValidatePayload(t EventType, p EventPayload) error {
	switch t {
	case EventUnexpectedExpense:
		if p.AmountCents < 0 || p.PercentOfCashBps < 0 || p.PercentOfCashBps > 10_000 {
			return fmt.Errorf("%w: expense amount must be >= 0 and percent within [0,10000] bps", ErrInvalidEvent)
		}
		if p.AmountCents == 0 && p.PercentOfCashBps == 0 {
			return fmt.Errorf("%w: expense needs an amount or a percent of cash", ErrInvalidEvent)
		}
	case EventWindfall:
		if p.AmountCents <= 0 {
			return fmt.Errorf("%w: windfall amount must be > 0", ErrInvalidEvent)
		}
	case EventMarketShift:
		if strings.TrimSpace(p.LiabilityName) == "" || p.ValueShiftBps == 0 {
			return fmt.Errorf("%w: market shift needs a liability name and a non-zero shift", ErrInvalidEvent)
		}
	case EventIncomeOpportunity:
		if p.PassiveIncomeCents <= 0 || p.UpfrontCostCents < 0 {
			return fmt.Errorf("%w: opportunity needs positive recurring income and a non-negative cost", ErrInvalidEvent)
		}
	case EventOther:
		if p.AmountCents == 0 {
			return fmt.Errorf("%w: amount is required", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, t)
	}
	return nil
}

// ApplyEventState folds one event into a player state. It is the only place
// event semantics live: the service persists what this returns, and replay
// calls it again over the recorded log. Savings never go negative; the
// unmet part of a savings draw falls through to cash, which may.
func ApplyEventState(st PlayerState, t EventType, p EventPayload) (PlayerState, error) {
	if err := ValidatePayload(t, p); err != nil {
		return st, err
	}
	st.Liabilities = cloneLiabilities(st.Liabilities)

	switch t {
	case EventUnexpectedExpense:
		amount := p.AmountCents
		if amount == 0 {
			cash := st.CashCents
			if cash < 0 {
				cash = 0
			}
			amount = (cash*int64(p.PercentOfCashBps) + BpsScale/2) / BpsScale
		}
		if p.FromSavings {
			fromSavings := amount
			if fromSavings > st.SavingsCents {
				fromSavings = st.SavingsCents
			}
			st.SavingsCents -= fromSavings
			amount -= fromSavings
		}
		st.CashCents -= amount

	case EventWindfall:
		st.CashCents += p.AmountCents

	case EventMarketShift:
		for i := range st.Liabilities {
			if st.Liabilities[i].Name != p.LiabilityName {
				continue
			}
			principal := st.Liabilities[i].PrincipalCents
			shift := int64(math.Round(float64(principal) * float64(p.ValueShiftBps) / float64(BpsScale)))
			principal += shift
			if principal < 0 {
				principal = 0
			}
			st.Liabilities[i].PrincipalCents = principal
		}

	case EventIncomeOpportunity:
		st.CashCents -= p.UpfrontCostCents
		st.PassiveIncomeCents += p.PassiveIncomeCents

	case EventOther:
		st.CashCents += p.AmountCents
	}

	return st, nil
}

type eventDynamics struct {
	EventProb        float64
	ExpenseWeight    float64
	WindfallWeight   float64
	ShiftWeight      float64
	MaxExpenseCents  int64
	MaxWindfallCents int64
	MaxShiftBps      int32
}

func volatilityParams(mode string) eventDynamics {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "calm":
		return eventDynamics{
			EventProb:        0.10,
			ExpenseWeight:    0.45,
			WindfallWeight:   0.35,
			ShiftWeight:      0.15,
			MaxExpenseCents:  40_000,
			MaxWindfallCents: 60_000,
			MaxShiftBps:      800,
		}
	case "wild":
		return eventDynamics{
			EventProb:        0.45,
			ExpenseWeight:    0.55,
			WindfallWeight:   0.20,
			ShiftWeight:      0.20,
			MaxExpenseCents:  250_000,
			MaxWindfallCents: 150_000,
			MaxShiftBps:      3_000,
		}
	default:
		return eventDynamics{
			EventProb:        0.25,
			ExpenseWeight:    0.50,
			WindfallWeight:   0.27,
			ShiftWeight:      0.15,
			MaxExpenseCents:  120_000,
			MaxWindfallCents: 100_000,
			MaxShiftBps:      1_500,
		}
	}
}

// drawRandomEvent rolls one stochastic event for the sweep. The second
// return is false when this roll produces no event for the player.
func drawRandomEvent(rng *mathrand.Rand, dyn eventDynamics, st PlayerState) (EventType, EventPayload, bool) {
	if rng.Float64() >= dyn.EventProb {
		return "", EventPayload{}, false
	}
	roll := rng.Float64()
	switch {
	case roll < dyn.ExpenseWeight:
		amount := 2_000 + rng.Int63n(dyn.MaxExpenseCents)
		return EventUnexpectedExpense, EventPayload{
			AmountCents: amount,
			FromSavings: rng.Float64() < 0.5,
			Label:       "unexpected expense",
		}, true
	case roll < dyn.ExpenseWeight+dyn.WindfallWeight:
		amount := 2_000 + rng.Int63n(dyn.MaxWindfallCents)
		return EventWindfall, EventPayload{
			AmountCents: amount,
			Label:       "windfall",
		}, true
	case roll < dyn.ExpenseWeight+dyn.WindfallWeight+dyn.ShiftWeight:
		target := ""
		for _, l := range st.Liabilities {
			if l.PrincipalCents > 0 {
				target = l.Name
				break
			}
		}
		if target == "" {
			return "", EventPayload{}, false
		}
		shift := int32(rng.Int31n(dyn.MaxShiftBps*2+1)) - dyn.MaxShiftBps
		if shift == 0 {
			shift = dyn.MaxShiftBps / 2
		}
		return EventMarketShift, EventPayload{
			LiabilityName: target,
			ValueShiftBps: shift,
			Label:         "market shift",
		}, true
	default:
		income := 1_000 + rng.Int63n(10_000)
		return EventIncomeOpportunity, EventPayload{
			PassiveIncomeCents: income,
			UpfrontCostCents:   income * 4,
			Label:              "side income opportunity",
		}, true
	}
}
