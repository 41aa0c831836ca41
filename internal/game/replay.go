package game

// The event log is the source of truth; the stored player row is a cache of
// folding the log. Replay rebuilds the state from the profession snapshot so
// reads can detect drift (double-applied events, a turn advanced while an
// event was in flight) before anyone trusts the materialized numbers.

// StartingState builds the turn-zero state a player was created with.
func StartingState(p Profession) PlayerState {
	return PlayerState{
		Turn:               0,
		CashCents:          p.StartingCashCents,
		SavingsCents:       p.StartingSavingsCents,
		SalaryCents:        p.SalaryCents,
		TaxRateBps:         p.TaxRateBps,
		OtherExpensesCents: p.OtherExpensesCents,
		ChildExpenseCents:  p.ChildExpenseCents,
		Liabilities:        cloneLiabilities(p.Liabilities),
	}
}

// ReplayState folds the ordered event log and per-turn net cash flow from a
// starting state up to targetTurn. Events must be sorted by (turn, seq);
// events stamped with a turn are applied after that turn's advance, matching
// the live write order. Malformed recorded events are skipped rather than
// poisoning the whole replay.
func ReplayState(start PlayerState, events []MarketEvent, targetTurn int32) PlayerState {
	st := start
	st.Liabilities = cloneLiabilities(st.Liabilities)
	i := 0
	applyTurn := func(turn int32) {
		for i < len(events) && events[i].Turn == turn {
			next, err := ApplyEventState(st, events[i].Type, events[i].Payload)
			if err == nil {
				st = next
			}
			i++
		}
	}
	applyTurn(st.Turn)
	for st.Turn < targetTurn {
		st = AdvanceTurnState(st)
		applyTurn(st.Turn)
	}
	return st
}

// ReplayDrift compares a materialized state against the replay result and
// returns the cash/savings discrepancies. Both zero means the cache agrees
// with the log.
func ReplayDrift(stored, replayed PlayerState) (cashDriftCents, savingsDriftCents int64) {
	return stored.CashCents - replayed.CashCents, stored.SavingsCents - replayed.SavingsCents
}
