package game

import (
	"errors"
	"testing"
)

func TestApplyEventStateUnexpectedExpense(t *testing.T) {
	st := teacherState()
	st.CashCents = 260_000

	next, err := ApplyEventState(st, EventUnexpectedExpense, EventPayload{AmountCents: 50_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.CashCents != 210_000 {
		t.Fatalf("cash = %d, want 210000", next.CashCents)
	}

	// Cash may go negative; that is debt distress, not an error.
	next, err = ApplyEventState(st, EventUnexpectedExpense, EventPayload{AmountCents: 500_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.CashCents != -240_000 {
		t.Fatalf("cash = %d, want -240000", next.CashCents)
	}
}

func TestApplyEventStateSavingsNeverNegative(t *testing.T) {
	st := teacherState()
	st.CashCents = 10_000
	st.SavingsCents = 30_000

	next, err := ApplyEventState(st, EventUnexpectedExpense, EventPayload{
		AmountCents: 50_000,
		FromSavings: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.SavingsCents != 0 {
		t.Fatalf("savings = %d, want 0", next.SavingsCents)
	}
	if next.CashCents != -10_000 {
		t.Fatalf("cash = %d, want -10000 (remainder falls through to cash)", next.CashCents)
	}
}

func TestApplyEventStatePercentOfCash(t *testing.T) {
	st := teacherState()
	st.CashCents = 200_000

	next, err := ApplyEventState(st, EventUnexpectedExpense, EventPayload{PercentOfCashBps: 2_500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.CashCents != 150_000 {
		t.Fatalf("cash = %d, want 150000", next.CashCents)
	}

	// Negative cash means no percentage base; the expense is zero.
	st.CashCents = -40_000
	next, err = ApplyEventState(st, EventUnexpectedExpense, EventPayload{PercentOfCashBps: 2_500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.CashCents != -40_000 {
		t.Fatalf("cash = %d, want unchanged -40000", next.CashCents)
	}
}

func TestApplyEventStateWindfall(t *testing.T) {
	st := teacherState()
	next, err := ApplyEventState(st, EventWindfall, EventPayload{AmountCents: 75_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.CashCents != 95_000 {
		t.Fatalf("cash = %d, want 95000", next.CashCents)
	}
}

func TestApplyEventStateMarketShift(t *testing.T) {
	st := teacherState()
	st.Liabilities = []Liability{
		{Name: "mortgage", PaymentCents: 40_000, PrincipalCents: 1_000_000},
		{Name: "car_loan", PaymentCents: 10_000, PrincipalCents: 200_000},
	}

	next, err := ApplyEventState(st, EventMarketShift, EventPayload{
		LiabilityName: "mortgage",
		ValueShiftBps: -1_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Liabilities[0].PrincipalCents != 900_000 {
		t.Fatalf("mortgage principal = %d, want 900000", next.Liabilities[0].PrincipalCents)
	}
	if next.Liabilities[1].PrincipalCents != 200_000 {
		t.Fatalf("car loan principal = %d, want untouched 200000", next.Liabilities[1].PrincipalCents)
	}
	// Input state must not be mutated.
	if st.Liabilities[0].PrincipalCents != 1_000_000 {
		t.Fatalf("input state mutated: principal = %d", st.Liabilities[0].PrincipalCents)
	}
}

func TestApplyEventStateIncomeOpportunity(t *testing.T) {
	st := teacherState()
	st.CashCents = 100_000

	next, err := ApplyEventState(st, EventIncomeOpportunity, EventPayload{
		PassiveIncomeCents: 5_000,
		UpfrontCostCents:   40_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.CashCents != 60_000 {
		t.Fatalf("cash = %d, want 60000", next.CashCents)
	}
	if next.PassiveIncomeCents != 5_000 {
		t.Fatalf("passive income = %d, want 5000", next.PassiveIncomeCents)
	}
	if got := NetCashFlowCents(next); got != 245_000 {
		t.Fatalf("net cash flow after opportunity = %d, want 245000", got)
	}
}

func TestValidatePayload(t *testing.T) {
	bad := []struct {
		t EventType
		p EventPayload
	}{
		{EventUnexpectedExpense, EventPayload{}},
		{EventUnexpectedExpense, EventPayload{AmountCents: -5}},
		{EventUnexpectedExpense, EventPayload{PercentOfCashBps: 20_000}},
		{EventWindfall, EventPayload{}},
		{EventMarketShift, EventPayload{ValueShiftBps: 100}},
		{EventMarketShift, EventPayload{LiabilityName: "mortgage"}},
		{EventIncomeOpportunity, EventPayload{UpfrontCostCents: 100}},
		{EventOther, EventPayload{}},
		{EventType("flood"), EventPayload{AmountCents: 1}},
	}
	for _, tc := range bad {
		if err := ValidatePayload(tc.t, tc.p); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("ValidatePayload(%s, %+v) = %v, want ErrInvalidEvent", tc.t, tc.p, err)
		}
	}
}

func TestParseEventType(t *testing.T) {
	if _, err := ParseEventType("  Windfall "); err != nil {
		t.Fatalf("expected windfall to parse: %v", err)
	}
	if _, err := ParseEventType("earthquake"); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected unknown type to fail")
	}
}

// Full turn walk-through: a Teacher starts with 200.00, advances to 2600.00,
// a 500.00 expense lands mid-turn, the next advance adds net cash flow again.
func TestTurnAndEventSequence(t *testing.T) {
	st := teacherState()

	st = AdvanceTurnState(st)
	if st.CashCents != 260_000 || st.Turn != 1 {
		t.Fatalf("after first advance: cash=%d turn=%d", st.CashCents, st.Turn)
	}

	st, err := ApplyEventState(st, EventUnexpectedExpense, EventPayload{AmountCents: 50_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.CashCents != 210_000 {
		t.Fatalf("after expense: cash=%d, want 210000", st.CashCents)
	}

	st = AdvanceTurnState(st)
	if st.CashCents != 450_000 || st.Turn != 2 {
		t.Fatalf("after second advance: cash=%d turn=%d, want 450000 / 2", st.CashCents, st.Turn)
	}
}
