package game

import "testing"

func teacherState() PlayerState {
	return PlayerState{
		SalaryCents:  300_000,
		TaxRateBps:   2_000,
		CashCents:    20_000,
		SavingsCents: 0,
	}
}

func TestNetCashFlowCents(t *testing.T) {
	st := teacherState()
	if got := NetCashFlowCents(st); got != 240_000 {
		t.Fatalf("teacher net cash flow = %d, want 240000", got)
	}

	st.Liabilities = []Liability{
		{Name: "mortgage", PaymentCents: 40_000},
		{Name: "car_loan", PaymentCents: 10_000},
	}
	st.OtherExpensesCents = 5_000
	st.ChildExpenseCents = 2_500
	st.PassiveIncomeCents = 7_500
	want := int64(240_000 - 40_000 - 10_000 - 5_000 - 2_500 + 7_500)
	if got := NetCashFlowCents(st); got != want {
		t.Fatalf("net cash flow = %d, want %d", got, want)
	}
}

func TestAfterTaxCentsRounding(t *testing.T) {
	tests := []struct {
		gross int64
		bps   int32
		want  int64
	}{
		{300_000, 2_000, 240_000},
		{100, 3_333, 67},
		{0, 5_000, 0},
		{100, 10_000, 0},
	}
	for _, tc := range tests {
		if got := AfterTaxCents(tc.gross, tc.bps); got != tc.want {
			t.Fatalf("AfterTaxCents(%d, %d) = %d, want %d", tc.gross, tc.bps, got, tc.want)
		}
	}
}

func TestAdvanceTurnState(t *testing.T) {
	st := teacherState()
	next := AdvanceTurnState(st)
	if next.Turn != 1 {
		t.Fatalf("turn = %d, want 1", next.Turn)
	}
	if next.CashCents != 260_000 {
		t.Fatalf("cash = %d, want 260000", next.CashCents)
	}
	// Turn only ever increases, by exactly one per call.
	for i := 0; i < 5; i++ {
		prev := next.Turn
		next = AdvanceTurnState(next)
		if next.Turn != prev+1 {
			t.Fatalf("turn jumped from %d to %d", prev, next.Turn)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from SessionStatus
		to   SessionStatus
		want bool
	}{
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusAbandoned, true},
		{StatusActive, StatusActive, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusAbandoned, false},
		{StatusAbandoned, StatusCompleted, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
