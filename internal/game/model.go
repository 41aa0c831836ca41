package game

import (
	"errors"
	"time"
)

const BpsScale = int64(10_000)

type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidState         = errors.New("invalid session state")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrInvalidEvent         = errors.New("invalid market event")
)

// Liability is one recurring obligation on a player's balance sheet. The
// payment drains cash every turn; the principal is what market shifts and
// pay-downs move.
type Liability struct {
	Name           string `json:"name"`
	PaymentCents   int64  `json:"payment_cents"`
	PrincipalCents int64  `json:"principal_cents"`
}

type Profession struct {
	ID                   int64       `json:"id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	SalaryCents          int64       `json:"salary_cents"`
	TaxRateBps           int32       `json:"tax_rate_bps"`
	OtherExpensesCents   int64       `json:"other_expenses_cents"`
	ChildExpenseCents    int64       `json:"child_expense_cents"`
	StartingCashCents    int64       `json:"starting_cash_cents"`
	StartingSavingsCents int64       `json:"starting_savings_cents"`
	Liabilities          []Liability `json:"liabilities"`
}

type Session struct {
	ID            string        `json:"id"`
	OwnerIdentity string        `json:"owner_identity"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PlayerState is the financial snapshot everything pure operates on: net
// cash flow, event deltas, and replay all take and return this shape. The
// persisted players row is a materialization of it.
type PlayerState struct {
	Turn               int32       `json:"turn"`
	CashCents          int64       `json:"cash_cents"`
	SavingsCents       int64       `json:"savings_cents"`
	SalaryCents        int64       `json:"salary_cents"`
	TaxRateBps         int32       `json:"tax_rate_bps"`
	OtherExpensesCents int64       `json:"other_expenses_cents"`
	ChildExpenseCents  int64       `json:"child_expense_cents"`
	PassiveIncomeCents int64       `json:"passive_income_cents"`
	Liabilities        []Liability `json:"liabilities"`
}

type Player struct {
	ID             string      `json:"id"`
	SessionID      string      `json:"session_id"`
	Identity       string      `json:"identity"`
	ProfessionID   int64       `json:"profession_id"`
	ProfessionName string      `json:"profession_name"`
	State          PlayerState `json:"state"`
	CreatedAt      time.Time   `json:"created_at"`
}

type MarketEvent struct {
	ID        int64        `json:"id"`
	SessionID string       `json:"session_id"`
	PlayerID  string       `json:"player_id"`
	Turn      int32        `json:"turn"`
	Seq       int32        `json:"seq"`
	Type      EventType    `json:"event_type"`
	Payload   EventPayload `json:"payload"`
	AppliedAt time.Time    `json:"applied_at"`
}

// AfterTaxCents applies a bps tax rate with round-half-up.
func AfterTaxCents(grossCents int64, taxRateBps int32) int64 {
	keep := BpsScale - int64(taxRateBps)
	if keep < 0 {
		keep = 0
	}
	return (grossCents*keep + BpsScale/2) / BpsScale
}

// NetCashFlowCents is the per-turn cash delta: after-tax salary plus passive
// income, minus liability payments and the fixed expense lines. Recomputed
// on demand from its inputs, never stored.
func NetCashFlowCents(st PlayerState) int64 {
	flow := AfterTaxCents(st.SalaryCents, st.TaxRateBps) + st.PassiveIncomeCents
	for _, l := range st.Liabilities {
		flow -= l.PaymentCents
	}
	flow -= st.OtherExpensesCents
	flow -= st.ChildExpenseCents
	return flow
}

// AdvanceTurnState is the pure half of the turn operation: one turn forward,
// net cash flow applied to cash.
func AdvanceTurnState(st PlayerState) PlayerState {
	st.CashCents += NetCashFlowCents(st)
	st.Turn++
	st.Liabilities = cloneLiabilities(st.Liabilities)
	return st
}

// CanTransition reports whether a session may move from one status to
// another. Completed and abandoned are terminal.
func CanTransition(from, to SessionStatus) bool {
	if from != StatusActive {
		return false
	}
	return to == StatusCompleted || to == StatusAbandoned
}

func cloneLiabilities(in []Liability) []Liability {
	if in == nil {
		return nil
	}
	out := make([]Liability, len(in))
	copy(out, in)
	return out
}
