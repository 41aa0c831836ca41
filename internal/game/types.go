package game

type CreatePlayerInput struct {
	SessionID      string
	Identity       string
	ProfessionID   int64
	IdempotencyKey string
}

type ApplyEventInput struct {
	SessionID      string
	PlayerID       string
	Identity       string
	Type           EventType
	Payload        EventPayload
	IdempotencyKey string
}

type EventResult struct {
	Event  MarketEvent `json:"event"`
	Player Player      `json:"player"`
}

type DashboardView struct {
	Player            Player `json:"player"`
	NetCashFlowCents  int64  `json:"net_cash_flow_cents"`
	EventCount        int    `json:"event_count"`
	CashDriftCents    int64  `json:"cash_drift_cents"`
	SavingsDriftCents int64  `json:"savings_drift_cents"`
}
