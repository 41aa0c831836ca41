package game

import "testing"

func teacherProfession() Profession {
	return Profession{
		ID:                1,
		Name:              "Teacher",
		SalaryCents:       300_000,
		TaxRateBps:        2_000,
		StartingCashCents: 20_000,
	}
}

func TestReplayStateMatchesLiveSequence(t *testing.T) {
	prof := teacherProfession()

	// Live path: advance, expense on turn 1, advance, windfall on turn 2.
	live := StartingState(prof)
	live = AdvanceTurnState(live)
	live, err := ApplyEventState(live, EventUnexpectedExpense, EventPayload{AmountCents: 50_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	live = AdvanceTurnState(live)
	live, err = ApplyEventState(live, EventWindfall, EventPayload{AmountCents: 30_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := []MarketEvent{
		{Turn: 1, Seq: 0, Type: EventUnexpectedExpense, Payload: EventPayload{AmountCents: 50_000}},
		{Turn: 2, Seq: 0, Type: EventWindfall, Payload: EventPayload{AmountCents: 30_000}},
	}
	replayed := ReplayState(StartingState(prof), log, live.Turn)

	if cash, savings := ReplayDrift(live, replayed); cash != 0 || savings != 0 {
		t.Fatalf("replay drifted: cash=%d savings=%d", cash, savings)
	}
	if replayed.CashCents != 480_000 {
		t.Fatalf("replayed cash = %d, want 480000", replayed.CashCents)
	}
}

func TestReplayStateOrdersEventsWithinTurn(t *testing.T) {
	prof := teacherProfession()
	// A 50% of-cash expense after a windfall differs from before it;
	// seq order decides.
	log := []MarketEvent{
		{Turn: 0, Seq: 0, Type: EventWindfall, Payload: EventPayload{AmountCents: 100_000}},
		{Turn: 0, Seq: 1, Type: EventUnexpectedExpense, Payload: EventPayload{PercentOfCashBps: 5_000}},
	}
	replayed := ReplayState(StartingState(prof), log, 0)
	if replayed.CashCents != 60_000 {
		t.Fatalf("replayed cash = %d, want 60000", replayed.CashCents)
	}
}

func TestReplayStateDetectsDoubleApplication(t *testing.T) {
	prof := teacherProfession()
	live := StartingState(prof)
	live = AdvanceTurnState(live)
	live, err := ApplyEventState(live, EventUnexpectedExpense, EventPayload{AmountCents: 50_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Simulate the bug class: the same event applied twice to the cache
	// but recorded once.
	broken, err := ApplyEventState(live, EventUnexpectedExpense, EventPayload{AmountCents: 50_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := []MarketEvent{
		{Turn: 1, Seq: 0, Type: EventUnexpectedExpense, Payload: EventPayload{AmountCents: 50_000}},
	}
	replayed := ReplayState(StartingState(prof), log, broken.Turn)
	cash, _ := ReplayDrift(broken, replayed)
	if cash != -50_000 {
		t.Fatalf("drift = %d, want -50000", cash)
	}
}

func TestReplayFromSnapshotUnaffectedByCatalogEdit(t *testing.T) {
	prof := teacherProfession()
	snapshot := StartingState(prof)

	live := AdvanceTurnState(snapshot)

	// The catalog row changes after the player was created. Replaying
	// from the frozen snapshot still reproduces the live state; replaying
	// from the edited row would not.
	prof.StartingCashCents += 500_000
	replayed := ReplayState(snapshot, nil, live.Turn)
	if cash, savings := ReplayDrift(live, replayed); cash != 0 || savings != 0 {
		t.Fatalf("snapshot replay drifted: cash=%d savings=%d", cash, savings)
	}

	fromCatalog := ReplayState(StartingState(prof), nil, live.Turn)
	if cash, _ := ReplayDrift(live, fromCatalog); cash == 0 {
		t.Fatal("replay from the edited catalog row reported no drift")
	}
}

func TestReplayStateSkipsMalformedEvents(t *testing.T) {
	prof := teacherProfession()
	log := []MarketEvent{
		{Turn: 0, Seq: 0, Type: EventType("corrupt"), Payload: EventPayload{}},
		{Turn: 0, Seq: 1, Type: EventWindfall, Payload: EventPayload{AmountCents: 10_000}},
	}
	replayed := ReplayState(StartingState(prof), log, 0)
	if replayed.CashCents != 30_000 {
		t.Fatalf("replayed cash = %d, want 30000", replayed.CashCents)
	}
}
