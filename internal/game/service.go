package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	db   *pgxpool.Pool
	log  *slog.Logger
	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:   db,
		log:  logger,
		rand: mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) CreateSession(ctx context.Context, identity string) (Session, error) {
	sess := Session{
		ID:            uuid.NewString(),
		OwnerIdentity: identity,
		Status:        StatusActive,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, owner_identity, status)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, sess.ID, sess.OwnerIdentity, sess.Status).Scan(&sess.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID, identity string) (Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_identity, status, created_at
		FROM sessions
		WHERE id = $1
	`, sessionID).Scan(&sess.ID, &sess.OwnerIdentity, &sess.Status, &sess.CreatedAt)
	if err == pgx.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.OwnerIdentity != identity {
		return Session{}, ErrUnauthorized
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, identity string) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_identity, status, created_at
		FROM sessions
		WHERE owner_identity = $1
		ORDER BY created_at DESC
	`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.OwnerIdentity, &sess.Status, &sess.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Service) CompleteSession(ctx context.Context, sessionID, identity string) error {
	return s.transitionSession(ctx, sessionID, identity, StatusCompleted)
}

func (s *Service) AbandonSession(ctx context.Context, sessionID, identity string) error {
	return s.transitionSession(ctx, sessionID, identity, StatusAbandoned)
}

func (s *Service) transitionSession(ctx context.Context, sessionID, identity string, to SessionStatus) error {
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		var owner string
		var status SessionStatus
		err := tx.QueryRow(ctx, `
			SELECT owner_identity, status
			FROM sessions
			WHERE id = $1
			FOR UPDATE
		`, sessionID).Scan(&owner, &status)
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if owner != identity {
			return ErrUnauthorized
		}
		if !CanTransition(status, to) {
			return ErrInvalidState
		}
		_, err = tx.Exec(ctx, `
			UPDATE sessions
			SET status = $1, updated_at = now()
			WHERE id = $2
		`, to, sessionID)
		return err
	})
}

// DeleteSession removes the session, its players, and its event log in one
// transaction; a failure partway leaves everything in place.
func (s *Service) DeleteSession(ctx context.Context, sessionID, identity string) error {
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `
			SELECT owner_identity
			FROM sessions
			WHERE id = $1
			FOR UPDATE
		`, sessionID).Scan(&owner)
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if owner != identity {
			return ErrUnauthorized
		}
		if _, err := tx.Exec(ctx, `DELETE FROM market_events WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM players WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		return err
	})
}

func (s *Service) CreatePlayer(ctx context.Context, in CreatePlayerInput) (Player, error) {
	var out Player
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.Identity, in.IdempotencyKey, "create_player"); err != nil {
			return err
		}

		var owner string
		var status SessionStatus
		err := tx.QueryRow(ctx, `
			SELECT owner_identity, status
			FROM sessions
			WHERE id = $1
			FOR UPDATE
		`, in.SessionID).Scan(&owner, &status)
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if owner != in.Identity {
			return ErrUnauthorized
		}
		if status != StatusActive {
			return ErrInvalidState
		}

		prof, err := getProfessionTx(ctx, tx, in.ProfessionID)
		if err != nil {
			return err
		}

		st := StartingState(prof)
		liabilities, err := json.Marshal(st.Liabilities)
		if err != nil {
			return err
		}
		out = Player{
			ID:             uuid.NewString(),
			SessionID:      in.SessionID,
			Identity:       in.Identity,
			ProfessionID:   prof.ID,
			ProfessionName: prof.Name,
			State:          st,
		}
		// The starting columns freeze the creation snapshot so replay never
		// has to trust the live catalog row.
		return tx.QueryRow(ctx, `
			INSERT INTO players
			    (id, session_id, identity, profession_id, profession_name,
			     salary_cents, tax_rate_bps, other_expenses_cents, child_expense_cents,
			     turn, cash_cents, savings_cents, passive_income_cents, liabilities,
			     starting_cash_cents, starting_savings_cents, starting_liabilities)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING created_at
		`, out.ID, out.SessionID, out.Identity, out.ProfessionID, out.ProfessionName,
			st.SalaryCents, st.TaxRateBps, st.OtherExpensesCents, st.ChildExpenseCents,
			st.Turn, st.CashCents, st.SavingsCents, st.PassiveIncomeCents, string(liabilities),
			st.CashCents, st.SavingsCents, string(liabilities),
		).Scan(&out.CreatedAt)
	})
	if err != nil {
		return Player{}, err
	}
	return out, nil
}

// AdvanceTurn moves the player one turn forward and applies net cash flow.
// The player row is locked for the whole read-modify-write, so a concurrent
// market event can never land on a half-advanced turn.
func (s *Service) AdvanceTurn(ctx context.Context, playerID, identity, idemKey string) (Player, error) {
	var out Player
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, identity, idemKey, "advance_turn"); err != nil {
			return err
		}
		p, status, err := lockPlayerTx(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if p.Identity != identity {
			return ErrUnauthorized
		}
		if status != StatusActive {
			return ErrInvalidState
		}
		p.State = AdvanceTurnState(p.State)
		if err := updatePlayerStateTx(ctx, tx, p.ID, p.State); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Player{}, err
	}
	return out, nil
}

// ApplyMarketEvent is the single write path for event-driven state changes:
// it mutates the player and appends the immutable event row in the same
// transaction, stamped with the current turn and the next per-turn sequence
// number.
func (s *Service) ApplyMarketEvent(ctx context.Context, in ApplyEventInput) (EventResult, error) {
	var out EventResult
	if err := ValidatePayload(in.Type, in.Payload); err != nil {
		return out, err
	}
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.Identity, in.IdempotencyKey, "apply_event"); err != nil {
			return err
		}
		p, status, err := lockPlayerTx(ctx, tx, in.PlayerID)
		if err != nil {
			return err
		}
		if p.SessionID != in.SessionID {
			return ErrInvalidState
		}
		if p.Identity != in.Identity {
			return ErrUnauthorized
		}
		if status != StatusActive {
			return ErrInvalidState
		}

		next, err := ApplyEventState(p.State, in.Type, in.Payload)
		if err != nil {
			return err
		}

		var seq int32
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM market_events
			WHERE player_id = $1 AND turn = $2
		`, p.ID, p.State.Turn).Scan(&seq); err != nil {
			return err
		}

		payload, err := json.Marshal(in.Payload)
		if err != nil {
			return err
		}
		evt := MarketEvent{
			SessionID: p.SessionID,
			PlayerID:  p.ID,
			Turn:      p.State.Turn,
			Seq:       seq,
			Type:      in.Type,
			Payload:   in.Payload,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO market_events (session_id, player_id, turn, seq, event_type, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, applied_at
		`, evt.SessionID, evt.PlayerID, evt.Turn, evt.Seq, evt.Type, string(payload)).Scan(&evt.ID, &evt.AppliedAt)
		if err != nil {
			return err
		}

		if err := updatePlayerStateTx(ctx, tx, p.ID, next); err != nil {
			return err
		}
		p.State = next
		out = EventResult{Event: evt, Player: p}
		return nil
	})
	if err != nil {
		return EventResult{}, err
	}
	return out, nil
}

func (s *Service) GetPlayer(ctx context.Context, playerID, identity string) (Player, error) {
	p, _, err := s.loadPlayer(ctx, playerID)
	if err != nil {
		return Player{}, err
	}
	if p.Identity != identity {
		return Player{}, ErrUnauthorized
	}
	return p, nil
}

// PlayerDashboard reads the materialized state, recomputes it by replaying
// the event log, and reports any drift between the two. Drift means the
// cache diverged from the source of truth and is logged loudly.
func (s *Service) PlayerDashboard(ctx context.Context, playerID, identity string) (DashboardView, error) {
	p, err := s.GetPlayer(ctx, playerID, identity)
	if err != nil {
		return DashboardView{}, err
	}
	events, err := s.listPlayerEvents(ctx, playerID)
	if err != nil {
		return DashboardView{}, err
	}
	start, err := s.loadPlayerStart(ctx, p)
	if err != nil {
		return DashboardView{}, err
	}
	replayed := ReplayState(start, events, p.State.Turn)
	cashDrift, savingsDrift := ReplayDrift(p.State, replayed)
	if cashDrift != 0 || savingsDrift != 0 {
		s.log.Warn("player state drifted from event log replay",
			"player_id", p.ID,
			"cash_drift_cents", cashDrift,
			"savings_drift_cents", savingsDrift)
	}
	return DashboardView{
		Player:            p,
		NetCashFlowCents:  NetCashFlowCents(p.State),
		EventCount:        len(events),
		CashDriftCents:    cashDrift,
		SavingsDriftCents: savingsDrift,
	}, nil
}

func (s *Service) ListEvents(ctx context.Context, playerID, identity string) ([]MarketEvent, error) {
	if _, err := s.GetPlayer(ctx, playerID, identity); err != nil {
		return nil, err
	}
	return s.listPlayerEvents(ctx, playerID)
}

// RunEventSweep rolls one stochastic event per player across all active
// sessions. Events go through ApplyMarketEvent like any other write, so the
// sweep cannot bypass the event log.
func (s *Service) RunEventSweep(ctx context.Context, volatility string) (int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.session_id, p.identity,
		       p.turn, p.cash_cents, p.savings_cents, p.liabilities
		FROM players p
		JOIN sessions sess ON sess.id = p.session_id
		WHERE sess.status = 'active'
		ORDER BY p.created_at
	`)
	if err != nil {
		return 0, err
	}
	type target struct {
		playerID  string
		sessionID string
		identity  string
		st        PlayerState
	}
	var targets []target
	for rows.Next() {
		var t target
		var liabilities []byte
		if err := rows.Scan(&t.playerID, &t.sessionID, &t.identity,
			&t.st.Turn, &t.st.CashCents, &t.st.SavingsCents, &liabilities); err != nil {
			rows.Close()
			return 0, err
		}
		if err := json.Unmarshal(liabilities, &t.st.Liabilities); err != nil {
			rows.Close()
			return 0, err
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	dyn := volatilityParams(volatility)
	applied := 0
	for _, t := range targets {
		evtType, payload, ok := s.draw(dyn, t.st)
		if !ok {
			continue
		}
		_, err := s.ApplyMarketEvent(ctx, ApplyEventInput{
			SessionID:      t.sessionID,
			PlayerID:       t.playerID,
			Identity:       t.identity,
			Type:           evtType,
			Payload:        payload,
			IdempotencyKey: uuid.NewString(),
		})
		if err != nil {
			// A session completed or deleted mid-sweep is expected churn.
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
				continue
			}
			s.log.Error("sweep event failed", "player_id", t.playerID, "err", err)
			continue
		}
		applied++
	}
	return applied, nil
}

func (s *Service) draw(dyn eventDynamics, st PlayerState) (EventType, EventPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return drawRandomEvent(s.rand, dyn, st)
}

func (s *Service) loadPlayer(ctx context.Context, playerID string) (Player, SessionStatus, error) {
	row := s.db.QueryRow(ctx, `
		SELECT p.id, p.session_id, p.identity, p.profession_id, p.profession_name,
		       p.salary_cents, p.tax_rate_bps, p.other_expenses_cents, p.child_expense_cents,
		       p.turn, p.cash_cents, p.savings_cents, p.passive_income_cents, p.liabilities,
		       p.created_at, sess.status
		FROM players p
		JOIN sessions sess ON sess.id = p.session_id
		WHERE p.id = $1
	`, playerID)
	return scanPlayerWithStatus(row)
}

func (s *Service) listPlayerEvents(ctx context.Context, playerID string) ([]MarketEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, player_id, turn, seq, event_type, payload, applied_at
		FROM market_events
		WHERE player_id = $1
		ORDER BY turn ASC, seq ASC, id ASC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarketEvent
	for rows.Next() {
		var evt MarketEvent
		var payload []byte
		if err := rows.Scan(&evt.ID, &evt.SessionID, &evt.PlayerID, &evt.Turn, &evt.Seq,
			&evt.Type, &payload, &evt.AppliedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &evt.Payload); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func lockPlayerTx(ctx context.Context, tx pgx.Tx, playerID string) (Player, SessionStatus, error) {
	// Lock only the player row; the session join rides along unlocked and
	// serializable isolation catches concurrent status flips.
	row := tx.QueryRow(ctx, `
		SELECT p.id, p.session_id, p.identity, p.profession_id, p.profession_name,
		       p.salary_cents, p.tax_rate_bps, p.other_expenses_cents, p.child_expense_cents,
		       p.turn, p.cash_cents, p.savings_cents, p.passive_income_cents, p.liabilities,
		       p.created_at, sess.status
		FROM players p
		JOIN sessions sess ON sess.id = p.session_id
		WHERE p.id = $1
		FOR UPDATE OF p
	`, playerID)
	return scanPlayerWithStatus(row)
}

func scanPlayerWithStatus(row pgx.Row) (Player, SessionStatus, error) {
	var p Player
	var status SessionStatus
	var liabilities []byte
	err := row.Scan(&p.ID, &p.SessionID, &p.Identity, &p.ProfessionID, &p.ProfessionName,
		&p.State.SalaryCents, &p.State.TaxRateBps, &p.State.OtherExpensesCents, &p.State.ChildExpenseCents,
		&p.State.Turn, &p.State.CashCents, &p.State.SavingsCents, &p.State.PassiveIncomeCents, &liabilities,
		&p.CreatedAt, &status)
	if err == pgx.ErrNoRows {
		return Player{}, "", ErrNotFound
	}
	if err != nil {
		return Player{}, "", err
	}
	if err := json.Unmarshal(liabilities, &p.State.Liabilities); err != nil {
		return Player{}, "", err
	}
	return p, status, nil
}

func updatePlayerStateTx(ctx context.Context, tx pgx.Tx, playerID string, st PlayerState) error {
	liabilities, err := json.Marshal(st.Liabilities)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE players
		SET turn = $1, cash_cents = $2, savings_cents = $3,
		    passive_income_cents = $4, liabilities = $5, updated_at = now()
		WHERE id = $6
	`, st.Turn, st.CashCents, st.SavingsCents, st.PassiveIncomeCents, string(liabilities), playerID)
	return err
}

// loadPlayerStart rebuilds the turn-zero state from the creation snapshot
// stored on the player row. Replay never consults the catalog, so catalog
// edits after creation cannot surface as phantom drift.
func (s *Service) loadPlayerStart(ctx context.Context, p Player) (PlayerState, error) {
	var st PlayerState
	var liabilities []byte
	err := s.db.QueryRow(ctx, `
		SELECT starting_cash_cents, starting_savings_cents, starting_liabilities
		FROM players
		WHERE id = $1
	`, p.ID).Scan(&st.CashCents, &st.SavingsCents, &liabilities)
	if err == pgx.ErrNoRows {
		return PlayerState{}, ErrNotFound
	}
	if err != nil {
		return PlayerState{}, err
	}
	if err := json.Unmarshal(liabilities, &st.Liabilities); err != nil {
		return PlayerState{}, err
	}
	st.SalaryCents = p.State.SalaryCents
	st.TaxRateBps = p.State.TaxRateBps
	st.OtherExpensesCents = p.State.OtherExpensesCents
	st.ChildExpenseCents = p.State.ChildExpenseCents
	return st, nil
}

func (s *Service) runSerializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, identity, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (identity, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (identity, key) DO NOTHING
	`, identity, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
