package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cashquest/internal/auth"
	"cashquest/internal/config"
	"cashquest/internal/game"
	"cashquest/internal/progress"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	ownerContextKey    contextKey = "owner"
)

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	auth     *auth.Manager
	users    *auth.UserStore
	game     *game.Service
	progress *progress.Service
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, tokens *auth.Manager, users *auth.UserStore, gameSvc *game.Service, progressSvc *progress.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		auth:     tokens,
		users:    users,
		game:     gameSvc,
		progress: progressSvc,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/guest", s.handleGuestToken)

		// Game routes require a real account. Simulation state is tied to
		// an identity from the first turn.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/merge", s.handleMergeGuest)

			r.Get("/professions", s.handleProfessionsList)
			r.Get("/professions/{id}", s.handleProfessionDetail)

			r.Post("/sessions", s.handleSessionCreate)
			r.Get("/sessions", s.handleSessionList)
			r.Get("/sessions/{id}", s.handleSessionGet)
			r.Delete("/sessions/{id}", s.handleSessionDelete)
			r.Post("/sessions/{id}/complete", s.handleSessionComplete)
			r.Post("/sessions/{id}/abandon", s.handleSessionAbandon)
			r.Post("/sessions/{id}/players", s.handlePlayerCreate)

			r.Get("/players/{id}", s.handlePlayerDashboard)
			r.Post("/players/{id}/advance", s.handlePlayerAdvance)
			r.Post("/players/{id}/events", s.handleEventApply)
			r.Get("/players/{id}/events", s.handleEventList)
		})

		// Lesson progress works for guests too; the owner middleware
		// accepts either a bearer token or a guest token header.
		r.Group(func(r chi.Router) {
			r.Use(s.ownerMiddleware)

			r.Get("/progress", s.handleProgressSummary)
			r.Post("/progress/{lesson}/visit", s.handlePageVisit)
			r.Post("/progress/{lesson}/quiz", s.handleQuizResult)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerMiddleware resolves the progress owner key: an authenticated identity
// when a valid bearer token is present, otherwise a guest token from the
// X-Guest-Token header.
func (s *Server) ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r.Header.Get("Authorization")); token != "" {
			identity, err := s.auth.VerifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ownerContextKey, progress.IdentityOwner(identity))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		guest := strings.TrimSpace(r.Header.Get("X-Guest-Token"))
		if guest == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer or guest token")
			return
		}
		ctx := context.WithValue(r.Context(), ownerContextKey, progress.GuestOwner(guest))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(identityContextKey).(string)
	if !ok || identity == "" {
		return "", errors.New("missing auth context")
	}
	return identity, nil
}

func ownerFromContext(ctx context.Context) (string, error) {
	owner, ok := ctx.Value(ownerContextKey).(string)
	if !ok || owner == "" {
		return "", errors.New("missing owner context")
	}
	return owner, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := s.users.CreateUser(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := s.auth.IssueToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := s.users.Authenticate(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := s.auth.IssueToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "token": token})
}

func (s *Server) handleGuestToken(w http.ResponseWriter, r *http.Request) {
	token, err := auth.NewGuestToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"guest_token": token})
}

func (s *Server) handleMergeGuest(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		GuestToken string `json:"guest_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	guest := strings.TrimSpace(in.GuestToken)
	if guest == "" {
		writeError(w, http.StatusBadRequest, "guest_token is required")
		return
	}
	if err := s.progress.MergeGuestIntoIdentity(r.Context(), guest, identity); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleProfessionsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ListProfessions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"professions": out})
}

func (s *Server) handleProfessionDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profession id")
		return
	}
	out, err := s.game.GetProfession(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.CreateSession(r.Context(), identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ListSessions(r.Context(), identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.GetSession(r.Context(), chi.URLParam(r, "id"), identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.DeleteSession(r.Context(), chi.URLParam(r, "id"), identity); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSessionComplete(w http.ResponseWriter, r *http.Request) {
	s.handleSessionTransition(w, r, s.game.CompleteSession)
}

func (s *Server) handleSessionAbandon(w http.ResponseWriter, r *http.Request) {
	s.handleSessionTransition(w, r, s.game.AbandonSession)
}

func (s *Server) handleSessionTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) error) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := fn(r.Context(), chi.URLParam(r, "id"), identity); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePlayerCreate(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ProfessionID int64 `json:"profession_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreatePlayer(r.Context(), game.CreatePlayerInput{
		SessionID:      chi.URLParam(r, "id"),
		Identity:       identity,
		ProfessionID:   in.ProfessionID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handlePlayerDashboard(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.PlayerDashboard(r.Context(), chi.URLParam(r, "id"), identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlayerAdvance(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.AdvanceTurn(r.Context(), chi.URLParam(r, "id"), identity, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventApply(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		SessionID string            `json:"session_id"`
		Type      string            `json:"type"`
		Payload   game.EventPayload `json:"payload"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eventType, err := game.ParseEventType(in.Type)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.game.ApplyMarketEvent(r.Context(), game.ApplyEventInput{
		SessionID:      in.SessionID,
		PlayerID:       chi.URLParam(r, "id"),
		Identity:       identity,
		Type:           eventType,
		Payload:        in.Payload,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ListEvents(r.Context(), chi.URLParam(r, "id"), identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleProgressSummary(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.progress.Summary(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lessons": out})
}

func (s *Server) handlePageVisit(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Page int32 `json:"page"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lesson := chi.URLParam(r, "lesson")
	if err := s.progress.TrackPageVisit(r.Context(), owner, lesson, in.Page); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleQuizResult(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ScorePct int32 `json:"score_pct"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lesson := chi.URLParam(r, "lesson")
	out, err := s.progress.RecordQuizResult(r.Context(), owner, lesson, in.ScorePct)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidEvent), errors.Is(err, progress.ErrInvalidScore):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
