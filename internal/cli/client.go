package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type AuthResult struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func (c *Client) Signup(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) GuestToken(ctx context.Context) (string, error) {
	var out struct {
		GuestToken string `json:"guest_token"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/guest", "", "", nil, &out, "")
	return out.GuestToken, err
}

func (c *Client) MergeGuest(ctx context.Context, token, guestToken string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/auth/merge", token, "", map[string]any{
		"guest_token": guestToken,
	}, nil, "")
}

func (c *Client) ListProfessions(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/professions", token, "", nil, &out, "")
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", token, "", nil, &out, "")
	return out, err
}

func (c *Client) ListSessions(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions", token, "", nil, &out, "")
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, token, sessionID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), token, "", nil, nil, "")
}

func (c *Client) CompleteSession(ctx context.Context, token, sessionID string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/complete", token, "", nil, nil, "")
}

func (c *Client) AbandonSession(ctx context.Context, token, sessionID string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/abandon", token, "", nil, nil, "")
}

func (c *Client) CreatePlayer(ctx context.Context, token, sessionID string, professionID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/players", token, "", map[string]any{
		"profession_id": professionID,
	}, &out, idem)
	return out, err
}

func (c *Client) PlayerDashboard(ctx context.Context, token, playerID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/players/"+url.PathEscape(playerID), token, "", nil, &out, "")
	return out, err
}

func (c *Client) AdvanceTurn(ctx context.Context, token, playerID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/players/"+url.PathEscape(playerID)+"/advance", token, "", map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) ApplyEvent(ctx context.Context, token, playerID, sessionID, eventType string, payload map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/players/"+url.PathEscape(playerID)+"/events", token, "", map[string]any{
		"session_id": sessionID,
		"type":       eventType,
		"payload":    payload,
	}, &out, idem)
	return out, err
}

func (c *Client) ListEvents(ctx context.Context, token, playerID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/players/"+url.PathEscape(playerID)+"/events", token, "", nil, &out, "")
	return out, err
}

func (c *Client) ProgressSummary(ctx context.Context, token, guestToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/progress", token, guestToken, nil, &out, "")
	return out, err
}

func (c *Client) VisitPage(ctx context.Context, token, guestToken, lesson string, page int32) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/progress/"+url.PathEscape(lesson)+"/visit", token, guestToken, map[string]any{
		"page": page,
	}, nil, "")
}

func (c *Client) SubmitQuiz(ctx context.Context, token, guestToken, lesson string, scorePct int32) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/progress/"+url.PathEscape(lesson)+"/quiz", token, guestToken, map[string]any{
		"score_pct": scorePct,
	}, &out, "")
	return out, err
}

// Do replays an arbitrary queued command. Used by `cq sync`.
func (c *Client) Do(ctx context.Context, method, path, token, guestToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, token, guestToken, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token, guestToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if guestToken != "" && token == "" {
		req.Header.Set("X-Guest-Token", guestToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
