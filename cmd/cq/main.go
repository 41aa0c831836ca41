package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "cashquest/internal/cli"
	"cashquest/internal/config"
	"cashquest/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "cq",
		Short:        "CashQuest financial literacy game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newGuestCmd(&apiBase),
		newMergeCmd(&apiBase),
		newCareersCmd(&apiBase),
		newSessionsCmd(&apiBase),
		newPlayerCmd(&apiBase),
		newLessonsCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a CashQuest account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}

			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Signup(ctx, email, password)
			if err != nil {
				return err
			}

			// Keep the guest token across signup so queued lesson
			// progress can still be merged.
			prev, _ := cl.LoadSession()
			sess := cl.Session{
				Token:      out.Token,
				Email:      email,
				UserID:     out.UserID,
				GuestToken: prev.GuestToken,
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			if sess.GuestToken != "" {
				printInfo("Guest progress found. Run `cq merge` to attach it to your account.")
			}
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to CashQuest",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			prev, _ := cl.LoadSession()
			if err := cl.SaveSession(cl.Session{
				Token:      out.Token,
				Email:      email,
				UserID:     out.UserID,
				GuestToken: prev.GuestToken,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newGuestCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "guest",
		Short: "Start tracking lesson progress without an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _ := cl.LoadSession()
			if sess.GuestToken != "" {
				printInfo("Guest token already present.")
				return nil
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			token, err := client.GuestToken(ctx)
			if err != nil {
				return err
			}
			sess.GuestToken = token
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Guest token saved. Lesson progress is now tracked.")
			return nil
		},
	}
}

func newMergeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Attach guest lesson progress to your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			if sess.GuestToken == "" {
				printInfo("No guest progress to merge.")
				return nil
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			if err := client.MergeGuest(ctx, sess.Token, sess.GuestToken); err != nil {
				return err
			}
			sess.GuestToken = ""
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Guest progress merged into your account.")
			return nil
		},
	}
}

func newCareersCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "careers",
		Short: "List available careers",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ListProfessions(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderProfessions(out)
		},
	}
}

func newSessionsCmd(apiBase *string) *cobra.Command {
	sessions := &cobra.Command{
		Use:     "sessions",
		Short:   "Game session commands",
		Aliases: []string{"session"},
	}

	sessions.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Start a new game session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).CreateSession(ctx, sess.Token)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Session created: %v", out["id"]))
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your game sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ListSessions(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderSessions(out)
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "complete SESSION_ID",
		Short: "Mark a session as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(apiBase).CompleteSession(ctx, sess.Token, args[0]); err != nil {
				return err
			}
			printSuccess("Session completed.")
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "abandon SESSION_ID",
		Short: "Abandon a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(apiBase).AbandonSession(ctx, sess.Token, args[0]); err != nil {
				return err
			}
			printWarn("Session abandoned.")
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "delete SESSION_ID",
		Short: "Delete a session and all of its players and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(apiBase).DeleteSession(ctx, sess.Token, args[0]); err != nil {
				return err
			}
			printWarn("Session deleted.")
			return nil
		},
	})

	return sessions
}

func newPlayerCmd(apiBase *string) *cobra.Command {
	player := &cobra.Command{
		Use:   "player",
		Short: "Player commands within a session",
	}

	join := &cobra.Command{
		Use:   "join SESSION_ID CAREER_ID",
		Short: "Join a session with a career",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			careerID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid career id %q", args[1])
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).CreatePlayer(ctx, sess.Token, args[0], careerID, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Player created: %v", out["id"]))
			return nil
		},
	}

	dash := &cobra.Command{
		Use:   "dash PLAYER_ID",
		Short: "Show a player's financial dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).PlayerDashboard(ctx, sess.Token, args[0])
			if err != nil {
				return err
			}
			return renderDashboard(out)
		},
	}

	advance := &cobra.Command{
		Use:   "advance PLAYER_ID",
		Short: "Advance the player one turn (payday)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).AdvanceTurn(ctx, sess.Token, args[0], uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess("Turn advanced.")
			return renderPlayerSummary(out)
		},
	}

	events := &cobra.Command{
		Use:   "events PLAYER_ID",
		Short: "Show a player's market event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ListEvents(ctx, sess.Token, args[0])
			if err != nil {
				return err
			}
			return renderEvents(out)
		},
	}

	var eventSession string
	var eventAmount int64
	var eventLabel string
	event := &cobra.Command{
		Use:   "event PLAYER_ID TYPE",
		Short: "Apply a market event (windfall, unexpected_expense, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireLogin()
			if err != nil {
				return err
			}
			if eventSession == "" {
				return fmt.Errorf("--session is required")
			}
			payload := map[string]any{}
			if eventAmount != 0 {
				payload["amount_cents"] = eventAmount
			}
			if eventLabel != "" {
				payload["label"] = eventLabel
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ApplyEvent(ctx, sess.Token, args[0], eventSession, args[1], payload, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess("Event applied.")
			return renderPlayerSummary(out)
		},
	}
	event.Flags().StringVar(&eventSession, "session", "", "session id the player belongs to")
	event.Flags().Int64Var(&eventAmount, "amount", 0, "event amount in cents")
	event.Flags().StringVar(&eventLabel, "label", "", "optional event label")

	player.AddCommand(join, dash, advance, events, event)
	return player
}

func newLessonsCmd(apiBase *string) *cobra.Command {
	lessons := &cobra.Command{
		Use:     "lessons",
		Short:   "Lesson progress commands",
		Aliases: []string{"lesson"},
	}

	lessons.AddCommand(&cobra.Command{
		Use:   "visit LESSON PAGE",
		Short: "Record a lesson page visit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireOwner()
			if err != nil {
				return err
			}
			page, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil || page <= 0 {
				return fmt.Errorf("invalid page number %q", args[1])
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(apiBase).VisitPage(ctx, sess.Token, sess.GuestToken, args[0], int32(page)); err != nil {
				queueLessonWrite("POST", "/v1/progress/"+args[0]+"/visit", map[string]any{"page": page})
				return err
			}
			printSuccess("Page visit recorded.")
			return nil
		},
	})

	lessons.AddCommand(&cobra.Command{
		Use:   "quiz LESSON SCORE",
		Short: "Submit a quiz score (0-100)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireOwner()
			if err != nil {
				return err
			}
			score, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil || score < 0 || score > 100 {
				return fmt.Errorf("score must be a whole number between 0 and 100")
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).SubmitQuiz(ctx, sess.Token, sess.GuestToken, args[0], int32(score))
			if err != nil {
				queueLessonWrite("POST", "/v1/progress/"+args[0]+"/quiz", map[string]any{"score_pct": score})
				return err
			}
			stars := 0
			if v, ok := out["stars"].(float64); ok {
				stars = int(v)
			}
			printSuccess(fmt.Sprintf("Quiz recorded: %d%% (%s)", score, strings.Repeat("*", stars)))
			return nil
		},
	})

	lessons.AddCommand(&cobra.Command{
		Use:   "progress",
		Short: "Show your lesson progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireOwner()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ProgressSummary(ctx, sess.Token, sess.GuestToken)
			if err != nil {
				return err
			}
			return renderProgress(out)
		},
	})

	return lessons
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireOwner()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				_, err := client.Do(ctx, q.Method, q.Path, sess.Token, sess.GuestToken, q.Body, q.IdempotencyKey)
				if err != nil {
					remaining = append(remaining, q)
					printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
					continue
				}
				replayed++
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

// requireOwner accepts either a logged-in session or a guest token, since
// lesson progress works for both.
func requireOwner() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, err
	}
	if strings.TrimSpace(sess.Token) == "" && strings.TrimSpace(sess.GuestToken) == "" {
		return cl.Session{}, fmt.Errorf("run `cq login` or `cq guest` first")
	}
	return sess, nil
}

func queueLessonWrite(method, path string, body map[string]any) {
	err := syncq.Push(syncq.Command{
		Method:         method,
		Path:           path,
		Body:           body,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		printError(fmt.Sprintf("Could not queue offline write: %v", err))
		return
	}
	printWarn("Request failed; queued locally. Run `cq sync` when back online.")
}

