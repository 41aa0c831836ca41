package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cashquest/internal/game"
	"cashquest/internal/progress"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type professionsPayload struct {
	Professions []game.Profession `json:"professions"`
}

type sessionsPayload struct {
	Sessions []game.Session `json:"sessions"`
}

type eventsPayload struct {
	Events []game.MarketEvent `json:"events"`
}

type lessonsPayload struct {
	Lessons []progress.LessonSummary `json:"lessons"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderProfessions(raw map[string]any) error {
	payload, err := decodeInto[professionsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== CAREERS ==")
	if len(payload.Professions) == 0 {
		printInfo("No careers available.")
		return nil
	}
	fmt.Printf("%-4s %-16s %12s %7s %12s %12s %6s\n", "ID", "NAME", "SALARY", "TAX", "CASH", "SAVINGS", "DEBTS")
	for _, p := range payload.Professions {
		fmt.Printf("%-4d %-16s %12s %6.2f%% %12s %12s %6d\n",
			p.ID,
			truncate(p.Name, 16),
			formatCents(p.SalaryCents),
			float64(p.TaxRateBps)/100,
			formatCents(p.StartingCashCents),
			formatCents(p.StartingSavingsCents),
			len(p.Liabilities),
		)
	}
	fmt.Println()
	return nil
}

func renderSessions(raw map[string]any) error {
	payload, err := decodeInto[sessionsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== GAME SESSIONS ==")
	if len(payload.Sessions) == 0 {
		printInfo("No sessions yet. Run `cq sessions create`.")
		return nil
	}
	fmt.Printf("%-38s %-10s %-16s\n", "ID", "STATUS", "CREATED")
	for _, s := range payload.Sessions {
		status := string(s.Status)
		switch s.Status {
		case game.StatusActive:
			status = success.Sprint(status)
		case game.StatusAbandoned:
			status = danger.Sprint(status)
		}
		fmt.Printf("%-38s %-10s %-16s\n", s.ID, status, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}

func renderDashboard(raw map[string]any) error {
	d, err := decodeInto[game.DashboardView](raw)
	if err != nil {
		return err
	}
	st := d.Player.State

	accent.Printf("\n== %s (turn %d) ==\n", strings.ToUpper(d.Player.ProfessionName), st.Turn)
	fmt.Printf("Cash:           %s\n", formatCents(st.CashCents))
	fmt.Printf("Savings:        %s\n", formatCents(st.SavingsCents))
	fmt.Printf("Salary:         %s (tax %.2f%%)\n", formatCents(st.SalaryCents), float64(st.TaxRateBps)/100)
	fmt.Printf("Passive income: %s\n", formatCents(st.PassiveIncomeCents))
	fmt.Printf("Net cash flow:  %s / turn\n", colorizeCents(d.NetCashFlowCents))
	fmt.Printf("Events so far:  %d\n", d.EventCount)
	if d.CashDriftCents != 0 || d.SavingsDriftCents != 0 {
		printWarn(fmt.Sprintf("State drift detected: cash=%s savings=%s",
			formatCents(d.CashDriftCents), formatCents(d.SavingsDriftCents)))
	}

	if len(st.Liabilities) > 0 {
		fmt.Println()
		accent.Println("Liabilities")
		fmt.Printf("%-20s %12s %14s\n", "NAME", "PAYMENT", "PRINCIPAL")
		for _, l := range st.Liabilities {
			fmt.Printf("%-20s %12s %14s\n", truncate(l.Name, 20), formatCents(l.PaymentCents), formatCents(l.PrincipalCents))
		}
	}
	fmt.Println()
	return nil
}

func renderEvents(raw map[string]any) error {
	payload, err := decodeInto[eventsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== MARKET EVENT LOG ==")
	if len(payload.Events) == 0 {
		printInfo("No events recorded yet.")
		return nil
	}
	fmt.Printf("%-6s %-4s %-20s %-40s %-16s\n", "TURN", "SEQ", "TYPE", "DETAIL", "APPLIED")
	for _, e := range payload.Events {
		fmt.Printf("%-6d %-4d %-20s %-40s %-16s\n",
			e.Turn,
			e.Seq,
			e.Type,
			truncate(describePayload(e.Payload), 40),
			e.AppliedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	fmt.Println()
	return nil
}

func describePayload(p game.EventPayload) string {
	parts := make([]string, 0, 3)
	if p.Label != "" {
		parts = append(parts, p.Label)
	}
	if p.AmountCents != 0 {
		parts = append(parts, formatCents(p.AmountCents))
	}
	if p.PercentOfCashBps != 0 {
		parts = append(parts, fmt.Sprintf("%.2f%% of cash", float64(p.PercentOfCashBps)/100))
	}
	if p.ValueShiftBps != 0 {
		parts = append(parts, fmt.Sprintf("%s %+.2f%%", p.LiabilityName, float64(p.ValueShiftBps)/100))
	}
	if p.PassiveIncomeCents != 0 {
		parts = append(parts, fmt.Sprintf("+%s passive", formatCents(p.PassiveIncomeCents)))
	}
	return strings.Join(parts, " ")
}

func renderProgress(raw map[string]any) error {
	payload, err := decodeInto[lessonsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LESSON PROGRESS ==")
	if len(payload.Lessons) == 0 {
		printInfo("No lessons started yet.")
		return nil
	}
	fmt.Printf("%-24s %8s %8s %-6s %-10s\n", "LESSON", "PAGES", "SCORE", "STARS", "STATUS")
	for _, l := range payload.Lessons {
		score := "-"
		if l.QuizScore != nil {
			score = strconv.FormatInt(int64(*l.QuizScore), 10) + "%"
		}
		status := "in progress"
		if l.Completed {
			status = success.Sprint("completed")
		}
		fmt.Printf("%-24s %8d %8s %-6s %-10s\n",
			truncate(l.LessonKey, 24),
			l.PagesVisited,
			score,
			strings.Repeat("*", int(l.Stars)),
			status,
		)
	}
	fmt.Println()
	return nil
}

// renderPlayerSummary prints the one-line state after a turn advance or an
// event. Advance responses are a bare player; event responses nest one.
func renderPlayerSummary(raw map[string]any) error {
	if nested, ok := raw["player"].(map[string]any); ok {
		raw = nested
	}
	p, err := decodeInto[game.Player](raw)
	if err != nil {
		return err
	}
	fmt.Printf("Turn %d: cash %s, savings %s, passive income %s\n",
		p.State.Turn,
		formatCents(p.State.CashCents),
		formatCents(p.State.SavingsCents),
		formatCents(p.State.PassiveIncomeCents),
	)
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeCents(v int64) string {
	text := formatCents(v)
	if v > 0 {
		text = "+" + text
	}
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%s.%02d", sign, comma(v/100), v%100)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
