package progress

import (
	"errors"
	"sort"
	"time"
)

var ErrInvalidScore = errors.New("quiz score must be between 0 and 100")

// Record is one owner's progress through one lesson. The owner key is either
// an authenticated identity or a guest token. The two stores are symmetric
// and share the merge function below, so nothing downstream special-cases
// guests.
type Record struct {
	OwnerKey     string     `json:"owner_key"`
	LessonKey    string     `json:"lesson_key"`
	VisitedPages []int32    `json:"visited_pages"`
	QuizScore    *int32     `json:"quiz_score,omitempty"`
	Stars        int32      `json:"stars"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type LessonSummary struct {
	LessonKey    string `json:"lesson_key"`
	PagesVisited int    `json:"pages_visited"`
	QuizScore    *int32 `json:"quiz_score,omitempty"`
	Stars        int32  `json:"stars"`
	Completed    bool   `json:"completed"`
}

// IdentityOwner and GuestOwner build the two owner-key namespaces. Keeping
// the prefix in the key means a guest token can never collide with an
// identity, even if an identity provider hands out token-shaped ids.
func IdentityOwner(identity string) string { return "user:" + identity }
func GuestOwner(token string) string       { return "guest:" + token }

// Stars derives the star rating from a quiz percentage. This is the only
// place stars come from; stored stars are always recomputed through it.
func Stars(scorePct int32) int32 {
	switch {
	case scorePct >= 90:
		return 3
	case scorePct >= 75:
		return 2
	case scorePct >= 50:
		return 1
	default:
		return 0
	}
}

// AddPage unions one page number into the visited set. Visiting a page twice
// is a no-op.
func AddPage(pages []int32, page int32) []int32 {
	for _, p := range pages {
		if p == page {
			return pages
		}
	}
	out := append(append([]int32(nil), pages...), page)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BetterScore keeps the higher of a stored and an incoming quiz score. A
// retake that scores lower never lowers what was earned.
func BetterScore(stored *int32, incoming int32) int32 {
	if stored != nil && *stored > incoming {
		return *stored
	}
	return incoming
}

// ApplyQuizScore folds one quiz submission into a record: best score wins,
// stars are re-derived from it, and the first submission stamps completion.
func ApplyQuizScore(rec Record, scorePct int32, now time.Time) Record {
	best := BetterScore(rec.QuizScore, scorePct)
	rec.QuizScore = &best
	rec.Stars = Stars(best)
	if rec.CompletedAt == nil {
		rec.CompletedAt = &now
	}
	return rec
}

// MergeRecords folds src into dst: union of visited pages, max of quiz
// scores, stars re-derived. It is commutative on pages and monotone on
// scores, which is what makes the guest merge safe to retry.
func MergeRecords(dst, src Record) Record {
	for _, p := range src.VisitedPages {
		dst.VisitedPages = AddPage(dst.VisitedPages, p)
	}
	if src.QuizScore != nil {
		score := BetterScore(dst.QuizScore, *src.QuizScore)
		dst.QuizScore = &score
		dst.Stars = Stars(score)
	}
	if dst.CompletedAt == nil {
		dst.CompletedAt = src.CompletedAt
	}
	return dst
}
