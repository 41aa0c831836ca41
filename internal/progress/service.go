package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const summaryTTL = 5 * time.Minute

type Service struct {
	db    *pgxpool.Pool
	log   *slog.Logger
	cache *Cache
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, cache *Cache) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, log: logger, cache: cache}
}

// TrackPageVisit records that the owner saw one page of a lesson. Visiting
// the same page again changes nothing, so callers may retry freely.
func (s *Service) TrackPageVisit(ctx context.Context, ownerKey, lessonKey string, page int32) error {
	if page <= 0 {
		return fmt.Errorf("page number must be positive")
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureRecordTx(ctx, tx, ownerKey, lessonKey); err != nil {
			return err
		}
		var raw []byte
		if err := tx.QueryRow(ctx, `
			SELECT visited_pages
			FROM progress_records
			WHERE owner_key = $1 AND lesson_key = $2
			FOR UPDATE
		`, ownerKey, lessonKey).Scan(&raw); err != nil {
			return err
		}
		var pages []int32
		if err := json.Unmarshal(raw, &pages); err != nil {
			return err
		}
		next := AddPage(pages, page)
		if len(next) == len(pages) {
			return nil
		}
		updated, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE progress_records
			SET visited_pages = $1, updated_at = now()
			WHERE owner_key = $2 AND lesson_key = $3
		`, string(updated), ownerKey, lessonKey)
		return err
	})
	if err != nil {
		return err
	}
	return s.invalidate(ctx, ownerKey)
}

// RecordQuizResult stores a quiz percentage, keeping the best score ever
// achieved, and re-derives stars from it. Stars are never written from
// anywhere else.
func (s *Service) RecordQuizResult(ctx context.Context, ownerKey, lessonKey string, scorePct int32) (Record, error) {
	if scorePct < 0 || scorePct > 100 {
		return Record{}, ErrInvalidScore
	}
	var out Record
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureRecordTx(ctx, tx, ownerKey, lessonKey); err != nil {
			return err
		}
		rec, err := getRecordTx(ctx, tx, ownerKey, lessonKey, true)
		if err != nil {
			return err
		}
		rec = ApplyQuizScore(rec, scorePct, time.Now().UTC())
		if err := updateRecordTx(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, s.invalidate(ctx, ownerKey)
}

// MergeGuestIntoIdentity folds everything recorded under a guest token into
// the authenticated identity's records, exactly once. The merge marker is
// claimed inside the same transaction as the merge itself, so a crash
// between the two cannot happen and a retry after success is a no-op.
func (s *Service) MergeGuestIntoIdentity(ctx context.Context, guestToken, identity string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			INSERT INTO guest_merges (guest_token, identity)
			VALUES ($1, $2)
			ON CONFLICT (guest_token) DO NOTHING
		`, guestToken, identity)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			// Already merged; page unions and score maxes would be
			// harmless to redo, but a reused guest token would not be.
			return nil
		}

		guestRecords, err := listRecordsTx(ctx, tx, GuestOwner(guestToken))
		if err != nil {
			return err
		}
		identityOwner := IdentityOwner(identity)
		for _, src := range guestRecords {
			if err := ensureRecordTx(ctx, tx, identityOwner, src.LessonKey); err != nil {
				return err
			}
			dst, err := getRecordTx(ctx, tx, identityOwner, src.LessonKey, true)
			if err != nil {
				return err
			}
			dst = MergeRecords(dst, src)
			if err := updateRecordTx(ctx, tx, dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.invalidate(ctx, IdentityOwner(identity))
}

// Summary lists per-lesson progress for one owner, through the cache when
// one is configured.
func (s *Service) Summary(ctx context.Context, ownerKey string) ([]LessonSummary, error) {
	key := summaryCacheKey(ownerKey)
	var cached []LessonSummary
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		s.log.Warn("progress cache read failed", "err", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT lesson_key, jsonb_array_length(visited_pages), quiz_score, stars, completed_at
		FROM progress_records
		WHERE owner_key = $1
		ORDER BY lesson_key
	`, ownerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LessonSummary, 0)
	for rows.Next() {
		var ls LessonSummary
		var completedAt *time.Time
		if err := rows.Scan(&ls.LessonKey, &ls.PagesVisited, &ls.QuizScore, &ls.Stars, &completedAt); err != nil {
			return nil, err
		}
		ls.Completed = completedAt != nil
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, out, summaryTTL); err != nil {
		s.log.Warn("progress cache write failed", "err", err)
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, ownerKey string) error {
	if err := s.cache.Del(ctx, summaryCacheKey(ownerKey)); err != nil {
		s.log.Warn("progress cache invalidation failed", "owner", ownerKey, "err", err)
	}
	return nil
}

func summaryCacheKey(ownerKey string) string {
	return "progress:summary:" + ownerKey
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ensureRecordTx creates the empty row when it is missing, so a following
// FOR UPDATE always has a real row to lock. Two first writers serialize on
// that lock instead of both computing from empty state and overwriting each
// other through an upsert.
func ensureRecordTx(ctx context.Context, tx pgx.Tx, ownerKey, lessonKey string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO progress_records (owner_key, lesson_key)
		VALUES ($1, $2)
		ON CONFLICT (owner_key, lesson_key) DO NOTHING
	`, ownerKey, lessonKey)
	return err
}

func getRecordTx(ctx context.Context, tx pgx.Tx, ownerKey, lessonKey string, forUpdate bool) (Record, error) {
	query := `
		SELECT visited_pages, quiz_score, stars, completed_at
		FROM progress_records
		WHERE owner_key = $1 AND lesson_key = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var raw []byte
	rec := Record{OwnerKey: ownerKey, LessonKey: lessonKey}
	err := tx.QueryRow(ctx, query, ownerKey, lessonKey).Scan(&raw, &rec.QuizScore, &rec.Stars, &rec.CompletedAt)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(raw, &rec.VisitedPages); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func listRecordsTx(ctx context.Context, tx pgx.Tx, ownerKey string) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT lesson_key, visited_pages, quiz_score, stars, completed_at
		FROM progress_records
		WHERE owner_key = $1
		ORDER BY lesson_key
	`, ownerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{OwnerKey: ownerKey}
		var raw []byte
		if err := rows.Scan(&rec.LessonKey, &raw, &rec.QuizScore, &rec.Stars, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rec.VisitedPages); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// updateRecordTx writes back a record whose row the transaction already
// holds locked.
func updateRecordTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	pages, err := json.Marshal(rec.VisitedPages)
	if err != nil {
		return err
	}
	if rec.VisitedPages == nil {
		pages = []byte("[]")
	}
	_, err = tx.Exec(ctx, `
		UPDATE progress_records
		SET visited_pages = $1, quiz_score = $2, stars = $3, completed_at = $4, updated_at = now()
		WHERE owner_key = $5 AND lesson_key = $6
	`, string(pages), rec.QuizScore, rec.Stars, rec.CompletedAt, rec.OwnerKey, rec.LessonKey)
	return err
}
