package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

const reviewLogColumns = `id, card_id, reviewed_at, rating, scheduler_name,
	scheduled_time, duration, previous_state`

func scanReviewLog(row interface{ Scan(...any) error }) (domain.ReviewLog, error) {
	var l domain.ReviewLog
	var reviewed int64
	err := row.Scan(&l.ID, &l.CardID, &reviewed, &l.Rating, &l.SchedulerName,
		&l.ScheduledTime, &l.Duration, &l.PreviousState)
	if err != nil {
		return l, err
	}
	l.ReviewedAt = time.Unix(reviewed, 0).UTC()
	return l, nil
}

// RecordReview appends a review log entry and applies the resulting
// card state in one transaction, so a log entry and its card update
// are always observed together.
func (s *Store) RecordReview(ctx context.Context, log domain.ReviewLog, updated domain.Card) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO review_log (card_id, reviewed_at, rating, scheduler_name,
			 scheduled_time, duration, previous_state) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			log.CardID, log.ReviewedAt.Unix(), log.Rating, log.SchedulerName,
			log.ScheduledTime, log.Duration, log.PreviousState,
		)
		if err != nil {
			return fmt.Errorf("insert review log: %w", err)
		}
		return updateCardScheduling(ctx, tx, updated)
	})
}

// ReviewLogs returns a card's review history, oldest first.
func (s *Store) ReviewLogs(ctx context.Context, cardID domain.CardID) ([]domain.ReviewLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewLogColumns+` FROM review_log WHERE card_id = ? ORDER BY reviewed_at, id`,
		cardID)
	if err != nil {
		return nil, fmt.Errorf("review logs of card %d: %w", cardID, err)
	}
	defer rows.Close()
	var out []domain.ReviewLog
	for rows.Next() {
		l, err := scanReviewLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LastReview returns a card's most recent review log, or ErrNotFound
// when the card has never been reviewed.
func (s *Store) LastReview(ctx context.Context, cardID domain.CardID) (domain.ReviewLog, error) {
	l, err := scanReviewLog(s.db.QueryRowContext(ctx,
		`SELECT `+reviewLogColumns+` FROM review_log
		 WHERE card_id = ? ORDER BY reviewed_at DESC, id DESC LIMIT 1`, cardID))
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("no reviews for card %d: %w", cardID, ErrNotFound)
	}
	if err != nil {
		return l, fmt.Errorf("last review of card %d: %w", cardID, err)
	}
	return l, nil
}

// LastReviews returns the most recent review time per card across all
// of a note's cards, keyed by card id. Cards without reviews are
// absent from the map.
func (s *Store) LastReviews(ctx context.Context, cardIDs []domain.CardID) (map[domain.CardID]time.Time, error) {
	out := make(map[domain.CardID]time.Time, len(cardIDs))
	for start := 0; start < len(cardIDs); start += maxSQLVariables {
		end := start + maxSQLVariables
		if end > len(cardIDs) {
			end = len(cardIDs)
		}
		chunk := cardIDs[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT card_id, MAX(reviewed_at) FROM review_log
			 WHERE card_id IN (?`+repeatBind(len(chunk)-1)+`) GROUP BY card_id`, args...)
		if err != nil {
			return nil, fmt.Errorf("last reviews: %w", err)
		}
		for rows.Next() {
			var id domain.CardID
			var at int64
			if err := rows.Scan(&id, &at); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan last review: %w", err)
			}
			out[id] = time.Unix(at, 0).UTC()
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}
