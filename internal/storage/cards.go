package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/cards"
	"github.com/conorfennell/recall/internal/domain"
)

const cardColumns = `id, note_id, card_order, back_type, stability, difficulty,
	desired_retention, state, due, special_state, custom_data, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (domain.Card, error) {
	var c domain.Card
	var due, created, updated int64
	err := row.Scan(&c.ID, &c.NoteID, &c.Order, &c.BackType, &c.Stability, &c.Difficulty,
		&c.DesiredRetention, &c.State, &due, &c.SpecialState, &c.CustomData, &created, &updated)
	if err != nil {
		return c, err
	}
	c.Due = time.Unix(due, 0).UTC()
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

// GetCard fetches one card by id.
func (s *Store) GetCard(ctx context.Context, id domain.CardID) (domain.Card, error) {
	c, err := scanCard(s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM card WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("get card %d: %w", id, err)
	}
	return c, nil
}

// CardsByNote lists a note's cards in order.
func (s *Store) CardsByNote(ctx context.Context, noteID domain.NoteID) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM card WHERE note_id = ? ORDER BY card_order`, noteID)
	if err != nil {
		return nil, fmt.Errorf("cards of note %d: %w", noteID, err)
	}
	defer rows.Close()
	var out []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertCards(ctx context.Context, ex execer, list []domain.Card) error {
	const bind = 13
	now := time.Now().UTC().Unix()
	for start := 0; start < len(list); start += maxSQLVariables / bind {
		end := start + maxSQLVariables/bind
		if end > len(list) {
			end = len(list)
		}
		chunk := list[start:end]
		var sb strings.Builder
		sb.WriteString(`INSERT INTO card (note_id, card_order, back_type, stability, difficulty,
			desired_retention, state, due, special_state, custom_data, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(chunk)*bind)
		for i, c := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			created := c.CreatedAt.Unix()
			if c.CreatedAt.IsZero() {
				created = now
			}
			args = append(args, c.NoteID, c.Order, c.BackType, c.Stability, c.Difficulty,
				c.DesiredRetention, c.State, c.Due.Unix(), c.SpecialState, c.CustomData,
				created, now)
		}
		if _, err := ex.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert cards: %w", err)
		}
	}
	return nil
}

// InsertCards bulk-inserts cards, chunking to stay under the bind
// parameter limit.
func (s *Store) InsertCards(ctx context.Context, list []domain.Card) error {
	return insertCards(ctx, s.db, list)
}

// UpdateCardScheduling persists the scheduling outcome of a review or
// reschedule.
func (s *Store) UpdateCardScheduling(ctx context.Context, c domain.Card) error {
	return updateCardScheduling(ctx, s.db, c)
}

func updateCardScheduling(ctx context.Context, ex execer, c domain.Card) error {
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := ex.ExecContext(ctx,
		`UPDATE card SET stability = ?, difficulty = ?, state = ?, due = ?,
		 special_state = ?, custom_data = ?, updated_at = ? WHERE id = ?`,
		c.Stability, c.Difficulty, c.State, c.Due.Unix(),
		c.SpecialState, c.CustomData, updatedAt.Unix(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update card %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// SetDesiredRetention changes a single card's retention target.
func (s *Store) SetDesiredRetention(ctx context.Context, id domain.CardID, retention float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE card SET desired_retention = ?, updated_at = ? WHERE id = ?`,
		retention, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("set retention on card %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetSpecialState flips a card's lifecycle flag.
func (s *Store) SetSpecialState(ctx context.Context, id domain.CardID, st domain.SpecialState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE card SET special_state = ?, updated_at = ? WHERE id = ?`,
		st, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("set special state on card %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	return nil
}

// ApplyMatchPlan reconciles a note's card rows with a differ plan:
// moved cards keep their row and history, deleted orders drop, created
// cards insert fresh. Runs in one transaction; orders stay unique
// throughout by parking moved rows on negative orders first.
func (s *Store) ApplyMatchPlan(ctx context.Context, noteID domain.NoteID, plan cards.MatchPlan, created []domain.Card) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, o := range plan.Deletes {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM card WHERE note_id = ? AND card_order = ?`, noteID, o); err != nil {
				return fmt.Errorf("delete card order %d: %w", o, err)
			}
		}
		for _, mv := range plan.Moves {
			if _, err := tx.ExecContext(ctx,
				`UPDATE card SET card_order = ? WHERE note_id = ? AND card_order = ?`,
				-mv[1], noteID, mv[0]); err != nil {
				return fmt.Errorf("move card order %d to %d: %w", mv[0], mv[1], err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE card SET card_order = -card_order WHERE note_id = ? AND card_order < 0`, noteID); err != nil {
			return fmt.Errorf("settle moved cards: %w", err)
		}
		return insertCards(ctx, tx, created)
	})
}

// DueCards lists reviewable cards due at or before now, oldest first.
func (s *Store) DueCards(ctx context.Context, now time.Time, limit int) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM card
		 WHERE due <= ? AND special_state = ? AND state != ?
		 ORDER BY due, id LIMIT ?`,
		now.Unix(), domain.SpecialNone, domain.New, limit)
	if err != nil {
		return nil, fmt.Errorf("due cards: %w", err)
	}
	defer rows.Close()
	var out []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// NewCards lists unseen cards, oldest first.
func (s *Store) NewCards(ctx context.Context, limit int) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM card
		 WHERE state = ? AND special_state = ?
		 ORDER BY id LIMIT ?`,
		domain.New, domain.SpecialNone, limit)
	if err != nil {
		return nil, fmt.Errorf("new cards: %w", err)
	}
	defer rows.Close()
	var out []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Leeches lists cards lapsed at least threshold times, most lapsed
// first.
func (s *Store) Leeches(ctx context.Context, threshold int) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM card WHERE id IN (
			SELECT card_id FROM review_log WHERE rating = ?
			GROUP BY card_id HAVING COUNT(*) >= ?
		 ) ORDER BY (
			SELECT COUNT(*) FROM review_log rl WHERE rl.card_id = card.id AND rl.rating = ?
		 ) DESC, id`,
		domain.Again, threshold, domain.Again)
	if err != nil {
		return nil, fmt.Errorf("leeches: %w", err)
	}
	defer rows.Close()
	var out []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
