package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/search"
)

// SearchNoteIDs runs a query in note-return mode.
func (s *Store) SearchNoteIDs(ctx context.Context, query string) ([]domain.NoteID, error) {
	sqlStr, args, err := search.Compile(query, search.ReturnNotes)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()
	var out []domain.NoteID
	for rows.Next() {
		var id domain.NoteID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SearchCardIDs runs a query in card-return mode.
func (s *Store) SearchCardIDs(ctx context.Context, query string) ([]domain.CardID, error) {
	sqlStr, args, err := search.Compile(query, search.ReturnCards)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search cards: %w", err)
	}
	defer rows.Close()
	var out []domain.CardID
	for rows.Next() {
		var id domain.CardID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan card id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SearchCards resolves a card query to full rows.
func (s *Store) SearchCards(ctx context.Context, query string) ([]domain.Card, error) {
	ids, err := s.SearchCardIDs(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Card, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCard(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
