package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// EnsureParser returns the id of the named parser, creating the row on
// first use.
func (s *Store) EnsureParser(ctx context.Context, name string) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO parser (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("ensure parser %q: %w", name, err)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM parser WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure parser %q: %w", name, err)
	}
	return id, nil
}

// Parsers lists the registered parser rows.
func (s *Store) Parsers(ctx context.Context) ([]domain.ParserRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM parser ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list parsers: %w", err)
	}
	defer rows.Close()
	var out []domain.ParserRow
	for rows.Next() {
		var p domain.ParserRow
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan parser: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateNote inserts a note and fills in its id and timestamps.
func (s *Store) CreateNote(ctx context.Context, note *domain.Note) error {
	now := time.Now().UTC().Truncate(time.Second)
	note.CreatedAt = now
	note.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO note (data, keywords, parser_id, custom_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		note.Data, note.Keywords, note.ParserID, note.CustomData,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	note.ID = domain.NoteID(id)
	return nil
}

func scanNote(row interface{ Scan(...any) error }) (domain.Note, error) {
	var n domain.Note
	var created, updated int64
	err := row.Scan(&n.ID, &n.Data, &n.Keywords, &n.ParserID, &n.CustomData, &created, &updated)
	if err != nil {
		return n, err
	}
	n.CreatedAt = time.Unix(created, 0).UTC()
	n.UpdatedAt = time.Unix(updated, 0).UTC()
	return n, nil
}

const noteColumns = `id, data, keywords, parser_id, custom_data, created_at, updated_at`

// GetNote fetches one note by id.
func (s *Store) GetNote(ctx context.Context, id domain.NoteID) (domain.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM note WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return n, fmt.Errorf("get note %d: %w", id, err)
	}
	return n, nil
}

// UpdateNote persists a note's data, keywords and custom data.
func (s *Store) UpdateNote(ctx context.Context, note *domain.Note) error {
	note.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`UPDATE note SET data = ?, keywords = ?, custom_data = ?, updated_at = ? WHERE id = ?`,
		note.Data, note.Keywords, note.CustomData, note.UpdatedAt.Unix(), note.ID,
	)
	if err != nil {
		return fmt.Errorf("update note %d: %w", note.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("note %d: %w", note.ID, ErrNotFound)
	}
	return nil
}

// DeleteNote removes a note; cards, links and tag rows cascade.
func (s *Store) DeleteNote(ctx context.Context, id domain.NoteID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM note WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListNotes returns all notes ordered by id.
func (s *Store) ListNotes(ctx context.Context) ([]domain.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM note ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	var out []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// FindNoteByKeyword resolves a keyword against the keyword index. The
// first note (lowest id) whose keyword list contains the keyword wins.
func (s *Store) FindNoteByKeyword(ctx context.Context, keyword string) (*domain.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM note WHERE keywords LIKE ? ORDER BY id`,
		"%"+keyword+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find note by keyword: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		// LIKE is a prefilter; confirm against the split list
		for _, k := range n.KeywordList() {
			if strings.EqualFold(k, keyword) {
				return &n, nil
			}
		}
	}
	return nil, rows.Err()
}

// FindNoteBySource resolves the note ingested from a source file path,
// recorded in custom_data.
func (s *Store) FindNoteBySource(ctx context.Context, sourcePath string) (*domain.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM note WHERE json_extract(custom_data, '$.source_path') = ?`,
		sourcePath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find note by source %q: %w", sourcePath, err)
	}
	return &n, nil
}

// ReplaceNoteLinks swaps a note's link set atomically.
func (s *Store) ReplaceNoteLinks(ctx context.Context, noteID domain.NoteID, links []domain.NoteLink) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_link WHERE parent_note_id = ?`, noteID); err != nil {
			return fmt.Errorf("clear note links: %w", err)
		}
		const bind = 5
		for start := 0; start < len(links); start += maxSQLVariables / bind {
			end := start + maxSQLVariables/bind
			if end > len(links) {
				end = len(links)
			}
			chunk := links[start:end]
			var sb strings.Builder
			sb.WriteString(`INSERT INTO note_link (parent_note_id, linked_note_id, link_order, searched_keyword, matched_keyword) VALUES `)
			args := make([]any, 0, len(chunk)*bind)
			for i, l := range chunk {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString("(?, ?, ?, ?, ?)")
				args = append(args, noteID, l.LinkedNoteID, l.Order, l.SearchedKeyword, l.MatchedKeyword)
			}
			if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
				return fmt.Errorf("insert note links: %w", err)
			}
		}
		return nil
	})
}

// NoteLinks lists a note's links in order.
func (s *Store) NoteLinks(ctx context.Context, noteID domain.NoteID) ([]domain.NoteLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parent_note_id, linked_note_id, link_order, searched_keyword, matched_keyword
		 FROM note_link WHERE parent_note_id = ? ORDER BY link_order`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note links: %w", err)
	}
	defer rows.Close()
	var out []domain.NoteLink
	for rows.Next() {
		var l domain.NoteLink
		if err := rows.Scan(&l.ParentNoteID, &l.LinkedNoteID, &l.Order, &l.SearchedKeyword, &l.MatchedKeyword); err != nil {
			return nil, fmt.Errorf("scan note link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
