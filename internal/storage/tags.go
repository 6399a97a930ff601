package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/search"
)

// ErrInvalidTag is returned for tag operations that would break the
// tag tree or the filtered-tag rules.
var ErrInvalidTag = errors.New("invalid tag")

const tagColumns = `id, parent_id, name, description, query, auto_delete`

func scanTag(row interface{ Scan(...any) error }) (domain.Tag, error) {
	var t domain.Tag
	err := row.Scan(&t.ID, &t.ParentID, &t.Name, &t.Description, &t.Query, &t.AutoDelete)
	return t, err
}

// Tags lists every tag, by name.
func (s *Store) Tags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tag ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var out []domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTag fetches one tag by name.
func (s *Store) GetTag(ctx context.Context, name string) (domain.Tag, error) {
	t, err := scanTag(s.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tag WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("tag %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return t, fmt.Errorf("get tag %q: %w", name, err)
	}
	return t, nil
}

// filteredTagNames returns the names of all filtered tags.
func (s *Store) filteredTagNames(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM tag WHERE query IS NOT NULL AND query != ''`)
	if err != nil {
		return nil, fmt.Errorf("filtered tag names: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag name: %w", err)
		}
		out[name] = true
	}
	return out, rows.Err()
}

// CreateTag inserts a tag. Filtered tags carry a query; the query may
// not match on other filtered tags, which keeps membership rebuilds
// single-pass.
func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	if tag.Name == "" {
		return fmt.Errorf("tag name required: %w", ErrInvalidTag)
	}
	if tag.Filtered() {
		filtered, err := s.filteredTagNames(ctx)
		if err != nil {
			return err
		}
		if err := search.VerifyFilteredTagQuery(*tag.Query, func(name string) bool {
			return filtered[name]
		}); err != nil {
			return fmt.Errorf("tag %q: %w", tag.Name, err)
		}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tag (parent_id, name, description, query, auto_delete) VALUES (?, ?, ?, ?, ?)`,
		tag.ParentID, tag.Name, tag.Description, tag.Query, tag.AutoDelete)
	if err != nil {
		return fmt.Errorf("create tag %q: %w", tag.Name, err)
	}
	tag.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create tag %q: %w", tag.Name, err)
	}
	return nil
}

// UpdateTag rewrites a tag row. A tag may not become its own parent.
func (s *Store) UpdateTag(ctx context.Context, tag domain.Tag) error {
	if tag.ParentID != nil && *tag.ParentID == tag.ID {
		return fmt.Errorf("tag %q cannot be its own parent: %w", tag.Name, ErrInvalidTag)
	}
	if tag.Filtered() {
		filtered, err := s.filteredTagNames(ctx)
		if err != nil {
			return err
		}
		delete(filtered, tag.Name)
		if err := search.VerifyFilteredTagQuery(*tag.Query, func(name string) bool {
			return filtered[name]
		}); err != nil {
			return fmt.Errorf("tag %q: %w", tag.Name, err)
		}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tag SET parent_id = ?, name = ?, description = ?, query = ?, auto_delete = ? WHERE id = ?`,
		tag.ParentID, tag.Name, tag.Description, tag.Query, tag.AutoDelete, tag.ID)
	if err != nil {
		return fmt.Errorf("update tag %q: %w", tag.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %q: %w", tag.Name, ErrNotFound)
	}
	return nil
}

// DeleteTag removes a tag and its memberships.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tag WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tag %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %d: %w", id, ErrNotFound)
	}
	return nil
}

// AssignTagToNote adds a manual membership. Filtered tags reject
// manual assignment; their membership comes only from their query.
func (s *Store) AssignTagToNote(ctx context.Context, tagID int64, noteID domain.NoteID) error {
	var query sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT query FROM tag WHERE id = ?`, tagID).Scan(&query)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tag %d: %w", tagID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("assign tag %d: %w", tagID, err)
	}
	if query.Valid && query.String != "" {
		return fmt.Errorf("tag %d is filtered, membership is query-driven: %w", tagID, ErrInvalidTag)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO note_tag (note_id, tag_id) VALUES (?, ?)`, noteID, tagID); err != nil {
		return fmt.Errorf("assign tag %d to note %d: %w", tagID, noteID, err)
	}
	return nil
}

// UnassignTagFromNote removes a manual membership.
func (s *Store) UnassignTagFromNote(ctx context.Context, tagID int64, noteID domain.NoteID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM note_tag WHERE note_id = ? AND tag_id = ?`, noteID, tagID); err != nil {
		return fmt.Errorf("unassign tag %d from note %d: %w", tagID, noteID, err)
	}
	return nil
}

// NoteTags lists a note's tags by name.
func (s *Store) NoteTags(ctx context.Context, noteID domain.NoteID) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tag
		 WHERE id IN (SELECT tag_id FROM note_tag WHERE note_id = ?) ORDER BY name`, noteID)
	if err != nil {
		return nil, fmt.Errorf("tags of note %d: %w", noteID, err)
	}
	defer rows.Close()
	var out []domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RebuildFilteredTag recomputes a filtered tag's memberships from its
// query: matching notes join the note side, matching cards the card
// side. With AutoDelete set, a rebuild that matches nothing deletes
// the tag instead. Returns whether the tag still exists.
func (s *Store) RebuildFilteredTag(ctx context.Context, tag domain.Tag) (bool, error) {
	if !tag.Filtered() {
		return true, fmt.Errorf("tag %q has no query: %w", tag.Name, ErrInvalidTag)
	}
	noteSQL, noteArgs, err := search.Compile(*tag.Query, search.ReturnNotes)
	if err != nil {
		return true, fmt.Errorf("tag %q query: %w", tag.Name, err)
	}
	cardSQL, cardArgs, err := search.Compile(*tag.Query, search.ReturnCards)
	if err != nil {
		return true, fmt.Errorf("tag %q query: %w", tag.Name, err)
	}
	alive := true
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tag WHERE tag_id = ?`, tag.ID); err != nil {
			return fmt.Errorf("clear note memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM card_tag WHERE tag_id = ?`, tag.ID); err != nil {
			return fmt.Errorf("clear card memberships: %w", err)
		}
		noteRes, err := tx.ExecContext(ctx,
			`INSERT INTO note_tag (note_id, tag_id) SELECT id, ? FROM (`+noteSQL+`)`,
			append([]any{tag.ID}, noteArgs...)...)
		if err != nil {
			return fmt.Errorf("rebuild note memberships: %w", err)
		}
		cardRes, err := tx.ExecContext(ctx,
			`INSERT INTO card_tag (card_id, tag_id) SELECT id, ? FROM (`+cardSQL+`)`,
			append([]any{tag.ID}, cardArgs...)...)
		if err != nil {
			return fmt.Errorf("rebuild card memberships: %w", err)
		}
		notes, _ := noteRes.RowsAffected()
		cards, _ := cardRes.RowsAffected()
		if tag.AutoDelete && notes == 0 && cards == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tag WHERE id = ?`, tag.ID); err != nil {
				return fmt.Errorf("auto-delete tag: %w", err)
			}
			alive = false
		}
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rebuild tag %q: %w", tag.Name, err)
	}
	return alive, nil
}

// RebuildFilteredTags recomputes every filtered tag.
func (s *Store) RebuildFilteredTags(ctx context.Context) error {
	tags, err := s.Tags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if !t.Filtered() {
			continue
		}
		if _, err := s.RebuildFilteredTag(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
