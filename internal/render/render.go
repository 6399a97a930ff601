// Package render writes notes and card sides out as files. Every
// rendered file ends with a footer line carrying the sha256 of its
// body, which makes rendering idempotent: when the on-disk footer
// already matches, the file is skipped.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/recall/internal/cards"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/parser"
	"github.com/conorfennell/recall/internal/storage"
)

// ClozeMask replaces a concealed to-answer cloze without a hint.
const ClozeMask = "[...]"

const footerPrefix = "hash: "

type Renderer struct {
	store *storage.Store
	log   *slog.Logger
	dir   string
}

func New(store *storage.Store, log *slog.Logger, dir string) *Renderer {
	return &Renderer{store: store, log: log, dir: dir}
}

// Report counts one render pass.
type Report struct {
	Written int
	Skipped int
	Errors  []error
}

// RenderAll renders every note and its card sides under the output
// directory. IO failures are collected per note; a later pass repairs
// whatever this one missed.
func (r *Renderer) RenderAll(ctx context.Context) (Report, error) {
	var rep Report
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return rep, fmt.Errorf("create render dir: %w", err)
	}
	parsers, err := r.parsersByID(ctx)
	if err != nil {
		return rep, err
	}
	notes, err := r.store.ListNotes(ctx)
	if err != nil {
		return rep, err
	}
	for _, note := range notes {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		p, ok := parsers[note.ParserID]
		if !ok {
			rep.Errors = append(rep.Errors, fmt.Errorf("note %d: unknown parser id %d", note.ID, note.ParserID))
			continue
		}
		if err := r.renderNote(note, p, &rep); err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("note %d: %w", note.ID, err))
			r.log.Warn("render failed", "note", note.ID, "error", err)
		}
	}
	r.log.Info("render complete", "written", rep.Written, "skipped", rep.Skipped, "errors", len(rep.Errors))
	return rep, nil
}

func (r *Renderer) parsersByID(ctx context.Context) (map[int64]parser.Parseable, error) {
	rows, err := r.store.Parsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]parser.Parseable, len(rows))
	for _, row := range rows {
		p, err := parser.Find(row.Name)
		if err != nil {
			continue
		}
		out[row.ID] = p
	}
	return out, nil
}

// NoteFileName is the output name for a note body.
func NoteFileName(id domain.NoteID, ext string) string {
	return fmt.Sprintf("%04d.%s", id, ext)
}

// CardFileName is the output name for one side of a card.
func CardFileName(id domain.NoteID, order int, front bool, ext string) string {
	side := "back"
	if front {
		side = "front"
	}
	return fmt.Sprintf("%04d-%d-%s.%s", id, order, side, ext)
}

func (r *Renderer) renderNote(note domain.Note, p parser.Parseable, rep *Report) error {
	if err := r.writeFile(NoteFileName(note.ID, p.FileExtension()), note.Data, rep); err != nil {
		return err
	}
	list, err := cards.BuildCards(p, note.Data)
	if err != nil {
		return err
	}
	for _, c := range list {
		if c.Order == nil {
			continue
		}
		front := cards.RenderSide(c.Front, ClozeMask)
		back := cards.RenderSide(c.Back, ClozeMask)
		if err := r.writeFile(CardFileName(note.ID, *c.Order, true, p.FileExtension()), front, rep); err != nil {
			return err
		}
		if err := r.writeFile(CardFileName(note.ID, *c.Order, false, p.FileExtension()), back, rep); err != nil {
			return err
		}
	}
	return nil
}

// Footer returns the hash footer line for a body.
func Footer(body string) string {
	sum := sha256.Sum256([]byte(body))
	return footerPrefix + hex.EncodeToString(sum[:])
}

// writeFile writes body plus its hash footer, skipping the write when
// the on-disk footer already matches.
func (r *Renderer) writeFile(name, body string, rep *Report) error {
	path := filepath.Join(r.dir, name)
	footer := Footer(body)

	if existing, err := os.ReadFile(path); err == nil {
		if UpToDate(string(existing), footer) {
			rep.Skipped++
			return nil
		}
	}
	content := body
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += footer + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	rep.Written++
	return nil
}

// UpToDate reports whether a rendered file's trailing footer matches.
func UpToDate(content, footer string) bool {
	trimmed := strings.TrimRight(content, "\n")
	i := strings.LastIndex(trimmed, "\n")
	last := trimmed[i+1:]
	return last == footer
}
