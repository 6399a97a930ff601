// Package sync reconciles note sources with the store: it walks source
// directories (cloning or pulling git sources first), ingests each
// note file into note and card rows, and applies card diffs so that
// review history survives note edits.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/cards"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/gitsource"
	"github.com/conorfennell/recall/internal/parser"
	"github.com/conorfennell/recall/internal/storage"
)

// Options tune a Syncer.
type Options struct {
	// ReposDir is where git sources are checked out.
	ReposDir string
	// DesiredRetention seeds new cards.
	DesiredRetention float64
}

// Syncer drives ingest and reschedule against one store.
type Syncer struct {
	store *storage.Store
	sched *fsrs.Scheduler
	log   *slog.Logger
	opts  Options
}

func New(store *storage.Store, sched *fsrs.Scheduler, log *slog.Logger, opts Options) *Syncer {
	if opts.ReposDir == "" {
		opts.ReposDir = "repos"
	}
	if opts.DesiredRetention == 0 {
		opts.DesiredRetention = fsrs.DefaultDesiredRetention
	}
	return &Syncer{store: store, sched: sched, log: log, opts: opts}
}

// Report counts the outcome of one sync run. Errors holds the per-note
// failures; one note's failure never aborts the batch.
type Report struct {
	Files   int
	Created int
	Updated int
	Errors  []error
}

func isGitSource(src string) bool {
	return strings.HasSuffix(src, ".git") ||
		strings.HasPrefix(src, "git@") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "http://")
}

// Run reconciles every source. Git sources are synced to a local
// checkout first; local paths are walked as-is.
func (s *Syncer) Run(ctx context.Context, sources []string) (Report, error) {
	var rep Report
	for _, src := range sources {
		dir := src
		if isGitSource(src) {
			local, err := gitsource.LocalPath(s.opts.ReposDir, src)
			if err != nil {
				rep.Errors = append(rep.Errors, err)
				s.log.Error("bad git source", "source", src, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, src, local, s.log); err != nil {
				rep.Errors = append(rep.Errors, err)
				s.log.Error("git sync failed", "source", src, "error", err)
				continue
			}
			dir = local
		}
		s.log.Info("reconciling source", "path", dir)
		if err := s.reconcileDir(ctx, dir, &rep); err != nil {
			return rep, err
		}
	}
	s.log.Info("sync complete",
		"files", rep.Files, "created", rep.Created, "updated", rep.Updated, "errors", len(rep.Errors))
	return rep, nil
}

// parserForFile picks a registered parser by file extension.
func parserForFile(name string) (parser.Parseable, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, p := range parser.All() {
		if p.FileExtension() == ext {
			return p, true
		}
	}
	return nil, false
}

func (s *Syncer) reconcileDir(ctx context.Context, dir string, rep *Report) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		p, ok := parserForFile(d.Name())
		if !ok {
			return nil
		}
		rep.Files++
		created, ingestErr := s.IngestFile(ctx, p, path)
		if ingestErr != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", path, ingestErr))
			s.log.Warn("note ingest failed", "path", path, "error", ingestErr)
			return nil
		}
		if created {
			rep.Created++
		} else {
			rep.Updated++
		}
		return nil
	})
}

// IngestFile ingests one note file, writing the file back when order
// pinning changed its text. Returns whether the note was created, as
// opposed to updated.
func (s *Syncer) IngestFile(ctx context.Context, p parser.Parseable, path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	created, updatedData, err := s.IngestNote(ctx, p, string(raw), path)
	if err != nil {
		return false, err
	}
	if updatedData != string(raw) {
		if err := os.WriteFile(path, []byte(updatedData), 0o644); err != nil {
			return created, fmt.Errorf("write back pinned orders: %w", err)
		}
	}
	return created, nil
}

type noteCustomData struct {
	SourcePath string `json:"source_path"`
}

// IngestNote creates or updates the note backed by sourcePath from
// data. Returns whether the note was created and the note text with
// orders pinned.
func (s *Syncer) IngestNote(ctx context.Context, p parser.Parseable, data, sourcePath string) (bool, string, error) {
	settings := extractNoteSettings(p, data)

	existing, err := s.store.FindNoteBySource(ctx, sourcePath)
	if err != nil {
		return false, "", err
	}

	if existing == nil {
		updated, err := s.createNote(ctx, p, data, sourcePath, settings)
		return true, updated, err
	}
	updated, err := s.updateNote(ctx, p, *existing, data, settings)
	return false, updated, err
}

func (s *Syncer) createNote(ctx context.Context, p parser.Parseable, data, sourcePath string, settings map[string]string) (string, error) {
	updatedData, parsed, err := cards.AddOrderToNoteData(p, data, 1)
	if err != nil {
		return "", err
	}
	if !contiguousOrders(parsed) {
		// user pins left gaps; normalize to 1..N
		updatedData, parsed, err = cards.RenumberNoteData(p, data)
		if err != nil {
			return "", err
		}
	}
	if err := cards.ValidateCards(parsed); err != nil {
		return "", err
	}

	parserID, err := s.store.EnsureParser(ctx, p.Name())
	if err != nil {
		return "", err
	}
	custom, err := json.Marshal(noteCustomData{SourcePath: sourcePath})
	if err != nil {
		return "", err
	}
	note := domain.Note{
		Data:       updatedData,
		Keywords:   settings["keywords"],
		ParserID:   parserID,
		CustomData: string(custom),
	}
	if err := s.store.CreateNote(ctx, &note); err != nil {
		return "", err
	}
	if err := s.store.InsertCards(ctx, s.cardRows(note.ID, parsed)); err != nil {
		return "", err
	}
	if err := s.applyTags(ctx, note.ID, settings["tags"]); err != nil {
		return "", err
	}
	if err := s.refreshLinks(ctx, note.ID, updatedData); err != nil {
		return "", err
	}
	return updatedData, nil
}

func (s *Syncer) updateNote(ctx context.Context, p parser.Parseable, note domain.Note, data string, settings map[string]string) (string, error) {
	// diff against the raw text first so user-pinned orders identify
	// surviving cards
	rawCards, err := cards.BuildCards(p, data)
	if err != nil {
		return "", err
	}
	if err := cards.ValidateCards(rawCards); err != nil {
		return "", err
	}
	oldRows, err := s.store.CardsByNote(ctx, note.ID)
	if err != nil {
		return "", err
	}
	oldOrders := make([]int, len(oldRows))
	for i, c := range oldRows {
		oldOrders[i] = c.Order
	}
	newOrders := make([]*int, len(rawCards))
	for i, c := range rawCards {
		newOrders[i] = c.Order
	}
	plan, err := cards.MatchCards(oldOrders, newOrders)
	if err != nil {
		return "", err
	}

	createdRows := make([]domain.Card, 0, len(plan.Creates))
	for _, pos := range plan.Creates {
		row := s.cardRow(note.ID, rawCards[pos-1])
		row.Order = pos
		createdRows = append(createdRows, row)
	}
	if err := s.store.ApplyMatchPlan(ctx, note.ID, plan, createdRows); err != nil {
		return "", err
	}

	// renumber so the text's pins match the stored 1..N orders
	updatedData, _, err := cards.RenumberNoteData(p, data)
	if err != nil {
		return "", err
	}
	note.Data = updatedData
	note.Keywords = settings["keywords"]
	if err := s.store.UpdateNote(ctx, &note); err != nil {
		return "", err
	}
	if err := s.applyTags(ctx, note.ID, settings["tags"]); err != nil {
		return "", err
	}
	if err := s.refreshLinks(ctx, note.ID, updatedData); err != nil {
		return "", err
	}
	return updatedData, nil
}

func contiguousOrders(list []cards.Card) bool {
	seen := make(map[int]bool, len(list))
	for _, c := range list {
		if c.Order == nil {
			return false
		}
		seen[*c.Order] = true
	}
	for i := 1; i <= len(list); i++ {
		if !seen[i] {
			return false
		}
	}
	return true
}

func (s *Syncer) cardRow(noteID domain.NoteID, c cards.Card) domain.Card {
	row := domain.Card{
		NoteID:           noteID,
		BackType:         c.BackType,
		DesiredRetention: s.opts.DesiredRetention,
		State:            domain.New,
		Due:              time.Now().UTC(),
		CustomData:       "",
	}
	if c.Order != nil {
		row.Order = *c.Order
	}
	if c.IsSuspended != nil && *c.IsSuspended {
		row.SpecialState = domain.Suspended
	}
	return row
}

func (s *Syncer) cardRows(noteID domain.NoteID, list []cards.Card) []domain.Card {
	rows := make([]domain.Card, len(list))
	for i, c := range list {
		rows[i] = s.cardRow(noteID, c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Order < rows[j].Order })
	return rows
}

// applyTags assigns the named plain tags, creating missing ones.
// Filtered tags reject manual membership at the store.
func (s *Syncer) applyTags(ctx context.Context, noteID domain.NoteID, tagList string) error {
	for _, name := range strings.Split(tagList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag, err := s.store.GetTag(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			tag = domain.Tag{Name: name}
			if err := s.store.CreateTag(ctx, &tag); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if err := s.store.AssignTagToNote(ctx, tag.ID, noteID); err != nil {
			return err
		}
	}
	return nil
}

var keywordRefPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// refreshLinks regenerates the note's link set from [[keyword]]
// references in its text. Unresolved references persist with a nil
// linked note so a later ingest can resolve them.
func (s *Syncer) refreshLinks(ctx context.Context, noteID domain.NoteID, data string) error {
	var links []domain.NoteLink
	for i, m := range keywordRefPattern.FindAllStringSubmatch(data, -1) {
		keyword := strings.TrimSpace(m[1])
		link := domain.NoteLink{
			ParentNoteID:    noteID,
			Order:           i + 1,
			SearchedKeyword: keyword,
		}
		target, err := s.store.FindNoteByKeyword(ctx, keyword)
		if err != nil {
			return err
		}
		if target != nil && target.ID != noteID {
			link.LinkedNoteID = &target.ID
			matched := keyword
			link.MatchedKeyword = &matched
		}
		links = append(links, link)
	}
	return s.store.ReplaceNoteLinks(ctx, noteID, links)
}

// ChangeDesiredRetention updates one card's retention target and, when
// the card has review history, reschedules it against the new target.
func (s *Syncer) ChangeDesiredRetention(ctx context.Context, cardID domain.CardID, retention float64) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	card.DesiredRetention = retention
	if err := s.store.SetDesiredRetention(ctx, cardID, retention); err != nil {
		return err
	}
	logs, err := s.store.ReviewLogs(ctx, cardID)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}
	out, err := s.sched.Reschedule([]fsrs.RescheduleItem{{Card: card, Logs: logs}})
	if err != nil {
		return err
	}
	return s.store.UpdateCardScheduling(ctx, out[0])
}

// RescheduleAll replays every reviewed card's history through the
// scheduler, repairing drift after parameter changes, then spreads
// each note's sibling dues apart within their fuzz windows.
func (s *Syncer) RescheduleAll(ctx context.Context) (int, error) {
	notes, err := s.store.ListNotes(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, n := range notes {
		rows, err := s.store.CardsByNote(ctx, n.ID)
		if err != nil {
			return changed, err
		}
		var items []fsrs.RescheduleItem
		for _, c := range rows {
			logs, err := s.store.ReviewLogs(ctx, c.ID)
			if err != nil {
				return changed, err
			}
			if len(logs) == 0 {
				continue
			}
			items = append(items, fsrs.RescheduleItem{Card: c, Logs: logs})
		}
		if len(items) == 0 {
			continue
		}
		out, err := s.sched.Reschedule(items)
		if err != nil {
			return changed, err
		}
		ids := make([]domain.CardID, len(out))
		for i, c := range out {
			ids[i] = c.ID
		}
		last, err := s.store.LastReviews(ctx, ids)
		if err != nil {
			return changed, err
		}
		if dues, ok := s.sched.DisperseSiblings(out, last, time.Now()); ok {
			for i := range out {
				if due, found := dues[out[i].ID]; found {
					out[i].Due = due
				}
			}
		} else {
			s.log.Warn("sibling dispersion skipped", "note_id", n.ID)
		}
		for _, c := range out {
			if err := s.store.UpdateCardScheduling(ctx, c); err != nil {
				return changed, err
			}
			changed++
		}
	}
	return changed, nil
}

// extractNoteSettings reads comment-line settings such as
// "keywords: a,b" from the top of a note, using the parser's comment
// and delimiter conventions.
func extractNoteSettings(p parser.Parseable, data string) map[string]string {
	prefix, suffix, _ := strings.Cut(p.ConstructComment("\x00"), "\x00")
	kv := p.NoteSettingsKeys().KeyValueDelim

	out := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, strings.TrimSpace(prefix)) {
			break
		}
		body := strings.TrimPrefix(line, strings.TrimSpace(prefix))
		if suffix != "" {
			body = strings.TrimSuffix(body, strings.TrimSpace(suffix))
		}
		key, value, ok := strings.Cut(body, kv)
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}
