// Package web serves a minimal review surface: a due queue, card
// fronts and backs, and rating submission.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/cards"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/parser"
	"github.com/conorfennell/recall/internal/render"
	"github.com/conorfennell/recall/internal/storage"
)

//go:embed all:templates
var templateFiles embed.FS

const queueLimit = 100

// Server holds the dependencies for the HTTP server.
type Server struct {
	store     *storage.Store
	sched     *fsrs.Scheduler
	router    *http.ServeMux
	templates *template.Template
	log       *slog.Logger
}

// NewServer creates and configures a server over one store.
func NewServer(store *storage.Store, sched *fsrs.Scheduler, log *slog.Logger) (*Server, error) {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		store:     store,
		sched:     sched,
		router:    http.NewServeMux(),
		templates: tpl,
		log:       log,
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleDeck())
	s.router.HandleFunc("/review/next", s.handleNextReview())
	s.router.HandleFunc("/review/answer/", s.handleShowAnswer())
	s.router.HandleFunc("/review/", s.handlePostReview())
	s.router.HandleFunc("/bury/", s.handleBury())
	s.router.HandleFunc("/search", s.handleSearch())
}

// cardView is the template payload for one card side.
type cardView struct {
	ID      domain.CardID
	Front   string
	Back    string
	State   string
	Ratings []struct {
		ID          domain.Rating
		Description string
	}
}

// sideTexts materializes the rendered front and back of a card row.
func (s *Server) sideTexts(r *http.Request, row domain.Card) (front, back string, err error) {
	ctx := r.Context()
	note, err := s.store.GetNote(ctx, row.NoteID)
	if err != nil {
		return "", "", err
	}
	parsers, err := s.store.Parsers(ctx)
	if err != nil {
		return "", "", err
	}
	var p parser.Parseable
	for _, pr := range parsers {
		if pr.ID == note.ParserID {
			p, err = parser.Find(pr.Name)
			if err != nil {
				return "", "", err
			}
		}
	}
	if p == nil {
		return "", "", fmt.Errorf("note %d: parser %d not registered", note.ID, note.ParserID)
	}
	list, err := cards.BuildCards(p, note.Data)
	if err != nil {
		return "", "", err
	}
	for _, c := range list {
		if c.Order != nil && *c.Order == row.Order {
			return cards.RenderSide(c.Front, render.ClozeMask), cards.RenderSide(c.Back, render.ClozeMask), nil
		}
	}
	return "", "", fmt.Errorf("card order %d not found in note %d", row.Order, note.ID)
}

func (s *Server) view(r *http.Request, row domain.Card) (cardView, error) {
	front, back, err := s.sideTexts(r, row)
	if err != nil {
		return cardView{}, err
	}
	return cardView{
		ID:      row.ID,
		Front:   front,
		Back:    back,
		State:   row.State.String(),
		Ratings: fsrs.Ratings(),
	}, nil
}

func (s *Server) handleDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := s.store.DueCards(r.Context(), time.Now().UTC(), queueLimit)
		if err != nil {
			s.fail(w, "load due cards", err)
			return
		}
		fresh, err := s.store.NewCards(r.Context(), queueLimit)
		if err != nil {
			s.fail(w, "load new cards", err)
			return
		}
		data := map[string]interface{}{
			"DueCount":    len(due),
			"NewCount":    len(fresh),
			"HasDueCards": len(due)+len(fresh) > 0,
		}
		s.templates.ExecuteTemplate(w, "deck", data)
	}
}

// nextCard picks the next card to show: due cards first, then new.
func (s *Server) nextCard(r *http.Request) (*domain.Card, error) {
	due, err := s.store.DueCards(r.Context(), time.Now().UTC(), 1)
	if err != nil {
		return nil, err
	}
	if len(due) > 0 {
		return &due[0], nil
	}
	fresh, err := s.store.NewCards(r.Context(), 1)
	if err != nil {
		return nil, err
	}
	if len(fresh) > 0 {
		return &fresh[0], nil
	}
	return nil, nil
}

func (s *Server) handleNextReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.nextCard(r)
		if err != nil {
			s.fail(w, "next card", err)
			return
		}
		if card == nil {
			s.templates.ExecuteTemplate(w, "done", nil)
			return
		}
		v, err := s.view(r, *card)
		if err != nil {
			s.fail(w, "materialize card", err)
			return
		}
		s.templates.ExecuteTemplate(w, "card_front", v)
	}
}

func (s *Server) cardFromPath(r *http.Request, prefix string) (domain.Card, error) {
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return domain.Card{}, fmt.Errorf("bad card id %q", idStr)
	}
	return s.store.GetCard(r.Context(), domain.CardID(id))
}

func (s *Server) handleShowAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.cardFromPath(r, "/review/answer/")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		v, err := s.view(r, card)
		if err != nil {
			s.fail(w, "materialize card", err)
			return
		}
		s.templates.ExecuteTemplate(w, "card_back", v)
	}
}

func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		card, err := s.cardFromPath(r, "/review/")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		rating, err := strconv.Atoi(r.PostFormValue("rating"))
		if err != nil {
			http.Error(w, "Invalid rating", http.StatusBadRequest)
			return
		}
		duration, _ := strconv.Atoi(r.PostFormValue("duration"))

		var last *domain.ReviewLog
		if prev, err := s.store.LastReview(r.Context(), card.ID); err == nil {
			last = &prev
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.fail(w, "load last review", err)
			return
		}

		updated, log, err := s.sched.Schedule(card, last, domain.Rating(rating), time.Now().UTC(), time.Duration(duration)*time.Second)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.RecordReview(r.Context(), log, updated); err != nil {
			s.fail(w, "record review", err)
			return
		}
		s.handleNextReview()(w, r)
	}
}

func (s *Server) handleBury() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		card, err := s.cardFromPath(r, "/bury/")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		buried, err := fsrs.Bury(card)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.SetSpecialState(r.Context(), buried.ID, buried.SpecialState); err != nil {
			s.fail(w, "bury card", err)
			return
		}
		s.handleNextReview()(w, r)
	}
}

func (s *Server) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		data := map[string]interface{}{"Query": query}
		if query != "" {
			ids, err := s.store.SearchNoteIDs(r.Context(), query)
			if err != nil {
				data["Error"] = err.Error()
			} else {
				notes := make([]domain.Note, 0, len(ids))
				for _, id := range ids {
					n, err := s.store.GetNote(r.Context(), id)
					if err != nil {
						s.fail(w, "load note", err)
						return
					}
					notes = append(notes, n)
				}
				data["Notes"] = notes
			}
		}
		s.templates.ExecuteTemplate(w, "search", data)
	}
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.log.Error(what, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
