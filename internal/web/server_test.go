package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := storage.Open(context.Background(), ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	srv, err := NewServer(store, fsrs.NewScheduler(), log)
	require.NoError(t, err)
	return srv, store
}

func seedCard(t *testing.T, store *storage.Store) domain.Card {
	t.Helper()
	ctx := context.Background()
	parserID, err := store.EnsureParser(ctx, "markdown")
	require.NoError(t, err)
	note := domain.Note{Data: "Paris is the capital of {{[o:1] France}}.", ParserID: parserID}
	require.NoError(t, store.CreateNote(ctx, &note))
	require.NoError(t, store.InsertCards(ctx, []domain.Card{{
		NoteID: note.ID, Order: 1, BackType: domain.BackFullNote, DesiredRetention: 0.9,
	}}))
	rows, err := store.CardsByNote(ctx, note.ID)
	require.NoError(t, err)
	return rows[0]
}

func TestDeckCounts(t *testing.T) {
	srv, store := newTestServer(t)
	seedCard(t, store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 new")
}

func TestNextReviewShowsFront(t *testing.T) {
	srv, store := newTestServer(t)
	seedCard(t, store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/review/next", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paris is the capital of [...].")
	assert.NotContains(t, rec.Body.String(), "France")
}

func TestShowAnswerRevealsBack(t *testing.T) {
	srv, store := newTestServer(t)
	card := seedCard(t, store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/review/answer/"+strconv.FormatInt(int64(card.ID), 10), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paris is the capital of France.")
}

func TestPostReviewRecordsAndAdvances(t *testing.T) {
	srv, store := newTestServer(t)
	card := seedCard(t, store)

	form := url.Values{"rating": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/review/"+strconv.FormatInt(int64(card.ID), 10),
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	logs, err := store.ReviewLogs(context.Background(), card.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.Good, logs[0].Rating)

	got, err := store.GetCard(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Learning, got.State)
}

func TestPostReviewRejectsBadRating(t *testing.T) {
	srv, store := newTestServer(t)
	card := seedCard(t, store)

	form := url.Values{"rating": {"9"}}
	req := httptest.NewRequest(http.MethodPost, "/review/"+strconv.FormatInt(int64(card.ID), 10),
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBury(t *testing.T) {
	srv, store := newTestServer(t)
	card := seedCard(t, store)

	req := httptest.NewRequest(http.MethodPost, "/bury/"+strconv.FormatInt(int64(card.ID), 10), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.GetCard(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UserBuried, got.SpecialState)
}

func TestSearchPage(t *testing.T) {
	srv, store := newTestServer(t)
	seedCard(t, store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=Paris", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paris is the capital of")
}
