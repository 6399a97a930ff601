package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/render"
	"github.com/conorfennell/recall/internal/storage"
	syncpkg "github.com/conorfennell/recall/internal/sync"
	"github.com/conorfennell/recall/internal/web"
)

const usage = `usage: recall <command> [flags]

commands:
  sync        reconcile note sources into the store and render output files
  serve       run the review web server
  render      regenerate rendered note and card files
  reschedule  replay review histories through the scheduler
  advance     pull up to --count safe cards forward to today
  postpone    push up to --count safe cards past today
  leeches     list cards with repeated lapses
  search      run a query, e.g. recall search 'tag=math c.stability>=2'
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "--help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	flags := config.Flags()
	if err := flags.Parse(os.Args[2:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(flags)
	if err != nil {
		log.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, flags, log); err != nil {
		log.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg config.Config, flags *flag.FlagSet, log *slog.Logger) error {
	store, err := storage.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	sched := fsrs.NewScheduler()
	sched.DesiredRetention = cfg.DesiredRetention
	sched.MaximumInterval = float64(cfg.MaximumInterval)
	sched.EnableFuzz = cfg.EnableFuzz
	sched.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))

	syncer := syncpkg.New(store, sched, log, syncpkg.Options{
		ReposDir:         cfg.ReposDir,
		DesiredRetention: cfg.DesiredRetention,
	})
	renderer := render.New(store, log, cfg.RenderDir)

	switch command {
	case "sync":
		rep, err := syncer.Run(ctx, cfg.Sources)
		if err != nil {
			return err
		}
		for _, e := range rep.Errors {
			log.Warn("note skipped", "error", e)
		}
		_, err = renderer.RenderAll(ctx)
		return err

	case "render":
		_, err := renderer.RenderAll(ctx)
		return err

	case "serve":
		srv, err := web.NewServer(store, sched, log)
		if err != nil {
			return err
		}
		httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		log.Info("review server listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil

	case "reschedule":
		n, err := syncer.RescheduleAll(ctx)
		if err != nil {
			return err
		}
		log.Info("rescheduled", "cards", n)
		return nil

	case "advance", "postpone":
		count, _ := flags.GetInt("count")
		if count <= 0 {
			return fmt.Errorf("%s needs --count", command)
		}
		return reposition(ctx, store, sched, log, command, count)

	case "leeches":
		leeches, err := store.Leeches(ctx, cfg.LeechThreshold)
		if err != nil {
			return err
		}
		for _, c := range leeches {
			fmt.Printf("card %d (note %d, order %d) due %s\n", c.ID, c.NoteID, c.Order, c.Due.Format("2006-01-02"))
		}
		return nil

	case "search":
		if flags.NArg() == 0 {
			return fmt.Errorf("search needs a query argument")
		}
		ids, err := store.SearchNoteIDs(ctx, flags.Arg(0))
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// reposition collects reviewable cards with history and advances or
// postpones the safest count of them.
func reposition(ctx context.Context, store *storage.Store, sched *fsrs.Scheduler, log *slog.Logger, command string, count int) error {
	notes, err := store.ListNotes(ctx)
	if err != nil {
		return err
	}
	var cands []fsrs.Candidate
	for _, n := range notes {
		rows, err := store.CardsByNote(ctx, n.ID)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.State != domain.Review || c.SpecialState != domain.SpecialNone {
				continue
			}
			last, err := store.LastReview(ctx, c.ID)
			if err != nil {
				continue
			}
			cands = append(cands, fsrs.Candidate{Card: c, LastReviewedAt: last.ReviewedAt})
		}
	}

	now := time.Now().UTC()
	var moved []domain.Card
	if command == "advance" {
		safe := sched.AdvanceSafeCount(cands, now)
		log.Info("advance candidates", "total", len(cands), "safe", safe)
		moved = sched.Advance(cands, count, now)
	} else {
		safe := sched.PostponeSafeCount(cands, now)
		log.Info("postpone candidates", "total", len(cands), "safe", safe)
		moved = sched.Postpone(cands, count, now)
	}
	for _, c := range moved {
		if err := store.UpdateCardScheduling(ctx, c); err != nil {
			return err
		}
	}
	log.Info("repositioned", "command", command, "cards", len(moved))
	return nil
}
