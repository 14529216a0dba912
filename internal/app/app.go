package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/wordduel/internal/account"
	"example.com/wordduel/internal/auth"
	"example.com/wordduel/internal/config"
	"example.com/wordduel/internal/game"
	"example.com/wordduel/internal/migrate"
	"example.com/wordduel/internal/store"
	"example.com/wordduel/internal/words"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool // nil with STORE_BACKEND=memory
	rdb *redis.Client // nil with BROKER_BACKEND=memory

	engine *game.Engine
	reaper *game.Reaper
	srv    *http.Server
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// --- Postgres ---
	if cfg.Store.Backend == config.BackendPostgres {
		if cfg.Postgres.RunMigrations {
			if err := migrate.Up(cfg.Postgres.URL, log); err != nil {
				return nil, err
			}
		}
		dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		a.db = dbpool
		if err := dbpool.Ping(pingCtx); err != nil {
			a.close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
	}

	// --- Redis ---
	if cfg.Broker.Backend == config.BackendRedis {
		a.rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
		}
	}

	// --- Words ---
	wordSrc, err := a.wordSource(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// --- Stores ---
	var (
		matches  game.Store
		accounts account.Accounts
		broker   game.Broker
	)
	if a.db != nil {
		matches = store.NewMatchStore(a.db)
		accounts = store.NewAccountStore(a.db)
	} else {
		matches = game.NewMemoryStore()
		accounts = store.NewMemoryAccountStore()
	}
	if a.rdb != nil {
		broker = game.NewRedisBroker(a.rdb, log)
	} else {
		broker = game.NewMemoryBroker()
	}

	// --- Game ---
	a.engine = game.NewEngine(game.Config{
		TurnTimeLimit:  cfg.Game.TurnTimeLimit,
		StartingHearts: cfg.Game.StartingHearts,
		StaleAfter:     cfg.Game.StaleAfter,
		ReapInterval:   cfg.Game.ReapInterval,
	}, matches, wordSrc, game.WithBroker(broker), game.WithLogger(log))
	a.reaper = game.NewReaper(a.engine, log)

	// --- HTTP ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret))
	authH := &account.Handler{
		Accounts: accounts,
		Players:  a.engine,
		Stats:    a.engine.Ratings(),
		Auth:     authSvc,
		TokenTTL: cfg.Auth.TokenTTL,
		Log:      log,
	}
	gameSrv := game.NewServer(a.engine, authSvc, cfg.Auth.ServiceToken, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", a.handleHealth)
	authH.RegisterRoutes(r)
	gameSrv.RegisterRoutes(r)

	a.srv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	return a, nil
}

// wordSource picks the catalogue: the embedded lists (or WORDS_DIR), served
// from the words table when Postgres is configured.
func (a *App) wordSource(ctx context.Context) (game.WordSource, error) {
	var (
		list *words.List
		err  error
	)
	if a.cfg.Words.Dir != "" {
		list, err = words.LoadDir(a.cfg.Words.Dir)
	} else {
		list, err = words.Embedded()
	}
	if err != nil {
		return nil, fmt.Errorf("word lists: %w", err)
	}
	a.log.Info("word lists loaded", "counts", list.Counts())

	if a.db == nil {
		return list, nil
	}
	pg := words.NewPGSource(a.db, list, a.log)
	if a.cfg.Words.Seed {
		if _, err := pg.Seed(ctx, list.Entries()); err != nil {
			return nil, err
		}
	}
	return pg, nil
}

func (a *App) Handler() http.Handler { return a.srv.Handler }

func (a *App) Engine() *game.Engine { return a.engine }

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.reaper.Start(gctx); err != nil {
		a.close()
		return err
	}

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr,
		"store", a.cfg.Store.Backend, "broker", a.cfg.Broker.Backend)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		if err := a.reaper.Stop(); err != nil {
			a.log.Warn("reaper stop", "err", err)
		}
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	a.close()
	return err
}

// close releases connections; best-effort.
func (a *App) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
