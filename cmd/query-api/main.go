package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/config"
	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
	"github.com/psspl2021/global-trade-hub-sub009/internal/corridor"
	"github.com/psspl2021/global-trade-hub-sub009/internal/httpx"
	"github.com/psspl2021/global-trade-hub-sub009/internal/logging"
	"github.com/psspl2021/global-trade-hub-sub009/internal/storage"
)

// boardEntry is the supplier-facing view: derived enums only, never the
// underlying counters.
type boardEntry struct {
	corridor.Snapshot
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	CountryCode string `json:"country_code"`
}

// adminEntry is the internal view carrying the raw aggregate too.
type adminEntry struct {
	contracts.CorridorAggregate
	corridor.Snapshot
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "query-api config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("query-api", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query-api logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("query-api database error", zap.Error(err))
	}
	defer dbPool.Close()

	if err := storage.RunMigrations(ctx, dbPool); err != nil {
		log.Fatal("query-api migration error", zap.Error(err))
	}

	repo := storage.NewRepository(dbPool)
	trendWindow := cfg.TrendWindow

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(15 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "query-api"})
	})

	// Supplier demand board: derived state only.
	router.Get("/v1/demand-board", func(w http.ResponseWriter, r *http.Request) {
		aggregates, err := repo.ListAggregates(r.Context(),
			r.URL.Query().Get("category"), r.URL.Query().Get("country"),
			parseLimit(r.URL.Query().Get("limit"), 50))
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		entries := make([]boardEntry, 0, len(aggregates))
		for _, agg := range aggregates {
			recent, prior, err := repo.TrendWindow(r.Context(), agg.Key(), trendWindow)
			if err != nil {
				log.Warn("trend window failed", zap.String("corridor", agg.Key().String()), zap.Error(err))
				continue
			}
			entries = append(entries, boardEntry{
				Category:    agg.Category,
				Subcategory: agg.Subcategory,
				CountryCode: agg.CountryCode,
				Snapshot:    corridor.Derive(agg, recent, prior),
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
	})

	// Admin corridor listing: raw aggregates plus derived snapshot.
	router.Get("/v1/corridors", func(w http.ResponseWriter, r *http.Request) {
		aggregates, err := repo.ListAggregates(r.Context(),
			r.URL.Query().Get("category"), r.URL.Query().Get("country"),
			parseLimit(r.URL.Query().Get("limit"), 100))
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		entries := make([]adminEntry, 0, len(aggregates))
		for _, agg := range aggregates {
			recent, prior, err := repo.TrendWindow(r.Context(), agg.Key(), trendWindow)
			if err != nil {
				log.Warn("trend window failed", zap.String("corridor", agg.Key().String()), zap.Error(err))
				continue
			}
			entries = append(entries, adminEntry{CorridorAggregate: agg, Snapshot: corridor.Derive(agg, recent, prior)})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
	})

	router.Get("/v1/corridors/state", func(w http.ResponseWriter, r *http.Request) {
		key := keyFromQuery(r)
		if key.Category == "" || key.CountryCode == "" {
			httpx.WriteError(w, http.StatusBadRequest, "category and country are required")
			return
		}

		agg, err := repo.GetAggregate(r.Context(), key)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if agg == nil {
			// a corridor nobody has touched is simply quiet
			httpx.WriteJSON(w, http.StatusOK, boardEntry{
				Category:    key.Category,
				Subcategory: key.Subcategory,
				CountryCode: key.CountryCode,
				Snapshot: corridor.Snapshot{
					State:              corridor.StateNoSignal,
					LaneRecommendation: corridor.LaneNone,
					Trend:              corridor.TrendFlat,
				},
			})
			return
		}

		recent, prior, err := repo.TrendWindow(r.Context(), key, trendWindow)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, boardEntry{
			Category:    agg.Category,
			Subcategory: agg.Subcategory,
			CountryCode: agg.CountryCode,
			Snapshot:    corridor.Derive(*agg, recent, prior),
		})
	})

	// Fulfillment hook: flips the lane flag that graduates a corridor to
	// Activated. Owned by the order subsystem, exposed here for it.
	router.Patch("/v1/corridors/lane", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Category    string `json:"category"`
			Subcategory string `json:"subcategory"`
			CountryCode string `json:"country_code"`
			Active      bool   `json:"active"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		key := contracts.CorridorKey{Category: body.Category, Subcategory: body.Subcategory, CountryCode: body.CountryCode}
		if err := repo.SetLaneActive(r.Context(), key, body.Active); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				httpx.WriteError(w, http.StatusNotFound, "corridor not found")
				return
			}
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"corridor": key.String(), "lane_active": body.Active})
	})

	router.Get("/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		alerts, err := repo.ListOpenAlerts(r.Context(),
			r.URL.Query().Get("type"), parseLimit(r.URL.Query().Get("limit"), 100))
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": alerts})
	})

	router.Patch("/v1/alerts/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := repo.MarkAlertRead(r.Context(), id); err != nil {
			handleAlertUpdateError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "is_read": true})
	})

	router.Patch("/v1/alerts/{id}/action", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ActorID string `json:"actor_id"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.ActorID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "actor_id is required")
			return
		}

		id := chi.URLParam(r, "id")
		if err := repo.MarkAlertActioned(r.Context(), id, body.ActorID); err != nil {
			handleAlertUpdateError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "is_actioned": true})
	})

	router.Get("/v1/dashboard/summary", func(w http.ResponseWriter, r *http.Request) {
		summary, err := repo.DashboardSummary(r.Context())
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, summary)
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("query-api listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("query-api server error", zap.Error(err))
	}
}

func keyFromQuery(r *http.Request) contracts.CorridorKey {
	q := r.URL.Query()
	return contracts.CorridorKey{
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		CountryCode: q.Get("country"),
	}
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func handleAlertUpdateError(w http.ResponseWriter, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteError(w, http.StatusNotFound, "alert not found")
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, err.Error())
}
