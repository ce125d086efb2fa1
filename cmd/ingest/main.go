package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/classify"
	"github.com/psspl2021/global-trade-hub-sub009/internal/config"
	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
	"github.com/psspl2021/global-trade-hub-sub009/internal/dispatch"
	"github.com/psspl2021/global-trade-hub-sub009/internal/geo"
	"github.com/psspl2021/global-trade-hub-sub009/internal/httpx"
	"github.com/psspl2021/global-trade-hub-sub009/internal/logging"
	"github.com/psspl2021/global-trade-hub-sub009/internal/mq"
	"github.com/psspl2021/global-trade-hub-sub009/internal/throttle"
)

type eventRequest struct {
	Type        string `json:"type"`
	PageType    string `json:"page_type,omitempty"`
	Path        string `json:"path"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Product     string `json:"product,omitempty"`
	SessionID   string `json:"session_id"`
	ScrollDepth *int   `json:"scroll_depth_percent,omitempty"`
	RFQID       string `json:"rfq_id,omitempty"`
}

func (r eventRequest) toEvent() (contracts.InteractionEvent, error) {
	page := contracts.PageContext{
		PageType:    contracts.PageType(strings.ToUpper(strings.TrimSpace(r.PageType))),
		Path:        r.Path,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		Product:     r.Product,
		SessionID:   r.SessionID,
	}

	switch r.Type {
	case "page_view":
		return contracts.PageViewEvent{PageContext: page, ScrollDepth: r.ScrollDepth}, nil
	case "cta_click":
		return contracts.CTAClickEvent{PageContext: page}, nil
	case "rfq_submitted":
		return contracts.RFQSubmittedEvent{PageContext: page, RFQID: r.RFQID}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", r.Type)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("ingest", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer := mq.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopicSignals)
	defer writer.Close()

	queue := dispatch.NewQueue(cfg.DispatchQueueSize, func(ctx context.Context, key string, payload any) error {
		return mq.PublishJSON(ctx, writer, key, payload)
	}, log)
	queue.Start(ctx)
	defer queue.Close()

	resolver := geo.NewResolver(
		geo.NewClient(cfg.GeoAPIURL, cfg.GeoTimeout),
		cfg.GeoSessionTTL, cfg.GeoTimeout, log,
	)
	routeThrottle := throttle.NewSessionThrottle()

	if cfg.SimulatorTick > 0 {
		go runSimulator(ctx, queue, cfg.SimulatorTick, log)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"service":  "ingest",
			"dispatch": queue.Stats(),
		})
	})

	router.Post("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		var payload eventRequest
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		event, err := payload.toEvent()
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		if payload.SessionID == "" {
			payload.SessionID = uuid.NewString()
		}

		// dwell re-emits below the engagement cutoff carry no new intent
		if payload.Type == "page_view" && payload.ScrollDepth != nil && !classify.IsEngagedScroll(payload.ScrollDepth) {
			httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": false, "reason": "not_engaged"})
			return
		}

		key := payload.SessionID + "|" + payload.Path + "|" + payload.Type
		if payload.ScrollDepth != nil {
			key += "|scroll"
		}
		if !routeThrottle.ShouldEmit(key, cfg.RouteCooldown) {
			httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": false, "reason": "throttled"})
			return
		}

		geoCtx := resolver.Resolve(r.Context(), payload.SessionID, clientIP(r))
		signal := classify.Classify(event, geoCtx, time.Now().UTC())
		signal.ID = uuid.NewString()
		signal.SessionID = payload.SessionID

		if !queue.Enqueue(signal.Corridor().String(), signal) {
			// loss is accounted for in dispatch stats; the page never fails
			httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": false, "reason": "queue_full"})
			return
		}

		httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "signal_id": signal.ID})
	})

	router.Post("/v1/simulate", func(w http.ResponseWriter, r *http.Request) {
		type req struct {
			Count int `json:"count"`
		}
		body := req{Count: 10}
		_ = httpx.DecodeJSON(r, &body)

		if body.Count <= 0 {
			body.Count = 10
		}
		if body.Count > 500 {
			body.Count = 500
		}

		sent := 0
		for i := 0; i < body.Count; i++ {
			signal := randomSignal()
			if queue.Enqueue(signal.Corridor().String(), signal) {
				sent++
			}
		}

		httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"requested": body.Count, "enqueued": sent})
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

	log.Info("ingest listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("ingest server error", zap.Error(err))
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func runSimulator(ctx context.Context, queue *dispatch.Queue, tick time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			signal := randomSignal()
			if !queue.Enqueue(signal.Corridor().String(), signal) {
				log.Warn("simulator signal dropped")
			}
		}
	}
}

func randomSignal() contracts.Signal {
	countries := []struct{ code, name string }{
		{"AE", "United Arab Emirates"}, {"IN", "India"}, {"US", "United States"},
		{"DE", "Germany"}, {"NG", "Nigeria"}, {"BR", "Brazil"},
	}
	categories := []string{"steel", "chemicals", "textiles", "machinery", "packaging"}

	country := countries[rand.Intn(len(countries))]
	geoCtx := contracts.GeoContext{
		CountryCode: country.code,
		CountryName: country.name,
		Region:      "metro",
		IsDetected:  true,
	}
	category := categories[rand.Intn(len(categories))]
	page := contracts.PageContext{
		Path:      "/buy-" + category,
		Category:  category,
		SessionID: uuid.NewString(),
	}

	var event contracts.InteractionEvent
	switch rand.Intn(10) {
	case 0:
		event = contracts.RFQSubmittedEvent{PageContext: page, RFQID: uuid.NewString()}
	case 1, 2:
		event = contracts.CTAClickEvent{PageContext: page}
	default:
		event = contracts.PageViewEvent{PageContext: page}
	}

	signal := classify.Classify(event, geoCtx, time.Now().UTC())
	signal.ID = uuid.NewString()
	return signal
}
