package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/auth"
	"github.com/procurelab/bidwise/internal/chat"
	"github.com/procurelab/bidwise/internal/docparse"
	"github.com/procurelab/bidwise/internal/fetch"
	"github.com/procurelab/bidwise/internal/llm"
	"github.com/procurelab/bidwise/internal/search"
	"github.com/procurelab/bidwise/internal/sourcing"
	"github.com/procurelab/bidwise/internal/store"
	"github.com/procurelab/bidwise/internal/telemetry"
)

// Run wires every dependency and serves the API until the listener stops.
func Run(cfgPath, addr string) error {
	cfg := config.LoadConfig(cfgPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	searchClient := sourcing.NewWebSearchClient(cfg.Search)
	queryClient := sourcing.NewStructuredQueryClient(cfg.Catalog)
	orch := sourcing.NewOrchestrator(searchClient, queryClient, cfg.Catalog, tele)

	extractModel := cfg.LLM.Routing.Extraction
	if extractModel == "" {
		extractModel = cfg.LLM.Routing.Fallback
	}
	extractor := sourcing.NewExtractor(provider, extractModel)
	chatManager := chat.NewManager(provider, cfg.LLM.Routing, tele)
	citations := search.NewCitationIndex()

	secret, err := auth.LoadSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	(&AuthHandler{Store: st, Secret: secret}).Register(api.Group("/auth"))

	protected := api.Group("")
	protected.Use(auth.EchoMiddleware(secret))
	protected.GET("/me", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"user_id": c.Get("user_id").(string)})
	})

	convs := protected.Group("/conversations")
	(&ConversationsHandler{Store: st, Citations: citations}).Register(convs)

	sh := &SourcingHandler{
		Store:     st,
		Orch:      orch,
		Extractor: extractor,
		Chat:      chatManager,
		Citations: citations,
		Docs:      docparse.NewRegistry(docparse.PlainText{}),
		Telemetry: tele,
		Config:    cfg,
		Logger:    log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	sh.Register(protected, convs)

	(&WatchesHandler{Store: st, Config: cfg}).Register(protected.Group("/watches"))

	(&FetchHandler{
		Fetcher: fetch.Fetcher{Timeout: cfg.Fetch.Timeout, MaxChars: cfg.Fetch.MaxChars},
		Enabled: cfg.Fetch.Enabled,
	}).Register(protected.Group("/fetch"))

	if cfg.Watch.Enabled {
		if cfg.Storage.Redis.Host == "" || cfg.Storage.Redis.Port == "" {
			return fmt.Errorf("redis not configured (storage.redis.host/port)")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		sched := &Scheduler{
			Store:    st,
			Query:    queryClient,
			Rdb:      rdb,
			Catalog:  cfg.Catalog,
			Stop:     make(chan struct{}),
			Interval: cfg.Watch.Interval,
		}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.Server.Address
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10010"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
