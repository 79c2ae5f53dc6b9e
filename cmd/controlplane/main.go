package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sovereign/controlplane/internal/bucket"
	"github.com/sovereign/controlplane/internal/config"
	"github.com/sovereign/controlplane/internal/httpapi"
	"github.com/sovereign/controlplane/internal/render"
	"github.com/sovereign/controlplane/internal/script"
	"github.com/sovereign/controlplane/internal/source"
	"github.com/sovereign/controlplane/internal/stream"
	"github.com/sovereign/controlplane/internal/tmplctx"
	"github.com/sovereign/controlplane/internal/xdstemplate"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"templates", len(cfg.Templates),
		"sources", len(cfg.Sources.Items),
		"template_context", len(cfg.TemplateContext.Items),
		"keyed_bucketing", cfg.NodeMatching.SourceKey != "",
	)

	// --- Template registry ---
	registry := xdstemplate.NewRegistry()
	for _, t := range cfg.Templates {
		registry.Register(t)
	}

	// --- Embedded scripting runtime ---
	scripts := script.New()

	// --- Source poller (eager initial fetch happens inside NewRefresher) ---
	sourceRefresher, err := stream.NewRefresher(
		"sources",
		cfg.Sources.Interval(),
		fetchInstances(cfg, scripts, log),
		log,
	)
	if err != nil {
		log.Error("initial source refresh failed", "error", err)
		os.Exit(1)
	}

	// --- Context poller ---
	contextRefresher, err := stream.NewRefresher(
		"template_context",
		cfg.TemplateContext.Interval(),
		fetchContext(cfg, log),
		log,
	)
	if err != nil {
		log.Error("initial template_context refresh failed", "error", err)
		os.Exit(1)
	}

	// --- Render pipeline + HTTP surface ---
	pipeline := render.NewPipeline(registry, sourceRefresher.Cell(), contextRefresher.Cell(), scripts, log)
	handler := httpapi.NewHandler(pipeline, log)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Routes(),
	}

	// --- Startup ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("received shutdown signal")
		cancel()
	}()

	go sourceRefresher.Run(ctx)
	go contextRefresher.Run(ctx)

	go func() {
		<-ctx.Done()
		log.Info("shutting down HTTP surface")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown error", "error", err)
		}
	}()

	log.Info("discovery HTTP surface listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("HTTP surface failed", "error", err)
		os.Exit(1)
	}
}

// fetchInstances builds the FetchFunc the source refresher ticks: invoke
// every configured source driver serially, then bucket the aggregated
// payloads per the node_matching configuration.
func fetchInstances(cfg *config.Config, scripts *script.Runtime, log *slog.Logger) stream.FetchFunc[[]bucket.Package] {
	httpClient := &http.Client{}
	return func(ctx context.Context) ([]bucket.Package, error) {
		raw := make([][]byte, 0, len(cfg.Sources.Items))
		for i, src := range cfg.Sources.Items {
			payload, err := src.Fetch(ctx, scripts, httpClient)
			if err != nil {
				return nil, err
			}
			raw = append(raw, payload)
			log.Debug("fetched source", "index", i, "type", src.Type, "bytes", len(payload))
		}
		return bucket.Bucket(bucket.Config{SourceKey: cfg.NodeMatching.SourceKey}, raw)
	}
}

// fetchContext builds the FetchFunc the context refresher ticks: load every
// configured template_context entry serially into a name -> Parsed map.
func fetchContext(cfg *config.Config, log *slog.Logger) stream.FetchFunc[map[string]tmplctx.Parsed] {
	httpClient := &http.Client{}
	return func(ctx context.Context) (map[string]tmplctx.Parsed, error) {
		out := make(map[string]tmplctx.Parsed, len(cfg.TemplateContext.Items))
		for name, entry := range cfg.TemplateContext.Items {
			parsed, err := entry.Load(ctx, httpClient)
			if err != nil {
				return nil, err
			}
			out[name] = parsed
			log.Debug("loaded template context", "name", name)
		}
		return out, nil
	}
}
