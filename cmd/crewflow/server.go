package main

import (
	"context"
	"net/http"

	"github.com/BaSui01/crewflow/api/handlers"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// newHandler 注册路由并套上中间件链
func newHandler(a *app) http.Handler {
	health := handlers.NewHealthHandler(Version, a.logger)
	for _, check := range a.healthChecks() {
		health.RegisterCheck(check)
	}
	crewHandler := handlers.NewCrewHandler(a.runner, a.logger)
	streamHandler := handlers.NewStreamHandler(a.runner, a.logger)
	streamHandler.OriginPatterns = a.cfg.Server.WSOriginPatterns

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/crews", crewHandler.HandleListCrews)
	mux.HandleFunc("POST /api/v1/crews/{name}/kickoff", crewHandler.HandleKickoff)
	mux.HandleFunc("GET /api/v1/crews/{name}/stream", streamHandler.HandleStream)

	if a.store != nil {
		runHandler := handlers.NewRunHandler(a.store, a.logger)
		mux.HandleFunc("GET /api/v1/runs", runHandler.HandleListRuns)
		mux.HandleFunc("GET /api/v1/runs/{id}", runHandler.HandleGetRun)
	} else {
		disabled := func(w http.ResponseWriter, r *http.Request) {
			handlers.WriteErrorMessage(w, http.StatusServiceUnavailable, handlers.CodeUnavailable,
				"run history is disabled; set database.enabled", nil)
		}
		mux.HandleFunc("GET /api/v1/runs", disabled)
		mux.HandleFunc("GET /api/v1/runs/{id}", disabled)
	}

	chain := []Middleware{
		Recovery(a.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(a.logger),
		MetricsMiddleware(a.metrics),
	}
	if a.cfg.Server.Auth.Enabled() {
		chain = append(chain, JWTAuth(a.cfg.Server.Auth, []string{"/health", "/healthz", "/metrics"}, a.logger))
	}
	return Chain(mux, chain...)
}

// serve 运行 HTTP API 直到 ctx 取消
func serve(ctx context.Context, a *app) error {
	cfg := server.FromConfig(a.cfg.Server)
	m := server.NewManager(newHandler(a), cfg, a.logger)
	a.logger.Info("crewflow API listening",
		zap.String("addr", cfg.Addr),
		zap.String("model", a.cfg.LLM.Model),
		zap.Int("max_concurrent_runs", a.cfg.Server.MaxConcurrentRuns),
		zap.Bool("run_history", a.store != nil))
	return m.Run(ctx)
}
