package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/logger"
)

// NewRouter mounts the websocket, REST and operational endpoints.
func NewRouter(engine *app.Engine, gatherer prometheus.Gatherer, log logrus.FieldLogger) http.Handler {
	ws := NewWSHandler(engine, log)
	matches := NewMatchHandler(engine, log)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(logger.Middleware(log))
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Get("/ws", ws.ServeWS)

	mux.Route("/matches", func(r chi.Router) {
		r.Post("/", matches.CreateMatches)
		r.Get("/{matchId}", matches.GetMatch)
		r.Post("/{matchId}/start", matches.StartMatch)
		r.Delete("/{matchId}", matches.AbortMatch)
	})
	mux.Post("/players/{playerId}/clear", matches.ClearSuspension)

	return mux
}
