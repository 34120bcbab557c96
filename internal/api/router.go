package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mzurawski/wxarchive/internal/weather"
	"github.com/mzurawski/wxarchive/pkg/logger"
)

// Router wires the HTTP routes for the service.
type Router struct {
	handler *Handler
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(weatherService *weather.Service, storage Pinger, logger *logger.Logger) *Router {
	return &Router{
		handler: NewHandler(weatherService, storage, logger),
		logger:  logger.Named("api-router"),
	}
}

// Routes returns the root HTTP handler.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(rt.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.handler.GetHealth)

		r.Route("/weather", func(r chi.Router) {
			r.Get("/current", rt.handler.GetCurrentWeather)
			r.Get("/historical", rt.handler.GetHistoricalWeather)
			r.Get("/forecast", rt.handler.GetForecastWeather)
		})

		r.Route("/records", func(r chi.Router) {
			r.Get("/", rt.handler.ListRecords)
			r.Get("/lookup", rt.handler.LookupRecord)
			r.Get("/{id}", rt.handler.GetRecordByID)
		})
	})

	return r
}
