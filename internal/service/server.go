package service

import (
	"questboard/internal/app"
	"questboard/internal/pkg/auth"
	"questboard/internal/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// Service encapsulates the HTTP server configuration, including the application's business logic,
// HTTP handlers, the server's run address, and a logger for event and error logging.
type Service struct {
	handlers   *handlers
	app        *app.App
	runAddress string
	log        *logger.Logger
}

// NewService creates and initializes a new Service instance.
func NewService(app *app.App, runAddress string, l *logger.Logger) *Service {
	handlers := newHandlers(app, l)
	return &Service{handlers: handlers, app: app, runAddress: runAddress, log: l}
}

// NewRouter sets up and returns a new chi.Router instance with the necessary middleware and routes.
// Every route except authentication requires a token; stock keeping, reward editing and calendar
// changes additionally require a game master token.
func (service *Service) NewRouter() chi.Router {
	router := chi.NewRouter()
	router.Use(service.log.WithLogging())
	router.Post("/api/auth", service.handlers.authHandler)
	router.Route("/api", func(r chi.Router) {
		r.Use(auth.CheckJWTMiddleware())
		r.Post("/query/{name}", service.handlers.queryHandler)
		r.Get("/shops/{ref}/stock", service.handlers.stockHandler)
		r.Get("/calendar/events", service.handlers.eventsHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireGM())
			r.Post("/shops/{ref}/stock", service.handlers.addStockHandler)
			r.Patch("/shops/{ref}/stock/{id}", service.handlers.editStockHandler)
			r.Delete("/shops/{ref}/stock/{id}", service.handlers.removeStockHandler)
			r.Post("/quests/{ref}/rewards", service.handlers.addRewardHandler)
			r.Delete("/quests/{ref}/rewards/{id}", service.handlers.removeRewardHandler)
			r.Post("/calendar/events", service.handlers.storeEventHandler)
			r.Delete("/calendar/events", service.handlers.removeEventHandler)
			r.Delete("/calendar", service.handlers.clearCalendarHandler)
		})
	})
	return router
}
