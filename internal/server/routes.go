// Package server wires HTTP handlers into a chi router for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Tyrowin/roomchat/internal/middleware"
)

// RoutePrefix is the path prefix every chat endpoint is mounted under.
const RoutePrefix = "/19"

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/", HealthHandler)
	r.Get("/test", TestPageHandler)

	r.Route(RoutePrefix, func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins.list(),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			MaxAge:         300,
		}))

		r.Get("/ws/ping", s.PingHandler)
		r.Get("/ws/room/{room}/user/{user}", s.ChatHandler)
		r.Get("/views", s.ViewsHandler)
		r.Post("/reset", ResetHandler)
	})

	return r
}
