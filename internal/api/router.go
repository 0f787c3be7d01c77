package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"

	"seminar_standings/internal/api/handler"
	"seminar_standings/internal/api/middleware"
	"seminar_standings/internal/app/service"
	"seminar_standings/internal/common/security"
)

func NewRouter(standingsService *service.StandingsService, closer service.RoundCloser) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Tokens are optional; handlers that need a user add Authenticator.
	r.Use(jwtauth.Verifier(security.TokenAuth))
	r.Use(middleware.AttachUser)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		standingsHandler := handler.NewStandingsHandler(standingsService, closer)
		v1.Get("/contests/{contestID}/rounds", standingsHandler.ListRounds)
		v1.Route("/rounds/{roundID}", standingsHandler.RegisterRoutes)
	})

	return r
}
