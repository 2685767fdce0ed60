package http

import (
	"net/http"

	"schedlog/internal/config"
	"schedlog/internal/http/handler"
	mw "schedlog/internal/http/middleware"
	"schedlog/internal/identity"
	"schedlog/internal/jobs"
	"schedlog/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, authority *identity.Authority, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS(&cfg))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s := &handler.Sessions{
		Auth:   authority,
		Store:  store.New(db),
		Jobs:   &jobs.Repo{DB: db},
		Logger: logger,
	}

	ah := &handler.AuthHandler{S: s}
	r.Post("/auth/signup", ah.Signup)
	r.Post("/auth/login", ah.Login)
	r.Post("/auth/federated", ah.Federated)

	me := &handler.MeHandler{S: s}
	sh := &handler.ScheduleHandler{S: s}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth(authority))

		r.Post("/auth/logout", ah.Logout)
		r.Get("/me", me.Me)
		r.Delete("/account", me.DeleteAccount)
		r.Put("/prefs/dark-mode", me.SetDarkMode)

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", sh.Get)
			r.Post("/records", sh.AppendRecord)
			r.Put("/sharing", sh.SetSharing)
		})
	})

	return r
}
