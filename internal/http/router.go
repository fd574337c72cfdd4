package http

import (
	"net/http"
	"time"

	"garantio/internal/alert"
	"garantio/internal/auth"
	"garantio/internal/config"
	"garantio/internal/http/handler"
	mw "garantio/internal/http/middleware"
	"garantio/internal/jobs"
	"garantio/internal/metrics"
	"garantio/internal/warranty"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"gorm.io/gorm"
)

type Deps struct {
	Config  config.Config
	DB      *gorm.DB
	JWT     *auth.JWT
	Svc     *warranty.Service
	Alerts  alert.Store
	Queue   jobs.Queue
	Metrics *metrics.ReminderMetrics
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(d.Config.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(d.Config.CORSAllowedOrigins, d.Config.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", d.Metrics.Handler())

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT}
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(20, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/auth/register", ah.Register)
		r.Post("/auth/login", ah.Login)
	})

	me := &handler.MeHandler{}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	wh := &handler.WarrantyHandler{Svc: d.Svc}
	alh := &handler.AlertHandler{Store: d.Alerts, Queue: d.Queue}

	r.Route("/articles", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))
		r.Post("/", wh.CreateArticle)
		r.Get("/", wh.ListArticles)
	})

	r.Route("/warranties", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", wh.Create)
		r.Get("/", wh.List)
		r.Get("/ownership-drift", alh.OwnershipDrift)

		r.Get("/{id}", wh.Get)
		r.Patch("/{id}", wh.Update)
		r.Delete("/{id}", wh.Delete)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Get("/", alh.List)
		r.Get("/{id}/job", alh.Job)
	})

	return r
}
