package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func NewRouter(h *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger(log))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", h.CurrentUser)
				r.Put("/me/password", h.ChangePassword)
			})

			r.Route("/deals", func(r chi.Router) {
				r.Get("/", h.ListDeals)
				r.Post("/", h.CreateDeal)
				r.Get("/stats", h.DealStats)
				r.Route("/{dealId}", func(r chi.Router) {
					r.Put("/", withDealID(h.UpdateDeal))
					r.Delete("/", withDealID(h.DeleteDeal))
					r.Post("/review", withDealID(h.ReviewDeal))
					r.Get("/reviews", withDealID(h.ReviewHistory))
					r.Post("/images", withDealID(h.UploadDealImage))
					r.Get("/images/{imageName}", withDealID(h.DownloadDealImage))
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Post("/", h.CreateOrder)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Put("/read-all", h.MarkAllNotificationsRead)
				r.Put("/{notificationId}/read", func(w http.ResponseWriter, r *http.Request) {
					h.MarkNotificationRead(w, r, chi.URLParam(r, "notificationId"))
				})
			})
		})
	})

	return r
}

func withDealID(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "dealId"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid deal id"})
			return
		}
		next(w, r, id)
	}
}
