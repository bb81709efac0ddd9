package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/storybook-pos/internal/middleware"
)

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// RouterOptions задаёт внешние параметры маршрутизатора.
type RouterOptions struct {
	// Metrics обслуживает /metrics; nil означает обработчик Prometheus по умолчанию.
	Metrics http.Handler
	// AllowedOrigins включает CORS для веб-кассы, открытой с другого origin.
	AllowedOrigins []string
}

// SetupRouter настраивает HTTP-маршруты и middleware кассы.
func (h *Handler) SetupRouter(opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Encoding"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle("/metrics", metrics)

	r.Route("/api/pos", func(r chi.Router) {
		r.Post("/session", h.OpenSession)

		r.Group(func(r chi.Router) {
			r.Use(h.sessions.Middleware)

			r.Delete("/session", h.CloseSession)
			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Put("/cart/discount", h.SetDiscount)
			r.Post("/cart/checkout", h.Checkout)

			r.Post("/cart/items", h.AddItem)
			r.Put("/cart/items/{itemID}", h.SetQuantity)
			r.Delete("/cart/items/{itemID}", h.RemoveItem)
		})
	})

	r.Route("/api/inventory", func(r chi.Router) {
		r.Get("/", h.GetInventory)
		r.Put("/{itemID}", h.UpsertItem)
	})

	r.Get("/api/sales", h.GetSales)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
