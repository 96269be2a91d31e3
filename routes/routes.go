package routes

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/mohamedamine596/brebis-server/controllers/payments"
	"github.com/mohamedamine596/brebis-server/middleware"
	"github.com/mohamedamine596/brebis-server/settlement"
)

func optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "brebis-api",
	})
}

// InitRouter wires the full HTTP surface around the settlement engine.
func InitRouter(engine *settlement.Engine) *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint for Docker health checks (root level)
	r.Handle("/health", http.HandlerFunc(healthHandler)).Methods(http.MethodGet)

	// CORS - origins from CORS_ALLOWED_ORIGINS (comma-separated) or defaults
	origins := []string{
		"http://localhost:3000", "http://localhost:5173",
		"http://127.0.0.1:3000", "http://127.0.0.1:5173",
	}
	if originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS"); originsEnv != "" {
		for _, p := range strings.Split(originsEnv, ",") {
			if o := strings.TrimSpace(p); o != "" {
				origins = append(origins, o)
			}
		}
	}
	r.Use(func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Stripe-Signature", "X-CRON-KEY", "X-Requested-With", "X-Request-ID"}),
			handlers.AllowCredentials(),
		)(next)
	})

	api := r.PathPrefix("/api").Subrouter()

	// Catch-all OPTIONS handler for CORS preflight
	api.PathPrefix("/").HandlerFunc(optionsHandler).Methods(http.MethodOptions)

	api.Handle("/health", http.HandlerFunc(healthHandler)).Methods(http.MethodGet)

	paymentController := payments.NewPaymentController(engine)

	// Webhook: raw-body endpoint, no auth, sliding-window limiter with the
	// provider's delivery IPs whitelisted via WEBHOOK_IP_WHITELIST.
	var whitelist []string
	if env := os.Getenv("WEBHOOK_IP_WHITELIST"); env != "" {
		whitelist = strings.Split(env, ",")
	}
	webhookLimiter := middleware.NewWebhookLimiter(500, time.Hour, whitelist)
	api.Handle("/payments/webhook", webhookLimiter.Middleware(http.HandlerFunc(paymentController.Webhook))).Methods(http.MethodPost)

	// Cron endpoint (protected via X-CRON-KEY header)
	cronLimiter := middleware.NewIPRateLimiter(1000, time.Hour)
	r.Handle("/cron/expire-checkouts", cronLimiter.Middleware(http.HandlerFunc(paymentController.ExpireCheckouts))).Methods(http.MethodPost)

	UsersRoutes(api, paymentController)
	AdminRoutes(api, engine)

	return r
}
