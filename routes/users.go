package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mohamedamine596/brebis-server/controllers"
	"github.com/mohamedamine596/brebis-server/controllers/auth"
	"github.com/mohamedamine596/brebis-server/controllers/payments"
	"github.com/mohamedamine596/brebis-server/controllers/users"
	"github.com/mohamedamine596/brebis-server/middleware"
)

// UsersRoutes registers the public, auth and investor routes.
func UsersRoutes(api *mux.Router, paymentController *payments.PaymentController) {
	// Login/register limiter: 60 per IP per 5 minutes
	loginLimiter := middleware.NewIPRateLimiter(60, 5*time.Minute)

	// Auth
	api.Handle("/auth/register", loginLimiter.Middleware(http.HandlerFunc(auth.RegisterHandler))).Methods(http.MethodPost)
	api.Handle("/auth/login", loginLimiter.Middleware(http.HandlerFunc(auth.LoginHandler))).Methods(http.MethodPost)
	api.Handle("/auth/refresh", loginLimiter.Middleware(http.HandlerFunc(auth.RefreshHandler))).Methods(http.MethodPost)
	api.Handle("/auth/logout", middleware.AuthMiddleware(http.HandlerFunc(auth.LogoutHandler))).Methods(http.MethodPost)

	// Public catalogue
	api.Handle("/brebis", http.HandlerFunc(controllers.ListListingsHandler)).Methods(http.MethodGet)
	api.Handle("/brebis/{id:[0-9]+}", http.HandlerFunc(controllers.GetListingHandler)).Methods(http.MethodGet)

	// Account
	api.Handle("/users/me", middleware.AuthMiddleware(http.HandlerFunc(users.MeHandler))).Methods(http.MethodGet)
	api.Handle("/users/transactions", middleware.AuthMiddleware(http.HandlerFunc(users.TransactionHistoryHandler))).Methods(http.MethodGet)

	// Investments
	api.Handle("/investments", middleware.AuthMiddleware(http.HandlerFunc(users.CreateInvestmentHandler))).Methods(http.MethodPost)
	api.Handle("/investments", middleware.AuthMiddleware(http.HandlerFunc(users.ListInvestmentsHandler))).Methods(http.MethodGet)
	api.Handle("/investments/stats", middleware.AuthMiddleware(http.HandlerFunc(users.InvestmentStatsHandler))).Methods(http.MethodGet)
	api.Handle("/investments/activities", middleware.AuthMiddleware(http.HandlerFunc(users.InvestmentActivitiesHandler))).Methods(http.MethodGet)
	api.Handle("/investments/{id:[0-9]+}", middleware.AuthMiddleware(http.HandlerFunc(users.GetInvestmentHandler))).Methods(http.MethodGet)

	// Payments (webhook is registered in InitRouter, outside auth)
	api.Handle("/payments/create-checkout-session", middleware.AuthMiddleware(http.HandlerFunc(paymentController.CreateCheckoutSession))).Methods(http.MethodPost)
	api.Handle("/payments/create-payment-intent", middleware.AuthMiddleware(http.HandlerFunc(paymentController.CreatePaymentIntent))).Methods(http.MethodPost)
	api.Handle("/payments/confirm", middleware.AuthMiddleware(http.HandlerFunc(paymentController.ConfirmPayment))).Methods(http.MethodPost)
	api.Handle("/payments/session/{sessionId}", middleware.AuthMiddleware(http.HandlerFunc(paymentController.GetSession))).Methods(http.MethodGet)
	api.Handle("/payments/transactions", middleware.AuthMiddleware(http.HandlerFunc(users.TransactionHistoryHandler))).Methods(http.MethodGet)
}
