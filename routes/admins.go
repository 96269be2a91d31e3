package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mohamedamine596/brebis-server/controllers/admins"
	"github.com/mohamedamine596/brebis-server/middleware"
	"github.com/mohamedamine596/brebis-server/settlement"
)

// AdminRoutes registers the admin surface under /admin, all behind
// AdminAuthMiddleware.
func AdminRoutes(api *mux.Router, engine *settlement.Engine) {
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuthMiddleware)

	settlementController := admins.NewSettlementController(engine)

	// Dashboard
	admin.Handle("/dashboard", http.HandlerFunc(admins.DashboardHandler)).Methods(http.MethodGet)

	// Listings
	admin.Handle("/brebis", http.HandlerFunc(admins.ListListingsHandler)).Methods(http.MethodGet)
	admin.Handle("/brebis", http.HandlerFunc(admins.CreateListingHandler)).Methods(http.MethodPost)
	admin.Handle("/brebis/{id:[0-9]+}", http.HandlerFunc(admins.UpdateListingHandler)).Methods(http.MethodPut)
	admin.Handle("/brebis/{id:[0-9]+}", http.HandlerFunc(admins.DeleteListingHandler)).Methods(http.MethodDelete)
	admin.Handle("/brebis/{id:[0-9]+}/image", http.HandlerFunc(admins.UploadListingImageHandler)).Methods(http.MethodPost)

	// Users
	admin.Handle("/users", http.HandlerFunc(admins.ListUsersHandler)).Methods(http.MethodGet)
	admin.Handle("/users/{id:[0-9]+}", http.HandlerFunc(admins.GetUserHandler)).Methods(http.MethodGet)
	admin.Handle("/users/{id:[0-9]+}/status", http.HandlerFunc(admins.SetUserStatusHandler)).Methods(http.MethodPatch)
	admin.Handle("/users/{id:[0-9]+}/audit", http.HandlerFunc(settlementController.AuditUser)).Methods(http.MethodGet)

	// Ledger
	admin.Handle("/investments", http.HandlerFunc(admins.ListInvestmentsHandler)).Methods(http.MethodGet)
	admin.Handle("/investments/{id:[0-9]+}/gains", http.HandlerFunc(settlementController.RecordGain)).Methods(http.MethodPost)
	admin.Handle("/transactions", http.HandlerFunc(admins.ListTransactionsHandler)).Methods(http.MethodGet)
	admin.Handle("/transactions/unreconciled", http.HandlerFunc(admins.UnreconciledTransactionsHandler)).Methods(http.MethodGet)
}
