package payments

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mohamedamine596/brebis-server/gateway"
	"github.com/mohamedamine596/brebis-server/settlement"
	"github.com/mohamedamine596/brebis-server/utils"
)

// PaymentController exposes the settlement engine over HTTP. All money state
// transitions live in the engine; handlers only translate errors to statuses.
type PaymentController struct {
	Engine *settlement.Engine
}

func NewPaymentController(engine *settlement.Engine) *PaymentController {
	return &PaymentController{Engine: engine}
}

func writeSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Ressource non trouvée"})
	case errors.Is(err, settlement.ErrForbidden):
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Accès refusé"})
	case errors.Is(err, settlement.ErrUnavailable):
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cette brebis n'est plus disponible"})
	case errors.Is(err, settlement.ErrInvalidState):
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "L'investissement n'est pas en attente de paiement"})
	case errors.Is(err, settlement.ErrConflict):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Paiement déjà traité ou brebis déjà vendue"})
	case errors.Is(err, settlement.ErrPaymentIncomplete):
		utils.WriteJSON(w, http.StatusPaymentRequired, utils.APIResponse{Success: false, Message: "Le paiement n'a pas encore abouti"})
	case errors.Is(err, settlement.ErrGatewayUnavailable):
		utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Le service de paiement est momentanément indisponible"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
	}
}

// POST /api/payments/create-checkout-session
func (c *PaymentController) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	var req struct {
		ListingID uint `json:"listing_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ListingID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "listing_id est requis"})
		return
	}

	result, err := c.Engine.InitiateCheckout(r.Context(), req.ListingID, userID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Session de paiement créée",
		Data:    result,
	})
}

// POST /api/payments/create-payment-intent
func (c *PaymentController) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	var req struct {
		InvestmentID uint `json:"investment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InvestmentID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "investment_id est requis"})
		return
	}

	result, err := c.Engine.CreatePaymentIntent(r.Context(), req.InvestmentID, userID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Intention de paiement créée",
		Data:    result,
	})
}

// POST /api/payments/confirm
func (c *PaymentController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
		InvestmentID    uint   `json:"investment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentIntentID == "" || req.InvestmentID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "payment_intent_id et investment_id sont requis"})
		return
	}

	inv, err := c.Engine.ConfirmPaymentIntent(r.Context(), req.PaymentIntentID, req.InvestmentID, userID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Paiement confirmé, investissement validé",
		Data:    inv,
	})
}

// POST /api/payments/webhook
// The raw body is read before any decoding: the signature covers the exact
// bytes the provider sent.
func (c *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Corps de requête illisible"})
		return
	}

	if err := c.Engine.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Signature du webhook invalide"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Reçu"})
}

// GET /api/payments/session/{sessionId}
// Lets the success page poll the payment status of its checkout session.
func (c *PaymentController) GetSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := utils.GetUserID(r); !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	sessionID := mux.Vars(r)["sessionId"]
	if sessionID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "sessionId est requis"})
		return
	}

	session, err := c.Engine.Gateway.RetrieveCheckoutSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			utils.WriteJSON(w, http.StatusBadGateway, utils.APIResponse{Success: false, Message: "Le service de paiement est momentanément indisponible"})
			return
		}
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Session non trouvée"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"session_id":     session.ID,
			"payment_status": session.PaymentStatus,
			"status":         session.Status,
			"amount":         gateway.FromMinorUnits(session.AmountTotal),
			"currency":       session.Currency,
		},
	})
}
