package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/mohamedamine596/brebis-server/database"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"
)

type CreateInvestmentRequest struct {
	ListingID uint `json:"listing_id"`
}

// POST /api/investments
// Creates a pending investment reserved for later payment through the
// payment-intent flow. The amount is frozen at the listing's current price.
func CreateInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	var req CreateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ListingID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "listing_id est requis"})
		return
	}

	db := database.DB

	var listing models.Listing
	if err := db.First(&listing, req.ListingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Brebis non trouvée"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}
	if !listing.Available || listing.Sold {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cette brebis n'est plus disponible"})
		return
	}

	// One live investment per (user, listing); cancelled ones don't count.
	var dup int64
	if err := db.Model(&models.Investment{}).
		Where("user_id = ? AND listing_id = ? AND status <> ?", userID, listing.ID, models.InvestmentCancelled).
		Count(&dup).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}
	if dup > 0 {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Vous avez déjà un investissement en cours pour cette brebis"})
		return
	}

	inv := models.Investment{
		UserID:     userID,
		ListingID:  listing.ID,
		Amount:     listing.Price,
		Status:     models.InvestmentPending,
		Active:     true,
		InvestedAt: time.Now(),
	}
	if err := db.Create(&inv).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Échec de la création de l'investissement"})
		return
	}

	db.Preload("Listing").First(&inv, inv.ID)

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Investissement créé, en attente de paiement",
		Data:    inv,
	})
}

// GET /api/investments
func ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	var investments []models.Investment
	if err := database.DB.Preload("Listing").
		Where("user_id = ?", userID).
		Order("invested_at DESC").
		Find(&investments).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des investissements"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data:    investments,
	})
}

// GET /api/investments/{id}
func GetInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	id64, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id64 == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "ID invalide"})
		return
	}

	var inv models.Investment
	if err := database.DB.Preload("Listing").Preload("Transaction").First(&inv, uint(id64)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Investissement non trouvé"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}
	if inv.UserID != userID {
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Accès refusé"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data:    inv,
	})
}

// GET /api/investments/stats
func InvestmentStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	db := database.DB

	var stats struct {
		Total     int64
		Confirmed int64
		Pending   int64
	}
	db.Model(&models.Investment{}).Where("user_id = ?", userID).Count(&stats.Total)
	db.Model(&models.Investment{}).Where("user_id = ? AND status = ?", userID, models.InvestmentConfirmed).Count(&stats.Confirmed)
	db.Model(&models.Investment{}).Where("user_id = ? AND status = ?", userID, models.InvestmentPending).Count(&stats.Pending)

	var totals struct {
		Invested float64
		Gains    float64
	}
	db.Model(&models.Investment{}).
		Select("COALESCE(SUM(amount),0) as invested, COALESCE(SUM(gains),0) as gains").
		Where("user_id = ? AND status = ?", userID, models.InvestmentConfirmed).
		Scan(&totals)

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"total_investments":     stats.Total,
			"confirmed_investments": stats.Confirmed,
			"pending_investments":   stats.Pending,
			"total_invested":        utils.Round2(totals.Invested),
			"total_gains":           utils.Round2(totals.Gains),
		},
	})
}

// GET /api/investments/activities
// Recent money movements for the account, newest first.
func InvestmentActivitiesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	var transactions []models.Transaction
	if err := database.DB.Preload("Investment").Preload("Investment.Listing").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(20).
		Find(&transactions).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des activités"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data:    transactions,
	})
}
