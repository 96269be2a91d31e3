package admins

import (
	"net/http"
	"strconv"

	"github.com/mohamedamine596/brebis-server/database"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"
)

// GET /api/admin/transactions
// Full ledger view. ?status=, ?kind= and ?user_id= filter.
func ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := database.DB.Model(&models.Transaction{})
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des transactions"})
		return
	}

	var transactions []models.Transaction
	if err := query.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&transactions).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des transactions"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"transactions": transactions,
			"page":         page,
			"limit":        limit,
			"total":        total,
		},
	})
}

// GET /api/admin/transactions/unreconciled
// Purchases whose payment was captured but that never got an investment: the
// losers of a settlement race. Each line needs a manual refund.
func UnreconciledTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	var transactions []models.Transaction
	if err := database.DB.
		Where("kind = ? AND status = ? AND investment_id IS NULL",
			models.TransactionPurchase, models.TransactionSucceeded).
		Order("created_at ASC").
		Find(&transactions).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des transactions"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"transactions": transactions,
			"count":        len(transactions),
		},
	})
}

// GET /api/admin/investments
func ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := database.DB.Model(&models.Investment{})
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des investissements"})
		return
	}

	var investments []models.Investment
	if err := query.Preload("Listing").Order("invested_at DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&investments).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des investissements"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"investments": investments,
			"page":        page,
			"limit":       limit,
			"total":       total,
		},
	})
}
