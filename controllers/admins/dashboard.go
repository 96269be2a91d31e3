package admins

import (
	"net/http"

	"github.com/mohamedamine596/brebis-server/database"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"
)

// GET /api/admin/dashboard
func DashboardHandler(w http.ResponseWriter, r *http.Request) {
	db := database.DB

	var totalUsers, totalListings, soldListings, confirmedInvestments, pendingInvestments int64
	db.Model(&models.User{}).Where("role = ?", models.RoleUser).Count(&totalUsers)
	db.Model(&models.Listing{}).Count(&totalListings)
	db.Model(&models.Listing{}).Where("sold = ?", true).Count(&soldListings)
	db.Model(&models.Investment{}).Where("status = ?", models.InvestmentConfirmed).Count(&confirmedInvestments)
	db.Model(&models.Investment{}).Where("status = ?", models.InvestmentPending).Count(&pendingInvestments)

	var revenue float64
	db.Model(&models.Transaction{}).
		Where("kind = ? AND status = ?", models.TransactionPurchase, models.TransactionSucceeded).
		Select("COALESCE(SUM(amount),0)").Scan(&revenue)

	var gainsPaid float64
	db.Model(&models.Transaction{}).
		Where("kind = ? AND status = ?", models.TransactionGain, models.TransactionSucceeded).
		Select("COALESCE(SUM(amount),0)").Scan(&gainsPaid)

	var unreconciled int64
	db.Model(&models.Transaction{}).
		Where("kind = ? AND status = ? AND investment_id IS NULL", models.TransactionPurchase, models.TransactionSucceeded).
		Count(&unreconciled)

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"total_users":           totalUsers,
			"total_brebis":          totalListings,
			"brebis_vendues":        soldListings,
			"confirmed_investments": confirmedInvestments,
			"pending_investments":   pendingInvestments,
			"revenue":               utils.Round2(revenue),
			"gains_paid":            utils.Round2(gainsPaid),
			"unreconciled_count":    unreconciled,
		},
	})
}
