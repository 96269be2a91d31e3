package middleware

import (
	"context"
	"net/http"

	"github.com/mohamedamine596/brebis-server/database"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"
)

// AdminAuthMiddleware verifies that the request comes from an authenticated,
// active admin account. Admins live in the users table with role "admin".
func AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, err := utils.ExtractBearerToken(r)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{
				Success: false,
				Message: "Non autorisé: aucun jeton fourni",
			})
			return
		}

		_, claims, err := utils.ValidateAccessToken(tokenStr)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{
				Success: false,
				Message: "Non autorisé: jeton invalide",
			})
			return
		}

		role, ok := claims["role"].(string)
		if !ok || role != models.RoleAdmin {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{
				Success: false,
				Message: "Accès réservé aux administrateurs",
			})
			return
		}

		adminID := claimsUserID(claims)

		var admin models.User
		if err := database.DB.First(&admin, adminID).Error; err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{
				Success: false,
				Message: "Non autorisé: administrateur introuvable",
			})
			return
		}
		if admin.Role != models.RoleAdmin || !admin.IsActive {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{
				Success: false,
				Message: "Accès refusé",
			})
			return
		}

		ctx := context.WithValue(r.Context(), utils.UserIDKey, admin.ID)
		ctx = context.WithValue(ctx, utils.UserRoleKey, models.RoleAdmin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
