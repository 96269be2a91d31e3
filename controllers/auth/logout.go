package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mohamedamine596/brebis-server/database"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"
)

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutHandler revokes the refresh token and blacklists the current access
// token's jti for the remainder of its lifetime.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.RefreshToken != "" {
		_ = database.DB.Model(&models.RefreshToken{}).
			Where("id = ?", req.RefreshToken).
			Update("revoked", true).Error
	}

	if tokenStr, err := utils.ExtractBearerToken(r); err == nil {
		if _, claims, err := utils.ValidateAccessToken(tokenStr); err == nil {
			if jti, ok := claims["jti"].(string); ok && jti != "" {
				ttl := 15 * time.Minute
				if expTime, err := claims.GetExpirationTime(); err == nil && expTime != nil {
					if remaining := time.Until(expTime.Time); remaining > 0 {
						ttl = remaining
					}
				}
				_ = utils.RevokeJTI(jti, ttl)
			}
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Déconnexion réussie",
	})
}
