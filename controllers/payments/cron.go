package payments

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mohamedamine596/brebis-server/utils"
)

// POST /cron/expire-checkouts
// Called by the scheduler, authenticated with the X-CRON-KEY header. Reaps
// abandoned checkouts older than CHECKOUT_TTL_HOURS (default 24).
func (c *PaymentController) ExpireCheckouts(w http.ResponseWriter, r *http.Request) {
	cronKey := os.Getenv("CRON_KEY")
	if cronKey == "" || r.Header.Get("X-CRON-KEY") != cronKey {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Non autorisé"})
		return
	}

	ttl := 24 * time.Hour
	if s := os.Getenv("CHECKOUT_TTL_HOURS"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			ttl = time.Duration(v) * time.Hour
		}
	}

	processed, err := c.Engine.ExpireStaleCheckouts(r.Context(), ttl)
	if err != nil {
		log.Printf("[cron] expire-checkouts: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}

	log.Printf("[cron] expire-checkouts: %d enregistrements expirés", processed)
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data:    map[string]interface{}{"expired": processed},
	})
}
