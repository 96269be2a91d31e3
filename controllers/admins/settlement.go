package admins

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mohamedamine596/brebis-server/settlement"
	"github.com/mohamedamine596/brebis-server/utils"
)

// SettlementController exposes the engine's admin-side operations: gain
// recording and aggregate audits.
type SettlementController struct {
	Engine *settlement.Engine
}

func NewSettlementController(engine *settlement.Engine) *SettlementController {
	return &SettlementController{Engine: engine}
}

// POST /api/admin/investments/{id}/gains
func (c *SettlementController) RecordGain(w http.ResponseWriter, r *http.Request) {
	id64, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id64 == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "ID invalide"})
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Le montant doit être supérieur à 0"})
		return
	}

	trx, err := c.Engine.RecordGain(r.Context(), uint(id64), req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrNotFound):
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Investissement non trouvé"})
		case errors.Is(err, settlement.ErrInvalidState):
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Les gains ne s'appliquent qu'aux investissements confirmés"})
		default:
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Gains enregistrés",
		Data:    trx,
	})
}

// GET /api/admin/users/{id}/audit
func (c *SettlementController) AuditUser(w http.ResponseWriter, r *http.Request) {
	id64, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id64 == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "ID invalide"})
		return
	}

	audit, err := c.Engine.AuditUserAggregates(r.Context(), uint(id64))
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Utilisateur non trouvé"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data:    audit,
	})
}
