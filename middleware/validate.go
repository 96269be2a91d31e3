package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mohamedamine596/brebis-server/utils"
)

// ValidateJSON decodes the JSON body into dst and runs struct validation.
// On failure it writes the error response itself and returns a non-nil error.
func ValidateJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		utils.WriteJSON(w, http.StatusUnsupportedMediaType, utils.APIResponse{
			Success: false,
			Message: "Le Content-Type doit être application/json",
		})
		return http.ErrNotSupported
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{
			Success: false,
			Message: "Corps JSON invalide",
		})
		return err
	}
	if err := utils.ValidateStruct(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{
			Success: false,
			Message: err.Error(),
		})
		return err
	}
	return nil
}
