package admins

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/mohamedamine596/brebis-server/database"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"
)

// GET /api/admin/brebis
func ListListingsHandler(w http.ResponseWriter, r *http.Request) {
	var listings []models.Listing
	if err := database.DB.Order("id ASC").Find(&listings).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur lors de la récupération des brebis"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data:    map[string]interface{}{"brebis": listings},
	})
}

type listingRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        *float64 `json:"price"`
	Age          *int     `json:"age"`
	Breed        string   `json:"breed"`
	Weight       *float64 `json:"weight"`
	Health       string   `json:"health"`
	Reproduction *bool    `json:"reproduction"`
	Available    *bool    `json:"available"`
}

// POST /api/admin/brebis
func CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Corps JSON invalide"})
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Le nom est requis"})
		return
	}
	if req.Price == nil || *req.Price < 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Le prix doit être supérieur ou égal à 0"})
		return
	}

	listing := models.Listing{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Price:        utils.Round2(*req.Price),
		Age:          req.Age,
		Breed:        req.Breed,
		Weight:       req.Weight,
		Available:    true,
	}
	if req.Reproduction != nil {
		listing.Reproduction = *req.Reproduction
	}
	if req.Health != "" {
		listing.Health = req.Health
	}
	if req.Available != nil {
		listing.Available = *req.Available
	}

	if err := database.DB.Create(&listing).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Échec de la création de la brebis"})
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Brebis créée avec succès",
		Data:    listing,
	})
}

// PUT /api/admin/brebis/{id}
// Sale state (sold, buyer_id, sold_at) is owned by the settlement engine and
// never writable here.
func UpdateListingHandler(w http.ResponseWriter, r *http.Request) {
	id64, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id64 == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "ID invalide"})
		return
	}

	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Corps JSON invalide"})
		return
	}

	db := database.DB
	var listing models.Listing
	if err := db.First(&listing, uint(id64)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Brebis non trouvée"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}

	updates := map[string]interface{}{}
	if strings.TrimSpace(req.Name) != "" {
		updates["name"] = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Le prix doit être supérieur ou égal à 0"})
			return
		}
		if listing.Sold {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Le prix d'une brebis vendue ne peut plus changer"})
			return
		}
		updates["price"] = utils.Round2(*req.Price)
	}
	if req.Age != nil {
		updates["age"] = *req.Age
	}
	if req.Breed != "" {
		updates["breed"] = req.Breed
	}
	if req.Weight != nil {
		updates["weight"] = *req.Weight
	}
	if req.Health != "" {
		updates["health"] = req.Health
	}
	if req.Reproduction != nil {
		updates["reproduction"] = *req.Reproduction
	}
	if req.Available != nil {
		if listing.Sold && *req.Available {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Une brebis vendue ne peut pas redevenir disponible"})
			return
		}
		updates["available"] = *req.Available
	}

	if len(updates) > 0 {
		if err := db.Model(&listing).Updates(updates).Error; err != nil {
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Échec de la mise à jour"})
			return
		}
	}

	db.First(&listing, uint(id64))

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Brebis mise à jour",
		Data:    listing,
	})
}

// DELETE /api/admin/brebis/{id}
// Sold listings and listings referenced by investments are never deleted; the
// ledger has to stay navigable.
func DeleteListingHandler(w http.ResponseWriter, r *http.Request) {
	id64, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id64 == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "ID invalide"})
		return
	}

	db := database.DB
	var listing models.Listing
	if err := db.First(&listing, uint(id64)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Brebis non trouvée"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}

	if listing.Sold {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Une brebis vendue ne peut pas être supprimée"})
		return
	}

	var count int64
	if err := db.Model(&models.Investment{}).Where("listing_id = ?", listing.ID).Count(&count).Error; err == nil && count > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Impossible de supprimer une brebis liée à des investissements"})
		return
	}

	if err := db.Delete(&listing).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Échec de la suppression"})
		return
	}

	if listing.Image != "" && listing.Image != "default-brebis.jpg" {
		_ = utils.DeleteListingImage(r.Context(), listing.Image)
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Brebis supprimée",
	})
}

// POST /api/admin/brebis/{id}/image
// Multipart upload, field "image". The object key replaces the previous one.
func UploadListingImageHandler(w http.ResponseWriter, r *http.Request) {
	id64, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id64 == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "ID invalide"})
		return
	}

	db := database.DB
	var listing models.Listing
	if err := db.First(&listing, uint(id64)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Brebis non trouvée"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Erreur serveur"})
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Formulaire multipart invalide"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Le champ image est requis"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Format d'image non supporté"})
		return
	}

	objectName := fmt.Sprintf("brebis-%d-%d%s", listing.ID, time.Now().Unix(), ext)
	if err := utils.UploadListingImage(r.Context(), objectName, file); err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Échec de l'envoi de l'image"})
		return
	}

	previous := listing.Image
	if err := db.Model(&listing).Update("image", objectName).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Échec de la mise à jour"})
		return
	}
	if previous != "" && previous != "default-brebis.jpg" {
		_ = utils.DeleteListingImage(r.Context(), previous)
	}

	url, _ := utils.SignedListingImageURL(r.Context(), objectName, time.Hour)

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Image mise à jour",
		Data: map[string]interface{}{
			"image": objectName,
			"url":   url,
		},
	})
}
