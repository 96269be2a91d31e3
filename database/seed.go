package database

import (
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mohamedamine596/brebis-server/models"
)

// Migrate runs AutoMigrate for every table the server owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Investment{},
		&models.Transaction{},
		&models.RefreshToken{},
		&models.RevokedToken{},
	)
}

// SeedAdmin ensures the admin account from ADMIN_EMAIL/ADMIN_PASSWORD exists.
// The admin goes through the same users table and bcrypt path as everyone
// else; there is no login shortcut.
func SeedAdmin(db *gorm.DB) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("[seed] ADMIN_EMAIL/ADMIN_PASSWORD non définis, aucun admin créé")
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role != models.RoleAdmin {
			return db.Model(&existing).Update("role", models.RoleAdmin).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hachage du mot de passe admin: %w", err)
	}

	admin := models.User{
		Name:     getenv("ADMIN_NAME", "Administrateur"),
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("[seed] compte admin créé: %s", email)
	return nil
}

// SeedListings inserts a few sample sheep when the catalogue is empty.
// Development convenience only.
func SeedListings(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Listing{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	age2, age3, age4 := 2, 3, 4
	w55, w62, w70 := 55.0, 62.0, 70.0
	samples := []models.Listing{
		{
			Name:         "Bella",
			Description:  "Brebis Mérinos en excellente santé, idéale pour un premier investissement.",
			Price:        150,
			Breed:        "Mérinos",
			Age:          &age2,
			Weight:       &w55,
			Health:       "Bonne",
			Reproduction: true,
			Available:    true,
		},
		{
			Name:         "Dolly",
			Description:  "Brebis Suffolk robuste avec un bon historique de reproduction.",
			Price:        180,
			Breed:        "Suffolk",
			Age:          &age3,
			Weight:       &w62,
			Health:       "Bonne",
			Reproduction: true,
			Available:    true,
		},
		{
			Name:         "Marguerite",
			Description:  "Brebis Lacaune laitière, rendement supérieur à la moyenne.",
			Price:        200,
			Breed:        "Lacaune",
			Age:          &age4,
			Weight:       &w70,
			Health:       "Excellente",
			Reproduction: true,
			Available:    true,
		},
	}

	if err := db.Create(&samples).Error; err != nil {
		return err
	}
	log.Printf("[seed] %d brebis d'exemple insérées", len(samples))
	return nil
}
