package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mohamedamine596/brebis-server/gateway"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/settlement"
)

type stubGateway struct{}

func (stubGateway) CreateCheckoutSession(ctx context.Context, p gateway.SessionParams) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: "cs_stub", URL: "https://checkout.example.com"}, nil
}

func (stubGateway) CreatePaymentIntent(ctx context.Context, p gateway.IntentParams) (*gateway.PaymentIntent, error) {
	return &gateway.PaymentIntent{ID: "pi_stub", ClientSecret: "secret", Status: gateway.IntentProcessing}, nil
}

func (stubGateway) RetrievePaymentIntent(ctx context.Context, id string) (*gateway.PaymentIntent, error) {
	return &gateway.PaymentIntent{ID: id, Status: gateway.IntentSucceeded}, nil
}

func (stubGateway) RetrieveCheckoutSession(ctx context.Context, id string) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: id, PaymentStatus: gateway.SessionPaid}, nil
}

func newWebhookController(t *testing.T) (*PaymentController, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Listing{}, &models.Investment{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	engine := &settlement.Engine{
		DB:            db,
		Gateway:       stubGateway{},
		WebhookSecret: "whsec_test",
		Currency:      "eur",
	}
	return NewPaymentController(engine), db
}

func postWebhook(controller *PaymentController, payload []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	controller.Webhook(rec, req)
	return rec
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	controller, _ := newWebhookController(t)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	rec := postWebhook(controller, payload, "t=123,v1=deadbeef")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookAcksUnknownSession(t *testing.T) {
	controller, _ := newWebhookController(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_unknown",
		"type": gateway.EventCheckoutCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{"id": "cs_inconnu"},
		},
	})
	sig := gateway.SignatureHeader(payload, time.Now().Unix(), "whsec_test")

	rec := postWebhook(controller, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestWebhookSettlesPendingCheckout(t *testing.T) {
	controller, db := newWebhookController(t)

	user := models.User{Name: "Testeur", Email: "t@example.com", Password: "x", Role: models.RoleUser, IsActive: true}
	db.Create(&user)
	listing := models.Listing{Name: "Bella", Price: 150, Available: true}
	db.Create(&listing)

	sessionID := "cs_handler_test"
	trx := models.Transaction{
		UserID: user.ID, Reference: "BRB-HANDLER", Amount: 150,
		Kind: models.TransactionPurchase, Status: models.TransactionPending,
		SessionID: &sessionID,
	}
	db.Create(&trx)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_handler",
		"type": gateway.EventCheckoutCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"payment_intent": "pi_handler",
				"payment_status": gateway.SessionPaid,
				"metadata":       map[string]string{"listing_id": fmt.Sprintf("%d", listing.ID)},
			},
		},
	})
	sig := gateway.SignatureHeader(payload, time.Now().Unix(), "whsec_test")

	rec := postWebhook(controller, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var after models.Listing
	db.First(&after, listing.ID)
	if !after.Sold {
		t.Fatal("listing not sold after webhook")
	}
	var trxAfter models.Transaction
	db.First(&trxAfter, trx.ID)
	if trxAfter.Status != models.TransactionSucceeded || trxAfter.InvestmentID == nil {
		t.Fatalf("transaction = %+v", trxAfter)
	}
}
