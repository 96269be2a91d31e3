package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mohamedamine596/brebis-server/gateway"
	"github.com/mohamedamine596/brebis-server/models"
)

// fakeGateway records outbound calls and returns canned responses.
type fakeGateway struct {
	mu             sync.Mutex
	sessions       []gateway.SessionParams
	intents        []gateway.IntentParams
	intentStatus   string
	failCreate     bool
	sessionCounter int
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, p gateway.SessionParams) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, gateway.ErrUnavailable
	}
	f.sessions = append(f.sessions, p)
	f.sessionCounter++
	return &gateway.CheckoutSession{
		ID:          fmt.Sprintf("cs_test_%d", f.sessionCounter),
		URL:         "https://checkout.example.com/pay",
		AmountTotal: p.Amount,
		Currency:    p.Currency,
		Metadata:    p.Metadata,
	}, nil
}

func (f *fakeGateway) CreatePaymentIntent(ctx context.Context, p gateway.IntentParams) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, gateway.ErrUnavailable
	}
	f.intents = append(f.intents, p)
	return &gateway.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", len(f.intents)),
		ClientSecret: "pi_secret_test",
		Status:       gateway.IntentProcessing,
		Amount:       p.Amount,
		Currency:     p.Currency,
	}, nil
}

func (f *fakeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.intentStatus
	if status == "" {
		status = gateway.IntentSucceeded
	}
	return &gateway.PaymentIntent{ID: id, Status: status}, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(ctx context.Context, id string) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: id, PaymentStatus: gateway.SessionPaid}, nil
}

const testWebhookSecret = "whsec_test"

func newTestEngine(t *testing.T) (*Engine, *fakeGateway) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// A single connection keeps every query on the one in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Listing{}, &models.Investment{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fake := &fakeGateway{}
	engine := &Engine{
		DB:            db,
		Gateway:       fake,
		WebhookSecret: testWebhookSecret,
		Currency:      "eur",
		SuccessURL:    "https://app.example.com/success",
		CancelURL:     "https://app.example.com/cancel",
	}
	return engine, fake
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Name: "Testeur", Email: email, Password: "x", Role: models.RoleUser, IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedListing(t *testing.T, db *gorm.DB, price float64) *models.Listing {
	t.Helper()
	listing := &models.Listing{Name: "Bella", Description: "Brebis de test", Price: price, Available: true}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func webhookPayload(t *testing.T, sessionID, intentID string, listingID uint) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_" + sessionID,
		"type": gateway.EventCheckoutCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"payment_intent": intentID,
				"payment_status": gateway.SessionPaid,
				"metadata": map[string]string{
					"listing_id": fmt.Sprintf("%d", listingID),
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func signedHeader(payload []byte) string {
	return gateway.SignatureHeader(payload, time.Now().Unix(), testWebhookSecret)
}

func TestCheckoutWebhookRoundTrip(t *testing.T) {
	engine, fake := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "alice@example.com")
	listing := seedListing(t, engine.DB, 150.00)

	result, err := engine.InitiateCheckout(ctx, listing.ID, user.ID)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if result.SessionID == "" || result.URL == "" {
		t.Fatalf("incomplete checkout result: %+v", result)
	}

	// Amounts cross the gateway boundary in minor units.
	if got := fake.sessions[0].Amount; got != 15000 {
		t.Fatalf("gateway amount = %d, want 15000", got)
	}

	var trx models.Transaction
	if err := engine.DB.First(&trx, result.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if trx.Status != models.TransactionPending {
		t.Fatalf("transaction status before webhook = %s, want pending", trx.Status)
	}

	payload := webhookPayload(t, result.SessionID, "pi_round_trip", listing.ID)
	if err := engine.HandleWebhook(ctx, payload, signedHeader(payload)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	var after models.Listing
	engine.DB.First(&after, listing.ID)
	if !after.Sold || after.Available || after.BuyerID == nil || *after.BuyerID != user.ID || after.SoldAt == nil {
		t.Fatalf("listing not settled: %+v", after)
	}

	engine.DB.First(&trx, result.TransactionID)
	if trx.Status != models.TransactionSucceeded {
		t.Fatalf("transaction status = %s, want succeeded", trx.Status)
	}
	if trx.PaymentIntentID == nil || *trx.PaymentIntentID != "pi_round_trip" {
		t.Fatalf("payment intent id not recorded: %+v", trx.PaymentIntentID)
	}
	if trx.InvestmentID == nil {
		t.Fatal("transaction not linked to investment")
	}

	var inv models.Investment
	if err := engine.DB.First(&inv, *trx.InvestmentID).Error; err != nil {
		t.Fatalf("load investment: %v", err)
	}
	if inv.Status != models.InvestmentConfirmed || inv.UserID != user.ID || inv.Amount != 150.00 {
		t.Fatalf("investment not confirmed: %+v", inv)
	}

	var freshUser models.User
	engine.DB.First(&freshUser, user.ID)
	if freshUser.ListingsCount != 1 || freshUser.TotalInvested != 150.00 {
		t.Fatalf("user aggregates = (%d, %.2f), want (1, 150.00)", freshUser.ListingsCount, freshUser.TotalInvested)
	}
}

func TestWebhookReplayIsNoOp(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "bob@example.com")
	listing := seedListing(t, engine.DB, 90.00)

	result, err := engine.InitiateCheckout(ctx, listing.ID, user.ID)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}

	payload := webhookPayload(t, result.SessionID, "pi_replay", listing.ID)
	if err := engine.HandleWebhook(ctx, payload, signedHeader(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := engine.HandleWebhook(ctx, payload, signedHeader(payload)); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var invCount int64
	engine.DB.Model(&models.Investment{}).Count(&invCount)
	if invCount != 1 {
		t.Fatalf("investments after replay = %d, want 1", invCount)
	}

	var freshUser models.User
	engine.DB.First(&freshUser, user.ID)
	if freshUser.ListingsCount != 1 || freshUser.TotalInvested != 90.00 {
		t.Fatalf("aggregates changed on replay: (%d, %.2f)", freshUser.ListingsCount, freshUser.TotalInvested)
	}
}

func TestConcurrentSettlementSingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	alice := seedUser(t, engine.DB, "alice@example.com")
	bob := seedUser(t, engine.DB, "bob@example.com")
	listing := seedListing(t, engine.DB, 200.00)

	resA, err := engine.InitiateCheckout(ctx, listing.ID, alice.ID)
	if err != nil {
		t.Fatalf("alice checkout: %v", err)
	}
	resB, err := engine.InitiateCheckout(ctx, listing.ID, bob.ID)
	if err != nil {
		t.Fatalf("bob checkout: %v", err)
	}

	payloadA := webhookPayload(t, resA.SessionID, "pi_alice", listing.ID)
	payloadB := webhookPayload(t, resB.SessionID, "pi_bob", listing.ID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := engine.HandleWebhook(ctx, payloadA, signedHeader(payloadA)); err != nil {
			t.Errorf("alice webhook: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := engine.HandleWebhook(ctx, payloadB, signedHeader(payloadB)); err != nil {
			t.Errorf("bob webhook: %v", err)
		}
	}()
	wg.Wait()

	var sold int64
	engine.DB.Model(&models.Listing{}).Where("sold = ?", true).Count(&sold)
	if sold != 1 {
		t.Fatalf("sold listings = %d, want 1", sold)
	}

	var invCount int64
	engine.DB.Model(&models.Investment{}).Count(&invCount)
	if invCount != 1 {
		t.Fatalf("investments = %d, want exactly 1", invCount)
	}

	// Both payments were captured: both transactions end succeeded, but the
	// loser has no investment link and shows up in the reconciliation report.
	var succeeded, unlinked int64
	engine.DB.Model(&models.Transaction{}).Where("status = ?", models.TransactionSucceeded).Count(&succeeded)
	engine.DB.Model(&models.Transaction{}).
		Where("status = ? AND investment_id IS NULL", models.TransactionSucceeded).Count(&unlinked)
	if succeeded != 2 {
		t.Fatalf("succeeded transactions = %d, want 2", succeeded)
	}
	if unlinked != 1 {
		t.Fatalf("unreconciled transactions = %d, want 1", unlinked)
	}

	// Exactly one buyer's aggregates moved.
	var aliceRow, bobRow models.User
	engine.DB.First(&aliceRow, alice.ID)
	engine.DB.First(&bobRow, bob.ID)
	if aliceRow.ListingsCount+bobRow.ListingsCount != 1 {
		t.Fatalf("total listings_count = %d, want 1", aliceRow.ListingsCount+bobRow.ListingsCount)
	}
}

func TestConfirmPaymentIntentSettles(t *testing.T) {
	engine, fake := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "carol@example.com")
	listing := seedListing(t, engine.DB, 150.00)

	inv := models.Investment{
		UserID: user.ID, ListingID: listing.ID, Amount: listing.Price,
		Status: models.InvestmentPending, Active: true, InvestedAt: time.Now(),
	}
	if err := engine.DB.Create(&inv).Error; err != nil {
		t.Fatalf("seed investment: %v", err)
	}

	intent, err := engine.CreatePaymentIntent(ctx, inv.ID, user.ID)
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	if fake.intents[0].Amount != 15000 {
		t.Fatalf("intent amount = %d, want 15000", fake.intents[0].Amount)
	}

	settled, err := engine.ConfirmPaymentIntent(ctx, intent.PaymentIntentID, inv.ID, user.ID)
	if err != nil {
		t.Fatalf("ConfirmPaymentIntent: %v", err)
	}
	if settled.ID != inv.ID {
		t.Fatalf("settled a different investment: %d != %d", settled.ID, inv.ID)
	}
	if settled.Status != models.InvestmentConfirmed || settled.TransactionID == nil {
		t.Fatalf("investment not confirmed: %+v", settled)
	}

	var after models.Listing
	engine.DB.First(&after, listing.ID)
	if !after.Sold || after.BuyerID == nil || *after.BuyerID != user.ID {
		t.Fatalf("listing not settled: %+v", after)
	}

	var freshUser models.User
	engine.DB.First(&freshUser, user.ID)
	if freshUser.TotalInvested != 150.00 {
		t.Fatalf("total_invested = %.2f, want 150.00", freshUser.TotalInvested)
	}

	// Confirming again: the investment is no longer pending.
	if _, err := engine.ConfirmPaymentIntent(ctx, intent.PaymentIntentID, inv.ID, user.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second confirm err = %v, want ErrInvalidState", err)
	}
}

func TestConfirmPaymentIntentIncompleteLeavesStateUntouched(t *testing.T) {
	engine, fake := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "dave@example.com")
	listing := seedListing(t, engine.DB, 120.00)

	inv := models.Investment{
		UserID: user.ID, ListingID: listing.ID, Amount: listing.Price,
		Status: models.InvestmentPending, Active: true, InvestedAt: time.Now(),
	}
	if err := engine.DB.Create(&inv).Error; err != nil {
		t.Fatalf("seed investment: %v", err)
	}

	fake.intentStatus = gateway.IntentProcessing

	_, err := engine.ConfirmPaymentIntent(ctx, "pi_processing", inv.ID, user.ID)
	if !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("err = %v, want ErrPaymentIncomplete", err)
	}

	var trxCount int64
	engine.DB.Model(&models.Transaction{}).Count(&trxCount)
	if trxCount != 0 {
		t.Fatalf("transactions created = %d, want 0", trxCount)
	}
	var freshInv models.Investment
	engine.DB.First(&freshInv, inv.ID)
	if freshInv.Status != models.InvestmentPending {
		t.Fatalf("investment status mutated to %s", freshInv.Status)
	}
	var freshListing models.Listing
	engine.DB.First(&freshListing, listing.ID)
	if freshListing.Sold || !freshListing.Available {
		t.Fatalf("listing mutated: %+v", freshListing)
	}
}

func TestWebhookInvalidSignatureRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "eve@example.com")
	listing := seedListing(t, engine.DB, 80.00)

	result, err := engine.InitiateCheckout(ctx, listing.ID, user.ID)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}

	payload := webhookPayload(t, result.SessionID, "pi_forged", listing.ID)
	forged := gateway.SignatureHeader(payload, time.Now().Unix(), "whsec_wrong")

	err = engine.HandleWebhook(ctx, payload, forged)
	if !errors.Is(err, gateway.ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}

	var trx models.Transaction
	engine.DB.First(&trx, result.TransactionID)
	if trx.Status != models.TransactionPending {
		t.Fatalf("transaction mutated on forged webhook: %s", trx.Status)
	}
	var freshListing models.Listing
	engine.DB.First(&freshListing, listing.ID)
	if freshListing.Sold {
		t.Fatal("listing sold on forged webhook")
	}
}

func TestInitiateCheckoutGatewayDown(t *testing.T) {
	engine, fake := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "frank@example.com")
	listing := seedListing(t, engine.DB, 50.00)

	fake.failCreate = true

	_, err := engine.InitiateCheckout(ctx, listing.ID, user.ID)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}

	// The pending row was written before the outbound call and flips to failed.
	var trx models.Transaction
	if err := engine.DB.Where("user_id = ?", user.ID).First(&trx).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if trx.Status != models.TransactionFailed {
		t.Fatalf("transaction status = %s, want failed", trx.Status)
	}
}

func TestInitiateCheckoutUnavailableListing(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "gina@example.com")
	listing := seedListing(t, engine.DB, 50.00)
	engine.DB.Model(listing).Updates(map[string]interface{}{"available": false})

	if _, err := engine.InitiateCheckout(ctx, listing.ID, user.ID); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if _, err := engine.InitiateCheckout(ctx, 9999, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExpireStaleCheckouts(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "henri@example.com")
	listing := seedListing(t, engine.DB, 60.00)

	stale := models.Transaction{
		UserID: user.ID, Reference: "BRB-STALE", Amount: 60,
		Kind: models.TransactionPurchase, Status: models.TransactionPending,
	}
	engine.DB.Create(&stale)
	engine.DB.Model(&stale).Update("created_at", time.Now().Add(-48*time.Hour))

	fresh := models.Transaction{
		UserID: user.ID, Reference: "BRB-FRESH", Amount: 60,
		Kind: models.TransactionPurchase, Status: models.TransactionPending,
	}
	engine.DB.Create(&fresh)

	staleInv := models.Investment{
		UserID: user.ID, ListingID: listing.ID, Amount: 60,
		Status: models.InvestmentPending, Active: true, InvestedAt: time.Now().Add(-48 * time.Hour),
	}
	engine.DB.Create(&staleInv)
	engine.DB.Model(&staleInv).Update("created_at", time.Now().Add(-48*time.Hour))

	processed, err := engine.ExpireStaleCheckouts(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStaleCheckouts: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}

	var staleAfter models.Transaction
	engine.DB.First(&staleAfter, stale.ID)
	if staleAfter.Status != models.TransactionFailed {
		t.Fatalf("stale transaction status = %s, want failed", staleAfter.Status)
	}
	var freshAfter models.Transaction
	engine.DB.First(&freshAfter, fresh.ID)
	if freshAfter.Status != models.TransactionPending {
		t.Fatalf("fresh transaction expired: %s", freshAfter.Status)
	}
	var invAfter models.Investment
	engine.DB.First(&invAfter, staleInv.ID)
	if invAfter.Status != models.InvestmentCancelled || invAfter.Active {
		t.Fatalf("stale investment not cancelled: %+v", invAfter)
	}
}

func TestRecordGain(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "iris@example.com")
	listing := seedListing(t, engine.DB, 100.00)

	inv := models.Investment{
		UserID: user.ID, ListingID: listing.ID, Amount: 100,
		Status: models.InvestmentConfirmed, Active: true, InvestedAt: time.Now(),
	}
	engine.DB.Create(&inv)

	trx, err := engine.RecordGain(ctx, inv.ID, 12.345)
	if err != nil {
		t.Fatalf("RecordGain: %v", err)
	}
	if trx.Kind != models.TransactionGain || trx.Status != models.TransactionSucceeded {
		t.Fatalf("gain transaction: %+v", trx)
	}
	if trx.Amount != 12.35 {
		t.Fatalf("gain amount = %.4f, want 12.35", trx.Amount)
	}

	var fresh models.Investment
	engine.DB.First(&fresh, inv.ID)
	if fresh.Gains != 12.35 {
		t.Fatalf("gains = %.4f, want 12.35", fresh.Gains)
	}

	pending := models.Investment{
		UserID: user.ID, ListingID: listing.ID + 1, Amount: 100,
		Status: models.InvestmentPending, Active: true, InvestedAt: time.Now(),
	}
	engine.DB.Create(&pending)
	if _, err := engine.RecordGain(ctx, pending.ID, 5); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("gain on pending investment err = %v, want ErrInvalidState", err)
	}
	if _, err := engine.RecordGain(ctx, inv.ID, -1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("negative gain err = %v, want ErrInvalidState", err)
	}
}

func TestAuditUserAggregates(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	user := seedUser(t, engine.DB, "jules@example.com")
	listing := seedListing(t, engine.DB, 150.00)

	result, err := engine.InitiateCheckout(ctx, listing.ID, user.ID)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	payload := webhookPayload(t, result.SessionID, "pi_audit", listing.ID)
	if err := engine.HandleWebhook(ctx, payload, signedHeader(payload)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	audit, err := engine.AuditUserAggregates(ctx, user.ID)
	if err != nil {
		t.Fatalf("AuditUserAggregates: %v", err)
	}
	if !audit.Consistent {
		t.Fatalf("expected consistent aggregates, got %+v", audit)
	}

	// Simulate drift applied outside the engine.
	engine.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("total_invested", 999)

	audit, err = engine.AuditUserAggregates(ctx, user.ID)
	if err != nil {
		t.Fatalf("AuditUserAggregates after drift: %v", err)
	}
	if audit.Consistent {
		t.Fatal("drift not detected")
	}
	if audit.DerivedTotal != 150.00 || audit.DerivedCount != 1 {
		t.Fatalf("derived = (%d, %.2f), want (1, 150.00)", audit.DerivedCount, audit.DerivedTotal)
	}
}
