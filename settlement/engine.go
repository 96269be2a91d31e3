package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/mohamedamine596/brebis-server/gateway"
	"github.com/mohamedamine596/brebis-server/models"
	"github.com/mohamedamine596/brebis-server/utils"

	"gorm.io/gorm"
)

// Engine applies the exactly-once state transitions that turn a successful
// external payment into durable marketplace state: listing sold, investment
// confirmed, transaction succeeded, user aggregates incremented. Two entry
// paths (explicit payment-intent confirmation and asynchronous checkout
// webhook) converge on the single settle routine.
type Engine struct {
	DB            *gorm.DB
	Gateway       gateway.PaymentGateway
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

func NewEngine(db *gorm.DB, gw gateway.PaymentGateway) *Engine {
	currency := os.Getenv("PAYMENT_CURRENCY")
	if currency == "" {
		currency = "eur"
	}
	frontend := os.Getenv("FRONTEND_URL")
	return &Engine{
		DB:            db,
		Gateway:       gw,
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:      currency,
		SuccessURL:    frontend + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     frontend + "/payment/cancel",
	}
}

type CheckoutResult struct {
	TransactionID uint   `json:"transaction_id"`
	Reference     string `json:"reference"`
	SessionID     string `json:"session_id"`
	URL           string `json:"url"`
}

type IntentResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
}

// InitiateCheckout persists a pending purchase transaction, then asks the
// gateway for a hosted checkout session bound to it. The pending row is
// written before the outbound call so retries simply stack more pending
// transactions; stale ones are reaped by ExpireStaleCheckouts.
func (e *Engine) InitiateCheckout(ctx context.Context, listingID, userID uint) (*CheckoutResult, error) {
	var listing models.Listing
	if err := e.DB.WithContext(ctx).First(&listing, listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !listing.Available || listing.Sold {
		return nil, ErrUnavailable
	}

	trx := models.Transaction{
		UserID:        userID,
		Reference:     utils.GenerateReferenceID(userID),
		Amount:        listing.Price,
		Kind:          models.TransactionPurchase,
		Status:        models.TransactionPending,
		PaymentMethod: "stripe",
		Description:   fmt.Sprintf("Achat de la brebis %s", listing.Name),
	}
	if err := e.DB.WithContext(ctx).Create(&trx).Error; err != nil {
		return nil, err
	}

	session, err := e.Gateway.CreateCheckoutSession(ctx, gateway.SessionParams{
		Amount:      gateway.MinorUnits(listing.Price),
		Currency:    e.Currency,
		Name:        listing.Name,
		Description: listing.Description,
		SuccessURL:  e.SuccessURL,
		CancelURL:   e.CancelURL,
		Metadata: map[string]string{
			"transaction_id": strconv.FormatUint(uint64(trx.ID), 10),
			"listing_id":     strconv.FormatUint(uint64(listing.ID), 10),
			"user_id":        strconv.FormatUint(uint64(userID), 10),
			"reference":      trx.Reference,
		},
	})
	if err != nil {
		_ = e.DB.WithContext(ctx).Model(&trx).Update("status", models.TransactionFailed).Error
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, ErrGatewayUnavailable
		}
		return nil, err
	}

	if err := e.DB.WithContext(ctx).Model(&trx).Update("session_id", session.ID).Error; err != nil {
		return nil, err
	}

	return &CheckoutResult{
		TransactionID: trx.ID,
		Reference:     trx.Reference,
		SessionID:     session.ID,
		URL:           session.URL,
	}, nil
}

// CreatePaymentIntent requests a payment intent scoped to a pending
// investment's amount. No transaction row exists yet; it is created at
// confirmation time.
func (e *Engine) CreatePaymentIntent(ctx context.Context, investmentID, userID uint) (*IntentResult, error) {
	var inv models.Investment
	if err := e.DB.WithContext(ctx).Preload("Listing").First(&inv, investmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inv.UserID != userID {
		return nil, ErrForbidden
	}
	if inv.Status != models.InvestmentPending {
		return nil, ErrInvalidState
	}

	metadata := map[string]string{
		"investment_id": strconv.FormatUint(uint64(inv.ID), 10),
		"listing_id":    strconv.FormatUint(uint64(inv.ListingID), 10),
		"user_id":       strconv.FormatUint(uint64(userID), 10),
	}
	if inv.Listing != nil {
		metadata["listing_name"] = inv.Listing.Name
	}

	intent, err := e.Gateway.CreatePaymentIntent(ctx, gateway.IntentParams{
		Amount:   gateway.MinorUnits(inv.Amount),
		Currency: e.Currency,
		Metadata: metadata,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, ErrGatewayUnavailable
		}
		return nil, err
	}

	return &IntentResult{PaymentIntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmPaymentIntent settles a pending investment after re-fetching the
// intent status from the gateway. Client-supplied statuses are never trusted.
func (e *Engine) ConfirmPaymentIntent(ctx context.Context, intentID string, investmentID, userID uint) (*models.Investment, error) {
	intent, err := e.Gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, ErrGatewayUnavailable
		}
		return nil, err
	}
	if intent.Status != gateway.IntentSucceeded {
		return nil, ErrPaymentIncomplete
	}

	var inv models.Investment
	if err := e.DB.WithContext(ctx).Preload("Listing").First(&inv, investmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inv.UserID != userID {
		return nil, ErrForbidden
	}
	if inv.Status != models.InvestmentPending {
		return nil, ErrInvalidState
	}

	// Correlation ids are unique: a second confirmation with the same intent
	// is a duplicate, not a new payment.
	var dup int64
	if err := e.DB.WithContext(ctx).Model(&models.Transaction{}).Where("payment_intent_id = ?", intentID).Count(&dup).Error; err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, ErrConflict
	}

	listingName := ""
	if inv.Listing != nil {
		listingName = inv.Listing.Name
	}
	trx := models.Transaction{
		UserID:        userID,
		Reference:     utils.GenerateReferenceID(userID),
		Amount:        inv.Amount,
		Kind:          models.TransactionPurchase,
		Status:        models.TransactionPending,
		PaymentMethod: "stripe",
		Description:   fmt.Sprintf("Paiement pour investissement dans %s", listingName),
	}
	if err := e.DB.WithContext(ctx).Create(&trx).Error; err != nil {
		return nil, err
	}

	return e.settle(ctx, settleInput{
		TransactionID:   trx.ID,
		ListingID:       inv.ListingID,
		BuyerID:         userID,
		Amount:          inv.Amount,
		PaymentIntentID: intentID,
		Existing:        &inv,
	})
}

// HandleWebhook verifies and applies one gateway event. Signature failures
// reject with zero mutation; every other anomaly is logged and acknowledged so
// the provider stops redelivering. Processing is idempotent under
// at-least-once delivery, keyed by the checkout session id.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := gateway.ConstructEvent(payload, sigHeader, e.WebhookSecret)
	if err != nil {
		return err
	}

	if event.Type != gateway.EventCheckoutCompleted {
		return nil
	}

	session, err := event.Session()
	if err != nil {
		log.Printf("[settlement] webhook %s: %v", event.ID, err)
		return nil
	}

	var trx models.Transaction
	if err := e.DB.WithContext(ctx).Where("session_id = ?", session.ID).First(&trx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Duplicate or foreign event; acknowledge without mutation.
			log.Printf("[settlement] webhook %s: aucune transaction pour la session %s", event.ID, session.ID)
			return nil
		}
		return err
	}

	if trx.Status != models.TransactionPending {
		// Replay of an already-settled (or failed) transaction.
		log.Printf("[settlement] webhook %s: transaction %d déjà %s, ignoré", event.ID, trx.ID, trx.Status)
		return nil
	}

	listingID64, err := strconv.ParseUint(session.Metadata["listing_id"], 10, 64)
	if err != nil || listingID64 == 0 {
		log.Printf("[settlement] webhook %s: listing_id manquant dans les métadonnées de la session %s", event.ID, session.ID)
		return nil
	}
	listingID := uint(listingID64)

	// The webhook path normally has no prior investment, but if the buyer
	// also went through the explicit flow, converge on their pending record
	// instead of creating a duplicate.
	var existing *models.Investment
	var pending models.Investment
	err = e.DB.WithContext(ctx).
		Where("user_id = ? AND listing_id = ? AND status = ?", trx.UserID, listingID, models.InvestmentPending).
		First(&pending).Error
	if err == nil {
		existing = &pending
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	_, err = e.settle(ctx, settleInput{
		TransactionID:   trx.ID,
		ListingID:       listingID,
		BuyerID:         trx.UserID,
		Amount:          trx.Amount,
		PaymentIntentID: session.PaymentIntentID,
		Existing:        existing,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Logged inside settle; acknowledge so the gateway stops retrying.
			return nil
		}
		return err
	}
	return nil
}

type settleInput struct {
	TransactionID   uint
	ListingID       uint
	BuyerID         uint
	Amount          float64
	PaymentIntentID string
	Existing        *models.Investment
}

// settle is the single settlement transition shared by both entry paths. The
// listing compare-and-swap on sold=false is the linearization point: when it
// loses, the enclosing transaction rolls back and nothing else commits. The
// losing payment was still captured by the gateway, so its transaction is then
// marked succeeded-but-unlinked and flagged for manual reconciliation; this
// system does not automate refunds.
func (e *Engine) settle(ctx context.Context, in settleInput) (*models.Investment, error) {
	var settled models.Investment

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		res := tx.Model(&models.Listing{}).
			Where("id = ? AND sold = ?", in.ListingID, false).
			Updates(map[string]interface{}{
				"available": false,
				"sold":      true,
				"buyer_id":  in.BuyerID,
				"sold_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		trxUpdates := map[string]interface{}{"status": models.TransactionSucceeded}
		if in.PaymentIntentID != "" {
			trxUpdates["payment_intent_id"] = in.PaymentIntentID
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", in.TransactionID).Updates(trxUpdates).Error; err != nil {
			return err
		}

		if in.Existing != nil {
			if err := tx.Model(&models.Investment{}).Where("id = ?", in.Existing.ID).Updates(map[string]interface{}{
				"status":         models.InvestmentConfirmed,
				"transaction_id": in.TransactionID,
			}).Error; err != nil {
				return err
			}
			if err := tx.First(&settled, in.Existing.ID).Error; err != nil {
				return err
			}
		} else {
			trxID := in.TransactionID
			settled = models.Investment{
				UserID:        in.BuyerID,
				ListingID:     in.ListingID,
				Amount:        in.Amount,
				Status:        models.InvestmentConfirmed,
				TransactionID: &trxID,
				Active:        true,
				InvestedAt:    now,
			}
			if err := tx.Create(&settled).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.User{}).Where("id = ?", in.BuyerID).Updates(map[string]interface{}{
			"listings_count": gorm.Expr("listings_count + 1"),
			"total_invested": gorm.Expr("total_invested + ?", in.Amount),
		}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Transaction{}).Where("id = ?", in.TransactionID).
			Update("investment_id", settled.ID).Error
	})

	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.flagUnreconciled(ctx, in)
		}
		return nil, err
	}

	return &settled, nil
}

// flagUnreconciled records that a captured payment lost the race for a
// listing: the transaction ends succeeded with no investment link, and an
// operator must refund it by hand.
func (e *Engine) flagUnreconciled(ctx context.Context, in settleInput) {
	updates := map[string]interface{}{"status": models.TransactionSucceeded}
	if in.PaymentIntentID != "" {
		updates["payment_intent_id"] = in.PaymentIntentID
	}
	if err := e.DB.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", in.TransactionID).Updates(updates).Error; err != nil {
		// Retry without the correlation id; a concurrent duplicate may hold it.
		delete(updates, "payment_intent_id")
		_ = e.DB.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", in.TransactionID).Updates(updates).Error
	}
	log.Printf("[settlement] conflit: brebis %d déjà vendue, transaction %d encaissée sans investissement — remboursement manuel requis",
		in.ListingID, in.TransactionID)
}

// ExpireStaleCheckouts resolves abandoned checkouts: pending purchase
// transactions older than ttl become failed, and pending investments older
// than ttl are cancelled. Driven by the cron endpoint.
func (e *Engine) ExpireStaleCheckouts(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	processed := 0

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Transaction{}).
			Where("kind = ? AND status = ? AND created_at < ?", models.TransactionPurchase, models.TransactionPending, cutoff).
			Update("status", models.TransactionFailed)
		if res.Error != nil {
			return res.Error
		}
		processed += int(res.RowsAffected)

		res = tx.Model(&models.Investment{}).
			Where("status = ? AND created_at < ?", models.InvestmentPending, cutoff).
			Updates(map[string]interface{}{"status": models.InvestmentCancelled, "active": false})
		if res.Error != nil {
			return res.Error
		}
		processed += int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// RecordGain credits accrued gains on a confirmed investment: the monotonic
// gains counter grows and a succeeded gain transaction is written.
func (e *Engine) RecordGain(ctx context.Context, investmentID uint, amount float64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidState
	}

	var inv models.Investment
	if err := e.DB.WithContext(ctx).Preload("Listing").First(&inv, investmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inv.Status != models.InvestmentConfirmed {
		return nil, ErrInvalidState
	}

	listingName := ""
	if inv.Listing != nil {
		listingName = inv.Listing.Name
	}
	trx := models.Transaction{
		UserID:        inv.UserID,
		Reference:     utils.GenerateReferenceID(inv.UserID),
		Amount:        utils.Round2(amount),
		Kind:          models.TransactionGain,
		Status:        models.TransactionSucceeded,
		PaymentMethod: "virement",
		Description:   fmt.Sprintf("Gains sur la brebis %s", listingName),
	}

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Investment{}).Where("id = ?", inv.ID).
			Update("gains", gorm.Expr("gains + ?", trx.Amount)).Error; err != nil {
			return err
		}
		return tx.Create(&trx).Error
	})
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// AggregateAudit compares a user's materialized counters against the values
// derivable from their confirmed investments.
type AggregateAudit struct {
	UserID        uint    `json:"user_id"`
	ListingsCount int     `json:"listings_count"`
	TotalInvested float64 `json:"total_invested"`
	DerivedCount  int     `json:"derived_count"`
	DerivedTotal  float64 `json:"derived_total"`
	Consistent    bool    `json:"consistent"`
}

// AuditUserAggregates recomputes the aggregates the settlement transition
// maintains. The counters are a materialized cache; drift means a settlement
// was applied outside this engine and needs investigation.
func (e *Engine) AuditUserAggregates(ctx context.Context, userID uint) (*AggregateAudit, error) {
	var user models.User
	if err := e.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var derived struct {
		Count int64
		Total float64
	}
	if err := e.DB.WithContext(ctx).Model(&models.Investment{}).
		Select("COUNT(*) as count, COALESCE(SUM(amount),0) as total").
		Where("user_id = ? AND status = ?", userID, models.InvestmentConfirmed).
		Scan(&derived).Error; err != nil {
		return nil, err
	}

	audit := &AggregateAudit{
		UserID:        user.ID,
		ListingsCount: user.ListingsCount,
		TotalInvested: user.TotalInvested,
		DerivedCount:  int(derived.Count),
		DerivedTotal:  utils.Round2(derived.Total),
	}
	audit.Consistent = audit.ListingsCount == audit.DerivedCount &&
		utils.Round2(audit.TotalInvested) == audit.DerivedTotal
	return audit, nil
}
