package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds the age of a webhook signature timestamp. An old
// timestamp with a valid signature is a replayed capture, not a delivery.
const DefaultTolerance = 5 * time.Minute

// Event is the envelope the provider posts to our webhook endpoint.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Session decodes the event payload as a checkout session.
func (e *Event) Session() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("webhook: objet session invalide: %w", err)
	}
	return &s, nil
}

// ConstructEvent verifies the Stripe-Signature header (t=<unix>,v1=<hmac hex>)
// against the raw payload and the shared webhook secret, then decodes the
// event. It fails closed: any parse or verification problem yields
// ErrSignatureInvalid and the caller must not mutate anything.
func ConstructEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	return constructEventAt(payload, sigHeader, secret, time.Now(), DefaultTolerance)
}

func constructEventAt(payload []byte, sigHeader, secret string, now time.Time, tolerance time.Duration) (*Event, error) {
	if sigHeader == "" || secret == "" {
		return nil, ErrSignatureInvalid
	}

	var ts int64 = -1
	var sigs [][]byte
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, ErrSignatureInvalid
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if ts < 0 || len(sigs) == 0 {
		return nil, ErrSignatureInvalid
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return nil, ErrSignatureInvalid
	}

	expected := ComputeSignature(payload, ts, secret)
	valid := false
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("webhook: payload invalide: %w", err)
	}
	return &event, nil
}

// ComputeSignature returns HMAC-SHA256("<t>.<payload>", secret). Exposed so
// tests and replay tooling can build valid headers.
func ComputeSignature(payload []byte, ts int64, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeader builds a Stripe-Signature header value for the payload.
func SignatureHeader(payload []byte, ts int64, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(ComputeSignature(payload, ts, secret)))
}
