package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func samplePayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_1",
		"type": EventCheckoutCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             "cs_test_1",
				"payment_intent": "pi_test_1",
				"payment_status": SessionPaid,
				"metadata":       map[string]string{"listing_id": "7"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func TestConstructEventValidSignature(t *testing.T) {
	payload := samplePayload(t)
	now := time.Unix(1700000000, 0)
	header := SignatureHeader(payload, now.Unix(), "whsec_test")

	event, err := constructEventAt(payload, header, "whsec_test", now, DefaultTolerance)
	if err != nil {
		t.Fatalf("constructEventAt: %v", err)
	}
	if event.Type != EventCheckoutCompleted {
		t.Fatalf("event type = %s", event.Type)
	}

	session, err := event.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if session.ID != "cs_test_1" || session.PaymentIntentID != "pi_test_1" {
		t.Fatalf("session = %+v", session)
	}
	if session.Metadata["listing_id"] != "7" {
		t.Fatalf("metadata = %v", session.Metadata)
	}
}

func TestConstructEventRejectsBadSignatures(t *testing.T) {
	payload := samplePayload(t)
	now := time.Unix(1700000000, 0)

	cases := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"wrong secret", SignatureHeader(payload, now.Unix(), "whsec_wrong")},
		{"garbage", "t=abc,v1=zz"},
		{"missing signature", "t=1700000000"},
		{"missing timestamp", "v1=deadbeef"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := constructEventAt(payload, tc.header, "whsec_test", now, DefaultTolerance)
			if !errors.Is(err, ErrSignatureInvalid) {
				t.Fatalf("err = %v, want ErrSignatureInvalid", err)
			}
		})
	}
}

func TestConstructEventRejectsTamperedPayload(t *testing.T) {
	payload := samplePayload(t)
	now := time.Unix(1700000000, 0)
	header := SignatureHeader(payload, now.Unix(), "whsec_test")

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'

	if _, err := constructEventAt(tampered, header, "whsec_test", now, DefaultTolerance); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
}

func TestConstructEventTimestampTolerance(t *testing.T) {
	payload := samplePayload(t)
	now := time.Unix(1700000000, 0)

	// Inside the window.
	ts := now.Add(-4 * time.Minute).Unix()
	if _, err := constructEventAt(payload, SignatureHeader(payload, ts, "whsec_test"), "whsec_test", now, DefaultTolerance); err != nil {
		t.Fatalf("signature inside tolerance rejected: %v", err)
	}

	// Replayed capture from outside the window.
	ts = now.Add(-6 * time.Minute).Unix()
	if _, err := constructEventAt(payload, SignatureHeader(payload, ts, "whsec_test"), "whsec_test", now, DefaultTolerance); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatal("stale signature accepted")
	}

	// A timestamp from the future is just as suspect.
	ts = now.Add(6 * time.Minute).Unix()
	if _, err := constructEventAt(payload, SignatureHeader(payload, ts, "whsec_test"), "whsec_test", now, DefaultTolerance); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatal("future signature accepted")
	}
}

func TestConstructEventMultipleSignatures(t *testing.T) {
	// Providers send multiple v1 entries during secret rotation; one valid
	// signature is enough.
	payload := samplePayload(t)
	now := time.Unix(1700000000, 0)

	good := SignatureHeader(payload, now.Unix(), "whsec_test")
	header := "t=1700000000,v1=deadbeef," + good[len("t=1700000000,"):]

	if _, err := constructEventAt(payload, header, "whsec_test", now, DefaultTolerance); err != nil {
		t.Fatalf("rotation header rejected: %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{150.00, 15000},
		{0.1, 10},
		{19.99, 1999},
		{0.005, 1},
	}
	for _, tc := range cases {
		if got := MinorUnits(tc.amount); got != tc.want {
			t.Errorf("MinorUnits(%v) = %d, want %d", tc.amount, got, tc.want)
		}
	}
	if got := FromMinorUnits(15000); got != 150.00 {
		t.Errorf("FromMinorUnits(15000) = %v", got)
	}
}
