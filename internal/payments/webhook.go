package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader          = "Stripe-Signature"
	EventCheckoutCompleted   = "checkout.session.completed"
	signatureTolerance       = 5 * time.Minute
	bookingMetadataKey       = "appointment_id"
	sessionPaymentStatusPaid = "paid"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
)

// VerifySignature checks a "t=<unix>,v1=<hex>" header: HMAC-SHA256 over
// "<t>.<payload>" keyed by secret, within five minutes of now.
func VerifySignature(secret string, payload []byte, header string, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}

	var (
		timestamp  string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if d := now.Sub(time.Unix(ts, 0)); d > signatureTolerance || d < -signatureTolerance {
		return ErrSignatureExpired
	}

	expected := Sign(secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the v1 signature for a timestamp and payload.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			ClientReferenceID string            `json:"client_reference_id"`
			PaymentStatus     string            `json:"payment_status"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookEvent is the part of a provider event the booking flow cares about.
type WebhookEvent struct {
	ID        string
	Type      string
	BookingID string
	Paid      bool
}

// Completed reports a paid checkout tied to a booking.
func (e *WebhookEvent) Completed() bool {
	return e.Type == EventCheckoutCompleted && e.Paid && e.BookingID != ""
}

func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, errors.New("webhook event missing id or type")
	}

	obj := env.Data.Object
	bookingID := obj.Metadata[bookingMetadataKey]
	if bookingID == "" {
		bookingID = obj.ClientReferenceID
	}
	return &WebhookEvent{
		ID:        env.ID,
		Type:      env.Type,
		BookingID: bookingID,
		Paid:      obj.PaymentStatus == sessionPaymentStatusPaid || obj.PaymentStatus == "no_payment_required",
	}, nil
}
