package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"nailbook/internal/confirmation"
	"nailbook/internal/database"
	"nailbook/internal/logging"
	"nailbook/internal/metrics"
	"nailbook/internal/models"
	"nailbook/internal/payments"
	"nailbook/internal/service"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, msgNotReady)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.ListServices(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list services")
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": list})
}

func (s *HTTPServer) handleWindow(w http.ResponseWriter, r *http.Request) {
	dates, err := s.deps.Schedule.Window(r.Context(), s.deps.Window)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute bookable window")
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (s *HTTPServer) handleDaySlots(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !models.ValidDate(date) {
		writeError(w, http.StatusBadRequest, msgInvalidDate)
		return
	}
	open, err := s.deps.Schedule.OpenSlots(r.Context(), date)
	if err != nil {
		status, msg := adminError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": open})
}

type checkoutRequest struct {
	service.Draft
	PolicyAccepted bool `json:"policy_accepted"`
}

type checkoutResponse struct {
	BookingID   string `json:"booking_id"`
	RedirectURL string `json:"redirect_url"`
	models.Amounts
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.deps.Bookings.Checkout(r.Context(), body.Draft, body.PolicyAccepted)
	if err != nil {
		status, msg := checkoutError(err)
		if status >= http.StatusInternalServerError {
			logging.FromContext(r.Context(), s.logger).Error().Err(err).Str("service_id", body.ServiceID).Msg("Checkout failed")
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		BookingID:   res.BookingID,
		RedirectURL: res.RedirectURL,
		Amounts:     res.Amounts,
	})
}

func (s *HTTPServer) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.deps.Status.CheckPaymentStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgBookingNotFound)
			return
		}
		s.logger.Warn().Err(err).Str("booking_id", id).Msg("Payment status check failed")
		status = models.PaymentStatusPending
	}
	writeJSON(w, http.StatusOK, map[string]string{"booking_id": id, "payment_status": status})
}

// bookingSummary is what the success page shows; contact data is left out.
type bookingSummary struct {
	ServiceID     string  `json:"service_id"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	PaymentOption string  `json:"payment_option"`
	Status        string  `json:"status"`
	TotalAmount   float64 `json:"total_amount"`
	DepositAmount float64 `json:"deposit_amount"`
	AmountDue     float64 `json:"amount_due"`
}

// handleConfirmation long-polls the payment status for up to the watcher budget.
func (s *HTTPServer) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state := s.deps.Watcher.Watch(r.Context(), id, nil)

	resp := map[string]any{"booking_id": id, "state": state}
	if state == confirmation.StateConfirmed {
		if b, err := s.deps.Bookings.GetBooking(r.Context(), id); err == nil {
			resp["booking"] = bookingSummary{
				ServiceID:     b.ServiceID,
				Date:          b.Date,
				Time:          b.Time,
				PaymentOption: b.PaymentOption,
				Status:        b.Status,
				TotalAmount:   b.TotalAmount,
				DepositAmount: b.DepositAmount,
				AmountDue:     b.AmountDue(),
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhook("invalid")
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := payments.VerifySignature(s.deps.WebhookSecret, payload, r.Header.Get(payments.SignatureHeader), time.Now()); err != nil {
		metrics.IncWebhook("invalid_signature")
		s.logger.Warn().Err(err).Msg("Webhook signature rejected")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	event, err := payments.ParseWebhookEvent(payload)
	if err != nil {
		metrics.IncWebhook("invalid")
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	log := logging.FromContext(r.Context(), s.logger).With().Str("event_id", event.ID).Str("event_type", event.Type).Str("booking_id", event.BookingID).Logger()
	if !event.Completed() {
		metrics.IncWebhook("ignored")
		log.Debug().Msg("Webhook event ignored")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if _, err := s.deps.Bookings.ConfirmPayment(r.Context(), strings.TrimSpace(event.BookingID)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.IncWebhook("unknown_booking")
			log.Warn().Msg("Webhook for unknown booking")
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		metrics.IncWebhook("error")
		log.Error().Err(err).Msg("Failed to confirm payment")
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	metrics.IncWebhook("confirmed")
	log.Info().Msg("Payment confirmed by webhook")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	token, expires, err := s.auth.Login(body.Password)
	if err != nil {
		if errors.Is(err, errWrongPassword) {
			writeError(w, http.StatusUnauthorized, msgWrongPassword)
			return
		}
		s.logger.Error().Err(err).Msg("Failed to sign session token")
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": expires.UTC()})
}
