package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nailbook/internal/config"
	"nailbook/internal/domain"

	"github.com/rs/zerolog"
)

const (
	createLinkPath   = "/functions/v1/create-payment-link"
	checkPaymentPath = "/functions/v1/check-payment"
)

// LinkError is a non-success answer from the payment-link function.
// Message is the backend's own text when it sent one.
type LinkError struct {
	StatusCode int
	Message    string
}

func (e *LinkError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment link request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// Client talks to the payment backend's edge functions.
type Client struct {
	baseURL    string
	anonKey    string
	cancelURL  string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewClient(cfg config.PaymentsConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BackendURL, "/"),
		anonKey:    cfg.AnonKey,
		cancelURL:  strings.TrimRight(cfg.PublicBaseURL, "/") + "/booking-cancelled",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type createLinkRequest struct {
	PriceID       string `json:"priceId"`
	AppointmentID string `json:"appointmentId"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl,omitempty"`
}

type createLinkResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// CreatePaymentLink asks the backend for a hosted payment page and returns its URL.
func (c *Client) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (string, error) {
	body, err := json.Marshal(createLinkRequest{
		PriceID:       req.PriceID,
		AppointmentID: req.BookingID,
		SuccessURL:    req.SuccessURL,
		CancelURL:     c.cancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("encode payment link request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createLinkPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build payment link request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("payment link request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read payment link response: %w", err)
	}

	var parsed createLinkResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("booking_id", req.BookingID).
			Str("error", parsed.Error).
			Msg("Payment link request rejected")
		return "", &LinkError{StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode payment link response: %w", decodeErr)
	}
	if parsed.URL == "" {
		return "", &LinkError{StatusCode: resp.StatusCode, Message: parsed.Error}
	}

	c.logger.Info().
		Str("booking_id", req.BookingID).
		Dur("duration", time.Since(start)).
		Msg("Payment link created")
	return parsed.URL, nil
}

type checkPaymentResponse struct {
	Data struct {
		PaymentStatus string `json:"payment_status"`
	} `json:"data"`
}

// CheckPaymentStatus reads a booking's payment status from the backend.
// Missing status reads as pending.
func (c *Client) CheckPaymentStatus(ctx context.Context, bookingID string) (string, error) {
	u := c.baseURL + checkPaymentPath + "?id=" + url.QueryEscape(bookingID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build check payment request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("check payment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("check payment returned status %d", resp.StatusCode)
	}

	var parsed checkPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode check payment response: %w", err)
	}
	if parsed.Data.PaymentStatus == "" {
		return "pending", nil
	}
	return parsed.Data.PaymentStatus, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.anonKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("apikey", c.anonKey)
}
