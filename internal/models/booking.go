package models

import (
	"math"
	"time"
)

type Booking struct {
	ID            string    `json:"id"`
	ServiceID     string    `json:"service_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	PaymentOption string    `json:"payment_option"` // full, deposit
	Status        string    `json:"status"`         // pending, confirmed, completed, cancelled
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   float64   `json:"total_amount"`
	DepositAmount float64   `json:"deposit_amount"`
	IsMaintenance bool      `json:"is_maintenance"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Occupies reports whether the booking holds its (date, time) slot.
func (b *Booking) Occupies() bool {
	return b.Status != StatusCancelled
}

// Slot returns the public projection of the booking.
func (b *Booking) Slot() BookedSlot {
	return BookedSlot{Date: b.Date, Time: b.Time, Status: b.Status}
}

// AmountDue is what the customer pays now for the chosen option.
func (b *Booking) AmountDue() float64 {
	if b.PaymentOption == PaymentOptionDeposit {
		return b.DepositAmount
	}
	return b.TotalAmount
}

// Amounts holds the money figures of a checkout.
type Amounts struct {
	Total   float64 `json:"total_amount"`
	Deposit float64 `json:"deposit_amount"`
	Due     float64 `json:"amount_due"`
}

// ComputeAmounts applies the deposit rule to a service price.
func ComputeAmounts(price int64, option string) Amounts {
	total := float64(price)
	deposit := math.Round(total*DepositPercent) / 100
	due := total
	if option == PaymentOptionDeposit {
		due = deposit
	}
	return Amounts{Total: total, Deposit: deposit, Due: due}
}

func ValidPaymentOption(option string) bool {
	return option == PaymentOptionFull || option == PaymentOptionDeposit
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
// completed and cancelled are terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is allowed.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// BookingFilter narrows admin booking listings.
type BookingFilter struct {
	IncludePending bool
	Status         string
	DateFrom       string
	DateTo         string
}
