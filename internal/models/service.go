package models

import "time"

// Service is a purchasable treatment.
type Service struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Price       int64     `json:"price" yaml:"price"`
	Description string    `json:"description" yaml:"description"`
	Image       string    `json:"image" yaml:"image"`
	Popular     bool      `json:"popular" yaml:"popular"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// PriceMapping links a service to the payment provider's price references.
type PriceMapping struct {
	ServiceID      string `json:"service_id" yaml:"service_id"`
	ProductID      string `json:"stripe_product_id" yaml:"product_id"`
	PriceFullID    string `json:"stripe_price_full_id" yaml:"price_full_id"`
	PriceDepositID string `json:"stripe_price_deposit_id" yaml:"price_deposit_id"`
}

// PriceFor returns the provider price reference for a payment option.
func (m *PriceMapping) PriceFor(option string) string {
	if option == PaymentOptionDeposit {
		return m.PriceDepositID
	}
	return m.PriceFullID
}
