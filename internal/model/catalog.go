// Package model defines the entities shared by the fetch, extraction, and
// persistence layers.
package model

import "time"

// Bank is an issuer of card products.
type Bank struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a single card product page belonging to a bank.
type Product struct {
	ID        int64     `json:"id"`
	SetID     int64     `json:"set_id"`
	BankID    int64     `json:"bank_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Characteristic is a named attribute requested from the model. Name is the
// JSON key used in prompts and when mapping replies back.
type Characteristic struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	SetID       *int64    `json:"set_id,omitempty"` // nil for global characteristics
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ValueHint   string    `json:"value_hint"`
	CreatedAt   time.Time `json:"created_at"`
}

// FieldValue is one extracted value for a characteristic.
type FieldValue struct {
	CharacteristicID int64  `json:"characteristic_id"`
	Name             string `json:"name"`
	Value            string `json:"value"`
	Found            bool   `json:"found"`
}

// Value is a persisted observation of a characteristic for a product.
// Runs append; nothing is overwritten.
type Value struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	ProductID        int64     `json:"product_id"`
	CharacteristicID int64     `json:"characteristic_id"`
	Value            string    `json:"value"`
	BatchTag         string    `json:"batch_tag"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	// NotSpecified is stored when extraction found no value.
	NotSpecified = "Не указано"

	// Missing marks report cells that have no observation at all.
	Missing = "—"
)
