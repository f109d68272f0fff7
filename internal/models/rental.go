package models

import "time"

// Rental status values.
const (
	RentalActive    = "active"
	RentalCompleted = "completed"
	RentalExpired   = "expired"
)

// Rental is a time-boxed grant of an account's credentials to a customer.
// ExpiresAt is captured from the website's validity window at creation time;
// later changes to the website do not affect existing rentals.
type Rental struct {
	ID            string
	AccountID     string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	RentedAt      time.Time
	ExpiresAt     time.Time
	ReturnedAt    *time.Time
	Status        string
}

// Customer identifies the renting party. All fields are free text and optional.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// RentalDetails is the credential handoff returned when an account is rented.
type RentalDetails struct {
	RentalID      string    `json:"rental_id"`
	AccountID     string    `json:"id"`
	Website       string    `json:"website"`
	URL           string    `json:"url"`
	Username      string    `json:"username"`
	Password      string    `json:"password"`
	Email         string    `json:"email,omitempty"`
	ValidityHours int       `json:"validity_hours"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ActiveRental is a row from the ledger of currently running rentals.
type ActiveRental struct {
	RentalID     string    `json:"rental_id"`
	AccountID    string    `json:"account_id"`
	Username     string    `json:"username"`
	Website      string    `json:"website"`
	CustomerName string    `json:"customer_name,omitempty"`
	RentedAt     time.Time `json:"rented_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}
