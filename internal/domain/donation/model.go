package donation

import (
	"errors"
	"strings"
	"time"
)

// Kind constants
const (
	KindFood     = "food"
	KindClothing = "clothing"
	KindHygiene  = "hygiene"
	KindMoney    = "money"
	KindOther    = "other"
)

// MaxDonorLength bounds the donor name.
const MaxDonorLength = 120

// ValidKinds contains all valid donation kinds.
var ValidKinds = []string{KindFood, KindClothing, KindHygiene, KindMoney, KindOther}

// Domain errors
var (
	ErrEmptyDonor      = errors.New("donor cannot be empty")
	ErrDonorTooLong    = errors.New("donor cannot exceed 120 characters")
	ErrInvalidKind     = errors.New("kind must be one of: food, clothing, hygiene, money, other")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidValue    = errors.New("value cannot be negative")
	ErrMoneyNeedsValue = errors.New("money donations must have a value")
	ErrInvalidEmail    = errors.New("donor email must contain '@'")
	ErrMissingReceived = errors.New("received time must be set")
)

// Donation is an item or money gift received by the center.
type Donation struct {
	ID         string    `json:"id"`
	Donor      string    `json:"donor"`
	DonorEmail string    `json:"donor_email,omitempty"` // optional; a receipt is sent when set
	Kind       string    `json:"kind"`
	Quantity   float64   `json:"quantity,omitempty"`
	Unit       string    `json:"unit,omitempty"` // e.g. "kg", "bags"; empty for money
	ValueCents int64     `json:"value_cents,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks if the Donation has valid data.
// PRE: Donation struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (d *Donation) Validate() error {
	if strings.TrimSpace(d.Donor) == "" {
		return ErrEmptyDonor
	}
	if len(d.Donor) > MaxDonorLength {
		return ErrDonorTooLong
	}
	if !isValidKind(d.Kind) {
		return ErrInvalidKind
	}
	if d.ValueCents < 0 {
		return ErrInvalidValue
	}
	if d.Kind == KindMoney {
		if d.ValueCents == 0 {
			return ErrMoneyNeedsValue
		}
	} else if d.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if d.DonorEmail != "" && !strings.Contains(d.DonorEmail, "@") {
		return ErrInvalidEmail
	}
	if d.ReceivedAt.IsZero() {
		return ErrMissingReceived
	}
	return nil
}

// WantsReceipt reports whether the donor should be emailed a receipt.
func (d *Donation) WantsReceipt() bool {
	return d.DonorEmail != ""
}

// ReceivedDate returns the local date the donation was received, as YYYY-MM-DD.
func (d *Donation) ReceivedDate() string {
	return d.ReceivedAt.Format("2006-01-02")
}

func isValidKind(kind string) bool {
	for _, k := range ValidKinds {
		if k == kind {
			return true
		}
	}
	return false
}
