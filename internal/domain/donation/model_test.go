package donation_test

import (
	"testing"
	"time"

	"dropin/internal/domain/donation"
)

// TestDonation_Validate tests validation of Donation.
func TestDonation_Validate(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	base := func() donation.Donation {
		return donation.Donation{ID: "d1", Donor: "Corner Bakery", Kind: donation.KindFood, Quantity: 12, Unit: "loaves", ReceivedAt: now}
	}
	tests := []struct {
		name    string
		mutate  func(d *donation.Donation)
		wantErr error
	}{
		{"valid food", func(d *donation.Donation) {}, nil},
		{"empty donor", func(d *donation.Donation) { d.Donor = "" }, donation.ErrEmptyDonor},
		{"bad kind", func(d *donation.Donation) { d.Kind = "cars" }, donation.ErrInvalidKind},
		{"zero quantity", func(d *donation.Donation) { d.Quantity = 0 }, donation.ErrInvalidQuantity},
		{"money without value", func(d *donation.Donation) { d.Kind = donation.KindMoney; d.Quantity = 0 }, donation.ErrMoneyNeedsValue},
		{"money with value", func(d *donation.Donation) { d.Kind = donation.KindMoney; d.Quantity = 0; d.ValueCents = 5000 }, nil},
		{"negative value", func(d *donation.Donation) { d.ValueCents = -1 }, donation.ErrInvalidValue},
		{"bad email", func(d *donation.Donation) { d.DonorEmail = "bakery" }, donation.ErrInvalidEmail},
		{"no received time", func(d *donation.Donation) { d.ReceivedAt = time.Time{} }, donation.ErrMissingReceived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			if err := d.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestDonation_WantsReceipt checks receipt eligibility.
func TestDonation_WantsReceipt(t *testing.T) {
	d := donation.Donation{}
	if d.WantsReceipt() {
		t.Error("WantsReceipt without email = true, want false")
	}
	d.DonorEmail = "a@b.org"
	if !d.WantsReceipt() {
		t.Error("WantsReceipt with email = false, want true")
	}
}
