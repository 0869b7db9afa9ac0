package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dropin/internal/adapters/email"
	"dropin/internal/domain/donation"
	"dropin/internal/domain/outbox"
)

// DonationSaver persists donations.
type DonationSaver interface {
	Save(ctx context.Context, d donation.Donation) error
}

// OutboxSaver persists outbox entries.
type OutboxSaver interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// RecordDonationInput carries input for the record donation orchestrator.
type RecordDonationInput struct {
	Donor      string
	DonorEmail string
	Kind       string
	Quantity   float64
	Unit       string
	ValueCents int64
}

// RecordDonationResult reports what happened to the receipt.
type RecordDonationResult struct {
	Donation      donation.Donation `json:"donation"`
	ReceiptSent   bool              `json:"receipt_sent"`
	ReceiptQueued bool              `json:"receipt_queued"`
}

// RecordDonationDeps holds dependencies for RecordDonation.
type RecordDonationDeps struct {
	DonationStore DonationSaver
	OutboxStore   OutboxSaver
	Sender        email.Sender // nil disables receipts
	CenterName    string
	Now           func() time.Time
}

// ReceiptPayload is the outbox payload for a donation receipt that could not be sent.
type ReceiptPayload struct {
	To      string        `json:"to"`
	Receipt email.Receipt `json:"receipt"`
}

// ExecuteRecordDonation persists a donation and thanks the donor.
// PRE: Input describes a valid donation
// POST: Donation saved; receipt sent, queued in the outbox, or not wanted
// INVARIANT: A failed receipt never fails the donation
func ExecuteRecordDonation(ctx context.Context, input RecordDonationInput, deps RecordDonationDeps) (RecordDonationResult, error) {
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	d := donation.Donation{
		ID:         uuid.NewString(),
		Donor:      input.Donor,
		DonorEmail: input.DonorEmail,
		Kind:       input.Kind,
		Quantity:   input.Quantity,
		Unit:       input.Unit,
		ValueCents: input.ValueCents,
		ReceivedAt: now,
	}
	if err := d.Validate(); err != nil {
		return RecordDonationResult{}, invalid(err)
	}
	if err := deps.DonationStore.Save(ctx, d); err != nil {
		return RecordDonationResult{}, fmt.Errorf("save donation: %w", err)
	}
	slog.Info("donation_event", "event", "donation_recorded", "donation_id", d.ID, "kind", d.Kind, "value_cents", d.ValueCents)

	result := RecordDonationResult{Donation: d}
	if !d.WantsReceipt() || deps.Sender == nil {
		return result, nil
	}

	payload := ReceiptPayload{
		To: d.DonorEmail,
		Receipt: email.Receipt{
			CenterName: deps.CenterName,
			DonationID: d.ID,
			Donor:      d.Donor,
			Kind:       d.Kind,
			Quantity:   d.Quantity,
			Unit:       d.Unit,
			ValueCents: d.ValueCents,
			ReceivedAt: d.ReceivedAt,
		},
	}
	_, err := sendReceipt(ctx, deps.Sender, payload)
	if err == nil {
		result.ReceiptSent = true
		return result, nil
	}
	slog.Warn("donation_event", "event", "receipt_send_failed", "donation_id", d.ID, "error", err.Error())

	raw, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("encode receipt payload: %w", err)
	}
	entry := outbox.Entry{
		ID:         uuid.NewString(),
		ActionType: outbox.ActionTypeDonationReceipt,
		Payload:    string(raw),
		Status:     outbox.StatusPending,
		CreatedAt:  now,
	}
	if err := entry.Validate(); err != nil {
		return result, err
	}
	if err := deps.OutboxStore.Save(ctx, entry); err != nil {
		slog.Error("donation_event", "event", "receipt_queue_failed", "donation_id", d.ID, "error", err.Error())
		return result, nil
	}
	result.ReceiptQueued = true
	return result, nil
}

func sendReceipt(ctx context.Context, sender email.Sender, p ReceiptPayload) (string, error) {
	req, err := email.RenderReceipt(p.Receipt, p.To)
	if err != nil {
		return "", err
	}
	res, err := sender.Send(ctx, req)
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// DonationReceiptExecutor delivers queued donation receipts.
type DonationReceiptExecutor struct {
	Sender email.Sender
}

// Execute sends the receipt described by payload and returns the provider message ID.
// PRE: payload is JSON matching ReceiptPayload
func (e *DonationReceiptExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var p ReceiptPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.To == "" {
		return "", fmt.Errorf("receipt payload has no recipient")
	}
	return sendReceipt(ctx, e.Sender, p)
}
