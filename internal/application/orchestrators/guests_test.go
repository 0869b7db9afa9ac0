package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dropin/internal/domain/guest"
)

func importDeps(store *mockGuestStore, created *[]guest.Guest) ImportGuestsDeps {
	n := 0
	return ImportGuestsDeps{
		GuestStore: store,
		GenerateID: func() string {
			n++
			return fmt.Sprintf("gen-%d", n)
		},
		OnGuestCreated: func(g guest.Guest) {
			if created != nil {
				*created = append(*created, g)
			}
		},
	}
}

// TestExecuteImportGuests_CreatesNewGuests verifies new guests are created from valid CSV.
func TestExecuteImportGuests_CreatesNewGuests(t *testing.T) {
	store := newMockGuestStore()
	var created []guest.Guest
	csv := "FIRST_NAME,LAST_NAME,ALIAS,BIRTH_YEAR,HOUSING_STATUS\nAda,Lane,,1970,street\nBo,Kim,Bear,,shelter\n"

	result, err := ExecuteImportGuests(context.Background(), ImportGuestsInput{Reader: strings.NewReader(csv)}, importDeps(store, &created))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 2 || result.Total != 2 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want 2 created, no errors", result)
	}
	if len(created) != 2 {
		t.Errorf("OnGuestCreated calls = %d, want 2", len(created))
	}
	g := store.byID["gen-1"]
	if g.HousingStatus != guest.HousingUnsheltered || g.BirthYear != 1970 {
		t.Errorf("guest = %+v, want unsheltered born 1970", g)
	}
}

// TestExecuteImportGuests_SkipsExistingAndDuplicates verifies dedupe against the store and within the file.
func TestExecuteImportGuests_SkipsExistingAndDuplicates(t *testing.T) {
	store := newMockGuestStore(guest.Guest{ID: "orig", FirstName: "Ada", LastName: "Lane", HousingStatus: guest.HousingHoused, Status: guest.StatusActive})
	csv := "FIRST_NAME,LAST_NAME\nada,lane\nCy,Ng\nCy,Ng\n"

	result, err := ExecuteImportGuests(context.Background(), ImportGuestsInput{Reader: strings.NewReader(csv)}, importDeps(store, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 1 || result.Skipped != 2 {
		t.Errorf("created=%d skipped=%d, want 1/2", result.Created, result.Skipped)
	}
	if store.byID["orig"].HousingStatus != guest.HousingHoused {
		t.Error("existing guest must not be modified")
	}
}

func TestExecuteImportGuests_DryRunDoesNotWrite(t *testing.T) {
	store := newMockGuestStore()
	var created []guest.Guest
	csv := "FIRST_NAME\nDry\n"

	result, err := ExecuteImportGuests(context.Background(), ImportGuestsInput{Reader: strings.NewReader(csv), DryRun: true}, importDeps(store, &created))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.DryRun || result.Created != 1 {
		t.Errorf("result = %+v, want dry run with 1 created", result)
	}
	if len(store.byID) != 0 || len(created) != 0 {
		t.Error("no guests should be written during dry run")
	}
}

func TestExecuteImportGuests_RowErrors(t *testing.T) {
	store := newMockGuestStore()
	csv := "FIRST_NAME,BIRTH_YEAR,NOTES\n,1980,x\nEve,abc,y\nFay,1850,z\nGus,,ok\n"

	result, err := ExecuteImportGuests(context.Background(), ImportGuestsInput{Reader: strings.NewReader(csv)}, importDeps(store, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 3 {
		t.Errorf("errors = %v, want 3", result.Errors)
	}
	if result.Errors[0].Row != 2 {
		t.Errorf("first error row = %d, want 2", result.Errors[0].Row)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
	if len(result.Unknown) != 1 || result.Unknown[0] != "NOTES" {
		t.Errorf("unknown = %v, want [NOTES]", result.Unknown)
	}
}

func TestExecuteImportGuests_MissingFirstNameColumn(t *testing.T) {
	_, err := ExecuteImportGuests(context.Background(), ImportGuestsInput{Reader: strings.NewReader("LAST_NAME\nLane\n")}, importDeps(newMockGuestStore(), nil))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("err = %v, want *ValidationError", err)
	}
}

func TestExecuteRegisterGuest(t *testing.T) {
	store := newMockGuestStore()
	g, err := ExecuteRegisterGuest(context.Background(), RegisterGuestInput{FirstName: "  Ada ", HousingStatus: "Shelter"}, RegisterGuestDeps{GuestStore: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.FirstName != "Ada" || g.HousingStatus != guest.HousingSheltered || g.Status != guest.StatusActive {
		t.Errorf("guest = %+v", g)
	}
	if _, ok := store.byID[g.ID]; !ok {
		t.Error("guest should be saved")
	}

	if _, err := ExecuteRegisterGuest(context.Background(), RegisterGuestInput{}, RegisterGuestDeps{GuestStore: store}); err == nil {
		t.Error("expected error for empty first name")
	}
}
