package orchestrators

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dropin/internal/domain/guest"
)

// GuestStore is the guest persistence used by registration and import.
type GuestStore interface {
	Save(ctx context.Context, g guest.Guest) error
	FindByName(ctx context.Context, firstName, lastName string) (guest.Guest, bool, error)
}

// RegisterGuestInput carries input for the register guest orchestrator.
type RegisterGuestInput struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Alias         string `json:"alias"`
	BirthYear     int    `json:"birth_year"`
	HousingStatus string `json:"housing_status"`
}

// RegisterGuestDeps holds dependencies for RegisterGuest.
type RegisterGuestDeps struct {
	GuestStore GuestStore
	Now        func() time.Time
}

// ExecuteRegisterGuest creates a guest at intake.
// PRE: FirstName is non-empty
// POST: Guest saved as active
func ExecuteRegisterGuest(ctx context.Context, input RegisterGuestInput, deps RegisterGuestDeps) (guest.Guest, error) {
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	g := guest.Guest{
		ID:            uuid.NewString(),
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Alias:         strings.TrimSpace(input.Alias),
		BirthYear:     input.BirthYear,
		HousingStatus: guest.NormalizeHousing(input.HousingStatus),
		Status:        guest.StatusActive,
		CreatedAt:     now,
	}
	if err := g.Validate(); err != nil {
		return guest.Guest{}, invalid(err)
	}
	if err := deps.GuestStore.Save(ctx, g); err != nil {
		return guest.Guest{}, fmt.Errorf("save guest: %w", err)
	}
	slog.Info("guest_event", "event", "guest_registered", "guest_id", g.ID)
	return g, nil
}

// ImportGuestsInput carries the CSV stream and import options.
type ImportGuestsInput struct {
	Reader     io.Reader
	ImportedBy string
	DryRun     bool
}

// ImportGuestsResult holds aggregate counts and per-row errors from an import run.
type ImportGuestsResult struct {
	Total   int              `json:"total"`
	Created int              `json:"created"`
	Skipped int              `json:"skipped"`
	Errors  []ImportRowError `json:"errors"`
	DryRun  bool             `json:"dry_run"`
	Unknown []string         `json:"unknown_columns,omitempty"`
}

// ImportRowError describes a problem with a single CSV row.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportGuestsDeps holds external dependencies for the import orchestrator.
type ImportGuestsDeps struct {
	GuestStore GuestStore
	GenerateID func() string
	Now        func() time.Time
	// OnGuestCreated is called after each guest is saved.
	OnGuestCreated func(guest.Guest)
}

var importColumns = map[string]bool{
	"FIRST_NAME": true, "LAST_NAME": true, "ALIAS": true, "BIRTH_YEAR": true, "HOUSING_STATUS": true,
}

// ExecuteImportGuests parses a CSV stream and creates guests that do not already exist.
// PRE: Reader is CSV with a header row containing at least FIRST_NAME
// POST: New guests saved unless DryRun; existing names are skipped
// INVARIANT: Existing guests are never modified
func ExecuteImportGuests(ctx context.Context, input ImportGuestsInput, deps ImportGuestsDeps) (ImportGuestsResult, error) {
	cr := csv.NewReader(input.Reader)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportGuestsResult{}, invalidf("CSV is empty")
		}
		return ImportGuestsResult{}, invalid(err)
	}

	colIdx := make(map[string]int, len(header))
	var unknownCols []string
	for i, h := range header {
		name := strings.ToUpper(strings.TrimSpace(h))
		colIdx[name] = i
		if !importColumns[name] {
			unknownCols = append(unknownCols, h)
		}
	}
	if _, ok := colIdx["FIRST_NAME"]; !ok {
		return ImportGuestsResult{}, invalidf("CSV missing required column: FIRST_NAME")
	}

	getCol := func(row []string, col string) string {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	genID := deps.GenerateID
	if genID == nil {
		genID = uuid.NewString
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	result := ImportGuestsResult{DryRun: input.DryRun, Unknown: unknownCols}
	seen := make(map[string]bool)
	rowNum := 1

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			result.Total++
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Message: err.Error()})
			continue
		}
		result.Total++

		g := guest.Guest{
			FirstName:     getCol(row, "FIRST_NAME"),
			LastName:      getCol(row, "LAST_NAME"),
			Alias:         getCol(row, "ALIAS"),
			HousingStatus: guest.NormalizeHousing(getCol(row, "HOUSING_STATUS")),
			Status:        guest.StatusActive,
		}
		if raw := getCol(row, "BIRTH_YEAR"); raw != "" {
			year, convErr := strconv.Atoi(raw)
			if convErr != nil {
				result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Message: "invalid birth year: " + raw})
				continue
			}
			g.BirthYear = year
		}
		if err := g.Validate(); err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Message: err.Error()})
			continue
		}

		nameKey := strings.ToLower(g.FirstName + "\x00" + g.LastName)
		if seen[nameKey] {
			result.Skipped++
			continue
		}
		seen[nameKey] = true

		_, exists, err := deps.GuestStore.FindByName(ctx, g.FirstName, g.LastName)
		if err != nil {
			return result, fmt.Errorf("find guest: %w", err)
		}
		if exists {
			result.Skipped++
			continue
		}
		if input.DryRun {
			result.Created++
			continue
		}

		g.ID = genID()
		g.CreatedAt = now()
		if err := deps.GuestStore.Save(ctx, g); err != nil {
			slog.Error("guests_import_save_failed", "row", rowNum, "err", err)
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Message: "save failed (see server log)"})
			continue
		}
		result.Created++
		if deps.OnGuestCreated != nil {
			deps.OnGuestCreated(g)
		}
	}

	slog.Info("guests_import",
		"imported_by", input.ImportedBy,
		"dry_run", input.DryRun,
		"total", result.Total,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}
