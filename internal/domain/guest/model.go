package guest

import (
	"errors"
	"strings"
	"time"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength  = 60
	MaxAliasLength = 40
)

// Housing status constants recorded at intake.
const (
	HousingUnsheltered = "unsheltered"
	HousingSheltered   = "sheltered"
	HousingHoused      = "housed"
	HousingUnknown     = "unknown"
)

// Guest status constants
const (
	StatusActive = "active"
	StatusBanned = "banned"
)

// Domain errors
var (
	ErrEmptyFirstName = errors.New("guest first name cannot be empty")
	ErrNameTooLong    = errors.New("guest name cannot exceed 60 characters")
	ErrAliasTooLong   = errors.New("guest alias cannot exceed 40 characters")
	ErrInvalidHousing = errors.New("housing status must be one of: unsheltered, sheltered, housed, unknown")
	ErrInvalidStatus  = errors.New("status must be 'active' or 'banned'")
	ErrInvalidBirth   = errors.New("birth year is out of range")
	ErrAlreadyBanned  = errors.New("guest is already banned")
	ErrNotBanned      = errors.New("guest is not banned")
	ErrGuestBanned    = errors.New("guest is banned from services")
)

// Guest is a person registered at the drop-in center.
type Guest struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Alias         string    `json:"alias,omitempty"`
	BirthYear     int       `json:"birth_year,omitempty"` // 0 when not given
	HousingStatus string    `json:"housing_status"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks if the Guest has valid data.
// PRE: Guest struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: FirstName is required; BirthYear is 0 or a plausible year
func (g *Guest) Validate() error {
	if strings.TrimSpace(g.FirstName) == "" {
		return ErrEmptyFirstName
	}
	if len(g.FirstName) > MaxNameLength || len(g.LastName) > MaxNameLength {
		return ErrNameTooLong
	}
	if len(g.Alias) > MaxAliasLength {
		return ErrAliasTooLong
	}
	switch g.HousingStatus {
	case HousingUnsheltered, HousingSheltered, HousingHoused, HousingUnknown:
	default:
		return ErrInvalidHousing
	}
	if g.Status != StatusActive && g.Status != StatusBanned {
		return ErrInvalidStatus
	}
	if g.BirthYear != 0 && (g.BirthYear < 1900 || g.BirthYear > time.Now().Year()) {
		return ErrInvalidBirth
	}
	return nil
}

// DisplayName returns the name staff see on the board: alias when set, else first and last name.
func (g *Guest) DisplayName() string {
	if g.Alias != "" {
		return g.Alias
	}
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

// IsBanned reports whether the guest is currently barred from services.
func (g *Guest) IsBanned() bool {
	return g.Status == StatusBanned
}

// Ban bars the guest from services.
// PRE: Guest is active
// POST: Status is banned
func (g *Guest) Ban() error {
	if g.Status == StatusBanned {
		return ErrAlreadyBanned
	}
	g.Status = StatusBanned
	return nil
}

// Unban restores the guest.
// PRE: Guest is banned
// POST: Status is active
func (g *Guest) Unban() error {
	if g.Status != StatusBanned {
		return ErrNotBanned
	}
	g.Status = StatusActive
	return nil
}

// NormalizeHousing maps free-text intake values onto the known constants.
func NormalizeHousing(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unsheltered", "street", "outside":
		return HousingUnsheltered
	case "sheltered", "shelter", "temporary":
		return HousingSheltered
	case "housed", "housing":
		return HousingHoused
	default:
		return HousingUnknown
	}
}
