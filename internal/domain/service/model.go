package service

import (
	"errors"
	"time"
)

// Service type constants
const (
	TypeCheckIn = "checkin"
	TypeMeal    = "meal"
	TypeShower  = "shower"
	TypeLaundry = "laundry"
	TypeBicycle = "bicycle"
)

// Status constants. Meals and check-ins are recorded as done.
const (
	StatusWaitlisted = "waitlisted"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// Meal servings per guest per day.
const (
	MinMealQuantity = 1
	MaxMealQuantity = 3
)

// MaxNoteLength bounds staff notes.
const MaxNoteLength = 280

// ValidTypes contains all valid service types.
var ValidTypes = []string{TypeCheckIn, TypeMeal, TypeShower, TypeLaundry, TypeBicycle}

// Domain errors
var (
	ErrEmptyGuestID      = errors.New("guest ID cannot be empty")
	ErrInvalidType       = errors.New("service type must be one of: checkin, meal, shower, laundry, bicycle")
	ErrInvalidStatus     = errors.New("status must be one of: waitlisted, in_progress, done, cancelled")
	ErrInvalidQuantity   = errors.New("meal quantity must be between 1 and 3")
	ErrEmptyServiceDate  = errors.New("service date cannot be empty")
	ErrNoteTooLong       = errors.New("note cannot exceed 280 characters")
	ErrNotTracked        = errors.New("service type has no status workflow")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// transitions lists the allowed next statuses for tracked services.
var transitions = map[string][]string{
	StatusWaitlisted: {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDone, StatusCancelled},
}

// Entry records one service given to a guest on a service date.
type Entry struct {
	ID          string    `json:"id"`
	GuestID     string    `json:"guest_id"`
	Type        string    `json:"type"`
	ServedAt    time.Time `json:"served_at"`
	ServiceDate string    `json:"service_date"` // YYYY-MM-DD
	Quantity    int       `json:"quantity"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
}

// Validate checks if the Entry has valid data.
// PRE: Entry struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: Quantity is 1 for everything but meals, 1..3 for meals
func (e *Entry) Validate() error {
	if e.GuestID == "" {
		return ErrEmptyGuestID
	}
	if !IsValidType(e.Type) {
		return ErrInvalidType
	}
	if e.ServiceDate == "" {
		return ErrEmptyServiceDate
	}
	switch e.Status {
	case StatusWaitlisted, StatusInProgress, StatusDone, StatusCancelled:
	default:
		return ErrInvalidStatus
	}
	if e.Type == TypeMeal {
		if e.Quantity < MinMealQuantity || e.Quantity > MaxMealQuantity {
			return ErrInvalidQuantity
		}
	} else if e.Quantity != 1 {
		return ErrInvalidQuantity
	}
	if len(e.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// IsTracked reports whether the service type moves through the status workflow.
func IsTracked(serviceType string) bool {
	return serviceType == TypeShower || serviceType == TypeLaundry || serviceType == TypeBicycle
}

// InitialStatus returns the status a new entry of the given type starts in.
func InitialStatus(serviceType string) string {
	if IsTracked(serviceType) {
		return StatusWaitlisted
	}
	return StatusDone
}

// IsValidType reports whether serviceType is a known service type.
func IsValidType(serviceType string) bool {
	for _, t := range ValidTypes {
		if t == serviceType {
			return true
		}
	}
	return false
}

// Transition moves a tracked entry to the next status.
// PRE: Entry is a shower, laundry or bicycle entry
// POST: Status is next, or an error is returned and Status is unchanged
func (e *Entry) Transition(next string) error {
	if !IsTracked(e.Type) {
		return ErrNotTracked
	}
	for _, allowed := range transitions[e.Status] {
		if allowed == next {
			e.Status = next
			return nil
		}
	}
	return ErrInvalidTransition
}

// CountsTowardLimit reports whether the entry uses up a daily slot. Cancelled entries do not.
func (e *Entry) CountsTowardLimit() bool {
	return e.Status != StatusCancelled
}

// DailyLimit returns how many units of a service one guest may receive per day.
// Zero means unlimited.
func DailyLimit(serviceType string) int {
	switch serviceType {
	case TypeMeal:
		return MaxMealQuantity
	case TypeShower, TypeLaundry, TypeCheckIn:
		return 1
	default:
		return 0
	}
}
