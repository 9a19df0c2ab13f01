package availability

import (
	"context"
	"log"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/scheduling"
)

const (
	MessageSlotUnavailable = "Time Slot Unavailable: Book Another Slot"
	MessageCheckFailed     = "Availability Check Failed: Try Again"
)

type SlotSource interface {
	GetAvailableSlots(ctx context.Context, productTypeID int64, date string, calendarID int64, timezone string) ([]scheduling.Slot, error)
}

type InvalidItem struct {
	ItemID  string `json:"cartItemId"`
	Message string `json:"message"`
}

type ValidationResult struct {
	IsValid      bool          `json:"isValid"`
	InvalidItems []InvalidItem `json:"items"`
}

type AvailabilityUseCase interface {
	Validate(ctx context.Context, items []domain.CartItem) ValidationResult
}

type Validator struct {
	slots SlotSource
}

func NewValidator(slots SlotSource) *Validator {
	return &Validator{slots: slots}
}

type capacityKey struct {
	productTypeID int64
	date          string
	calendarID    int64
	timezone      string
}

type capacity struct {
	remaining map[string]int
	err       error
}

// Validate fetches each distinct calendar day once, then walks the items in order,
// decrementing a local copy of the remaining capacity so two items on the same slot
// cannot both pass when only one seat is left. Nothing is reserved upstream.
func (v *Validator) Validate(ctx context.Context, items []domain.CartItem) ValidationResult {
	result := ValidationResult{IsValid: true, InvalidItems: []InvalidItem{}}
	days := make(map[capacityKey]*capacity)

	for _, item := range items {
		key := capacityKey{
			productTypeID: item.Slot.ProductTypeID,
			date:          item.Slot.Date,
			calendarID:    item.Slot.CalendarID,
			timezone:      item.Slot.Timezone,
		}
		day, ok := days[key]
		if !ok {
			day = v.fetch(ctx, key)
			days[key] = day
		}

		switch {
		case day.err != nil:
			result.reject(item.ID, MessageCheckFailed)
		case day.remaining[item.Slot.Time] <= 0:
			result.reject(item.ID, MessageSlotUnavailable)
		default:
			day.remaining[item.Slot.Time]--
		}
	}

	return result
}

func (v *Validator) fetch(ctx context.Context, key capacityKey) *capacity {
	slots, err := v.slots.GetAvailableSlots(ctx, key.productTypeID, key.date, key.calendarID, key.timezone)
	if err != nil {
		log.Printf("availability: capacity lookup for type %d on %s (calendar %d) failed: %v", key.productTypeID, key.date, key.calendarID, err)
		return &capacity{err: err}
	}
	remaining := make(map[string]int, len(slots))
	for _, s := range slots {
		remaining[s.Time] += s.SlotsAvailable
	}
	return &capacity{remaining: remaining}
}

func (r *ValidationResult) reject(itemID, message string) {
	r.IsValid = false
	r.InvalidItems = append(r.InvalidItems, InvalidItem{ItemID: itemID, Message: message})
}

var _ AvailabilityUseCase = (*Validator)(nil)
