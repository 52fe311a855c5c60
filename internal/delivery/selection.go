package delivery

import (
	"time"

	"storefront/internal/model"
)

// Selection is the date and slot picked on the checkout form.
type Selection struct {
	Date time.Time
	Slot model.DeliverySlot
}

// SetDate changes the date and clears a slot that the new date no longer
// admits. It reports whether the slot was cleared.
func (s *Selection) SetDate(date, now time.Time) bool {
	s.Date = date
	if s.Slot != "" && !IsSlotAvailable(s.Slot, date, now) {
		s.Slot = ""
		return true
	}
	return false
}

// SetSlot selects slot if it is available for the current date.
func (s *Selection) SetSlot(slot model.DeliverySlot, now time.Time) error {
	if s.Date.IsZero() || !IsSlotAvailable(slot, s.Date, now) {
		return model.ErrSlotUnavailable
	}
	s.Slot = slot
	return nil
}

// Complete reports whether both parts are chosen and still valid at now.
func (s Selection) Complete(now time.Time) bool {
	return !s.Date.IsZero() && s.Slot != "" && IsSlotAvailable(s.Slot, s.Date, now)
}
